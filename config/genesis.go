package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stakeledger/crypto"
)

// Genesis describes the ledger's initial roles, assets, pools and balances.
type Genesis struct {
	Owner         crypto.Address
	Operator      crypto.Address
	RewardAsset   string
	RewardPerTick *big.Int
	// RewardReserve is minted to the staking module account to fund payouts.
	RewardReserve *big.Int
	Assets        []GenesisAsset
	Pools         []GenesisPool
	Balances      []GenesisBalance
}

// GenesisAsset registers a transferable asset. The empty symbol is the
// native asset.
type GenesisAsset struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// GenesisPool is added by the operator during genesis.
type GenesisPool struct {
	Asset            string
	Weight           uint64
	MinDeposit       *big.Int
	UnstakeLockTicks uint64
}

// GenesisBalance is minted to an account during genesis.
type GenesisBalance struct {
	Address crypto.Address
	Asset   string
	Amount  *big.Int
}

// genesisFile mirrors the YAML representation.
type genesisFile struct {
	Owner         string               `yaml:"owner"`
	Operator      string               `yaml:"operator"`
	RewardAsset   string               `yaml:"reward_asset"`
	RewardPerTick string               `yaml:"reward_per_tick"`
	RewardReserve string               `yaml:"reward_reserve"`
	Assets        []genesisAssetFile   `yaml:"assets"`
	Pools         []genesisPoolFile    `yaml:"pools"`
	Balances      []genesisBalanceFile `yaml:"balances"`
}

type genesisAssetFile struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

type genesisPoolFile struct {
	Asset            string `yaml:"asset"`
	Weight           uint64 `yaml:"weight"`
	MinDeposit       string `yaml:"min_deposit"`
	UnstakeLockTicks uint64 `yaml:"unstake_lock_ticks"`
}

type genesisBalanceFile struct {
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`
	Amount  string `yaml:"amount"`
}

// Default genesis pool parameters: the native asset with weight 100, a
// minimum deposit of 0.01 of an 18-decimal unit and a 200 tick unstake lock.
const (
	DefaultPoolWeight    = 100
	DefaultUnstakeLock   = 200
	defaultMinDepositWei = "10000000000000000"
)

// LoadGenesis reads and validates a YAML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()
	var raw genesisFile
	if err := yaml.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return raw.toGenesis()
}

// DefaultGenesis returns a single native pool genesis where owner also acts
// as operator.
func DefaultGenesis(owner crypto.Address) *Genesis {
	minDeposit, _ := new(big.Int).SetString(defaultMinDepositWei, 10)
	return &Genesis{
		Owner:         owner,
		Operator:      owner,
		RewardAsset:   "",
		RewardPerTick: big.NewInt(0),
		RewardReserve: big.NewInt(0),
		Assets:        []GenesisAsset{{Symbol: "", Name: "Native", Decimals: 18}},
		Pools: []GenesisPool{{
			Asset:            "",
			Weight:           DefaultPoolWeight,
			MinDeposit:       minDeposit,
			UnstakeLockTicks: DefaultUnstakeLock,
		}},
	}
}

// SaveGenesis writes g as YAML.
func SaveGenesis(path string, g *Genesis) error {
	raw := genesisFile{
		Owner:         g.Owner.String(),
		Operator:      g.Operator.String(),
		RewardAsset:   g.RewardAsset,
		RewardPerTick: formatAmount(g.RewardPerTick),
		RewardReserve: formatAmount(g.RewardReserve),
	}
	for _, asset := range g.Assets {
		raw.Assets = append(raw.Assets, genesisAssetFile(asset))
	}
	for _, pool := range g.Pools {
		raw.Pools = append(raw.Pools, genesisPoolFile{
			Asset:            pool.Asset,
			Weight:           pool.Weight,
			MinDeposit:       formatAmount(pool.MinDeposit),
			UnstakeLockTicks: pool.UnstakeLockTicks,
		})
	}
	for _, bal := range g.Balances {
		raw.Balances = append(raw.Balances, genesisBalanceFile{
			Address: bal.Address.String(),
			Asset:   bal.Asset,
			Amount:  formatAmount(bal.Amount),
		})
	}
	data, err := yaml.Marshal(&raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (raw genesisFile) toGenesis() (*Genesis, error) {
	owner, err := crypto.DecodeAddress(strings.TrimSpace(raw.Owner))
	if err != nil {
		return nil, fmt.Errorf("genesis owner: %w", err)
	}
	operator, err := crypto.DecodeAddress(strings.TrimSpace(raw.Operator))
	if err != nil {
		return nil, fmt.Errorf("genesis operator: %w", err)
	}
	rate, err := parseAmount(raw.RewardPerTick)
	if err != nil {
		return nil, fmt.Errorf("genesis reward_per_tick: %w", err)
	}
	reserve, err := parseAmount(raw.RewardReserve)
	if err != nil {
		return nil, fmt.Errorf("genesis reward_reserve: %w", err)
	}
	g := &Genesis{
		Owner:         owner,
		Operator:      operator,
		RewardAsset:   strings.TrimSpace(raw.RewardAsset),
		RewardPerTick: rate,
		RewardReserve: reserve,
	}

	seen := make(map[string]struct{})
	for _, asset := range raw.Assets {
		key := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("genesis: duplicate asset %q", asset.Symbol)
		}
		seen[key] = struct{}{}
		g.Assets = append(g.Assets, GenesisAsset{Symbol: strings.TrimSpace(asset.Symbol), Name: asset.Name, Decimals: asset.Decimals})
	}
	registered := func(symbol string) bool {
		_, ok := seen[strings.ToUpper(strings.TrimSpace(symbol))]
		return ok
	}
	if !registered(g.RewardAsset) {
		return nil, fmt.Errorf("genesis: reward asset %q not listed in assets", g.RewardAsset)
	}

	for i, pool := range raw.Pools {
		minDeposit, err := parseAmount(pool.MinDeposit)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d min_deposit: %w", i, err)
		}
		if !registered(pool.Asset) {
			return nil, fmt.Errorf("genesis pool %d: asset %q not listed in assets", i, pool.Asset)
		}
		g.Pools = append(g.Pools, GenesisPool{
			Asset:            strings.TrimSpace(pool.Asset),
			Weight:           pool.Weight,
			MinDeposit:       minDeposit,
			UnstakeLockTicks: pool.UnstakeLockTicks,
		})
	}

	for i, bal := range raw.Balances {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(bal.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d address: %w", i, err)
		}
		amount, err := parseAmount(bal.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d amount: %w", i, err)
		}
		if !registered(bal.Asset) {
			return nil, fmt.Errorf("genesis balance %d: asset %q not listed in assets", i, bal.Asset)
		}
		g.Balances = append(g.Balances, GenesisBalance{Address: addr, Asset: strings.TrimSpace(bal.Asset), Amount: amount})
	}
	return g, nil
}

// parseAmount accepts base-10 integers in the asset's smallest unit. Empty
// strings parse as zero.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	return amount, nil
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
