package staked

import (
	"context"
	"fmt"

	"stakeledger/config"
	"stakeledger/core/state"
)

// ApplyGenesis registers assets, mints balances, initialises the ledger and
// adds the genesis pools as one committed batch. It is a no-op when the
// ledger was already initialised.
func (p *Processor) ApplyGenesis(ctx context.Context, g *config.Genesis) error {
	if g == nil {
		return fmt.Errorf("staked: genesis required")
	}
	if p.IsInitialized() {
		return nil
	}
	return p.run(ctx, "genesis", func() error {
		for _, asset := range g.Assets {
			if err := p.ledger.RegisterAsset(asset.Symbol, asset.Name, asset.Decimals); err != nil {
				return fmt.Errorf("register asset %q: %w", asset.Symbol, err)
			}
		}
		for _, bal := range g.Balances {
			if err := p.ledger.Mint(bal.Asset, bal.Address, bal.Amount); err != nil {
				return fmt.Errorf("mint %s to %s: %w", bal.Asset, bal.Address, err)
			}
		}
		if g.RewardReserve != nil && g.RewardReserve.Sign() > 0 {
			if err := p.ledger.Mint(g.RewardAsset, p.ModuleAddress(), g.RewardReserve); err != nil {
				return fmt.Errorf("fund reward reserve: %w", err)
			}
		}
		if err := p.engine.Initialize(g.Owner, g.Operator, g.RewardAsset, g.RewardPerTick); err != nil {
			return err
		}
		for i, pool := range g.Pools {
			if _, err := p.engine.AddPool(g.Operator, pool.Asset, pool.Weight, pool.MinDeposit, pool.UnstakeLockTicks); err != nil {
				return fmt.Errorf("genesis pool %d: %w", i, err)
			}
		}
		return p.mgr.SetStateVersion(state.StateVersion)
	})
}
