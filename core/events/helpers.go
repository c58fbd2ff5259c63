package events

import (
	"math/big"
	"strconv"
	"strings"

	"stakeledger/crypto"
)

// NativeAssetLabel is rendered for pools staking the chain's native asset.
const NativeAssetLabel = "NATIVE"

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return NativeAssetLabel
	}
	return strings.ToUpper(trimmed)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}
