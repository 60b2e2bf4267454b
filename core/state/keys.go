package state

import (
	"strings"

	"yieldredirect/crypto"
)

var (
	paramPrefix          = []byte("params/")
	bankBalancePrefix    = []byte("bank/balance/")
	bankAllowancePrefix  = []byte("bank/allowance/")
	bankSupplyPrefix     = []byte("bank/supply/")
	vaultKeyBytes        = []byte("vault/state")
	vaultDepositorPrefix = []byte("vault/depositor/")
	distributorKeyBytes  = []byte("distributor/state")
	distributorClaimPfx  = []byte("distributor/claim/")
	strategyPrefix       = []byte("strategy/")
)

// ParamStoreKey returns the storage key of a governance parameter.
func ParamStoreKey(name string) []byte {
	return join(paramPrefix, strings.TrimSpace(name))
}

// BalanceKey returns the storage key of a token balance.
func BalanceKey(token string, addr crypto.Address) []byte {
	return join(bankBalancePrefix, token+"/"+addr.Key())
}

// AllowanceKey returns the storage key of an allowance.
func AllowanceKey(token string, owner, spender crypto.Address) []byte {
	return join(bankAllowancePrefix, token+"/"+owner.Key()+"/"+spender.Key())
}

// SupplyKey returns the storage key of a token's total supply.
func SupplyKey(token string) []byte {
	return join(bankSupplyPrefix, token)
}

// DepositorKey returns the storage key of a vault position.
func DepositorKey(addr crypto.Address) []byte {
	return join(vaultDepositorPrefix, addr.Key())
}

// ClaimKey returns the storage key of a distributor claim.
func ClaimKey(addr crypto.Address) []byte {
	return join(distributorClaimPfx, addr.Key())
}

// StrategyKey returns the storage key of a strategy record.
func StrategyKey(id string) []byte {
	return join(strategyPrefix, strings.ToLower(strings.TrimSpace(id)))
}

func join(prefix []byte, suffix string) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}
