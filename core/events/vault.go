package events

import (
	"math/big"
	"time"

	"yieldredirect/core/types"
	"yieldredirect/crypto"
)

const (
	// TypeVaultInitialized is emitted once the vault attaches its first strategy.
	TypeVaultInitialized = "vault.initialized"
	// TypeVaultDeposited captures a principal increase.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultWithdrawn captures a principal decrease.
	TypeVaultWithdrawn = "vault.withdrawn"
	// TypeVaultEmergencyWithdrawn captures a full fee-free exit.
	TypeVaultEmergencyWithdrawn = "vault.emergencyWithdrawn"
	TypeVaultStrategyProposed   = "vault.strategyProposed"
	TypeVaultStrategyUpgraded   = "vault.strategyUpgraded"
	TypeVaultDeactivated        = "vault.deactivated"
	// TypeVaultGovernance records parameter and role changes.
	TypeVaultGovernance = "vault.governance"
)

// VaultInitialized records the initial strategy.
type VaultInitialized struct {
	Token    string
	Strategy string
}

func (VaultInitialized) EventType() string { return TypeVaultInitialized }

func (e VaultInitialized) Event() *types.Event {
	return &types.Event{Type: TypeVaultInitialized, Attributes: map[string]string{
		"token":    normalizeAsset(e.Token),
		"strategy": e.Strategy,
	}}
}

// VaultDeposited captures a deposit.
type VaultDeposited struct {
	Account        crypto.Address
	Amount         *big.Int
	Principal      *big.Int
	TotalDeposited *big.Int
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposited, Attributes: map[string]string{
		"account":        formatAddress(e.Account),
		"amount":         formatAmount(e.Amount),
		"principal":      formatAmount(e.Principal),
		"totalDeposited": formatAmount(e.TotalDeposited),
	}}
}

// VaultWithdrawn captures a withdrawal. Emergency marks fee-free exits.
type VaultWithdrawn struct {
	Account        crypto.Address
	Amount         *big.Int
	Fee            *big.Int
	Unstaked       *big.Int
	Principal      *big.Int
	TotalDeposited *big.Int
	Emergency      bool
}

func (e VaultWithdrawn) EventType() string {
	if e.Emergency {
		return TypeVaultEmergencyWithdrawn
	}
	return TypeVaultWithdrawn
}

func (e VaultWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"account":        formatAddress(e.Account),
		"amount":         formatAmount(e.Amount),
		"principal":      formatAmount(e.Principal),
		"totalDeposited": formatAmount(e.TotalDeposited),
	}
	if e.Fee != nil && e.Fee.Sign() > 0 {
		attrs["fee"] = formatAmount(e.Fee)
	}
	if e.Unstaked != nil && e.Unstaked.Sign() > 0 {
		attrs["unstaked"] = formatAmount(e.Unstaked)
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// VaultStrategyProposed records a pending migration.
type VaultStrategyProposed struct {
	Strategy   string
	ProposedAt time.Time
	ReadyAt    time.Time
}

func (VaultStrategyProposed) EventType() string { return TypeVaultStrategyProposed }

func (e VaultStrategyProposed) Event() *types.Event {
	return &types.Event{Type: TypeVaultStrategyProposed, Attributes: map[string]string{
		"strategy":   e.Strategy,
		"proposedAt": formatTime(e.ProposedAt),
		"readyAt":    formatTime(e.ReadyAt),
	}}
}

// VaultStrategyUpgraded records a committed migration.
type VaultStrategyUpgraded struct {
	From     string
	To       string
	Migrated *big.Int
}

func (VaultStrategyUpgraded) EventType() string { return TypeVaultStrategyUpgraded }

func (e VaultStrategyUpgraded) Event() *types.Event {
	return &types.Event{Type: TypeVaultStrategyUpgraded, Attributes: map[string]string{
		"from":     e.From,
		"to":       e.To,
		"migrated": formatAmount(e.Migrated),
	}}
}

// VaultDeactivated records the recall of all strategy funds.
type VaultDeactivated struct {
	Recalled *big.Int
}

func (VaultDeactivated) EventType() string { return TypeVaultDeactivated }

func (e VaultDeactivated) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeactivated, Attributes: map[string]string{
		"recalled": formatAmount(e.Recalled),
	}}
}

// VaultGovernance records a governance action and the values it set.
type VaultGovernance struct {
	Action string
	Values map[string]string
}

func (VaultGovernance) EventType() string { return TypeVaultGovernance }

func (e VaultGovernance) Event() *types.Event {
	attrs := map[string]string{"action": e.Action}
	for k, v := range e.Values {
		attrs[k] = v
	}
	return &types.Event{Type: TypeVaultGovernance, Attributes: attrs}
}
