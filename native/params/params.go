package params

import (
	"math/big"
	"time"

	"yieldredirect/crypto"
)

// BasisPoints is the denominator of every fee expressed in basis points.
const BasisPoints = 10_000

const (
	// ProfitFeeCeilingBps is exclusive: the profit fee must stay strictly below it.
	ProfitFeeCeilingBps = 2_000
	// CallFeeCeilingBps is inclusive; the call fee is a share of the profit fee.
	CallFeeCeilingBps = BasisPoints
	// WithdrawalFeeCeilingBps is exclusive.
	WithdrawalFeeCeilingBps = 100
)

// Parameters holds the governance-controlled knobs of the vault and its
// distributor.
type Parameters struct {
	CallFeeBps       uint32        `json:"callFeeBps"`
	ProfitFeeBps     uint32        `json:"profitFeeBps"`
	WithdrawalFeeBps uint32        `json:"withdrawalFeeBps"`
	EpochDuration    time.Duration `json:"epochDuration"`
	// TVLCap bounds TotalDeposited. Zero means uncapped.
	TVLCap         *big.Int      `json:"tvlCap,omitempty"`
	MigrationDelay time.Duration `json:"migrationDelay"`
}

// DefaultParameters mirrors the launch configuration.
func DefaultParameters() Parameters {
	return Parameters{
		CallFeeBps:       5_000,
		ProfitFeeBps:     200,
		WithdrawalFeeBps: 0,
		EpochDuration:    time.Hour,
		TVLCap:           big.NewInt(0),
		MigrationDelay:   time.Second,
	}
}

// Clone returns a deep copy.
func (p Parameters) Clone() Parameters {
	out := p
	if p.TVLCap != nil {
		out.TVLCap = new(big.Int).Set(p.TVLCap)
	} else {
		out.TVLCap = big.NewInt(0)
	}
	return out
}

// Capped reports whether a TVL cap is configured.
func (p Parameters) Capped() bool {
	return p.TVLCap != nil && p.TVLCap.Sign() > 0
}

// Roles lists the privileged principals.
type Roles struct {
	Governance   crypto.Address   `json:"governance"`
	Keepers      []crypto.Address `json:"keepers,omitempty"`
	FeeRecipient crypto.Address   `json:"feeRecipient"`
}

// IsKeeper reports whether addr is a listed keeper.
func (r Roles) IsKeeper(addr crypto.Address) bool {
	for _, keeper := range r.Keepers {
		if keeper.Equal(addr) {
			return true
		}
	}
	return false
}

// Pauses toggles the entry points that bring value into the system.
// Withdrawals and reward claims are never paused.
type Pauses struct {
	Vault       bool `json:"vault"`
	Distributor bool `json:"distributor"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case ModuleVault:
		return p.Vault
	case ModuleDistributor:
		return p.Distributor
	default:
		return false
	}
}
