package vault

import (
	"math/big"
	"time"

	"yieldredirect/crypto"
)

// Proposal is a pending strategy migration.
type Proposal struct {
	Strategy   string    `json:"strategy"`
	ProposedAt time.Time `json:"proposedAt"`
}

// ReadyAt returns the earliest instant the proposal may be committed.
func (p *Proposal) ReadyAt(delay time.Duration) time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.ProposedAt.Add(delay)
}

// Vault is the persisted accounting shell. TotalDeposited always equals the
// sum of every depositor's principal.
type Vault struct {
	Token          string    `json:"token"`
	TotalDeposited *big.Int  `json:"totalDeposited"`
	Strategy       string    `json:"strategy"`
	Proposal       *Proposal `json:"proposal,omitempty"`
	Active         bool      `json:"active"`
	Initialized    bool      `json:"initialized"`
	FeesCollected  *big.Int  `json:"feesCollected"`
}

func (v *Vault) ensure() {
	if v.TotalDeposited == nil {
		v.TotalDeposited = big.NewInt(0)
	}
	if v.FeesCollected == nil {
		v.FeesCollected = big.NewInt(0)
	}
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.TotalDeposited = copyAmount(v.TotalDeposited)
	clone.FeesCollected = copyAmount(v.FeesCollected)
	if v.Proposal != nil {
		proposal := *v.Proposal
		clone.Proposal = &proposal
	}
	return &clone
}

// Depositor is a user's principal position.
type Depositor struct {
	Address     crypto.Address `json:"address"`
	Principal   *big.Int       `json:"principal"`
	LastDeposit time.Time      `json:"lastDeposit"`
}

func (d *Depositor) ensure() {
	if d.Principal == nil {
		d.Principal = big.NewInt(0)
	}
}

// Clone returns a deep copy of the depositor.
func (d *Depositor) Clone() *Depositor {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Principal = copyAmount(d.Principal)
	return &clone
}

// Withdrawal reports how a withdrawal was serviced.
type Withdrawal struct {
	Amount   *big.Int `json:"amount"`
	Fee      *big.Int `json:"fee"`
	Received *big.Int `json:"received"`
	Unstaked *big.Int `json:"unstaked"`
}

// Holdings breaks the vault's assets down by location.
type Holdings struct {
	Idle           *big.Int `json:"idle"`
	Strategy       *big.Int `json:"strategy"`
	Total          *big.Int `json:"total"`
	TotalDeposited *big.Int `json:"totalDeposited"`
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
