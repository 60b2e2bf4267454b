package distributor

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"yieldredirect/core/epoch"
	"yieldredirect/core/rewards"
	"yieldredirect/crypto"
)

// Status is the lifecycle state of the distributor. Disabled is terminal.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Pool tracks the accrual index and reward balance for one target token.
// Only the last pool receives new conversions; earlier pools are frozen but
// stay claimable until swept.
type Pool struct {
	Token string         `json:"token"`
	Index *rewards.Index `json:"index"`
	// Balance is the reward held for depositors: pending claims plus
	// rounding dust not yet handed out.
	Balance *big.Int `json:"balance"`
	// Undistributed holds conversions that arrived while nothing was
	// deposited. It is folded into the next accrual.
	Undistributed *big.Int  `json:"undistributed"`
	Distributed   *big.Int  `json:"distributed"`
	Paid          *big.Int  `json:"paid"`
	Frozen        bool      `json:"frozen"`
	Swept         bool      `json:"swept"`
	OpenedAt      time.Time `json:"openedAt"`
}

func newPool(token string, now time.Time) *Pool {
	return &Pool{
		Token:         token,
		Index:         rewards.NewIndex(),
		Balance:       big.NewInt(0),
		Undistributed: big.NewInt(0),
		Distributed:   big.NewInt(0),
		Paid:          big.NewInt(0),
		OpenedAt:      now,
	}
}

func (p *Pool) ensure() {
	if p.Index == nil {
		p.Index = rewards.NewIndex()
	}
	if p.Balance == nil {
		p.Balance = big.NewInt(0)
	}
	if p.Undistributed == nil {
		p.Undistributed = big.NewInt(0)
	}
	if p.Distributed == nil {
		p.Distributed = big.NewInt(0)
	}
	if p.Paid == nil {
		p.Paid = big.NewInt(0)
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Index = p.Index.Clone()
	clone.Balance = copyAmount(p.Balance)
	clone.Undistributed = copyAmount(p.Undistributed)
	clone.Distributed = copyAmount(p.Distributed)
	clone.Paid = copyAmount(p.Paid)
	return &clone
}

// Distributor is the persisted state of the reward distributor.
type Distributor struct {
	Status              Status       `json:"status"`
	TargetToken         string       `json:"targetToken"`
	Window              epoch.Window `json:"window"`
	Pools               []*Pool      `json:"pools"`
	PermittedFarmTokens []string     `json:"permittedFarmTokens"`
	TotalFees           *big.Int     `json:"totalFees"`
}

func (d *Distributor) ensure() {
	if d.TotalFees == nil {
		d.TotalFees = big.NewInt(0)
	}
	for _, pool := range d.Pools {
		pool.ensure()
	}
}

// Clone returns a deep copy of the distributor state.
func (d *Distributor) Clone() *Distributor {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Pools = make([]*Pool, len(d.Pools))
	for i, pool := range d.Pools {
		clone.Pools[i] = pool.Clone()
	}
	clone.PermittedFarmTokens = append([]string(nil), d.PermittedFarmTokens...)
	clone.TotalFees = copyAmount(d.TotalFees)
	return &clone
}

// ActivePool returns the pool currently receiving conversions.
func (d *Distributor) ActivePool() *Pool {
	if d == nil || len(d.Pools) == 0 {
		return nil
	}
	return d.Pools[len(d.Pools)-1]
}

// Pool returns the pool for token, if any.
func (d *Distributor) Pool(token string) *Pool {
	if d == nil {
		return nil
	}
	token = normalizeToken(token)
	for _, pool := range d.Pools {
		if pool.Token == token {
			return pool
		}
	}
	return nil
}

// Permitted reports whether token may be harvested and converted.
func (d *Distributor) Permitted(token string) bool {
	if d == nil {
		return false
	}
	token = normalizeToken(token)
	for _, permitted := range d.PermittedFarmTokens {
		if permitted == token {
			return true
		}
	}
	return false
}

// Entry is a depositor's position in one pool.
type Entry struct {
	Checkpoint *big.Int `json:"checkpoint"`
	Pending    *big.Int `json:"pending"`
}

func (e *Entry) ensure() {
	if e.Checkpoint == nil {
		e.Checkpoint = big.NewInt(0)
	}
	if e.Pending == nil {
		e.Pending = big.NewInt(0)
	}
}

// Claim holds a depositor's checkpoints and pending rewards per pool token. A
// missing entry means the depositor has not interacted since the pool opened,
// so its checkpoint is the pool's starting index of zero.
type Claim struct {
	Address crypto.Address    `json:"address"`
	Entries map[string]*Entry `json:"entries"`
}

func newClaim(addr crypto.Address) *Claim {
	return &Claim{Address: addr, Entries: make(map[string]*Entry)}
}

func (c *Claim) entry(token string) *Entry {
	if c.Entries == nil {
		c.Entries = make(map[string]*Entry)
	}
	entry, ok := c.Entries[token]
	if !ok {
		entry = &Entry{Checkpoint: big.NewInt(0), Pending: big.NewInt(0)}
		c.Entries[token] = entry
	}
	entry.ensure()
	return entry
}

// Tokens lists the claim's pool tokens in sorted order.
func (c *Claim) Tokens() []string {
	tokens := make([]string, 0, len(c.Entries))
	for token := range c.Entries {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// Payout is a reward transfer made to a depositor.
type Payout struct {
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// Conversion summarises a successful ConvertProfits call.
type Conversion struct {
	Strategy  string   `json:"strategy"`
	Token     string   `json:"token"`
	Converted *big.Int `json:"converted"`
	Fee       *big.Int `json:"fee"`
	CallFee   *big.Int `json:"callFee"`
	Net       *big.Int `json:"net"`
	Index     *big.Int `json:"index"`
	Epoch     uint64   `json:"epoch"`
	Credited  bool     `json:"credited"`
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
