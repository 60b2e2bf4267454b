package strategy

import (
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

var (
	ErrStrategyImpaired = coreerrors.New(coreerrors.KindInternal, "strategy: yield source impaired")
	ErrUnknownStrategy  = coreerrors.New(coreerrors.KindNotFound, "strategy: unknown strategy")

	errNilEnv        = errors.New("strategy: environment not configured")
	errDuplicateID   = errors.New("strategy: duplicate strategy id")
	errMissingConfig = errors.New("strategy: incomplete configuration")
)

// Bank is the token capability set a strategy needs.
type Bank interface {
	BalanceOf(token string, addr crypto.Address) (*big.Int, error)
	Transfer(token string, from, to crypto.Address, amount *big.Int) error
	Mint(token string, to crypto.Address, amount *big.Int) error
	Burn(token string, from crypto.Address, amount *big.Int) error
}

// State persists per-strategy bookkeeping.
type State interface {
	StrategyRecord(id string) (*Record, error)
	PutStrategyRecord(record *Record) error
}

// Env binds a strategy call to the enclosing operation. Side effects go
// through Bank and State so they commit or roll back with that operation.
type Env struct {
	Bank  Bank
	State State
	// Vault receives unstaked funds.
	Vault crypto.Address
	Now   time.Time
}

func (e Env) ready() error {
	if e.Bank == nil || e.State == nil || e.Vault.IsZero() {
		return errNilEnv
	}
	return nil
}

// Strategy is the narrow capability set the vault and distributor rely on.
// Every method is fallible and errors must reach the caller.
type Strategy interface {
	ID() string
	Address() crypto.Address
	Token() string
	FarmToken() string
	// Stake puts amount, already transferred to Address, to work.
	Stake(env Env, amount *big.Int) error
	// Unstake returns up to amount to env.Vault and reports what was sent.
	Unstake(env Env, amount *big.Int) (*big.Int, error)
	// EmergencyExit returns up to amount to env.Vault without harvesting.
	// It works while the yield source is impaired; the exiting stake's
	// share of unharvested rewards is forfeited.
	EmergencyExit(env Env, amount *big.Int) (*big.Int, error)
	// HarvestToTargetToken converts accrued farm rewards and pays the
	// proceeds in targetToken to recipient.
	HarvestToTargetToken(env Env, targetToken string, recipient crypto.Address) (*big.Int, error)
	EstimatedTotalAssets(env Env) (*big.Int, error)
}

// Record is the persisted state of a strategy.
type Record struct {
	ID          string    `json:"id"`
	Staked      *big.Int  `json:"staked"`
	Accrued     *big.Int  `json:"accrued"`
	LastAccrual time.Time `json:"lastAccrual"`
	Impaired    bool      `json:"impaired"`
	Harvested   *big.Int  `json:"harvested"`
	Converted   *big.Int  `json:"converted"`
}

func newRecord(id string) *Record {
	return &Record{ID: id, Staked: big.NewInt(0), Accrued: big.NewInt(0), Harvested: big.NewInt(0), Converted: big.NewInt(0)}
}

func (r *Record) ensure() {
	if r.Staked == nil {
		r.Staked = big.NewInt(0)
	}
	if r.Accrued == nil {
		r.Accrued = big.NewInt(0)
	}
	if r.Harvested == nil {
		r.Harvested = big.NewInt(0)
	}
	if r.Converted == nil {
		r.Converted = big.NewInt(0)
	}
}

// Registry maps strategy identifiers to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy. Identifiers are case-insensitive.
func (r *Registry) Register(s Strategy) error {
	if s == nil || strings.TrimSpace(s.ID()) == "" {
		return errMissingConfig
	}
	id := NormalizeID(s.ID())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[id]; exists {
		return errDuplicateID
	}
	r.strategies[id] = s
	return nil
}

// Get resolves a strategy by identifier.
func (r *Registry) Get(id string) (Strategy, error) {
	if r == nil {
		return nil, ErrUnknownStrategy
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[NormalizeID(id)]
	if !ok {
		return nil, ErrUnknownStrategy
	}
	return s, nil
}

// IDs lists the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
