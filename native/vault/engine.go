package vault

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"yieldredirect/core/events"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
	nativecommon "yieldredirect/native/common"
	"yieldredirect/native/distributor"
	"yieldredirect/native/params"
	"yieldredirect/native/strategy"
)

var (
	ErrNotInitialized        = coreerrors.New(coreerrors.KindNotFound, "vault: not initialised")
	ErrAlreadyInitialized    = coreerrors.New(coreerrors.KindInvariant, "vault: already initialised")
	ErrInactive              = coreerrors.New(coreerrors.KindInvariant, "vault: inactive")
	ErrAlreadyInactive       = coreerrors.New(coreerrors.KindNothingToDo, "vault: already inactive")
	ErrNoStrategy            = coreerrors.New(coreerrors.KindNotFound, "vault: no strategy attached")
	ErrStrategyTokenMismatch = coreerrors.New(coreerrors.KindInvariant, "vault: strategy stakes a different token")
	ErrSameStrategy          = coreerrors.New(coreerrors.KindInvariant, "vault: strategy already attached")
	ErrNoProposal            = coreerrors.New(coreerrors.KindInvariant, "vault: no strategy proposed")
	ErrSharesNonTransferable = coreerrors.New(coreerrors.KindInvariant, "vault: shares are not transferable")
	ErrInsufficientLiquidity = coreerrors.New(coreerrors.KindInsufficient, "vault: insufficient liquidity")

	errNilState    = errors.New("vault: state not configured")
	errNilDeps     = errors.New("vault: collaborators not configured")
	errZeroAddress = errors.New("vault: address required")
)

const moduleName = params.ModuleVault

var basisPoints = big.NewInt(params.BasisPoints)

type engineState interface {
	Vault() (*Vault, error)
	PutVault(v *Vault) error
	Depositor(addr crypto.Address) (*Depositor, error)
	PutDepositor(d *Depositor) error
	DeleteDepositor(addr crypto.Address) error
	Depositors() ([]*Depositor, error)
}

// Bank is the token capability set the vault needs.
type Bank interface {
	strategy.Bank
	TransferFrom(token string, spender, owner, recipient crypto.Address, amount *big.Int) error
}

// Strategies resolves strategies by identifier.
type Strategies interface {
	Get(id string) (strategy.Strategy, error)
}

// Rewards is the slice of the distributor the vault drives on principal
// changes.
type Rewards interface {
	Checkpoint(user crypto.Address) error
	PayoutPending(user crypto.Address) ([]distributor.Payout, error)
	Prune(user crypto.Address) error
}

// ParamStore is satisfied by *params.Store.
type ParamStore interface {
	Parameters() (params.Parameters, error)
	SetParameters(p params.Parameters) error
	Roles() (params.Roles, error)
	SetRoles(r params.Roles) error
	Pauses() (params.Pauses, error)
	SetPauses(p params.Pauses) error
}

// Engine implements the vault accounting shell: principal ledger, strategy
// lifecycle and governance setters.
type Engine struct {
	state      engineState
	address    crypto.Address
	bank       Bank
	strategies Strategies
	records    strategy.State
	rewards    Rewards
	params     ParamStore
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	now        time.Time
}

// NewEngine constructs a vault custodying deposits at the supplied address.
func NewEngine(address crypto.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetBank(bank Bank) {
	if e == nil {
		return
	}
	e.bank = bank
}

// SetStrategies wires the strategy registry and the store of strategy records.
func (e *Engine) SetStrategies(strategies Strategies, records strategy.State) {
	if e == nil {
		return
	}
	e.strategies = strategies
	e.records = records
}

func (e *Engine) SetRewards(rewards Rewards) {
	if e == nil {
		return
	}
	e.rewards = rewards
}

func (e *Engine) SetParams(store ParamStore) {
	if e == nil {
		return
	}
	e.params = store
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNow records the instant the current operation executes at.
func (e *Engine) SetNow(now time.Time) {
	if e == nil {
		return
	}
	e.now = now
}

// Address returns the vault's custody address.
func (e *Engine) Address() crypto.Address { return e.address }

// Initialize attaches the first strategy and activates the vault.
func (e *Engine) Initialize(caller crypto.Address, token, strategyID string) error {
	if err := e.requireGovernance(caller); err != nil {
		return err
	}
	existing, err := e.state.Vault()
	if err != nil {
		return err
	}
	if existing != nil && existing.Initialized {
		return ErrAlreadyInitialized
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	strat, err := e.strategies.Get(strategyID)
	if err != nil {
		return err
	}
	if strat.Token() != token {
		return fmt.Errorf("%w: %s stakes %s", ErrStrategyTokenMismatch, strat.ID(), strat.Token())
	}
	v := &Vault{
		Token:          token,
		TotalDeposited: big.NewInt(0),
		Strategy:       strat.ID(),
		Active:         true,
		Initialized:    true,
		FeesCollected:  big.NewInt(0),
	}
	if err := e.state.PutVault(v); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultInitialized{Token: token, Strategy: strat.ID()})
	return nil
}

// Deposit pulls amount from caller (allowance required), settles the
// caller's pending rewards and stakes the funds with the active strategy.
func (e *Engine) Deposit(caller crypto.Address, amount *big.Int) (*Depositor, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, ErrInactive
	}
	strat, err := e.attached(v)
	if err != nil {
		return nil, err
	}
	p, err := e.params.Parameters()
	if err != nil {
		return nil, err
	}
	newTotal := new(big.Int).Add(v.TotalDeposited, amount)
	if p.Capped() && newTotal.Cmp(p.TVLCap) > 0 {
		return nil, fmt.Errorf("%w: %s would exceed cap %s", coreerrors.ErrTVLCapExceeded, newTotal, p.TVLCap)
	}

	// Settle against the old principal so the new one starts at the current index.
	if _, err := e.rewards.PayoutPending(caller); err != nil {
		return nil, err
	}
	if err := e.bank.TransferFrom(v.Token, e.address, caller, e.address, amount); err != nil {
		return nil, err
	}

	depositor, err := e.ensureDepositor(caller)
	if err != nil {
		return nil, err
	}
	depositor.Principal.Add(depositor.Principal, amount)
	depositor.LastDeposit = e.now
	v.TotalDeposited = newTotal

	if err := e.bank.Transfer(v.Token, e.address, strat.Address(), amount); err != nil {
		return nil, err
	}
	if err := strat.Stake(e.StrategyEnv(), amount); err != nil {
		return nil, fmt.Errorf("stake %s: %w", strat.ID(), err)
	}

	if err := e.state.PutDepositor(depositor); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(v); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultDeposited{
		Account:        caller,
		Amount:         amount,
		Principal:      depositor.Principal,
		TotalDeposited: v.TotalDeposited,
	})
	return depositor.Clone(), nil
}

// Withdraw returns amount of principal to caller minus the withdrawal fee.
// Idle funds are used first; the shortfall is unstaked while the vault is
// active.
func (e *Engine) Withdraw(caller crypto.Address, amount *big.Int) (*Withdrawal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	return e.withdraw(caller, amount, false)
}

// EmergencyWithdrawAll returns the caller's whole principal without a fee.
// Pending rewards are kept and stay claimable.
func (e *Engine) EmergencyWithdrawAll(caller crypto.Address) (*Withdrawal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.withdraw(caller, nil, true)
}

func (e *Engine) withdraw(caller crypto.Address, amount *big.Int, emergency bool) (*Withdrawal, error) {
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	depositor, err := e.state.Depositor(caller)
	if err != nil {
		return nil, err
	}
	if depositor == nil {
		return nil, coreerrors.ErrNothingToWithdraw
	}
	depositor.ensure()
	if depositor.Principal.Sign() == 0 {
		return nil, coreerrors.ErrNothingToWithdraw
	}
	if amount == nil {
		amount = new(big.Int).Set(depositor.Principal)
	}
	if amount.Cmp(depositor.Principal) > 0 {
		return nil, fmt.Errorf("%w: requested %s, principal %s", coreerrors.ErrInsufficientPrincipal, amount, depositor.Principal)
	}

	if err := e.rewards.Checkpoint(caller); err != nil {
		return nil, err
	}
	unstaked, err := e.ensureLiquidity(v, amount, emergency)
	if err != nil {
		return nil, err
	}

	fee := big.NewInt(0)
	if !emergency {
		p, err := e.params.Parameters()
		if err != nil {
			return nil, err
		}
		fee.Mul(amount, big.NewInt(int64(p.WithdrawalFeeBps)))
		fee.Quo(fee, basisPoints)
	}
	received := new(big.Int).Sub(amount, fee)
	if fee.Sign() > 0 {
		roles, err := e.params.Roles()
		if err != nil {
			return nil, err
		}
		if err := e.bank.Transfer(v.Token, e.address, roles.FeeRecipient, fee); err != nil {
			return nil, err
		}
		v.FeesCollected.Add(v.FeesCollected, fee)
	}
	if received.Sign() > 0 {
		if err := e.bank.Transfer(v.Token, e.address, caller, received); err != nil {
			return nil, err
		}
	}

	depositor.Principal.Sub(depositor.Principal, amount)
	v.TotalDeposited.Sub(v.TotalDeposited, amount)
	if depositor.Principal.Sign() == 0 {
		if err := e.state.DeleteDepositor(caller); err != nil {
			return nil, err
		}
	} else if err := e.state.PutDepositor(depositor); err != nil {
		return nil, err
	}
	if err := e.state.PutVault(v); err != nil {
		return nil, err
	}
	if depositor.Principal.Sign() == 0 {
		if err := e.rewards.Prune(caller); err != nil {
			return nil, err
		}
	}

	e.emitter.Emit(events.VaultWithdrawn{
		Account:        caller,
		Amount:         amount,
		Fee:            fee,
		Unstaked:       unstaked,
		Principal:      depositor.Principal,
		TotalDeposited: v.TotalDeposited,
		Emergency:      emergency,
	})
	return &Withdrawal{Amount: amount, Fee: fee, Received: received, Unstaked: unstaked}, nil
}

// ensureLiquidity tops up the idle balance from the strategy so amount can be
// paid out. It returns what was unstaked. Emergency withdrawals leave through
// the strategy's emergency exit, which works while it is impaired.
func (e *Engine) ensureLiquidity(v *Vault, amount *big.Int, emergency bool) (*big.Int, error) {
	idle, err := e.bank.BalanceOf(v.Token, e.address)
	if err != nil {
		return nil, err
	}
	unstaked := big.NewInt(0)
	if idle.Cmp(amount) >= 0 {
		return unstaked, nil
	}
	if v.Active && v.Strategy != "" {
		strat, err := e.strategies.Get(v.Strategy)
		if err != nil {
			return nil, err
		}
		shortfall := new(big.Int).Sub(amount, idle)
		exit := strat.Unstake
		if emergency {
			exit = strat.EmergencyExit
		}
		actual, err := exit(e.StrategyEnv(), shortfall)
		if err != nil {
			return nil, fmt.Errorf("unstake %s: %w", strat.ID(), err)
		}
		unstaked = actual
		idle.Add(idle, actual)
	}
	if idle.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: idle %s, requested %s", ErrInsufficientLiquidity, idle, amount)
	}
	return unstaked, nil
}

// Deactivate recalls every staked token into the vault and stops deposits.
// Withdrawals keep working from the idle balance.
func (e *Engine) Deactivate(caller crypto.Address) (*big.Int, error) {
	if err := e.requireGovernance(caller); err != nil {
		return nil, err
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, ErrAlreadyInactive
	}
	recalled := big.NewInt(0)
	if v.Strategy != "" {
		strat, err := e.strategies.Get(v.Strategy)
		if err != nil {
			return nil, err
		}
		recalled, err = e.recall(strat)
		if err != nil {
			return nil, err
		}
	}
	v.Active = false
	if err := e.state.PutVault(v); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultDeactivated{Recalled: recalled})
	return recalled, nil
}

func (e *Engine) recall(strat strategy.Strategy) (*big.Int, error) {
	env := e.StrategyEnv()
	assets, err := strat.EstimatedTotalAssets(env)
	if err != nil {
		return nil, err
	}
	if assets.Sign() == 0 {
		return big.NewInt(0), nil
	}
	actual, err := strat.Unstake(env, assets)
	if err != nil {
		return nil, fmt.Errorf("unstake %s: %w", strat.ID(), err)
	}
	return actual, nil
}

// TransferShares always fails: vault positions are bound to the depositor.
func (e *Engine) TransferShares(from, to crypto.Address, amount *big.Int) error {
	return ErrSharesNonTransferable
}

// Principal implements distributor.ShareView.
func (e *Engine) Principal(addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	depositor, err := e.state.Depositor(addr)
	if err != nil {
		return nil, err
	}
	if depositor == nil || depositor.Principal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(depositor.Principal), nil
}

// TotalDeposited implements distributor.ShareView.
func (e *Engine) TotalDeposited() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, err := e.state.Vault()
	if err != nil {
		return nil, err
	}
	if v == nil || v.TotalDeposited == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(v.TotalDeposited), nil
}

// ActiveStrategy implements distributor.StrategySource.
func (e *Engine) ActiveStrategy() (strategy.Strategy, error) {
	if e == nil || e.state == nil || e.strategies == nil {
		return nil, errNilDeps
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	return e.attached(v)
}

// StrategyEnv implements distributor.StrategySource.
func (e *Engine) StrategyEnv() strategy.Env {
	return strategy.Env{Bank: e.bank, State: e.records, Vault: e.address, Now: e.now}
}

// Snapshot returns a copy of the vault state.
func (e *Engine) Snapshot() (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

// Depositor returns the position of addr or ErrNotFound.
func (e *Engine) Depositor(addr crypto.Address) (*Depositor, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	depositor, err := e.state.Depositor(addr)
	if err != nil {
		return nil, err
	}
	if depositor == nil {
		return nil, fmt.Errorf("%w: depositor %s", coreerrors.ErrNotFound, addr)
	}
	depositor.ensure()
	return depositor, nil
}

// Depositors lists every open position.
func (e *Engine) Depositors() ([]*Depositor, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Depositors()
}

// Holdings reports idle and staked assets against TotalDeposited.
func (e *Engine) Holdings() (*Holdings, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	idle, err := e.bank.BalanceOf(v.Token, e.address)
	if err != nil {
		return nil, err
	}
	staked := big.NewInt(0)
	if v.Strategy != "" {
		strat, err := e.strategies.Get(v.Strategy)
		if err != nil {
			return nil, err
		}
		staked, err = strat.EstimatedTotalAssets(e.StrategyEnv())
		if err != nil {
			return nil, err
		}
	}
	return &Holdings{
		Idle:           idle,
		Strategy:       staked,
		Total:          new(big.Int).Add(idle, staked),
		TotalDeposited: copyAmount(v.TotalDeposited),
	}, nil
}

func (e *Engine) attached(v *Vault) (strategy.Strategy, error) {
	if v.Strategy == "" {
		return nil, ErrNoStrategy
	}
	return e.strategies.Get(v.Strategy)
}

func (e *Engine) ensureDepositor(addr crypto.Address) (*Depositor, error) {
	depositor, err := e.state.Depositor(addr)
	if err != nil {
		return nil, err
	}
	if depositor == nil {
		depositor = &Depositor{Address: addr, Principal: big.NewInt(0)}
	}
	depositor.ensure()
	return depositor, nil
}

func (e *Engine) requireGovernance(caller crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	roles, err := e.params.Roles()
	if err != nil {
		return err
	}
	return params.RequireGovernance(roles, caller)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil || e.strategies == nil || e.records == nil || e.rewards == nil || e.params == nil {
		return errNilDeps
	}
	return nil
}

func (e *Engine) load() (*Vault, error) {
	v, err := e.state.Vault()
	if err != nil {
		return nil, err
	}
	if v == nil || !v.Initialized {
		return nil, ErrNotInitialized
	}
	v.ensure()
	return v, nil
}
