package distributor

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"yieldredirect/core/epoch"
	"yieldredirect/core/events"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
	nativecommon "yieldredirect/native/common"
	"yieldredirect/native/params"
	"yieldredirect/native/strategy"
)

var (
	ErrNotInitialized          = coreerrors.New(coreerrors.KindNotFound, "distributor: not initialised")
	ErrAlreadyInitialized      = coreerrors.New(coreerrors.KindInvariant, "distributor: already initialised")
	ErrDisabled                = coreerrors.New(coreerrors.KindInvariant, "distributor: disabled")
	ErrAlreadyDisabled         = coreerrors.New(coreerrors.KindNothingToDo, "distributor: already disabled")
	ErrSweepRequiresDisabled   = coreerrors.New(coreerrors.KindInvariant, "distributor: sweeping a reward pool requires a disabled distributor")
	ErrNothingToSweep          = coreerrors.New(coreerrors.KindNothingToDo, "distributor: nothing to sweep")
	ErrRewardTokenNotPermitted = coreerrors.New(coreerrors.KindInvariant, "distributor: farm reward token not permitted")
	ErrSameTargetToken         = coreerrors.New(coreerrors.KindInvariant, "distributor: token is already the target")
	ErrNoStrategy              = coreerrors.New(coreerrors.KindNotFound, "distributor: no active strategy")

	errNilState      = errors.New("distributor: state not configured")
	errNilDeps       = errors.New("distributor: collaborators not configured")
	errTokenRequired = errors.New("distributor: token required")
	errBalanceShrank = errors.New("distributor: target balance decreased during harvest")
)

const moduleName = params.ModuleDistributor

var basisPoints = big.NewInt(params.BasisPoints)

type engineState interface {
	Distributor() (*Distributor, error)
	PutDistributor(d *Distributor) error
	DistributorClaim(addr crypto.Address) (*Claim, error)
	PutDistributorClaim(claim *Claim) error
	DeleteDistributorClaim(addr crypto.Address) error
}

// ShareView exposes the vault's principal ledger, which is the share base of
// every accrual.
type ShareView interface {
	Principal(addr crypto.Address) (*big.Int, error)
	TotalDeposited() (*big.Int, error)
}

// StrategySource resolves the vault's current strategy and the environment
// strategy calls run in.
type StrategySource interface {
	ActiveStrategy() (strategy.Strategy, error)
	StrategyEnv() strategy.Env
}

// ParamSource is satisfied by *params.Store.
type ParamSource interface {
	Parameters() (params.Parameters, error)
	Roles() (params.Roles, error)
}

// Engine implements the reward distributor state machine. All reward
// bookkeeping funnels through checkpoint so the index invariants live in one
// place.
type Engine struct {
	state      engineState
	address    crypto.Address
	bank       strategy.Bank
	shares     ShareView
	strategies StrategySource
	params     ParamSource
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	now        time.Time
}

// NewEngine constructs a distributor holding rewards at the supplied address.
func NewEngine(address crypto.Address) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetBank(bank strategy.Bank) {
	if e == nil {
		return
	}
	e.bank = bank
}

func (e *Engine) SetShares(shares ShareView) {
	if e == nil {
		return
	}
	e.shares = shares
}

func (e *Engine) SetStrategies(source StrategySource) {
	if e == nil {
		return
	}
	e.strategies = source
}

func (e *Engine) SetParams(source ParamSource) {
	if e == nil {
		return
	}
	e.params = source
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

// Address returns the custody address of the reward pools.
func (e *Engine) Address() crypto.Address { return e.address }

// Initialize creates the distributor with its first target token.
func (e *Engine) Initialize(targetToken string, epochDuration time.Duration, permitted []string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	token := normalizeToken(targetToken)
	if token == "" {
		return errTokenRequired
	}
	existing, err := e.state.Distributor()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	d := &Distributor{
		Status:      StatusActive,
		TargetToken: token,
		Window:      epoch.NewWindow(epochDuration),
		Pools:       []*Pool{newPool(token, e.now)},
		TotalFees:   big.NewInt(0),
	}
	for _, farmToken := range permitted {
		if normalized := normalizeToken(farmToken); normalized != "" && !d.Permitted(normalized) {
			d.PermittedFarmTokens = append(d.PermittedFarmTokens, normalized)
		}
	}
	return e.state.PutDistributor(d)
}

// ConvertProfits harvests the active strategy, takes the profit fee and
// credits the remainder to the active pool. Only one conversion may happen
// per epoch.
func (e *Engine) ConvertProfits(caller crypto.Address) (*Conversion, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	roles, err := e.params.Roles()
	if err != nil {
		return nil, err
	}
	if err := params.RequireKeeper(roles, caller); err != nil {
		return nil, err
	}
	d, err := e.load()
	if err != nil {
		return nil, err
	}
	if d.Status != StatusActive {
		return nil, ErrDisabled
	}
	p, err := e.params.Parameters()
	if err != nil {
		return nil, err
	}
	d.Window.Duration = p.EpochDuration
	if !d.Window.Due(e.now) {
		return nil, fmt.Errorf("%w: %s remaining in epoch %d", coreerrors.ErrEpochNotElapsed, d.Window.Remaining(e.now), d.Window.Number)
	}

	strat, err := e.strategies.ActiveStrategy()
	if err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, ErrNoStrategy
	}
	if !d.Permitted(strat.FarmToken()) {
		return nil, fmt.Errorf("%w: %s", ErrRewardTokenNotPermitted, strat.FarmToken())
	}

	pool := d.ActivePool()
	before, err := e.bank.BalanceOf(pool.Token, e.address)
	if err != nil {
		return nil, err
	}
	if _, err := strat.HarvestToTargetToken(e.strategies.StrategyEnv(), pool.Token, e.address); err != nil {
		return nil, fmt.Errorf("harvest %s: %w", strat.ID(), err)
	}
	after, err := e.bank.BalanceOf(pool.Token, e.address)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() < 0 {
		return nil, errBalanceShrank
	}

	fee := new(big.Int).Mul(received, big.NewInt(int64(p.ProfitFeeBps)))
	fee.Quo(fee, basisPoints)
	callFee := new(big.Int).Mul(fee, big.NewInt(int64(p.CallFeeBps)))
	callFee.Quo(callFee, basisPoints)
	protocolFee := new(big.Int).Sub(fee, callFee)
	if callFee.Sign() > 0 {
		if err := e.bank.Transfer(pool.Token, e.address, caller, callFee); err != nil {
			return nil, err
		}
	}
	if protocolFee.Sign() > 0 {
		if err := e.bank.Transfer(pool.Token, e.address, roles.FeeRecipient, protocolFee); err != nil {
			return nil, err
		}
	}
	d.TotalFees.Add(d.TotalFees, fee)

	net := new(big.Int).Sub(received, fee)
	pool.Balance.Add(pool.Balance, net)
	reward := new(big.Int).Add(net, pool.Undistributed)
	total, err := e.shares.TotalDeposited()
	if err != nil {
		return nil, err
	}
	credited := false
	if reward.Sign() > 0 {
		if total.Sign() > 0 {
			pool.Index.Accrue(reward, total)
			pool.Distributed.Add(pool.Distributed, reward)
			pool.Undistributed.SetInt64(0)
			credited = true
		} else {
			pool.Undistributed.Set(reward)
		}
	}
	d.Window.Advance(e.now)
	if err := e.state.PutDistributor(d); err != nil {
		return nil, err
	}

	conversion := &Conversion{
		Strategy:  strat.ID(),
		Token:     pool.Token,
		Converted: received,
		Fee:       fee,
		CallFee:   callFee,
		Net:       net,
		Index:     pool.Index.Value(),
		Epoch:     d.Window.Number,
		Credited:  credited,
	}
	e.emitter.Emit(events.ProfitsConverted{
		Caller:    caller,
		Strategy:  conversion.Strategy,
		Token:     conversion.Token,
		Converted: conversion.Converted,
		Fee:       conversion.Fee,
		CallFee:   conversion.CallFee,
		Net:       conversion.Net,
		Index:     conversion.Index,
		Epoch:     conversion.Epoch,
		Credited:  credited,
	})
	return conversion, nil
}

// Checkpoint folds reward accrued since the depositor's last interaction into
// their pending balance. It must run before any change to their principal.
func (e *Engine) Checkpoint(user crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	d, err := e.load()
	if err != nil {
		return err
	}
	claim, err := e.checkpoint(d, user)
	if err != nil {
		return err
	}
	return e.state.PutDistributorClaim(claim)
}

func (e *Engine) checkpoint(d *Distributor, user crypto.Address) (*Claim, error) {
	principal, err := e.shares.Principal(user)
	if err != nil {
		return nil, err
	}
	claim, err := e.state.DistributorClaim(user)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		claim = newClaim(user)
	}
	for _, pool := range d.Pools {
		if pool.Swept {
			continue
		}
		entry := claim.entry(pool.Token)
		accrued := pool.Index.Pending(principal, entry.Checkpoint)
		entry.Pending.Add(entry.Pending, accrued)
		entry.Checkpoint = pool.Index.Value()
	}
	return claim, nil
}

// Harvest pays every pending reward of user. It fails with
// ErrNothingToClaim when there is nothing to pay. Claims keep working after
// the distributor is disabled.
func (e *Engine) Harvest(user crypto.Address) ([]Payout, error) {
	payouts, err := e.payout(user, false)
	if err != nil {
		return nil, err
	}
	if len(payouts) == 0 {
		return nil, coreerrors.ErrNothingToClaim
	}
	return payouts, nil
}

// ClaimRewards is an alias of Harvest.
func (e *Engine) ClaimRewards(user crypto.Address) ([]Payout, error) {
	return e.Harvest(user)
}

// PayoutPending settles pending rewards without failing when there are none.
// Deposits use it so a new principal never inherits past accrual.
func (e *Engine) PayoutPending(user crypto.Address) ([]Payout, error) {
	return e.payout(user, true)
}

func (e *Engine) payout(user crypto.Address, implicit bool) ([]Payout, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	d, err := e.load()
	if err != nil {
		return nil, err
	}
	claim, err := e.checkpoint(d, user)
	if err != nil {
		return nil, err
	}
	var payouts []Payout
	for _, pool := range d.Pools {
		if pool.Swept {
			continue
		}
		entry := claim.entry(pool.Token)
		amount := new(big.Int).Set(entry.Pending)
		if amount.Sign() == 0 {
			continue
		}
		if amount.Cmp(pool.Balance) > 0 {
			return nil, fmt.Errorf("%w: pool %s holds %s, owes %s", coreerrors.ErrInsufficientBalance, pool.Token, pool.Balance, amount)
		}
		if err := e.bank.Transfer(pool.Token, e.address, user, amount); err != nil {
			return nil, err
		}
		pool.Balance.Sub(pool.Balance, amount)
		pool.Paid.Add(pool.Paid, amount)
		entry.Pending.SetInt64(0)
		payouts = append(payouts, Payout{Token: pool.Token, Amount: amount})
		e.emitter.Emit(events.RewardsClaimed{Account: user, Token: pool.Token, Amount: amount, Implicit: implicit})
	}
	if len(payouts) > 0 {
		if err := e.state.PutDistributor(d); err != nil {
			return nil, err
		}
	}
	if err := e.state.PutDistributorClaim(claim); err != nil {
		return nil, err
	}
	// An implicit payout precedes a principal increase; the fresh checkpoint
	// must survive it.
	if !implicit {
		if err := e.prune(d, claim); err != nil {
			return nil, err
		}
	}
	return payouts, nil
}

// Prune deletes the claim of a depositor holding neither principal nor
// pending reward.
func (e *Engine) Prune(user crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	d, err := e.load()
	if err != nil {
		return err
	}
	claim, err := e.state.DistributorClaim(user)
	if err != nil || claim == nil {
		return err
	}
	return e.prune(d, claim)
}

func (e *Engine) prune(d *Distributor, claim *Claim) error {
	principal, err := e.shares.Principal(claim.Address)
	if err != nil {
		return err
	}
	if principal.Sign() > 0 {
		return nil
	}
	for _, pool := range d.Pools {
		if pool.Swept {
			continue
		}
		if entry, ok := claim.Entries[pool.Token]; ok && entry.Pending != nil && entry.Pending.Sign() > 0 {
			return nil
		}
	}
	return e.state.DeleteDistributorClaim(claim.Address)
}

// GetUserRewards returns the pending reward of user in the current target
// token. It never mutates state.
func (e *Engine) GetUserRewards(user crypto.Address) (*big.Int, error) {
	rewards, err := e.RewardsByToken(user)
	if err != nil {
		return nil, err
	}
	d, err := e.load()
	if err != nil {
		return nil, err
	}
	if amount, ok := rewards[d.TargetToken]; ok {
		return amount, nil
	}
	return big.NewInt(0), nil
}

// RewardsByToken returns the pending reward of user in every claimable pool.
func (e *Engine) RewardsByToken(user crypto.Address) (map[string]*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	d, err := e.load()
	if err != nil {
		return nil, err
	}
	principal, err := e.shares.Principal(user)
	if err != nil {
		return nil, err
	}
	claim, err := e.state.DistributorClaim(user)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*big.Int, len(d.Pools))
	for _, pool := range d.Pools {
		if pool.Swept {
			continue
		}
		checkpoint, pending := big.NewInt(0), big.NewInt(0)
		if claim != nil {
			if entry, ok := claim.Entries[pool.Token]; ok {
				checkpoint, pending = copyAmount(entry.Checkpoint), copyAmount(entry.Pending)
			}
		}
		out[pool.Token] = pending.Add(pending, pool.Index.Pending(principal, checkpoint))
	}
	return out, nil
}

// EmergencyDisable permanently stops conversions. Claims stay available.
func (e *Engine) EmergencyDisable(caller crypto.Address) error {
	d, err := e.governed(caller)
	if err != nil {
		return err
	}
	if d.Status == StatusDisabled {
		return ErrAlreadyDisabled
	}
	d.Status = StatusDisabled
	if err := e.state.PutDistributor(d); err != nil {
		return err
	}
	e.emitter.Emit(events.DistributorDisabled{Caller: caller})
	return nil
}

// EmergencySweep moves the distributor's whole balance of token to to.
// Sweeping a reward pool token is only possible once disabled and ends the
// pool: its pending rewards are settled off-ledger by the recipient.
func (e *Engine) EmergencySweep(caller crypto.Address, token string, to crypto.Address) (*big.Int, error) {
	d, err := e.governed(caller)
	if err != nil {
		return nil, err
	}
	token = normalizeToken(token)
	if token == "" {
		return nil, errTokenRequired
	}
	if to.IsZero() {
		return nil, fmt.Errorf("%w: sweep recipient required", coreerrors.ErrInvalidAmount)
	}
	pool := d.Pool(token)
	if pool != nil && !pool.Swept && d.Status != StatusDisabled {
		return nil, ErrSweepRequiresDisabled
	}
	amount, err := e.bank.BalanceOf(token, e.address)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 && (pool == nil || pool.Swept) {
		return nil, ErrNothingToSweep
	}
	if amount.Sign() > 0 {
		if err := e.bank.Transfer(token, e.address, to, amount); err != nil {
			return nil, err
		}
	}
	if pool != nil && !pool.Swept {
		pool.Swept = true
		pool.Frozen = true
		pool.Balance.SetInt64(0)
		pool.Undistributed.SetInt64(0)
		if err := e.state.PutDistributor(d); err != nil {
			return nil, err
		}
	}
	e.emitter.Emit(events.DistributorSwept{Token: token, To: to, Amount: amount, PoolToken: pool != nil})
	return amount, nil
}

// MigrateTargetToken freezes the active pool and directs future conversions
// into token. Frozen pools remain claimable.
func (e *Engine) MigrateTargetToken(caller crypto.Address, token string) error {
	d, err := e.governed(caller)
	if err != nil {
		return err
	}
	if d.Status != StatusActive {
		return ErrDisabled
	}
	token = normalizeToken(token)
	if token == "" {
		return errTokenRequired
	}
	if token == d.TargetToken {
		return ErrSameTargetToken
	}
	previous := d.TargetToken
	if current := d.ActivePool(); current != nil {
		current.Frozen = true
	}
	pool := d.Pool(token)
	if pool != nil && pool.Swept {
		return fmt.Errorf("%w: pool %s was swept", ErrDisabled, token)
	}
	if pool == nil {
		pool = newPool(token, e.now)
	} else {
		d.Pools = removePool(d.Pools, token)
		pool.Frozen = false
	}
	d.Pools = append(d.Pools, pool)
	d.TargetToken = token
	if err := e.state.PutDistributor(d); err != nil {
		return err
	}
	e.emitter.Emit(events.TargetMigrated{From: previous, To: token})
	return nil
}

// PermitRewardToken whitelists a farm reward token for conversion.
func (e *Engine) PermitRewardToken(caller crypto.Address, token string) error {
	d, err := e.governed(caller)
	if err != nil {
		return err
	}
	token = normalizeToken(token)
	if token == "" {
		return errTokenRequired
	}
	if d.Permitted(token) {
		return nil
	}
	d.PermittedFarmTokens = append(d.PermittedFarmTokens, token)
	if err := e.state.PutDistributor(d); err != nil {
		return err
	}
	e.emitter.Emit(events.RewardTokenPermitted{Token: token})
	return nil
}

// TargetToken returns the token new conversions are paid in.
func (e *Engine) TargetToken() (string, error) {
	if e == nil || e.state == nil {
		return "", errNilState
	}
	d, err := e.load()
	if err != nil {
		return "", err
	}
	return d.TargetToken, nil
}

// TokenOut is the token depositors receive when harvesting; it always
// matches TargetToken.
func (e *Engine) TokenOut() (string, error) {
	return e.TargetToken()
}

// Snapshot returns a copy of the distributor state.
func (e *Engine) Snapshot() (*Distributor, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	d, err := e.load()
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Claim returns the stored claim of user, or nil when none exists.
func (e *Engine) Claim(user crypto.Address) (*Claim, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.DistributorClaim(user)
}

func (e *Engine) governed(caller crypto.Address) (*Distributor, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	roles, err := e.params.Roles()
	if err != nil {
		return nil, err
	}
	if err := params.RequireGovernance(roles, caller); err != nil {
		return nil, err
	}
	return e.load()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil || e.shares == nil || e.params == nil || e.strategies == nil {
		return errNilDeps
	}
	return nil
}

func (e *Engine) load() (*Distributor, error) {
	d, err := e.state.Distributor()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotInitialized
	}
	d.ensure()
	return d, nil
}

func removePool(pools []*Pool, token string) []*Pool {
	out := pools[:0]
	for _, pool := range pools {
		if pool.Token != token {
			out = append(out, pool)
		}
	}
	return out
}
