package strategy

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

// FarmConfig describes a simulated yield source.
type FarmConfig struct {
	ID                string
	Token             string
	FarmToken         string
	EmissionPerSecond *big.Int
	// Price converts one farm token unit into target token units.
	Price *big.Rat
}

// Farm stakes the deposit token with an emission-based yield source and sells
// the emitted farm token into the requested target token at a fixed price.
type Farm struct {
	cfg     FarmConfig
	address crypto.Address
}

// NewFarm validates cfg and derives the custody address from the id.
func NewFarm(cfg FarmConfig) (*Farm, error) {
	cfg.ID = NormalizeID(cfg.ID)
	cfg.Token = strings.ToUpper(strings.TrimSpace(cfg.Token))
	cfg.FarmToken = strings.ToUpper(strings.TrimSpace(cfg.FarmToken))
	if cfg.ID == "" || cfg.Token == "" || cfg.FarmToken == "" {
		return nil, errMissingConfig
	}
	if cfg.EmissionPerSecond == nil || cfg.EmissionPerSecond.Sign() < 0 {
		return nil, fmt.Errorf("%w: emission must be non-negative", errMissingConfig)
	}
	if cfg.Price == nil || cfg.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", errMissingConfig)
	}
	cfg.EmissionPerSecond = new(big.Int).Set(cfg.EmissionPerSecond)
	cfg.Price = new(big.Rat).Set(cfg.Price)
	return &Farm{cfg: cfg, address: crypto.ModuleAddress("strategy/" + cfg.ID)}, nil
}

func (f *Farm) ID() string              { return f.cfg.ID }
func (f *Farm) Address() crypto.Address { return f.address }
func (f *Farm) Token() string           { return f.cfg.Token }
func (f *Farm) FarmToken() string       { return f.cfg.FarmToken }

func (f *Farm) load(env Env) (*Record, error) {
	if err := env.ready(); err != nil {
		return nil, err
	}
	record, err := env.State.StrategyRecord(f.cfg.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = newRecord(f.cfg.ID)
		record.LastAccrual = env.Now
	}
	record.ensure()
	return record, nil
}

// accrue folds emissions since the last touch into the record.
func (f *Farm) accrue(env Env, record *Record) {
	if record.Staked.Sign() > 0 && env.Now.After(record.LastAccrual) {
		elapsed := int64(env.Now.Sub(record.LastAccrual).Seconds())
		if elapsed > 0 {
			emitted := new(big.Int).Mul(f.cfg.EmissionPerSecond, big.NewInt(elapsed))
			record.Accrued.Add(record.Accrued, emitted)
			record.LastAccrual = record.LastAccrual.Add(time.Duration(elapsed) * time.Second)
		}
		return
	}
	if env.Now.After(record.LastAccrual) {
		record.LastAccrual = env.Now
	}
}

func (f *Farm) Stake(env Env, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	record, err := f.load(env)
	if err != nil {
		return err
	}
	if record.Impaired {
		return ErrStrategyImpaired
	}
	held, err := env.Bank.BalanceOf(f.cfg.Token, f.address)
	if err != nil {
		return err
	}
	if held.Cmp(new(big.Int).Add(record.Staked, amount)) < 0 {
		return fmt.Errorf("%w: strategy custody below staked amount", coreerrors.ErrInsufficientBalance)
	}
	f.accrue(env, record)
	record.Staked.Add(record.Staked, amount)
	return env.State.PutStrategyRecord(record)
}

func (f *Farm) Unstake(env Env, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	record, err := f.load(env)
	if err != nil {
		return nil, err
	}
	if record.Impaired {
		return nil, ErrStrategyImpaired
	}
	f.accrue(env, record)
	actual := new(big.Int).Set(amount)
	if actual.Cmp(record.Staked) > 0 {
		actual.Set(record.Staked)
	}
	if actual.Sign() == 0 {
		return actual, env.State.PutStrategyRecord(record)
	}
	if err := env.Bank.Transfer(f.cfg.Token, f.address, env.Vault, actual); err != nil {
		return nil, err
	}
	record.Staked.Sub(record.Staked, actual)
	if err := env.State.PutStrategyRecord(record); err != nil {
		return nil, err
	}
	return actual, nil
}

func (f *Farm) EmergencyExit(env Env, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount
	}
	record, err := f.load(env)
	if err != nil {
		return nil, err
	}
	f.accrue(env, record)
	actual := new(big.Int).Set(amount)
	if actual.Cmp(record.Staked) > 0 {
		actual.Set(record.Staked)
	}
	if actual.Sign() == 0 {
		return actual, env.State.PutStrategyRecord(record)
	}
	if err := env.Bank.Transfer(f.cfg.Token, f.address, env.Vault, actual); err != nil {
		return nil, err
	}
	forfeited := new(big.Int).Mul(record.Accrued, actual)
	forfeited.Quo(forfeited, record.Staked)
	record.Accrued.Sub(record.Accrued, forfeited)
	record.Staked.Sub(record.Staked, actual)
	if err := env.State.PutStrategyRecord(record); err != nil {
		return nil, err
	}
	return actual, nil
}

func (f *Farm) HarvestToTargetToken(env Env, targetToken string, recipient crypto.Address) (*big.Int, error) {
	record, err := f.load(env)
	if err != nil {
		return nil, err
	}
	if recipient.IsZero() || strings.TrimSpace(targetToken) == "" {
		return nil, errMissingConfig
	}
	f.accrue(env, record)
	harvested := new(big.Int).Set(record.Accrued)
	if harvested.Sign() == 0 {
		return big.NewInt(0), env.State.PutStrategyRecord(record)
	}
	// Claim the farm rewards into custody, then sell them.
	if err := env.Bank.Mint(f.cfg.FarmToken, f.address, harvested); err != nil {
		return nil, err
	}
	if err := env.Bank.Burn(f.cfg.FarmToken, f.address, harvested); err != nil {
		return nil, err
	}
	converted := f.quote(harvested)
	if converted.Sign() > 0 {
		if err := env.Bank.Mint(targetToken, recipient, converted); err != nil {
			return nil, err
		}
	}
	record.Accrued.SetInt64(0)
	record.Harvested.Add(record.Harvested, harvested)
	record.Converted.Add(record.Converted, converted)
	if err := env.State.PutStrategyRecord(record); err != nil {
		return nil, err
	}
	return converted, nil
}

func (f *Farm) EstimatedTotalAssets(env Env) (*big.Int, error) {
	record, err := f.load(env)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(record.Staked), nil
}

// PendingHarvest previews the farm tokens a harvest at env.Now would claim.
func (f *Farm) PendingHarvest(env Env) (*big.Int, error) {
	record, err := f.load(env)
	if err != nil {
		return nil, err
	}
	f.accrue(env, record)
	return new(big.Int).Set(record.Accrued), nil
}

// SetImpaired flags the yield source as unable to return funds.
func (f *Farm) SetImpaired(env Env, impaired bool) error {
	record, err := f.load(env)
	if err != nil {
		return err
	}
	f.accrue(env, record)
	record.Impaired = impaired
	return env.State.PutStrategyRecord(record)
}

func (f *Farm) quote(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, f.cfg.Price.Num())
	return out.Quo(out, f.cfg.Price.Denom())
}
