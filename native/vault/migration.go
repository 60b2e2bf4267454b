package vault

import (
	"fmt"
	"math/big"

	"yieldredirect/core/events"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
	"yieldredirect/native/strategy"
)

// ProposeStrategy records strategyID as the migration target. A later
// UpgradeStrategy may commit it once MigrationDelay has elapsed. Proposing
// again replaces the pending proposal and restarts the delay.
func (e *Engine) ProposeStrategy(caller crypto.Address, strategyID string) (*Proposal, error) {
	if err := e.requireGovernance(caller); err != nil {
		return nil, err
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	strat, err := e.strategies.Get(strategyID)
	if err != nil {
		return nil, err
	}
	if strat.Token() != v.Token {
		return nil, fmt.Errorf("%w: %s stakes %s", ErrStrategyTokenMismatch, strat.ID(), strat.Token())
	}
	if strat.ID() == v.Strategy {
		return nil, ErrSameStrategy
	}
	p, err := e.params.Parameters()
	if err != nil {
		return nil, err
	}
	v.Proposal = &Proposal{Strategy: strat.ID(), ProposedAt: e.now}
	if err := e.state.PutVault(v); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultStrategyProposed{
		Strategy:   strat.ID(),
		ProposedAt: e.now,
		ReadyAt:    v.Proposal.ReadyAt(p.MigrationDelay),
	})
	proposal := *v.Proposal
	return &proposal, nil
}

// UpgradeStrategy commits the pending proposal: every asset leaves the old
// strategy and, while the vault is active, is staked with the new one. The
// distributor's accrual state is untouched.
func (e *Engine) UpgradeStrategy(caller crypto.Address) (*big.Int, error) {
	if err := e.requireGovernance(caller); err != nil {
		return nil, err
	}
	v, err := e.load()
	if err != nil {
		return nil, err
	}
	if v.Proposal == nil {
		return nil, ErrNoProposal
	}
	p, err := e.params.Parameters()
	if err != nil {
		return nil, err
	}
	readyAt := v.Proposal.ReadyAt(p.MigrationDelay)
	if e.now.Before(readyAt) {
		return nil, fmt.Errorf("%w: ready in %s", coreerrors.ErrMigrationDelay, readyAt.Sub(e.now))
	}
	next, err := e.strategies.Get(v.Proposal.Strategy)
	if err != nil {
		return nil, err
	}

	migrated := big.NewInt(0)
	previous := v.Strategy
	if previous != "" {
		old, err := e.strategies.Get(previous)
		if err != nil {
			return nil, err
		}
		migrated, err = e.recall(old)
		if err != nil {
			return nil, err
		}
	}
	if v.Active && migrated.Sign() > 0 {
		if err := e.stakeWith(next, v.Token, migrated); err != nil {
			return nil, err
		}
	}

	v.Strategy = next.ID()
	v.Proposal = nil
	if err := e.state.PutVault(v); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultStrategyUpgraded{From: previous, To: next.ID(), Migrated: migrated})
	return migrated, nil
}

func (e *Engine) stakeWith(strat strategy.Strategy, token string, amount *big.Int) error {
	if err := e.bank.Transfer(token, e.address, strat.Address(), amount); err != nil {
		return err
	}
	if err := strat.Stake(e.StrategyEnv(), amount); err != nil {
		return fmt.Errorf("stake %s: %w", strat.ID(), err)
	}
	return nil
}
