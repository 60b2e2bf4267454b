package vault

import (
	"math/big"
	"strconv"
	"time"

	"yieldredirect/core/events"
	"yieldredirect/crypto"
	"yieldredirect/native/params"
)

// SetParameters updates the fee parameters. Bounds are enforced by
// params.Validate.
func (e *Engine) SetParameters(caller crypto.Address, callFeeBps, profitFeeBps, withdrawalFeeBps uint32) error {
	return e.updateParameters(caller, "setParameters", func(p *params.Parameters) map[string]string {
		p.CallFeeBps = callFeeBps
		p.ProfitFeeBps = profitFeeBps
		p.WithdrawalFeeBps = withdrawalFeeBps
		return map[string]string{
			"callFeeBps":       strconv.FormatUint(uint64(callFeeBps), 10),
			"profitFeeBps":     strconv.FormatUint(uint64(profitFeeBps), 10),
			"withdrawalFeeBps": strconv.FormatUint(uint64(withdrawalFeeBps), 10),
		}
	})
}

// SetEpochDuration changes the length of the conversion epoch.
func (e *Engine) SetEpochDuration(caller crypto.Address, d time.Duration) error {
	return e.updateParameters(caller, "setEpochDuration", func(p *params.Parameters) map[string]string {
		p.EpochDuration = d
		return map[string]string{"epochDuration": d.String()}
	})
}

// SetMigrationDelay changes the minimum delay between propose and upgrade.
func (e *Engine) SetMigrationDelay(caller crypto.Address, d time.Duration) error {
	return e.updateParameters(caller, "setMigrationDelay", func(p *params.Parameters) map[string]string {
		p.MigrationDelay = d
		return map[string]string{"migrationDelay": d.String()}
	})
}

// SetTVLCap bounds TotalDeposited. Zero removes the cap. Lowering the cap
// below the current total only blocks further deposits.
func (e *Engine) SetTVLCap(caller crypto.Address, limit *big.Int) error {
	return e.updateParameters(caller, "setTvlCap", func(p *params.Parameters) map[string]string {
		if limit == nil {
			p.TVLCap = big.NewInt(0)
		} else {
			p.TVLCap = new(big.Int).Set(limit)
		}
		return map[string]string{"tvlCap": p.TVLCap.String()}
	})
}

func (e *Engine) updateParameters(caller crypto.Address, action string, mutate func(*params.Parameters) map[string]string) error {
	if err := e.requireGovernance(caller); err != nil {
		return err
	}
	p, err := e.params.Parameters()
	if err != nil {
		return err
	}
	values := mutate(&p)
	if err := e.params.SetParameters(p); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultGovernance{Action: action, Values: values})
	return nil
}

// AddKeeper authorises keeper to convert profits.
func (e *Engine) AddKeeper(caller, keeper crypto.Address) error {
	if keeper.IsZero() {
		return errZeroAddress
	}
	return e.updateRoles(caller, "addKeeper", func(r *params.Roles) map[string]string {
		if !r.IsKeeper(keeper) {
			r.Keepers = append(r.Keepers, keeper)
		}
		return map[string]string{"keeper": keeper.String()}
	})
}

// RemoveKeeper revokes keeper.
func (e *Engine) RemoveKeeper(caller, keeper crypto.Address) error {
	return e.updateRoles(caller, "removeKeeper", func(r *params.Roles) map[string]string {
		kept := r.Keepers[:0]
		for _, existing := range r.Keepers {
			if !existing.Equal(keeper) {
				kept = append(kept, existing)
			}
		}
		r.Keepers = kept
		return map[string]string{"keeper": keeper.String()}
	})
}

// SetFeeRecipient redirects protocol and withdrawal fees.
func (e *Engine) SetFeeRecipient(caller, recipient crypto.Address) error {
	if recipient.IsZero() {
		return errZeroAddress
	}
	return e.updateRoles(caller, "setFeeRecipient", func(r *params.Roles) map[string]string {
		r.FeeRecipient = recipient
		return map[string]string{"feeRecipient": recipient.String()}
	})
}

func (e *Engine) updateRoles(caller crypto.Address, action string, mutate func(*params.Roles) map[string]string) error {
	if err := e.requireGovernance(caller); err != nil {
		return err
	}
	roles, err := e.params.Roles()
	if err != nil {
		return err
	}
	values := mutate(&roles)
	if err := e.params.SetRoles(roles); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultGovernance{Action: action, Values: values})
	return nil
}

// UpdatePauses toggles the deposit and conversion circuit breakers.
func (e *Engine) UpdatePauses(caller crypto.Address, pauses params.Pauses) error {
	if err := e.requireGovernance(caller); err != nil {
		return err
	}
	if err := e.params.SetPauses(pauses); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultGovernance{Action: "setPauses", Values: map[string]string{
		"vault":       strconv.FormatBool(pauses.Vault),
		"distributor": strconv.FormatBool(pauses.Distributor),
	}})
	return nil
}
