package params

import (
	"fmt"
	"strconv"

	"yieldredirect/core/epoch"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

// Validate is the single gate every parameter setter passes through. It
// returns a *errors.ParamViolation describing the first bound broken.
func Validate(p Parameters) error {
	if p.ProfitFeeBps >= ProfitFeeCeilingBps {
		return violation("profit_fee_bps", uintString(p.ProfitFeeBps), fmt.Sprintf("< %d", ProfitFeeCeilingBps), coreerrors.ErrProfitFeeCeiling)
	}
	if p.CallFeeBps > CallFeeCeilingBps {
		return violation("call_fee_bps", uintString(p.CallFeeBps), fmt.Sprintf("<= %d", CallFeeCeilingBps), coreerrors.ErrCallFeeCeiling)
	}
	if p.WithdrawalFeeBps >= WithdrawalFeeCeilingBps {
		return violation("withdrawal_fee_bps", uintString(p.WithdrawalFeeBps), fmt.Sprintf("< %d", WithdrawalFeeCeilingBps), coreerrors.ErrWithdrawalFeeCeiling)
	}
	if p.EpochDuration <= 0 || p.EpochDuration > epoch.MaxDuration {
		return violation("epoch_duration", strconv.FormatInt(int64(p.EpochDuration.Seconds()), 10)+"s", fmt.Sprintf("(0, %d]s", int64(epoch.MaxDuration.Seconds())), coreerrors.ErrEpochDurationBound)
	}
	if p.MigrationDelay <= 0 {
		return violation("migration_delay", p.MigrationDelay.String(), "> 0", coreerrors.ErrMigrationDelayBound)
	}
	if p.TVLCap != nil && p.TVLCap.Sign() < 0 {
		return violation("tvl_cap", p.TVLCap.String(), ">= 0", coreerrors.ErrInvalidParameter)
	}
	return nil
}

// ValidateRoles ensures the privileged principals are set.
func ValidateRoles(r Roles) error {
	if r.Governance.IsZero() {
		return violation("governance", "", "non-empty address", coreerrors.ErrInvalidParameter)
	}
	if r.FeeRecipient.IsZero() {
		return violation("fee_recipient", "", "non-empty address", coreerrors.ErrInvalidParameter)
	}
	return nil
}

// RequireGovernance fails unless caller is the governance principal.
func RequireGovernance(r Roles, caller crypto.Address) error {
	if caller.IsZero() || !caller.Equal(r.Governance) {
		return fmt.Errorf("%w: governance required", coreerrors.ErrUnauthorized)
	}
	return nil
}

// RequireKeeper fails unless caller is governance or a listed keeper.
func RequireKeeper(r Roles, caller crypto.Address) error {
	if caller.IsZero() {
		return fmt.Errorf("%w: keeper required", coreerrors.ErrUnauthorized)
	}
	if caller.Equal(r.Governance) || r.IsKeeper(caller) {
		return nil
	}
	return fmt.Errorf("%w: keeper required", coreerrors.ErrUnauthorized)
}

func violation(field, value, limit string, err error) error {
	return &coreerrors.ParamViolation{Field: field, Value: value, Limit: limit, Err: err}
}

func uintString(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
