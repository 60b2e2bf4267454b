package core

import (
	"context"
	"math/big"
	"time"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/core/types"
	"yieldredirect/crypto"
	"yieldredirect/native/distributor"
	"yieldredirect/native/params"
	"yieldredirect/native/strategy"
	"yieldredirect/native/vault"
)

// Approve lets spender pull up to amount of token from owner. Deposits pull
// through the vault's address.
func (s *Service) Approve(ctx context.Context, owner crypto.Address, token string, spender crypto.Address, amount *big.Int) (*types.Receipt, error) {
	return s.execute(ctx, OpApprove, owner, func(x *session) error {
		return x.bank.Approve(token, owner, spender, amount)
	})
}

// Deposit moves amount of the deposit token from caller into the vault.
func (s *Service) Deposit(ctx context.Context, caller crypto.Address, amount *big.Int) (*vault.Depositor, *types.Receipt, error) {
	var out *vault.Depositor
	receipt, err := s.execute(ctx, OpDeposit, caller, func(x *session) error {
		var err error
		out, err = x.vault.Deposit(caller, amount)
		return err
	})
	return out, receipt, err
}

func (s *Service) Withdraw(ctx context.Context, caller crypto.Address, amount *big.Int) (*vault.Withdrawal, *types.Receipt, error) {
	var out *vault.Withdrawal
	receipt, err := s.execute(ctx, OpWithdraw, caller, func(x *session) error {
		var err error
		out, err = x.vault.Withdraw(caller, amount)
		return err
	})
	return out, receipt, err
}

func (s *Service) EmergencyWithdrawAll(ctx context.Context, caller crypto.Address) (*vault.Withdrawal, *types.Receipt, error) {
	var out *vault.Withdrawal
	receipt, err := s.execute(ctx, OpEmergencyWithdrawAll, caller, func(x *session) error {
		var err error
		out, err = x.vault.EmergencyWithdrawAll(caller)
		return err
	})
	return out, receipt, err
}

// Harvest pays the caller's pending rewards across every claimable pool.
func (s *Service) Harvest(ctx context.Context, caller crypto.Address) ([]distributor.Payout, *types.Receipt, error) {
	var out []distributor.Payout
	receipt, err := s.execute(ctx, OpHarvest, caller, func(x *session) error {
		var err error
		out, err = x.distributor.Harvest(caller)
		return err
	})
	return out, receipt, err
}

// ClaimRewards is an alias of Harvest.
func (s *Service) ClaimRewards(ctx context.Context, caller crypto.Address) ([]distributor.Payout, *types.Receipt, error) {
	return s.Harvest(ctx, caller)
}

func (s *Service) ConvertProfits(ctx context.Context, caller crypto.Address) (*distributor.Conversion, *types.Receipt, error) {
	var out *distributor.Conversion
	receipt, err := s.execute(ctx, OpConvertProfits, caller, func(x *session) error {
		var err error
		out, err = x.distributor.ConvertProfits(caller)
		return err
	})
	return out, receipt, err
}

// SetParameters updates the three fee rates in one call.
func (s *Service) SetParameters(ctx context.Context, caller crypto.Address, callFeeBps, profitFeeBps, withdrawalFeeBps uint32) (*types.Receipt, error) {
	return s.execute(ctx, OpSetParameters, caller, func(x *session) error {
		return x.vault.SetParameters(caller, callFeeBps, profitFeeBps, withdrawalFeeBps)
	})
}

func (s *Service) SetEpochDuration(ctx context.Context, caller crypto.Address, d time.Duration) (*types.Receipt, error) {
	return s.execute(ctx, OpSetEpochDuration, caller, func(x *session) error {
		return x.vault.SetEpochDuration(caller, d)
	})
}

func (s *Service) SetMigrationDelay(ctx context.Context, caller crypto.Address, d time.Duration) (*types.Receipt, error) {
	return s.execute(ctx, OpSetMigrationDelay, caller, func(x *session) error {
		return x.vault.SetMigrationDelay(caller, d)
	})
}

// SetTVLCap sets the deposit ceiling; zero removes it.
func (s *Service) SetTVLCap(ctx context.Context, caller crypto.Address, limit *big.Int) (*types.Receipt, error) {
	return s.execute(ctx, OpSetTVLCap, caller, func(x *session) error {
		return x.vault.SetTVLCap(caller, limit)
	})
}

func (s *Service) AddKeeper(ctx context.Context, caller, keeper crypto.Address) (*types.Receipt, error) {
	return s.execute(ctx, OpAddKeeper, caller, func(x *session) error {
		return x.vault.AddKeeper(caller, keeper)
	})
}

func (s *Service) RemoveKeeper(ctx context.Context, caller, keeper crypto.Address) (*types.Receipt, error) {
	return s.execute(ctx, OpRemoveKeeper, caller, func(x *session) error {
		return x.vault.RemoveKeeper(caller, keeper)
	})
}

func (s *Service) SetFeeRecipient(ctx context.Context, caller, recipient crypto.Address) (*types.Receipt, error) {
	return s.execute(ctx, OpSetFeeRecipient, caller, func(x *session) error {
		return x.vault.SetFeeRecipient(caller, recipient)
	})
}

// SetPauses replaces the deposit and conversion pause switches.
func (s *Service) SetPauses(ctx context.Context, caller crypto.Address, pauses params.Pauses) (*types.Receipt, error) {
	return s.execute(ctx, OpSetPauses, caller, func(x *session) error {
		return x.vault.UpdatePauses(caller, pauses)
	})
}

func (s *Service) ProposeStrategy(ctx context.Context, caller crypto.Address, strategyID string) (*vault.Proposal, *types.Receipt, error) {
	var out *vault.Proposal
	receipt, err := s.execute(ctx, OpProposeStrategy, caller, func(x *session) error {
		var err error
		out, err = x.vault.ProposeStrategy(caller, strategyID)
		return err
	})
	return out, receipt, err
}

// UpgradeStrategy commits the pending proposal and returns the amount moved.
func (s *Service) UpgradeStrategy(ctx context.Context, caller crypto.Address) (*big.Int, *types.Receipt, error) {
	var out *big.Int
	receipt, err := s.execute(ctx, OpUpgradeStrategy, caller, func(x *session) error {
		var err error
		out, err = x.vault.UpgradeStrategy(caller)
		return err
	})
	return out, receipt, err
}

// Deactivate recalls the strategy's funds and returns the recalled amount.
func (s *Service) Deactivate(ctx context.Context, caller crypto.Address) (*big.Int, *types.Receipt, error) {
	var out *big.Int
	receipt, err := s.execute(ctx, OpDeactivate, caller, func(x *session) error {
		var err error
		out, err = x.vault.Deactivate(caller)
		return err
	})
	return out, receipt, err
}

func (s *Service) EmergencyDisable(ctx context.Context, caller crypto.Address) (*types.Receipt, error) {
	return s.execute(ctx, OpEmergencyDisable, caller, func(x *session) error {
		return x.distributor.EmergencyDisable(caller)
	})
}

func (s *Service) EmergencySweep(ctx context.Context, caller crypto.Address, token string, to crypto.Address) (*big.Int, *types.Receipt, error) {
	var out *big.Int
	receipt, err := s.execute(ctx, OpEmergencySweep, caller, func(x *session) error {
		var err error
		out, err = x.distributor.EmergencySweep(caller, token, to)
		return err
	})
	return out, receipt, err
}

func (s *Service) MigrateTargetToken(ctx context.Context, caller crypto.Address, token string) (*types.Receipt, error) {
	return s.execute(ctx, OpMigrateTargetToken, caller, func(x *session) error {
		return x.distributor.MigrateTargetToken(caller, token)
	})
}

func (s *Service) PermitRewardToken(ctx context.Context, caller crypto.Address, token string) (*types.Receipt, error) {
	return s.execute(ctx, OpPermitRewardToken, caller, func(x *session) error {
		return x.distributor.PermitRewardToken(caller, token)
	})
}

type impairable interface {
	SetImpaired(env strategy.Env, impaired bool) error
}

// SetStrategyImpaired flags a strategy as unable to return funds. Governance
// uses it to mirror an incident on the yield source.
func (s *Service) SetStrategyImpaired(ctx context.Context, caller crypto.Address, strategyID string, impaired bool) (*types.Receipt, error) {
	return s.execute(ctx, OpSetStrategyImpaired, caller, func(x *session) error {
		roles, err := x.params.Roles()
		if err != nil {
			return err
		}
		if err := params.RequireGovernance(roles, caller); err != nil {
			return err
		}
		strat, err := s.registry.Get(strategyID)
		if err != nil {
			return err
		}
		target, ok := strat.(impairable)
		if !ok {
			return errNotImpaired
		}
		return target.SetImpaired(x.vault.StrategyEnv(), impaired)
	})
}

// TransferShares always fails; positions cannot change hands.
func (s *Service) TransferShares(ctx context.Context, from, to crypto.Address, amount *big.Int) (*types.Receipt, error) {
	return s.execute(ctx, OpTransferShares, from, func(x *session) error {
		return x.vault.TransferShares(from, to, amount)
	})
}

// Vault returns a snapshot of the vault state.
func (s *Service) Vault() (*vault.Vault, error) {
	var out *vault.Vault
	err := s.view(func(x *session) error {
		var err error
		out, err = x.vault.Snapshot()
		return err
	})
	return out, err
}

// Holdings reports idle plus strategy assets.
func (s *Service) Holdings() (*vault.Holdings, error) {
	var out *vault.Holdings
	err := s.view(func(x *session) error {
		var err error
		out, err = x.vault.Holdings()
		return err
	})
	return out, err
}

func (s *Service) Depositor(addr crypto.Address) (*vault.Depositor, error) {
	var out *vault.Depositor
	err := s.view(func(x *session) error {
		var err error
		out, err = x.vault.Depositor(addr)
		return err
	})
	return out, err
}

func (s *Service) Depositors() ([]*vault.Depositor, error) {
	var out []*vault.Depositor
	err := s.view(func(x *session) error {
		var err error
		out, err = x.vault.Depositors()
		return err
	})
	return out, err
}

// Distributor returns a snapshot of the distributor state.
func (s *Service) Distributor() (*distributor.Distributor, error) {
	var out *distributor.Distributor
	err := s.view(func(x *session) error {
		var err error
		out, err = x.distributor.Snapshot()
		return err
	})
	return out, err
}

// Rewards returns the pending reward of user in the current target token.
func (s *Service) Rewards(user crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(func(x *session) error {
		var err error
		out, err = x.distributor.GetUserRewards(user)
		return err
	})
	return out, err
}

// RewardsByToken returns the pending reward of user in every claimable pool.
func (s *Service) RewardsByToken(user crypto.Address) (map[string]*big.Int, error) {
	var out map[string]*big.Int
	err := s.view(func(x *session) error {
		var err error
		out, err = x.distributor.RewardsByToken(user)
		return err
	})
	return out, err
}

func (s *Service) TargetToken() (string, error) {
	var out string
	err := s.view(func(x *session) error {
		var err error
		out, err = x.distributor.TargetToken()
		return err
	})
	return out, err
}

func (s *Service) TokenOut() (string, error) {
	var out string
	err := s.view(func(x *session) error {
		var err error
		out, err = x.distributor.TokenOut()
		return err
	})
	return out, err
}

func (s *Service) Balance(token string, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(func(x *session) error {
		var err error
		out, err = x.bank.BalanceOf(token, addr)
		return err
	})
	return out, err
}

func (s *Service) Allowance(token string, owner, spender crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(func(x *session) error {
		var err error
		out, err = x.bank.Allowance(token, owner, spender)
		return err
	})
	return out, err
}

func (s *Service) Parameters() (params.Parameters, error) {
	var out params.Parameters
	err := s.view(func(x *session) error {
		var err error
		out, err = x.params.Parameters()
		return err
	})
	return out, err
}

func (s *Service) Roles() (params.Roles, error) {
	var out params.Roles
	err := s.view(func(x *session) error {
		var err error
		out, err = x.params.Roles()
		return err
	})
	return out, err
}

func (s *Service) Pauses() (params.Pauses, error) {
	var out params.Pauses
	err := s.view(func(x *session) error {
		var err error
		out, err = x.params.Pauses()
		return err
	})
	return out, err
}

// Claim returns the stored reward claim of user, or nil.
func (s *Service) Claim(user crypto.Address) (*distributor.Claim, error) {
	var out *distributor.Claim
	err := s.view(func(x *session) error {
		var err error
		out, err = x.distributor.Claim(user)
		return err
	})
	return out, err
}

// AccountSummary is a consistent snapshot of one account.
type AccountSummary struct {
	// Depositor is nil when the account holds no position.
	Depositor *vault.Depositor
	// Balance is the wallet balance in the deposit token.
	Balance *big.Int
	// Rewards is the pending reward in the current target token.
	Rewards *big.Int
	ByToken map[string]*big.Int
}

// Account gathers the position, wallet balance and pending rewards of addr
// under a single read lock.
func (s *Service) Account(addr crypto.Address) (*AccountSummary, error) {
	out := &AccountSummary{}
	err := s.view(func(x *session) error {
		depositor, err := x.vault.Depositor(addr)
		switch {
		case err == nil:
			out.Depositor = depositor
		case !coreerrors.Is(err, coreerrors.KindNotFound):
			return err
		}
		v, err := x.vault.Snapshot()
		if err != nil {
			return err
		}
		if out.Balance, err = x.bank.BalanceOf(v.Token, addr); err != nil {
			return err
		}
		if out.Rewards, err = x.distributor.GetUserRewards(addr); err != nil {
			return err
		}
		out.ByToken, err = x.distributor.RewardsByToken(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
