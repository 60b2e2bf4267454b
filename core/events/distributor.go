package events

import (
	"math/big"
	"strconv"

	"yieldredirect/core/types"
	"yieldredirect/crypto"
)

const (
	// TypeProfitsConverted is emitted when harvested profit is credited to a pool.
	TypeProfitsConverted = "distributor.profitsConverted"
	// TypeRewardsClaimed is emitted per token paid to a depositor.
	TypeRewardsClaimed      = "distributor.rewardsClaimed"
	TypeDistributorDisabled = "distributor.disabled"
	TypeDistributorSwept    = "distributor.swept"
	TypeTargetMigrated      = "distributor.targetMigrated"
	TypeRewardTokenPermit   = "distributor.rewardTokenPermitted"
)

// ProfitsConverted summarises one conversion.
type ProfitsConverted struct {
	Caller    crypto.Address
	Strategy  string
	Token     string
	Converted *big.Int
	Fee       *big.Int
	CallFee   *big.Int
	Net       *big.Int
	Index     *big.Int
	Epoch     uint64
	Credited  bool
}

func (ProfitsConverted) EventType() string { return TypeProfitsConverted }

func (e ProfitsConverted) Event() *types.Event {
	return &types.Event{Type: TypeProfitsConverted, Attributes: map[string]string{
		"caller":    formatAddress(e.Caller),
		"strategy":  e.Strategy,
		"token":     normalizeAsset(e.Token),
		"converted": formatAmount(e.Converted),
		"fee":       formatAmount(e.Fee),
		"callFee":   formatAmount(e.CallFee),
		"net":       formatAmount(e.Net),
		"index":     formatAmount(e.Index),
		"epoch":     strconv.FormatUint(e.Epoch, 10),
		"credited":  strconv.FormatBool(e.Credited),
	}}
}

// RewardsClaimed captures a reward payout.
type RewardsClaimed struct {
	Account crypto.Address
	Token   string
	Amount  *big.Int
	// Implicit marks payouts made on behalf of the user during a deposit.
	Implicit bool
}

func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

func (e RewardsClaimed) Event() *types.Event {
	return &types.Event{Type: TypeRewardsClaimed, Attributes: map[string]string{
		"account":  formatAddress(e.Account),
		"token":    normalizeAsset(e.Token),
		"amount":   formatAmount(e.Amount),
		"implicit": strconv.FormatBool(e.Implicit),
	}}
}

// DistributorDisabled marks the terminal emergency state.
type DistributorDisabled struct {
	Caller crypto.Address
}

func (DistributorDisabled) EventType() string { return TypeDistributorDisabled }

func (e DistributorDisabled) Event() *types.Event {
	return &types.Event{Type: TypeDistributorDisabled, Attributes: map[string]string{
		"caller": formatAddress(e.Caller),
	}}
}

// DistributorSwept records an emergency sweep.
type DistributorSwept struct {
	Token     string
	To        crypto.Address
	Amount    *big.Int
	PoolToken bool
}

func (DistributorSwept) EventType() string { return TypeDistributorSwept }

func (e DistributorSwept) Event() *types.Event {
	return &types.Event{Type: TypeDistributorSwept, Attributes: map[string]string{
		"token":     normalizeAsset(e.Token),
		"to":        formatAddress(e.To),
		"amount":    formatAmount(e.Amount),
		"poolToken": strconv.FormatBool(e.PoolToken),
	}}
}

// TargetMigrated records a switch of the reward asset.
type TargetMigrated struct {
	From string
	To   string
}

func (TargetMigrated) EventType() string { return TypeTargetMigrated }

func (e TargetMigrated) Event() *types.Event {
	return &types.Event{Type: TypeTargetMigrated, Attributes: map[string]string{
		"from": normalizeAsset(e.From),
		"to":   normalizeAsset(e.To),
	}}
}

// RewardTokenPermitted records a farm token whitelisting.
type RewardTokenPermitted struct {
	Token string
}

func (RewardTokenPermitted) EventType() string { return TypeRewardTokenPermit }

func (e RewardTokenPermitted) Event() *types.Event {
	return &types.Event{Type: TypeRewardTokenPermit, Attributes: map[string]string{
		"token": normalizeAsset(e.Token),
	}}
}
