package vaultd

import (
	"math/big"
	"time"

	"yieldredirect/native/distributor"
	"yieldredirect/native/params"
	"yieldredirect/native/vault"
)

// Amounts are rendered as decimal strings so clients never lose precision.

type holdingsView struct {
	Idle           string `json:"idle"`
	Strategy       string `json:"strategy"`
	Total          string `json:"total"`
	TotalDeposited string `json:"totalDeposited"`
}

type proposalView struct {
	Strategy   string    `json:"strategy"`
	ProposedAt time.Time `json:"proposedAt"`
	ReadyAt    time.Time `json:"readyAt"`
}

type vaultView struct {
	Token          string        `json:"token"`
	Strategy       string        `json:"strategy"`
	Active         bool          `json:"active"`
	TotalDeposited string        `json:"totalDeposited"`
	FeesCollected  string        `json:"feesCollected"`
	Proposal       *proposalView `json:"proposal,omitempty"`
	Holdings       holdingsView  `json:"holdings"`
}

func newVaultView(v *vault.Vault, h *vault.Holdings, delay time.Duration) vaultView {
	view := vaultView{
		Token:          v.Token,
		Strategy:       v.Strategy,
		Active:         v.Active,
		TotalDeposited: amount(v.TotalDeposited),
		FeesCollected:  amount(v.FeesCollected),
	}
	if v.Proposal != nil {
		view.Proposal = &proposalView{
			Strategy:   v.Proposal.Strategy,
			ProposedAt: v.Proposal.ProposedAt,
			ReadyAt:    v.Proposal.ReadyAt(delay),
		}
	}
	if h != nil {
		view.Holdings = holdingsView{
			Idle:           amount(h.Idle),
			Strategy:       amount(h.Strategy),
			Total:          amount(h.Total),
			TotalDeposited: amount(h.TotalDeposited),
		}
	}
	return view
}

type poolView struct {
	Token         string    `json:"token"`
	Index         string    `json:"index"`
	Balance       string    `json:"balance"`
	Undistributed string    `json:"undistributed"`
	Distributed   string    `json:"distributed"`
	Paid          string    `json:"paid"`
	Frozen        bool      `json:"frozen"`
	Swept         bool      `json:"swept"`
	OpenedAt      time.Time `json:"openedAt"`
}

type epochView struct {
	Number         uint64    `json:"number"`
	Duration       string    `json:"duration"`
	Start          time.Time `json:"start"`
	LastConversion time.Time `json:"lastConversion"`
}

type distributorView struct {
	Status              string     `json:"status"`
	TargetToken         string     `json:"targetToken"`
	Epoch               epochView  `json:"epoch"`
	Pools               []poolView `json:"pools"`
	PermittedFarmTokens []string   `json:"permittedFarmTokens"`
	TotalFees           string     `json:"totalFees"`
}

func newDistributorView(d *distributor.Distributor) distributorView {
	view := distributorView{
		Status:      string(d.Status),
		TargetToken: d.TargetToken,
		Epoch: epochView{
			Number:         d.Window.Number,
			Duration:       d.Window.Duration.String(),
			Start:          d.Window.Start,
			LastConversion: d.Window.LastConversion,
		},
		PermittedFarmTokens: append([]string{}, d.PermittedFarmTokens...),
		TotalFees:           amount(d.TotalFees),
	}
	for _, pool := range d.Pools {
		view.Pools = append(view.Pools, poolView{
			Token:         pool.Token,
			Index:         amount(pool.Index.Value()),
			Balance:       amount(pool.Balance),
			Undistributed: amount(pool.Undistributed),
			Distributed:   amount(pool.Distributed),
			Paid:          amount(pool.Paid),
			Frozen:        pool.Frozen,
			Swept:         pool.Swept,
			OpenedAt:      pool.OpenedAt,
		})
	}
	return view
}

type paramsView struct {
	CallFeeBps        uint32   `json:"callFeeBps"`
	ProfitFeeBps      uint32   `json:"profitFeeBps"`
	WithdrawalFeeBps  uint32   `json:"withdrawalFeeBps"`
	EpochDuration     string   `json:"epochDuration"`
	MigrationDelay    string   `json:"migrationDelay"`
	TVLCap            string   `json:"tvlCap"`
	Governance        string   `json:"governance"`
	Keepers           []string `json:"keepers"`
	FeeRecipient      string   `json:"feeRecipient"`
	VaultPaused       bool     `json:"vaultPaused"`
	DistributorPaused bool     `json:"distributorPaused"`
}

func newParamsView(p params.Parameters, r params.Roles, pauses params.Pauses) paramsView {
	view := paramsView{
		CallFeeBps:        p.CallFeeBps,
		ProfitFeeBps:      p.ProfitFeeBps,
		WithdrawalFeeBps:  p.WithdrawalFeeBps,
		EpochDuration:     p.EpochDuration.String(),
		MigrationDelay:    p.MigrationDelay.String(),
		TVLCap:            amount(p.TVLCap),
		Governance:        r.Governance.String(),
		Keepers:           []string{},
		FeeRecipient:      r.FeeRecipient.String(),
		VaultPaused:       pauses.Vault,
		DistributorPaused: pauses.Distributor,
	}
	for _, keeper := range r.Keepers {
		view.Keepers = append(view.Keepers, keeper.String())
	}
	return view
}

type accountView struct {
	Address     string            `json:"address"`
	Principal   string            `json:"principal"`
	LastDeposit time.Time         `json:"lastDeposit"`
	Balance     string            `json:"balance"`
	Rewards     string            `json:"rewards"`
	ByToken     map[string]string `json:"rewardsByToken"`
}

type payoutView struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func newPayoutViews(payouts []distributor.Payout) []payoutView {
	out := make([]payoutView, 0, len(payouts))
	for _, payout := range payouts {
		out = append(out, payoutView{Token: payout.Token, Amount: amount(payout.Amount)})
	}
	return out
}

type conversionView struct {
	Strategy  string `json:"strategy"`
	Token     string `json:"token"`
	Converted string `json:"converted"`
	Fee       string `json:"fee"`
	CallFee   string `json:"callFee"`
	Net       string `json:"net"`
	Index     string `json:"index"`
	Epoch     uint64 `json:"epoch"`
	Credited  bool   `json:"credited"`
}

func newConversionView(c *distributor.Conversion) conversionView {
	return conversionView{
		Strategy:  c.Strategy,
		Token:     c.Token,
		Converted: amount(c.Converted),
		Fee:       amount(c.Fee),
		CallFee:   amount(c.CallFee),
		Net:       amount(c.Net),
		Index:     amount(c.Index),
		Epoch:     c.Epoch,
		Credited:  c.Credited,
	}
}

type withdrawalView struct {
	Amount   string `json:"amount"`
	Fee      string `json:"fee"`
	Received string `json:"received"`
	Unstaked string `json:"unstaked"`
}

func newWithdrawalView(w *vault.Withdrawal) withdrawalView {
	return withdrawalView{
		Amount:   amount(w.Amount),
		Fee:      amount(w.Fee),
		Received: amount(w.Received),
		Unstaked: amount(w.Unstaked),
	}
}

func amountMap(in map[string]*big.Int) map[string]string {
	out := make(map[string]string, len(in))
	for token, value := range in {
		out[token] = amount(value)
	}
	return out
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
