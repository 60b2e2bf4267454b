package vaultd

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"yieldredirect/core/types"
	"yieldredirect/crypto"
	"yieldredirect/integrations/exports"
	"yieldredirect/native/params"
	"yieldredirect/storage/audit"
)

type amountRequest struct {
	Amount string `json:"amount"`
}

type approveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type parametersRequest struct {
	CallFeeBps       uint32 `json:"callFeeBps"`
	ProfitFeeBps     uint32 `json:"profitFeeBps"`
	WithdrawalFeeBps uint32 `json:"withdrawalFeeBps"`
}

type durationRequest struct {
	Duration string `json:"duration"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
	Impaired bool   `json:"impaired"`
}

type tokenRequest struct {
	Token string `json:"token"`
	To    string `json:"to"`
}

type operationResponse struct {
	Receipt *types.Receipt `json:"receipt"`
	Result  any            `json:"result,omitempty"`
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Vault()
	if err != nil {
		s.writeError(w, err)
		return
	}
	holdings, err := s.svc.Holdings()
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.svc.Parameters()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultView(v, holdings, p.MigrationDelay))
}

func (s *Server) handleDepositors(w http.ResponseWriter, r *http.Request) {
	depositors, err := s.svc.Depositors()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(depositors))
	for _, depositor := range depositors {
		out = append(out, map[string]string{
			"address":   depositor.Address.String(),
			"principal": amount(depositor.Principal),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Parameters()
	if err != nil {
		s.writeError(w, err)
		return
	}
	roles, err := s.svc.Roles()
	if err != nil {
		s.writeError(w, err)
		return
	}
	pauses, err := s.svc.Pauses()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newParamsView(p, roles, pauses))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "invalid address")
		return
	}
	summary, err := s.svc.Account(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	view := accountView{
		Address:   addr.String(),
		Principal: "0",
		Balance:   amount(summary.Balance),
		Rewards:   amount(summary.Rewards),
		ByToken:   amountMap(summary.ByToken),
	}
	if summary.Depositor != nil {
		view.Principal = amount(summary.Depositor.Principal)
		view.LastDeposit = summary.Depositor.LastDeposit
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "invalid address")
		return
	}
	token := strings.ToUpper(chi.URLParam(r, "token"))
	balance, err := s.svc.Balance(token, addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	allowance, err := s.svc.Allowance(token, addr, s.svc.VaultAddress())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":          token,
		"balance":        amount(balance),
		"vaultAllowance": amount(allowance),
	})
}

func (s *Server) handleDistributor(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Distributor()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDistributorView(d))
}

func (s *Server) auditFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit log disabled", Kind: "not_found"})
		return audit.Filter{}, false
	}
	query := r.URL.Query()
	filter := audit.Filter{
		Operation: query.Get("operation"),
		Token:     query.Get("token"),
	}
	if raw := query.Get("account"); raw != "" {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			writeBadRequest(w, "invalid account")
			return filter, false
		}
		filter.Account = addr.String()
	}
	for key, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if raw := query.Get(key); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeBadRequest(w, "invalid %s", key)
				return filter, false
			}
			*dst = parsed
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "invalid limit")
			return filter, false
		}
		filter.Limit = limit
	}
	return filter, true
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.auditFilter(w, r)
	if !ok {
		return
	}
	receipts, err := s.audit.Receipts(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if receipts == nil {
		receipts = []*types.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.auditFilter(w, r)
	if !ok {
		return
	}
	payouts, err := s.audit.Payouts(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var (
		data        []byte
		checksum    string
		contentType string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "jsonl":
		data, checksum, err = exports.PayoutsJSONL(payouts)
		contentType = "application/x-ndjson"
	case "csv":
		data, checksum, err = exports.PayoutsCSV(payouts)
		contentType = "text/csv"
	case "parquet":
		data, checksum, err = exports.PayoutsParquet(payouts)
		contentType = "application/vnd.apache.parquet"
	default:
		writeBadRequest(w, "unsupported format %q", format)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-SHA256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	spender := s.svc.VaultAddress()
	if req.Spender != "" {
		if spender, err = crypto.ParseAddress(req.Spender); err != nil {
			writeBadRequest(w, "invalid spender")
			return
		}
	}
	token := req.Token
	if token == "" {
		v, err := s.svc.Vault()
		if err != nil {
			s.writeError(w, err)
			return
		}
		token = v.Token
	}
	receipt, err := s.svc.Approve(r.Context(), owner, token, spender, value)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	value, ok := amountFromBody(w, r)
	if !ok {
		return
	}
	depositor, receipt, err := s.svc.Deposit(r.Context(), from, value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, map[string]string{"principal": amount(depositor.Principal)}, nil)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	value, ok := amountFromBody(w, r)
	if !ok {
		return
	}
	withdrawal, receipt, err := s.svc.Withdraw(r.Context(), from, value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, newWithdrawalView(withdrawal), nil)
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	withdrawal, receipt, err := s.svc.EmergencyWithdrawAll(r.Context(), from)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, newWithdrawalView(withdrawal), nil)
}

func (s *Server) handleTransferShares(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	to, err := crypto.ParseAddress(req.To)
	if err != nil {
		writeBadRequest(w, "invalid recipient")
		return
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	receipt, err := s.svc.TransferShares(r.Context(), from, to, value)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	payouts, receipt, err := s.svc.Harvest(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, newPayoutViews(payouts), nil)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	payouts, receipt, err := s.svc.ClaimRewards(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, newPayoutViews(payouts), nil)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	keeper, ok := caller(w, r)
	if !ok {
		return
	}
	conversion, receipt, err := s.svc.ConvertProfits(r.Context(), keeper)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, newConversionView(conversion), nil)
}

func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req parametersRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	receipt, err := s.svc.SetParameters(r.Context(), gov, req.CallFeeBps, req.ProfitFeeBps, req.WithdrawalFeeBps)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleSetEpochDuration(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	d, ok := durationFromBody(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.SetEpochDuration(r.Context(), gov, d)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleSetMigrationDelay(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	d, ok := durationFromBody(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.SetMigrationDelay(r.Context(), gov, d)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleSetTVLCap(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	value, ok := amountFromBody(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.SetTVLCap(r.Context(), gov, value)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleAddKeeper(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addressFromBody(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.AddKeeper(r.Context(), gov, addr)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleRemoveKeeper(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	addr, err := crypto.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, "invalid address")
		return
	}
	receipt, err := s.svc.RemoveKeeper(r.Context(), gov, addr)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := addressFromBody(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.SetFeeRecipient(r.Context(), gov, addr)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleSetPauses(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req params.Pauses
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	receipt, err := s.svc.SetPauses(r.Context(), gov, req)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleProposeStrategy(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req strategyRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	proposal, receipt, err := s.svc.ProposeStrategy(r.Context(), gov, req.Strategy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, proposal, nil)
}

func (s *Server) handleUpgradeStrategy(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	moved, receipt, err := s.svc.UpgradeStrategy(r.Context(), gov)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, map[string]string{"moved": amount(moved)}, nil)
}

func (s *Server) handleSetImpaired(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req strategyRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	receipt, err := s.svc.SetStrategyImpaired(r.Context(), gov, req.Strategy, req.Impaired)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	recalled, receipt, err := s.svc.Deactivate(r.Context(), gov)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, map[string]string{"recalled": amount(recalled)}, nil)
}

func (s *Server) handleEmergencyDisable(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.EmergencyDisable(r.Context(), gov)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handleEmergencySweep(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	to, err := crypto.ParseAddress(req.To)
	if err != nil {
		writeBadRequest(w, "invalid recipient")
		return
	}
	swept, receipt, err := s.svc.EmergencySweep(r.Context(), gov, req.Token, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, receipt, map[string]string{"swept": amount(swept)}, nil)
}

func (s *Server) handleMigrateTarget(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	receipt, err := s.svc.MigrateTargetToken(r.Context(), gov, req.Token)
	s.respond(w, receipt, nil, err)
}

func (s *Server) handlePermitToken(w http.ResponseWriter, r *http.Request) {
	gov, ok := caller(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return
	}
	receipt, err := s.svc.PermitRewardToken(r.Context(), gov, req.Token)
	s.respond(w, receipt, nil, err)
}

func (s *Server) respond(w http.ResponseWriter, receipt *types.Receipt, result any, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operationResponse{Receipt: receipt, Result: result})
}

func amountFromBody(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return nil, false
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, "%v", err)
		return nil, false
	}
	return value, true
}

func durationFromBody(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	var req durationRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(req.Duration))
	if err != nil {
		writeBadRequest(w, "invalid duration %q", req.Duration)
		return 0, false
	}
	return d, true
}

func addressFromBody(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	var req addressRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "%v", err)
		return crypto.Address{}, false
	}
	addr, err := crypto.ParseAddress(req.Address)
	if err != nil {
		writeBadRequest(w, "invalid address")
		return crypto.Address{}, false
	}
	return addr, true
}
