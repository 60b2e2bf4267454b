package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

var (
	errNilState     = errors.New("bank: state not configured")
	errTokenMissing = errors.New("bank: token required")
	errZeroAddress  = errors.New("bank: address required")
)

// State persists balances, allowances and supply per token.
type State interface {
	BankBalance(token string, addr crypto.Address) (*big.Int, error)
	SetBankBalance(token string, addr crypto.Address, amount *big.Int) error
	BankAllowance(token string, owner, spender crypto.Address) (*big.Int, error)
	SetBankAllowance(token string, owner, spender crypto.Address, amount *big.Int) error
	BankSupply(token string) (*big.Int, error)
	SetBankSupply(token string, amount *big.Int) error
}

// Ledger implements fungible token semantics for every asset the vault
// touches: the deposit token, farm reward tokens and target tokens.
type Ledger struct {
	state State
}

func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// SetState rebinds the ledger to a new state backend.
func (l *Ledger) SetState(state State) {
	if l == nil {
		return
	}
	l.state = state
}

func (l *Ledger) ready(token string) (string, error) {
	if l == nil || l.state == nil {
		return "", errNilState
	}
	normalized := NormalizeToken(token)
	if normalized == "" {
		return "", errTokenMissing
	}
	return normalized, nil
}

// NormalizeToken canonicalises token identifiers.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (l *Ledger) BalanceOf(token string, addr crypto.Address) (*big.Int, error) {
	token, err := l.ready(token)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.BankBalance(token, addr)
	if err != nil {
		return nil, err
	}
	return copyAmount(balance), nil
}

func (l *Ledger) Allowance(token string, owner, spender crypto.Address) (*big.Int, error) {
	token, err := l.ready(token)
	if err != nil {
		return nil, err
	}
	allowance, err := l.state.BankAllowance(token, owner, spender)
	if err != nil {
		return nil, err
	}
	return copyAmount(allowance), nil
}

func (l *Ledger) TotalSupply(token string) (*big.Int, error) {
	token, err := l.ready(token)
	if err != nil {
		return nil, err
	}
	supply, err := l.state.BankSupply(token)
	if err != nil {
		return nil, err
	}
	return copyAmount(supply), nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	token, err := l.ready(token)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return errZeroAddress
	}
	fromBalance, err := l.state.BankBalance(token, from)
	if err != nil {
		return err
	}
	fromBalance = copyAmount(fromBalance)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", coreerrors.ErrInsufficientBalance, from, fromBalance, token, amount)
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := l.state.BankBalance(token, to)
	if err != nil {
		return err
	}
	if err := l.state.SetBankBalance(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.SetBankBalance(token, to, new(big.Int).Add(copyAmount(toBalance), amount))
}

// Approve sets the allowance spender may pull from owner. Zero clears it.
func (l *Ledger) Approve(token string, owner, spender crypto.Address, amount *big.Int) error {
	token, err := l.ready(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount
	}
	if owner.IsZero() || spender.IsZero() {
		return errZeroAddress
	}
	return l.state.SetBankAllowance(token, owner, spender, new(big.Int).Set(amount))
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming allowance.
func (l *Ledger) TransferFrom(token string, spender, owner, recipient crypto.Address, amount *big.Int) error {
	normalized, err := l.ready(token)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	allowance, err := l.state.BankAllowance(normalized, owner, spender)
	if err != nil {
		return err
	}
	allowance = copyAmount(allowance)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s approved %s %s, needs %s", coreerrors.ErrInsufficientAllowance, owner, allowance, normalized, amount)
	}
	if err := l.Transfer(normalized, owner, recipient, amount); err != nil {
		return err
	}
	return l.state.SetBankAllowance(normalized, owner, spender, new(big.Int).Sub(allowance, amount))
}

// Mint credits new units to an account.
func (l *Ledger) Mint(token string, to crypto.Address, amount *big.Int) error {
	token, err := l.ready(token)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return errZeroAddress
	}
	balance, err := l.state.BankBalance(token, to)
	if err != nil {
		return err
	}
	supply, err := l.state.BankSupply(token)
	if err != nil {
		return err
	}
	if err := l.state.SetBankBalance(token, to, new(big.Int).Add(copyAmount(balance), amount)); err != nil {
		return err
	}
	return l.state.SetBankSupply(token, new(big.Int).Add(copyAmount(supply), amount))
}

// Burn destroys units held by an account.
func (l *Ledger) Burn(token string, from crypto.Address, amount *big.Int) error {
	token, err := l.ready(token)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	balance, err := l.state.BankBalance(token, from)
	if err != nil {
		return err
	}
	balance = copyAmount(balance)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s %s from %s", coreerrors.ErrInsufficientBalance, amount, token, from)
	}
	supply, err := l.state.BankSupply(token)
	if err != nil {
		return err
	}
	supply = copyAmount(supply)
	if supply.Cmp(amount) < 0 {
		supply = new(big.Int).Set(amount)
	}
	if err := l.state.SetBankBalance(token, from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.state.SetBankSupply(token, new(big.Int).Sub(supply, amount))
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return coreerrors.ErrInvalidAmount
	}
	return nil
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
