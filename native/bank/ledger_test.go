package bank

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

type mockBankState struct {
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	supply     map[string]*big.Int
}

func newMockBankState() *mockBankState {
	return &mockBankState{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		supply:     make(map[string]*big.Int),
	}
}

func (m *mockBankState) BankBalance(token string, addr crypto.Address) (*big.Int, error) {
	if v, ok := m.balances[token+"/"+addr.Key()]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockBankState) SetBankBalance(token string, addr crypto.Address, amount *big.Int) error {
	m.balances[token+"/"+addr.Key()] = new(big.Int).Set(amount)
	return nil
}

func (m *mockBankState) BankAllowance(token string, owner, spender crypto.Address) (*big.Int, error) {
	if v, ok := m.allowances[token+"/"+owner.Key()+"/"+spender.Key()]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockBankState) SetBankAllowance(token string, owner, spender crypto.Address, amount *big.Int) error {
	m.allowances[token+"/"+owner.Key()+"/"+spender.Key()] = new(big.Int).Set(amount)
	return nil
}

func (m *mockBankState) BankSupply(token string) (*big.Int, error) {
	if v, ok := m.supply[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockBankState) SetBankSupply(token string, amount *big.Int) error {
	m.supply[token] = new(big.Int).Set(amount)
	return nil
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = suffix
	return crypto.NewAddress(prefix, raw)
}

func TestTransferMovesBalance(t *testing.T) {
	ledger := NewLedger(newMockBankState())
	alice := makeAddress(crypto.AccountPrefix, 1)
	bob := makeAddress(crypto.AccountPrefix, 2)
	if err := ledger.Mint("lp", alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer("LP", alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.BalanceOf("LP", alice)
	bobBal, _ := ledger.BalanceOf("lp", bob)
	if aliceBal.Cmp(big.NewInt(60)) != 0 || bobBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances: alice %s bob %s", aliceBal, bobBal)
	}
	err := ledger.Transfer("LP", alice, bob, big.NewInt(61))
	if !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Transfer("LP", alice, bob, big.NewInt(0)); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger := NewLedger(newMockBankState())
	owner := makeAddress(crypto.AccountPrefix, 1)
	vault := makeAddress(crypto.ModulePrefix, 7)
	if err := ledger.Mint("LP", owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom("LP", vault, owner, vault, big.NewInt(10)); !errors.Is(err, coreerrors.ErrInsufficientAllowance) {
		t.Fatalf("expected allowance failure, got %v", err)
	}
	if err := ledger.Approve("LP", owner, vault, big.NewInt(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom("LP", vault, owner, vault, big.NewInt(30)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, _ := ledger.Allowance("LP", owner, vault)
	if remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("unexpected allowance: got %s want 20", remaining)
	}
	vaultBal, _ := ledger.BalanceOf("LP", vault)
	if vaultBal.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected vault balance %s", vaultBal)
	}
}

func TestBurnReducesSupply(t *testing.T) {
	ledger := NewLedger(newMockBankState())
	holder := makeAddress(crypto.AccountPrefix, 3)
	if err := ledger.Mint("FARM", holder, big.NewInt(25)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn("FARM", holder, big.NewInt(26)); !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Burn("FARM", holder, big.NewInt(25)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := ledger.TotalSupply("FARM")
	if supply.Sign() != 0 {
		t.Fatalf("unexpected supply %s", supply)
	}
}
