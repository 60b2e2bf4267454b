package strategy

import (
	"errors"
	"math/big"
	"testing"
	"time"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

type mockBank struct {
	balances map[string]*big.Int
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[string]*big.Int)}
}

func (b *mockBank) key(token string, addr crypto.Address) string {
	return token + "/" + addr.Key()
}

func (b *mockBank) BalanceOf(token string, addr crypto.Address) (*big.Int, error) {
	if v, ok := b.balances[b.key(token, addr)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (b *mockBank) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	fromBal, _ := b.BalanceOf(token, from)
	if fromBal.Cmp(amount) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	toBal, _ := b.BalanceOf(token, to)
	b.balances[b.key(token, from)] = fromBal.Sub(fromBal, amount)
	b.balances[b.key(token, to)] = toBal.Add(toBal, amount)
	return nil
}

func (b *mockBank) Mint(token string, to crypto.Address, amount *big.Int) error {
	bal, _ := b.BalanceOf(token, to)
	b.balances[b.key(token, to)] = bal.Add(bal, amount)
	return nil
}

func (b *mockBank) Burn(token string, from crypto.Address, amount *big.Int) error {
	bal, _ := b.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	b.balances[b.key(token, from)] = bal.Sub(bal, amount)
	return nil
}

type mockRecords struct {
	records map[string]*Record
}

func (m *mockRecords) StrategyRecord(id string) (*Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	clone := *rec
	clone.Staked = new(big.Int).Set(rec.Staked)
	clone.Accrued = new(big.Int).Set(rec.Accrued)
	clone.Harvested = new(big.Int).Set(rec.Harvested)
	clone.Converted = new(big.Int).Set(rec.Converted)
	return &clone, nil
}

func (m *mockRecords) PutStrategyRecord(record *Record) error {
	m.records[record.ID] = record
	return nil
}

func newTestFarm(t *testing.T) *Farm {
	t.Helper()
	farm, err := NewFarm(FarmConfig{
		ID:                "Farm-A",
		Token:             "lp",
		FarmToken:         "boo",
		EmissionPerSecond: big.NewInt(10),
		Price:             big.NewRat(3, 2),
	})
	if err != nil {
		t.Fatalf("new farm: %v", err)
	}
	return farm
}

func TestFarmStakeHarvestUnstake(t *testing.T) {
	farm := newTestFarm(t)
	bank := newMockBank()
	records := &mockRecords{records: make(map[string]*Record)}
	vault := crypto.ModuleAddress("vault")
	distributor := crypto.ModuleAddress("distributor")
	start := time.Unix(1_700_000_000, 0)
	env := Env{Bank: bank, State: records, Vault: vault, Now: start}

	if err := bank.Mint("LP", farm.Address(), big.NewInt(1_000)); err != nil {
		t.Fatalf("fund custody: %v", err)
	}
	if err := farm.Stake(env, big.NewInt(1_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := farm.Stake(env, big.NewInt(1)); !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected custody check to fail, got %v", err)
	}

	env.Now = start.Add(100 * time.Second)
	converted, err := farm.HarvestToTargetToken(env, "USDC", distributor)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	// 100s * 10/s = 1000 farm tokens at 1.5 target each.
	if converted.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("unexpected conversion: got %s want 1500", converted)
	}
	received, _ := bank.BalanceOf("USDC", distributor)
	if received.Cmp(converted) != 0 {
		t.Fatalf("recipient got %s want %s", received, converted)
	}
	again, err := farm.HarvestToTargetToken(env, "USDC", distributor)
	if err != nil || again.Sign() != 0 {
		t.Fatalf("second harvest at same instant should be empty: %s %v", again, err)
	}

	actual, err := farm.Unstake(env, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if actual.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unstake should cap at staked amount, got %s", actual)
	}
	vaultBal, _ := bank.BalanceOf("LP", vault)
	if vaultBal.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("vault did not receive funds: %s", vaultBal)
	}
	assets, _ := farm.EstimatedTotalAssets(env)
	if assets.Sign() != 0 {
		t.Fatalf("expected no assets left, got %s", assets)
	}
}

func TestFarmImpairedUnstakeFails(t *testing.T) {
	farm := newTestFarm(t)
	bank := newMockBank()
	records := &mockRecords{records: make(map[string]*Record)}
	env := Env{Bank: bank, State: records, Vault: crypto.ModuleAddress("vault"), Now: time.Unix(1_700_000_000, 0)}
	_ = bank.Mint("LP", farm.Address(), big.NewInt(10))
	if err := farm.Stake(env, big.NewInt(10)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := farm.SetImpaired(env, true); err != nil {
		t.Fatalf("impair: %v", err)
	}
	if _, err := farm.Unstake(env, big.NewInt(10)); !errors.Is(err, ErrStrategyImpaired) {
		t.Fatalf("expected impaired error, got %v", err)
	}
}

func TestFarmEmergencyExitWhileImpaired(t *testing.T) {
	farm := newTestFarm(t)
	bank := newMockBank()
	records := &mockRecords{records: make(map[string]*Record)}
	vault := crypto.ModuleAddress("vault")
	start := time.Unix(1_700_000_000, 0)
	env := Env{Bank: bank, State: records, Vault: vault, Now: start}
	_ = bank.Mint("LP", farm.Address(), big.NewInt(1_000))
	if err := farm.Stake(env, big.NewInt(1_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	env.Now = start.Add(100 * time.Second)
	if err := farm.SetImpaired(env, true); err != nil {
		t.Fatalf("impair: %v", err)
	}

	// Half the stake leaves and takes half of the 1000 accrued with it.
	actual, err := farm.EmergencyExit(env, big.NewInt(500))
	if err != nil {
		t.Fatalf("emergency exit: %v", err)
	}
	if actual.Int64() != 500 {
		t.Fatalf("expected 500 returned, got %s", actual)
	}
	pending, _ := farm.PendingHarvest(env)
	if pending.Int64() != 500 {
		t.Fatalf("expected 500 farm tokens left pending, got %s", pending)
	}

	actual, err = farm.EmergencyExit(env, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("emergency exit remainder: %v", err)
	}
	if actual.Int64() != 500 {
		t.Fatalf("exit should cap at staked amount, got %s", actual)
	}
	vaultBal, _ := bank.BalanceOf("LP", vault)
	if vaultBal.Int64() != 1_000 {
		t.Fatalf("vault should hold the full principal, got %s", vaultBal)
	}
	pending, _ = farm.PendingHarvest(env)
	if pending.Sign() != 0 {
		t.Fatalf("expected accrued rewards forfeited, got %s", pending)
	}
	if _, err := farm.EmergencyExit(env, big.NewInt(0)); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	farm := newTestFarm(t)
	if err := registry.Register(farm); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(farm); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	got, err := registry.Get("FARM-A")
	if err != nil || got.ID() != "farm-a" {
		t.Fatalf("lookup failed: %v", err)
	}
	if _, err := registry.Get("missing"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected unknown strategy, got %v", err)
	}
}
