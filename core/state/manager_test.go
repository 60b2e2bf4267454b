package state

import (
	"math/big"
	"testing"

	"yieldredirect/crypto"
	"yieldredirect/native/distributor"
	"yieldredirect/native/strategy"
	"yieldredirect/native/vault"
	"yieldredirect/storage"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestBankAmountsRoundTripAndZeroDeletes(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	addr := makeAddress(1)

	if err := m.SetBankBalance("LP", addr, big.NewInt(42)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	got, err := m.BankBalance("LP", addr)
	if err != nil || got.Int64() != 42 {
		t.Fatalf("unexpected balance %v err %v", got, err)
	}
	if err := m.SetBankBalance("LP", addr, big.NewInt(0)); err != nil {
		t.Fatalf("clear balance: %v", err)
	}
	if _, err := db.Get(BalanceKey("LP", addr)); err != storage.ErrNotFound {
		t.Fatalf("zero balance should delete the key, got %v", err)
	}
	if err := m.SetBankSupply("LP", big.NewInt(-1)); err == nil {
		t.Fatalf("negative amounts must be rejected")
	}
}

func TestDepositorsListedInKeyOrder(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	for _, b := range []byte{3, 1, 2} {
		if err := m.PutDepositor(&vault.Depositor{Address: makeAddress(b), Principal: big.NewInt(int64(b) * 10)}); err != nil {
			t.Fatalf("put depositor: %v", err)
		}
	}
	if err := m.DeleteDepositor(makeAddress(2)); err != nil {
		t.Fatalf("delete depositor: %v", err)
	}
	list, err := m.Depositors()
	if err != nil {
		t.Fatalf("list depositors: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 depositors, got %d", len(list))
	}
	if !list[0].Address.Equal(makeAddress(1)) || list[1].Principal.Int64() != 30 {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	if v, err := m.Vault(); err != nil || v != nil {
		t.Fatalf("expected no vault, got %v %v", v, err)
	}
	if err := m.PutVault(&vault.Vault{Token: "LP", TotalDeposited: big.NewInt(7), Strategy: "farm-a", Initialized: true}); err != nil {
		t.Fatalf("put vault: %v", err)
	}
	v, err := m.Vault()
	if err != nil || v.TotalDeposited.Int64() != 7 || v.Strategy != "farm-a" {
		t.Fatalf("unexpected vault %+v err %v", v, err)
	}

	record := &strategy.Record{ID: "farm-a", Staked: big.NewInt(5), Accrued: big.NewInt(1)}
	if err := m.PutStrategyRecord(record); err != nil {
		t.Fatalf("put record: %v", err)
	}
	loaded, err := m.StrategyRecord("FARM-A")
	if err != nil || loaded == nil || loaded.Staked.Int64() != 5 {
		t.Fatalf("unexpected record %+v err %v", loaded, err)
	}

	user := makeAddress(9)
	claim := &distributor.Claim{Address: user, Entries: map[string]*distributor.Entry{
		"USDC": {Checkpoint: big.NewInt(3), Pending: big.NewInt(4)},
	}}
	if err := m.PutDistributorClaim(claim); err != nil {
		t.Fatalf("put claim: %v", err)
	}
	claims, err := m.DistributorClaims()
	if err != nil || len(claims) != 1 || claims[0].Entries["USDC"].Pending.Int64() != 4 {
		t.Fatalf("unexpected claims %+v err %v", claims, err)
	}
	if err := m.DeleteDistributorClaim(user); err != nil {
		t.Fatalf("delete claim: %v", err)
	}
	if c, err := m.DistributorClaim(user); err != nil || c != nil {
		t.Fatalf("expected claim removed, got %+v %v", c, err)
	}
}

func TestParamStoreMissingKey(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	if _, ok, err := m.ParamStoreGet("missing"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := m.ParamStoreSet("vault/parameters", []byte(`{}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, ok, err := m.ParamStoreGet("vault/parameters"); !ok || err != nil || string(value) != "{}" {
		t.Fatalf("unexpected value %q ok=%v err=%v", value, ok, err)
	}
}
