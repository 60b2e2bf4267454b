package params

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"yieldredirect/core/epoch"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/crypto"
)

type memState struct {
	values map[string][]byte
}

func newMemState() *memState {
	return &memState{values: make(map[string][]byte)}
}

func (m *memState) ParamStoreSet(name string, value []byte) error {
	m.values[name] = append([]byte(nil), value...)
	return nil
}

func (m *memState) ParamStoreGet(name string) ([]byte, bool, error) {
	value, ok := m.values[name]
	return value, ok, nil
}

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestValidateProfitFeeCeilingIsExclusive(t *testing.T) {
	p := DefaultParameters()
	p.ProfitFeeBps = ProfitFeeCeilingBps - 1
	if err := Validate(p); err != nil {
		t.Fatalf("one below the ceiling should pass: %v", err)
	}
	p.ProfitFeeBps = ProfitFeeCeilingBps
	err := Validate(p)
	if !errors.Is(err, coreerrors.ErrProfitFeeCeiling) {
		t.Fatalf("expected ceiling violation, got %v", err)
	}
	var violation *coreerrors.ParamViolation
	if !errors.As(err, &violation) || violation.Field != "profit_fee_bps" {
		t.Fatalf("expected typed violation, got %#v", err)
	}
}

func TestValidateEpochDurationBound(t *testing.T) {
	p := DefaultParameters()
	p.EpochDuration = 5000 * time.Second
	if err := Validate(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.EpochDuration = epoch.MaxDuration + time.Second
	if err := Validate(p); !errors.Is(err, coreerrors.ErrEpochDurationBound) {
		t.Fatalf("expected epoch bound violation, got %v", err)
	}
	p.EpochDuration = 0
	if err := Validate(p); !errors.Is(err, coreerrors.ErrEpochDurationBound) {
		t.Fatalf("expected zero duration violation, got %v", err)
	}
}

func TestValidateOtherBounds(t *testing.T) {
	cases := map[string]func(*Parameters){
		"call fee":       func(p *Parameters) { p.CallFeeBps = CallFeeCeilingBps + 1 },
		"withdrawal fee": func(p *Parameters) { p.WithdrawalFeeBps = WithdrawalFeeCeilingBps },
		"delay":          func(p *Parameters) { p.MigrationDelay = 0 },
		"tvl cap":        func(p *Parameters) { p.TVLCap = big.NewInt(-1) },
	}
	for name, mutate := range cases {
		p := DefaultParameters()
		mutate(&p)
		if err := Validate(p); !coreerrors.Is(err, coreerrors.KindInvariant) {
			t.Fatalf("%s: expected invariant violation, got %v", name, err)
		}
	}
}

func TestStoreDefaultsAndPersistence(t *testing.T) {
	store := NewStore(newMemState())
	got, err := store.Parameters()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if got.ProfitFeeBps != DefaultParameters().ProfitFeeBps {
		t.Fatalf("unexpected default profit fee %d", got.ProfitFeeBps)
	}
	got.ProfitFeeBps = 150
	got.TVLCap = big.NewInt(1_000)
	if err := store.SetParameters(got); err != nil {
		t.Fatalf("set parameters: %v", err)
	}
	reloaded, err := store.Parameters()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ProfitFeeBps != 150 || reloaded.TVLCap.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected reloaded parameters %+v", reloaded)
	}
	bad := reloaded
	bad.ProfitFeeBps = 5_000
	if err := store.SetParameters(bad); err == nil {
		t.Fatalf("expected invalid parameters to be rejected")
	}
	if _, err := store.Roles(); err == nil {
		t.Fatalf("expected missing roles to fail")
	}
}

func TestRoleChecks(t *testing.T) {
	roles := Roles{Governance: makeAddress(1), Keepers: []crypto.Address{makeAddress(2)}, FeeRecipient: makeAddress(9)}
	if err := RequireGovernance(roles, makeAddress(1)); err != nil {
		t.Fatalf("governance rejected: %v", err)
	}
	if err := RequireGovernance(roles, makeAddress(2)); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("keeper should not pass governance check: %v", err)
	}
	if err := RequireKeeper(roles, makeAddress(2)); err != nil {
		t.Fatalf("keeper rejected: %v", err)
	}
	if err := RequireKeeper(roles, makeAddress(1)); err != nil {
		t.Fatalf("governance should pass keeper check: %v", err)
	}
	if err := RequireKeeper(roles, makeAddress(3)); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("stranger passed keeper check: %v", err)
	}
}
