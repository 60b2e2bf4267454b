package vault_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	coreerrors "yieldredirect/core/errors"
	"yieldredirect/core/state"
	"yieldredirect/crypto"
	"yieldredirect/native/bank"
	"yieldredirect/native/distributor"
	"yieldredirect/native/params"
	"yieldredirect/native/strategy"
	"yieldredirect/native/vault"
	"yieldredirect/storage"
)

type testEnv struct {
	engine   *vault.Engine
	rewards  *distributor.Engine
	ledger   *bank.Ledger
	registry *strategy.Registry
	now      time.Time
	gov      crypto.Address
	fees     crypto.Address
	alice    crypto.Address
}

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func mustFarm(t *testing.T, id, token string) *strategy.Farm {
	t.Helper()
	farm, err := strategy.NewFarm(strategy.FarmConfig{
		ID:                id,
		Token:             token,
		FarmToken:         "BOO",
		EmissionPerSecond: big.NewInt(1),
		Price:             big.NewRat(1, 1),
	})
	if err != nil {
		t.Fatalf("new farm: %v", err)
	}
	return farm
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	store := params.NewStore(manager)
	env := &testEnv{
		ledger:   bank.NewLedger(manager),
		registry: strategy.NewRegistry(),
		now:      time.Unix(1_700_000_000, 0).UTC(),
		gov:      makeAddress(1),
		fees:     makeAddress(3),
		alice:    makeAddress(10),
	}
	if err := store.SetRoles(params.Roles{Governance: env.gov, FeeRecipient: env.fees}); err != nil {
		t.Fatalf("set roles: %v", err)
	}
	for _, farm := range []*strategy.Farm{
		mustFarm(t, "farm-a", "LP"),
		mustFarm(t, "farm-b", "LP"),
		mustFarm(t, "farm-c", "LP"),
		mustFarm(t, "farm-x", "ETH"),
	} {
		if err := env.registry.Register(farm); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	env.engine = vault.NewEngine(crypto.ModuleAddress(params.ModuleVault))
	env.rewards = distributor.NewEngine(crypto.ModuleAddress(params.ModuleDistributor))
	env.engine.SetState(manager)
	env.engine.SetBank(env.ledger)
	env.engine.SetStrategies(env.registry, manager)
	env.engine.SetRewards(env.rewards)
	env.engine.SetParams(store)
	env.rewards.SetState(manager)
	env.rewards.SetBank(env.ledger)
	env.rewards.SetShares(env.engine)
	env.rewards.SetStrategies(env.engine)
	env.rewards.SetParams(store)
	env.at(env.now)

	if err := env.engine.Initialize(env.gov, "lp", "farm-a"); err != nil {
		t.Fatalf("initialize vault: %v", err)
	}
	if err := env.rewards.Initialize("USDC", time.Hour, []string{"BOO"}); err != nil {
		t.Fatalf("initialize distributor: %v", err)
	}
	if err := env.ledger.Mint("LP", env.alice, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return env
}

func (e *testEnv) at(now time.Time) {
	e.now = now
	e.engine.SetNow(now)
	e.rewards.SetNow(now)
}

func (e *testEnv) deposit(t *testing.T, amount int64) {
	t.Helper()
	if err := e.ledger.Approve("LP", e.alice, e.engine.Address(), big.NewInt(amount)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := e.engine.Deposit(e.alice, big.NewInt(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestInitializeRequiresGovernance(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Initialize(env.gov, "LP", "farm-a"); !errors.Is(err, vault.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialised, got %v", err)
	}
	v, err := env.engine.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if v.Token != "LP" || v.Strategy != "farm-a" || !v.Active {
		t.Fatalf("unexpected vault %+v", v)
	}
}

func TestWithdrawChargesFee(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetParameters(env.gov, 5000, 200, 50); err != nil {
		t.Fatalf("set parameters: %v", err)
	}
	env.deposit(t, 10_000)

	withdrawal, err := env.engine.Withdraw(env.alice, big.NewInt(1000))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawal.Fee.Int64() != 5 || withdrawal.Received.Int64() != 995 || withdrawal.Unstaked.Int64() != 1000 {
		t.Fatalf("unexpected withdrawal %+v", withdrawal)
	}
	feeBal, _ := env.ledger.BalanceOf("LP", env.fees)
	if feeBal.Int64() != 5 {
		t.Fatalf("fee recipient should hold 5, got %s", feeBal)
	}
	principal, _ := env.engine.Principal(env.alice)
	if principal.Int64() != 9000 {
		t.Fatalf("expected principal 9000, got %s", principal)
	}
	if _, err := env.engine.Withdraw(env.alice, big.NewInt(9001)); !errors.Is(err, coreerrors.ErrInsufficientPrincipal) {
		t.Fatalf("expected insufficient principal, got %v", err)
	}
	if err := env.engine.SetParameters(env.gov, 5000, 200, 100); !errors.Is(err, coreerrors.ErrWithdrawalFeeCeiling) {
		t.Fatalf("expected withdrawal fee ceiling, got %v", err)
	}
}

func TestEmergencyWithdrawExitsImpairedStrategy(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, 1000)
	farm, _ := env.registry.Get("farm-a")
	if err := farm.(*strategy.Farm).SetImpaired(env.engine.StrategyEnv(), true); err != nil {
		t.Fatalf("impair: %v", err)
	}

	if _, err := env.engine.Withdraw(env.alice, big.NewInt(100)); !errors.Is(err, strategy.ErrStrategyImpaired) {
		t.Fatalf("expected impaired strategy error on normal withdraw, got %v", err)
	}

	withdrawal, err := env.engine.EmergencyWithdrawAll(env.alice)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if withdrawal.Received.Int64() != 1000 || withdrawal.Unstaked.Int64() != 1000 {
		t.Fatalf("unexpected withdrawal %+v", withdrawal)
	}
	bal, _ := env.ledger.BalanceOf("LP", env.alice)
	if bal.Int64() != 10_000 {
		t.Fatalf("expected alice back at 10000 LP, got %s", bal)
	}
	total, _ := env.engine.TotalDeposited()
	if total.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", total)
	}
	staked, _ := farm.EstimatedTotalAssets(env.engine.StrategyEnv())
	if staked.Sign() != 0 {
		t.Fatalf("expected nothing left staked, got %s", staked)
	}
}

func TestEmergencyWithdrawPrefersIdleBalance(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, 1000)
	if err := env.ledger.Mint("LP", env.engine.Address(), big.NewInt(1000)); err != nil {
		t.Fatalf("mint idle: %v", err)
	}
	withdrawal, err := env.engine.EmergencyWithdrawAll(env.alice)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if withdrawal.Received.Int64() != 1000 || withdrawal.Unstaked.Sign() != 0 {
		t.Fatalf("unexpected withdrawal %+v", withdrawal)
	}
}

func TestProposeReplacesPendingProposal(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetMigrationDelay(env.gov, time.Hour); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	env.deposit(t, 1000)
	start := env.now

	if _, err := env.engine.ProposeStrategy(env.gov, "farm-a"); !errors.Is(err, vault.ErrSameStrategy) {
		t.Fatalf("expected same strategy error, got %v", err)
	}
	if _, err := env.engine.ProposeStrategy(env.gov, "farm-x"); !errors.Is(err, vault.ErrStrategyTokenMismatch) {
		t.Fatalf("expected token mismatch, got %v", err)
	}
	if _, err := env.engine.ProposeStrategy(env.gov, "farm-z"); !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Fatalf("expected unknown strategy, got %v", err)
	}
	if _, err := env.engine.ProposeStrategy(env.alice, "farm-b"); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if _, err := env.engine.ProposeStrategy(env.gov, "farm-b"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	env.at(start.Add(50 * time.Minute))
	if _, err := env.engine.ProposeStrategy(env.gov, "farm-c"); err != nil {
		t.Fatalf("re-propose: %v", err)
	}
	env.at(start.Add(70 * time.Minute))
	if _, err := env.engine.UpgradeStrategy(env.gov); !errors.Is(err, coreerrors.ErrMigrationDelay) {
		t.Fatalf("re-proposing should restart the delay, got %v", err)
	}
	env.at(start.Add(110 * time.Minute))
	migrated, err := env.engine.UpgradeStrategy(env.gov)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if migrated.Int64() != 1000 {
		t.Fatalf("expected 1000 migrated, got %s", migrated)
	}
	holdings, _ := env.engine.Holdings()
	if holdings.Strategy.Int64() != 1000 || holdings.Idle.Sign() != 0 {
		t.Fatalf("unexpected holdings %+v", holdings)
	}
	active, _ := env.engine.ActiveStrategy()
	if active.ID() != "farm-c" {
		t.Fatalf("expected farm-c active, got %s", active.ID())
	}
}

func TestUpgradeWhileInactiveKeepsFundsIdle(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, 1000)
	recalled, err := env.engine.Deactivate(env.gov)
	if err != nil || recalled.Int64() != 1000 {
		t.Fatalf("deactivate: %v %v", recalled, err)
	}
	if _, err := env.engine.Deactivate(env.gov); !errors.Is(err, vault.ErrAlreadyInactive) {
		t.Fatalf("expected already inactive, got %v", err)
	}
	if _, err := env.engine.ProposeStrategy(env.gov, "farm-b"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	env.at(env.now.Add(time.Minute))
	migrated, err := env.engine.UpgradeStrategy(env.gov)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if migrated.Sign() != 0 {
		t.Fatalf("nothing should move while inactive, got %s", migrated)
	}
	holdings, _ := env.engine.Holdings()
	if holdings.Idle.Int64() != 1000 || holdings.Strategy.Sign() != 0 {
		t.Fatalf("unexpected holdings %+v", holdings)
	}
}

func TestRoleManagement(t *testing.T) {
	env := newTestEnv(t)
	keeper := makeAddress(20)
	if err := env.engine.AddKeeper(env.alice, keeper); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.AddKeeper(env.gov, crypto.Address{}); err == nil {
		t.Fatalf("zero keeper must be rejected")
	}
	if err := env.engine.AddKeeper(env.gov, keeper); err != nil {
		t.Fatalf("add keeper: %v", err)
	}
	if err := env.engine.RemoveKeeper(env.gov, keeper); err != nil {
		t.Fatalf("remove keeper: %v", err)
	}
	if err := env.engine.SetFeeRecipient(env.gov, crypto.Address{}); err == nil {
		t.Fatalf("zero fee recipient must be rejected")
	}
	if err := env.engine.SetTVLCap(env.gov, big.NewInt(500)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	if err := env.ledger.Approve("LP", env.alice, env.engine.Address(), big.NewInt(600)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.engine.Deposit(env.alice, big.NewInt(600)); !errors.Is(err, coreerrors.ErrTVLCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}
}

func TestSharesAreNotTransferable(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, 100)
	if err := env.engine.TransferShares(env.alice, env.gov, big.NewInt(1)); !errors.Is(err, vault.ErrSharesNonTransferable) {
		t.Fatalf("expected non-transferable shares, got %v", err)
	}
}
