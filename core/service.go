package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"yieldredirect/core/events"
	coreerrors "yieldredirect/core/errors"
	"yieldredirect/core/genesis"
	"yieldredirect/core/rewards"
	"yieldredirect/core/state"
	"yieldredirect/core/types"
	"yieldredirect/crypto"
	"yieldredirect/native/bank"
	"yieldredirect/native/distributor"
	"yieldredirect/native/params"
	"yieldredirect/native/strategy"
	"yieldredirect/native/vault"
	"yieldredirect/observability"
	"yieldredirect/storage"
)

// Operation names recorded on receipts, metrics and the audit log.
const (
	OpGenesis              = "genesis"
	OpApprove              = "approve"
	OpDeposit              = "deposit"
	OpWithdraw             = "withdraw"
	OpEmergencyWithdrawAll = "emergency_withdraw_all"
	OpHarvest              = "harvest"
	OpConvertProfits       = "convert_profits"
	OpSetParameters        = "set_parameters"
	OpSetEpochDuration     = "set_epoch_duration"
	OpSetMigrationDelay    = "set_migration_delay"
	OpSetTVLCap            = "set_tvl_cap"
	OpAddKeeper            = "add_keeper"
	OpRemoveKeeper         = "remove_keeper"
	OpSetFeeRecipient      = "set_fee_recipient"
	OpSetPauses            = "set_pauses"
	OpProposeStrategy      = "propose_strategy"
	OpUpgradeStrategy      = "upgrade_strategy"
	OpDeactivate           = "deactivate"
	OpEmergencyDisable     = "emergency_disable"
	OpEmergencySweep       = "emergency_sweep"
	OpMigrateTargetToken   = "migrate_target_token"
	OpPermitRewardToken    = "permit_reward_token"
	OpSetStrategyImpaired  = "set_strategy_impaired"
	OpTransferShares       = "transfer_shares"
)

var (
	ErrGenesisApplied = coreerrors.New(coreerrors.KindInvariant, "core: genesis already applied")

	errNilDatabase = errors.New("core: database required")
	errNotImpaired = errors.New("core: strategy cannot be impaired")
)

// Recorder persists committed receipts, typically storage/audit.
type Recorder interface {
	Record(ctx context.Context, receipt *types.Receipt) error
}

type eventCounter interface {
	Record(eventType string)
}

// Service serialises every ledger operation. Each mutating call runs against
// a write overlay and is committed in one batch only when it succeeds, so a
// failed operation leaves no trace in the database.
type Service struct {
	mu       sync.RWMutex
	db       storage.Database
	clock    clockwork.Clock
	registry *strategy.Registry
	logger   *slog.Logger
	metrics  *observability.VaultMetrics
	counter  eventCounter
	recorder Recorder
	tracer   trace.Tracer

	vaultAddr       crypto.Address
	distributorAddr crypto.Address
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the wall clock, mostly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables the prometheus collectors.
func WithMetrics() Option {
	return func(s *Service) {
		s.metrics = observability.Vault()
		s.counter = observability.Events()
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// NewService constructs a service over db resolving strategies through
// registry.
func NewService(db storage.Database, registry *strategy.Registry, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if registry == nil {
		registry = strategy.NewRegistry()
	}
	s := &Service{
		db:              db,
		clock:           clockwork.NewRealClock(),
		registry:        registry,
		logger:          slog.Default(),
		tracer:          otel.Tracer("yieldredirect/core"),
		vaultAddr:       crypto.ModuleAddress(params.ModuleVault),
		distributorAddr: crypto.ModuleAddress(params.ModuleDistributor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewStrategyRegistry builds farm strategies from their configurations.
func NewStrategyRegistry(configs []strategy.FarmConfig) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()
	for _, cfg := range configs {
		farm, err := strategy.NewFarm(cfg)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", cfg.ID, err)
		}
		if err := registry.Register(farm); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// VaultAddress is the custody address deposits are approved to.
func (s *Service) VaultAddress() crypto.Address { return s.vaultAddr }

// DistributorAddress is the custody address of the reward pools.
func (s *Service) DistributorAddress() crypto.Address { return s.distributorAddr }

// Clock returns the clock operations are timestamped with.
func (s *Service) Clock() clockwork.Clock { return s.clock }

// session binds fresh engines to one overlay for the duration of a call.
type session struct {
	overlay     *storage.Overlay
	manager     *state.Manager
	bank        *bank.Ledger
	params      *params.Store
	vault       *vault.Engine
	distributor *distributor.Engine
	events      *events.Buffer
	now         time.Time
}

func (s *Service) newSession(now time.Time) (*session, error) {
	overlay := storage.NewOverlay(s.db)
	manager := state.NewManager(overlay)
	ledger := bank.NewLedger(manager)
	store := params.NewStore(manager)
	pauses, err := store.Pauses()
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	buffer := &events.Buffer{}

	v := vault.NewEngine(s.vaultAddr)
	d := distributor.NewEngine(s.distributorAddr)

	v.SetState(manager)
	v.SetBank(ledger)
	v.SetStrategies(s.registry, manager)
	v.SetRewards(d)
	v.SetParams(store)
	v.SetPauses(pauses)
	v.SetEmitter(buffer)
	v.SetNow(now)

	d.SetState(manager)
	d.SetBank(ledger)
	d.SetShares(v)
	d.SetStrategies(v)
	d.SetParams(store)
	d.SetPauses(pauses)
	d.SetEmitter(buffer)
	d.SetNow(now)

	return &session{
		overlay:     overlay,
		manager:     manager,
		bank:        ledger,
		params:      store,
		vault:       v,
		distributor: d,
		events:      buffer,
		now:         now,
	}, nil
}

// execute runs fn under the write lock and commits its writes atomically.
// The receipt is handed to the recorder after the lock is released.
func (s *Service) execute(ctx context.Context, op string, caller crypto.Address, fn func(*session) error) (*types.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "vault."+op,
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer span.End()

	receipt, err := s.commit(op, caller, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, coreerrors.KindOf(err).String())
		return nil, err
	}
	span.SetAttributes(attribute.String("receipt", receipt.ID), attribute.Int("events", len(receipt.Events)))
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, receipt); err != nil {
			s.logger.Error("record receipt", slog.String("operation", op), slog.String("receipt", receipt.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("operation committed",
		slog.String("operation", op),
		slog.String("caller", receipt.Caller),
		slog.String("receipt", receipt.ID),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

func (s *Service) commit(op string, caller crypto.Address, fn func(*session) error) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	x, err := s.newSession(now)
	if err != nil {
		return nil, err
	}
	if err := fn(x); err != nil {
		x.overlay.Discard()
		s.fail(op, caller, now, err)
		return nil, err
	}
	s.publishGauges(x)
	if err := x.overlay.Commit(); err != nil {
		x.overlay.Discard()
		s.fail(op, caller, now, err)
		return nil, fmt.Errorf("commit %s: %w", op, err)
	}

	receipt := &types.Receipt{
		ID:        uuid.NewString(),
		Operation: op,
		Caller:    caller.String(),
		Events:    x.events.Events(),
		At:        now,
	}
	s.observe(op, "success", now)
	s.countEvents(receipt)
	return receipt, nil
}

// view runs fn under the read lock against a throwaway overlay.
func (s *Service) view(fn func(*session) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, err := s.newSession(s.clock.Now().UTC())
	if err != nil {
		return err
	}
	defer x.overlay.Discard()
	return fn(x)
}

func (s *Service) fail(op string, caller crypto.Address, started time.Time, err error) {
	kind := coreerrors.KindOf(err)
	s.observe(op, kind.String(), started)
	level := slog.LevelWarn
	if kind == coreerrors.KindInternal {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "operation rejected",
		slog.String("operation", op),
		slog.String("caller", caller.String()),
		slog.String("kind", kind.String()),
		slog.Any("error", err))
}

func (s *Service) observe(op, outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(op, outcome, s.clock.Since(started))
}

func (s *Service) countEvents(receipt *types.Receipt) {
	if s.metrics == nil {
		return
	}
	for _, evt := range receipt.Events {
		if s.counter != nil {
			s.counter.Record(evt.Type)
		}
		switch evt.Type {
		case events.TypeProfitsConverted:
			if amount, ok := new(big.Int).SetString(evt.Attributes["converted"], 10); ok {
				s.metrics.RecordConversion(evt.Attributes["token"], amount)
			}
		case events.TypeRewardsClaimed:
			if amount, ok := new(big.Int).SetString(evt.Attributes["amount"], 10); ok {
				s.metrics.RecordPayout(evt.Attributes["token"], amount)
			}
		}
	}
}

func (s *Service) publishGauges(x *session) {
	if s.metrics == nil {
		return
	}
	if total, err := x.vault.TotalDeposited(); err == nil {
		s.metrics.SetTotalDeposited(total)
	}
	if d, err := x.manager.Distributor(); err == nil && d != nil {
		for _, pool := range d.Pools {
			s.metrics.SetAccumulator(pool.Token, pool.Index.Value(), rewards.Unit())
		}
	}
}

// InitGenesis seeds roles, parameters, balances and the initialised vault and
// distributor. It fails once the vault exists.
func (s *Service) InitGenesis(ctx context.Context, g *genesis.Genesis) (*types.Receipt, error) {
	if g == nil {
		return nil, fmt.Errorf("core: genesis required")
	}
	if _, err := s.registry.Get(g.InitialStrategy); err != nil {
		return nil, err
	}
	return s.execute(ctx, OpGenesis, g.Roles.Governance, func(x *session) error {
		existing, err := x.manager.Vault()
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrGenesisApplied
		}
		if err := x.params.SetRoles(g.Roles); err != nil {
			return err
		}
		if err := x.params.SetParameters(g.Params); err != nil {
			return err
		}
		if err := x.params.SetPauses(params.Pauses{}); err != nil {
			return err
		}
		for _, alloc := range g.Alloc {
			if err := x.bank.Mint(alloc.Token, alloc.Address, alloc.Amount); err != nil {
				return fmt.Errorf("alloc %s: %w", alloc.Address, err)
			}
		}
		if err := x.vault.Initialize(g.Roles.Governance, g.DepositToken, g.InitialStrategy); err != nil {
			return err
		}
		return x.distributor.Initialize(g.TargetToken, g.Params.EpochDuration, g.PermittedFarmTokens)
	})
}

// Initialized reports whether genesis has been applied.
func (s *Service) Initialized() (bool, error) {
	var ok bool
	err := s.view(func(x *session) error {
		v, err := x.manager.Vault()
		ok = v != nil && v.Initialized
		return err
	})
	return ok, err
}
