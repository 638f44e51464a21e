package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"blueprintcore/internal/infra/persistence/memory"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/ident"
)

// Clock supplies timestamps for audit entries and stores.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reports the system time.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// Logger is the structured logging surface the service writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus is the outcome recorded for an operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one service operation for the audit trail.
type AuditEntry struct {
	ID         string         `json:"id"`
	Operation  string         `json:"operation"`
	Entity     EntityType     `json:"entity,omitempty"`
	EntityKey  string         `json:"entity_key,omitempty"`
	Status     AuditStatus    `json:"status"`
	Error      string         `json:"error,omitempty"`
	Warnings   int            `json:"warnings,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AuditRecorder receives audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation outcomes and latencies.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Nil is ignored.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for audit timestamps and in-memory stores.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditRecorder sets the audit sink. Nil is ignored.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink. Nil is ignored.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer. Nil is ignored.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithDeletePolicy sets the policy used by deletes that do not request one.
func WithDeletePolicy(policy DeletePolicy) ServiceOption {
	return func(s *Service) {
		if policy != "" {
			s.deletePolicy = policy
		}
	}
}

// Service exposes transactional blueprint operations over a persistent store.
type Service struct {
	store        domain.PersistentStore
	engine       *domain.RulesEngine
	clock        Clock
	now          func() time.Time
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	deletePolicy domain.DeletePolicy
}

func newServiceDefaults(opts []ServiceOption) *Service {
	svc := &Service{
		logger:       noopLogger{},
		audit:        noopAuditRecorder{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		deletePolicy: domain.DeletePolicyRefuse,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	svc := newServiceDefaults(opts)
	svc.store = store
	svc.engine = extractRulesEngine(store)
	svc.now = selectNowFunc(store, svc.clock)
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	probe := newServiceDefaults(opts)
	var storeOpts []memory.Option
	if probe.clock != nil {
		storeOpts = append(storeOpts, memory.WithClock(probe.clock.Now))
	}
	return NewService(memory.NewStore(engine, storeOpts...), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// DeletePolicy returns the default delete policy.
func (s *Service) DeletePolicy() DeletePolicy {
	return s.deletePolicy
}

type nowProvider interface {
	NowFunc() func() time.Time
}

// selectNowFunc prefers an explicit clock, then the store's clock, then the system time.
func selectNowFunc(store domain.PersistentStore, clock Clock) func() time.Time {
	if clock != nil {
		return clock.Now
	}
	if provider, ok := store.(nowProvider); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return func() time.Time { return time.Now().UTC() }
}

func extractRulesEngine(store domain.PersistentStore) *domain.RulesEngine {
	if store == nil {
		return nil
	}
	return store.RulesEngine()
}

// run executes fn in a store transaction and reports the outcome to the
// tracer, metrics, logger and audit sinks. fn returns the key of the record it
// touched.
func (s *Service) run(ctx context.Context, op string, entity EntityType, fn func(tx domain.Transaction) (string, error)) (Result, error) {
	return s.runWithMetadata(ctx, op, entity, nil, fn)
}

// runDelete is run for deletions; the effective policy is attached to the
// success audit entry.
func (s *Service) runDelete(ctx context.Context, op string, entity EntityType, policy DeletePolicy, fn func(tx domain.Transaction, policy DeletePolicy) (string, error)) (Result, error) {
	policy = s.policyOrDefault(policy)
	md := map[string]any{"delete_policy": string(policy)}
	return s.runWithMetadata(ctx, op, entity, md, func(tx domain.Transaction) (string, error) {
		return fn(tx, policy)
	})
}

func (s *Service) runWithMetadata(ctx context.Context, op string, entity EntityType, md map[string]any, fn func(tx domain.Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	var key string
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var fnErr error
		key, fnErr = fn(tx)
		return fnErr
	})
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))

	if err != nil {
		args := []any{"operation", op, "entity", entity, "key", key, "error", err}
		if kind, ok := domain.KindOf(err); ok {
			args = append(args, "kind", kind, "field", domain.FieldOf(err))
		}
		s.logger.Error("operation failed", args...)
		s.audit.Record(ctx, AuditEntry{
			ID:         uuid.NewString(),
			Operation:  op,
			Entity:     entity,
			EntityKey:  key,
			Status:     AuditStatusError,
			Error:      err.Error(),
			Metadata:   errorMetadata(err),
			OccurredAt: s.now(),
		})
		return res, err
	}

	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity", v.Entity, "key", v.Key, "message", v.Message)
		}
	}
	s.logger.Debug("operation completed", "operation", op, "entity", entity, "key", key)
	s.recordAuditSuccess(ctx, op, entity, key, res, md)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op string, entity EntityType, key string, res Result, md map[string]any) {
	warnings := 0
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			warnings++
		}
	}
	s.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Operation:  op,
		Entity:     entity,
		EntityKey:  key,
		Status:     AuditStatusSuccess,
		Warnings:   warnings,
		Metadata:   md,
		OccurredAt: s.now(),
	})
}

func errorMetadata(err error) map[string]any {
	kind, ok := domain.KindOf(err)
	if !ok {
		return nil
	}
	md := map[string]any{"kind": string(kind)}
	if field := domain.FieldOf(err); field != "" {
		md["field"] = field
	}
	var refErr *domain.ReferencedByOthersError
	if errors.As(err, &refErr) {
		deps := make([]string, 0, len(refErr.Dependents))
		for _, d := range refErr.Dependents {
			deps = append(deps, d.String())
		}
		md["dependents"] = deps
	}
	return md
}

func (s *Service) policyOrDefault(policy DeletePolicy) DeletePolicy {
	if policy == "" {
		return s.deletePolicy
	}
	return policy
}

// CreateResource validates the input and stores a new resource.
func (s *Service) CreateResource(ctx context.Context, in ResourceInput) (Resource, Result, error) {
	var created Resource
	res, err := s.run(ctx, "create_resource", EntityResource, func(tx domain.Transaction) (string, error) {
		candidate, err := in.resource()
		if err != nil {
			return ident.Derive(in.DisplayName), err
		}
		created, err = tx.CreateResource(candidate)
		return created.Key, err
	})
	if err != nil {
		return Resource{}, res, err
	}
	return created, res, nil
}

// UpdateResource replaces the editable fields of a resource. The key never changes.
func (s *Service) UpdateResource(ctx context.Context, key string, in ResourceInput, opts UpdateOptions) (Resource, Result, error) {
	var updated Resource
	res, err := s.run(ctx, "update_resource", EntityResource, func(tx domain.Transaction) (string, error) {
		patch, err := in.resource()
		if err != nil {
			return key, err
		}
		updated, err = tx.UpdateResource(key, opts, func(r *Resource) error {
			r.DisplayName = patch.DisplayName
			r.StartingAmount = patch.StartingAmount
			return nil
		})
		return key, err
	})
	if err != nil {
		return Resource{}, res, err
	}
	return updated, res, nil
}

// DeleteResource removes a resource. An empty policy selects the service default.
func (s *Service) DeleteResource(ctx context.Context, key string, policy DeletePolicy) (Result, error) {
	return s.runDelete(ctx, "delete_resource", EntityResource, policy, func(tx domain.Transaction, policy DeletePolicy) (string, error) {
		return key, tx.DeleteResource(key, policy)
	})
}

// GetResource resolves a resource by key.
func (s *Service) GetResource(key string) (Resource, bool) {
	return s.store.GetResource(key)
}

// ListResources returns resources in insertion order.
func (s *Service) ListResources() []Resource {
	return s.store.ListResources()
}

// CreateGenerator validates the input, including every cost row, and stores a
// new generator.
func (s *Service) CreateGenerator(ctx context.Context, in GeneratorInput) (Generator, Result, error) {
	var created Generator
	res, err := s.run(ctx, "create_generator", EntityGenerator, func(tx domain.Transaction) (string, error) {
		candidate, err := in.generator(tx)
		if err != nil {
			return ident.Derive(in.DisplayName), err
		}
		created, err = tx.CreateGenerator(candidate)
		return created.Key, err
	})
	if err != nil {
		return Generator{}, res, err
	}
	return created, res, nil
}

// UpdateGenerator replaces the editable fields of a generator.
func (s *Service) UpdateGenerator(ctx context.Context, key string, in GeneratorInput, opts UpdateOptions) (Generator, Result, error) {
	var updated Generator
	res, err := s.run(ctx, "update_generator", EntityGenerator, func(tx domain.Transaction) (string, error) {
		patch, err := in.generator(tx)
		if err != nil {
			return key, err
		}
		updated, err = tx.UpdateGenerator(key, opts, func(g *Generator) error {
			g.DisplayName = patch.DisplayName
			g.ProducesResource = patch.ProducesResource
			g.BaseProductionAmount = patch.BaseProductionAmount
			g.Costs = patch.Costs
			g.CostScaling = patch.CostScaling
			return nil
		})
		return key, err
	})
	if err != nil {
		return Generator{}, res, err
	}
	return updated, res, nil
}

// DeleteGenerator removes a generator. An empty policy selects the service default.
func (s *Service) DeleteGenerator(ctx context.Context, key string, policy DeletePolicy) (Result, error) {
	return s.runDelete(ctx, "delete_generator", EntityGenerator, policy, func(tx domain.Transaction, policy DeletePolicy) (string, error) {
		return key, tx.DeleteGenerator(key, policy)
	})
}

// GetGenerator resolves a generator by key.
func (s *Service) GetGenerator(key string) (Generator, bool) {
	return s.store.GetGenerator(key)
}

// ListGenerators returns generators in insertion order.
func (s *Service) ListGenerators() []Generator {
	return s.store.ListGenerators()
}

// CreateUpgrade validates the input and stores a new upgrade.
func (s *Service) CreateUpgrade(ctx context.Context, in UpgradeInput) (Upgrade, Result, error) {
	var created Upgrade
	res, err := s.run(ctx, "create_upgrade", EntityUpgrade, func(tx domain.Transaction) (string, error) {
		candidate, err := in.upgrade(tx)
		if err != nil {
			return ident.Derive(in.DisplayName), err
		}
		created, err = tx.CreateUpgrade(candidate)
		return created.Key, err
	})
	if err != nil {
		return Upgrade{}, res, err
	}
	return created, res, nil
}

// UpdateUpgrade replaces the editable fields of an upgrade.
func (s *Service) UpdateUpgrade(ctx context.Context, key string, in UpgradeInput, opts UpdateOptions) (Upgrade, Result, error) {
	var updated Upgrade
	res, err := s.run(ctx, "update_upgrade", EntityUpgrade, func(tx domain.Transaction) (string, error) {
		patch, err := in.upgrade(tx)
		if err != nil {
			return key, err
		}
		updated, err = tx.UpdateUpgrade(key, opts, func(u *Upgrade) error {
			u.DisplayName = patch.DisplayName
			u.Target = patch.Target
			u.Costs = patch.Costs
			u.Effect = patch.Effect
			return nil
		})
		return key, err
	})
	if err != nil {
		return Upgrade{}, res, err
	}
	return updated, res, nil
}

// DeleteUpgrade removes an upgrade. An empty policy selects the service default.
func (s *Service) DeleteUpgrade(ctx context.Context, key string, policy DeletePolicy) (Result, error) {
	return s.runDelete(ctx, "delete_upgrade", EntityUpgrade, policy, func(tx domain.Transaction, policy DeletePolicy) (string, error) {
		return key, tx.DeleteUpgrade(key, policy)
	})
}

// GetUpgrade resolves an upgrade by key.
func (s *Service) GetUpgrade(key string) (Upgrade, bool) {
	return s.store.GetUpgrade(key)
}

// ListUpgrades returns upgrades in insertion order.
func (s *Service) ListUpgrades() []Upgrade {
	return s.store.ListUpgrades()
}

// CreateTier stores a new tier with its initial item groups.
func (s *Service) CreateTier(ctx context.Context, in TierInput) (Tier, Result, error) {
	var created Tier
	res, err := s.run(ctx, "create_tier", EntityTier, func(tx domain.Transaction) (string, error) {
		var err error
		created, err = tx.CreateTier(in.tier())
		return created.Key, err
	})
	if err != nil {
		return Tier{}, res, err
	}
	return created, res, nil
}

// UpdateTier replaces a tier's name and item groups.
func (s *Service) UpdateTier(ctx context.Context, key string, in TierInput, opts UpdateOptions) (Tier, Result, error) {
	var updated Tier
	res, err := s.run(ctx, "update_tier", EntityTier, func(tx domain.Transaction) (string, error) {
		patch := in.tier()
		var err error
		updated, err = tx.UpdateTier(key, opts, func(t *Tier) error {
			t.DisplayName = patch.DisplayName
			t.ItemGroups = patch.ItemGroups
			return nil
		})
		return key, err
	})
	if err != nil {
		return Tier{}, res, err
	}
	return updated, res, nil
}

// DeleteTier removes a tier. Nothing references tiers, so no policy applies.
func (s *Service) DeleteTier(ctx context.Context, key string) (Result, error) {
	return s.run(ctx, "delete_tier", EntityTier, func(tx domain.Transaction) (string, error) {
		return key, tx.DeleteTier(key)
	})
}

// GetTier resolves a tier by key.
func (s *Service) GetTier(key string) (Tier, bool) {
	return s.store.GetTier(key)
}

// ListTiers returns tiers in insertion order.
func (s *Service) ListTiers() []Tier {
	return s.store.ListTiers()
}

// Settings returns the blueprint-wide settings.
func (s *Service) Settings() Settings {
	return s.store.Settings()
}

// UpdateSettings replaces the blueprint-wide settings.
func (s *Service) UpdateSettings(ctx context.Context, in SettingsInput) (Settings, Result, error) {
	var updated Settings
	res, err := s.run(ctx, "update_settings", EntitySettings, func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateSettings(func(st *Settings) error {
			st.GameTitle = in.GameTitle
			st.OfflineProgressEnabled = in.OfflineProgressEnabled
			return nil
		})
		return "", err
	})
	if err != nil {
		return Settings{}, res, err
	}
	return updated, res, nil
}

// Blueprint returns the full ordered configuration.
func (s *Service) Blueprint() Blueprint {
	return s.store.Blueprint()
}
