// Package memory provides an in-memory implementation of the blueprint
// persistence store used for tests, ephemeral environments and as the working
// set of the durable backends.
package memory

import (
	"context"
	"sync"
	"time"

	"blueprintcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Store provides an in-memory transactional store for blueprints.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Any error from fn or a blocking rule discards the copy.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

// Read helpers ---------------------------------------------------------------

// GetResource retrieves a resource by key from committed state.
func (s *Store) GetResource(key string) (domain.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.resources.get(key)
	return cloneResource(r), ok
}

// ListResources returns all resources in insertion order.
func (s *Store) ListResources() []domain.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.resources.list(cloneResource)
}

// GetGenerator retrieves a generator by key.
func (s *Store) GetGenerator(key string) (domain.Generator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.generators.get(key)
	if !ok {
		return domain.Generator{}, false
	}
	return cloneGenerator(g), true
}

// ListGenerators returns all generators in insertion order.
func (s *Store) ListGenerators() []domain.Generator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.generators.list(cloneGenerator)
}

// GetUpgrade retrieves an upgrade by key.
func (s *Store) GetUpgrade(key string) (domain.Upgrade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.upgrades.get(key)
	if !ok {
		return domain.Upgrade{}, false
	}
	return cloneUpgrade(u), true
}

// ListUpgrades returns all upgrades in insertion order.
func (s *Store) ListUpgrades() []domain.Upgrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.upgrades.list(cloneUpgrade)
}

// GetTier retrieves a tier by key.
func (s *Store) GetTier(key string) (domain.Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tiers.get(key)
	if !ok {
		return domain.Tier{}, false
	}
	return cloneTier(t), true
}

// ListTiers returns all tiers in insertion order.
func (s *Store) ListTiers() []domain.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.tiers.list(cloneTier)
}

// Settings returns the committed blueprint settings.
func (s *Store) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.settings
}

// Blueprint returns the full ordered configuration.
func (s *Store) Blueprint() domain.Blueprint {
	snap := s.ExportState()
	return domain.Blueprint{
		FormatVersion: domain.BlueprintFormatVersion,
		Settings:      snap.Settings,
		Resources:     snap.Resources,
		Generators:    snap.Generators,
		Upgrades:      snap.Upgrades,
		Tiers:         snap.Tiers,
	}
}
