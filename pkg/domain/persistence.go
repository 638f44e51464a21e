package domain

import "context"

// DeletePolicy selects how deletes of referenced records are handled.
type DeletePolicy string

const (
	// DeletePolicyRefuse fails the delete with ReferencedByOthersError.
	DeletePolicyRefuse DeletePolicy = "refuse"
	// DeletePolicyCascade removes or rewrites every dependent record.
	DeletePolicyCascade DeletePolicy = "cascade"
)

// ParseDeletePolicy validates a configured policy name. Empty selects refuse.
func ParseDeletePolicy(s string) (DeletePolicy, bool) {
	switch DeletePolicy(s) {
	case "", DeletePolicyRefuse:
		return DeletePolicyRefuse, true
	case DeletePolicyCascade:
		return DeletePolicyCascade, true
	default:
		return "", false
	}
}

// UpdateOptions carries optional preconditions for update operations.
type UpdateOptions struct {
	// ExpectedVersion, when non-zero, must match the stored record's version.
	ExpectedVersion int64
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateResource(Resource) (Resource, error)
	UpdateResource(key string, opts UpdateOptions, mutator func(*Resource) error) (Resource, error)
	DeleteResource(key string, policy DeletePolicy) error
	CreateGenerator(Generator) (Generator, error)
	UpdateGenerator(key string, opts UpdateOptions, mutator func(*Generator) error) (Generator, error)
	DeleteGenerator(key string, policy DeletePolicy) error
	CreateUpgrade(Upgrade) (Upgrade, error)
	UpdateUpgrade(key string, opts UpdateOptions, mutator func(*Upgrade) error) (Upgrade, error)
	DeleteUpgrade(key string, policy DeletePolicy) error
	CreateTier(Tier) (Tier, error)
	UpdateTier(key string, opts UpdateOptions, mutator func(*Tier) error) (Tier, error)
	DeleteTier(key string) error
	UpdateSettings(mutator func(*Settings) error) (Settings, error)
	FindResource(key string) (Resource, bool)
	FindGenerator(key string) (Generator, bool)
	FindUpgrade(key string) (Upgrade, bool)
	FindTier(key string) (Tier, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	Settings() Settings
	Dependents(ref Ref) []Ref
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetResource(key string) (Resource, bool)
	ListResources() []Resource
	GetGenerator(key string) (Generator, bool)
	ListGenerators() []Generator
	GetUpgrade(key string) (Upgrade, bool)
	ListUpgrades() []Upgrade
	GetTier(key string) (Tier, bool)
	ListTiers() []Tier
	Settings() Settings
	Blueprint() Blueprint
	RulesEngine() *RulesEngine
}
