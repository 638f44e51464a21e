// Package domain defines the blueprint entities, value types, error taxonomy and
// rule evaluation primitives used by blueprintcore.
package domain

import "time"

// EntityType identifies the kind of record stored in a blueprint.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityResource identifies a resource record (e.g. Gold).
	EntityResource EntityType = "resource"
	// EntityGenerator identifies a generator record producing a resource.
	EntityGenerator EntityType = "generator"
	// EntityUpgrade identifies an upgrade record targeting a generator.
	EntityUpgrade EntityType = "upgrade"
	// EntityTier identifies a tier (game zone) record.
	EntityTier EntityType = "tier"
	// EntitySettings identifies the blueprint-wide settings record.
	EntitySettings EntityType = "settings"
)

// EntityTypes lists the four keyed collections in display order.
var EntityTypes = []EntityType{EntityResource, EntityGenerator, EntityUpgrade, EntityTier}

// ParseEntityType maps a collection name (singular or plural) onto its EntityType.
func ParseEntityType(name string) (EntityType, bool) {
	switch name {
	case "resource", "resources":
		return EntityResource, true
	case "generator", "generators":
		return EntityGenerator, true
	case "upgrade", "upgrades":
		return EntityUpgrade, true
	case "tier", "tiers":
		return EntityTier, true
	default:
		return "", false
	}
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all keyed blueprint records.
type Base struct {
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Resource is a currency or material tracked by the game (Cash, Dirt, Gold).
type Resource struct {
	Base
	StartingAmount float64 `json:"starting_amount"`
}

// CostEntry is one price component of a generator or upgrade.
type CostEntry struct {
	Resource string  `json:"resource"`
	Amount   float64 `json:"amount"`
}

// Generator is a production unit that yields a resource over time.
type Generator struct {
	Base
	ProducesResource     string      `json:"produces_resource"`
	BaseProductionAmount float64     `json:"base_production_amount"`
	Costs                []CostEntry `json:"costs"`
	// CostScaling is an optional expression describing how the price grows with level.
	CostScaling string `json:"cost_scaling,omitempty"`
}

// Upgrade modifies a generator once purchased.
type Upgrade struct {
	Base
	Target string      `json:"target"`
	Costs  []CostEntry `json:"costs"`
	// Effect is an optional expression describing the upgrade multiplier.
	Effect string `json:"effect,omitempty"`
}

// ItemGroup bundles up to one resource, generator and upgrade reference inside a tier.
type ItemGroup struct {
	Resource  string `json:"resource,omitempty"`
	Generator string `json:"generator,omitempty"`
	Upgrade   string `json:"upgrade,omitempty"`
}

// Empty reports whether no slot of the group is populated.
func (g ItemGroup) Empty() bool {
	return g.Resource == "" && g.Generator == "" && g.Upgrade == ""
}

// Refs returns the populated slots of the group as typed references.
func (g ItemGroup) Refs() []Ref {
	var refs []Ref
	if g.Resource != "" {
		refs = append(refs, Ref{Entity: EntityResource, Key: g.Resource})
	}
	if g.Generator != "" {
		refs = append(refs, Ref{Entity: EntityGenerator, Key: g.Generator})
	}
	if g.Upgrade != "" {
		refs = append(refs, Ref{Entity: EntityUpgrade, Key: g.Upgrade})
	}
	return refs
}

// Tier groups references into a game zone.
type Tier struct {
	Base
	ItemGroups []ItemGroup `json:"item_groups"`
}

// Settings holds blueprint-wide options.
type Settings struct {
	GameTitle              string    `json:"game_title"`
	OfflineProgressEnabled bool      `json:"offline_progress_enabled"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DefaultGameTitle is used until the title is edited.
const DefaultGameTitle = "My New Incremental Game"

// DefaultSettings returns the settings of a fresh blueprint.
func DefaultSettings() Settings {
	return Settings{GameTitle: DefaultGameTitle, OfflineProgressEnabled: true}
}

// Ref identifies a keyed record of a given kind.
type Ref struct {
	Entity EntityType `json:"entity"`
	Key    string     `json:"key"`
}

func (r Ref) String() string {
	return string(r.Entity) + ":" + r.Key
}

// Action enumerates change operations captured in the audit trail.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a single mutation recorded inside a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Key    string
	Before any
	After  any
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	Key      string
	Field    string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Blueprint is the full ordered configuration of a game.
type Blueprint struct {
	FormatVersion int         `json:"version"`
	Settings      Settings    `json:"settings"`
	Resources     []Resource  `json:"resources"`
	Generators    []Generator `json:"generators"`
	Upgrades      []Upgrade   `json:"upgrades"`
	Tiers         []Tier      `json:"tiers"`
}

// BlueprintFormatVersion is the current serialized blueprint layout version.
const BlueprintFormatVersion = 1
