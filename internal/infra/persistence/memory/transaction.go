package memory

import (
	"fmt"
	"strings"
	"time"

	"blueprintcore/pkg/costlist"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/ident"
	"blueprintcore/pkg/numeric"
)

// transaction represents a mutation set applied to the store state.
type transaction struct {
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) FindResource(key string) (domain.Resource, bool) {
	return tx.state.resources.get(key)
}

func (tx *transaction) FindGenerator(key string) (domain.Generator, bool) {
	return newTransactionView(&tx.state).FindGenerator(key)
}

func (tx *transaction) FindUpgrade(key string) (domain.Upgrade, bool) {
	return newTransactionView(&tx.state).FindUpgrade(key)
}

func (tx *transaction) FindTier(key string) (domain.Tier, bool) {
	return newTransactionView(&tx.state).FindTier(key)
}

// assignKey derives the key of a new record from its display name. Any key
// supplied by the caller is replaced so duplicate detection sees the derived key.
func assignKey(entity domain.EntityType, base *domain.Base) error {
	base.DisplayName = strings.TrimSpace(base.DisplayName)
	base.Key = ident.Derive(base.DisplayName)
	if base.Key == "" {
		return &domain.InvalidNameError{Entity: entity, DisplayName: base.DisplayName}
	}
	return nil
}

func (tx *transaction) stampNew(base *domain.Base) {
	base.Version = 1
	base.CreatedAt = tx.now
	base.UpdatedAt = tx.now
}

// stampUpdate restores identity fields a mutator must not change.
func (tx *transaction) stampUpdate(entity domain.EntityType, before domain.Base, after *domain.Base) error {
	after.Key = before.Key
	after.CreatedAt = before.CreatedAt
	after.Version = before.Version + 1
	after.UpdatedAt = tx.now
	after.DisplayName = strings.TrimSpace(after.DisplayName)
	if ident.Derive(after.DisplayName) == "" {
		return &domain.InvalidNameError{Entity: entity, DisplayName: after.DisplayName}
	}
	return nil
}

func checkVersion(entity domain.EntityType, key string, opts domain.UpdateOptions, actual int64) error {
	if opts.ExpectedVersion != 0 && opts.ExpectedVersion != actual {
		return &domain.VersionConflictError{Entity: entity, Key: key, Expected: opts.ExpectedVersion, Actual: actual}
	}
	return nil
}

func checkFinite(field string, v float64) error {
	if !numeric.Finite(v) {
		return &domain.InvalidNumberError{FieldName: field, Raw: fmt.Sprint(v), Reason: "not finite"}
	}
	return nil
}

func (tx *transaction) requireResource(field, key string) error {
	if !tx.state.resources.has(key) {
		return &domain.DanglingReferenceError{FieldName: field, Target: domain.Ref{Entity: domain.EntityResource, Key: key}}
	}
	return nil
}

func (tx *transaction) requireGenerator(field, key string) error {
	if !tx.state.generators.has(key) {
		return &domain.DanglingReferenceError{FieldName: field, Target: domain.Ref{Entity: domain.EntityGenerator, Key: key}}
	}
	return nil
}

func (tx *transaction) requireUpgrade(field, key string) error {
	if !tx.state.upgrades.has(key) {
		return &domain.DanglingReferenceError{FieldName: field, Target: domain.Ref{Entity: domain.EntityUpgrade, Key: key}}
	}
	return nil
}

func (tx *transaction) validateCosts(costs []domain.CostEntry) error {
	for i, c := range costs {
		if err := tx.requireResource(costlist.FieldName(i, "resource"), c.Resource); err != nil {
			return err
		}
		if err := checkFinite(costlist.FieldName(i, "amount"), c.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (tx *transaction) validateResource(r domain.Resource) error {
	return checkFinite("starting_amount", r.StartingAmount)
}

func (tx *transaction) validateGenerator(g domain.Generator) error {
	if err := tx.requireResource("produces_resource", g.ProducesResource); err != nil {
		return err
	}
	if err := checkFinite("base_production_amount", g.BaseProductionAmount); err != nil {
		return err
	}
	if err := tx.validateCosts(g.Costs); err != nil {
		return err
	}
	return numeric.CheckFormula("cost_scaling", g.CostScaling)
}

func (tx *transaction) validateUpgrade(u domain.Upgrade) error {
	if err := tx.requireGenerator("target", u.Target); err != nil {
		return err
	}
	if err := tx.validateCosts(u.Costs); err != nil {
		return err
	}
	return numeric.CheckFormula("effect", u.Effect)
}

func (tx *transaction) validateTier(t domain.Tier) error {
	for i, g := range t.ItemGroups {
		if g.Empty() {
			return &domain.EmptyItemGroupError{Tier: t.Key}
		}
		prefix := fmt.Sprintf("item_groups[%d].", i)
		if g.Resource != "" {
			if err := tx.requireResource(prefix+"resource", g.Resource); err != nil {
				return err
			}
		}
		if g.Generator != "" {
			if err := tx.requireGenerator(prefix+"generator", g.Generator); err != nil {
				return err
			}
		}
		if g.Upgrade != "" {
			if err := tx.requireUpgrade(prefix+"upgrade", g.Upgrade); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateResource stores a new resource keyed by its derived identifier.
func (tx *transaction) CreateResource(r domain.Resource) (domain.Resource, error) {
	if err := assignKey(domain.EntityResource, &r.Base); err != nil {
		return domain.Resource{}, err
	}
	if tx.state.resources.has(r.Key) {
		return domain.Resource{}, &domain.DuplicateKeyError{Entity: domain.EntityResource, Key: r.Key}
	}
	if err := tx.validateResource(r); err != nil {
		return domain.Resource{}, err
	}
	tx.stampNew(&r.Base)
	tx.state.resources.put(r.Key, r)
	tx.recordChange(domain.Change{Entity: domain.EntityResource, Action: domain.ActionCreate, Key: r.Key, After: r})
	return r, nil
}

// UpdateResource mutates a resource. The key is stable across renames.
func (tx *transaction) UpdateResource(key string, opts domain.UpdateOptions, mutator func(*domain.Resource) error) (domain.Resource, error) {
	current, ok := tx.state.resources.get(key)
	if !ok {
		return domain.Resource{}, &domain.NotFoundError{Entity: domain.EntityResource, Key: key}
	}
	if err := checkVersion(domain.EntityResource, key, opts, current.Version); err != nil {
		return domain.Resource{}, err
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.stampUpdate(domain.EntityResource, before.Base, &current.Base); err != nil {
		return domain.Resource{}, err
	}
	if err := tx.validateResource(current); err != nil {
		return domain.Resource{}, err
	}
	tx.state.resources.put(key, current)
	tx.recordChange(domain.Change{Entity: domain.EntityResource, Action: domain.ActionUpdate, Key: key, Before: before, After: current})
	return current, nil
}

// DeleteResource removes a resource according to policy.
func (tx *transaction) DeleteResource(key string, policy domain.DeletePolicy) error {
	return tx.delete(domain.Ref{Entity: domain.EntityResource, Key: key}, policy)
}

// CreateGenerator stores a new generator.
func (tx *transaction) CreateGenerator(g domain.Generator) (domain.Generator, error) {
	if err := assignKey(domain.EntityGenerator, &g.Base); err != nil {
		return domain.Generator{}, err
	}
	if tx.state.generators.has(g.Key) {
		return domain.Generator{}, &domain.DuplicateKeyError{Entity: domain.EntityGenerator, Key: g.Key}
	}
	g = cloneGenerator(g)
	if err := tx.validateGenerator(g); err != nil {
		return domain.Generator{}, err
	}
	tx.stampNew(&g.Base)
	tx.state.generators.put(g.Key, g)
	tx.recordChange(domain.Change{Entity: domain.EntityGenerator, Action: domain.ActionCreate, Key: g.Key, After: cloneGenerator(g)})
	return cloneGenerator(g), nil
}

// UpdateGenerator mutates a generator and re-validates it in full.
func (tx *transaction) UpdateGenerator(key string, opts domain.UpdateOptions, mutator func(*domain.Generator) error) (domain.Generator, error) {
	stored, ok := tx.state.generators.get(key)
	if !ok {
		return domain.Generator{}, &domain.NotFoundError{Entity: domain.EntityGenerator, Key: key}
	}
	if err := checkVersion(domain.EntityGenerator, key, opts, stored.Version); err != nil {
		return domain.Generator{}, err
	}
	before := cloneGenerator(stored)
	current := cloneGenerator(stored)
	if err := mutator(&current); err != nil {
		return domain.Generator{}, err
	}
	if err := tx.stampUpdate(domain.EntityGenerator, before.Base, &current.Base); err != nil {
		return domain.Generator{}, err
	}
	current = cloneGenerator(current)
	if err := tx.validateGenerator(current); err != nil {
		return domain.Generator{}, err
	}
	tx.state.generators.put(key, current)
	tx.recordChange(domain.Change{Entity: domain.EntityGenerator, Action: domain.ActionUpdate, Key: key, Before: before, After: cloneGenerator(current)})
	return cloneGenerator(current), nil
}

// DeleteGenerator removes a generator according to policy.
func (tx *transaction) DeleteGenerator(key string, policy domain.DeletePolicy) error {
	return tx.delete(domain.Ref{Entity: domain.EntityGenerator, Key: key}, policy)
}

// CreateUpgrade stores a new upgrade.
func (tx *transaction) CreateUpgrade(u domain.Upgrade) (domain.Upgrade, error) {
	if err := assignKey(domain.EntityUpgrade, &u.Base); err != nil {
		return domain.Upgrade{}, err
	}
	if tx.state.upgrades.has(u.Key) {
		return domain.Upgrade{}, &domain.DuplicateKeyError{Entity: domain.EntityUpgrade, Key: u.Key}
	}
	u = cloneUpgrade(u)
	if err := tx.validateUpgrade(u); err != nil {
		return domain.Upgrade{}, err
	}
	tx.stampNew(&u.Base)
	tx.state.upgrades.put(u.Key, u)
	tx.recordChange(domain.Change{Entity: domain.EntityUpgrade, Action: domain.ActionCreate, Key: u.Key, After: cloneUpgrade(u)})
	return cloneUpgrade(u), nil
}

// UpdateUpgrade mutates an upgrade and re-validates it in full.
func (tx *transaction) UpdateUpgrade(key string, opts domain.UpdateOptions, mutator func(*domain.Upgrade) error) (domain.Upgrade, error) {
	stored, ok := tx.state.upgrades.get(key)
	if !ok {
		return domain.Upgrade{}, &domain.NotFoundError{Entity: domain.EntityUpgrade, Key: key}
	}
	if err := checkVersion(domain.EntityUpgrade, key, opts, stored.Version); err != nil {
		return domain.Upgrade{}, err
	}
	before := cloneUpgrade(stored)
	current := cloneUpgrade(stored)
	if err := mutator(&current); err != nil {
		return domain.Upgrade{}, err
	}
	if err := tx.stampUpdate(domain.EntityUpgrade, before.Base, &current.Base); err != nil {
		return domain.Upgrade{}, err
	}
	current = cloneUpgrade(current)
	if err := tx.validateUpgrade(current); err != nil {
		return domain.Upgrade{}, err
	}
	tx.state.upgrades.put(key, current)
	tx.recordChange(domain.Change{Entity: domain.EntityUpgrade, Action: domain.ActionUpdate, Key: key, Before: before, After: cloneUpgrade(current)})
	return cloneUpgrade(current), nil
}

// DeleteUpgrade removes an upgrade according to policy.
func (tx *transaction) DeleteUpgrade(key string, policy domain.DeletePolicy) error {
	return tx.delete(domain.Ref{Entity: domain.EntityUpgrade, Key: key}, policy)
}

// CreateTier stores a new tier. Item groups are validated in order.
func (tx *transaction) CreateTier(t domain.Tier) (domain.Tier, error) {
	if err := assignKey(domain.EntityTier, &t.Base); err != nil {
		return domain.Tier{}, err
	}
	if tx.state.tiers.has(t.Key) {
		return domain.Tier{}, &domain.DuplicateKeyError{Entity: domain.EntityTier, Key: t.Key}
	}
	t = cloneTier(t)
	if err := tx.validateTier(t); err != nil {
		return domain.Tier{}, err
	}
	tx.stampNew(&t.Base)
	tx.state.tiers.put(t.Key, t)
	tx.recordChange(domain.Change{Entity: domain.EntityTier, Action: domain.ActionCreate, Key: t.Key, After: cloneTier(t)})
	return cloneTier(t), nil
}

// UpdateTier mutates a tier and re-validates every item group.
func (tx *transaction) UpdateTier(key string, opts domain.UpdateOptions, mutator func(*domain.Tier) error) (domain.Tier, error) {
	stored, ok := tx.state.tiers.get(key)
	if !ok {
		return domain.Tier{}, &domain.NotFoundError{Entity: domain.EntityTier, Key: key}
	}
	if err := checkVersion(domain.EntityTier, key, opts, stored.Version); err != nil {
		return domain.Tier{}, err
	}
	before := cloneTier(stored)
	current := cloneTier(stored)
	if err := mutator(&current); err != nil {
		return domain.Tier{}, err
	}
	if err := tx.stampUpdate(domain.EntityTier, before.Base, &current.Base); err != nil {
		return domain.Tier{}, err
	}
	current = cloneTier(current)
	if err := tx.validateTier(current); err != nil {
		return domain.Tier{}, err
	}
	tx.state.tiers.put(key, current)
	tx.recordChange(domain.Change{Entity: domain.EntityTier, Action: domain.ActionUpdate, Key: key, Before: before, After: cloneTier(current)})
	return cloneTier(current), nil
}

// DeleteTier removes a tier. Nothing references tiers, so no policy applies.
func (tx *transaction) DeleteTier(key string) error {
	return tx.delete(domain.Ref{Entity: domain.EntityTier, Key: key}, domain.DeletePolicyRefuse)
}

// UpdateSettings mutates the blueprint settings. A blank title reverts to the default.
func (tx *transaction) UpdateSettings(mutator func(*domain.Settings) error) (domain.Settings, error) {
	before := tx.state.settings
	current := before
	if err := mutator(&current); err != nil {
		return domain.Settings{}, err
	}
	current.GameTitle = strings.TrimSpace(current.GameTitle)
	if current.GameTitle == "" {
		current.GameTitle = domain.DefaultGameTitle
	}
	current.UpdatedAt = tx.now
	tx.state.settings = current
	tx.recordChange(domain.Change{Entity: domain.EntitySettings, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}
