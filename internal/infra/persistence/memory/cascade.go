package memory

import "blueprintcore/pkg/domain"

// delete removes ref. Under the refuse policy any dependent aborts the delete;
// under cascade dependents are removed or rewritten first, transitively.
func (tx *transaction) delete(ref domain.Ref, policy domain.DeletePolicy) error {
	if !tx.exists(ref) {
		return &domain.NotFoundError{Entity: ref.Entity, Key: ref.Key}
	}
	deps := dependents(&tx.state, ref)
	if len(deps) > 0 && policy != domain.DeletePolicyCascade {
		return &domain.ReferencedByOthersError{Target: ref, Dependents: deps}
	}
	for _, dep := range deps {
		if err := tx.detach(dep, ref); err != nil {
			return err
		}
	}
	tx.remove(ref)
	return nil
}

func (tx *transaction) exists(ref domain.Ref) bool {
	switch ref.Entity {
	case domain.EntityResource:
		return tx.state.resources.has(ref.Key)
	case domain.EntityGenerator:
		return tx.state.generators.has(ref.Key)
	case domain.EntityUpgrade:
		return tx.state.upgrades.has(ref.Key)
	case domain.EntityTier:
		return tx.state.tiers.has(ref.Key)
	default:
		return false
	}
}

func (tx *transaction) remove(ref domain.Ref) {
	var before any
	switch ref.Entity {
	case domain.EntityResource:
		before, _ = tx.state.resources.get(ref.Key)
		tx.state.resources.remove(ref.Key)
	case domain.EntityGenerator:
		g, _ := tx.state.generators.get(ref.Key)
		before = cloneGenerator(g)
		tx.state.generators.remove(ref.Key)
	case domain.EntityUpgrade:
		u, _ := tx.state.upgrades.get(ref.Key)
		before = cloneUpgrade(u)
		tx.state.upgrades.remove(ref.Key)
	case domain.EntityTier:
		t, _ := tx.state.tiers.get(ref.Key)
		before = cloneTier(t)
		tx.state.tiers.remove(ref.Key)
	}
	tx.recordChange(domain.Change{Entity: ref.Entity, Action: domain.ActionDelete, Key: ref.Key, Before: before})
}

// detach removes the reference dep holds on target. A dependent whose required
// reference points at target is itself deleted with cascade.
func (tx *transaction) detach(dep, target domain.Ref) error {
	if !tx.exists(dep) {
		// already removed earlier in this cascade
		return nil
	}
	switch dep.Entity {
	case domain.EntityGenerator:
		g, _ := tx.state.generators.get(dep.Key)
		if g.ProducesResource == target.Key {
			return tx.delete(dep, domain.DeletePolicyCascade)
		}
		before := cloneGenerator(g)
		g.Costs = dropCosts(g.Costs, target.Key)
		tx.bump(&g.Base)
		tx.state.generators.put(dep.Key, g)
		tx.recordChange(domain.Change{Entity: dep.Entity, Action: domain.ActionUpdate, Key: dep.Key, Before: before, After: cloneGenerator(g)})
	case domain.EntityUpgrade:
		u, _ := tx.state.upgrades.get(dep.Key)
		if target.Entity == domain.EntityGenerator {
			return tx.delete(dep, domain.DeletePolicyCascade)
		}
		before := cloneUpgrade(u)
		u.Costs = dropCosts(u.Costs, target.Key)
		tx.bump(&u.Base)
		tx.state.upgrades.put(dep.Key, u)
		tx.recordChange(domain.Change{Entity: dep.Entity, Action: domain.ActionUpdate, Key: dep.Key, Before: before, After: cloneUpgrade(u)})
	case domain.EntityTier:
		t, _ := tx.state.tiers.get(dep.Key)
		before := cloneTier(t)
		t.ItemGroups = clearSlots(t.ItemGroups, target)
		tx.bump(&t.Base)
		tx.state.tiers.put(dep.Key, t)
		tx.recordChange(domain.Change{Entity: dep.Entity, Action: domain.ActionUpdate, Key: dep.Key, Before: before, After: cloneTier(t)})
	}
	return nil
}

func (tx *transaction) bump(base *domain.Base) {
	base.Version++
	base.UpdatedAt = tx.now
}

func dropCosts(costs []domain.CostEntry, resource string) []domain.CostEntry {
	out := make([]domain.CostEntry, 0, len(costs))
	for _, c := range costs {
		if c.Resource != resource {
			out = append(out, c)
		}
	}
	return out
}

// clearSlots empties every slot pointing at target and drops groups left empty.
func clearSlots(groups []domain.ItemGroup, target domain.Ref) []domain.ItemGroup {
	out := make([]domain.ItemGroup, 0, len(groups))
	for _, g := range groups {
		switch target.Entity {
		case domain.EntityResource:
			if g.Resource == target.Key {
				g.Resource = ""
			}
		case domain.EntityGenerator:
			if g.Generator == target.Key {
				g.Generator = ""
			}
		case domain.EntityUpgrade:
			if g.Upgrade == target.Key {
				g.Upgrade = ""
			}
		}
		if !g.Empty() {
			out = append(out, g)
		}
	}
	return out
}
