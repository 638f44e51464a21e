package memory

import "blueprintcore/pkg/domain"

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListResources() []domain.Resource {
	return v.state.resources.list(cloneResource)
}

func (v transactionView) ListGenerators() []domain.Generator {
	return v.state.generators.list(cloneGenerator)
}

func (v transactionView) ListUpgrades() []domain.Upgrade {
	return v.state.upgrades.list(cloneUpgrade)
}

func (v transactionView) ListTiers() []domain.Tier {
	return v.state.tiers.list(cloneTier)
}

func (v transactionView) FindResource(key string) (domain.Resource, bool) {
	return v.state.resources.get(key)
}

func (v transactionView) FindGenerator(key string) (domain.Generator, bool) {
	g, ok := v.state.generators.get(key)
	if !ok {
		return domain.Generator{}, false
	}
	return cloneGenerator(g), true
}

func (v transactionView) FindUpgrade(key string) (domain.Upgrade, bool) {
	u, ok := v.state.upgrades.get(key)
	if !ok {
		return domain.Upgrade{}, false
	}
	return cloneUpgrade(u), true
}

func (v transactionView) FindTier(key string) (domain.Tier, bool) {
	t, ok := v.state.tiers.get(key)
	if !ok {
		return domain.Tier{}, false
	}
	return cloneTier(t), true
}

func (v transactionView) Settings() domain.Settings {
	return v.state.settings
}

// Dependents lists every record that references ref, in collection order.
func (v transactionView) Dependents(ref domain.Ref) []domain.Ref {
	return dependents(v.state, ref)
}

func dependents(state *memoryState, ref domain.Ref) []domain.Ref {
	var out []domain.Ref
	switch ref.Entity {
	case domain.EntityResource:
		for _, k := range state.generators.order {
			g := state.generators.items[k]
			if g.ProducesResource == ref.Key || costsReference(g.Costs, ref.Key) {
				out = append(out, domain.Ref{Entity: domain.EntityGenerator, Key: k})
			}
		}
		for _, k := range state.upgrades.order {
			if costsReference(state.upgrades.items[k].Costs, ref.Key) {
				out = append(out, domain.Ref{Entity: domain.EntityUpgrade, Key: k})
			}
		}
	case domain.EntityGenerator:
		for _, k := range state.upgrades.order {
			if state.upgrades.items[k].Target == ref.Key {
				out = append(out, domain.Ref{Entity: domain.EntityUpgrade, Key: k})
			}
		}
	case domain.EntityUpgrade, domain.EntityTier, domain.EntitySettings:
	}
	if ref.Entity == domain.EntityTier || ref.Entity == domain.EntitySettings {
		return out
	}
	for _, k := range state.tiers.order {
		for _, group := range state.tiers.items[k].ItemGroups {
			if groupReferences(group, ref) {
				out = append(out, domain.Ref{Entity: domain.EntityTier, Key: k})
				break
			}
		}
	}
	return out
}

func costsReference(costs []domain.CostEntry, resource string) bool {
	for _, c := range costs {
		if c.Resource == resource {
			return true
		}
	}
	return false
}

func groupReferences(group domain.ItemGroup, ref domain.Ref) bool {
	for _, r := range group.Refs() {
		if r == ref {
			return true
		}
	}
	return false
}
