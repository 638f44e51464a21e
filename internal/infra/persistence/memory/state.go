package memory

import (
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/ident"
	"blueprintcore/pkg/numeric"
)

// collection keeps records addressable by key while preserving insertion order.
type collection[T any] struct {
	order []string
	items map[string]T
}

func newCollection[T any]() collection[T] {
	return collection[T]{items: make(map[string]T)}
}

func (c *collection[T]) get(key string) (T, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *collection[T]) has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// put stores v under key. New keys are appended; existing keys keep their position.
func (c *collection[T]) put(key string, v T) {
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = v
}

func (c *collection[T]) remove(key string) {
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *collection[T]) keys() []string {
	return append([]string(nil), c.order...)
}

func (c *collection[T]) list(clone func(T) T) []T {
	out := make([]T, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, clone(c.items[k]))
	}
	return out
}

func (c *collection[T]) cloneWith(clone func(T) T) collection[T] {
	out := collection[T]{
		order: append([]string(nil), c.order...),
		items: make(map[string]T, len(c.items)),
	}
	for k, v := range c.items {
		out.items[k] = clone(v)
	}
	return out
}

type memoryState struct {
	settings   domain.Settings
	resources  collection[domain.Resource]
	generators collection[domain.Generator]
	upgrades   collection[domain.Upgrade]
	tiers      collection[domain.Tier]
}

// Snapshot captures a point-in-time clone of the store state. Slices are in
// insertion order.
type Snapshot struct {
	Settings   domain.Settings    `json:"settings"`
	Resources  []domain.Resource  `json:"resources"`
	Generators []domain.Generator `json:"generators"`
	Upgrades   []domain.Upgrade   `json:"upgrades"`
	Tiers      []domain.Tier      `json:"tiers"`
}

func newMemoryState() memoryState {
	return memoryState{
		settings:   domain.DefaultSettings(),
		resources:  newCollection[domain.Resource](),
		generators: newCollection[domain.Generator](),
		upgrades:   newCollection[domain.Upgrade](),
		tiers:      newCollection[domain.Tier](),
	}
}

func (s memoryState) clone() memoryState {
	return memoryState{
		settings:   s.settings,
		resources:  s.resources.cloneWith(cloneResource),
		generators: s.generators.cloneWith(cloneGenerator),
		upgrades:   s.upgrades.cloneWith(cloneUpgrade),
		tiers:      s.tiers.cloneWith(cloneTier),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		Settings:   state.settings,
		Resources:  state.resources.list(cloneResource),
		Generators: state.generators.list(cloneGenerator),
		Upgrades:   state.upgrades.list(cloneUpgrade),
		Tiers:      state.tiers.list(cloneTier),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.settings = s.Settings
	for _, r := range s.Resources {
		state.resources.put(r.Key, cloneResource(r))
	}
	for _, g := range s.Generators {
		state.generators.put(g.Key, cloneGenerator(g))
	}
	for _, u := range s.Upgrades {
		state.upgrades.put(u.Key, cloneUpgrade(u))
	}
	for _, t := range s.Tiers {
		state.tiers.put(t.Key, cloneTier(t))
	}
	return state
}

// migrateSnapshot normalises imported data so every invariant holds: records with
// unusable keys are dropped (first occurrence of a key wins), non-finite numbers
// reset to zero and references to missing records are removed.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{Settings: snapshot.Settings}
	if out.Settings.GameTitle == "" {
		out.Settings.GameTitle = domain.DefaultGameTitle
	}

	resources := make(map[string]bool)
	for _, r := range snapshot.Resources {
		if !ident.Valid(r.Key) || resources[r.Key] {
			continue
		}
		resources[r.Key] = true
		r.Version = max(r.Version, 1)
		if !numeric.Finite(r.StartingAmount) {
			r.StartingAmount = 0
		}
		out.Resources = append(out.Resources, cloneResource(r))
	}

	generators := make(map[string]bool)
	for _, g := range snapshot.Generators {
		if !ident.Valid(g.Key) || generators[g.Key] || !resources[g.ProducesResource] {
			continue
		}
		generators[g.Key] = true
		g.Version = max(g.Version, 1)
		if !numeric.Finite(g.BaseProductionAmount) {
			g.BaseProductionAmount = 0
		}
		g.Costs = filterCosts(g.Costs, resources)
		out.Generators = append(out.Generators, g)
	}

	upgrades := make(map[string]bool)
	for _, u := range snapshot.Upgrades {
		if !ident.Valid(u.Key) || upgrades[u.Key] || !generators[u.Target] {
			continue
		}
		upgrades[u.Key] = true
		u.Version = max(u.Version, 1)
		u.Costs = filterCosts(u.Costs, resources)
		out.Upgrades = append(out.Upgrades, u)
	}

	tiers := make(map[string]bool)
	for _, t := range snapshot.Tiers {
		if !ident.Valid(t.Key) || tiers[t.Key] {
			continue
		}
		tiers[t.Key] = true
		t.Version = max(t.Version, 1)
		groups := make([]domain.ItemGroup, 0, len(t.ItemGroups))
		for _, g := range t.ItemGroups {
			if !resources[g.Resource] {
				g.Resource = ""
			}
			if !generators[g.Generator] {
				g.Generator = ""
			}
			if !upgrades[g.Upgrade] {
				g.Upgrade = ""
			}
			if !g.Empty() {
				groups = append(groups, g)
			}
		}
		t.ItemGroups = groups
		out.Tiers = append(out.Tiers, t)
	}
	return out
}

func filterCosts(costs []domain.CostEntry, resources map[string]bool) []domain.CostEntry {
	out := make([]domain.CostEntry, 0, len(costs))
	for _, c := range costs {
		if !resources[c.Resource] || !numeric.Finite(c.Amount) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func cloneResource(r domain.Resource) domain.Resource { return r }

func cloneCosts(costs []domain.CostEntry) []domain.CostEntry {
	if costs == nil {
		return []domain.CostEntry{}
	}
	return append([]domain.CostEntry(nil), costs...)
}

func cloneGenerator(g domain.Generator) domain.Generator {
	g.Costs = cloneCosts(g.Costs)
	return g
}

func cloneUpgrade(u domain.Upgrade) domain.Upgrade {
	u.Costs = cloneCosts(u.Costs)
	return u
}

func cloneTier(t domain.Tier) domain.Tier {
	if t.ItemGroups == nil {
		t.ItemGroups = []domain.ItemGroup{}
	} else {
		t.ItemGroups = append([]domain.ItemGroup(nil), t.ItemGroups...)
	}
	return t
}
