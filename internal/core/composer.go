package core

import (
	"context"
	"fmt"

	"blueprintcore/pkg/domain"
)

// Option is one selectable entity in an editor selector.
type Option struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Label       string `json:"label"`
}

func optionFor(base domain.Base) Option {
	return Option{
		Key:         base.Key,
		DisplayName: base.DisplayName,
		Label:       fmt.Sprintf("%s (%s)", base.DisplayName, base.Key),
	}
}

// UnknownEntityError is returned for a kind the composer cannot list.
type UnknownEntityError struct {
	Entity EntityType
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity kind %q", e.Entity)
}

// ItemGroupIndexError reports an item group position outside the tier.
type ItemGroupIndexError struct {
	Tier  string
	Index int
	Len   int
}

func (e *ItemGroupIndexError) Error() string {
	return fmt.Sprintf("tier %s has no item group %d (len %d)", e.Tier, e.Index, e.Len)
}

// ListAvailable projects the current store contents of kind into selector
// options, in insertion order. It reads the store on every call.
func (s *Service) ListAvailable(kind EntityType) ([]Option, error) {
	var out []Option
	switch kind {
	case EntityResource:
		for _, r := range s.store.ListResources() {
			out = append(out, optionFor(r.Base))
		}
	case EntityGenerator:
		for _, g := range s.store.ListGenerators() {
			out = append(out, optionFor(g.Base))
		}
	case EntityUpgrade:
		for _, u := range s.store.ListUpgrades() {
			out = append(out, optionFor(u.Base))
		}
	case EntityTier:
		for _, t := range s.store.ListTiers() {
			out = append(out, optionFor(t.Base))
		}
	default:
		return nil, &UnknownEntityError{Entity: kind}
	}
	if out == nil {
		out = []Option{}
	}
	return out, nil
}

// AddItemGroup appends group to a tier. Empty groups and unresolved slots are rejected.
func (s *Service) AddItemGroup(ctx context.Context, tierKey string, group ItemGroup, opts UpdateOptions) (Tier, Result, error) {
	var updated Tier
	res, err := s.run(ctx, "add_item_group", EntityTier, func(tx domain.Transaction) (string, error) {
		if group.Empty() {
			return tierKey, &domain.EmptyItemGroupError{Tier: tierKey}
		}
		var err error
		updated, err = tx.UpdateTier(tierKey, opts, func(t *Tier) error {
			t.ItemGroups = append(t.ItemGroups, group)
			return nil
		})
		return tierKey, err
	})
	if err != nil {
		return Tier{}, res, err
	}
	return updated, res, nil
}

// RemoveItemGroup drops the group at index; later groups shift down.
func (s *Service) RemoveItemGroup(ctx context.Context, tierKey string, index int, opts UpdateOptions) (Tier, Result, error) {
	var updated Tier
	res, err := s.run(ctx, "remove_item_group", EntityTier, func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateTier(tierKey, opts, func(t *Tier) error {
			if index < 0 || index >= len(t.ItemGroups) {
				return &ItemGroupIndexError{Tier: tierKey, Index: index, Len: len(t.ItemGroups)}
			}
			groups := make([]ItemGroup, 0, len(t.ItemGroups)-1)
			groups = append(groups, t.ItemGroups[:index]...)
			t.ItemGroups = append(groups, t.ItemGroups[index+1:]...)
			return nil
		})
		return tierKey, err
	})
	if err != nil {
		return Tier{}, res, err
	}
	return updated, res, nil
}

// SlotView is a resolved item-group slot.
type SlotView struct {
	Option
	Entity EntityType `json:"entity"`
}

// GroupView is an item group with display names resolved.
type GroupView struct {
	Index int        `json:"index"`
	Slots []SlotView `json:"slots"`
}

// TierView is a tier with its item groups resolved for display.
type TierView struct {
	Key         string      `json:"key"`
	DisplayName string      `json:"display_name"`
	Version     int64       `json:"version"`
	Groups      []GroupView `json:"groups"`
}

// DescribeTier resolves display names for every slot of a tier at read time.
func (s *Service) DescribeTier(key string) (TierView, bool) {
	tier, ok := s.store.GetTier(key)
	if !ok {
		return TierView{}, false
	}
	view := TierView{Key: tier.Key, DisplayName: tier.DisplayName, Version: tier.Version, Groups: make([]GroupView, 0, len(tier.ItemGroups))}
	for i, group := range tier.ItemGroups {
		gv := GroupView{Index: i}
		for _, ref := range group.Refs() {
			gv.Slots = append(gv.Slots, SlotView{Option: s.resolveOption(ref), Entity: ref.Entity})
		}
		view.Groups = append(view.Groups, gv)
	}
	return view, true
}

func (s *Service) resolveOption(ref Ref) Option {
	var base domain.Base
	var ok bool
	switch ref.Entity {
	case EntityResource:
		var r Resource
		r, ok = s.store.GetResource(ref.Key)
		base = r.Base
	case EntityGenerator:
		var g Generator
		g, ok = s.store.GetGenerator(ref.Key)
		base = g.Base
	case EntityUpgrade:
		var u Upgrade
		u, ok = s.store.GetUpgrade(ref.Key)
		base = u.Base
	}
	if !ok {
		return Option{Key: ref.Key, Label: ref.Key}
	}
	return optionFor(base)
}
