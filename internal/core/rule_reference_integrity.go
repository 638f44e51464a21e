package core

import (
	"context"
	"fmt"

	"blueprintcore/pkg/costlist"
	"blueprintcore/pkg/domain"
)

const referenceIntegrityRuleName = "reference_integrity"

// NewReferenceIntegrityRule returns the rule that blocks any commit leaving a
// reference without a target. It scans the whole view, not just the changes.
func NewReferenceIntegrityRule() domain.Rule {
	return referenceIntegrityRule{}
}

type referenceIntegrityRule struct{}

func (referenceIntegrityRule) Name() string { return referenceIntegrityRuleName }

func (referenceIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	missing := func(entity domain.EntityType, key, field string, target domain.Ref) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     referenceIntegrityRuleName,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %s: %s references missing %s", entity, key, field, target),
			Entity:   entity,
			Key:      key,
			Field:    field,
		})
	}
	resourceExists := func(key string) bool { _, ok := view.FindResource(key); return ok }
	checkCosts := func(entity domain.EntityType, key string, costs []domain.CostEntry) {
		for i, c := range costs {
			if !resourceExists(c.Resource) {
				missing(entity, key, costlist.FieldName(i, "resource"), domain.Ref{Entity: domain.EntityResource, Key: c.Resource})
			}
		}
	}

	for _, g := range view.ListGenerators() {
		if !resourceExists(g.ProducesResource) {
			missing(domain.EntityGenerator, g.Key, "produces_resource", domain.Ref{Entity: domain.EntityResource, Key: g.ProducesResource})
		}
		checkCosts(domain.EntityGenerator, g.Key, g.Costs)
	}
	for _, u := range view.ListUpgrades() {
		if _, ok := view.FindGenerator(u.Target); !ok {
			missing(domain.EntityUpgrade, u.Key, "target", domain.Ref{Entity: domain.EntityGenerator, Key: u.Target})
		}
		checkCosts(domain.EntityUpgrade, u.Key, u.Costs)
	}
	for _, t := range view.ListTiers() {
		for i, group := range t.ItemGroups {
			if group.Empty() {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     referenceIntegrityRuleName,
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("tier %s: item group %d has no populated slot", t.Key, i),
					Entity:   domain.EntityTier,
					Key:      t.Key,
					Field:    fmt.Sprintf("item_groups[%d]", i),
				})
				continue
			}
			for _, ref := range group.Refs() {
				if !refExists(view, ref) {
					missing(domain.EntityTier, t.Key, fmt.Sprintf("item_groups[%d].%s", i, ref.Entity), ref)
				}
			}
		}
	}
	return res, nil
}

func refExists(view domain.RuleView, ref domain.Ref) bool {
	var ok bool
	switch ref.Entity {
	case domain.EntityResource:
		_, ok = view.FindResource(ref.Key)
	case domain.EntityGenerator:
		_, ok = view.FindGenerator(ref.Key)
	case domain.EntityUpgrade:
		_, ok = view.FindUpgrade(ref.Key)
	case domain.EntityTier:
		_, ok = view.FindTier(ref.Key)
	}
	return ok
}
