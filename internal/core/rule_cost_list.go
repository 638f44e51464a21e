package core

import (
	"context"
	"fmt"

	"blueprintcore/pkg/costlist"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/numeric"
)

const costListRuleName = "cost_list"

// NewCostListRule blocks non-finite numbers on the records touched by a
// transaction. Signed amounts are accepted, matching the numeric validator.
func NewCostListRule() domain.Rule {
	return costListRule{}
}

type costListRule struct{}

func (costListRule) Name() string { return costListRuleName }

func (costListRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	flag := func(entity domain.EntityType, key, field, message string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     costListRuleName,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %s: %s", entity, key, message),
			Entity:   entity,
			Key:      key,
			Field:    field,
		})
	}
	checkCosts := func(entity domain.EntityType, key string, costs []domain.CostEntry) {
		for i, c := range costs {
			if !numeric.Finite(c.Amount) {
				field := costlist.FieldName(i, "amount")
				flag(entity, key, field, fmt.Sprintf("%s is not a finite number", field))
			}
		}
	}

	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		switch change.Entity {
		case domain.EntityResource:
			if r, ok := view.FindResource(change.Key); ok && !numeric.Finite(r.StartingAmount) {
				flag(domain.EntityResource, r.Key, "starting_amount", "starting_amount is not a finite number")
			}
		case domain.EntityGenerator:
			if g, ok := view.FindGenerator(change.Key); ok {
				if !numeric.Finite(g.BaseProductionAmount) {
					flag(domain.EntityGenerator, g.Key, "base_production_amount", "base_production_amount is not a finite number")
				}
				checkCosts(domain.EntityGenerator, g.Key, g.Costs)
			}
		case domain.EntityUpgrade:
			if u, ok := view.FindUpgrade(change.Key); ok {
				checkCosts(domain.EntityUpgrade, u.Key, u.Costs)
			}
		}
	}
	return res, nil
}
