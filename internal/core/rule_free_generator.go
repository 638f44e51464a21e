package core

import (
	"context"
	"fmt"

	"blueprintcore/pkg/domain"
)

const freeGeneratorRuleName = "free_generator"

// NewFreeGeneratorRule warns when a created or updated generator has no cost
// rows. The commit still succeeds.
func NewFreeGeneratorRule() domain.Rule {
	return freeGeneratorRule{}
}

type freeGeneratorRule struct{}

func (freeGeneratorRule) Name() string { return freeGeneratorRuleName }

func (freeGeneratorRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityGenerator || change.Action == domain.ActionDelete {
			continue
		}
		g, ok := view.FindGenerator(change.Key)
		if !ok || len(g.Costs) > 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     freeGeneratorRuleName,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("generator %s has no cost rows and can be bought for free", g.Key),
			Entity:   domain.EntityGenerator,
			Key:      g.Key,
			Field:    "costs",
		})
	}
	return res, nil
}
