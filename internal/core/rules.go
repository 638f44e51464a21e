package core

import "blueprintcore/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewReferenceIntegrityRule())
	engine.Register(NewCostListRule())
	engine.Register(NewFreeGeneratorRule())
	return engine
}
