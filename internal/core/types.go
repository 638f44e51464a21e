package core

import "blueprintcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Resource           = domain.Resource
	Generator          = domain.Generator
	Upgrade            = domain.Upgrade
	Tier               = domain.Tier
	ItemGroup          = domain.ItemGroup
	CostEntry          = domain.CostEntry
	Settings           = domain.Settings
	Blueprint          = domain.Blueprint
	Ref                = domain.Ref
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleView           = domain.RuleView
	DeletePolicy       = domain.DeletePolicy
	UpdateOptions      = domain.UpdateOptions
)

const (
	EntityResource  = domain.EntityResource
	EntityGenerator = domain.EntityGenerator
	EntityUpgrade   = domain.EntityUpgrade
	EntityTier      = domain.EntityTier
	EntitySettings  = domain.EntitySettings
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	DeletePolicyRefuse  = domain.DeletePolicyRefuse
	DeletePolicyCascade = domain.DeletePolicyCascade
)
