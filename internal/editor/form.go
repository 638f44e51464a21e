// Package editor models the per-entity edit forms of the blueprint editor.
// A Form holds raw field text, re-validates synchronously on every change and
// only allows saving once every field is acceptable.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"blueprintcore/internal/core"
	"blueprintcore/pkg/costlist"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/ident"
	"blueprintcore/pkg/numeric"
)

// State is the lifecycle stage of a form.
type State string

const (
	StateEmpty   State = "empty"
	StateEditing State = "editing"
	StateValid   State = "valid"
	StateInvalid State = "invalid"
	StateSaved   State = "saved"
)

// FieldKind selects the validator applied to a field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindOptionalNumber
	KindReference
	KindFormula
	KindBool
)

// Field names shared by the entity forms.
const (
	FieldDisplayName          = "display_name"
	FieldStartingAmount       = "starting_amount"
	FieldProducesResource     = "produces_resource"
	FieldBaseProductionAmount = "base_production_amount"
	FieldCostScaling          = "cost_scaling"
	FieldTarget               = "target"
	FieldEffect               = "effect"
	FieldGameTitle            = "game_title"
	FieldOfflineProgress      = "offline_progress_enabled"
)

// FieldSpec describes one input of a form.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	// Entity is the referenced collection for KindReference fields.
	Entity domain.EntityType
}

// Resolver reports whether a reference currently resolves.
type Resolver interface {
	Exists(ref domain.Ref) bool
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ref domain.Ref) bool

// Exists calls f(ref).
func (f ResolverFunc) Exists(ref domain.Ref) bool { return f(ref) }

// ServiceResolver resolves references against the service's current state.
func ServiceResolver(svc *core.Service) Resolver {
	return ResolverFunc(func(ref domain.Ref) bool {
		var ok bool
		switch ref.Entity {
		case domain.EntityResource:
			_, ok = svc.GetResource(ref.Key)
		case domain.EntityGenerator:
			_, ok = svc.GetGenerator(ref.Key)
		case domain.EntityUpgrade:
			_, ok = svc.GetUpgrade(ref.Key)
		case domain.EntityTier:
			_, ok = svc.GetTier(ref.Key)
		}
		return ok
	})
}

// ErrNotSavable is returned by MarkSaved outside the Valid state.
var ErrNotSavable = errors.New("form is not valid")

// UnknownFieldError reports a Set against a field the form does not have.
type UnknownFieldError struct {
	Entity domain.EntityType
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s form has no field %q", e.Entity, e.Field)
}

// Form is the edit state of one entity.
type Form struct {
	entity   domain.EntityType
	specs    []FieldSpec
	withCost bool
	resolver Resolver

	values  map[string]string
	touched map[string]bool
	errs    map[string]error
	costs   costlist.List
	costErr error
	state   State
}

func newForm(entity domain.EntityType, resolver Resolver, withCosts bool, specs ...FieldSpec) *Form {
	f := &Form{entity: entity, specs: specs, withCost: withCosts, resolver: resolver}
	f.Reset()
	return f
}

// NewResourceForm returns an empty resource form.
func NewResourceForm(resolver Resolver) *Form {
	return newForm(domain.EntityResource, resolver, false,
		FieldSpec{Name: FieldDisplayName, Kind: KindText, Required: true},
		FieldSpec{Name: FieldStartingAmount, Kind: KindOptionalNumber},
	)
}

// NewGeneratorForm returns an empty generator form with a cost list.
func NewGeneratorForm(resolver Resolver) *Form {
	return newForm(domain.EntityGenerator, resolver, true,
		FieldSpec{Name: FieldDisplayName, Kind: KindText, Required: true},
		FieldSpec{Name: FieldProducesResource, Kind: KindReference, Required: true, Entity: domain.EntityResource},
		FieldSpec{Name: FieldBaseProductionAmount, Kind: KindNumber, Required: true},
		FieldSpec{Name: FieldCostScaling, Kind: KindFormula},
	)
}

// NewUpgradeForm returns an empty upgrade form with a cost list.
func NewUpgradeForm(resolver Resolver) *Form {
	return newForm(domain.EntityUpgrade, resolver, true,
		FieldSpec{Name: FieldDisplayName, Kind: KindText, Required: true},
		FieldSpec{Name: FieldTarget, Kind: KindReference, Required: true, Entity: domain.EntityGenerator},
		FieldSpec{Name: FieldEffect, Kind: KindFormula},
	)
}

// NewTierForm returns an empty tier form. Item groups are edited through the
// tier composer once the tier exists.
func NewTierForm(resolver Resolver) *Form {
	return newForm(domain.EntityTier, resolver, false,
		FieldSpec{Name: FieldDisplayName, Kind: KindText, Required: true},
	)
}

// NewSettingsForm returns a settings form.
func NewSettingsForm() *Form {
	return newForm(domain.EntitySettings, nil, false,
		FieldSpec{Name: FieldGameTitle, Kind: KindText},
		FieldSpec{Name: FieldOfflineProgress, Kind: KindBool},
	)
}

// Entity returns the kind the form edits.
func (f *Form) Entity() domain.EntityType { return f.entity }

// State returns the current lifecycle stage.
func (f *Form) State() State { return f.state }

// CanSave reports whether the save action is enabled.
func (f *Form) CanSave() bool { return f.state == StateValid }

// Reset clears every field and returns the form to Empty.
func (f *Form) Reset() {
	f.values = make(map[string]string, len(f.specs))
	f.touched = make(map[string]bool, len(f.specs))
	f.errs = make(map[string]error, len(f.specs))
	f.costs = nil
	f.costErr = nil
	f.state = StateEmpty
}

// Load fills the form from a stored record, e.g. when opening an edit dialog.
// Loaded fields count as touched.
func (f *Form) Load(values map[string]string, costs costlist.List) error {
	for name := range values {
		if _, ok := f.spec(name); !ok {
			return &UnknownFieldError{Entity: f.entity, Field: name}
		}
	}
	for name, v := range values {
		f.values[name] = v
		f.touched[name] = true
	}
	if f.withCost {
		f.costs = append(costlist.List(nil), costs...)
	}
	f.revalidate()
	return nil
}

// Set replaces one field's raw value and re-validates the form.
func (f *Form) Set(name, value string) error {
	if _, ok := f.spec(name); !ok {
		return &UnknownFieldError{Entity: f.entity, Field: name}
	}
	f.values[name] = value
	f.touched[name] = true
	f.revalidate()
	return nil
}

// Value returns the raw text of a field.
func (f *Form) Value(name string) string { return f.values[name] }

// FieldError returns the validation error of a touched field, or nil.
// Untouched fields stay quiet until Validate is called.
func (f *Form) FieldError(name string) error {
	if !f.touched[name] {
		return nil
	}
	return f.errs[name]
}

// Costs returns a copy of the cost rows.
func (f *Form) Costs() costlist.List { return append(costlist.List(nil), f.costs...) }

// CostError returns the first failing cost row, or nil.
func (f *Form) CostError() error { return f.costErr }

// AddCostRow appends a placeholder cost row.
func (f *Form) AddCostRow() {
	f.costs = costlist.AddRow(f.costs)
	f.revalidate()
}

// RemoveCostRow drops a cost row; later rows shift down.
func (f *Form) RemoveCostRow(index int) error {
	list, err := costlist.RemoveRow(f.costs, index)
	if err != nil {
		return err
	}
	f.costs = list
	f.revalidate()
	return nil
}

// SetCostResource points one cost row at a resource.
func (f *Form) SetCostResource(index int, key string) error {
	list, _, err := costlist.SetResource(f.costs, index, key)
	if err != nil {
		return err
	}
	f.costs = list
	f.revalidate()
	return nil
}

// SetCostAmount replaces the raw amount of one cost row.
func (f *Form) SetCostAmount(index int, raw string) error {
	list, _, err := costlist.SetAmount(f.costs, index, raw)
	if err != nil {
		return err
	}
	f.costs = list
	f.revalidate()
	return nil
}

// Validate runs the submit-time check: every field is treated as touched and
// the first error, in field order, is returned.
func (f *Form) Validate() error {
	for _, spec := range f.specs {
		f.touched[spec.Name] = true
	}
	f.revalidate()
	for _, spec := range f.specs {
		if err := f.errs[spec.Name]; err != nil {
			return err
		}
	}
	return f.costErr
}

// MarkSaved records a committed save. It fails unless the form is Valid.
func (f *Form) MarkSaved() error {
	if f.state != StateValid {
		return fmt.Errorf("%w: %s form is %s", ErrNotSavable, f.entity, f.state)
	}
	f.state = StateSaved
	return nil
}

func (f *Form) spec(name string) (FieldSpec, bool) {
	for _, s := range f.specs {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSpec{}, false
}

func (f *Form) revalidate() {
	f.state = StateEditing
	complete := true
	invalid := false
	for _, spec := range f.specs {
		err := f.check(spec)
		f.errs[spec.Name] = err
		if err == nil {
			continue
		}
		complete = false
		if f.touched[spec.Name] {
			invalid = true
		}
	}
	if f.withCost {
		_, f.costErr = costlist.Validate(f.costs, f.costResolver())
		if f.costErr != nil {
			complete = false
			invalid = true
		}
	}
	switch {
	case invalid:
		f.state = StateInvalid
	case complete:
		f.state = StateValid
	}
}

func (f *Form) check(spec FieldSpec) error {
	raw := f.values[spec.Name]
	switch spec.Kind {
	case KindText:
		if spec.Required && ident.Derive(raw) == "" {
			return &domain.InvalidNameError{Entity: f.entity, DisplayName: raw}
		}
	case KindNumber:
		_, err := numeric.ValidateField(spec.Name, raw)
		return err
	case KindOptionalNumber:
		_, err := numeric.ValidateOptional(spec.Name, raw, 0)
		return err
	case KindReference:
		key := strings.TrimSpace(raw)
		ref := domain.Ref{Entity: spec.Entity, Key: key}
		if key == "" && !spec.Required {
			return nil
		}
		if key == "" || f.resolver == nil || !f.resolver.Exists(ref) {
			return &domain.DanglingReferenceError{FieldName: spec.Name, Target: ref}
		}
	case KindFormula:
		return numeric.CheckFormula(spec.Name, raw)
	case KindBool:
		switch strings.TrimSpace(raw) {
		case "", "true", "false":
		default:
			return fmt.Errorf("%s: expected true or false, got %q", spec.Name, raw)
		}
	}
	return nil
}

func (f *Form) costResolver() costlist.Resolver {
	if f.resolver == nil {
		return costlist.ResolverFunc(func(string) bool { return false })
	}
	return costlist.ResolverFunc(func(key string) bool {
		return f.resolver.Exists(domain.Ref{Entity: domain.EntityResource, Key: key})
	})
}
