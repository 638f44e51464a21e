package editor

import (
	"context"
	"strings"

	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

// ResourceInput converts the form into a service input.
func (f *Form) ResourceInput() core.ResourceInput {
	return core.ResourceInput{
		DisplayName:    f.values[FieldDisplayName],
		StartingAmount: f.values[FieldStartingAmount],
	}
}

// GeneratorInput converts the form into a service input.
func (f *Form) GeneratorInput() core.GeneratorInput {
	return core.GeneratorInput{
		DisplayName:          f.values[FieldDisplayName],
		ProducesResource:     f.values[FieldProducesResource],
		BaseProductionAmount: f.values[FieldBaseProductionAmount],
		Costs:                f.Costs(),
		CostScaling:          f.values[FieldCostScaling],
	}
}

// UpgradeInput converts the form into a service input.
func (f *Form) UpgradeInput() core.UpgradeInput {
	return core.UpgradeInput{
		DisplayName: f.values[FieldDisplayName],
		Target:      f.values[FieldTarget],
		Costs:       f.Costs(),
		Effect:      f.values[FieldEffect],
	}
}

// TierInput converts the form into a service input. Existing item groups are
// carried over on update.
func (f *Form) TierInput(groups []domain.ItemGroup) core.TierInput {
	return core.TierInput{DisplayName: f.values[FieldDisplayName], ItemGroups: groups}
}

// SettingsInput converts the form into a service input. An untouched offline
// flag keeps the default of enabled.
func (f *Form) SettingsInput() core.SettingsInput {
	offline := strings.TrimSpace(f.values[FieldOfflineProgress]) != "false"
	return core.SettingsInput{GameTitle: f.values[FieldGameTitle], OfflineProgressEnabled: offline}
}

// Save validates the form and submits it through svc. An empty key creates a
// new record; otherwise the record at key is updated. Store failures are
// attached to the offending field and move the form to Invalid. The key of
// the saved record is returned.
func Save(ctx context.Context, svc *core.Service, f *Form, key string, opts domain.UpdateOptions) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	saved, err := submit(ctx, svc, f, key, opts)
	if err != nil {
		f.reject(err)
		return "", err
	}
	return saved, f.MarkSaved()
}

func submit(ctx context.Context, svc *core.Service, f *Form, key string, opts domain.UpdateOptions) (string, error) {
	switch f.entity {
	case domain.EntityResource:
		if key == "" {
			r, _, err := svc.CreateResource(ctx, f.ResourceInput())
			return r.Key, err
		}
		r, _, err := svc.UpdateResource(ctx, key, f.ResourceInput(), opts)
		return r.Key, err
	case domain.EntityGenerator:
		if key == "" {
			g, _, err := svc.CreateGenerator(ctx, f.GeneratorInput())
			return g.Key, err
		}
		g, _, err := svc.UpdateGenerator(ctx, key, f.GeneratorInput(), opts)
		return g.Key, err
	case domain.EntityUpgrade:
		if key == "" {
			u, _, err := svc.CreateUpgrade(ctx, f.UpgradeInput())
			return u.Key, err
		}
		u, _, err := svc.UpdateUpgrade(ctx, key, f.UpgradeInput(), opts)
		return u.Key, err
	case domain.EntityTier:
		if key == "" {
			t, _, err := svc.CreateTier(ctx, f.TierInput(nil))
			return t.Key, err
		}
		existing, ok := svc.GetTier(key)
		if !ok {
			return "", &domain.NotFoundError{Entity: domain.EntityTier, Key: key}
		}
		t, _, err := svc.UpdateTier(ctx, key, f.TierInput(existing.ItemGroups), opts)
		return t.Key, err
	default:
		_, _, err := svc.UpdateSettings(ctx, f.SettingsInput())
		return "", err
	}
}

// reject attaches a store error to its field so it renders inline.
func (f *Form) reject(err error) {
	field := domain.FieldOf(err)
	if strings.HasPrefix(field, "costs[") {
		f.costErr = err
	} else if _, ok := f.spec(field); ok {
		f.errs[field] = err
		f.touched[field] = true
	}
	f.state = StateInvalid
}
