package core

import (
	"strings"

	"blueprintcore/pkg/costlist"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/numeric"
)

// ResourceInput carries a resource as typed into the editor. Numeric fields are
// raw text and are validated before the store is touched. The key of a new
// record is always derived from DisplayName.
type ResourceInput struct {
	DisplayName    string `json:"display_name"`
	StartingAmount string `json:"starting_amount,omitempty"`
}

func (in ResourceInput) resource() (Resource, error) {
	amount, err := numeric.ValidateOptional("starting_amount", in.StartingAmount, 0)
	if err != nil {
		return Resource{}, err
	}
	return Resource{
		Base:           domain.Base{DisplayName: in.DisplayName},
		StartingAmount: amount,
	}, nil
}

// GeneratorInput carries a generator as typed into the editor.
type GeneratorInput struct {
	DisplayName          string        `json:"display_name"`
	ProducesResource     string        `json:"produces_resource"`
	BaseProductionAmount string        `json:"base_production_amount"`
	Costs                costlist.List `json:"costs"`
	CostScaling          string        `json:"cost_scaling,omitempty"`
}

func (in GeneratorInput) generator(tx domain.Transaction) (Generator, error) {
	base, err := numeric.ValidateField("base_production_amount", in.BaseProductionAmount)
	if err != nil {
		return Generator{}, err
	}
	costs, err := costlist.Validate(in.Costs, resolverFor(tx))
	if err != nil {
		return Generator{}, err
	}
	return Generator{
		Base:                 domain.Base{DisplayName: in.DisplayName},
		ProducesResource:     strings.TrimSpace(in.ProducesResource),
		BaseProductionAmount: base,
		Costs:                costs,
		CostScaling:          strings.TrimSpace(in.CostScaling),
	}, nil
}

// UpgradeInput carries an upgrade as typed into the editor.
type UpgradeInput struct {
	DisplayName string        `json:"display_name"`
	Target      string        `json:"target"`
	Costs       costlist.List `json:"costs"`
	Effect      string        `json:"effect,omitempty"`
}

func (in UpgradeInput) upgrade(tx domain.Transaction) (Upgrade, error) {
	costs, err := costlist.Validate(in.Costs, resolverFor(tx))
	if err != nil {
		return Upgrade{}, err
	}
	return Upgrade{
		Base:   domain.Base{DisplayName: in.DisplayName},
		Target: strings.TrimSpace(in.Target),
		Costs:  costs,
		Effect: strings.TrimSpace(in.Effect),
	}, nil
}

// TierInput carries a tier and its item groups.
type TierInput struct {
	DisplayName string      `json:"display_name"`
	ItemGroups  []ItemGroup `json:"item_groups"`
}

func (in TierInput) tier() Tier {
	return Tier{
		Base:       domain.Base{DisplayName: in.DisplayName},
		ItemGroups: append([]ItemGroup(nil), in.ItemGroups...),
	}
}

// SettingsInput carries the blueprint-wide settings.
type SettingsInput struct {
	GameTitle              string `json:"game_title"`
	OfflineProgressEnabled bool   `json:"offline_progress_enabled"`
}

func resolverFor(tx domain.Transaction) costlist.Resolver {
	return costlist.ResolverFunc(func(key string) bool {
		_, ok := tx.FindResource(key)
		return ok
	})
}
