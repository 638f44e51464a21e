package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"blueprintcore/pkg/costlist"
	"blueprintcore/pkg/domain"
)

var ignoreStamps = cmpopts.IgnoreFields(domain.Base{}, "CreatedAt", "UpdatedAt")

func mustResource(t *testing.T, svc *Service, name string) Resource {
	t.Helper()
	r, _, err := svc.CreateResource(context.Background(), ResourceInput{DisplayName: name})
	if err != nil {
		t.Fatalf("create resource %q: %v", name, err)
	}
	return r
}

func TestEndToEndBlueprint(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)

	res := mustResource(t, svc, "Test Resource")
	if res.Key != "test_resource" {
		t.Fatalf("unexpected resource key %q", res.Key)
	}
	gen, _, err := svc.CreateGenerator(ctx, GeneratorInput{
		DisplayName:          "Test Generator",
		ProducesResource:     res.Key,
		BaseProductionAmount: "1",
		Costs:                costlist.List{{Resource: "test_resource", Amount: "10"}},
	})
	if err != nil {
		t.Fatalf("create generator: %v", err)
	}
	upg, _, err := svc.CreateUpgrade(ctx, UpgradeInput{
		DisplayName: "Test Upgrade",
		Target:      gen.Key,
		Costs:       costlist.List{{Resource: "test_resource", Amount: "10"}},
	})
	if err != nil {
		t.Fatalf("create upgrade: %v", err)
	}
	tier, _, err := svc.CreateTier(ctx, TierInput{
		DisplayName: "Forest Zone",
		ItemGroups:  []ItemGroup{{Resource: res.Key, Generator: gen.Key, Upgrade: upg.Key}},
	})
	if err != nil {
		t.Fatalf("create tier: %v", err)
	}

	if got, ok := svc.GetGenerator("test_generator"); !ok || got.ProducesResource != "test_resource" {
		t.Fatalf("generator not resolvable: %+v", got)
	}
	if got, ok := svc.GetUpgrade("test_upgrade"); !ok || got.Target != "test_generator" {
		t.Fatalf("upgrade not resolvable: %+v", got)
	}
	got, ok := svc.GetTier(tier.Key)
	if !ok {
		t.Fatalf("tier not resolvable")
	}
	want := []ItemGroup{{Resource: "test_resource", Generator: "test_generator", Upgrade: "test_upgrade"}}
	if diff := cmp.Diff(want, got.ItemGroups); diff != "" {
		t.Fatalf("item groups mismatch (-want +got):\n%s", diff)
	}

	bp := svc.Blueprint()
	if len(bp.Resources) != 1 || len(bp.Generators) != 1 || len(bp.Upgrades) != 1 || len(bp.Tiers) != 1 {
		t.Fatalf("unexpected blueprint %+v", bp)
	}
}

func TestCreateThenResolveRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	mustResource(t, svc, "Gold")
	created, _, err := svc.CreateGenerator(ctx, GeneratorInput{
		DisplayName:          "Gold Mine",
		ProducesResource:     "gold",
		BaseProductionAmount: "2.5",
		Costs:                costlist.List{{Resource: "gold", Amount: "15"}},
		CostScaling:          "base * 1.15 ^ level",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resolved, ok := svc.GetGenerator(created.Key)
	if !ok {
		t.Fatalf("expected generator %q", created.Key)
	}
	if diff := cmp.Diff(created, resolved); diff != "" {
		t.Fatalf("resolve mismatch (-created +resolved):\n%s", diff)
	}
	want := Generator{
		Base:                 domain.Base{Key: "gold_mine", DisplayName: "Gold Mine", Version: 1},
		ProducesResource:     "gold",
		BaseProductionAmount: 2.5,
		Costs:                []CostEntry{{Resource: "gold", Amount: 15}},
		CostScaling:          "base * 1.15 ^ level",
	}
	if diff := cmp.Diff(want, resolved, ignoreStamps); diff != "" {
		t.Fatalf("stored generator mismatch (-want +got):\n%s", diff)
	}
}

func TestDuplicateDerivedKeyRejected(t *testing.T) {
	svc := NewInMemoryService(nil)
	mustResource(t, svc, "Gold Bar")
	_, _, err := svc.CreateResource(context.Background(), ResourceInput{DisplayName: "gold  bar!"})
	if !domain.IsKind(err, domain.KindDuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
	if len(svc.ListResources()) != 1 {
		t.Fatalf("duplicate must not be stored")
	}
}

func TestInvalidNameRejected(t *testing.T) {
	svc := NewInMemoryService(nil)
	_, _, err := svc.CreateResource(context.Background(), ResourceInput{DisplayName: "!!!"})
	if !domain.IsKind(err, domain.KindInvalidName) || domain.FieldOf(err) != "display_name" {
		t.Fatalf("expected InvalidName on display_name, got %v", err)
	}
}

func TestDanglingGeneratorNotStored(t *testing.T) {
	svc := NewInMemoryService(nil)
	_, _, err := svc.CreateGenerator(context.Background(), GeneratorInput{
		DisplayName:          "Shovel",
		ProducesResource:     "dirt",
		BaseProductionAmount: "1",
	})
	if !domain.IsKind(err, domain.KindDanglingReference) || domain.FieldOf(err) != "produces_resource" {
		t.Fatalf("expected DanglingReference on produces_resource, got %v", err)
	}
	if len(svc.ListGenerators()) != 0 {
		t.Fatalf("dangling generator must not be listed")
	}
}

func TestInvalidNumberFieldsSurfaceFieldName(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	mustResource(t, svc, "Gold")

	cases := []struct {
		name  string
		in    GeneratorInput
		field string
	}{
		{"base production", GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "1.2.3"}, "base_production_amount"},
		{"missing base production", GeneratorInput{DisplayName: "Mine", ProducesResource: "gold"}, "base_production_amount"},
		{"cost amount", GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "1", Costs: costlist.List{{Resource: "gold", Amount: "10"}, {Resource: "gold", Amount: "invalid"}}}, "costs[1].amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreateGenerator(ctx, tc.in)
			if !domain.IsKind(err, domain.KindInvalidNumber) {
				t.Fatalf("expected InvalidNumber, got %v", err)
			}
			if got := domain.FieldOf(err); got != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, got)
			}
		})
	}
	if _, _, err := svc.CreateResource(ctx, ResourceInput{DisplayName: "Wood", StartingAmount: "abc"}); domain.FieldOf(err) != "starting_amount" {
		t.Fatalf("expected starting_amount error, got %v", err)
	}
}

func TestCostRowsKeepOrder(t *testing.T) {
	svc := NewInMemoryService(nil)
	mustResource(t, svc, "Gold")
	gen, _, err := svc.CreateGenerator(context.Background(), GeneratorInput{
		DisplayName:          "Mine",
		ProducesResource:     "gold",
		BaseProductionAmount: "1",
		Costs:                costlist.List{{Resource: "gold", Amount: "10"}, {Resource: "gold", Amount: "20"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, _ := svc.GetGenerator(gen.Key)
	want := []CostEntry{{Resource: "gold", Amount: 10}, {Resource: "gold", Amount: 20}}
	if diff := cmp.Diff(want, stored.Costs); diff != "" {
		t.Fatalf("cost order mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateKeepsKeyAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	gold := mustResource(t, svc, "Gold")

	updated, _, err := svc.UpdateResource(ctx, gold.Key, ResourceInput{DisplayName: "Shiny Gold", StartingAmount: "5"}, UpdateOptions{ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Key != "gold" || updated.DisplayName != "Shiny Gold" || updated.StartingAmount != 5 || updated.Version != 2 {
		t.Fatalf("unexpected updated resource %+v", updated)
	}

	_, _, err = svc.UpdateResource(ctx, gold.Key, ResourceInput{DisplayName: "Stale"}, UpdateOptions{ExpectedVersion: 1})
	var conflict *domain.VersionConflictError
	if !errors.As(err, &conflict) || conflict.Actual != 2 {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if _, _, err := svc.UpdateResource(ctx, "missing", ResourceInput{DisplayName: "X"}, UpdateOptions{}); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFailedUpdateLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	mustResource(t, svc, "Gold")
	gen, _, err := svc.CreateGenerator(ctx, GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := svc.Blueprint()
	_, _, err = svc.UpdateGenerator(ctx, gen.Key, GeneratorInput{DisplayName: "Mine", ProducesResource: "silver", BaseProductionAmount: "3"}, UpdateOptions{})
	if !domain.IsKind(err, domain.KindDanglingReference) {
		t.Fatalf("expected DanglingReference, got %v", err)
	}
	if diff := cmp.Diff(before, svc.Blueprint()); diff != "" {
		t.Fatalf("state changed after failed update:\n%s", diff)
	}
}

func TestDeletePolicies(t *testing.T) {
	ctx := context.Background()
	build := func(opts ...ServiceOption) *Service {
		svc := NewInMemoryService(nil, opts...)
		mustResource(t, svc, "Gold")
		mustResource(t, svc, "Cash")
		if _, _, err := svc.CreateGenerator(ctx, GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "1", Costs: costlist.List{{Resource: "cash", Amount: "10"}}}); err != nil {
			t.Fatalf("create generator: %v", err)
		}
		if _, _, err := svc.CreateUpgrade(ctx, UpgradeInput{DisplayName: "Drill", Target: "mine", Costs: costlist.List{{Resource: "cash", Amount: "50"}}}); err != nil {
			t.Fatalf("create upgrade: %v", err)
		}
		if _, _, err := svc.CreateTier(ctx, TierInput{DisplayName: "Cave", ItemGroups: []ItemGroup{{Resource: "gold", Generator: "mine"}, {Upgrade: "drill"}}}); err != nil {
			t.Fatalf("create tier: %v", err)
		}
		return svc
	}

	t.Run("refuse lists dependents", func(t *testing.T) {
		svc := build()
		before := svc.Blueprint()
		_, err := svc.DeleteResource(ctx, "gold", "")
		var refErr *domain.ReferencedByOthersError
		if !errors.As(err, &refErr) {
			t.Fatalf("expected ReferencedByOthers, got %v", err)
		}
		want := []Ref{{Entity: EntityGenerator, Key: "mine"}, {Entity: EntityTier, Key: "cave"}}
		if diff := cmp.Diff(want, refErr.Dependents); diff != "" {
			t.Fatalf("dependents mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(before, svc.Blueprint()); diff != "" {
			t.Fatalf("refused delete changed state:\n%s", diff)
		}
	})

	t.Run("cascade is transitive", func(t *testing.T) {
		svc := build()
		if _, err := svc.DeleteResource(ctx, "gold", DeletePolicyCascade); err != nil {
			t.Fatalf("cascade delete: %v", err)
		}
		if _, ok := svc.GetGenerator("mine"); ok {
			t.Fatalf("generator producing gold should be removed")
		}
		if _, ok := svc.GetUpgrade("drill"); ok {
			t.Fatalf("upgrade targeting removed generator should be removed")
		}
		tier, _ := svc.GetTier("cave")
		if len(tier.ItemGroups) != 0 {
			t.Fatalf("expected emptied groups to be dropped, got %+v", tier.ItemGroups)
		}
	})

	t.Run("cascade rewrites costs", func(t *testing.T) {
		svc := build(WithDeletePolicy(DeletePolicyCascade))
		if svc.DeletePolicy() != DeletePolicyCascade {
			t.Fatalf("expected cascade default")
		}
		if _, err := svc.DeleteResource(ctx, "cash", ""); err != nil {
			t.Fatalf("cascade delete: %v", err)
		}
		gen, ok := svc.GetGenerator("mine")
		if !ok || len(gen.Costs) != 0 || gen.Version != 2 {
			t.Fatalf("expected generator with cash cost removed, got %+v", gen)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		svc := build()
		if _, err := svc.DeleteTier(ctx, "nowhere"); !domain.IsKind(err, domain.KindNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestFreeGeneratorWarns(t *testing.T) {
	log := &captureLogger{}
	svc := NewInMemoryService(nil, WithLogger(log))
	mustResource(t, svc, "Gold")
	_, res, err := svc.CreateGenerator(context.Background(), GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("expected single warning, got %+v", res.Violations)
	}
	if log.count("w:") != 1 {
		t.Fatalf("expected warning to be logged, got %v", log.calls)
	}
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	if got := svc.Settings(); got.GameTitle != domain.DefaultGameTitle || !got.OfflineProgressEnabled {
		t.Fatalf("unexpected defaults %+v", got)
	}
	updated, _, err := svc.UpdateSettings(ctx, SettingsInput{GameTitle: "Forest Idle", OfflineProgressEnabled: false})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.GameTitle != "Forest Idle" || updated.OfflineProgressEnabled {
		t.Fatalf("unexpected settings %+v", updated)
	}
	if svc.Blueprint().Settings.GameTitle != "Forest Idle" {
		t.Fatalf("settings not visible in blueprint")
	}
}

func TestRunErrorLogsAndAudits(t *testing.T) {
	log := &captureLogger{}
	audit := &captureAuditRecorder{}
	svc := NewInMemoryService(nil, WithLogger(log), WithAuditRecorder(audit))
	if _, err := svc.DeleteGenerator(context.Background(), "missing", ""); err == nil {
		t.Fatalf("expected error deleting missing generator")
	}
	if log.count("e:") != 1 {
		t.Fatalf("expected error log entry, got %v", log.calls)
	}
	if !audit.has("delete_generator", AuditStatusError, func(e AuditEntry) bool {
		return e.EntityKey == "missing" && e.Metadata["kind"] == string(domain.KindNotFound)
	}) {
		t.Fatalf("expected error audit entry, got %+v", audit.entries)
	}
}

func TestCreateIgnoresCallerKeyAndDetectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	mustResource(t, svc, "Gold")

	var raw ResourceInput
	if err := json.Unmarshal([]byte(`{"key":"gold_two","display_name":"Gold"}`), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_, _, err := svc.CreateResource(ctx, raw)
	if !domain.IsKind(err, domain.KindDuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
	if got := len(svc.ListResources()); got != 1 {
		t.Fatalf("expected a single resource, got %d", got)
	}
	if _, ok := svc.GetResource("gold_two"); ok {
		t.Fatalf("caller-supplied key must not be stored")
	}

	silver, _, err := svc.CreateResource(ctx, ResourceInput{DisplayName: "Silver Ore"})
	if err != nil {
		t.Fatalf("create silver: %v", err)
	}
	if silver.Key != "silver_ore" {
		t.Fatalf("expected derived key silver_ore, got %q", silver.Key)
	}
}

type blockUpdates struct{}

func (blockUpdates) Name() string { return "block_updates" }

func (blockUpdates) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	for _, c := range changes {
		if c.Action == domain.ActionUpdate {
			return Result{Violations: []Violation{{Rule: "block_updates", Severity: SeverityBlock, Entity: c.Entity, Key: c.Key, Message: "read only"}}}, nil
		}
	}
	return Result{}, nil
}

func TestFailedWritesReturnZeroRecords(t *testing.T) {
	ctx := context.Background()
	engine := NewDefaultRulesEngine()
	engine.Register(blockUpdates{})
	svc := NewInMemoryService(engine)
	gold := mustResource(t, svc, "Gold")
	gen, _, err := svc.CreateGenerator(ctx, GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "1",
		Costs: costlist.List{{Resource: "gold", Amount: "1"}}})
	if err != nil {
		t.Fatalf("create generator: %v", err)
	}

	res, _, err := svc.UpdateResource(ctx, gold.Key, ResourceInput{DisplayName: "Gold", StartingAmount: "5"}, UpdateOptions{})
	if !domain.IsKind(err, domain.KindRuleViolation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if diff := cmp.Diff(Resource{}, res); diff != "" {
		t.Fatalf("blocked update returned a record (-want +got):\n%s", diff)
	}
	updatedGen, _, err := svc.UpdateGenerator(ctx, gen.Key, GeneratorInput{DisplayName: "Mine", ProducesResource: "gold", BaseProductionAmount: "2"}, UpdateOptions{})
	if err == nil {
		t.Fatalf("expected blocked generator update")
	}
	if diff := cmp.Diff(Generator{}, updatedGen); diff != "" {
		t.Fatalf("blocked generator update returned a record (-want +got):\n%s", diff)
	}
	if got, _ := svc.GetResource(gold.Key); got.StartingAmount != 0 || got.Version != 1 {
		t.Fatalf("stored resource changed: %+v", got)
	}
}

func TestDeletePolicyOnlyAuditedForDeletes(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit), WithDeletePolicy(domain.DeletePolicyRefuse))
	gold := mustResource(t, svc, "Gold")
	if _, _, err := svc.UpdateResource(ctx, gold.Key, ResourceInput{DisplayName: "Gold"}, UpdateOptions{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.DeleteResource(ctx, gold.Key, domain.DeletePolicyCascade); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, op := range []string{"create_resource", "update_resource"} {
		if !audit.has(op, AuditStatusSuccess, func(e AuditEntry) bool { return e.Metadata["delete_policy"] == nil }) {
			t.Fatalf("%s must not carry a delete policy: %+v", op, audit.entries)
		}
	}
	if !audit.has("delete_resource", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.Metadata["delete_policy"] == string(domain.DeletePolicyCascade)
	}) {
		t.Fatalf("delete must record the effective policy: %+v", audit.entries)
	}
}
