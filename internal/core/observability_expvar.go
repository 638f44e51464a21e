package core

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultVarsName is the expvar key blueprintd publishes operation counters under.
const DefaultVarsName = "blueprint_operations"

// publishMu guards expvar registration; expvar.Publish panics on duplicate names.
var publishMu sync.Mutex

// OperationVars counts service outcomes in an expvar.Map so they show up in
// /debug/vars as {"create_resource": {"success": 2, "error": 1, "duration_ms": 0.4}}.
type OperationVars struct {
	name string
	vars *expvar.Map
}

// PublishOperationVars registers the counters under name, or reattaches to the
// map already published there. An empty name selects DefaultVarsName.
func PublishOperationVars(name string) *OperationVars {
	if name == "" {
		name = DefaultVarsName
	}
	publishMu.Lock()
	defer publishMu.Unlock()
	if m, ok := expvar.Get(name).(*expvar.Map); ok {
		return &OperationVars{name: name, vars: m}
	}
	return &OperationVars{name: name, vars: expvar.NewMap(name)}
}

// Name returns the expvar key.
func (v *OperationVars) Name() string { return v.name }

// Observe implements MetricsRecorder.
func (v *OperationVars) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	op := v.operation(operation)
	if success {
		op.Add("success", 1)
	} else {
		op.Add("error", 1)
	}
	op.AddFloat("duration_ms", float64(duration)/float64(time.Millisecond))
}

// Count reports how many outcomes of one kind were observed for operation.
func (v *OperationVars) Count(operation string, success bool) int64 {
	op, ok := v.vars.Get(operation).(*expvar.Map)
	if !ok {
		return 0
	}
	key := "error"
	if success {
		key = "success"
	}
	if n, ok := op.Get(key).(*expvar.Int); ok {
		return n.Value()
	}
	return 0
}

func (v *OperationVars) operation(name string) *expvar.Map {
	if m, ok := v.vars.Get(name).(*expvar.Map); ok {
		return m
	}
	publishMu.Lock()
	defer publishMu.Unlock()
	if m, ok := v.vars.Get(name).(*expvar.Map); ok {
		return m
	}
	m := new(expvar.Map).Init()
	v.vars.Set(name, m)
	return m
}

// BlueprintCounter is the read side PublishBlueprintCounts reports on.
type BlueprintCounter interface {
	ListResources() []Resource
	ListGenerators() []Generator
	ListUpgrades() []Upgrade
	ListTiers() []Tier
}

// blueprintCounts renders the current entity totals on every /debug/vars read.
type blueprintCounts struct {
	source atomic.Pointer[BlueprintCounter]
}

func (b *blueprintCounts) String() string {
	counts := map[EntityType]int{}
	if src := b.source.Load(); src != nil {
		counts[EntityResource] = len((*src).ListResources())
		counts[EntityGenerator] = len((*src).ListGenerators())
		counts[EntityUpgrade] = len((*src).ListUpgrades())
		counts[EntityTier] = len((*src).ListTiers())
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// PublishBlueprintCounts exposes per-entity record counts of src under name.
// Publishing again under the same name switches the source.
func PublishBlueprintCounts(name string, src BlueprintCounter) {
	publishMu.Lock()
	defer publishMu.Unlock()
	if existing, ok := expvar.Get(name).(*blueprintCounts); ok {
		existing.source.Store(&src)
		return
	}
	counts := &blueprintCounts{}
	counts.source.Store(&src)
	expvar.Publish(name, counts)
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}
