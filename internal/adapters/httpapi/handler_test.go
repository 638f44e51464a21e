package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"blueprintcore/internal/adapters/exports"
	"blueprintcore/internal/adapters/httpapi"
	"blueprintcore/internal/blob"
	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

type errorResponse struct {
	Error struct {
		Field   string `json:"field"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupHandler(t *testing.T, opts ...httpapi.Option) (*core.Service, *httpapi.Handler) {
	t.Helper()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	return svc, httpapi.NewHandler(svc, opts...)
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectError(t *testing.T, resp *httptest.ResponseRecorder, status int, kind, field string) {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, resp.Code, resp.Body.String())
	}
	var body errorResponse
	decodeBody(t, resp, &body)
	if body.Error.Kind != kind || body.Error.Field != field {
		t.Fatalf("expected %s on %q, got %+v", kind, field, body.Error)
	}
}

func TestHandlerReportsVersion(t *testing.T) {
	_, h := setupHandler(t)
	resp := do(t, h, http.MethodGet, "/", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.Code)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if diff := cmp.Diff(map[string]string{"name": "blueprintcore", "version": httpapi.Version}, body); diff != "" {
		t.Fatalf("root mismatch (-want +got):\n%s", diff)
	}

	resp = do(t, h, http.MethodPost, "/version", nil)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestHandlerResourceLifecycle(t *testing.T) {
	_, h := setupHandler(t)

	resp := do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold", "starting_amount": "5"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if etag := resp.Header().Get("ETag"); etag != `"1"` {
		t.Fatalf("unexpected etag %q", etag)
	}
	var created struct {
		Resource domain.Resource `json:"resource"`
	}
	decodeBody(t, resp, &created)
	if created.Resource.Key != "gold" || created.Resource.StartingAmount != 5 {
		t.Fatalf("unexpected resource %+v", created.Resource)
	}

	resp = do(t, h, http.MethodGet, "/api/v1/resources/gold", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get: unexpected status %d", resp.Code)
	}

	resp = do(t, h, http.MethodPut, "/api/v1/resources/gold", map[string]string{"display_name": "Shiny Gold"}, "If-Match", `"1"`)
	if resp.Code != http.StatusOK {
		t.Fatalf("update: unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var updated struct {
		Resource domain.Resource `json:"resource"`
	}
	decodeBody(t, resp, &updated)
	if updated.Resource.Key != "gold" || updated.Resource.DisplayName != "Shiny Gold" || updated.Resource.Version != 2 {
		t.Fatalf("unexpected update %+v", updated.Resource)
	}

	resp = do(t, h, http.MethodPut, "/api/v1/resources/gold", map[string]string{"display_name": "Gold"}, "If-Match", "1")
	expectError(t, resp, http.StatusConflict, string(domain.KindVersionConflict), "version")

	resp = do(t, h, http.MethodGet, "/api/v1/resources", nil)
	var list struct {
		Resources []domain.Resource `json:"resources"`
	}
	decodeBody(t, resp, &list)
	if len(list.Resources) != 1 {
		t.Fatalf("expected one resource, got %d", len(list.Resources))
	}

	resp = do(t, h, http.MethodDelete, "/api/v1/resources/gold", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete: unexpected status %d", resp.Code)
	}
	resp = do(t, h, http.MethodGet, "/api/v1/resources/gold", nil)
	expectError(t, resp, http.StatusNotFound, string(domain.KindNotFound), "")
}

func TestHandlerMapsValidationErrors(t *testing.T) {
	_, h := setupHandler(t)

	resp := do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold", "starting_amount": "1.2.3"})
	expectError(t, resp, http.StatusBadRequest, string(domain.KindInvalidNumber), "starting_amount")

	resp = do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "!!!"})
	expectError(t, resp, http.StatusBadRequest, string(domain.KindInvalidName), "display_name")

	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})
	resp = do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "GOLD"})
	expectError(t, resp, http.StatusConflict, string(domain.KindDuplicateKey), "display_name")

	resp = do(t, h, http.MethodPost, "/api/v1/generators", map[string]any{
		"display_name":           "Mine",
		"produces_resource":      "silver",
		"base_production_amount": "1",
	})
	expectError(t, resp, http.StatusBadRequest, string(domain.KindDanglingReference), "produces_resource")

	resp = do(t, h, http.MethodPost, "/api/v1/resources", map[string]any{"display_name": "Wood", "colour": "brown"})
	expectError(t, resp, http.StatusBadRequest, "BadRequest", "")

	resp = do(t, h, http.MethodPut, "/api/v1/resources/gold", map[string]string{"display_name": "Gold"}, "If-Match", "latest")
	expectError(t, resp, http.StatusBadRequest, "BadRequest", "")
}

func TestHandlerDeleteHonoursCascade(t *testing.T) {
	svc, h := setupHandler(t)
	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})
	resp := do(t, h, http.MethodPost, "/api/v1/generators", map[string]any{
		"display_name":           "Mine",
		"produces_resource":      "gold",
		"base_production_amount": "1",
		"costs":                  []map[string]string{{"resource": "gold", "amount": "10"}},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create generator: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, h, http.MethodDelete, "/api/v1/resources/gold", nil)
	expectError(t, resp, http.StatusConflict, string(domain.KindReferencedByOthers), "")

	resp = do(t, h, http.MethodDelete, "/api/v1/resources/gold?cascade=maybe", nil)
	expectError(t, resp, http.StatusBadRequest, "BadRequest", "")

	resp = do(t, h, http.MethodDelete, "/api/v1/resources/gold?cascade=true", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("cascade delete: unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.ListResources()) != 0 || len(svc.ListGenerators()) != 0 {
		t.Fatalf("expected cascade to remove dependents")
	}
}

func TestHandlerFreeGeneratorWarning(t *testing.T) {
	_, h := setupHandler(t)
	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})
	resp := do(t, h, http.MethodPost, "/api/v1/generators", map[string]any{
		"display_name":           "Mine",
		"produces_resource":      "gold",
		"base_production_amount": "1",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Warnings []struct {
			Rule     string `json:"rule"`
			Severity string `json:"severity"`
		} `json:"warnings"`
	}
	decodeBody(t, resp, &body)
	if len(body.Warnings) != 1 || body.Warnings[0].Rule != "free_generator" || body.Warnings[0].Severity != string(domain.SeverityWarn) {
		t.Fatalf("unexpected warnings %+v", body.Warnings)
	}
}

func TestHandlerTierGroups(t *testing.T) {
	_, h := setupHandler(t)
	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Dirt"})
	resp := do(t, h, http.MethodPost, "/api/v1/tiers", map[string]any{"display_name": "Cave"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create tier: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, h, http.MethodPost, "/api/v1/tiers/cave/groups", map[string]string{})
	expectError(t, resp, http.StatusBadRequest, string(domain.KindEmptyItemGroup), "item_groups")

	resp = do(t, h, http.MethodPost, "/api/v1/tiers/cave/groups", map[string]string{"resource": "dirt"})
	if resp.Code != http.StatusOK {
		t.Fatalf("add group: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, h, http.MethodGet, "/api/v1/tiers/cave/view", nil)
	var view struct {
		Tier core.TierView `json:"tier"`
	}
	decodeBody(t, resp, &view)
	if len(view.Tier.Groups) != 1 || view.Tier.Groups[0].Slots[0].DisplayName != "Dirt" {
		t.Fatalf("unexpected tier view %+v", view.Tier)
	}

	resp = do(t, h, http.MethodDelete, "/api/v1/tiers/cave/groups/3", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range index, got %d", resp.Code)
	}
	resp = do(t, h, http.MethodDelete, "/api/v1/tiers/cave/groups/x", nil)
	expectError(t, resp, http.StatusBadRequest, "BadRequest", "")

	resp = do(t, h, http.MethodDelete, "/api/v1/tiers/cave/groups/0", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("remove group: %d %s", resp.Code, resp.Body.String())
	}
	var tier struct {
		Tier domain.Tier `json:"tier"`
	}
	decodeBody(t, resp, &tier)
	if len(tier.Tier.ItemGroups) != 0 {
		t.Fatalf("expected group removed, got %+v", tier.Tier.ItemGroups)
	}
}

func TestHandlerOptionsAndChecks(t *testing.T) {
	_, h := setupHandler(t)
	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})
	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Wood"})

	resp := do(t, h, http.MethodGet, "/api/v1/options/resources", nil)
	var options struct {
		Options []core.Option `json:"options"`
	}
	decodeBody(t, resp, &options)
	want := []core.Option{
		{Key: "gold", DisplayName: "Gold", Label: "Gold (gold)"},
		{Key: "wood", DisplayName: "Wood", Label: "Wood (wood)"},
	}
	if diff := cmp.Diff(want, options.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	resp = do(t, h, http.MethodGet, "/api/v1/options/planets", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown kind, got %d", resp.Code)
	}

	type check struct {
		Valid bool     `json:"valid"`
		Value *float64 `json:"value"`
		Error *struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	resp = do(t, h, http.MethodPost, "/api/v1/validate/number", map[string]string{"value": " 2.50 "})
	var ok check
	decodeBody(t, resp, &ok)
	if !ok.Valid || ok.Value == nil || *ok.Value != 2.5 {
		t.Fatalf("unexpected number check %+v", ok)
	}
	resp = do(t, h, http.MethodPost, "/api/v1/validate/number", map[string]string{"value": "1.2.3"})
	var bad check
	decodeBody(t, resp, &bad)
	if bad.Valid || bad.Error == nil || bad.Error.Kind != string(domain.KindInvalidNumber) {
		t.Fatalf("unexpected number check %+v", bad)
	}
	resp = do(t, h, http.MethodPost, "/api/v1/validate/formula", map[string]string{"expression": "base * pow(1.15, level)"})
	var formula check
	decodeBody(t, resp, &formula)
	if !formula.Valid {
		t.Fatalf("expected formula to be valid")
	}
}

func TestHandlerSettingsAndBlueprint(t *testing.T) {
	_, h := setupHandler(t)
	resp := do(t, h, http.MethodPut, "/api/v1/settings", map[string]any{"game_title": "Dig Deep", "offline_progress_enabled": false})
	if resp.Code != http.StatusOK {
		t.Fatalf("update settings: %d %s", resp.Code, resp.Body.String())
	}
	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})

	resp = do(t, h, http.MethodGet, "/api/v1/blueprint", nil)
	var bp domain.Blueprint
	decodeBody(t, resp, &bp)
	if bp.FormatVersion != domain.BlueprintFormatVersion || bp.Settings.GameTitle != "Dig Deep" || bp.Settings.OfflineProgressEnabled {
		t.Fatalf("unexpected blueprint settings %+v", bp)
	}
	if len(bp.Resources) != 1 || bp.Resources[0].Key != "gold" {
		t.Fatalf("unexpected blueprint resources %+v", bp.Resources)
	}
}

func TestHandlerExportsAndJobs(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	exporter := exports.NewExporter(blob.NewMemory())
	worker := exports.NewWorker(svc, exporter, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()
	h := httpapi.NewHandler(svc, httpapi.WithExporter(exporter), httpapi.WithJobs(worker))

	resp := do(t, h, http.MethodPost, "/api/v1/blueprint/exports", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("export: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(t, h, http.MethodGet, "/api/v1/blueprint/exports", nil)
	var listed struct {
		Exports []exports.Artifact `json:"exports"`
	}
	decodeBody(t, resp, &listed)
	if len(listed.Exports) != 1 || !strings.HasPrefix(listed.Exports[0].Key, exports.Prefix) {
		t.Fatalf("unexpected exports %+v", listed.Exports)
	}

	resp = do(t, h, http.MethodPost, "/api/v1/blueprint/exports/jobs", nil, "X-Requested-By", "designer")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %s", resp.Code, resp.Body.String())
	}
	var queued struct {
		Job exports.Job `json:"job"`
	}
	decodeBody(t, resp, &queued)
	if queued.Job.RequestedBy != "designer" {
		t.Fatalf("unexpected job %+v", queued.Job)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp = do(t, h, http.MethodGet, "/api/v1/blueprint/exports/jobs/"+queued.Job.ID, nil)
		var polled struct {
			Job exports.Job `json:"job"`
		}
		decodeBody(t, resp, &polled)
		if polled.Job.Status == exports.JobSucceeded {
			break
		}
		if polled.Job.Status == exports.JobFailed || time.Now().After(deadline) {
			t.Fatalf("job did not succeed: %+v", polled.Job)
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp = do(t, h, http.MethodGet, "/api/v1/blueprint/exports/jobs/missing", nil)
	expectError(t, resp, http.StatusNotFound, string(domain.KindNotFound), "")
}

func TestHandlerExportsUnconfigured(t *testing.T) {
	_, h := setupHandler(t)
	resp := do(t, h, http.MethodGet, "/api/v1/blueprint/exports", nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	resp = do(t, h, http.MethodGet, "/metrics", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", resp.Code)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	recorder := core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithMetricsRecorder(recorder))
	h := httpapi.NewHandler(svc, httpapi.WithMetrics(recorder.Handler()))

	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})
	resp := do(t, h, http.MethodGet, "/metrics", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: unexpected status %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "blueprint_service_operations_total") {
		t.Fatalf("expected operation counter in metrics output")
	}
}

func TestHandlerServesDebugVars(t *testing.T) {
	vars := core.PublishOperationVars(fmt.Sprintf("blueprint_operations_http_%d", time.Now().UnixNano()))
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithMetricsRecorder(vars))
	h := httpapi.NewHandler(svc, httpapi.WithDebugVars(expvar.Handler()))

	do(t, h, http.MethodPost, "/api/v1/resources", map[string]string{"display_name": "Gold"})
	resp := do(t, h, http.MethodGet, "/debug/vars", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("debug vars: unexpected status %d", resp.Code)
	}
	var published map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body.Bytes(), &published); err != nil {
		t.Fatalf("decode debug vars: %v", err)
	}
	if !strings.Contains(string(published[vars.Name()]), "create_resource") {
		t.Fatalf("expected operation counters under %s, got %s", vars.Name(), published[vars.Name()])
	}
	if resp := do(t, h, http.MethodPost, "/debug/vars", nil); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", resp.Code)
	}

	_, bare := setupHandler(t)
	if resp := do(t, bare, http.MethodGet, "/debug/vars", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without debug vars, got %d", resp.Code)
	}
}

func TestHandlerUnknownRoutes(t *testing.T) {
	_, h := setupHandler(t)
	for _, path := range []string{"/nope", "/api/v1/", "/api/v1/planets", "/api/v1/resources/gold/extra", "/api/v1/validate/colour"} {
		method := http.MethodGet
		if strings.HasPrefix(path, "/api/v1/validate") {
			method = http.MethodPost
		}
		resp := do(t, h, method, path, nil)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
	resp := do(t, h, http.MethodPatch, "/api/v1/resources", nil)
	if resp.Code != http.StatusMethodNotAllowed || resp.Header().Get("Allow") == "" {
		t.Fatalf("expected 405 with Allow header, got %d", resp.Code)
	}
}
