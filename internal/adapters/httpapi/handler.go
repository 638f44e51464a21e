// Package httpapi exposes the blueprint service over a JSON REST surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"blueprintcore/internal/adapters/exports"
	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
)

// Version is reported read-only at the root of the API.
const Version = "v0.1.0"

const (
	apiPrefix = "/api/v1/"
	appName   = "blueprintcore"
	maxBody   = 1 << 20
)

// Handler routes blueprint API requests onto a core.Service.
type Handler struct {
	Service  *core.Service
	Exporter *exports.Exporter
	Jobs     exports.Scheduler
	Metrics  http.Handler
	Vars     http.Handler
	Logger   core.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithExporter enables the synchronous export endpoints.
func WithExporter(e *exports.Exporter) Option { return func(h *Handler) { h.Exporter = e } }

// WithJobs enables the asynchronous export endpoints.
func WithJobs(s exports.Scheduler) Option { return func(h *Handler) { h.Jobs = s } }

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(m http.Handler) Option { return func(h *Handler) { h.Metrics = m } }

// WithDebugVars mounts an expvar handler at /debug/vars.
func WithDebugVars(v http.Handler) Option { return func(h *Handler) { h.Vars = v } }

// WithLogger sets the logger used for server-side failures.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.Logger = l
		}
	}
}

// NewHandler constructs a handler over svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{Service: svc, Logger: nopLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "" || path == "/":
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": appName, "version": Version})
	case path == "/version":
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": Version})
	case path == "/metrics":
		if h.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Metrics.ServeHTTP(w, r)
	case path == "/debug/vars":
		if h.Vars == nil {
			http.NotFound(w, r)
			return
		}
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.Vars.ServeHTTP(w, r)
	case strings.HasPrefix(path+"/", apiPrefix):
		h.routeAPI(w, r, strings.Split(strings.TrimPrefix(path+"/", apiPrefix), "/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) routeAPI(w http.ResponseWriter, r *http.Request, segments []string) {
	segments = compact(segments)
	if len(segments) == 0 {
		http.NotFound(w, r)
		return
	}
	switch segments[0] {
	case "resources", "generators", "upgrades", "tiers":
		kind, _ := domain.ParseEntityType(segments[0])
		h.routeEntity(w, r, kind, segments[1:])
	case "options":
		if len(segments) != 2 {
			http.NotFound(w, r)
			return
		}
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleOptions(w, segments[1])
	case "validate":
		h.routeValidate(w, r, segments[1:])
	case "blueprint":
		h.routeBlueprint(w, r, segments[1:])
	case "settings":
		h.handleSettings(w, r)
	default:
		http.NotFound(w, r)
	}
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) routeEntity(w http.ResponseWriter, r *http.Request, kind domain.EntityType, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, kind)
		case http.MethodPost:
			h.handleCreate(w, r, kind)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 1:
		key := rest[0]
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, kind, key)
		case http.MethodPut:
			h.handleUpdate(w, r, kind, key)
		case http.MethodDelete:
			h.handleDelete(w, r, kind, key)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	default:
		if kind != domain.EntityTier {
			http.NotFound(w, r)
			return
		}
		h.routeTier(w, r, rest[0], rest[1:])
	}
}

func (h *Handler) routeTier(w http.ResponseWriter, r *http.Request, key string, rest []string) {
	switch {
	case len(rest) == 1 && rest[0] == "view":
		if !allow(w, r, http.MethodGet) {
			return
		}
		view, ok := h.Service.DescribeTier(key)
		if !ok {
			writeServiceError(w, &domain.NotFoundError{Entity: domain.EntityTier, Key: key})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tier": view})
	case len(rest) == 1 && rest[0] == "groups":
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handleAddGroup(w, r, key)
	case len(rest) == 2 && rest[0] == "groups":
		if !allow(w, r, http.MethodDelete) {
			return
		}
		index, err := strconv.Atoi(rest[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "item group index must be an integer")
			return
		}
		h.handleRemoveGroup(w, r, key, index)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) routeValidate(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 1 {
		http.NotFound(w, r)
		return
	}
	if !allow(w, r, http.MethodPost) {
		return
	}
	switch rest[0] {
	case "number":
		h.handleValidateNumber(w, r)
	case "formula":
		h.handleValidateFormula(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) routeBlueprint(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, h.Service.Blueprint())
	case rest[0] != "exports":
		http.NotFound(w, r)
	case len(rest) == 1:
		h.handleExports(w, r)
	case rest[1] == "jobs":
		h.handleJobs(w, r, rest[2:])
	default:
		http.NotFound(w, r)
	}
}

// decode reads a JSON body into v. Unknown fields are rejected so typos in
// field names surface instead of silently defaulting.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}

// updateOptions reads an If-Match precondition. Both "3" and "\"3\"" are accepted.
func updateOptions(r *http.Request) (domain.UpdateOptions, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return domain.UpdateOptions{}, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		return domain.UpdateOptions{}, fmt.Errorf("If-Match must carry a record version, got %q", raw)
	}
	return domain.UpdateOptions{ExpectedVersion: version}, nil
}

func deletePolicy(r *http.Request) (domain.DeletePolicy, error) {
	raw := r.URL.Query().Get("cascade")
	if raw == "" {
		return "", nil
	}
	cascade, err := strconv.ParseBool(raw)
	if err != nil {
		return "", fmt.Errorf("cascade must be a boolean, got %q", raw)
	}
	if cascade {
		return domain.DeletePolicyCascade, nil
	}
	return domain.DeletePolicyRefuse, nil
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		methodNotAllowed(w, method)
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("request failed", "operation", op, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
