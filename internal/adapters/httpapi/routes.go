package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"blueprintcore/internal/adapters/exports"
	"blueprintcore/internal/core"
	"blueprintcore/pkg/domain"
	"blueprintcore/pkg/numeric"
)

// requestedByHeader names the caller recorded on export jobs.
const requestedByHeader = "X-Requested-By"

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if isServerError(err) {
		h.internalError(w, op, err)
		return
	}
	writeServiceError(w, err)
}

func (h *Handler) respond(w http.ResponseWriter, status int, kind domain.EntityType, record any, version int64, res domain.Result) {
	setETag(w, version)
	writeJSON(w, status, map[string]any{string(kind): record, "warnings": violations(res)})
}

func (h *Handler) handleList(w http.ResponseWriter, kind domain.EntityType) {
	var items any
	switch kind {
	case domain.EntityResource:
		items = h.Service.ListResources()
	case domain.EntityGenerator:
		items = h.Service.ListGenerators()
	case domain.EntityUpgrade:
		items = h.Service.ListUpgrades()
	case domain.EntityTier:
		items = h.Service.ListTiers()
	}
	writeJSON(w, http.StatusOK, map[string]any{string(kind) + "s": items})
}

func (h *Handler) handleGet(w http.ResponseWriter, kind domain.EntityType, key string) {
	var (
		record  any
		version int64
		ok      bool
	)
	switch kind {
	case domain.EntityResource:
		var r domain.Resource
		r, ok = h.Service.GetResource(key)
		record, version = r, r.Version
	case domain.EntityGenerator:
		var g domain.Generator
		g, ok = h.Service.GetGenerator(key)
		record, version = g, g.Version
	case domain.EntityUpgrade:
		var u domain.Upgrade
		u, ok = h.Service.GetUpgrade(key)
		record, version = u, u.Version
	case domain.EntityTier:
		var t domain.Tier
		t, ok = h.Service.GetTier(key)
		record, version = t, t.Version
	}
	if !ok {
		writeServiceError(w, &domain.NotFoundError{Entity: kind, Key: key})
		return
	}
	setETag(w, version)
	writeJSON(w, http.StatusOK, map[string]any{string(kind): record})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, kind domain.EntityType) {
	ctx := r.Context()
	switch kind {
	case domain.EntityResource:
		var in core.ResourceInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, res, err := h.Service.CreateResource(ctx, in)
		if err != nil {
			h.fail(w, "create_resource", err)
			return
		}
		h.respond(w, http.StatusCreated, kind, created, created.Version, res)
	case domain.EntityGenerator:
		var in core.GeneratorInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, res, err := h.Service.CreateGenerator(ctx, in)
		if err != nil {
			h.fail(w, "create_generator", err)
			return
		}
		h.respond(w, http.StatusCreated, kind, created, created.Version, res)
	case domain.EntityUpgrade:
		var in core.UpgradeInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, res, err := h.Service.CreateUpgrade(ctx, in)
		if err != nil {
			h.fail(w, "create_upgrade", err)
			return
		}
		h.respond(w, http.StatusCreated, kind, created, created.Version, res)
	case domain.EntityTier:
		var in core.TierInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		created, res, err := h.Service.CreateTier(ctx, in)
		if err != nil {
			h.fail(w, "create_tier", err)
			return
		}
		h.respond(w, http.StatusCreated, kind, created, created.Version, res)
	}
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, kind domain.EntityType, key string) {
	ctx := r.Context()
	opts, err := updateOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch kind {
	case domain.EntityResource:
		var in core.ResourceInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, res, err := h.Service.UpdateResource(ctx, key, in, opts)
		if err != nil {
			h.fail(w, "update_resource", err)
			return
		}
		h.respond(w, http.StatusOK, kind, updated, updated.Version, res)
	case domain.EntityGenerator:
		var in core.GeneratorInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, res, err := h.Service.UpdateGenerator(ctx, key, in, opts)
		if err != nil {
			h.fail(w, "update_generator", err)
			return
		}
		h.respond(w, http.StatusOK, kind, updated, updated.Version, res)
	case domain.EntityUpgrade:
		var in core.UpgradeInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, res, err := h.Service.UpdateUpgrade(ctx, key, in, opts)
		if err != nil {
			h.fail(w, "update_upgrade", err)
			return
		}
		h.respond(w, http.StatusOK, kind, updated, updated.Version, res)
	case domain.EntityTier:
		var in core.TierInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, res, err := h.Service.UpdateTier(ctx, key, in, opts)
		if err != nil {
			h.fail(w, "update_tier", err)
			return
		}
		h.respond(w, http.StatusOK, kind, updated, updated.Version, res)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, kind domain.EntityType, key string) {
	ctx := r.Context()
	policy, err := deletePolicy(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch kind {
	case domain.EntityResource:
		_, err = h.Service.DeleteResource(ctx, key, policy)
	case domain.EntityGenerator:
		_, err = h.Service.DeleteGenerator(ctx, key, policy)
	case domain.EntityUpgrade:
		_, err = h.Service.DeleteUpgrade(ctx, key, policy)
	case domain.EntityTier:
		_, err = h.Service.DeleteTier(ctx, key)
	}
	if err != nil {
		h.fail(w, "delete_"+string(kind), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddGroup(w http.ResponseWriter, r *http.Request, key string) {
	opts, err := updateOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var group domain.ItemGroup
	if err := decode(r, &group); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, res, err := h.Service.AddItemGroup(r.Context(), key, group, opts)
	if err != nil {
		h.fail(w, "add_item_group", err)
		return
	}
	h.respond(w, http.StatusOK, domain.EntityTier, updated, updated.Version, res)
}

func (h *Handler) handleRemoveGroup(w http.ResponseWriter, r *http.Request, key string, index int) {
	opts, err := updateOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, res, err := h.Service.RemoveItemGroup(r.Context(), key, index, opts)
	if err != nil {
		h.fail(w, "remove_item_group", err)
		return
	}
	h.respond(w, http.StatusOK, domain.EntityTier, updated, updated.Version, res)
}

func (h *Handler) handleOptions(w http.ResponseWriter, name string) {
	kind, ok := domain.ParseEntityType(name)
	if !ok {
		writeServiceError(w, &core.UnknownEntityError{Entity: domain.EntityType(name)})
		return
	}
	options, err := h.Service.ListAvailable(kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": options})
}

type numberRequest struct {
	Field string `json:"field,omitempty"`
	Value string `json:"value"`
}

type checkResponse struct {
	Valid     bool       `json:"valid"`
	Value     *float64   `json:"value,omitempty"`
	Formatted string     `json:"formatted,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
}

func (h *Handler) handleValidateNumber(w http.ResponseWriter, r *http.Request) {
	var req numberRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	field := req.Field
	if field == "" {
		field = "value"
	}
	v, err := numeric.ValidateField(field, req.Value)
	if err != nil {
		writeJSON(w, http.StatusOK, checkResponse{Error: &errorBody{Field: field, Kind: string(domain.KindInvalidNumber), Message: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Valid: true, Value: &v, Formatted: numeric.Format(v)})
}

type formulaRequest struct {
	Field      string `json:"field,omitempty"`
	Expression string `json:"expression"`
}

func (h *Handler) handleValidateFormula(w http.ResponseWriter, r *http.Request) {
	var req formulaRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	field := req.Field
	if field == "" {
		field = "expression"
	}
	if err := numeric.CheckFormula(field, req.Expression); err != nil {
		writeJSON(w, http.StatusOK, checkResponse{Error: &errorBody{Field: field, Kind: string(domain.KindInvalidFormula), Message: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Valid: true})
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"settings": h.Service.Settings()})
	case http.MethodPut:
		var in core.SettingsInput
		if err := decode(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, res, err := h.Service.UpdateSettings(r.Context(), in)
		if err != nil {
			h.fail(w, "update_settings", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": updated, "warnings": violations(res)})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request) {
	if h.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		artifacts, err := h.Exporter.List(r.Context())
		if err != nil {
			h.internalError(w, "list_exports", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exports": artifacts})
	case http.MethodPost:
		artifact, err := h.Exporter.Export(r.Context(), h.Service.Blueprint())
		if err != nil {
			h.internalError(w, "export_blueprint", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"export": artifact})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request, rest []string) {
	if h.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "export jobs not configured")
		return
	}
	switch {
	case len(rest) == 0:
		if !allow(w, r, http.MethodPost) {
			return
		}
		job, err := h.Jobs.Enqueue(r.Context(), strings.TrimSpace(r.Header.Get(requestedByHeader)))
		if errors.Is(err, exports.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if err != nil {
			h.internalError(w, "enqueue_export", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
	case len(rest) == 1:
		if !allow(w, r, http.MethodGet) {
			return
		}
		job, ok := h.Jobs.Job(rest[0])
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": errorBody{Kind: string(domain.KindNotFound), Message: "export job " + rest[0] + " not found"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": job})
	default:
		http.NotFound(w, r)
	}
}
