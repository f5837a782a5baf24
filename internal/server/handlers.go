package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/testide/internal/engine"
	"github.com/leapstack-labs/testide/pkg/core"
)

const defaultHistoryLimit = 20

type handlers struct {
	engine    *engine.Engine
	workspace Workspace
	logger    *slog.Logger
}

// Request bodies.
type (
	saveCodeRequest struct {
		Code string `json:"code"`
	}
	startRunRequest struct {
		Targets []string `json:"targets"`
	}
	rerunRequest struct {
		VersionIDs []string `json:"version_ids"`
	}
	unitReport struct {
		RunID string `json:"run_id"`
		core.UnitResult
	}
)

type errorResponse struct {
	Error string `json:"error"`
}

// Tree lists files, tests and versions with their parse verdicts.
func (h *handlers) Tree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildTree(h.engine.Tree()))
}

// SaveCode replaces the code of a version.
func (h *handlers) SaveCode(w http.ResponseWriter, r *http.Request) {
	if h.workspace == nil {
		writeError(w, http.StatusNotImplemented, errors.New("code saves are not available"))
		return
	}
	var req saveCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.workspace.Save(r.Context(), chi.URLParam(r, "id"), req.Code); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRun returns the aggregated report of the latest run of a kind.
func (h *handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	rep, ok := ctrl.Rollup()
	if !ok {
		h.fail(w, core.ErrNoRun)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// StartRun starts a run over the posted targets, or over the current
// versions when none are given.
func (h *handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req startRunRequest
	if !decode(w, r, &req) {
		return
	}
	targets := req.Targets
	if len(targets) == 0 {
		targets = h.engine.Tree().CurrentVersionIDs()
	}
	run, err := ctrl.Start(targets)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// StopRun asks the active run of a kind to stop.
func (h *handlers) StopRun(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := ctrl.Stop(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ctrl.Snapshot())
}

// Rerun starts a run over a subset of versions.
func (h *handlers) Rerun(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req rerunRequest
	if !decode(w, r, &req) {
		return
	}
	run, err := ctrl.Rerun(req.VersionIDs)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// RerunFailed starts a run over the failed units of the latest run.
func (h *handlers) RerunFailed(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	run, err := ctrl.RunFailedOnly(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// ReportUnit accepts a unit result pushed by an external executor.
func (h *handlers) ReportUnit(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req unitReport
	if !decode(w, r, &req) {
		return
	}
	if req.RunID == "" || req.VersionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("run_id and version_id are required"))
		return
	}
	if err := ctrl.Report(req.RunID, req.UnitResult); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History lists persisted runs, newest first. Query parameters kind and
// limit narrow the list.
func (h *handlers) History(w http.ResponseWriter, r *http.Request) {
	store := h.engine.Store()
	if store == nil {
		writeJSON(w, http.StatusOK, []*core.Run{})
		return
	}

	var kind core.RunKind
	if s := r.URL.Query().Get("kind"); s != "" {
		k, err := core.ParseRunKind(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		kind = k
	}
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := store.ListRuns(r.Context(), kind, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if runs == nil {
		runs = []*core.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// controller resolves the {kind} URL parameter.
func (h *handlers) controller(w http.ResponseWriter, r *http.Request) (*engine.Controller, bool) {
	kind, err := core.ParseRunKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return h.engine.Controller(kind), true
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeError(w, code, err)
}

// statusCode maps engine errors onto HTTP statuses.
func statusCode(err error) int {
	var (
		orphan *core.OrphanVersionError
		active *core.RunAlreadyActiveError
	)
	switch {
	case errors.As(err, &orphan), errors.Is(err, core.ErrNoTargets):
		return http.StatusBadRequest
	case errors.As(err, &active), errors.Is(err, core.ErrNothingToRerun):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoRun):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, err)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
