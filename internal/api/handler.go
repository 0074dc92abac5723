// Package api implements the HTTP surface: synchronous builds,
// asynchronous job management, and saved projects.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/jobs"
	"github.com/adityasoni99/code-iq/internal/projects"
	"github.com/adityasoni99/code-iq/internal/server"
)

// pollInterval paces the synchronous build's wait on the job store.
const pollInterval = 100 * time.Millisecond

type Handler struct {
	store    *jobs.Store
	runner   *jobs.Runner
	projects *projects.Store
	validate *validator.Validate
	logger   *slog.Logger

	// baseCtx detaches job execution from the request context so an
	// asynchronous job survives its creating request.
	baseCtx context.Context
}

// NewHandler wires the API. projects may be nil, which disables the
// project endpoints.
func NewHandler(baseCtx context.Context, store *jobs.Store, runner *jobs.Runner, projectStore *projects.Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		runner:   runner,
		projects: projectStore,
		validate: validator.New(),
		logger:   logger,
		baseCtx:  baseCtx,
	}
}

// Routes mounts all endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/build", h.handleBuild)
		r.Post("/jobs", h.handleCreateJob)
		r.Get("/jobs/{id}", h.handleGetJob)
		r.Get("/jobs/{id}/result", h.handleGetJobResult)
		if h.projects != nil {
			r.Post("/projects", h.handleCreateProject)
			r.Get("/projects/{id}", h.handleGetProject)
			r.Put("/projects/{id}", h.handleUpdateProject)
			r.Post("/projects/{id}/regenerate", h.handleRegenerateProject)
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBuild runs a build while the caller waits. The request context
// carries the duration budget; when it expires before the job finishes,
// the response is 202 with the job id so the caller can poll instead.
func (h *Handler) handleBuild(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeBuildRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id := h.store.Create(req.Inputs(), "")
	server.AddLogField(r.Context(), "job_id", id)
	h.runner.Start(h.baseCtx, id)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			writeJSON(w, http.StatusAccepted, JobAccepted{JobID: id, Status: StatusOf(h.store, id)})
			return
		case <-ticker.C:
			rec, ok := h.store.Get(id)
			if !ok {
				h.writeError(w, r, domain.ErrNotFound(fmt.Sprintf("job %s not found", id)))
				return
			}
			switch rec.Status {
			case jobs.StatusCompleted:
				writeJSON(w, http.StatusOK, rec)
				return
			case jobs.StatusFailed:
				h.writeError(w, r, domain.ErrProvider(rec.Error).WithStatusCode(http.StatusBadGateway))
				return
			}
		}
	}
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeBuildRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id := h.store.Create(req.Inputs(), req.WebhookURL)
	server.AddLogField(r.Context(), "job_id", id)
	h.runner.Start(h.baseCtx, id)

	writeJSON(w, http.StatusCreated, JobAccepted{JobID: id, Status: jobs.StatusQueued})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := h.store.Get(id)
	if !ok {
		h.writeError(w, r, domain.ErrNotFound(fmt.Sprintf("job %s not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetJobResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := h.store.Get(id)
	if !ok {
		h.writeError(w, r, domain.ErrNotFound(fmt.Sprintf("job %s not found", id)))
		return
	}
	if rec.Status != jobs.StatusCompleted {
		h.writeError(w, r, domain.NewAPIError(domain.ErrorTypeValidation,
			fmt.Sprintf("job %s is %s, result available only when completed", id, rec.Status)).
			WithStatusCode(http.StatusConflict))
		return
	}
	writeJSON(w, http.StatusOK, rec.Result)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectCreateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, ok := h.store.Get(req.JobID)
	if !ok {
		h.writeError(w, r, domain.ErrNotFound(fmt.Sprintf("job %s not found", req.JobID)))
		return
	}
	if rec.Status != jobs.StatusCompleted || rec.Result == nil {
		h.writeError(w, r, domain.ErrValidation(
			fmt.Sprintf("job %s is %s, only completed jobs can be saved", req.JobID, rec.Status)).
			WithStatusCode(http.StatusConflict))
		return
	}

	id, err := h.projects.Create(r.Context(), rec.Result.Summary, rec.Result.Chapters, rec.Inputs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ProjectCreated{ProjectID: id})
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ProjectUpdateRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Summary == nil && req.Chapters == nil {
		h.writeError(w, r, domain.ErrValidation("at least one of summary or chapters must be set"))
		return
	}

	if err := h.projects.Update(r.Context(), id, req.Summary, req.Chapters); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.projects.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleRegenerateProject re-runs the pipeline from the project's stored
// source inputs as a fresh asynchronous job.
func (h *Handler) handleRegenerateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, source, err := h.projects.GetInternal(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jobID := h.store.Create(source, "")
	server.AddLogField(r.Context(), "job_id", jobID)
	h.runner.Start(h.baseCtx, jobID)

	writeJSON(w, http.StatusCreated, JobAccepted{JobID: jobID, Status: jobs.StatusQueued})
}

func (h *Handler) decodeBuildRequest(r *http.Request) (BuildRequest, error) {
	var req BuildRequest
	if err := h.decode(r, &req); err != nil {
		return req, err
	}
	if (req.RepoURL == "") == (req.LocalDir == "") {
		return req, domain.ErrValidation("exactly one of repo_url and local_dir must be set").WithParam("repo_url")
	}
	return req, nil
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.ErrValidation(fmt.Sprintf("invalid request body: %v", err))
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.ErrValidation(
				fmt.Sprintf("field %s failed validation (%s)", verrs[0].Field(), verrs[0].Tag())).
				WithParam(verrs[0].Field())
		}
		return domain.ErrValidation(err.Error())
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		apiErr = domain.NewAPIError(domain.ErrorTypeServer, err.Error())
	}
	writeJSON(w, apiErr.HTTPStatusCode(), map[string]any{"error": apiErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusOf reads a job's current status, defaulting to queued when the
// record is gone.
func StatusOf(store *jobs.Store, id string) jobs.Status {
	if rec, ok := store.Get(id); ok {
		return rec.Status
	}
	return jobs.StatusQueued
}
