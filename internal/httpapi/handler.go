// Package httpapi implements the REST surface of the application service.
//
// All application routes expect the x-user-id and x-user-role headers
// forwarded by the gateway.
//
// Routes:
//
//	GET  /health                              → liveness and database readiness
//	GET  /statuses                            → full transition table
//	GET  /applications                        → list visible applications
//	POST /applications                        → submit an application
//	GET  /applications/summary                → per-status counts
//	GET  /applications/{id}                   → one application
//	GET  /applications/{id}/next-statuses     → legal next statuses
//	GET  /applications/{id}/history           → status history
//	POST /applications/{id}/status            → move to a new status
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/access"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/tracker"
)

const version = "1.0.0"

type applicationService interface {
	Submit(ctx context.Context, actor access.Actor, in tracker.SubmitInput) (pipeline.Application, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (pipeline.Application, error)
	List(ctx context.Context, actor access.Actor, q tracker.ListQuery) ([]pipeline.Application, error)
	AllowedNext(ctx context.Context, actor access.Actor, id uuid.UUID) (tracker.NextStatuses, error)
	History(ctx context.Context, actor access.Actor, id uuid.UUID) ([]pipeline.HistoryEntry, error)
	UpdateStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status, notes string) (pipeline.Application, error)
	Summary(ctx context.Context, actor access.Actor, f tracker.SummaryFilter) (tracker.Summary, error)
}

type statusLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) bool { return true }

// Handler holds shared dependencies.
type Handler struct {
	svc     applicationService
	limiter statusLimiter
	ready   func(ctx context.Context) error
	log     *slog.Logger
}

// NewHandler returns a configured Handler. ready backs /health and may be nil.
func NewHandler(svc applicationService, limiter statusLimiter, ready func(ctx context.Context) error, logger *slog.Logger) *Handler {
	if limiter == nil {
		limiter = allowAll{}
	}
	return &Handler{
		svc:     svc,
		limiter: limiter,
		ready:   ready,
		log:     logger.With("handler", "applications"),
	}
}

// RegisterRoutes mounts all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /statuses", h.statuses)
	mux.HandleFunc("GET /applications", h.listApplications)
	mux.HandleFunc("POST /applications", h.submitApplication)
	mux.HandleFunc("GET /applications/summary", h.summary)
	mux.HandleFunc("GET /applications/{id}", h.getApplication)
	mux.HandleFunc("GET /applications/{id}/next-statuses", h.nextStatuses)
	mux.HandleFunc("GET /applications/{id}/history", h.history)
	mux.HandleFunc("POST /applications/{id}/status", h.updateStatus)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":  "ok",
		"service": "application-service",
		"version": version,
	}
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.log.WarnContext(r.Context(), "readiness check failed", slog.String("error", err.Error()))
			body["status"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	jsonOK(w, body)
}

func (h *Handler) statuses(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]any{
		"statuses":    pipeline.All(),
		"transitions": pipeline.Transitions(),
	})
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := tracker.ListQuery{Status: q.Get("status")}
	var err error
	if query.JobPostID, err = optionalUUID(q.Get("jobPostId")); err != nil {
		jsonError(w, "jobPostId: must be a UUID", http.StatusBadRequest)
		return
	}
	if query.Limit, err = optionalInt(q.Get("limit")); err != nil {
		jsonError(w, "limit: must be an integer", http.StatusBadRequest)
		return
	}
	if query.Offset, err = optionalInt(q.Get("offset")); err != nil {
		jsonError(w, "offset: must be an integer", http.StatusBadRequest)
		return
	}

	apps, err := h.svc.List(r.Context(), actor, query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, apps)
}

func (h *Handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var body struct {
		JobPostID       uuid.UUID `json:"jobPostId"`
		EmployerID      uuid.UUID `json:"employerId"`
		ResumeURL       string    `json:"resumeUrl"`
		CoverLetterURL  string    `json:"coverLetterUrl"`
		AdditionalNotes string    `json:"additionalNotes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	app, err := h.svc.Submit(r.Context(), actor, tracker.SubmitInput{
		JobPostID:       body.JobPostID,
		EmployerID:      body.EmployerID,
		ResumeURL:       body.ResumeURL,
		CoverLetterURL:  body.CoverLetterURL,
		AdditionalNotes: body.AdditionalNotes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	jobPostID, err := optionalUUID(r.URL.Query().Get("jobPostId"))
	if err != nil {
		jsonError(w, "jobPostId: must be a UUID", http.StatusBadRequest)
		return
	}

	sum, err := h.svc.Summary(r.Context(), actor, tracker.SummaryFilter{JobPostID: jobPostID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, sum)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, app)
}

func (h *Handler) nextStatuses(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	next, err := h.svc.AllowedNext(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, next)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.History(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, entries)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		jsonError(w, "body must contain status", http.StatusBadRequest)
		return
	}

	if !h.limiter.Allow(r.Context(), actor.ID.String()) {
		jsonError(w, "too many status updates, slow down", http.StatusTooManyRequests)
		return
	}

	app, err := h.svc.UpdateStatus(r.Context(), actor, id, body.Status, body.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonOK(w, app)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (access.Actor, bool) {
	actor, err := access.ParseActor(r.Header.Get(access.HeaderUserID), r.Header.Get(access.HeaderUserRole))
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnauthorized)
		return access.Actor{}, false
	}
	return actor, true
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (access.Actor, uuid.UUID, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return access.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		jsonError(w, "application not found", http.StatusNotFound)
		return access.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

// writeError maps service errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *tracker.ValidationError
	var te *pipeline.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Error(), http.StatusBadRequest)
	case errors.As(err, &te):
		jsonError(w, te.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, tracker.ErrUnauthenticated):
		jsonError(w, "unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, tracker.ErrForbidden):
		jsonError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, tracker.ErrNotFound):
		jsonError(w, "application not found", http.StatusNotFound)
	case errors.Is(err, tracker.ErrAlreadyExists):
		jsonError(w, "an application for this job post already exists", http.StatusConflict)
	case errors.Is(err, tracker.ErrConflict):
		jsonError(w, "application was modified concurrently, retry", http.StatusConflict)
	default:
		h.log.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", RequestIDFromCtx(r.Context())),
		)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func optionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
