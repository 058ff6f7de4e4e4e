package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/access"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/tracker"
)

type fakeService struct {
	SubmitFunc       func(ctx context.Context, actor access.Actor, in tracker.SubmitInput) (pipeline.Application, error)
	GetFunc          func(ctx context.Context, actor access.Actor, id uuid.UUID) (pipeline.Application, error)
	ListFunc         func(ctx context.Context, actor access.Actor, q tracker.ListQuery) ([]pipeline.Application, error)
	AllowedNextFunc  func(ctx context.Context, actor access.Actor, id uuid.UUID) (tracker.NextStatuses, error)
	HistoryFunc      func(ctx context.Context, actor access.Actor, id uuid.UUID) ([]pipeline.HistoryEntry, error)
	UpdateStatusFunc func(ctx context.Context, actor access.Actor, id uuid.UUID, status, notes string) (pipeline.Application, error)
	SummaryFunc      func(ctx context.Context, actor access.Actor, f tracker.SummaryFilter) (tracker.Summary, error)
}

func (f *fakeService) Submit(ctx context.Context, actor access.Actor, in tracker.SubmitInput) (pipeline.Application, error) {
	return f.SubmitFunc(ctx, actor, in)
}

func (f *fakeService) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (pipeline.Application, error) {
	return f.GetFunc(ctx, actor, id)
}

func (f *fakeService) List(ctx context.Context, actor access.Actor, q tracker.ListQuery) ([]pipeline.Application, error) {
	return f.ListFunc(ctx, actor, q)
}

func (f *fakeService) AllowedNext(ctx context.Context, actor access.Actor, id uuid.UUID) (tracker.NextStatuses, error) {
	return f.AllowedNextFunc(ctx, actor, id)
}

func (f *fakeService) History(ctx context.Context, actor access.Actor, id uuid.UUID) ([]pipeline.HistoryEntry, error) {
	return f.HistoryFunc(ctx, actor, id)
}

func (f *fakeService) UpdateStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status, notes string) (pipeline.Application, error) {
	return f.UpdateStatusFunc(ctx, actor, id, status, notes)
}

func (f *fakeService) Summary(ctx context.Context, actor access.Actor, sf tracker.SummaryFilter) (tracker.Summary, error) {
	return f.SummaryFunc(ctx, actor, sf)
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

var (
	employerID = uuid.MustParse("7a0d3c55-6b8e-4c55-9a3e-1f2b3c4d5e6f")
	seekerID   = uuid.MustParse("0b6f7e2a-3c4d-4e5f-8a9b-0c1d2e3f4a5b")
)

func sampleApp() pipeline.Application {
	return pipeline.New(uuid.New(), pipeline.Draft{
		JobPostID:  uuid.New(),
		SeekerID:   seekerID,
		EmployerID: employerID,
		ResumeURL:  "https://files.example/cv.pdf",
	}, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
}

func newServer(t *testing.T, svc *fakeService, limiter statusLimiter, ready func(context.Context) error) (*httptest.Server, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	mux := http.NewServeMux()
	NewHandler(svc, limiter, ready, logger).RegisterRoutes(mux)
	srv := httptest.NewServer(Chain(RequestID, Recovery(logger))(mux))
	t.Cleanup(srv.Close)
	return srv, &logs
}

func do(t *testing.T, srv *httptest.Server, method, path string, actor *access.Actor, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if actor != nil {
		req.Header.Set(access.HeaderUserID, actor.ID.String())
		req.Header.Set(access.HeaderUserRole, string(actor.Role))
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

var employer = &access.Actor{ID: employerID, Role: access.RoleEmployer}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, &fakeService{}, nil, func(context.Context) error { return nil })
	resp, body := do(t, srv, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	srv, _ = newServer(t, &fakeService{}, nil, func(context.Context) error { return errors.New("db down") })
	resp, body = do(t, srv, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", body["status"])
}

func TestStatuses(t *testing.T) {
	srv, _ := newServer(t, &fakeService{}, nil, nil)
	resp, body := do(t, srv, http.MethodGet, "/statuses", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statuses, ok := body["statuses"].([]any)
	require.True(t, ok)
	assert.Len(t, statuses, len(pipeline.All()))

	transitions, ok := body["transitions"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"Under Review", "Rejected"}, transitions["Applied"])
}

func TestIdentityRequired(t *testing.T) {
	srv, _ := newServer(t, &fakeService{}, nil, nil)

	resp, body := do(t, srv, http.MethodGet, "/applications", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body["error"], "x-user-id")

	resp, _ = do(t, srv, http.MethodGet, "/applications", &access.Actor{ID: uuid.New(), Role: "Recruiter"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListApplications(t *testing.T) {
	job := uuid.New()
	var got tracker.ListQuery
	svc := &fakeService{ListFunc: func(_ context.Context, actor access.Actor, q tracker.ListQuery) ([]pipeline.Application, error) {
		assert.Equal(t, *employer, actor)
		got = q
		return []pipeline.Application{sampleApp()}, nil
	}}
	srv, _ := newServer(t, svc, nil, nil)

	resp, _ := do(t, srv, http.MethodGet, fmt.Sprintf("/applications?status=Shortlisted&jobPostId=%s&limit=5&offset=10", job), employer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, tracker.ListQuery{Status: "Shortlisted", JobPostID: job, Limit: 5, Offset: 10}, got)
}

func TestListApplications_BadQuery(t *testing.T) {
	srv, _ := newServer(t, &fakeService{}, nil, nil)
	for _, q := range []string{"jobPostId=nope", "limit=ten", "offset=x"} {
		resp, _ := do(t, srv, http.MethodGet, "/applications?"+q, employer, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestSubmitApplication(t *testing.T) {
	app := sampleApp()
	seeker := &access.Actor{ID: seekerID, Role: access.RoleJobSeeker}
	svc := &fakeService{SubmitFunc: func(_ context.Context, _ access.Actor, in tracker.SubmitInput) (pipeline.Application, error) {
		assert.Equal(t, app.JobPostID, in.JobPostID)
		assert.Equal(t, "https://files.example/cv.pdf", in.ResumeURL)
		return app, nil
	}}
	srv, _ := newServer(t, svc, nil, nil)

	body := fmt.Sprintf(`{"jobPostId":%q,"employerId":%q,"resumeUrl":"https://files.example/cv.pdf"}`, app.JobPostID, employerID)
	resp, out := do(t, srv, http.MethodPost, "/applications", seeker, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Applied", out["status"])
	assert.Equal(t, app.ID.String(), out["id"])

	resp, _ = do(t, srv, http.MethodPost, "/applications", seeker, `{"jobPostId":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatus(t *testing.T) {
	app := sampleApp()
	moved, err := pipeline.Attempt(app, pipeline.Request{To: pipeline.StatusUnderReview, UpdatedBy: employerID})
	require.NoError(t, err)

	svc := &fakeService{UpdateStatusFunc: func(_ context.Context, _ access.Actor, id uuid.UUID, status, notes string) (pipeline.Application, error) {
		assert.Equal(t, app.ID, id)
		assert.Equal(t, "Under Review", status)
		assert.Equal(t, "looks good", notes)
		return moved, nil
	}}
	limiter := &fakeLimiter{allow: true}
	srv, _ := newServer(t, svc, limiter, nil)

	resp, out := do(t, srv, http.MethodPost, "/applications/"+app.ID.String()+"/status", employer,
		`{"status":"Under Review","notes":"looks good"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Under Review", out["status"])
	assert.Len(t, out["statusHistory"], 2)
	assert.Equal(t, []string{employerID.String()}, limiter.keys)
}

func TestUpdateStatus_RateLimited(t *testing.T) {
	svc := &fakeService{UpdateStatusFunc: func(context.Context, access.Actor, uuid.UUID, string, string) (pipeline.Application, error) {
		t.Error("service must not be called when throttled")
		return pipeline.Application{}, nil
	}}
	srv, _ := newServer(t, svc, &fakeLimiter{allow: false}, nil)

	resp, _ := do(t, srv, http.MethodPost, "/applications/"+uuid.NewString()+"/status", employer, `{"status":"Rejected"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestUpdateStatus_MissingStatus(t *testing.T) {
	srv, _ := newServer(t, &fakeService{}, nil, nil)
	resp, _ := do(t, srv, http.MethodPost, "/applications/"+uuid.NewString()+"/status", employer, `{"notes":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &tracker.ValidationError{Field: "status", Msg: "unknown"}, http.StatusBadRequest},
		{"unauthenticated", tracker.ErrUnauthenticated, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("change status: %w", tracker.ErrForbidden), http.StatusForbidden},
		{"not found", fmt.Errorf("get: %w", tracker.ErrNotFound), http.StatusNotFound},
		{"exists", tracker.ErrAlreadyExists, http.StatusConflict},
		{"conflict", tracker.ErrConflict, http.StatusConflict},
		{"invalid transition", &pipeline.InvalidTransitionError{From: pipeline.StatusOfferAccepted, To: pipeline.StatusApplied}, http.StatusUnprocessableEntity},
		{"stored status unknown", fmt.Errorf("load: %w", pipeline.ErrUnknownStatus), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{GetFunc: func(context.Context, access.Actor, uuid.UUID) (pipeline.Application, error) {
				return pipeline.Application{}, tt.err
			}}
			srv, logs := newServer(t, svc, nil, nil)

			resp, body := do(t, srv, http.MethodGet, "/applications/"+uuid.NewString(), employer, "")
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
				assert.Contains(t, logs.String(), "request failed")
			}
		})
	}
}

func TestInvalidTransitionMessage(t *testing.T) {
	svc := &fakeService{UpdateStatusFunc: func(context.Context, access.Actor, uuid.UUID, string, string) (pipeline.Application, error) {
		return pipeline.Application{}, fmt.Errorf("update: %w", &pipeline.InvalidTransitionError{From: pipeline.StatusApplied, To: pipeline.StatusOfferAccepted})
	}}
	srv, _ := newServer(t, svc, nil, nil)

	resp, body := do(t, srv, http.MethodPost, "/applications/"+uuid.NewString()+"/status", employer, `{"status":"Offer Accepted"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "Applied")
	assert.Contains(t, body["error"], "Offer Accepted")
}

func TestApplicationSubroutes(t *testing.T) {
	app := sampleApp()
	svc := &fakeService{
		AllowedNextFunc: func(_ context.Context, _ access.Actor, id uuid.UUID) (tracker.NextStatuses, error) {
			return tracker.NextStatuses{ApplicationID: id, Current: pipeline.StatusApplied, Allowed: pipeline.AllowedNext(pipeline.StatusApplied)}, nil
		},
		HistoryFunc: func(context.Context, access.Actor, uuid.UUID) ([]pipeline.HistoryEntry, error) {
			return app.StatusHistory, nil
		},
		SummaryFunc: func(_ context.Context, _ access.Actor, f tracker.SummaryFilter) (tracker.Summary, error) {
			assert.Equal(t, app.JobPostID, f.JobPostID)
			return tracker.Summary{Total: 3, Active: 2, ByStatus: map[pipeline.Status]int{pipeline.StatusApplied: 2, pipeline.StatusRejected: 1}}, nil
		},
	}
	srv, _ := newServer(t, svc, nil, nil)

	resp, body := do(t, srv, http.MethodGet, "/applications/"+app.ID.String()+"/next-statuses", employer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Applied", body["current"])
	assert.Len(t, body["allowed"], 2)

	resp, _ = do(t, srv, http.MethodGet, "/applications/"+app.ID.String()+"/history", employer, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/applications/summary?jobPostId="+app.JobPostID.String(), employer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["total"])

	resp, _ = do(t, srv, http.MethodGet, "/applications/not-a-uuid", employer, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
