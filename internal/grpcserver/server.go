// Package grpcserver implements the ApplicationService gRPC server.
//
// It delegates all business logic to tracker.Service and handles only the
// gRPC transport concerns: metadata extraction, error mapping, and
// conversion between domain values and google.protobuf.Struct messages.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/access"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/tracker"
)

type applicationService interface {
	Submit(ctx context.Context, actor access.Actor, in tracker.SubmitInput) (pipeline.Application, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (pipeline.Application, error)
	List(ctx context.Context, actor access.Actor, q tracker.ListQuery) ([]pipeline.Application, error)
	AllowedNext(ctx context.Context, actor access.Actor, id uuid.UUID) (tracker.NextStatuses, error)
	History(ctx context.Context, actor access.Actor, id uuid.UUID) ([]pipeline.HistoryEntry, error)
	UpdateStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status, notes string) (pipeline.Application, error)
}

type statusLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// Server implements the ApplicationService RPCs.
type Server struct {
	svc     applicationService
	limiter statusLimiter
	log     *slog.Logger
}

// NewServer constructs a Server backed by svc. limiter may be nil.
func NewServer(svc applicationService, limiter statusLimiter, logger *slog.Logger) *Server {
	return &Server{svc: svc, limiter: limiter, log: logger.With("transport", "grpc")}
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// ListApplications returns the applications visible to the caller.
// Request: {status?, jobPostId?, limit?, offset?}. Response: {applications: [...]}.
func (s *Server) ListApplications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	jobPostID, err := optionalUUIDField(req, "jobPostId")
	if err != nil {
		return nil, err
	}

	limit, err := intField(req, "limit")
	if err != nil {
		return nil, err
	}
	offset, err := intField(req, "offset")
	if err != nil {
		return nil, err
	}

	apps, err := s.svc.List(ctx, actor, tracker.ListQuery{
		Status:    stringField(req, "status"),
		JobPostID: jobPostID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, s.toGRPCError(ctx, err)
	}
	return toStruct(map[string]any{"applications": apps})
}

// GetApplication returns one application. Request: {id}.
func (s *Server) GetApplication(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, id, err := actorAndID(ctx, req)
	if err != nil {
		return nil, err
	}
	app, err := s.svc.Get(ctx, actor, id)
	if err != nil {
		return nil, s.toGRPCError(ctx, err)
	}
	return toStruct(app)
}

// SubmitApplication creates an application in Applied.
// Request: {jobPostId, employerId, resumeUrl, coverLetterUrl?, additionalNotes?}.
func (s *Server) SubmitApplication(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	jobPostID, err := optionalUUIDField(req, "jobPostId")
	if err != nil {
		return nil, err
	}
	employerID, err := optionalUUIDField(req, "employerId")
	if err != nil {
		return nil, err
	}

	app, err := s.svc.Submit(ctx, actor, tracker.SubmitInput{
		JobPostID:       jobPostID,
		EmployerID:      employerID,
		ResumeURL:       stringField(req, "resumeUrl"),
		CoverLetterURL:  stringField(req, "coverLetterUrl"),
		AdditionalNotes: stringField(req, "additionalNotes"),
	})
	if err != nil {
		return nil, s.toGRPCError(ctx, err)
	}
	return toStruct(app)
}

// UpdateStatus moves an application to a new status. Request: {id, status, notes?}.
func (s *Server) UpdateStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, id, err := actorAndID(ctx, req)
	if err != nil {
		return nil, err
	}
	newStatus := stringField(req, "status")
	if newStatus == "" {
		return nil, status.Error(codes.InvalidArgument, "status is required")
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, actor.ID.String()) {
		return nil, status.Error(codes.ResourceExhausted, "too many status updates, slow down")
	}

	app, err := s.svc.UpdateStatus(ctx, actor, id, newStatus, stringField(req, "notes"))
	if err != nil {
		return nil, s.toGRPCError(ctx, err)
	}
	return toStruct(app)
}

// AllowedNextStatuses returns the legal next statuses. Request: {id}.
func (s *Server) AllowedNextStatuses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, id, err := actorAndID(ctx, req)
	if err != nil {
		return nil, err
	}
	next, err := s.svc.AllowedNext(ctx, actor, id)
	if err != nil {
		return nil, s.toGRPCError(ctx, err)
	}
	return toStruct(next)
}

// GetHistory returns the status history. Request: {id}. Response: {history: [...]}.
func (s *Server) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, id, err := actorAndID(ctx, req)
	if err != nil {
		return nil, err
	}
	entries, err := s.svc.History(ctx, actor, id)
	if err != nil {
		return nil, s.toGRPCError(ctx, err)
	}
	return toStruct(map[string]any{"history": entries})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// actorFromCtx reads the identity forwarded by the gateway via metadata.
func actorFromCtx(ctx context.Context) (access.Actor, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return access.Actor{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	actor, err := access.ParseActor(first(md, access.HeaderUserID), first(md, access.HeaderUserRole))
	if err != nil {
		return access.Actor{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return actor, nil
}

func actorAndID(ctx context.Context, req *structpb.Struct) (access.Actor, uuid.UUID, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return access.Actor{}, uuid.Nil, err
	}
	id, err := uuid.Parse(stringField(req, "id"))
	if err != nil {
		return access.Actor{}, uuid.Nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	return actor, id, nil
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// intField reads an optional integer. Missing or null fields read as zero.
func intField(req *structpb.Struct, key string) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) || math.Trunc(n) != n || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
}

func optionalUUIDField(req *structpb.Struct, key string) (uuid.UUID, error) {
	raw := stringField(req, key)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s must be a UUID", key)
	}
	return id, nil
}

// toStruct converts v to a Struct through its JSON form, so REST and gRPC
// clients see the same field names.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func (s *Server) toGRPCError(ctx context.Context, err error) error {
	var ve *tracker.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Error())
	}
	var te *pipeline.InvalidTransitionError
	if errors.As(err, &te) {
		return status.Error(codes.FailedPrecondition, te.Error())
	}
	switch {
	case errors.Is(err, tracker.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, tracker.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, tracker.ErrNotFound):
		return status.Error(codes.NotFound, "application not found")
	case errors.Is(err, tracker.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "an application for this job post already exists")
	case errors.Is(err, tracker.ErrConflict):
		return status.Error(codes.Aborted, "application was modified concurrently, retry")
	}
	s.log.ErrorContext(ctx, "rpc failed", slog.String("error", err.Error()))
	return status.Error(codes.Internal, "internal server error")
}
