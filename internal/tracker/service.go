// Package tracker orchestrates the application lifecycle: it loads applications,
// runs transitions through the pipeline engine, persists the result and
// announces it. It is transport-agnostic and shared by the REST and gRPC servers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/access"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/notify"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
)

// ─── Consumer-defined interfaces ─────────────────────────────────────────────

type applicationRepo interface {
	Create(ctx context.Context, app pipeline.Application) error
	GetByID(ctx context.Context, id uuid.UUID) (pipeline.Application, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (pipeline.Application, error)
	AppendTransition(ctx context.Context, id uuid.UUID, from pipeline.Status, entry pipeline.HistoryEntry) error
	List(ctx context.Context, f ListFilter) ([]pipeline.Application, error)
	CountByStatus(ctx context.Context, f SummaryFilter) (map[pipeline.Status]int, error)
	ListStale(ctx context.Context, statuses []pipeline.Status, before time.Time, limit int) ([]pipeline.Application, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service encapsulates the application business logic.
type Service struct {
	log   *slog.Logger
	repo  applicationRepo
	tx    txManager
	pub   notify.Publisher
	now   func() time.Time
	newID func() uuid.UUID
}

// NewService returns a configured Service.
func NewService(logger *slog.Logger, repo applicationRepo, tx txManager, pub notify.Publisher) *Service {
	return &Service{
		log:   logger.With("service", "tracker"),
		repo:  repo,
		tx:    tx,
		pub:   pub,
		now:   time.Now,
		newID: uuid.New,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ─── Operations ──────────────────────────────────────────────────────────────

// Submit creates a new application in Applied for the calling job seeker.
func (s *Service) Submit(ctx context.Context, actor access.Actor, in SubmitInput) (pipeline.Application, error) {
	if actor.IsZero() {
		return pipeline.Application{}, ErrUnauthenticated
	}
	if !access.CanSubmit(actor) {
		return pipeline.Application{}, fmt.Errorf("%w: only job seekers can apply", ErrForbidden)
	}
	if err := in.Validate(); err != nil {
		return pipeline.Application{}, err
	}

	app := pipeline.New(s.newID(), pipeline.Draft{
		JobPostID:       in.JobPostID,
		SeekerID:        actor.ID,
		EmployerID:      in.EmployerID,
		ResumeURL:       in.ResumeURL,
		CoverLetterURL:  in.CoverLetterURL,
		AdditionalNotes: in.AdditionalNotes,
	}, s.now())

	if err := s.repo.Create(ctx, app); err != nil {
		return pipeline.Application{}, fmt.Errorf("submit application: %w", err)
	}

	s.publish(ctx, notify.Submitted(app))
	return app, nil
}

// Get returns one application if the actor may see it.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (pipeline.Application, error) {
	if actor.IsZero() {
		return pipeline.Application{}, ErrUnauthenticated
	}
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return pipeline.Application{}, err
	}
	if !access.CanView(actor, app) {
		return pipeline.Application{}, ErrForbidden
	}
	return app, nil
}

// List returns the applications visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor access.Actor, q ListQuery) ([]pipeline.Application, error) {
	if actor.IsZero() {
		return nil, ErrUnauthenticated
	}
	f, err := q.toFilter()
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case access.RoleAdmin:
	case access.RoleEmployer:
		f.EmployerID = actor.ID
	case access.RoleJobSeeker:
		f.SeekerID = actor.ID
	default:
		return nil, ErrForbidden
	}

	apps, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// AllowedNext returns the current status of an application and where it may go next.
func (s *Service) AllowedNext(ctx context.Context, actor access.Actor, id uuid.UUID) (NextStatuses, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return NextStatuses{}, err
	}
	return NextStatuses{
		ApplicationID: app.ID,
		Current:       app.Status,
		Allowed:       pipeline.AllowedNext(app.Status),
	}, nil
}

// History returns the status history of an application, oldest first.
func (s *Service) History(ctx context.Context, actor access.Actor, id uuid.UUID) ([]pipeline.HistoryEntry, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return app.StatusHistory, nil
}

// UpdateStatus moves an application to rawStatus.
// The row is locked for the duration of the transition and the write is a
// compare-and-swap on the status that was read, so two concurrent callers
// cannot both commit from the same status.
// Returns *ValidationError for an unknown status, *pipeline.InvalidTransitionError
// when the table rejects the move, ErrForbidden when actor may not change it.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id uuid.UUID, rawStatus, notes string) (pipeline.Application, error) {
	if actor.IsZero() {
		return pipeline.Application{}, ErrUnauthenticated
	}
	to, err := pipeline.ParseStatus(rawStatus)
	if err != nil {
		return pipeline.Application{}, invalid("status", err.Error())
	}
	if utf8.RuneCountInString(notes) > maxStatusNotes {
		return pipeline.Application{}, invalid("notes", "too long (max 2000)")
	}

	var (
		updated pipeline.Application
		from    pipeline.Status
	)
	txErr := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		app, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !access.CanChangeStatus(actor, app) {
			return fmt.Errorf("%w: %s cannot change application status", ErrForbidden, actor.Role)
		}

		next, err := pipeline.Attempt(app, pipeline.Request{
			To:        to,
			Notes:     notes,
			UpdatedBy: actor.ID,
			At:        s.now(),
		})
		if errors.Is(err, pipeline.ErrUnknownStatus) {
			s.log.ErrorContext(txCtx, "stored application status is not recognised",
				slog.String("application_id", id.String()),
				slog.String("status", string(app.Status)),
			)
			return fmt.Errorf("application %s: %w", id, err)
		}
		if err != nil {
			return err
		}

		entry, _ := next.LastEntry()
		if err := s.repo.AppendTransition(txCtx, id, app.Status, entry); err != nil {
			return fmt.Errorf("append transition: %w", err)
		}

		from = app.Status
		updated = next
		return nil
	})
	if txErr != nil {
		return pipeline.Application{}, txErr
	}

	s.log.InfoContext(ctx, "application status updated",
		slog.String("application_id", id.String()),
		slog.String("from", string(from)),
		slog.String("to", string(updated.Status)),
		slog.String("actor_id", actor.ID.String()),
	)
	s.publish(ctx, notify.StatusUpdated(updated, from))
	return updated, nil
}

// Summary counts applications per status: all of them for admins, the
// employer's own postings for employers.
func (s *Service) Summary(ctx context.Context, actor access.Actor, f SummaryFilter) (Summary, error) {
	if actor.IsZero() {
		return Summary{}, ErrUnauthenticated
	}
	if !access.CanReport(actor) {
		return Summary{}, ErrForbidden
	}
	f.EmployerID = uuid.Nil
	if actor.Role == access.RoleEmployer {
		f.EmployerID = actor.ID
	}

	counts, err := s.repo.CountByStatus(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("count applications: %w", err)
	}

	out := Summary{ByStatus: make(map[pipeline.Status]int, len(pipeline.All()))}
	for _, st := range pipeline.All() {
		n := counts[st]
		out.ByStatus[st] = n
		out.Total += n
		if !st.IsTerminal() {
			out.Active += n
		}
	}
	return out, nil
}

// RemindStale publishes a reminder for up to limit applications that have sat
// in a non-terminal status since before now-olderThan. It returns how many
// reminders were delivered.
func (s *Service) RemindStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	now := s.now()
	cutoff := now.Add(-olderThan)

	apps, err := s.repo.ListStale(ctx, pipeline.NonTerminal(), cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale applications: %w", err)
	}

	var (
		sent int
		errs []error
	)
	for _, app := range apps {
		if err := s.pub.Publish(ctx, notify.Reminder(app, now)); err != nil {
			errs = append(errs, fmt.Errorf("remind %s: %w", app.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// publish delivers ev; failures are logged and never fail the operation.
func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "publish event failed",
			slog.String("type", string(ev.Type)),
			slog.String("application_id", ev.ApplicationID.String()),
			slog.Any("error", err),
		)
	}
}
