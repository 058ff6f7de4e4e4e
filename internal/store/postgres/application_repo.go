package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/tracker"
)

const applicationsTable = "applications"

var applicationColumns = []string{
	"id", "job_post_id", "seeker_id", "employer_id", "status", "status_history",
	"resume_url", "cover_letter_url", "additional_notes", "applied_at", "updated_at",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// applicationRow mirrors one row of the applications table.
type applicationRow struct {
	ID              uuid.UUID `db:"id"`
	JobPostID       uuid.UUID `db:"job_post_id"`
	SeekerID        uuid.UUID `db:"seeker_id"`
	EmployerID      uuid.UUID `db:"employer_id"`
	Status          string    `db:"status"`
	StatusHistory   []byte    `db:"status_history"`
	ResumeURL       string    `db:"resume_url"`
	CoverLetterURL  string    `db:"cover_letter_url"`
	AdditionalNotes string    `db:"additional_notes"`
	AppliedAt       time.Time `db:"applied_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// toDomain keeps the stored status as-is; the engine rejects unknown values.
func (r applicationRow) toDomain() (pipeline.Application, error) {
	var history []pipeline.HistoryEntry
	if err := json.Unmarshal(r.StatusHistory, &history); err != nil {
		return pipeline.Application{}, fmt.Errorf("decode status_history of %s: %w", r.ID, err)
	}
	return pipeline.Application{
		ID:              r.ID,
		JobPostID:       r.JobPostID,
		SeekerID:        r.SeekerID,
		EmployerID:      r.EmployerID,
		Status:          pipeline.Status(r.Status),
		StatusHistory:   history,
		ResumeURL:       r.ResumeURL,
		CoverLetterURL:  r.CoverLetterURL,
		AdditionalNotes: r.AdditionalNotes,
		AppliedDate:     r.AppliedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}, nil
}

// ApplicationRepo stores applications and their status history.
type ApplicationRepo struct {
	db DB
}

// NewApplicationRepo returns a repository backed by db.
func NewApplicationRepo(db DB) *ApplicationRepo {
	return &ApplicationRepo{db: db}
}

// Create inserts a new application. A second application by the same seeker
// for the same job post yields tracker.ErrAlreadyExists.
func (r *ApplicationRepo) Create(ctx context.Context, app pipeline.Application) error {
	history, err := json.Marshal(app.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status_history: %w", err)
	}

	query, args, err := psql.Insert(applicationsTable).
		Columns(applicationColumns...).
		Values(
			app.ID, app.JobPostID, app.SeekerID, app.EmployerID, string(app.Status), string(history),
			app.ResumeURL, app.CoverLetterURL, app.AdditionalNotes, app.AppliedDate, app.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...); err != nil {
		return mapError(err, "create application", app.ID)
	}
	return nil
}

// GetByID returns one application.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uuid.UUID) (pipeline.Application, error) {
	return r.getOne(ctx, id, "")
}

// GetForUpdate returns one application and locks its row until the
// surrounding transaction ends. It must be called inside TxManager.RunInTx.
func (r *ApplicationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (pipeline.Application, error) {
	if _, ok := txFromCtx(ctx); !ok {
		return pipeline.Application{}, fmt.Errorf("get application %s for update: no transaction in context", id)
	}
	return r.getOne(ctx, id, "FOR UPDATE")
}

func (r *ApplicationRepo) getOne(ctx context.Context, id uuid.UUID, suffix string) (pipeline.Application, error) {
	b := psql.Select(applicationColumns...).
		From(applicationsTable).
		Where("id = ?", id)
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return pipeline.Application{}, fmt.Errorf("build select: %w", err)
	}

	var row applicationRow
	if err := pgxscan.Get(ctx, QuerierFromCtx(ctx, r.db), &row, query, args...); err != nil {
		return pipeline.Application{}, mapError(err, "get application", id)
	}
	return row.toDomain()
}

// AppendTransition sets the status to entry.Status and appends entry to the
// history, provided the stored status is still from. Zero affected rows
// means another writer got there first: tracker.ErrConflict.
func (r *ApplicationRepo) AppendTransition(ctx context.Context, id uuid.UUID, from pipeline.Status, entry pipeline.HistoryEntry) error {
	payload, err := json.Marshal([]pipeline.HistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	query, args, err := psql.Update(applicationsTable).
		Set("status", string(entry.Status)).
		Set("status_history", squirrel.Expr("status_history || ?::jsonb", string(payload))).
		Set("updated_at", entry.UpdatedAt).
		Where("id = ?", id).
		Where("status = ?", string(from)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := QuerierFromCtx(ctx, r.db).Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, "append transition", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append transition %s from %s: %w", id, from, tracker.ErrConflict)
	}
	return nil
}

// List returns applications matching f, newest first.
func (r *ApplicationRepo) List(ctx context.Context, f tracker.ListFilter) ([]pipeline.Application, error) {
	b := applyScope(psql.Select(applicationColumns...).From(applicationsTable), f.SeekerID, f.EmployerID, f.JobPostID)
	if f.Status != "" {
		b = b.Where("status = ?", string(f.Status))
	}
	b = b.OrderBy("applied_at DESC", "id DESC")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var rows []applicationRow
	if err := pgxscan.Select(ctx, QuerierFromCtx(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return toDomainSlice(rows)
}

// CountByStatus returns the number of applications per status.
func (r *ApplicationRepo) CountByStatus(ctx context.Context, f tracker.SummaryFilter) (map[pipeline.Status]int, error) {
	b := applyScope(psql.Select("status", "COUNT(*) AS n").From(applicationsTable), uuid.Nil, f.EmployerID, f.JobPostID).
		GroupBy("status")

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}

	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := pgxscan.Select(ctx, QuerierFromCtx(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}

	out := make(map[pipeline.Status]int, len(rows))
	for _, row := range rows {
		out[pipeline.Status(row.Status)] = row.N
	}
	return out, nil
}

// ListStale returns up to limit applications in one of statuses whose last
// change happened before the cutoff, oldest first.
func (r *ApplicationRepo) ListStale(ctx context.Context, statuses []pipeline.Status, before time.Time, limit int) ([]pipeline.Application, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	b := psql.Select(applicationColumns...).
		From(applicationsTable).
		Where(squirrel.Eq{"status": names}).
		Where(squirrel.Lt{"updated_at": before}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale list: %w", err)
	}

	var rows []applicationRow
	if err := pgxscan.Select(ctx, QuerierFromCtx(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list stale applications: %w", err)
	}
	return toDomainSlice(rows)
}

func applyScope(b squirrel.SelectBuilder, seekerID, employerID, jobPostID uuid.UUID) squirrel.SelectBuilder {
	if seekerID != uuid.Nil {
		b = b.Where("seeker_id = ?", seekerID)
	}
	if employerID != uuid.Nil {
		b = b.Where("employer_id = ?", employerID)
	}
	if jobPostID != uuid.Nil {
		b = b.Where("job_post_id = ?", jobPostID)
	}
	return b
}

func toDomainSlice(rows []applicationRow) ([]pipeline.Application, error) {
	out := make([]pipeline.Application, 0, len(rows))
	for _, row := range rows {
		app, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, nil
}
