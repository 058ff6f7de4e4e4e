package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/tracker"
)

// mapError converts pgx/pgconn errors to tracker errors.
// context.DeadlineExceeded and context.Canceled pass through wrapped.
func mapError(err error, op string, id uuid.UUID) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	if errors.Is(err, pgx.ErrNoRows) || pgxscan.NotFound(err) {
		return fmt.Errorf("%s %s: %w", op, id, tracker.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s: %w", op, id, tracker.ErrAlreadyExists)
		case "23514": // check_violation
			return fmt.Errorf("%s %s: %w", op, id, &tracker.ValidationError{Msg: pgErr.ConstraintName + " violated"})
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s %s: %w", op, id, tracker.ErrConflict)
		}
	}

	return fmt.Errorf("%s %s: %w", op, id, err)
}
