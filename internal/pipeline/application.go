package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one element of an application's status history.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Notes     string    `json:"notes"`
	UpdatedBy uuid.UUID `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Application is a job seeker's submission against one job posting.
// JobPostID, SeekerID and EmployerID reference entities owned elsewhere.
type Application struct {
	ID              uuid.UUID      `json:"id"`
	JobPostID       uuid.UUID      `json:"jobPostId"`
	SeekerID        uuid.UUID      `json:"seekerId"`
	EmployerID      uuid.UUID      `json:"employerId"`
	Status          Status         `json:"status"`
	StatusHistory   []HistoryEntry `json:"statusHistory"`
	ResumeURL       string         `json:"resumeUrl"`
	CoverLetterURL  string         `json:"coverLetterUrl,omitempty"`
	AdditionalNotes string         `json:"additionalNotes,omitempty"`
	AppliedDate     time.Time      `json:"appliedDate"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Draft holds the caller-supplied fields of a new application.
type Draft struct {
	JobPostID       uuid.UUID
	SeekerID        uuid.UUID
	EmployerID      uuid.UUID
	ResumeURL       string
	CoverLetterURL  string
	AdditionalNotes string
}

// New creates an application in Applied with its first history entry.
func New(id uuid.UUID, d Draft, at time.Time) Application {
	at = at.UTC()
	return Application{
		ID:              id,
		JobPostID:       d.JobPostID,
		SeekerID:        d.SeekerID,
		EmployerID:      d.EmployerID,
		Status:          StatusApplied,
		ResumeURL:       d.ResumeURL,
		CoverLetterURL:  d.CoverLetterURL,
		AdditionalNotes: d.AdditionalNotes,
		AppliedDate:     at,
		UpdatedAt:       at,
		StatusHistory: []HistoryEntry{{
			Status:    StatusApplied,
			UpdatedBy: d.SeekerID,
			UpdatedAt: at,
		}},
	}
}

// Request describes a requested status change.
// A zero At means "now".
type Request struct {
	To        Status
	Notes     string
	UpdatedBy uuid.UUID
	At        time.Time
}

// Attempt validates req against app's current status and returns the updated
// application. app itself is never modified: the returned value carries a
// fresh history slice. On error the zero Application is returned.
func Attempt(app Application, req Request) (Application, error) {
	if !req.To.IsValid() {
		return Application{}, fmt.Errorf("requested status: %w: %q", ErrUnknownStatus, req.To)
	}
	if !app.Status.IsValid() {
		return Application{}, fmt.Errorf("application %s current status: %w: %q", app.ID, ErrUnknownStatus, app.Status)
	}
	if !CanTransition(app.Status, req.To) {
		return Application{}, &InvalidTransitionError{From: app.Status, To: req.To}
	}

	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	next := app
	next.Status = req.To
	next.UpdatedAt = at
	next.StatusHistory = make([]HistoryEntry, len(app.StatusHistory), len(app.StatusHistory)+1)
	copy(next.StatusHistory, app.StatusHistory)
	next.StatusHistory = append(next.StatusHistory, HistoryEntry{
		Status:    req.To,
		Notes:     req.Notes,
		UpdatedBy: req.UpdatedBy,
		UpdatedAt: at,
	})
	return next, nil
}

// LastEntry returns the most recent history entry.
func (a Application) LastEntry() (HistoryEntry, bool) {
	if len(a.StatusHistory) == 0 {
		return HistoryEntry{}, false
	}
	return a.StatusHistory[len(a.StatusHistory)-1], true
}
