// Package notify publishes application lifecycle events to downstream consumers.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
)

// EventType names a published event.
type EventType string

const (
	EventApplicationSubmitted EventType = "APPLICATION_SUBMITTED"
	EventStatusUpdated        EventType = "APPLICATION_STATUS_UPDATED"
	EventStatusReminder       EventType = "APPLICATION_STATUS_REMINDER"
)

// Event is the JSON payload delivered to subscribers.
type Event struct {
	Type          EventType       `json:"type"`
	ApplicationID uuid.UUID       `json:"applicationId"`
	JobPostID     uuid.UUID       `json:"jobPostId"`
	SeekerID      uuid.UUID       `json:"seekerId"`
	EmployerID    uuid.UUID       `json:"employerId"`
	From          pipeline.Status `json:"from,omitempty"`
	To            pipeline.Status `json:"to"`
	Notes         string          `json:"notes,omitempty"`
	ActorID       uuid.UUID       `json:"actorId"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	At            time.Time       `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Submitted builds the event emitted when a seeker applies.
func Submitted(app pipeline.Application) Event {
	return Event{
		Type:          EventApplicationSubmitted,
		ApplicationID: app.ID,
		JobPostID:     app.JobPostID,
		SeekerID:      app.SeekerID,
		EmployerID:    app.EmployerID,
		To:            app.Status,
		ActorID:       app.SeekerID,
		Title:         "New application received",
		Message:       "A new application was submitted for your job posting",
		At:            app.AppliedDate,
	}
}

// StatusUpdated builds the event emitted after a committed transition.
// app must already carry the new status and history entry.
func StatusUpdated(app pipeline.Application, from pipeline.Status) Event {
	last, _ := app.LastEntry()
	return Event{
		Type:          EventStatusUpdated,
		ApplicationID: app.ID,
		JobPostID:     app.JobPostID,
		SeekerID:      app.SeekerID,
		EmployerID:    app.EmployerID,
		From:          from,
		To:            app.Status,
		Notes:         last.Notes,
		ActorID:       last.UpdatedBy,
		Title:         "Application status updated",
		Message:       fmt.Sprintf("Your application status has been updated to %s", app.Status),
		At:            last.UpdatedAt,
	}
}

// Reminder builds the event emitted for an application idle in a non-terminal status.
func Reminder(app pipeline.Application, at time.Time) Event {
	return Event{
		Type:          EventStatusReminder,
		ApplicationID: app.ID,
		JobPostID:     app.JobPostID,
		SeekerID:      app.SeekerID,
		EmployerID:    app.EmployerID,
		From:          app.Status,
		To:            app.Status,
		Title:         "Application awaiting action",
		Message:       fmt.Sprintf("Application has been %s since %s", app.Status, app.UpdatedAt.Format(time.DateOnly)),
		At:            at.UTC(),
	}
}
