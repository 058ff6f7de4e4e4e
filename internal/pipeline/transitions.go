// Package pipeline defines the status state machine for job applications.
//
// Valid status graph:
//
//	Applied ──► Under Review ──► Shortlisted ──► Interview Scheduled ──► Interview Completed
//	                                                                        │          │
//	                                                     Assessment Pending ◄┘          │
//	                                                        │        │                 │
//	                                         Reference Check ◄┘        ▼                 ▼
//	                                               └──────────────► Offer Extended ◄─────┘
//	                                                                 │          │
//	                                                        Offer Accepted  Offer Declined
//
// Every non-terminal status before Offer Extended may also move to Rejected.
// Offer Accepted, Offer Declined, Rejected and Withdrawn are terminal.
package pipeline

import (
	"fmt"
	"slices"
)

// Status values mirror the CHECK constraint on applications.status.
type Status string

const (
	StatusApplied            Status = "Applied"
	StatusUnderReview        Status = "Under Review"
	StatusShortlisted        Status = "Shortlisted"
	StatusInterviewScheduled Status = "Interview Scheduled"
	StatusInterviewCompleted Status = "Interview Completed"
	StatusAssessmentPending  Status = "Assessment Pending"
	StatusReferenceCheck     Status = "Reference Check"
	StatusOfferExtended      Status = "Offer Extended"
	StatusOfferAccepted      Status = "Offer Accepted"
	StatusOfferDeclined      Status = "Offer Declined"
	StatusRejected           Status = "Rejected"
	StatusWithdrawn          Status = "Withdrawn"
)

// allStatuses keeps the funnel order used for reporting.
var allStatuses = []Status{
	StatusApplied,
	StatusUnderReview,
	StatusShortlisted,
	StatusInterviewScheduled,
	StatusInterviewCompleted,
	StatusAssessmentPending,
	StatusReferenceCheck,
	StatusOfferExtended,
	StatusOfferAccepted,
	StatusOfferDeclined,
	StatusRejected,
	StatusWithdrawn,
}

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusApplied:            {StatusUnderReview, StatusRejected},
	StatusUnderReview:        {StatusShortlisted, StatusRejected},
	StatusShortlisted:        {StatusInterviewScheduled, StatusRejected},
	StatusInterviewScheduled: {StatusInterviewCompleted, StatusRejected},
	StatusInterviewCompleted: {StatusAssessmentPending, StatusOfferExtended, StatusRejected},
	StatusAssessmentPending:  {StatusReferenceCheck, StatusOfferExtended, StatusRejected},
	StatusReferenceCheck:     {StatusOfferExtended, StatusRejected},
	StatusOfferExtended:      {StatusOfferAccepted, StatusOfferDeclined},
	// Offer Accepted, Offer Declined, Rejected and Withdrawn are terminal
}

func (s Status) String() string { return string(s) }

// IsValid reports whether s belongs to the closed status enumeration.
func (s Status) IsValid() bool {
	return slices.Contains(allStatuses, s)
}

// IsTerminal reports whether s is a known status with no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(validTransitions[s]) == 0
}

// ParseStatus converts a raw string to a Status. Matching is exact and
// case-sensitive; unknown values wrap ErrUnknownStatus.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// All returns every status in funnel order.
func All() []Status {
	return slices.Clone(allStatuses)
}

// NonTerminal returns every status that still has outgoing transitions.
func NonTerminal() []Status {
	out := make([]Status, 0, len(validTransitions))
	for _, s := range allStatuses {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// AllowedNext returns the statuses reachable from current in one step.
// Terminal and unrecognised statuses yield an empty, non-nil slice.
func AllowedNext(current Status) []Status {
	allowed, ok := validTransitions[current]
	if !ok {
		return []Status{}
	}
	return slices.Clone(allowed)
}

// CanTransition returns true when moving from → to is permitted by the
// state machine.
func CanTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Transitions returns a copy of the full table keyed by every status,
// terminal ones mapping to an empty slice.
func Transitions() map[Status][]Status {
	out := make(map[Status][]Status, len(allStatuses))
	for _, s := range allStatuses {
		out[s] = AllowedNext(s)
	}
	return out
}
