package tracker

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
)

const (
	maxAdditionalNotes = 2000
	maxStatusNotes     = 2000
	defaultListLimit   = 20
	maxListLimit       = 100
)

// SubmitInput holds the parameters of a new application.
type SubmitInput struct {
	JobPostID       uuid.UUID
	EmployerID      uuid.UUID
	ResumeURL       string
	CoverLetterURL  string
	AdditionalNotes string
}

// Validate checks fields in order and reports the first problem.
func (i *SubmitInput) Validate() error {
	if i.JobPostID == uuid.Nil {
		return invalid("jobPostId", "required")
	}
	if i.EmployerID == uuid.Nil {
		return invalid("employerId", "required")
	}
	if strings.TrimSpace(i.ResumeURL) == "" {
		return invalid("resumeUrl", "required")
	}
	if !isHTTPURL(i.ResumeURL) {
		return invalid("resumeUrl", "must be an absolute http(s) URL")
	}
	if i.CoverLetterURL != "" && !isHTTPURL(i.CoverLetterURL) {
		return invalid("coverLetterUrl", "must be an absolute http(s) URL")
	}
	if utf8.RuneCountInString(i.AdditionalNotes) > maxAdditionalNotes {
		return invalid("additionalNotes", "too long (max 2000)")
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ListFilter narrows List. Zero values mean "no filter".
// SeekerID and EmployerID are set by the service from the caller's role.
type ListFilter struct {
	Status     pipeline.Status
	JobPostID  uuid.UUID
	SeekerID   uuid.UUID
	EmployerID uuid.UUID
	Limit      int
	Offset     int
}

// ListQuery is the caller-facing form of ListFilter, status still raw.
type ListQuery struct {
	Status    string
	JobPostID uuid.UUID
	Limit     int
	Offset    int
}

func (q ListQuery) toFilter() (ListFilter, error) {
	f := ListFilter{JobPostID: q.JobPostID, Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		st, err := pipeline.ParseStatus(q.Status)
		if err != nil {
			return ListFilter{}, invalid("status", err.Error())
		}
		f.Status = st
	}
	if f.Offset < 0 {
		return ListFilter{}, invalid("offset", "must be >= 0")
	}
	switch {
	case f.Limit < 0:
		return ListFilter{}, invalid("limit", "must be >= 0")
	case f.Limit == 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	return f, nil
}

// SummaryFilter narrows Summary. EmployerID is set by the service for employers.
type SummaryFilter struct {
	JobPostID  uuid.UUID
	EmployerID uuid.UUID
}

// Summary is the per-status breakdown of a set of applications.
type Summary struct {
	Total    int                     `json:"total"`
	Active   int                     `json:"active"`
	ByStatus map[pipeline.Status]int `json:"byStatus"`
}

// NextStatuses is the answer to "where can this application go next".
type NextStatuses struct {
	ApplicationID uuid.UUID         `json:"applicationId"`
	Current       pipeline.Status   `json:"current"`
	Allowed       []pipeline.Status `json:"allowed"`
}
