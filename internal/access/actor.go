// Package access decides what the calling actor may do with an application.
// Identity itself is established upstream by the gateway.
package access

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/pipeline"
)

// Role is one of the platform's user roles.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleEmployer  Role = "Employer"
	RoleJobSeeker Role = "Job Seeker"
)

// Header and metadata keys carrying the identity forwarded by the gateway.
const (
	HeaderUserID   = "x-user-id"
	HeaderUserRole = "x-user-role"
)

var (
	// ErrUnknownRole is returned by ParseRole for anything outside the role set.
	ErrUnknownRole = errors.New("unknown role")
	// ErrMissingIdentity means the caller id is absent or not a UUID.
	ErrMissingIdentity = errors.New("missing or invalid caller identity")
)

// ParseRole converts the forwarded role header value to a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleEmployer, RoleJobSeeker:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// ParseActor builds an Actor from the forwarded id and role values.
func ParseActor(id, role string) (Actor, error) {
	if id == "" {
		return Actor{}, fmt.Errorf("%w: %s is empty", ErrMissingIdentity, HeaderUserID)
	}
	uid, err := uuid.Parse(id)
	if err != nil || uid == uuid.Nil {
		return Actor{}, fmt.Errorf("%w: %s %q", ErrMissingIdentity, HeaderUserID, id)
	}
	r, err := ParseRole(role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: uid, Role: r}, nil
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool { return a.ID == uuid.Nil }

// CanView reports whether a may read app and its history.
func CanView(a Actor, app pipeline.Application) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleEmployer:
		return app.EmployerID == a.ID
	case RoleJobSeeker:
		return app.SeekerID == a.ID
	}
	return false
}

// CanChangeStatus reports whether a may move app through the pipeline.
// Job seekers never change status.
func CanChangeStatus(a Actor, app pipeline.Application) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleEmployer:
		return app.EmployerID == a.ID
	}
	return false
}

// CanSubmit reports whether a may submit new applications.
func CanSubmit(a Actor) bool {
	return a.Role == RoleJobSeeker
}

// CanReport reports whether a may read aggregate status counts.
func CanReport(a Actor) bool {
	return a.Role == RoleAdmin || a.Role == RoleEmployer
}
