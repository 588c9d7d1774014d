package domain

import (
	"strings"
	"time"
)

// User is a registered account. The access token is opaque and never rotates.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Token     string         `json:"token"`
	Verified  bool           `json:"verified"`
	GoogleID  string         `json:"googleId,omitempty"`
	Name      string         `json:"name,omitempty"`
	Claims    map[string]any `json:"-"`
	LastLogin *time.Time     `json:"lastLogin,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewUser carries the caller-supplied attributes of a user being registered.
// ID, token and creation time are assigned by the directory.
type NewUser struct {
	Email    string
	Verified bool
	GoogleID string
	Name     string
	Claims   map[string]any
}

// DraftField names one piece of a session's cover letter draft.
type DraftField string

const (
	FieldResume         DraftField = "resume"
	FieldJobDescription DraftField = "job_description"
	FieldJobRole        DraftField = "job_role"
	FieldCompany        DraftField = "company"
	FieldStory          DraftField = "story"
)

// DraftFields lists every draft field in prompt order.
var DraftFields = []DraftField{
	FieldResume,
	FieldJobDescription,
	FieldJobRole,
	FieldCompany,
	FieldStory,
}

// Valid reports whether f is one of the known draft fields.
func (f DraftField) Valid() bool {
	for _, known := range DraftFields {
		if f == known {
			return true
		}
	}
	return false
}

// Draft is the set of fields present for a session at read time.
// Absent fields are missing from the map.
type Draft map[DraftField]string

// Empty reports whether no field carries content.
func (d Draft) Empty() bool {
	for _, v := range d {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
