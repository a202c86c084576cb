package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AccountProfile is the application-level record for one identity, keyed by
// email. It exists independently of the identity provider's session state:
// a signed-in user with a pending or removed profile is still denied.
type AccountProfile struct {
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	Active        bool      `json:"active"`
	Deleted       bool      `json:"deleted"`
	RecoveryEmail string    `json:"recoveryEmail,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Pending means the account awaits admin approval. A disabled account looks
// identical by the active flag alone; deleted is the only terminal marker.
func (p AccountProfile) Pending() bool {
	return !p.Active && !p.Deleted
}

func (p AccountProfile) StatusLabel() string {
	switch {
	case p.Deleted:
		return "Deleted"
	case p.Pending():
		return "Pending approval"
	default:
		return "Active"
	}
}

// FieldSpec is one question definition. The label doubles as the storage key
// for answers, so labels must be unique within a survey.
type FieldSpec struct {
	Label   string `json:"label"`
	Type    string `json:"type"`
	Options any    `json:"options,omitempty"`
}

const FieldTypeRating = "rating"

// Survey is a configured, linkable feedback form.
//
// DisplayName and SessionDate are the canonical name/date pair. Old records
// carry only Title in the legacy "Name | Date" form; Heading decodes that
// defensively, and nothing here ever writes the delimiter form again.
type Survey struct {
	ID            string      `json:"id,omitempty"`
	CreatedBy     string      `json:"createdBy"`
	DisplayName   string      `json:"displayName,omitempty"`
	SessionDate   string      `json:"sessionDate,omitempty"`
	Title         string      `json:"title,omitempty"`
	Fields        []FieldSpec `json:"fields"`
	Active        bool        `json:"active"`
	Authenticated bool        `json:"isAuthenticated,omitempty"`
	IPGuard       bool        `json:"ipGuard,omitempty"`
	CreatedAt     time.Time   `json:"createdAt,omitempty"`
}

const legacyTitleDelimiter = "|"

// Heading returns the survey's display name and session date, decoding the
// legacy delimited title when the explicit fields are absent.
func (s Survey) Heading() (name, date string) {
	if s.DisplayName != "" {
		return s.DisplayName, s.SessionDate
	}
	name = s.Title
	if i := strings.Index(s.Title, legacyTitleDelimiter); i >= 0 {
		name = strings.TrimSpace(s.Title[:i])
		date = strings.TrimSpace(s.Title[i+1:])
	}
	return name, date
}

// RatingLabels lists the labels of rating-typed fields, in field order.
func (s Survey) RatingLabels() []string {
	var labels []string
	for _, f := range s.Fields {
		if f.Type == FieldTypeRating {
			labels = append(labels, f.Label)
		}
	}
	return labels
}

// ResponseRecord is one respondent's full answer set for a survey. IP, Email
// and VerificationCode are stamped by whichever guard strategy was active.
type ResponseRecord struct {
	ID               string            `json:"id,omitempty"`
	SurveyID         string            `json:"surveyId"`
	ResponseData     map[string]string `json:"responseData"`
	IP               string            `json:"ip,omitempty"`
	Email            string            `json:"email,omitempty"`
	VerificationCode string            `json:"verificationCode,omitempty"`
	SubmittedAt      time.Time         `json:"submittedAt,omitempty"`
}
