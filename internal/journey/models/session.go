// Package models holds the aggregate records for a user's return journey:
// the short-lived auth record created when the user is sent off to prove
// their identity, and the long-lived session record that accumulates journey
// milestones until the user is notified they can resume.
package models

import "time"

// NamePart types as they appear on the wire.
const (
	NamePartGivenName  = "GivenName"
	NamePartFamilyName = "FamilyName"
)

// NamePart is one ordered component of the user's name.
type NamePart struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PostOfficeInfo describes the branch chosen for the document check.
type PostOfficeInfo struct {
	Name     string `json:"name,omitempty"`
	Address  string `json:"address"`
	PostCode string `json:"postCode,omitempty"`
}

// PostOfficeVisit describes the booked or completed branch visit.
type PostOfficeVisit struct {
	Address   string `json:"address"`
	VisitDate string `json:"visitDate"`
	VisitTime string `json:"visitTime"`
}

// SessionRecord is the per-user journey aggregate. Milestone fields are
// epoch seconds, set once; zero means the milestone has not happened.
type SessionRecord struct {
	UserID string `json:"userId"`

	IPVStartedOn       int64  `json:"ipvStartedOn,omitempty"`
	JourneyWentAsyncOn int64  `json:"journeyWentAsyncOn,omitempty"`
	ReadyToResumeOn    int64  `json:"readyToResumeOn,omitempty"`
	DocumentUploadedOn int64  `json:"documentUploadedOn,omitempty"`
	AccountDeletedOn   int64  `json:"accountDeletedOn,omitempty"`
	ErrorDescription   string `json:"errorDescription,omitempty"`

	UserEmail       string     `json:"userEmail,omitempty"`
	ClientName      string     `json:"clientName,omitempty"`
	RedirectURI     string     `json:"redirectUri,omitempty"`
	ClientSessionID string     `json:"clientSessionId,omitempty"`
	NameParts       []NamePart `json:"nameParts,omitempty"`

	DocumentType       string           `json:"documentType,omitempty"`
	DocumentExpiryDate string           `json:"documentExpiryDate,omitempty"`
	PostOfficeInfo     *PostOfficeInfo  `json:"postOfficeInfo,omitempty"`
	PostOfficeVisit    *PostOfficeVisit `json:"postOfficeVisitDetails,omitempty"`

	Notified        bool `json:"notified"`
	FailureNotified bool `json:"failureNotified,omitempty"`

	// ExpiresOn is the row's physical expiry, epoch seconds.
	ExpiresOn int64 `json:"expiresOn,omitempty"`

	// Version is the optimistic concurrency token bumped on every write.
	Version int64 `json:"version"`
}

// Tombstoned reports whether the record has been marked deleted. No further
// milestone writes are accepted once this is true.
func (r *SessionRecord) Tombstoned() bool {
	return r != nil && r.AccountDeletedOn > 0
}

// MilestonesComplete reports whether the three milestones that gate a
// notification are all present.
func (r *SessionRecord) MilestonesComplete() bool {
	return r.IPVStartedOn > 0 && r.JourneyWentAsyncOn > 0 && r.ReadyToResumeOn > 0
}

// DocumentDetailsComplete reports whether the all-or-nothing document group
// is populated, which qualifies the record for the dynamic template.
func (r *SessionRecord) DocumentDetailsComplete() bool {
	return r.DocumentUploadedOn > 0 &&
		r.DocumentType != "" &&
		r.DocumentExpiryDate != "" &&
		r.PostOfficeInfo != nil &&
		r.PostOfficeVisit != nil
}

// FirstGivenName returns the first GivenName part, or "".
func (r *SessionRecord) FirstGivenName() string {
	return r.firstNamePart(NamePartGivenName)
}

// FirstFamilyName returns the first FamilyName part, or "".
func (r *SessionRecord) FirstFamilyName() string {
	return r.firstNamePart(NamePartFamilyName)
}

func (r *SessionRecord) firstNamePart(partType string) string {
	for _, part := range r.NameParts {
		if part.Type == partType {
			return part.Value
		}
	}
	return ""
}

// ClearPII blanks the personal fields when the record is tombstoned.
func (r *SessionRecord) ClearPII() {
	r.NameParts = nil
	r.ClientName = ""
	r.RedirectURI = ""
	r.UserEmail = ""
}

// Expired reports whether the row's physical expiry has elapsed at now.
func (r *SessionRecord) Expired(now time.Time) bool {
	return r.ExpiresOn > 0 && r.ExpiresOn <= now.Unix()
}

// AuthRecord bridges the gap between the authorisation request and the
// session record's creation. Short TTL; read once, never updated.
type AuthRecord struct {
	UserID       string `json:"userId"`
	IPVStartedOn int64  `json:"ipvStartedOn"`
	UserEmail    string `json:"userEmail"`
	ClientName   string `json:"clientName"`
	RedirectURI  string `json:"redirectUri"`
	ExpiresOn    int64  `json:"expiresOn"`
}

// Expired reports whether the auth record's TTL has elapsed at now.
func (r *AuthRecord) Expired(now time.Time) bool {
	return r.ExpiresOn > 0 && r.ExpiresOn <= now.Unix()
}
