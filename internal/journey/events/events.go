// Package events defines the inbound lifecycle events as a closed sum type.
// Parse validates the envelope and the per-type mandatory fields; consumers
// switch exhaustively over the variants, so a new event type does not compile
// until every consumer handles it.
package events

import (
	"encoding/json"
	"strings"

	"ipvreturn/internal/journey/models"
	dErrors "ipvreturn/pkg/domain-errors"
)

// Wire event names.
const (
	NameAuthorisationRequested = "AUTH_IPV_AUTHORISATION_REQUESTED"
	NameDocumentCheckStarted   = "F2F_DOCUMENT_CHECK_STARTED"
	NameCredentialConsumed     = "F2F_CREDENTIAL_CONSUMED"
	NameDocumentUploaded       = "F2F_DOCUMENT_UPLOADED"
	NameAccountDeleted         = "AUTH_ACCOUNT_DELETED"
	NameUserCancelled          = "F2F_USER_CANCELLED"
	NameGenerationError        = "F2F_CREDENTIAL_GENERATION_ERROR"
)

// GenerationFailureMarker flags an error description that means credential
// generation failed outright; it unblocks the stalled wait so the failure
// notification can fire.
const GenerationFailureMarker = "unable to generate credential"

// Event is the closed set of inbound lifecycle events.
type Event interface {
	Name() string
	UserID() string
	// Timestamp is the event time in epoch seconds.
	Timestamp() int64
	sealed()
}

// Base carries the envelope fields common to every variant.
type Base struct {
	EventID   string
	EventName string
	EventTS   int64
	User      string
	Email     string
	JourneyID string
}

func (b Base) Name() string     { return b.EventName }
func (b Base) UserID() string   { return b.User }
func (b Base) Timestamp() int64 { return b.EventTS }
func (b Base) sealed()          {}

// AuthorisationRequested starts the authentication window and creates the
// short-lived auth record.
type AuthorisationRequested struct {
	Base
	ClientID string
}

// DocumentCheckStarted marks the journey going asynchronous: the user has
// left to prove their identity out of band.
type DocumentCheckStarted struct {
	Base
	PostOfficeInfo  *models.PostOfficeInfo
	DocumentType    string
	ClientSessionID string
}

// CredentialConsumed means the credential is ready and the user can resume.
type CredentialConsumed struct {
	Base
	NameParts          []models.NamePart
	DocumentExpiryDate string
}

// DocumentUploaded records the completed branch visit.
type DocumentUploaded struct {
	Base
	Visit *models.PostOfficeVisit
}

// AccountDeleted tombstones the record; covers both the account-deletion and
// user-cancellation wire names.
type AccountDeleted struct {
	Base
}

// GenerationError carries the error description from a failed credential
// generation.
type GenerationError struct {
	Base
	Description string
}

// IsGenerationFailure reports whether the description carries the
// generation-failure marker.
func (e GenerationError) IsGenerationFailure() bool {
	return strings.Contains(strings.ToLower(e.Description), GenerationFailureMarker)
}

type postOfficeInfoWire struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	PostCode string `json:"post_code"`
}

type postOfficeVisitWire struct {
	Address     string `json:"address"`
	DateOfVisit string `json:"date_of_visit"`
	TimeOfVisit string `json:"time_of_visit"`
}

type envelope struct {
	EventID            string `json:"event_id"`
	EventName          string `json:"event_name"`
	ClientID           string `json:"client_id"`
	Timestamp          *int64 `json:"timestamp"`
	TimestampFormatted string `json:"timestamp_formatted"`
	User               struct {
		UserID    string `json:"user_id"`
		Email     string `json:"email"`
		JourneyID string `json:"govuk_signin_journey_id"`
	} `json:"user"`
	Restricted *struct {
		NameParts     []models.NamePart `json:"nameParts"`
		DocExpiryDate string            `json:"docExpiryDate"`
	} `json:"restricted"`
	Extensions *struct {
		PostOfficeDetails      *postOfficeInfoWire  `json:"post_office_details"`
		PostOfficeVisitDetails *postOfficeVisitWire `json:"post_office_visit_details"`
		DocumentType           string               `json:"document_type"`
		ErrorDescription       string               `json:"error_description"`
	} `json:"extensions"`
}

// Parse decodes and validates one raw queue message. Every failure here is a
// permanent rejection: malformed input is carried on CodeInvalidInput,
// missing type-specific fields on CodeValidation.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "message is not valid JSON")
	}
	if env.EventID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event_id is missing")
	}
	if strings.TrimSpace(env.EventName) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event_name is blank")
	}
	if env.Timestamp == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "timestamp is missing")
	}
	if strings.TrimSpace(env.User.UserID) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user.user_id is blank")
	}

	base := Base{
		EventID:   env.EventID,
		EventName: env.EventName,
		EventTS:   *env.Timestamp,
		User:      env.User.UserID,
		Email:     env.User.Email,
		JourneyID: env.User.JourneyID,
	}

	switch env.EventName {
	case NameAuthorisationRequested:
		if env.User.Email == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "authorisation-requested event requires user.email")
		}
		if env.ClientID == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "authorisation-requested event requires client_id")
		}
		return AuthorisationRequested{Base: base, ClientID: env.ClientID}, nil

	case NameDocumentCheckStarted:
		ev := DocumentCheckStarted{Base: base, ClientSessionID: env.User.JourneyID}
		if env.Extensions != nil {
			ev.DocumentType = env.Extensions.DocumentType
			if info := env.Extensions.PostOfficeDetails; info != nil {
				ev.PostOfficeInfo = &models.PostOfficeInfo{
					Name:     info.Name,
					Address:  info.Address,
					PostCode: info.PostCode,
				}
			}
		}
		return ev, nil

	case NameCredentialConsumed:
		if env.Restricted == nil || len(env.Restricted.NameParts) == 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "credential-consumed event requires restricted.nameParts")
		}
		return CredentialConsumed{
			Base:               base,
			NameParts:          env.Restricted.NameParts,
			DocumentExpiryDate: env.Restricted.DocExpiryDate,
		}, nil

	case NameDocumentUploaded:
		if env.Extensions == nil || env.Extensions.PostOfficeVisitDetails == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "document-uploaded event requires extensions.post_office_visit_details")
		}
		visit := env.Extensions.PostOfficeVisitDetails
		return DocumentUploaded{
			Base: base,
			Visit: &models.PostOfficeVisit{
				Address:   visit.Address,
				VisitDate: visit.DateOfVisit,
				VisitTime: visit.TimeOfVisit,
			},
		}, nil

	case NameAccountDeleted, NameUserCancelled:
		return AccountDeleted{Base: base}, nil

	case NameGenerationError:
		var description string
		if env.Extensions != nil {
			description = env.Extensions.ErrorDescription
		}
		return GenerationError{Base: base, Description: description}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unrecognized event_name %q", env.EventName)
	}
}
