// Package notify owns the outbound notification contract and the delivery
// pipeline that takes a queued message to the email provider.
package notify

import (
	dErrors "ipvreturn/pkg/domain-errors"
)

// MessageType selects the notification template variant.
type MessageType string

const (
	// MessageTypeStatic is the plain "you can return" email.
	MessageTypeStatic MessageType = "VISIT_PO_EMAIL_STATIC"
	// MessageTypeDynamic includes the document and branch visit details.
	MessageTypeDynamic MessageType = "VISIT_PO_EMAIL_DYNAMIC"
	// MessageTypeFallback is the dynamic layout without the visit details,
	// used when those details are no longer complete at delivery time.
	MessageTypeFallback MessageType = "VISIT_PO_EMAIL_FALLBACK"
	// MessageTypeFailure tells the user the document check failed.
	MessageTypeFailure MessageType = "JOURNEY_FAILED_EMAIL"
)

// Message is the personalization payload of one outbound notification.
type Message struct {
	UserID             string      `json:"userId"`
	EmailAddress       string      `json:"emailAddress"`
	FirstName          string      `json:"firstName"`
	LastName           string      `json:"lastName"`
	MessageType        MessageType `json:"messageType"`
	DocumentType       string      `json:"documentType,omitempty"`
	DocumentExpiryDate string      `json:"documentExpiryDate,omitempty"`
	POAddress          string      `json:"poAddress,omitempty"`
	POVisitDate        string      `json:"poVisitDate,omitempty"`
	POVisitTime        string      `json:"poVisitTime,omitempty"`
}

// OutboundNotification is the queued unit of delivery. Reference is the
// caller-supplied idempotent id passed through to the provider.
type OutboundNotification struct {
	Message   Message `json:"Message"`
	Reference string  `json:"reference"`
}

// Validate checks the personalization fields the declared type requires.
func (n OutboundNotification) Validate() error {
	m := n.Message
	if m.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "notification requires userId")
	}
	if m.EmailAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "notification requires emailAddress")
	}
	if m.FirstName == "" || m.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "notification requires firstName and lastName")
	}
	if n.Reference == "" {
		return dErrors.New(dErrors.CodeValidation, "notification requires a reference")
	}

	switch m.MessageType {
	case MessageTypeStatic, MessageTypeFallback, MessageTypeFailure:
		return nil
	case MessageTypeDynamic:
		if m.DocumentType == "" || m.DocumentExpiryDate == "" ||
			m.POAddress == "" || m.POVisitDate == "" || m.POVisitTime == "" {
			return dErrors.New(dErrors.CodeValidation, "dynamic notification requires document and visit details")
		}
		return nil
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown message type %q", m.MessageType)
	}
}
