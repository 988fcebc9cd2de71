// Package reaction turns session change feed notifications into queued
// outbound notifications. It decides whether the aggregate is complete
// enough to notify, which template applies, and records the one-shot intent
// flag on the aggregate.
package reaction

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ipvreturn/internal/journey/events"
	"ipvreturn/internal/journey/feed"
	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/notify"
	"ipvreturn/internal/journey/store"
	dErrors "ipvreturn/pkg/domain-errors"
	"ipvreturn/pkg/email"
)

// Config selects the delivery guarantee.
type Config struct {
	// AtMostOnce claims the one-shot flag before enqueueing; losing the
	// claim means another trigger already owns the send. When false the
	// flag is checked first and set after the enqueue, so a concurrent
	// trigger can double-send but an enqueue failure cannot lose the
	// notification.
	AtMostOnce bool
}

// Service reacts to one session change at a time.
type Service struct {
	sessions store.SessionStore
	queue    notify.Enqueuer
	cfg      Config

	logger *slog.Logger
	tracer trace.Tracer
	newRef func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithReferenceFactory overrides idempotent reference generation, for tests.
func WithReferenceFactory(newRef func() string) Option {
	return func(s *Service) { s.newRef = newRef }
}

func New(sessions store.SessionStore, queue notify.Enqueuer, cfg Config, opts ...Option) (*Service, error) {
	if sessions == nil || queue == nil {
		return nil, errors.New("session store and enqueuer are required")
	}
	s := &Service{
		sessions: sessions,
		queue:    queue,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("ipvreturn/reaction"),
		newRef:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleChange reacts to one feed change. Inserts and removes are ignored;
// only a field modification can mean the record became complete enough to
// notify. Terminal decisions carry CodeAlreadyProcessed or CodeValidation;
// the feed's own redelivery retries everything else.
func (s *Service) HandleChange(ctx context.Context, change feed.Change) error {
	ctx, span := s.tracer.Start(ctx, "reaction.HandleChange")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", change.UserID),
		attribute.String("change.kind", string(change.Kind)),
	)

	if change.Kind != feed.KindModify {
		return nil
	}
	record := change.NewImage

	failurePath := isGenerationFailure(record.ErrorDescription)
	if alreadyNotified(&record, failurePath) {
		return dErrors.New(dErrors.CodeAlreadyProcessed, "user already notified")
	}
	if !record.MilestonesComplete() {
		// A milestone is still missing; the write that supplies it will
		// re-trigger this feed.
		return dErrors.New(dErrors.CodeValidation, "milestone fields incomplete")
	}
	if record.UserEmail == "" {
		return dErrors.New(dErrors.CodeValidation, "session record has no email address")
	}

	notification := s.buildNotification(&record, failurePath)
	span.SetAttributes(attribute.String("message.type", string(notification.Message.MessageType)))

	if s.cfg.AtMostOnce {
		return s.claimThenEnqueue(ctx, &record, notification, failurePath)
	}
	return s.enqueueThenFlag(ctx, &record, notification, failurePath)
}

// claimThenEnqueue wins the one-shot flag first; a subsequent enqueue
// failure is surfaced but cannot double-send.
func (s *Service) claimThenEnqueue(ctx context.Context, record *models.SessionRecord, n notify.OutboundNotification, failurePath bool) error {
	claimed, err := s.claimFlag(ctx, record.UserID, failurePath)
	if err != nil {
		return err
	}
	if !claimed {
		return dErrors.New(dErrors.CodeAlreadyProcessed, "notification claim lost to a concurrent trigger")
	}
	if err := s.queue.Enqueue(ctx, n); err != nil {
		// The claim is spent and the message never queued; this is the
		// accepted lost-notification risk of at-most-once mode.
		notificationsLost.Inc()
		s.logger.Error("enqueue failed after claiming notification flag",
			"user_id", record.UserID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "notification lost after claim")
	}
	notificationsEnqueued.WithLabelValues(string(n.Message.MessageType)).Inc()
	return nil
}

// enqueueThenFlag queues first and records the flag after; a flag write
// failure leaves the message queued, the accepted at-least-once risk.
func (s *Service) enqueueThenFlag(ctx context.Context, record *models.SessionRecord, n notify.OutboundNotification, failurePath bool) error {
	if err := s.queue.Enqueue(ctx, n); err != nil {
		// Flag not set, so the feed redelivery will retry the whole
		// decision.
		return dErrors.Wrap(err, dErrors.CodeRetryable, "notification enqueue failed")
	}
	notificationsEnqueued.WithLabelValues(string(n.Message.MessageType)).Inc()

	if err := s.setFlag(ctx, record.UserID, failurePath); err != nil {
		s.logger.Error("one-shot flag update failed after enqueue; duplicate notification possible",
			"user_id", record.UserID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeRetryable, "notified flag update failed")
	}
	return nil
}

func (s *Service) claimFlag(ctx context.Context, userID string, failurePath bool) (bool, error) {
	if failurePath {
		return store.ClaimFailureNotified(ctx, s.sessions, userID)
	}
	return store.ClaimNotified(ctx, s.sessions, userID)
}

func (s *Service) setFlag(ctx context.Context, userID string, failurePath bool) error {
	if failurePath {
		return store.SetFailureNotified(ctx, s.sessions, userID)
	}
	return store.SetNotified(ctx, s.sessions, userID)
}

func (s *Service) buildNotification(record *models.SessionRecord, failurePath bool) notify.OutboundNotification {
	firstName := record.FirstGivenName()
	lastName := record.FirstFamilyName()
	if firstName == "" || lastName == "" {
		// The failure path can fire before the name parts ever arrive.
		derivedFirst, derivedLast := email.DeriveNameFromEmail(record.UserEmail)
		if firstName == "" {
			firstName = derivedFirst
		}
		if lastName == "" {
			lastName = derivedLast
		}
		s.logger.Info("name parts missing, derived name from email address",
			"user_id", record.UserID,
		)
	}

	message := notify.Message{
		UserID:       record.UserID,
		EmailAddress: record.UserEmail,
		FirstName:    firstName,
		LastName:     lastName,
		MessageType:  s.selectType(record, failurePath),
	}
	if message.MessageType == notify.MessageTypeDynamic {
		message.DocumentType = record.DocumentType
		message.DocumentExpiryDate = record.DocumentExpiryDate
		message.POAddress = record.PostOfficeVisit.Address
		message.POVisitDate = record.PostOfficeVisit.VisitDate
		message.POVisitTime = record.PostOfficeVisit.VisitTime
	}
	return notify.OutboundNotification{Message: message, Reference: s.newRef()}
}

func (s *Service) selectType(record *models.SessionRecord, failurePath bool) notify.MessageType {
	if failurePath {
		return notify.MessageTypeFailure
	}
	if record.DocumentDetailsComplete() {
		return notify.MessageTypeDynamic
	}
	// Not an error: the document upload simply has not happened (or its
	// details are partial), so the user gets the plain template.
	s.logger.Info("document details incomplete, falling back to static template",
		"user_id", record.UserID,
	)
	staticFallbacks.Inc()
	return notify.MessageTypeStatic
}

func alreadyNotified(record *models.SessionRecord, failurePath bool) bool {
	if failurePath {
		return record.FailureNotified
	}
	return record.Notified
}

func isGenerationFailure(description string) bool {
	return description != "" &&
		strings.Contains(strings.ToLower(description), events.GenerationFailureMarker)
}
