package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
	dErrors "ipvreturn/pkg/domain-errors"
	"ipvreturn/pkg/platform/audit"
)

// Templates maps each message type to the provider template id.
type Templates struct {
	Static   string
	Dynamic  string
	Fallback string
	Failure  string
}

// Config bounds the retry loop and names the templates.
type Config struct {
	MaxRetries int
	Backoff    time.Duration
	Templates  Templates
}

// Service is the delivery pipeline: validate, re-check preconditions
// against the aggregate, send with bounded retry, audit the outcome.
type Service struct {
	sessions store.SessionStore
	provider Provider
	cfg      Config
	auditor  audit.Emitter

	logger *slog.Logger
	tracer trace.Tracer
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditor sets the emitter for sent-notification audit events.
func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) { s.auditor = a }
}

// WithSleep overrides the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

func New(sessions store.SessionStore, provider Provider, cfg Config, opts ...Option) (*Service, error) {
	if sessions == nil || provider == nil {
		return nil, errors.New("session store and provider are required")
	}
	s := &Service{
		sessions: sessions,
		provider: provider,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("ipvreturn/notify"),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deliver sends one queued notification. Validation and precondition
// failures carry CodeValidation (never redelivered); provider terminal
// errors carry CodeInternal; exhausted retries carry CodeRetryable.
func (s *Service) Deliver(ctx context.Context, n OutboundNotification) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "notify.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", n.Message.UserID),
		attribute.String("message.type", string(n.Message.MessageType)),
	)

	if err := n.Validate(); err != nil {
		return Receipt{}, err
	}

	record, err := s.sessions.Get(ctx, n.Message.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Receipt{}, dErrors.New(dErrors.CodeValidation, "no session record for queued notification")
	}
	if err != nil {
		return Receipt{}, err
	}
	if err := s.checkPreconditions(record, n.Message.MessageType); err != nil {
		return Receipt{}, err
	}

	messageType := n.Message.MessageType
	if messageType == MessageTypeDynamic && !record.DocumentDetailsComplete() {
		// The visit details that justified the dynamic template are gone;
		// send the fallback layout rather than an email with holes in it.
		templateDowngrades.Inc()
		s.logger.Warn("downgrading dynamic notification to fallback template",
			"user_id", n.Message.UserID,
		)
		messageType = MessageTypeFallback
	}

	receipt, err := s.sendWithRetry(ctx, s.templateFor(messageType), n, personalisation(n.Message, messageType))
	if err != nil {
		return Receipt{}, err
	}

	s.emitSentAudit(ctx, n, messageType)
	return receipt, nil
}

func (s *Service) checkPreconditions(record *models.SessionRecord, messageType MessageType) error {
	// Delivery only proceeds once the reaction stage has recorded intent on
	// the matching one-shot flag.
	intent := record.Notified
	if messageType == MessageTypeFailure {
		intent = record.FailureNotified
	}
	if !intent {
		return dErrors.New(dErrors.CodeValidation, "session record does not record notification intent")
	}
	if !record.MilestonesComplete() {
		return dErrors.New(dErrors.CodeValidation, "session record milestones incomplete")
	}
	return nil
}

func (s *Service) templateFor(messageType MessageType) string {
	switch messageType {
	case MessageTypeDynamic:
		return s.cfg.Templates.Dynamic
	case MessageTypeFallback:
		return s.cfg.Templates.Fallback
	case MessageTypeFailure:
		return s.cfg.Templates.Failure
	default:
		return s.cfg.Templates.Static
	}
}

func personalisation(m Message, messageType MessageType) map[string]string {
	fields := map[string]string{
		"first name": m.FirstName,
		"last name":  m.LastName,
	}
	if messageType == MessageTypeDynamic {
		fields["document type"] = m.DocumentType
		fields["document expiry date"] = m.DocumentExpiryDate
		fields["post office address"] = m.POAddress
		fields["date of visit"] = m.POVisitDate
		fields["time of visit"] = m.POVisitTime
	}
	return fields
}

// sendWithRetry performs the initial attempt plus up to MaxRetries more,
// sleeping the fixed backoff between retryable failures. Terminal provider
// errors fail immediately without sleeping.
func (s *Service) sendWithRetry(ctx context.Context, templateID string, n OutboundNotification, fields map[string]string) (Receipt, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.Backoff); err != nil {
				return Receipt{}, err
			}
		}

		receipt, err := s.provider.SendEmail(ctx, templateID, n.Message.EmailAddress, n.Reference, fields)
		if err == nil {
			deliveryAttempts.WithLabelValues("success").Inc()
			return receipt, nil
		}
		lastErr = err

		var provErr *ProviderError
		if errors.As(err, &provErr) && !provErr.Retryable() {
			deliveryAttempts.WithLabelValues("terminal").Inc()
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "notification dispatch failed")
		}
		deliveryAttempts.WithLabelValues("retryable").Inc()
		s.logger.Warn("provider send failed, will retry",
			"user_id", n.Message.UserID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	deliveriesExhausted.Inc()
	return Receipt{}, dErrors.Wrap(lastErr, dErrors.CodeRetryable, "delivery exhausted retry budget")
}

func (s *Service) emitSentAudit(ctx context.Context, n OutboundNotification, messageType MessageType) {
	if s.auditor == nil {
		return
	}
	eventName := audit.EventNotificationEmailed
	if messageType == MessageTypeFailure {
		eventName = audit.EventFailureNotificationEmailed
	}
	err := s.auditor.Emit(ctx, audit.Event{
		EventName: eventName,
		User: audit.User{
			UserID: n.Message.UserID,
			Email:  n.Message.EmailAddress,
		},
		Extensions: map[string]any{
			"message_type": string(messageType),
			"reference":    n.Reference,
		},
	})
	if err != nil {
		s.logger.Error("sent-notification audit emission failed",
			"user_id", n.Message.UserID,
			"error", err,
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
