// Package ingest reconciles inbound lifecycle events into the aggregate
// stores. Each raw message gets exactly one disposition; permanent
// rejections are swallowed so poison messages never loop.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ipvreturn/internal/journey/events"
	"ipvreturn/internal/journey/guard"
	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
	"ipvreturn/pkg/platform/audit"
	dErrors "ipvreturn/pkg/domain-errors"
)

// Disposition classifies the outcome of processing one raw message.
type Disposition string

const (
	Accepted          Disposition = "accepted"
	SkippedDuplicate  Disposition = "skipped_duplicate"
	RejectedPermanent Disposition = "rejected_permanent"
	RejectedRetryable Disposition = "rejected_retryable"
)

// Retryable reports whether the disposition should be redelivered.
func (d Disposition) Retryable() bool { return d == RejectedRetryable }

// ClientResolver maps an OAuth client id to the landing page a user returns
// to after the document check.
type ClientResolver interface {
	LandingPageFor(clientID string) string
}

// Config carries the ingestion knobs.
type Config struct {
	// AuthSessionTTL bounds the short-lived auth record.
	AuthSessionTTL time.Duration
	// SessionTTL is the initial session horizon.
	SessionTTL time.Duration
	// AsyncJourneyTTL is the long horizon applied when the journey goes
	// async.
	AsyncJourneyTTL time.Duration
	// Redrive bypasses the idempotency guard for deliberate replay.
	Redrive bool
}

// Service applies inbound events to the auth and session stores.
type Service struct {
	sessions store.SessionStore
	auths    store.AuthStore
	guard    *guard.Guard
	clients  ClientResolver
	cfg      Config

	// authAudit propagates emission failure (auth-stage audit is critical);
	// sessionAudit only logs it.
	authAudit    audit.Emitter
	sessionAudit audit.Emitter

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAuditEmitters sets the two audit call-site policies: authEmitter
// failures propagate, sessionEmitter failures are logged only.
func WithAuditEmitters(authEmitter, sessionEmitter audit.Emitter) Option {
	return func(s *Service) {
		s.authAudit = authEmitter
		s.sessionAudit = sessionEmitter
	}
}

func New(sessions store.SessionStore, auths store.AuthStore, clients ClientResolver, cfg Config, opts ...Option) (*Service, error) {
	if sessions == nil || auths == nil {
		return nil, errors.New("session and auth stores are required")
	}
	if clients == nil {
		return nil, errors.New("client resolver is required")
	}
	s := &Service{
		sessions: sessions,
		auths:    auths,
		guard:    guard.New(sessions),
		clients:  clients,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("ipvreturn/ingest"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process validates, gates, and applies one raw message. The error return is
// the underlying cause for retryable dispositions and is nil otherwise;
// callers acknowledge everything except RejectedRetryable.
func (s *Service) Process(ctx context.Context, raw []byte) (Disposition, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Process")
	defer span.End()

	event, err := events.Parse(raw)
	if err != nil {
		s.logger.Warn("dropping malformed event",
			"reason", string(dErrors.CodeOf(err)),
			"error", err,
		)
		return s.record(span, "unknown", RejectedPermanent, string(dErrors.CodeOf(err))), nil
	}
	span.SetAttributes(
		attribute.String("event.name", event.Name()),
		attribute.String("user.id", event.UserID()),
	)

	if !s.cfg.Redrive {
		handled, err := s.guard.AlreadyHandled(ctx, event.UserID(), event.Name())
		if err != nil {
			return s.record(span, event.Name(), RejectedRetryable, "guard_read_failed"), err
		}
		if handled {
			s.logger.Info("skipping already-handled event",
				"event_name", event.Name(),
				"user_id", event.UserID(),
			)
			return s.record(span, event.Name(), SkippedDuplicate, "already_handled"), nil
		}
	}

	disposition, reason, err := s.apply(ctx, event)
	return s.record(span, event.Name(), disposition, reason), err
}

func (s *Service) apply(ctx context.Context, event events.Event) (Disposition, string, error) {
	switch ev := event.(type) {
	case events.AuthorisationRequested:
		return s.applyAuthorisationRequested(ctx, ev)
	case events.DocumentCheckStarted:
		return s.applyDocumentCheckStarted(ctx, ev)
	case events.CredentialConsumed:
		return s.applyCredentialConsumed(ctx, ev)
	case events.DocumentUploaded:
		return s.applyDocumentUploaded(ctx, ev)
	case events.AccountDeleted:
		return s.applyAccountDeleted(ctx, ev)
	case events.GenerationError:
		return s.applyGenerationError(ctx, ev)
	default:
		// Parse produced a variant this switch does not know; a new event
		// type was added without updating the ingestion mapping.
		return RejectedPermanent, "unmapped_variant", nil
	}
}

func (s *Service) applyAuthorisationRequested(ctx context.Context, ev events.AuthorisationRequested) (Disposition, string, error) {
	record := models.AuthRecord{
		UserID:       ev.UserID(),
		IPVStartedOn: ev.Timestamp(),
		UserEmail:    ev.Email,
		ClientName:   ev.ClientID,
		RedirectURI:  s.clients.LandingPageFor(ev.ClientID),
		ExpiresOn:    s.now().Add(s.cfg.AuthSessionTTL).Unix(),
	}
	if err := s.auths.Put(ctx, record); err != nil {
		return RejectedRetryable, "auth_store_write_failed", err
	}

	// Auth-stage audit is fail-closed: an emission failure surfaces as
	// retryable so the event redelivers.
	if err := s.emitAudit(ctx, s.authAudit, ev.Base, nil); err != nil {
		return RejectedRetryable, "audit_emit_failed", err
	}
	return Accepted, "", nil
}

func (s *Service) applyDocumentCheckStarted(ctx context.Context, ev events.DocumentCheckStarted) (Disposition, string, error) {
	authRecord, err := s.auths.Get(ctx, ev.UserID())
	if errors.Is(err, store.ErrNotFound) {
		// The authorisation-requested event has not landed yet; redeliver
		// until it does.
		return RejectedRetryable, "auth_record_missing", dErrors.New(dErrors.CodeRetryable, "no auth record for user, events arrived out of order")
	}
	if err != nil {
		return RejectedRetryable, "auth_store_read_failed", err
	}

	longHorizon := s.now().Add(s.cfg.AsyncJourneyTTL).Unix()
	return s.mutateSession(ctx, ev.Base, func(r *models.SessionRecord) {
		r.IPVStartedOn = authRecord.IPVStartedOn
		r.UserEmail = authRecord.UserEmail
		r.ClientName = authRecord.ClientName
		r.RedirectURI = authRecord.RedirectURI
		r.JourneyWentAsyncOn = ev.Timestamp()
		// The user is now waiting on an out-of-band document check, so the
		// row must outlive the authentication window by a wide margin.
		r.ExpiresOn = longHorizon
		if ev.ClientSessionID != "" {
			r.ClientSessionID = ev.ClientSessionID
		}
		if ev.DocumentType != "" {
			r.DocumentType = ev.DocumentType
		}
		if ev.PostOfficeInfo != nil {
			r.PostOfficeInfo = ev.PostOfficeInfo
		}
	})
}

func (s *Service) applyCredentialConsumed(ctx context.Context, ev events.CredentialConsumed) (Disposition, string, error) {
	return s.mutateSession(ctx, ev.Base, func(r *models.SessionRecord) {
		r.ReadyToResumeOn = ev.Timestamp()
		r.NameParts = ev.NameParts
		if ev.DocumentExpiryDate != "" {
			r.DocumentExpiryDate = ev.DocumentExpiryDate
		}
	})
}

func (s *Service) applyDocumentUploaded(ctx context.Context, ev events.DocumentUploaded) (Disposition, string, error) {
	return s.mutateSession(ctx, ev.Base, func(r *models.SessionRecord) {
		r.DocumentUploadedOn = ev.Timestamp()
		r.PostOfficeVisit = ev.Visit
	})
}

func (s *Service) applyAccountDeleted(ctx context.Context, ev events.AccountDeleted) (Disposition, string, error) {
	return s.mutateSession(ctx, ev.Base, func(r *models.SessionRecord) {
		r.AccountDeletedOn = ev.Timestamp()
		r.ClearPII()
	})
}

func (s *Service) applyGenerationError(ctx context.Context, ev events.GenerationError) (Disposition, string, error) {
	readyAt := s.now().Unix()
	return s.mutateSession(ctx, ev.Base, func(r *models.SessionRecord) {
		r.ErrorDescription = ev.Description
		if ev.IsGenerationFailure() && r.ReadyToResumeOn == 0 {
			// Generation failed outright: nothing further will arrive, so
			// unblock the stalled wait and let the failure path notify.
			r.ReadyToResumeOn = readyAt
		}
	})
}

// mutateSession applies fn under the store's optimistic concurrency,
// enforcing the tombstone invariant and the default expiry, then emits the
// best-effort session-stage audit record.
func (s *Service) mutateSession(ctx context.Context, base events.Base, fn func(*models.SessionRecord)) (Disposition, string, error) {
	sessionTTL := s.now().Add(s.cfg.SessionTTL).Unix()
	_, err := s.sessions.Mutate(ctx, base.UserID(), func(r *models.SessionRecord) error {
		if r.Tombstoned() {
			return store.ErrNoChange
		}
		fn(r)
		if r.ExpiresOn == 0 {
			r.ExpiresOn = sessionTTL
		}
		return nil
	})
	if errors.Is(err, store.ErrNoChange) {
		return SkippedDuplicate, "tombstoned", nil
	}
	if err != nil {
		return RejectedRetryable, "session_store_write_failed", err
	}

	// Session-stage audit is best-effort; failures are logged inside the
	// emitter and never block the write.
	if err := s.emitAudit(ctx, s.sessionAudit, base, nil); err != nil {
		s.logger.Error("session audit emission failed",
			"event_name", base.Name(),
			"user_id", base.UserID(),
			"error", err,
		)
	}
	return Accepted, "", nil
}

func (s *Service) emitAudit(ctx context.Context, emitter audit.Emitter, base events.Base, extensions map[string]any) error {
	if emitter == nil {
		return nil
	}
	return emitter.Emit(ctx, audit.Event{
		EventName: base.Name(),
		User: audit.User{
			UserID: base.UserID(),
			Email:  base.Email,
		},
		Timestamp:        s.now().Unix(),
		EventTimestampMs: base.Timestamp() * 1000,
		Extensions:       extensions,
	})
}

func (s *Service) record(span trace.Span, eventName string, d Disposition, reason string) Disposition {
	span.SetAttributes(attribute.String("ingest.disposition", string(d)))
	switch d {
	case Accepted:
		eventsAccepted.WithLabelValues(eventName).Inc()
	case SkippedDuplicate:
		eventsSkipped.WithLabelValues(eventName, reason).Inc()
	case RejectedPermanent:
		eventsRejected.WithLabelValues(eventName, reason).Inc()
	case RejectedRetryable:
		eventsRetried.WithLabelValues(eventName, reason).Inc()
	}
	return d
}
