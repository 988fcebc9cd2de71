package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipvreturn/internal/journey/store/auth"
	"ipvreturn/internal/journey/store/session"
	"ipvreturn/pkg/platform/audit"
)

type staticResolver map[string]string

func (r staticResolver) LandingPageFor(clientID string) string { return r[clientID] }

type capturingEmitter struct {
	events []audit.Event
	err    error
}

func (e *capturingEmitter) Emit(_ context.Context, event audit.Event) error {
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

type fixture struct {
	service      *Service
	sessions     *session.InMemoryStore
	auths        *auth.InMemoryStore
	authAudit    *capturingEmitter
	sessionAudit *capturingEmitter
	now          time.Time
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		authAudit:    &capturingEmitter{},
		sessionAudit: &capturingEmitter{},
		now:          time.Unix(1_700_000_000, 0),
	}
	clock := func() time.Time { return f.now }
	f.sessions = session.NewInMemory(session.WithClock(clock))
	f.auths = auth.NewInMemory(auth.WithClock(clock))
	cfg := Config{
		AuthSessionTTL:  time.Hour,
		SessionTTL:      24 * time.Hour,
		AsyncJourneyTTL: 31 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := New(f.sessions, f.auths,
		staticResolver{"ekwU": "https://signin.account.gov.uk/credential-issuer/return"},
		cfg,
		WithClock(func() time.Time { return f.now }),
		WithAuditEmitters(f.authAudit, f.sessionAudit),
	)
	require.NoError(t, err)
	f.service = svc
	return f
}

const (
	rawAuthRequested = `{"event_id":"e1","event_name":"AUTH_IPV_AUTHORISATION_REQUESTED","timestamp":1000,"client_id":"ekwU","user":{"user_id":"u1","email":"jest@test.com"}}`
	rawCheckStarted  = `{"event_id":"e2","event_name":"F2F_DOCUMENT_CHECK_STARTED","timestamp":2000,"user":{"user_id":"u1","govuk_signin_journey_id":"j-42"},"extensions":{"document_type":"PASSPORT","post_office_details":{"address":"1 High St","post_code":"SE1 1AA"}}}`
	rawConsumed      = `{"event_id":"e3","event_name":"F2F_CREDENTIAL_CONSUMED","timestamp":3000,"user":{"user_id":"u1"},"restricted":{"nameParts":[{"type":"GivenName","value":"ANGELA"},{"type":"GivenName","value":"ZOE"},{"type":"FamilyName","value":"UK SPECIMEN"}],"docExpiryDate":"2030-01-01"}}`
	rawUploaded      = `{"event_id":"e4","event_name":"F2F_DOCUMENT_UPLOADED","timestamp":4000,"user":{"user_id":"u1"},"extensions":{"post_office_visit_details":{"address":"1 High St","date_of_visit":"2026-09-01","time_of_visit":"10:00"}}}`
	rawDeleted       = `{"event_id":"e5","event_name":"AUTH_ACCOUNT_DELETED","timestamp":5000,"user":{"user_id":"u1"}}`
	rawGenError      = `{"event_id":"e6","event_name":"F2F_CREDENTIAL_GENERATION_ERROR","timestamp":6000,"user":{"user_id":"u1"},"extensions":{"error_description":"Unable to generate credential"}}`
)

func TestProcess_MalformedMessage(t *testing.T) {
	f := newFixture(t)

	d, err := f.service.Process(context.Background(), []byte(`{"event_name":`))
	require.NoError(t, err, "permanent rejections acknowledge the message")
	assert.Equal(t, RejectedPermanent, d)
	assert.False(t, d.Retryable())
}

func TestProcess_AuthorisationRequested(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.service.Process(ctx, []byte(rawAuthRequested))
	require.NoError(t, err)
	assert.Equal(t, Accepted, d)

	record, err := f.auths.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), record.IPVStartedOn)
	assert.Equal(t, "jest@test.com", record.UserEmail)
	assert.Equal(t, "ekwU", record.ClientName)
	assert.Equal(t, "https://signin.account.gov.uk/credential-issuer/return", record.RedirectURI)
	assert.Equal(t, f.now.Add(time.Hour).Unix(), record.ExpiresOn, "auth record carries the short TTL")

	require.Len(t, f.authAudit.events, 1)
	assert.Equal(t, "AUTH_IPV_AUTHORISATION_REQUESTED", f.authAudit.events[0].EventName)
	assert.Equal(t, int64(1_000_000), f.authAudit.events[0].EventTimestampMs)
}

func TestProcess_AuthAuditFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.authAudit.err = errors.New("audit queue unavailable")

	d, err := f.service.Process(ctx, []byte(rawAuthRequested))
	require.Error(t, err)
	assert.Equal(t, RejectedRetryable, d)
	assert.True(t, d.Retryable())
}

func TestProcess_DocumentCheckStarted(t *testing.T) {
	ctx := context.Background()

	t.Run("before the auth record lands it redelivers", func(t *testing.T) {
		f := newFixture(t)

		d, err := f.service.Process(ctx, []byte(rawCheckStarted))
		require.Error(t, err)
		assert.Equal(t, RejectedRetryable, d)

		_, err = f.sessions.Get(ctx, "u1")
		assert.Error(t, err, "no partial session row is written")
	})

	t.Run("copies the auth profile and stretches the TTL", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Process(ctx, []byte(rawAuthRequested))
		require.NoError(t, err)

		d, err := f.service.Process(ctx, []byte(rawCheckStarted))
		require.NoError(t, err)
		assert.Equal(t, Accepted, d)

		record, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), record.IPVStartedOn, "started-on comes from the auth record, not this event")
		assert.Equal(t, int64(2000), record.JourneyWentAsyncOn)
		assert.Equal(t, "jest@test.com", record.UserEmail)
		assert.Equal(t, "ekwU", record.ClientName)
		assert.Equal(t, "j-42", record.ClientSessionID)
		assert.Equal(t, "PASSPORT", record.DocumentType)
		require.NotNil(t, record.PostOfficeInfo)
		assert.Equal(t, "SE1 1AA", record.PostOfficeInfo.PostCode)
		assert.Equal(t, f.now.Add(31*24*time.Hour).Unix(), record.ExpiresOn, "async journey gets the long horizon")

		assert.Len(t, f.sessionAudit.events, 1)
	})
}

func TestProcess_DuplicateSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Process(ctx, []byte(rawAuthRequested))
	require.NoError(t, err)
	_, err = f.service.Process(ctx, []byte(rawCheckStarted))
	require.NoError(t, err)

	d, err := f.service.Process(ctx, []byte(rawCheckStarted))
	require.NoError(t, err)
	assert.Equal(t, SkippedDuplicate, d)

	record, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Version, "duplicate must not rewrite the row")
}

func TestProcess_RedriveBypassesGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(cfg *Config) { cfg.Redrive = true })

	_, err := f.service.Process(ctx, []byte(rawAuthRequested))
	require.NoError(t, err)
	_, err = f.service.Process(ctx, []byte(rawCheckStarted))
	require.NoError(t, err)

	d, err := f.service.Process(ctx, []byte(rawCheckStarted))
	require.NoError(t, err)
	assert.Equal(t, Accepted, d, "redrive reapplies instead of skipping")
}

func TestProcess_CredentialConsumedAndUploaded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Process(ctx, []byte(rawConsumed))
	require.NoError(t, err)
	_, err = f.service.Process(ctx, []byte(rawUploaded))
	require.NoError(t, err)

	record, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), record.ReadyToResumeOn)
	assert.Equal(t, "ANGELA", record.FirstGivenName())
	assert.Equal(t, "2030-01-01", record.DocumentExpiryDate)
	assert.Equal(t, int64(4000), record.DocumentUploadedOn)
	require.NotNil(t, record.PostOfficeVisit)
	assert.Equal(t, "2026-09-01", record.PostOfficeVisit.VisitDate)
	assert.Equal(t, f.now.Add(24*time.Hour).Unix(), record.ExpiresOn, "default session TTL applies when the journey never went async")
}

func TestProcess_Tombstone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Process(ctx, []byte(rawAuthRequested))
	require.NoError(t, err)
	_, err = f.service.Process(ctx, []byte(rawCheckStarted))
	require.NoError(t, err)

	d, err := f.service.Process(ctx, []byte(rawDeleted))
	require.NoError(t, err)
	assert.Equal(t, Accepted, d)

	record, err := f.sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, record.Tombstoned())
	assert.Empty(t, record.UserEmail, "PII is cleared on deletion")
	assert.Empty(t, record.ClientName)
	assert.Nil(t, record.NameParts)

	t.Run("later milestones bounce off the tombstone", func(t *testing.T) {
		d, err := f.service.Process(ctx, []byte(rawConsumed))
		require.NoError(t, err)
		assert.Equal(t, SkippedDuplicate, d)

		record, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, record.ReadyToResumeOn)
	})
}

func TestProcess_GenerationError(t *testing.T) {
	ctx := context.Background()

	t.Run("failure marker unblocks the resume milestone", func(t *testing.T) {
		f := newFixture(t)

		d, err := f.service.Process(ctx, []byte(rawGenError))
		require.NoError(t, err)
		assert.Equal(t, Accepted, d)

		record, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Unable to generate credential", record.ErrorDescription)
		assert.Equal(t, f.now.Unix(), record.ReadyToResumeOn, "failure substitutes for the resume milestone")
	})

	t.Run("marker does not overwrite an existing milestone", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Process(ctx, []byte(rawConsumed))
		require.NoError(t, err)

		_, err = f.service.Process(ctx, []byte(rawGenError))
		require.NoError(t, err)

		record, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3000), record.ReadyToResumeOn, "earlier credential-consumed timestamp survives")
	})

	t.Run("other errors record without unblocking", func(t *testing.T) {
		f := newFixture(t)
		raw := `{"event_id":"e6","event_name":"F2F_CREDENTIAL_GENERATION_ERROR","timestamp":6000,"user":{"user_id":"u1"},"extensions":{"error_description":"scanner offline"}}`

		_, err := f.service.Process(ctx, []byte(raw))
		require.NoError(t, err)

		record, err := f.sessions.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "scanner offline", record.ErrorDescription)
		assert.Zero(t, record.ReadyToResumeOn)
	})
}

func TestProcess_SessionAuditFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sessionAudit.err = errors.New("audit queue unavailable")

	d, err := f.service.Process(ctx, []byte(rawConsumed))
	require.NoError(t, err, "session-stage audit is best-effort")
	assert.Equal(t, Accepted, d)

	_, err = f.sessions.Get(ctx, "u1")
	assert.NoError(t, err, "the write itself lands")
}
