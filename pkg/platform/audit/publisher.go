package audit

import (
	"context"
	"log/slog"
	"time"

	"ipvreturn/internal/platform/kafka/producer"
	dErrors "ipvreturn/pkg/domain-errors"
)

// Sink delivers the un-redacted event to the audit queue.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// KafkaSink produces audit events to the audit topic, keyed by userId.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Send(ctx context.Context, event Event) error {
	return s.producer.ProduceJSON(ctx, s.topic, event.User.UserID, event)
}

// Policy selects the failure behavior of a publisher call site.
type Policy int

const (
	// FailClosed propagates a send failure to the caller, which must treat
	// its operation as failed.
	FailClosed Policy = iota
	// BestEffort logs a send failure and reports success.
	BestEffort
)

// Publisher logs a redacted copy of every event and forwards the un-redacted
// event to the sink under the configured policy.
type Publisher struct {
	sink        Sink
	policy      Policy
	componentID string
	allowList   []string
	logger      *slog.Logger
	now         func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithAllowList overrides the redaction allow-list.
func WithAllowList(fields []string) PublisherOption {
	return func(p *Publisher) { p.allowList = fields }
}

// WithLogger sets the logger for the redacted copies.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// WithClock overrides the emission clock.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(sink Sink, policy Policy, componentID string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		sink:        sink,
		policy:      policy,
		componentID: componentID,
		allowList:   DefaultAllowList,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit logs the redacted event and sends the un-redacted one to the queue.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = p.now().Unix()
	}
	if event.ComponentID == "" {
		event.ComponentID = p.componentID
	}

	p.logger.Info("audit event",
		"event", Redact(event, p.allowList),
	)

	if err := p.sink.Send(ctx, event); err != nil {
		if p.policy == FailClosed {
			return dErrors.Wrap(err, dErrors.CodeRetryable, "audit queue send failed")
		}
		p.logger.Error("audit queue send failed, continuing",
			"event_name", event.EventName,
			"user_id", event.User.UserID,
			"error", err,
		)
	}
	return nil
}
