// The worker runs the return journey pipeline: it ingests lifecycle events
// into the aggregate stores, reacts to session changes by queueing
// notifications, delivers queued notifications, and archives the audit
// trail. Business logic lives in the internal/journey packages; this file
// only wires dependencies and lifecycles.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ipvreturn/internal/journey/feed"
	"ipvreturn/internal/journey/ingest"
	"ipvreturn/internal/journey/notify"
	"ipvreturn/internal/journey/reaction"
	"ipvreturn/internal/journey/store/auth"
	"ipvreturn/internal/journey/store/session"
	"ipvreturn/internal/platform/config"
	"ipvreturn/internal/platform/httpserver"
	kafkaadmin "ipvreturn/internal/platform/kafka/admin"
	"ipvreturn/internal/platform/kafka/consumer"
	"ipvreturn/internal/platform/kafka/producer"
	"ipvreturn/internal/platform/logger"
	"ipvreturn/internal/platform/redis"
	audit "ipvreturn/pkg/platform/audit"
	auditconsumer "ipvreturn/pkg/platform/audit/consumer"
	auditpostgres "ipvreturn/pkg/platform/audit/store/postgres"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.ComponentID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafkaadmin.EnsureTopics(ctx, cfg.Kafka.Brokers,
		cfg.Kafka.InboundEventsTopic,
		cfg.Kafka.SessionChangesTopic,
		cfg.Kafka.NotificationsTopic,
		cfg.Kafka.AuditTopic,
	); err != nil {
		log.Error("topic bootstrap failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	prod, err := producer.New(cfg.Kafka.Brokers)
	if err != nil {
		log.Error("kafka producer connection failed", "error", err)
		os.Exit(1)
	}
	defer prod.Close()

	sessionStore := session.NewRedis(redisClient.Client,
		session.WithRedisFeed(feed.NewKafkaFeed(prod, cfg.Kafka.SessionChangesTopic)),
		session.WithRedisLogger(log),
	)
	authStore := auth.NewRedis(redisClient.Client)

	auditSink := audit.NewKafkaSink(prod, cfg.Kafka.AuditTopic)
	authAudit := audit.NewPublisher(auditSink, audit.FailClosed, cfg.ComponentID, audit.WithLogger(log))
	sessionAudit := audit.NewPublisher(auditSink, audit.BestEffort, cfg.ComponentID, audit.WithLogger(log))

	ingestService, err := ingest.New(sessionStore, authStore, cfg, ingest.Config{
		AuthSessionTTL:  cfg.AuthSessionTTL,
		SessionTTL:      cfg.SessionTTL,
		AsyncJourneyTTL: cfg.AsyncJourneyTTL,
		Redrive:         cfg.RedriveEnabled,
	},
		ingest.WithLogger(log),
		ingest.WithAuditEmitters(authAudit, sessionAudit),
	)
	if err != nil {
		log.Error("ingest service construction failed", "error", err)
		os.Exit(1)
	}

	reactionService, err := reaction.New(sessionStore,
		notify.NewKafkaEnqueuer(prod, cfg.Kafka.NotificationsTopic),
		reaction.Config{AtMostOnce: cfg.Delivery.AtMostOnce},
		reaction.WithLogger(log),
	)
	if err != nil {
		log.Error("reaction service construction failed", "error", err)
		os.Exit(1)
	}

	deliveryService, err := notify.New(sessionStore,
		notify.NewHTTPProvider(cfg.Delivery.ProviderBaseURL, cfg.Delivery.ProviderAPIKey),
		notify.Config{
			MaxRetries: cfg.Delivery.MaxRetries,
			Backoff:    cfg.Delivery.Backoff,
			Templates: notify.Templates{
				Static:   cfg.Delivery.StaticTemplateID,
				Dynamic:  cfg.Delivery.DynamicTemplateID,
				Fallback: cfg.Delivery.FallbackTemplateID,
				Failure:  cfg.Delivery.FailureTemplateID,
			},
		},
		notify.WithLogger(log),
		notify.WithAuditor(sessionAudit),
	)
	if err != nil {
		log.Error("delivery service construction failed", "error", err)
		os.Exit(1)
	}

	consumers := make([]*consumer.Consumer, 0, 4)
	addConsumer := func(groupSuffix, topic string, handler consumer.Handler) {
		c, err := consumer.New(consumer.Config{
			Brokers: cfg.Kafka.Brokers,
			Group:   cfg.Kafka.ConsumerGroup + "." + groupSuffix,
			Topics:  []string{topic},
		}, handler, log.With("consumer", groupSuffix))
		if err != nil {
			log.Error("consumer connection failed", "consumer", groupSuffix, "error", err)
			os.Exit(1)
		}
		consumers = append(consumers, c)
	}

	addConsumer("ingest", cfg.Kafka.InboundEventsTopic, ingest.NewQueueHandler(ingestService, log))
	addConsumer("reaction", cfg.Kafka.SessionChangesTopic, reaction.NewFeedHandler(reactionService, log))
	addConsumer("delivery", cfg.Kafka.NotificationsTopic, notify.NewQueueHandler(deliveryService, log))

	if cfg.PostgresURL != "" {
		archive, err := auditpostgres.Open(cfg.PostgresURL)
		if err != nil {
			log.Error("audit archive connection failed", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		addConsumer("audit-archive", cfg.Kafka.AuditTopic, auditconsumer.NewHandler(archive, log))
	}

	srv := httpserver.New(cfg.OpsAddr, func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Info("starting worker",
		"ops_addr", cfg.OpsAddr,
		"brokers", cfg.Kafka.Brokers,
		"redrive", cfg.RedriveEnabled,
		"at_most_once", cfg.Delivery.AtMostOnce,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error { return c.Run(gctx) })
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		for _, c := range consumers {
			c.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
