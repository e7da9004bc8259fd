package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/counselcare/counselbook/libs/config"
	"github.com/counselcare/counselbook/libs/db"
	"github.com/counselcare/counselbook/libs/httpx"
	"github.com/counselcare/counselbook/libs/kafkax"
	otelx "github.com/counselcare/counselbook/libs/otel"
	"github.com/counselcare/counselbook/libs/runtime"
	"github.com/counselcare/counselbook/services/notification-service/internal/consumer"
	"github.com/counselcare/counselbook/services/notification-service/internal/email"
	"github.com/counselcare/counselbook/services/notification-service/internal/inbox"
	"github.com/counselcare/counselbook/services/notification-service/internal/notify"
	"github.com/counselcare/counselbook/services/notification-service/internal/outbox"
	"github.com/counselcare/counselbook/services/notification-service/internal/storage"
	"github.com/counselcare/counselbook/services/notification-service/internal/webhook"
)

type dispatcher struct {
	pool       *db.Pool
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger

	email   email.Sender
	webhook webhook.Sender
}

// deliver fans one appointment event out to both parties. Delivery failures
// are recorded and reported on the status topics but never bubble back to
// the consumer; the appointment itself is unaffected.
func (d *dispatcher) deliver(ctx context.Context, topic string, evt notify.AppointmentEvent) {
	for _, msg := range notify.Compose(topic, evt) {
		d.send(ctx, evt, msg, "webhook", func() error {
			return d.webhook.Send(ctx, msg.RecipientID, msg.Subject, msg.Body)
		})
		if msg.Email != "" {
			d.send(ctx, evt, msg, "email", func() error {
				return d.email.Send(msg.Email, msg.Subject, msg.Body)
			})
		}
	}
}

func (d *dispatcher) send(ctx context.Context, evt notify.AppointmentEvent, msg notify.Message, channel string, fn func() error) {
	status := "sent"
	reason := ""
	if err := fn(); err != nil {
		status = "failed"
		reason = err.Error()
		d.logger.Error("notification delivery failed",
			"channel", channel, "recipient_id", msg.RecipientID, "err", err)
	}

	if err := d.repo.Insert(ctx, storage.Notification{
		AppointmentID: evt.AppointmentID,
		RecipientID:   msg.RecipientID,
		Channel:       channel,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Status:        status,
	}); err != nil {
		d.logger.Error("failed to persist notification", "err", err)
		return
	}

	if err := d.writeStatusEvent(ctx, evt, msg, channel, status, reason); err != nil {
		d.logger.Error("failed to enqueue delivery status event", "err", err)
	}
}

func (d *dispatcher) writeStatusEvent(ctx context.Context, evt notify.AppointmentEvent, msg notify.Message, channel, status, reason string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventType := outbox.TopicNotificationSent
	if status == "failed" {
		eventType = outbox.TopicNotificationFailed
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": evt.AppointmentID,
		"recipient_id":   msg.RecipientID,
		"channel":        channel,
		"error_reason":   reason,
		"occurred_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := d.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@counselbook.local"),
	)

	var webhookSender webhook.Sender
	if url := config.String("NOTIFY_WEBHOOK_URL", ""); url != "" {
		webhookSender = webhook.NewHTTPSender(url, config.String("NOTIFY_WEBHOOK_TOKEN", ""))
	} else {
		webhookSender = webhook.NewNoopSender()
	}

	d := &dispatcher{
		pool:       pool,
		repo:       notificationsRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
		email:      emailSender,
		webhook:    webhookSender,
	}

	for _, topic := range notify.Topics() {
		consumerCfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			var evt notify.AppointmentEvent
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if !evt.Valid() {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}
			d.deliver(ctx, msg.Topic, evt)
			return nil
		})
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		recipientID := strings.TrimSpace(r.URL.Query().Get("recipient_id"))
		if recipientID == "" {
			http.Error(w, "recipient_id required", http.StatusBadRequest)
			return
		}
		notifications, err := notificationsRepo.ListByRecipient(r.Context(), recipientID, 50)
		if err != nil {
			http.Error(w, "failed to list notifications", http.StatusInternalServerError)
			return
		}
		items := make([]map[string]any, 0, len(notifications))
		for _, n := range notifications {
			items = append(items, map[string]any{
				"appointment_id": n.AppointmentID,
				"channel":        n.Channel,
				"subject":        n.Subject,
				"body":           n.Body,
				"status":         n.Status,
				"created_at":     n.CreatedAt.Format(time.RFC3339),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"notifications": items})
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
