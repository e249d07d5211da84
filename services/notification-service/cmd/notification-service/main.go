package main

import (
	"context"
	"strings"
	"time"

	"github.com/physiobook/physiobook/libs/config"
	"github.com/physiobook/physiobook/libs/consumer"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/grpcx"
	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/libs/inbox"
	"github.com/physiobook/physiobook/libs/kafkax"
	otelx "github.com/physiobook/physiobook/libs/otel"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/libs/runtime"
	"github.com/physiobook/physiobook/services/notification-service/internal/dispatch"
	"github.com/physiobook/physiobook/services/notification-service/internal/email"
	"github.com/physiobook/physiobook/services/notification-service/internal/sms"
	"github.com/physiobook/physiobook/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
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

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	emailSender := email.NewSMTPSender(email.Config{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@physiobook.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	})

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	dispatcher := dispatch.New(emailSender, smsSender, storage.NewRepository(pool, outboxRepo), logger, dispatch.Config{
		ClinicName:  config.String("CLINIC_NAME", "PhysioBook"),
		OpsEmail:    config.String("OPS_EMAIL", ""),
		CountryCode: config.String("SMS_COUNTRY_CODE", "62"),
		FailSuffix:  config.String("NOTIFICATION_FAIL_SUFFIX", ""),
	})

	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	for _, topic := range dispatch.Topics {
		c := consumer.New(logger, inbox.NewRepository(pool, groupID),
			consumer.Config{Brokers: brokers, GroupID: groupID, Topic: topic},
			dispatcher.Handle,
		)
		go c.Run(ctx)
	}

	health := grpcx.NewHealthServer(logger, service, db.ReadyCheck(pool))
	if err := health.Start(ctx, ":"+grpcPort, 10*time.Second); err != nil {
		logger.Error("grpc health server failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, dispatch.Topics...)},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	runtime.Serve(ctx, logger, runtime.NewHTTPServer(port, httpHandler))
}
