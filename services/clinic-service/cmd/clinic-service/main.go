package main

import (
	"context"
	"os"
	"time"

	"github.com/physiobook/physiobook/libs/config"
	"github.com/physiobook/physiobook/libs/consumer"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/grpcx"
	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/libs/kafkax"
	otelx "github.com/physiobook/physiobook/libs/otel"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/libs/runtime"
	"github.com/physiobook/physiobook/services/clinic-service/internal/handlers"
	"github.com/physiobook/physiobook/services/clinic-service/internal/live"
	"github.com/physiobook/physiobook/services/clinic-service/internal/reconcile"
	"github.com/physiobook/physiobook/services/clinic-service/internal/records"
	"github.com/physiobook/physiobook/services/clinic-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9084")
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

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "Asia/Jakarta"))
	if err != nil {
		logger.Warn("invalid CLINIC_TIMEZONE, using UTC", "err", err)
		loc = time.UTC
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	hub := live.NewHub(logger)
	if brokers != "" {
		host, _ := os.Hostname()
		groupID := config.String("LIVE_GROUP_ID", "clinic-live-"+host)
		for _, topic := range live.Topics {
			// Every instance needs every event, so the live feed skips inbox dedupe.
			c := consumer.New(logger, nil, consumer.Config{Brokers: brokers, GroupID: groupID, Topic: topic}, hub.Handler())
			go c.Run(ctx)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set, live feed only carries local changes")
	}

	reconcileRepo := storage.NewReconcileRepository(pool, outboxRepo)
	reconciler := reconcile.NewWorker(reconcileRepo, reconcileRepo, logger,
		reconcile.Config{
			Interval: config.Duration("RECONCILE_INTERVAL_SECONDS", 300, time.Second),
			MinAge:   config.Duration("RECONCILE_MIN_AGE_MINUTES", 10, time.Minute),
		},
	)
	go reconciler.Run(ctx)

	registrations := storage.NewRegistrationRepository(pool, outboxRepo)
	clinicHandler := handlers.NewClinicHandler(handlers.Deps{
		Departments:   storage.NewDepartmentRepository(pool),
		Codes:         storage.NewCodeRepository(pool),
		Slots:         storage.NewSlotRepository(pool),
		Registrations: registrations,
		Incidents:     storage.NewIncidentRepository(pool),
		Records:       records.NewService(registrations),
		Notifier:      hub,
		Live:          hub.ServeWS,
	}, logger, loc)

	health := grpcx.NewHealthServer(logger, service, db.ReadyCheck(pool))
	if err := health.Start(ctx, ":"+grpcPort, 10*time.Second); err != nil {
		logger.Error("grpc health server failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, live.Topics...)},
	)
	clinicHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(256<<10),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")
	runtime.Serve(ctx, logger, runtime.NewHTTPServer(port, httpHandler))
}
