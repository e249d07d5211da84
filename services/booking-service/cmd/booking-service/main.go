package main

import (
	"context"
	"time"

	"github.com/physiobook/physiobook/libs/config"
	"github.com/physiobook/physiobook/libs/db"
	"github.com/physiobook/physiobook/libs/grpcx"
	"github.com/physiobook/physiobook/libs/httpx"
	"github.com/physiobook/physiobook/libs/kafkax"
	otelx "github.com/physiobook/physiobook/libs/otel"
	"github.com/physiobook/physiobook/libs/outbox"
	"github.com/physiobook/physiobook/libs/runtime"
	"github.com/physiobook/physiobook/services/booking-service/internal/booking"
	"github.com/physiobook/physiobook/services/booking-service/internal/handlers"
	"github.com/physiobook/physiobook/services/booking-service/internal/stage"
	"github.com/physiobook/physiobook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
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

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	stageTTL := config.Duration("STAGE_TTL_MINUTES", 30, time.Minute)
	var stageStore stage.Store
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		stageStore = stage.NewRedisStore(rdb, stageTTL)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: stage.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR not set, staging booking state in memory")
		stageStore = stage.NewMemoryStore(stageTTL)
	}

	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	codes := storage.NewCodeRepository(pool)
	slots := storage.NewSlotRepository(pool)
	departments := storage.NewDepartmentRepository(pool)
	workflow := booking.NewWorkflow(
		slots,
		codes,
		departments,
		storage.NewRegistrationRepository(pool, outboxRepo),
		storage.NewIncidentRepository(pool, outboxRepo),
		logger,
	)
	bookingHandler := handlers.NewBookingHandler(
		booking.NewGate(codes),
		booking.NewCatalog(slots, departments),
		workflow,
		stageStore,
		logger,
		loc,
	)

	health := grpcx.NewHealthServer(logger, service, db.ReadyCheck(pool))
	if err := health.Start(ctx, ":"+grpcPort, 10*time.Second); err != nil {
		logger.Error("grpc health server failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	bookingHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	runtime.Serve(ctx, logger, runtime.NewHTTPServer(port, httpHandler))
}
