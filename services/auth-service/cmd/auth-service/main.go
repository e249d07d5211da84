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
	"github.com/physiobook/physiobook/services/auth-service/internal/handlers"
	"github.com/physiobook/physiobook/services/auth-service/internal/identity"
	"github.com/physiobook/physiobook/services/auth-service/internal/storage"
	"github.com/physiobook/physiobook/services/auth-service/internal/tokens"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9081")
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

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	store := storage.NewStore(pool, outboxRepo)
	svc := identity.NewService(store, signer, logger, identity.Config{
		AccessTTL:    config.Duration("ACCESS_TTL_MINUTES", 60, time.Minute),
		RefreshTTL:   config.Duration("REFRESH_TTL_HOURS", 720, time.Hour),
		ResetTTL:     config.Duration("RESET_TTL_MINUTES", 30, time.Minute),
		ResetURLBase: config.String("RESET_URL_BASE", "http://localhost:3000/reset-password"),
	})
	authHandler := handlers.NewAuthHandler(svc, signer, storage.NewAuditRepository(pool), logger)

	health := grpcx.NewHealthServer(logger, service, db.ReadyCheck(pool))
	if err := health.Start(ctx, ":"+grpcPort, 10*time.Second); err != nil {
		logger.Error("grpc health server failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	authHandler.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "auth")
	runtime.Serve(ctx, logger, runtime.NewHTTPServer(port, httpHandler))
}

func buildSigner() (tokens.Signer, error) {
	if blobs := config.String("JWT_PRIVATE_KEYS_PEM", ""); blobs != "" {
		keys, err := tokens.ParseKeySet(blobs)
		if err != nil {
			return nil, err
		}
		signer, err := tokens.NewRotatingSigner(keys, config.String("JWT_ACTIVE_KID", ""), config.String("JWT_ROTATE_KEY", ""))
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	if pem := config.String("JWT_PRIVATE_KEY_PEM", ""); pem != "" {
		return tokens.NewRS256Signer([]byte(pem), config.String("JWT_KID", ""))
	}
	return tokens.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}
