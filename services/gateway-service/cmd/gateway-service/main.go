package main

import (
	"context"
	"strings"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
	"github.com/physiobook/physiobook/libs/config"
	"github.com/physiobook/physiobook/libs/httpx"
	otelx "github.com/physiobook/physiobook/libs/otel"
	"github.com/physiobook/physiobook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.Load()
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "dev-secret")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifier.JWKS = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_SECONDS", 300, time.Second))
	}

	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	codePerMinute := config.Int("CODE_RATE_LIMIT_PER_MINUTE", 10)
	failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)

	var general, codeGate httpx.Limiter
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		prefix := config.String("RATE_LIMIT_PREFIX", "rl")
		general = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, prefix)
		codeGate = httpx.NewRedisRateLimiter(rdb, codePerMinute, time.Minute, prefix+":code")
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "code_per_minute", codePerMinute, "redis_addr", addr)
	} else {
		general = httpx.NewRateLimiter(perMinute, time.Minute)
		codeGate = httpx.NewRateLimiter(codePerMinute, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute, "code_per_minute", codePerMinute)
	}

	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, upstreams{
		Auth:    mustParseURL(config.String("AUTH_URL", "http://auth-service:8081")),
		Booking: mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		Clinic:  mustParseURL(config.String("CLINIC_URL", "http://clinic-service:8084")),
	}, verifier, httpx.RateLimit(codeGate, nil, logger, failOpen))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DefaultCORSPolicy(
			config.List("CORS_ALLOWED_ORIGINS", ""),
			config.Bool("CORS_ALLOW_CREDENTIALS", false),
			config.Duration("CORS_MAX_AGE_SECONDS", 600, time.Second),
		)),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithoutIdentityHeaders,
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10, time.Second)),
		httpx.RateLimit(general, nil, logger, failOpen),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	runtime.Serve(ctx, logger, runtime.NewHTTPServer(port, handler))
}
