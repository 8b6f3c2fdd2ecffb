// Command exuberantd serves the HTTP API in front of a Redis-compatible
// store. Configuration is environment-only:
//
//	REDIS_ADDR         store address (default localhost:6379)
//	LISTEN_ADDR        HTTP listen address (default :8080)
//	ADMIN_EMAIL        account granted the developer badge at signup
//	LEGACY_HMAC_SECRET enables verification of imported credentials
//	COOKIE_SECURE      "1" marks the session cookie Secure
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	exuberant "github.com/exuberant-im/exuberant"
	"github.com/exuberant-im/exuberant/httpapi"
	"github.com/exuberant-im/exuberant/metrics/export/prometheus"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	listenAddr := envOr("LISTEN_ADDR", ":8080")

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = client.Close() }()

	cfg := exuberantConfig()

	engine, err := exuberant.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMailer(logMailer{log: logger}).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rtt, err := engine.Ping(ctx)
	if err != nil {
		return err
	}
	logger.Info("store reachable", "addr", redisAddr, "rtt", rtt)

	gin.SetMode(gin.ReleaseMode)
	api := httpapi.NewServer(engine, httpapi.Config{
		SecureCookie: os.Getenv("COOKIE_SECURE") == "1",
	}, logger)

	router := api.Router()
	router.GET("/metrics", gin.WrapH(prometheus.NewPrometheusExporter(engine).Handler()))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", listenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func exuberantConfig() exuberant.Config {
	var cfg exuberant.Config
	cfg.AdminEmail = os.Getenv("ADMIN_EMAIL")
	if secret := os.Getenv("LEGACY_HMAC_SECRET"); secret != "" {
		cfg.Password.LegacyKey = []byte(secret)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// logMailer is the development mail transport: it logs instead of
// delivering. Wire a real transport before exposing registration.
type logMailer struct {
	log *slog.Logger
}

func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("mail dispatched", "to", to, "subject", subject, "body", body)
	return nil
}
