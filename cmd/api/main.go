package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/hookline/internal/auth"
	"github.com/hookline/hookline/internal/cache"
	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/ingest"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("hookline-api")

	shutdown, err := tracing.InitTracing(ctx, "hookline-api")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := store.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()
	st := store.NewPostgres(pool)

	q, err := queue.NewNSQ(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.Topic)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer failed")
	}
	defer q.Stop()

	subs := cache.New(st, cfg.Engine.CacheTTL)
	svc := ingest.NewService(st, subs, q, logger)

	// Status-surface auth is opt-in; ingestion stays signature-authenticated.
	var statusAuth func(http.Handler) http.Handler
	if cfg.Auth.PublicKeyPEM != "" {
		validator, err := auth.NewJWTValidator(cfg.Auth.PublicKeyPEM, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			logger.Plain().WithError(err).Fatal("status api key invalid")
		}
		statusAuth = validator.Middleware
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	r := ingest.Router(svc, cfg.Engine.MaxBodyBytes, statusAuth)
	r.Get("/healthz", health.HTTPHandler(pool))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: r}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("api server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("api server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down api")
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("api stopped")
}
