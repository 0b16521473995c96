package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/sweeper"
	"github.com/hookline/hookline/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := logging.New("hookline-sweeper")

	shutdown, err := tracing.InitTracing(ctx, "hookline-sweeper")
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

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.SweeperPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("sweeper HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("sweeper HTTP server failed")
		}
	}()

	sw := sweeper.New(st, q, cfg.Engine, logger)
	go sw.Run(ctx)
	logger.Plain().WithFields(map[string]any{
		"cleanup_interval":  cfg.Engine.CleanupInterval.String(),
		"recovery_interval": cfg.Engine.RecoveryInterval.String(),
		"retention":         cfg.Engine.AttemptRetentionWindow.String(),
	}).Info("sweeper started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down sweeper")
	cancel()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("sweeper stopped")
}
