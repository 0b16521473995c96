package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/hookline/internal/cache"
	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
	"github.com/hookline/hookline/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("hookline-worker")

	shutdown, err := tracing.InitTracing(ctx, "hookline-worker")
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

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	subs := cache.New(st, cfg.Engine.CacheTTL)
	proc := worker.NewProcessor(
		st,
		subs,
		&http.Client{Timeout: cfg.Engine.DeliveryTimeout},
		deliveryPolicy(cfg),
		logger,
	)

	conf := nsq.NewConfig()
	conf.MaxInFlight = cfg.Worker.MaxInFlight
	// Requeue delays are ours, computed from the backoff policy.
	conf.MaxRequeueDelay = cfg.Engine.MaxRetryBackoff
	consumer, err := nsq.NewConsumer(cfg.NSQ.Topic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}
	consumer.AddConcurrentHandlers(worker.NSQHandler(proc, logger), cfg.Worker.Concurrency)

	startBacklogMonitor(cfg, logger)

	// Connecting directly to NSQD forces channel creation, instead of the
	// channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	// Lookupd is optional; single-nsqd deployments run without one.
	for _, addr := range lookupdAddrs(cfg) {
		if err := consumer.ConnectToNSQLookupd(addr); err != nil {
			logger.Plain().WithError(err).Fatal("connect to lookupd failed")
		}
	}

	logger.Plain().Info("worker service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker service")
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

// deliveryPolicy maps the engine config onto the processor's policy.
func deliveryPolicy(cfg config.Config) worker.Policy {
	return worker.Policy{
		MaxRetries: cfg.Engine.MaxRetries,
		Backoff: worker.BackoffPolicy{
			Initial:   cfg.Engine.InitialRetryDelay,
			Max:       cfg.Engine.MaxRetryBackoff,
			JitterPct: cfg.Engine.BackoffJitterPct,
		},
		ResponseBodyLimit: cfg.Engine.ResponseBodyLimit,
	}
}

// lookupdAddrs returns the lookupd endpoints to register with; none when
// the address is unset.
func lookupdAddrs(cfg config.Config) []string {
	if cfg.NSQ.LookupHTTPAddr == "" {
		return nil
	}
	return []string{cfg.NSQ.LookupHTTPAddr}
}

// startBacklogMonitor periodically reads channel depth from nsqd's HTTP
// stats endpoint into the backlog gauge.
func startBacklogMonitor(cfg config.Config, logger *logging.Logger) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		httpClient := &http.Client{Timeout: 5 * time.Second}

		for range ticker.C {
			nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)
			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				logger.Plain().WithError(err).Error("failed to get NSQ stats")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}

			err = json.NewDecoder(resp.Body).Decode(&stats)
			resp.Body.Close()
			if err != nil {
				logger.Plain().WithError(err).Error("failed to decode NSQ stats")
				continue
			}

			for _, topic := range stats.Topics {
				if topic.Name != cfg.NSQ.Topic {
					continue
				}
				for _, channel := range topic.Channels {
					if channel.Name == cfg.NSQ.WorkerChannel {
						metrics.UpdateWorkerBacklog(float64(channel.Depth))
					}
				}
			}
		}
	}()
}
