package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"url-analyzer/internal/analyzer"
	"url-analyzer/internal/config"
)

func main() {
	cfg, parser, err := config.ParseServer(os.Args[1:])
	if err != nil {
		if parser != nil {
			parser.FatalIfErrorf(err)
		}
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	// === Logging ===
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log configuration")
	}

	// === Metrics ===
	metrics := analyzer.NewMetrics(prometheus.DefaultRegisterer)
	observer := analyzer.Observers{analyzer.LogObserver{Log: logger}, metrics}

	// === Analyzer (+ cache in front of it) ===
	core, err := analyzer.NewAnalyzer(cfg.Analyzer.Options(observer))
	if err != nil {
		logger.WithError(err).Fatal("Invalid analyzer configuration")
	}
	var svc analyzer.Service = core

	var store analyzer.Store
	switch cfg.Cache {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		store = analyzer.NewRedisStore(client)
		logger.WithField("addr", cfg.RedisAddr).Info("Caching reports in redis")
	case "memory":
		store = analyzer.NewMemoryStore()
		logger.Info("Caching reports in memory")
	}
	if store != nil {
		cached := analyzer.NewCachedService(core, store, cfg.CacheTTL, observer)
		cached.Timeout = cfg.AnalysisTimeout
		svc = cached
	}

	// === Routes ===
	// Rate limit per client IP; probing every link of a page is expensive.
	limiter := tollbooth.NewLimiter(cfg.RateLimit, nil)
	limiter.SetMessage("Too many analysis requests, slow down.")

	mux := http.NewServeMux()
	mux.Handle("/", analyzer.IndexHandler(logger))
	mux.Handle("/analyze", tollbooth.LimitHandler(limiter, analyzer.AnalyzeHandler(svc, logger, cfg.AnalysisTimeout)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", analyzer.HealthHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// === Start Server ===
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Server starting on :%s", cfg.Port)
		logger.Info("Metrics: http://localhost:" + cfg.Port + "/metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AnalysisTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
