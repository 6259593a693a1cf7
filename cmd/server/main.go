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

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/sewagewatch/cso-live-service/internal/adapter/httpapi"
	"github.com/sewagewatch/cso-live-service/internal/adapter/httpcache"
	kafkaadapter "github.com/sewagewatch/cso-live-service/internal/adapter/kafka"
	"github.com/sewagewatch/cso-live-service/internal/config"
	"github.com/sewagewatch/cso-live-service/internal/database"
	"github.com/sewagewatch/cso-live-service/internal/live"
	"github.com/sewagewatch/cso-live-service/internal/observability"
	"github.com/sewagewatch/cso-live-service/internal/rainfall"
	"github.com/sewagewatch/cso-live-service/internal/refdata"
	"github.com/sewagewatch/cso-live-service/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	sinks := observability.MultiSink{
		observability.NewLogSink(logger),
		observability.NewMetricsSink(metrics),
	}

	// Audit sink is optional; enabled by configuring brokers.
	var audit *kafkaadapter.AuditSink
	if cfg.AuditEnabled() {
		audit = kafkaadapter.NewAuditSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger, metrics)
		sinks = append(sinks, audit)
		logger.Info("kafka audit enabled", "topic", cfg.KafkaAuditTopic)
	} else {
		logger.Info("kafka audit disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL, clockwork.NewRealClock(), sinks)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	constituencies, err := refdata.LoadConstituencies(cfg.ConstituenciesCSV)
	if err != nil {
		logger.Error("constituency table load failed", "path", cfg.ConstituenciesCSV, "error", err)
		os.Exit(1)
	}
	beaches, err := refdata.LoadBeachRankings(cfg.BeachRankingsJSON)
	if err != nil {
		logger.Warn("beach rankings unavailable", "path", cfg.BeachRankingsJSON, "error", err)
	}
	rivers, err := refdata.LoadRiverRankings(cfg.RiverRankingsJSON)
	if err != nil {
		logger.Warn("river rankings unavailable", "path", cfg.RiverRankingsJSON, "error", err)
	}

	events := stream.NewStore(db, sinks)
	rain := rainfall.NewStore(db)
	annual := live.NewAnnual(events, rain)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close() //nolint:errcheck
	cache := httpcache.Filter(
		httpcache.NewRedisStore(redisClient),
		sinks,
		httpcache.WithPrefix(cfg.CachePrefix),
		httpcache.WithTTL(func(*http.Request) time.Duration { return cfg.CacheTTL }),
	)

	api := &httpapi.API{
		Events:         events,
		Rainfall:       rain,
		Annual:         annual,
		Constituencies: constituencies,
		Beaches:        beaches,
		Rivers:         rivers,
		Clock:          clockwork.NewRealClock(),
		Logger:         logger,
	}
	srv := httpapi.NewServer(cfg.HTTPAddr, api, readiness{db}, metrics, cache, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if audit != nil {
		if err := audit.Close(); err != nil {
			logger.Error("audit sink close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readiness gates /readyz on database connectivity. Cache and audit
// degradation are deliberately not readiness failures.
type readiness struct {
	db *database.DB
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	return r.db.Ping(ctx)
}
