package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/broker/kafka"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/storage/sqlstore"
	"github.com/redis/go-redis/v9"
)

type parcelAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    parcelAPIOpts
	handler http.Handler
	closers []func()
}

func mustBootstrapParcelAPI() *parcelAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}
	s := apiSettingsFrom(cfg)

	st := mustOpenStoreWithRetry(cfg.Database, 60*time.Second)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	producer := kafka.NewProducer(cfg.Kafka.Brokers())

	h, err := newAPIHandler(s, apiDeps{
		store:     st,
		redis:     rdb,
		publisher: kafka.NewStatusPublisher(producer, s.statusTopic),
		metrics:   metrics.NewCollector(),
	}, swaggerPath)
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &parcelAPIApp{
		ctx:     ctx,
		cancel:  cancel,
		opts:    parcelAPIOpts{httpAddr: s.httpAddr},
		handler: h,
		closers: []func(){
			func() { _ = producer.Close() },
			func() { _ = rdb.Close() },
			st.Close,
		},
	}
}

// mustOpenStoreWithRetry waits for the database to accept connections.
// Compose starts postgres alongside the API, so the first attempts may fail.
func mustOpenStoreWithRetry(cfg config.DatabaseConfig, wait time.Duration) *sqlstore.Store {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := sqlstore.Open(cfg)
		if err == nil {
			return st
		}
		lastErr = err
		slog.Warn("database not ready", "driver", cfg.Driver, "error", err.Error())
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("database is not ready after %s: %v", wait, lastErr))
}

func (a *parcelAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *parcelAPIApp) Run() error {
	return runParcelAPI(a.ctx, a.opts, a.handler)
}
