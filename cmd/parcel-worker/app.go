package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/broker/kafka"
	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/services/reconciler"
	"github.com/BearBump/ParcelBox/internal/services/tracking"
	"github.com/BearBump/ParcelBox/internal/storage/sqlstore"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

type workerStore interface {
	reconciler.Repository
	tracking.Repository
	Ping(ctx context.Context) error
}

type statusConsumer interface {
	ConsumeStatusChanges(ctx context.Context, handler func(ctx context.Context, ev messages.ParcelStatusChanged) error) error
	Close() error
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (store workerStore, closeFn func(), err error)
	newCache    func(cfg *config.Config) cache.BytesCache
	newConsumer func(cfg *config.Config, topic, group string) statusConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := sqlstore.Open(cfg.Database)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			return rediscache.New(cfg.Redis.Addr())
		},
		newConsumer: func(cfg *config.Config, topic, group string) statusConsumer {
			return kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)
		},
	}
}

type workerSettings struct {
	httpAddr         string
	topic            string
	consumerGroup    string
	pollInterval     time.Duration
	batchSize        int
	concurrency      int
	trackingCacheTTL time.Duration
}

func workerSettingsFrom(cfg *config.Config) workerSettings {
	s := workerSettings{
		httpAddr:         cfg.ParcelBox.WorkerHTTPAddr,
		topic:            cfg.Kafka.ParcelStatusTopicName,
		consumerGroup:    cfg.ParcelBox.KafkaConsumerGroup,
		pollInterval:     time.Duration(cfg.ParcelBox.WorkerPollIntervalSeconds) * time.Second,
		batchSize:        cfg.ParcelBox.WorkerBatchSize,
		concurrency:      cfg.ParcelBox.WorkerConcurrency,
		trackingCacheTTL: time.Duration(cfg.ParcelBox.TrackingCacheTTLSeconds) * time.Second,
	}
	if s.httpAddr == "" {
		s.httpAddr = ":8082"
	}
	if s.topic == "" {
		s.topic = "parcel.status-changed"
	}
	if s.consumerGroup == "" {
		s.consumerGroup = "parcel-worker"
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 30 * time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.trackingCacheTTL <= 0 {
		s.trackingCacheTTL = 10 * time.Minute
	}
	return s
}

// RunParcelWorker runs the reconciler loop, the status event consumer and
// the worker HTTP server until ctx is done.
func RunParcelWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	s := workerSettingsFrom(cfg)

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	m := metrics.NewCollector()
	track := tracking.New(store, f.newCache(cfg), s.trackingCacheTTL)
	rec := reconciler.New(store, track, m).
		WithSettings(s.pollInterval, s.batchSize, s.concurrency)

	consumer := f.newConsumer(cfg, s.topic, s.consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- rec.Run(ctx) }()
	go func() { errCh <- consumeStatusChanges(ctx, consumer, rec) }()
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    s.httpAddr,
			swaggerPath: swaggerPath,
			reconciler:  rec,
			metrics:     m,
			ready:       store.Ping,
			settings:    s,
		})
	}()

	// The first exit decides the result; the rest stop with ctx.
	err = <-errCh
	cancel()
	for i := 0; i < 2; i++ {
		<-errCh
	}
	return err
}

// consumeStatusChanges keeps the consumer alive across broker errors.
// Handler failures are left to the reconciler's next scan instead of
// blocking the partition.
func consumeStatusChanges(ctx context.Context, c statusConsumer, rec *reconciler.Reconciler) error {
	handler := func(ctx context.Context, ev messages.ParcelStatusChanged) error {
		if err := rec.HandleStatusChanged(ctx, ev); err != nil {
			slog.Warn("status event deferred to reconciler", "parcel_number", ev.ParcelNumber, "error", err.Error())
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		err := c.ConsumeStatusChanges(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("consumer returned without error")
		}
		wait := b.NextBackOff()
		slog.Error("status consumer stopped, restarting", "error", err.Error(), "wait", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
