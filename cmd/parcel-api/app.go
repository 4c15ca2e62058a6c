package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/api/httpapi"
	"github.com/BearBump/ParcelBox/internal/auth"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/services/inventory"
	"github.com/BearBump/ParcelBox/internal/services/parcels"
	"github.com/BearBump/ParcelBox/internal/services/tickets"
	"github.com/BearBump/ParcelBox/internal/services/tracking"
	"github.com/BearBump/ParcelBox/internal/services/users"
	"github.com/BearBump/ParcelBox/internal/storage/sqlstore"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type parcelAPIOpts struct {
	httpAddr string
	onListen func(httpAddr string)
}

type apiSettings struct {
	httpAddr         string
	jwtSecret        string
	tokenTTL         time.Duration
	legacyAuthHeader bool
	requestTimeout   time.Duration
	trackingCacheTTL time.Duration
	loginLimit       int
	statusTopic      string
}

func apiSettingsFrom(cfg *config.Config) apiSettings {
	s := apiSettings{
		httpAddr:         cfg.ParcelBox.HTTPAddr,
		jwtSecret:        cfg.ParcelBox.JWTSecret,
		tokenTTL:         time.Duration(cfg.ParcelBox.TokenTTLHours) * time.Hour,
		legacyAuthHeader: cfg.ParcelBox.LegacyAuthHeader,
		requestTimeout:   time.Duration(cfg.ParcelBox.RequestTimeoutSeconds) * time.Second,
		trackingCacheTTL: time.Duration(cfg.ParcelBox.TrackingCacheTTLSeconds) * time.Second,
		loginLimit:       cfg.ParcelBox.LoginRateLimitPerMinute,
		statusTopic:      cfg.Kafka.ParcelStatusTopicName,
	}
	if s.httpAddr == "" {
		s.httpAddr = ":8080"
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = auth.DefaultTTL
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 10 * time.Second
	}
	if s.trackingCacheTTL <= 0 {
		s.trackingCacheTTL = 10 * time.Minute
	}
	if s.loginLimit <= 0 {
		s.loginLimit = 10
	}
	if s.statusTopic == "" {
		s.statusTopic = "parcel.status-changed"
	}
	return s
}

// apiDeps are the long-lived clients the handler is built on. publisher may
// be nil, in which case status events are not published.
type apiDeps struct {
	store     *sqlstore.Store
	redis     *redis.Client
	publisher parcels.EventPublisher
	metrics   *metrics.Collector
}

func newAPIHandler(s apiSettings, deps apiDeps, swaggerPath string) (http.Handler, error) {
	if s.jwtSecret == "" {
		return nil, errors.New("parcelbox.jwt_secret is required")
	}

	guard := auth.NewGuard(s.jwtSecret, s.tokenTTL, s.legacyAuthHeader)
	track := tracking.New(deps.store, rediscache.NewWithClient(deps.redis), s.trackingCacheTTL)
	limiter := rediscache.NewRateLimiter(deps.redis, "parcelbox:")

	api := httpapi.New(
		users.New(deps.store, guard, limiter, s.loginLimit),
		inventory.New(deps.store),
		parcels.New(deps.store, track, deps.publisher, deps.metrics),
		track,
		tickets.New(deps.store),
	)
	return api.Router(httpapi.Options{
		Guard:          guard,
		Metrics:        deps.metrics,
		RequestTimeout: s.requestTimeout,
		SwaggerPath:    swaggerPath,
		Ready: func(r *http.Request) error {
			return deps.store.Ping(r.Context())
		},
	}), nil
}

func runParcelAPI(ctx context.Context, opts parcelAPIOpts, h http.Handler) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP API listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
