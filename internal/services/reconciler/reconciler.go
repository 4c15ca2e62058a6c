package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/models"
)

type Repository interface {
	ListShippedWithoutTracking(ctx context.Context, limit int) ([]*models.Parcel, error)
}

type TrackingEnsurer interface {
	EnsureGenerated(ctx context.Context, parcelNumber string) (bool, error)
}

// Reconciler finds sent or received parcels without a tracking record
// and synthesizes the missing record. It repairs the gap left when
// generation fails after the status change has committed.
type Reconciler struct {
	repo     Repository
	tracking TrackingEnsurer
	metrics  *metrics.Collector

	pollInterval time.Duration
	batchSize    int
	concurrency  int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalScanned        atomic.Int64
	totalGenerated      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, tracking TrackingEnsurer, m *metrics.Collector) *Reconciler {
	return &Reconciler{
		repo:              repo,
		tracking:          tracking,
		metrics:           m,
		pollInterval:      30 * time.Second,
		batchSize:         100,
		concurrency:       4,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Reconciler) WithSettings(pollInterval time.Duration, batchSize, concurrency int) *Reconciler {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	return r
}

// Trigger requests an immediate cycle. It never blocks.
func (r *Reconciler) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalScanned   int64      `json:"totalScanned"`
	TotalGenerated int64      `json:"totalGenerated"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Reconciler) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalScanned:   r.totalScanned.Load(),
		TotalGenerated: r.totalGenerated.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan and waits for every generation it started.
func (r *Reconciler) RunOnce(ctx context.Context) {
	r.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	parcels, err := r.repo.ListShippedWithoutTracking(ctx, r.batchSize)
	if err != nil {
		slog.Error("list shipped parcels without tracking", "error", err.Error())
		r.setLastError(err)
		return
	}
	r.totalScanned.Add(int64(len(parcels)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, p := range parcels {
		sem <- struct{}{}
		wg.Add(1)
		r.inFlight.Add(1)
		go func(parcelNumber string) {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			r.ensure(ctx, parcelNumber, "reconciler")
		}(p.ParcelNumber)
	}
	wg.Wait()
}

// HandleStatusChanged reacts to a parcel status event. Only transitions to
// sent need a tracking record; a received parcel that still lacks one is
// left to the scan.
func (r *Reconciler) HandleStatusChanged(ctx context.Context, ev messages.ParcelStatusChanged) error {
	if ev.To != string(models.ParcelStatusSent) {
		return nil
	}
	return r.ensure(ctx, ev.ParcelNumber, "consumer")
}

func (r *Reconciler) ensure(ctx context.Context, parcelNumber, source string) error {
	created, err := r.tracking.EnsureGenerated(ctx, parcelNumber)
	if err != nil {
		r.totalErrors.Add(1)
		r.setLastError(err)
		r.metrics.TrackingFailure()
		slog.Error("ensure tracking", "parcel_number", parcelNumber, "source", source, "error", err.Error())
		return err
	}
	if created {
		r.totalGenerated.Add(1)
		r.metrics.TrackingGenerated(source)
		slog.Info("tracking generated", "parcel_number", parcelNumber, "source", source)
	}
	return nil
}

func (r *Reconciler) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
