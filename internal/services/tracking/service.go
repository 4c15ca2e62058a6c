package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/cache"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"
)

type Repository interface {
	GetParcel(ctx context.Context, parcelNumber string) (*models.Parcel, error)
	InsertTracking(ctx context.Context, r *models.TrackingRecord) error
	GetTracking(ctx context.Context, parcelNumber string) (*models.TrackingRecord, error)
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	cacheTTL time.Duration
	now      func() time.Time
}

func New(repo Repository, c cache.BytesCache, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, cacheTTL: cacheTTL, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate writes the tracking record for a sent or received parcel. A parcel
// gets at most one record; a second call, or a lost insert race, is a
// TRACKING_EXISTS conflict.
func (s *Service) Generate(ctx context.Context, parcelNumber string) (*models.TrackingRecord, error) {
	if parcelNumber == "" {
		return nil, apperr.Validation("parcelNumber is required")
	}

	p, err := s.repo.GetParcel(ctx, parcelNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeParcelNotFound, "parcel %s not found", parcelNumber)
	}
	if err != nil {
		return nil, err
	}
	if !p.Status.Shipped() {
		return nil, apperr.InvalidTransition("parcel %s is %s, tracking starts once it is sent", parcelNumber, p.Status)
	}

	rec := Synthesize(p, s.now())
	if err := s.repo.InsertTracking(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeTrackingExists, "tracking for parcel %s already exists", parcelNumber)
		}
		return nil, err
	}

	s.putCache(ctx, rec)
	slog.Info("tracking generated", "parcel_number", parcelNumber, "expected_delivery", rec.ExpectedDelivery)
	return rec, nil
}

// EnsureGenerated is Generate for repair paths: an existing record counts as
// success, and so does a parcel that is no longer shipped. created reports
// whether this call wrote it.
func (s *Service) EnsureGenerated(ctx context.Context, parcelNumber string) (created bool, err error) {
	_, err = s.Generate(ctx, parcelNumber)
	switch apperr.CodeOf(err) {
	case apperr.CodeTrackingExists, apperr.CodeInvalidTransition:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResolveCurrent returns the state of the parcel at the current clock. Only
// the stored record is cached; the status is derived on every call.
func (s *Service) ResolveCurrent(ctx context.Context, parcelNumber string) (*models.TrackingView, error) {
	if parcelNumber == "" {
		return nil, apperr.Validation("parcelNumber is required")
	}

	rec, ok := s.getCache(ctx, parcelNumber)
	if !ok {
		var err error
		rec, err = s.repo.GetTracking(ctx, parcelNumber)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeTrackingNotFound, "no tracking for parcel %s", parcelNumber)
		}
		if err != nil {
			return nil, err
		}
		s.putCache(ctx, rec)
	}

	return Resolve(rec, s.now().UTC()), nil
}

func (s *Service) getCache(ctx context.Context, parcelNumber string) (*models.TrackingRecord, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, recordKey(parcelNumber))
	if err != nil || !ok {
		return nil, false
	}
	var rec models.TrackingRecord
	if json.Unmarshal(b, &rec) != nil {
		return nil, false
	}
	return &rec, true
}

func (s *Service) putCache(ctx context.Context, rec *models.TrackingRecord) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, recordKey(rec.ParcelNumber), b, s.cacheTTL); err != nil {
		slog.Warn("tracking cache set failed", "parcel_number", rec.ParcelNumber, "error", err.Error())
	}
}

func recordKey(parcelNumber string) string {
	return fmt.Sprintf("tracking:%s:record", parcelNumber)
}
