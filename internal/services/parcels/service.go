package parcels

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/broker/messages"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/ledger"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	maxConflictRetries = 5
	maxNumberAttempts  = 5
	searchLimit        = 50
	maxRequestKeyLen   = 128
)

type Repository interface {
	storage.Transactor
	GetParcel(ctx context.Context, parcelNumber string) (*models.Parcel, error)
	ListParcelsByAgent(ctx context.Context, agentID string, status models.ParcelStatus) ([]*models.Parcel, error)
	ListActiveParcelsBySupport(ctx context.Context, supportID string) ([]*models.Parcel, error)
	ListActiveParcels(ctx context.Context) ([]*models.Parcel, error)
	SearchActiveParcels(ctx context.Context, substr string, limit int) ([]*models.Parcel, error)
}

type TrackingGenerator interface {
	Generate(ctx context.Context, parcelNumber string) (*models.TrackingRecord, error)
}

type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, ev messages.ParcelStatusChanged) error
}

// StatusResult is the outcome of AdvanceStatus. Warning is set when the
// status committed but tracking synthesis did not.
type StatusResult struct {
	Parcel   *models.Parcel         `json:"parcel"`
	Tracking *models.TrackingRecord `json:"tracking,omitempty"`
	Warning  string                 `json:"warning,omitempty"`
}

type Service struct {
	repo      Repository
	tracking  TrackingGenerator
	publisher EventPublisher
	metrics   *metrics.Collector

	newNumber  func() string
	newBackOff func() backoff.BackOff
}

func New(repo Repository, tracking TrackingGenerator, publisher EventPublisher, m *metrics.Collector) *Service {
	return &Service{
		repo:      repo,
		tracking:  tracking,
		publisher: publisher,
		metrics:   m,
		newNumber: NewParcelNumber,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return b
		},
	}
}

func (s *Service) WithNumberGenerator(fn func() string) *Service {
	s.newNumber = fn
	return s
}

// NewParcelNumber returns PCL + the last six digits of the unix millis + four
// random digits.
func NewParcelNumber() string {
	return fmt.Sprintf("PCL%06d%04d", time.Now().UnixMilli()%1_000_000, rand.IntN(10_000))
}

func (s *Service) CreateParcel(ctx context.Context, in models.ParcelCreateInput, actingSupportID string) (*models.Parcel, error) {
	in.PickupLocation = strings.TrimSpace(in.PickupLocation)
	in.Destination = strings.TrimSpace(in.Destination)
	in.AgentID = strings.TrimSpace(in.AgentID)
	switch {
	case actingSupportID == "":
		return nil, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "acting support user is required")
	case in.PickupLocation == "":
		return nil, apperr.Validation("pickupLocation is required")
	case in.Destination == "":
		return nil, apperr.Validation("destination is required")
	case in.AgentID == "":
		return nil, apperr.Validation("agentId is required")
	case len(in.DeviceIDs) == 0:
		return nil, apperr.Validation("at least one device is required")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) > maxRequestKeyLen {
		return nil, apperr.Validation("idempotencyKey must be at most %d characters", maxRequestKeyLen)
	}

	var created *models.Parcel
	err := s.withTransaction(ctx, func(tx storage.Tx) error {
		number, err := s.freeNumber(ctx, tx)
		if err != nil {
			return err
		}
		if err := claimRequest(ctx, tx, in.IdempotencyKey, number); err != nil {
			return err
		}

		a := ledger.Assignment{
			SupportID:    actingSupportID,
			AgentID:      in.AgentID,
			UserID:       firstNonEmpty(in.Receiver, in.AgentID, actingSupportID),
			ParcelNumber: number,
		}
		if _, err := ledger.ReserveDevices(ctx, tx, in.DeviceIDs, a); err != nil {
			return err
		}
		if err := ledger.ReserveAccessories(ctx, tx, in.Accessories); err != nil {
			return err
		}

		p := &models.Parcel{
			ParcelNumber:   number,
			PickupLocation: in.PickupLocation,
			Destination:    in.Destination,
			AgentID:        in.AgentID,
			SupportID:      actingSupportID,
			Devices:        append(models.StringList{}, in.DeviceIDs...),
			Accessories:    append(models.AccessoryItems{}, in.Accessories...),
			Sender:         in.Sender,
			Receiver:       in.Receiver,
			Status:         models.ParcelStatusPacked,
		}
		if err := tx.InsertParcel(ctx, p); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				// number taken by a concurrent create; rerun with a new one
				return storage.ErrVersionConflict
			}
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("parcel created", "parcel_number", created.ParcelNumber, "devices", len(created.Devices), "support_id", actingSupportID)
	return created, nil
}

// AppendToParcel adds devices and accessories to an undelivered parcel. Both
// lists are appended as given, so a retried request without an idempotency
// key appends twice.
func (s *Service) AppendToParcel(ctx context.Context, in models.ParcelAppendInput, actingSupportID string) (*models.Parcel, error) {
	switch {
	case actingSupportID == "":
		return nil, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "acting support user is required")
	case strings.TrimSpace(in.ParcelNumber) == "":
		return nil, apperr.Validation("parcelNumber is required")
	case len(in.DeviceIDs) == 0 && len(in.Accessories) == 0:
		return nil, apperr.Validation("at least one device or accessory is required")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) > maxRequestKeyLen {
		return nil, apperr.Validation("idempotencyKey must be at most %d characters", maxRequestKeyLen)
	}

	var updated *models.Parcel
	err := s.withTransaction(ctx, func(tx storage.Tx) error {
		p, err := tx.GetParcel(ctx, in.ParcelNumber)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(apperr.CodeParcelNotFound, "parcel %s not found", in.ParcelNumber)
		}
		if err != nil {
			return err
		}
		if p.Status == models.ParcelStatusDelivered {
			return apperr.InvalidTransition("parcel %s is delivered", p.ParcelNumber)
		}
		if err := claimRequest(ctx, tx, in.IdempotencyKey, p.ParcelNumber); err != nil {
			return err
		}

		agentID := firstNonEmpty(strings.TrimSpace(in.AgentID), p.AgentID)
		if len(in.DeviceIDs) > 0 {
			a := ledger.Assignment{
				SupportID:    actingSupportID,
				AgentID:      agentID,
				UserID:       firstNonEmpty(p.Receiver, agentID, actingSupportID),
				ParcelNumber: p.ParcelNumber,
			}
			if _, err := ledger.ReserveDevices(ctx, tx, in.DeviceIDs, a); err != nil {
				return err
			}
		}
		if err := ledger.ReserveAccessories(ctx, tx, in.Accessories); err != nil {
			return err
		}

		v := p.Version
		p.Devices = append(p.Devices, in.DeviceIDs...)
		p.Accessories = append(p.Accessories, in.Accessories...)
		if err := tx.UpdateParcel(ctx, p, v); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("parcel appended", "parcel_number", updated.ParcelNumber, "devices", len(in.DeviceIDs), "accessories", len(in.Accessories))
	return updated, nil
}

// AdvanceStatus moves a parcel forward. delivered releases its devices in the
// same transaction; sent triggers tracking synthesis after commit.
func (s *Service) AdvanceStatus(ctx context.Context, parcelNumber, targetStatus string) (*StatusResult, error) {
	target := models.ParcelStatus(strings.ToLower(strings.TrimSpace(targetStatus)))
	if strings.TrimSpace(parcelNumber) == "" {
		return nil, apperr.Validation("parcelNumber is required")
	}
	if !target.Valid() {
		return nil, apperr.Validation("unknown parcel status %q", targetStatus)
	}

	var (
		p    *models.Parcel
		from models.ParcelStatus
	)
	err := s.withTransaction(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetParcel(ctx, parcelNumber)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(apperr.CodeParcelNotFound, "parcel %s not found", parcelNumber)
		}
		if err != nil {
			return err
		}
		if !models.CanTransition(cur.Status, target) {
			return apperr.InvalidTransition("parcel %s cannot move from %s to %s", parcelNumber, cur.Status, target)
		}

		if target == models.ParcelStatusDelivered {
			if err := ledger.ReleaseDevices(ctx, tx, cur.Devices, models.DeviceStatusDelivered); err != nil {
				return err
			}
		}

		from = cur.Status
		v := cur.Version
		cur.Status = target
		if err := tx.UpdateParcel(ctx, cur, v); err != nil {
			return err
		}
		p = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ParcelTransition(string(target))
	slog.Info("parcel status changed", "parcel_number", parcelNumber, "from", from, "to", target)

	res := &StatusResult{Parcel: p}
	if target == models.ParcelStatusSent && s.tracking != nil {
		rec, err := s.tracking.Generate(ctx, parcelNumber)
		switch {
		case err == nil:
			res.Tracking = rec
			s.metrics.TrackingGenerated("api")
		case apperr.CodeOf(err) == apperr.CodeTrackingExists:
		default:
			s.metrics.TrackingFailure()
			res.Warning = "parcel marked as sent but tracking could not be generated; it will be retried"
			slog.Error("tracking generation failed after sent", "parcel_number", parcelNumber, "error", err.Error())
		}
	}

	s.publish(ctx, messages.ParcelStatusChanged{
		ParcelNumber:    p.ParcelNumber,
		From:            string(from),
		To:              string(target),
		AgentID:         p.AgentID,
		SupportID:       p.SupportID,
		ChangedAt:       p.UpdatedAt,
		TrackingWarning: res.Warning,
	})
	return res, nil
}

func (s *Service) Get(ctx context.Context, parcelNumber string) (*models.Parcel, error) {
	if strings.TrimSpace(parcelNumber) == "" {
		return nil, apperr.Validation("parcelNumber is required")
	}
	p, err := s.repo.GetParcel(ctx, parcelNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeParcelNotFound, "parcel %s not found", parcelNumber)
	}
	return p, err
}

func (s *Service) ListByAgent(ctx context.Context, agentID, status string) ([]*models.Parcel, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperr.Validation("agentId is required")
	}
	st := models.ParcelStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperr.Validation("unknown parcel status %q", status)
	}
	return s.repo.ListParcelsByAgent(ctx, agentID, st)
}

func (s *Service) ListBySupport(ctx context.Context, supportID string) ([]*models.Parcel, error) {
	if supportID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "acting support user is required")
	}
	return s.repo.ListActiveParcelsBySupport(ctx, supportID)
}

func (s *Service) ListActive(ctx context.Context) ([]*models.Parcel, error) {
	return s.repo.ListActiveParcels(ctx)
}

func (s *Service) Search(ctx context.Context, query string) ([]*models.Parcel, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	return s.repo.SearchActiveParcels(ctx, query, searchLimit)
}

// withTransaction reruns fn in a fresh transaction while it loses version
// races, then gives up with a Conflict.
func (s *Service) withTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), maxConflictRetries), ctx)
	err := backoff.Retry(func() error {
		err := s.repo.InTx(ctx, fn)
		if errors.Is(err, storage.ErrVersionConflict) {
			s.metrics.LedgerConflict()
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, b)
	if errors.Is(err, storage.ErrVersionConflict) {
		return apperr.Wrap(err, apperr.KindConflict, apperr.CodeConflict, "concurrent update, try again")
	}
	return err
}

func (s *Service) freeNumber(ctx context.Context, tx storage.Tx) (string, error) {
	for i := 0; i < maxNumberAttempts; i++ {
		n := s.newNumber()
		_, err := tx.GetParcel(ctx, n)
		if errors.Is(err, storage.ErrNotFound) {
			return n, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not allocate a free parcel number")
}

// claimRequest is a no-op without a key. The claim rolls back with the rest of
// the transaction, so a failed request can be retried with the same key.
func claimRequest(ctx context.Context, tx storage.Tx, key, parcelNumber string) error {
	if key == "" {
		return nil
	}
	err := tx.ClaimRequestKey(ctx, key, parcelNumber)
	if errors.Is(err, storage.ErrDuplicate) {
		return apperr.Conflict(apperr.CodeDuplicateRequest, "request %s was already applied", key)
	}
	return err
}

func (s *Service) publish(ctx context.Context, ev messages.ParcelStatusChanged) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStatusChanged(ctx, ev); err != nil {
		slog.Warn("publish parcel status changed failed", "parcel_number", ev.ParcelNumber, "error", err.Error())
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
