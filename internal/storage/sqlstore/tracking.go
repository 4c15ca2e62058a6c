package sqlstore

import (
	"context"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
)

const trackingColumns = `
  parcel_number, tracking_history, expected_delivery, created_at, updated_at`

// InsertTracking stores a record once per parcel. A second insert for the
// same parcel, including a lost race, returns storage.ErrDuplicate.
func (s *Store) InsertTracking(ctx context.Context, r *models.TrackingRecord) error {
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt

	err := insert(ctx, s.db, `
INSERT INTO tracking_records (`+trackingColumns+`)
VALUES (?,?,?,?,?)
ON CONFLICT DO NOTHING
`, r.ParcelNumber, r.TrackingHistory, r.ExpectedDelivery.UTC(), r.CreatedAt, r.UpdatedAt)
	return errors.Wrap(err, "insert tracking")
}

func (s *Store) GetTracking(ctx context.Context, parcelNumber string) (*models.TrackingRecord, error) {
	var r *models.TrackingRecord
	err := s.read(ctx, func() (err error) {
		r, err = getOne[models.TrackingRecord](ctx, s.db,
			`SELECT`+trackingColumns+` FROM tracking_records WHERE parcel_number = ?`, parcelNumber)
		return err
	})
	return r, errors.Wrap(err, "get tracking")
}
