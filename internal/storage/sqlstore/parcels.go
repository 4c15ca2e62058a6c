package sqlstore

import (
	"context"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const parcelColumns = `
  parcel_number, pickup_location, destination, agent_id, support_id,
  devices, accessories, sender, receiver, status, version, created_at, updated_at`

func (s *Store) GetParcel(ctx context.Context, parcelNumber string) (*models.Parcel, error) {
	var p *models.Parcel
	err := s.read(ctx, func() (err error) {
		p, err = getParcel(ctx, s.db, parcelNumber)
		return err
	})
	return p, err
}

// ListParcelsByAgent returns the agent's parcels, optionally narrowed to one status.
func (s *Store) ListParcelsByAgent(ctx context.Context, agentID string, status models.ParcelStatus) ([]*models.Parcel, error) {
	query := `SELECT` + parcelColumns + ` FROM parcels WHERE agent_id = ?`
	args := []any{agentID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	return s.listParcels(ctx, query+` ORDER BY created_at DESC, parcel_number`, args...)
}

func (s *Store) ListActiveParcelsBySupport(ctx context.Context, supportID string) ([]*models.Parcel, error) {
	return s.listParcels(ctx, `SELECT`+parcelColumns+` FROM parcels
WHERE support_id = ? AND status <> ?
ORDER BY created_at DESC, parcel_number`, supportID, models.ParcelStatusDelivered)
}

func (s *Store) ListActiveParcels(ctx context.Context) ([]*models.Parcel, error) {
	return s.listParcels(ctx, `SELECT`+parcelColumns+` FROM parcels
WHERE status <> ?
ORDER BY created_at DESC, parcel_number`, models.ParcelStatusDelivered)
}

// SearchActiveParcels matches a case-insensitive substring of the parcel number.
func (s *Store) SearchActiveParcels(ctx context.Context, substr string, limit int) ([]*models.Parcel, error) {
	pattern := "%" + escapeLike(strings.ToLower(substr)) + "%"
	return s.listParcels(ctx, `SELECT`+parcelColumns+` FROM parcels
WHERE status <> ? AND LOWER(parcel_number) LIKE ? ESCAPE '\'
ORDER BY created_at DESC, parcel_number
LIMIT ?`, models.ParcelStatusDelivered, pattern, limit)
}

// ListShippedWithoutTracking returns sent or received parcels whose tracking
// record was never written, oldest first.
func (s *Store) ListShippedWithoutTracking(ctx context.Context, limit int) ([]*models.Parcel, error) {
	return s.listParcels(ctx, `SELECT`+prefixed("p.", parcelColumns)+` FROM parcels p
LEFT JOIN tracking_records t ON t.parcel_number = p.parcel_number
WHERE p.status IN (?, ?) AND t.parcel_number IS NULL
ORDER BY p.updated_at, p.parcel_number
LIMIT ?`, models.ParcelStatusSent, models.ParcelStatusReceived, limit)
}

func (s *Store) listParcels(ctx context.Context, query string, args ...any) ([]*models.Parcel, error) {
	var out []*models.Parcel
	err := s.read(ctx, func() (err error) {
		out, err = getMany[models.Parcel](ctx, s.db, query, args...)
		return err
	})
	return out, errors.Wrap(err, "list parcels")
}

func (t *txStore) GetParcel(ctx context.Context, parcelNumber string) (*models.Parcel, error) {
	return getParcel(ctx, t.tx, parcelNumber)
}

func (t *txStore) InsertParcel(ctx context.Context, p *models.Parcel) error {
	now := t.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1

	err := insert(ctx, t.tx, `
INSERT INTO parcels (`+parcelColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT DO NOTHING
`, p.ParcelNumber, p.PickupLocation, p.Destination, p.AgentID, p.SupportID,
		p.Devices, p.Accessories, p.Sender, p.Receiver, p.Status, p.Version, p.CreatedAt, p.UpdatedAt)
	return errors.Wrap(err, "insert parcel")
}

func (t *txStore) UpdateParcel(ctx context.Context, p *models.Parcel, expectedVersion int64) error {
	now := t.now()
	err := casUpdate(ctx, t.tx, `
UPDATE parcels SET
  pickup_location = ?, destination = ?, agent_id = ?, support_id = ?,
  devices = ?, accessories = ?, sender = ?, receiver = ?, status = ?,
  version = version + 1, updated_at = ?
WHERE parcel_number = ? AND version = ?
`, p.PickupLocation, p.Destination, p.AgentID, p.SupportID,
		p.Devices, p.Accessories, p.Sender, p.Receiver, p.Status,
		now, p.ParcelNumber, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "update parcel")
	}
	p.Version = expectedVersion + 1
	p.UpdatedAt = now
	return nil
}

func getParcel(ctx context.Context, q sqlx.ExtContext, parcelNumber string) (*models.Parcel, error) {
	p, err := getOne[models.Parcel](ctx, q, `SELECT`+parcelColumns+` FROM parcels WHERE parcel_number = ?`, parcelNumber)
	return p, errors.Wrap(err, "get parcel")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = " " + prefix + strings.TrimSpace(c)
	}
	return strings.Join(parts, ",")
}
