package sqlstore

import (
	"context"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const deviceColumns = `
  device_id, device_name, status, support_id, agent_id, user_id,
  parcel_number, inventory_flag, version, created_at, updated_at`

func (s *Store) InsertDevice(ctx context.Context, d *models.Device) error {
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = d.CreatedAt
	if d.Version == 0 {
		d.Version = 1
	}

	err := insert(ctx, s.db, `
INSERT INTO devices (`+deviceColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT DO NOTHING
`, d.DeviceID, d.DeviceName, d.Status, d.SupportID, d.AgentID, d.UserID,
		d.ParcelNumber, d.InventoryFlag, d.Version, d.CreatedAt, d.UpdatedAt)
	return errors.Wrap(err, "insert device")
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var d *models.Device
	err := s.read(ctx, func() (err error) {
		d, err = getDevice(ctx, s.db, deviceID)
		return err
	})
	return d, err
}

// ListDevices returns all devices, optionally filtered by status.
func (s *Store) ListDevices(ctx context.Context, status models.DeviceStatus) ([]*models.Device, error) {
	var out []*models.Device
	err := s.read(ctx, func() (err error) {
		if status == "" {
			out, err = getMany[models.Device](ctx, s.db, `SELECT`+deviceColumns+` FROM devices ORDER BY created_at, device_id`)
		} else {
			out, err = getMany[models.Device](ctx, s.db, `SELECT`+deviceColumns+` FROM devices WHERE status = ? ORDER BY created_at, device_id`, status)
		}
		return err
	})
	return out, errors.Wrap(err, "list devices")
}

func (t *txStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	return getDevice(ctx, t.tx, deviceID)
}

func (t *txStore) UpdateDevice(ctx context.Context, d *models.Device, expectedVersion int64) error {
	now := t.now()
	err := casUpdate(ctx, t.tx, `
UPDATE devices SET
  device_name = ?, status = ?, support_id = ?, agent_id = ?, user_id = ?,
  parcel_number = ?, inventory_flag = ?, version = version + 1, updated_at = ?
WHERE device_id = ? AND version = ?
`, d.DeviceName, d.Status, d.SupportID, d.AgentID, d.UserID,
		d.ParcelNumber, d.InventoryFlag, now, d.DeviceID, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "update device")
	}
	d.Version = expectedVersion + 1
	d.UpdatedAt = now
	return nil
}

func getDevice(ctx context.Context, q sqlx.ExtContext, deviceID string) (*models.Device, error) {
	d, err := getOne[models.Device](ctx, q, `SELECT`+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	return d, errors.Wrap(err, "get device")
}
