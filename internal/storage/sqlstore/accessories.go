package sqlstore

import (
	"context"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const accessoryColumns = `
  accessory_id, name, specs, quantity, status, version, created_at, updated_at`

func (s *Store) InsertAccessory(ctx context.Context, a *models.Accessory) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.UpdatedAt = a.CreatedAt
	if a.Version == 0 {
		a.Version = 1
	}
	if a.Status == "" {
		a.Status = models.AccessoryStatusActive
	}

	err := insert(ctx, s.db, `
INSERT INTO accessories (`+accessoryColumns+`)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT DO NOTHING
`, a.AccessoryID, a.Name, a.Specs, a.Quantity, a.Status, a.Version, a.CreatedAt, a.UpdatedAt)
	return errors.Wrap(err, "insert accessory")
}

func (s *Store) GetAccessory(ctx context.Context, accessoryID string) (*models.Accessory, error) {
	var a *models.Accessory
	err := s.read(ctx, func() (err error) {
		a, err = getAccessory(ctx, s.db, accessoryID)
		return err
	})
	return a, err
}

// ListAccessories returns the catalog without damaged items.
func (s *Store) ListAccessories(ctx context.Context) ([]*models.Accessory, error) {
	var out []*models.Accessory
	err := s.read(ctx, func() (err error) {
		out, err = getMany[models.Accessory](ctx, s.db,
			`SELECT`+accessoryColumns+` FROM accessories WHERE status <> ? ORDER BY name, accessory_id`,
			models.AccessoryStatusDamaged)
		return err
	})
	return out, errors.Wrap(err, "list accessories")
}

func (t *txStore) GetAccessory(ctx context.Context, accessoryID string) (*models.Accessory, error) {
	return getAccessory(ctx, t.tx, accessoryID)
}

func (t *txStore) UpdateAccessory(ctx context.Context, a *models.Accessory, expectedVersion int64) error {
	now := t.now()
	err := casUpdate(ctx, t.tx, `
UPDATE accessories SET
  name = ?, specs = ?, quantity = ?, status = ?, version = version + 1, updated_at = ?
WHERE accessory_id = ? AND version = ?
`, a.Name, a.Specs, a.Quantity, a.Status, now, a.AccessoryID, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "update accessory")
	}
	a.Version = expectedVersion + 1
	a.UpdatedAt = now
	return nil
}

func getAccessory(ctx context.Context, q sqlx.ExtContext, accessoryID string) (*models.Accessory, error) {
	a, err := getOne[models.Accessory](ctx, q, `SELECT`+accessoryColumns+` FROM accessories WHERE accessory_id = ?`, accessoryID)
	return a, errors.Wrap(err, "get accessory")
}
