package sqlstore

import (
	"context"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
)

const userColumns = `
  support_id, name, phone, email, password_hash, created_at`

// InsertUser returns storage.ErrDuplicate when the phone is already registered.
func (s *Store) InsertUser(ctx context.Context, u *models.SupportUser) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}

	err := insert(ctx, s.db, `
INSERT INTO support_users (`+userColumns+`)
VALUES (?,?,?,?,?,?)
ON CONFLICT DO NOTHING
`, u.SupportID, u.Name, u.Phone, u.Email, u.PasswordHash, u.CreatedAt)
	return errors.Wrap(err, "insert user")
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*models.SupportUser, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM support_users WHERE phone = ?`, phone)
}

func (s *Store) GetUserByID(ctx context.Context, supportID string) (*models.SupportUser, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM support_users WHERE support_id = ?`, supportID)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*models.SupportUser, error) {
	var u *models.SupportUser
	err := s.read(ctx, func() (err error) {
		u, err = getOne[models.SupportUser](ctx, s.db, query, arg)
		return err
	})
	return u, errors.Wrap(err, "get user")
}
