package storage

import (
	"context"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits an existing unique key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrVersionConflict is returned when a conditional update matched no row
	// because the entity changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
)

// Tx is the view of the store available inside a scoped transaction.
// Updates are compare-and-swap on the version read earlier in the same
// transaction and bump it on success.
type Tx interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	UpdateDevice(ctx context.Context, d *models.Device, expectedVersion int64) error

	GetAccessory(ctx context.Context, accessoryID string) (*models.Accessory, error)
	UpdateAccessory(ctx context.Context, a *models.Accessory, expectedVersion int64) error

	GetParcel(ctx context.Context, parcelNumber string) (*models.Parcel, error)
	InsertParcel(ctx context.Context, p *models.Parcel) error
	UpdateParcel(ctx context.Context, p *models.Parcel, expectedVersion int64) error

	GetTicket(ctx context.Context, ticketNumber string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, t *models.Ticket, expectedVersion int64) error

	// ClaimRequestKey returns ErrDuplicate when key was already claimed.
	ClaimRequestKey(ctx context.Context, key, parcelNumber string) error
}

// Transactor runs fn in a single database transaction. A non-nil error from
// fn rolls everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
