package sqlstore

import (
	"context"

	"github.com/pkg/errors"
)

// ClaimRequestKey records a client request key against the parcel it changed.
// A key seen before returns storage.ErrDuplicate. Concurrent claims of the
// same key serialize on the primary key, so only one transaction commits it.
func (t *txStore) ClaimRequestKey(ctx context.Context, key, parcelNumber string) error {
	err := insert(ctx, t.tx, `
INSERT INTO parcel_requests (request_key, parcel_number, created_at)
VALUES (?,?,?)
ON CONFLICT DO NOTHING
`, key, parcelNumber, t.now())
	return errors.Wrap(err, "claim request key")
}
