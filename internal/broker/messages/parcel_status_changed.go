package messages

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ParcelStatusChanged is published after a parcel status change commits.
// The parcel number is used as the message key so events of one parcel stay
// ordered within a partition.
type ParcelStatusChanged struct {
	ParcelNumber string    `json:"parcel_number"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	AgentID      string    `json:"agent_id,omitempty"`
	SupportID    string    `json:"support_id,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`

	// TrackingWarning is set when the tracking record could not be written
	// right after the parcel was sent.
	TrackingWarning string `json:"tracking_warning,omitempty"`
}

func (m ParcelStatusChanged) Key() []byte {
	return []byte(m.ParcelNumber)
}

func DecodeParcelStatusChanged(b []byte) (ParcelStatusChanged, error) {
	var m ParcelStatusChanged
	if err := json.Unmarshal(b, &m); err != nil {
		return m, errors.Wrap(err, "decode parcel status changed")
	}
	if m.ParcelNumber == "" {
		return m, errors.New("parcel_number is required")
	}
	return m, nil
}
