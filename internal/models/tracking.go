package models

import (
	"database/sql/driver"
	"time"
)

// Synthetic tracking statuses.
const (
	TrackingStatusPending        = "Pending"
	TrackingStatusPickedUp       = "Picked Up"
	TrackingStatusInTransit      = "In Transit"
	TrackingStatusOutForDelivery = "Out for Delivery"
	TrackingStatusDelivered      = "Delivered"

	TrackingLocationUnknown    = "Unknown"
	TrackingLocationCheckpoint = "Checkpoint 1"
)

type TrackingEntry struct {
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

type TrackingHistory []TrackingEntry

func (h TrackingHistory) Value() (driver.Value, error) {
	if h == nil {
		h = TrackingHistory{}
	}
	return marshalColumn(h)
}

func (h *TrackingHistory) Scan(src any) error {
	return unmarshalColumn(src, h)
}

type TrackingRecord struct {
	ParcelNumber     string          `db:"parcel_number" json:"parcelNumber"`
	TrackingHistory  TrackingHistory `db:"tracking_history" json:"trackingHistory"`
	ExpectedDelivery time.Time       `db:"expected_delivery" json:"expectedDelivery"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// TrackingView is the resolved state of a tracking record at a point in time.
type TrackingView struct {
	ParcelNumber     string          `json:"parcelNumber"`
	Status           string          `json:"status"`
	Location         string          `json:"location"`
	History          TrackingHistory `json:"history"`
	ExpectedDelivery time.Time       `json:"expectedDelivery"`
}
