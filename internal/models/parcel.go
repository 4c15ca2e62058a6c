package models

import "time"

type ParcelStatus string

const (
	ParcelStatusPacked    ParcelStatus = "packed"
	ParcelStatusSent      ParcelStatus = "sent"
	ParcelStatusReceived  ParcelStatus = "received"
	ParcelStatusDelivered ParcelStatus = "delivered"
)

func (s ParcelStatus) Valid() bool {
	switch s {
	case ParcelStatusPacked, ParcelStatusSent, ParcelStatusReceived, ParcelStatusDelivered:
		return true
	}
	return false
}

// parcelTransitions lists the forward moves allowed from each status.
// delivered is terminal.
// Shipped reports whether the parcel has left the pickup location and is not
// yet delivered. Only shipped parcels get a tracking record.
func (s ParcelStatus) Shipped() bool {
	return s == ParcelStatusSent || s == ParcelStatusReceived
}

var parcelTransitions = map[ParcelStatus][]ParcelStatus{
	ParcelStatusPacked:   {ParcelStatusSent, ParcelStatusDelivered},
	ParcelStatusSent:     {ParcelStatusReceived, ParcelStatusDelivered},
	ParcelStatusReceived: {ParcelStatusDelivered},
}

func CanTransition(from, to ParcelStatus) bool {
	for _, next := range parcelTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Parcel struct {
	ParcelNumber   string         `db:"parcel_number" json:"parcelNumber"`
	PickupLocation string         `db:"pickup_location" json:"pickupLocation"`
	Destination    string         `db:"destination" json:"destination"`
	AgentID        string         `db:"agent_id" json:"agentId"`
	SupportID      string         `db:"support_id" json:"supportId"`
	Devices        StringList     `db:"devices" json:"devices"`
	Accessories    AccessoryItems `db:"accessories" json:"accessories"`
	Sender         string         `db:"sender" json:"sender"`
	Receiver       string         `db:"receiver" json:"receiver"`
	Status         ParcelStatus   `db:"status" json:"status"`
	Version        int64          `db:"version" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

type ParcelCreateInput struct {
	PickupLocation string
	Destination    string
	AgentID        string
	DeviceIDs      []string
	Accessories    []AccessoryItem
	Sender         string
	Receiver       string
	// IdempotencyKey, when set, makes a replayed request fail instead of
	// reserving stock twice.
	IdempotencyKey string
}

type ParcelAppendInput struct {
	ParcelNumber   string
	AgentID        string
	DeviceIDs      []string
	Accessories    []AccessoryItem
	IdempotencyKey string
}
