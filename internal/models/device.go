package models

import "time"

type DeviceStatus string

const (
	DeviceStatusAvailable DeviceStatus = "available"
	DeviceStatusAssigned  DeviceStatus = "assigned"
	DeviceStatusDelivered DeviceStatus = "delivered"
	DeviceStatusDamaged   DeviceStatus = "damaged"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusAvailable, DeviceStatusAssigned, DeviceStatusDelivered, DeviceStatusDamaged:
		return true
	}
	return false
}

type Device struct {
	DeviceID      string       `db:"device_id" json:"deviceId"`
	DeviceName    string       `db:"device_name" json:"deviceName"`
	Status        DeviceStatus `db:"status" json:"status"`
	SupportID     string       `db:"support_id" json:"supportId"`
	AgentID       string       `db:"agent_id" json:"agentId"`
	UserID        string       `db:"user_id" json:"userId"`
	ParcelNumber  string       `db:"parcel_number" json:"parcelNumber,omitempty"`
	InventoryFlag bool         `db:"inventory_flag" json:"inventoryFlag"`
	Version       int64        `db:"version" json:"-"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`
}

// HasAssignment reports whether every assignment field is set.
func (d *Device) HasAssignment() bool {
	return d.SupportID != "" && d.AgentID != "" && d.UserID != ""
}

// AssignmentConsistent checks that available devices carry no assignment
// and every other status carries a complete one.
func (d *Device) AssignmentConsistent() bool {
	if d.Status == DeviceStatusAvailable {
		return d.SupportID == "" && d.AgentID == "" && d.UserID == ""
	}
	return d.HasAssignment()
}

// ClearAssignment returns the device to loose inventory.
func (d *Device) ClearAssignment() {
	d.SupportID = ""
	d.AgentID = ""
	d.UserID = ""
	d.ParcelNumber = ""
}
