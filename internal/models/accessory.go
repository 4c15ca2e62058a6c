package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const (
	AccessoryStatusActive  = "active"
	AccessoryStatusDamaged = "damaged"
)

type AccessorySpecs struct {
	Type  string `json:"type,omitempty"`
	Power string `json:"power,omitempty"`
	Port  string `json:"port,omitempty"`
	Brand string `json:"brand,omitempty"`
}

func (s AccessorySpecs) Value() (driver.Value, error) {
	return marshalColumn(s)
}

func (s *AccessorySpecs) Scan(src any) error {
	return unmarshalColumn(src, s)
}

// Accessory is a stocked item. Quantity keeps the decimal text representation
// used by the legacy document store; callers parse it before arithmetic.
type Accessory struct {
	AccessoryID string         `db:"accessory_id" json:"accessoryId"`
	Name        string         `db:"name" json:"name"`
	Specs       AccessorySpecs `db:"specs" json:"specs"`
	Quantity    string         `db:"quantity" json:"quantity"`
	Status      string         `db:"status" json:"status"`
	Version     int64          `db:"version" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// AccessoryItem is a quantity of one accessory reserved against a parcel or
// requested on a ticket.
type AccessoryItem struct {
	AccessoryID string `json:"accessoryId"`
	Quantity    int    `json:"quantity"`
}

type AccessoryItems []AccessoryItem

func (a AccessoryItems) Value() (driver.Value, error) {
	if a == nil {
		a = AccessoryItems{}
	}
	return marshalColumn(a)
}

func (a *AccessoryItems) Scan(src any) error {
	return unmarshalColumn(src, a)
}

// StringList is an ordered list of ids stored as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return marshalColumn(l)
}

func (l *StringList) Scan(src any) error {
	return unmarshalColumn(src, l)
}

func marshalColumn(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json column")
	}
	return string(b), nil
}

func unmarshalColumn(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("unsupported json column type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(b, dst), "unmarshal json column")
}
