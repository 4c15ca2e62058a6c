package models

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusAssigned TicketStatus = "assigned"
)

const TicketTypeParcelRequest = "parcel_request"

// ParseTicketStatus normalizes the spellings found in older ticket data
// ("unassigned", "Asigned", "Assigned").
func ParseTicketStatus(s string) (TicketStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "unassigned":
		return TicketStatusOpen, true
	case "assigned", "asigned":
		return TicketStatusAssigned, true
	}
	return "", false
}

type ChatMessage struct {
	Sender  string    `json:"sender"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

type ChatLog []ChatMessage

func (c ChatLog) Value() (driver.Value, error) {
	if c == nil {
		c = ChatLog{}
	}
	return marshalColumn(c)
}

func (c *ChatLog) Scan(src any) error {
	return unmarshalColumn(src, c)
}

type Ticket struct {
	TicketNumber     string         `db:"ticket_number" json:"ticketNumber"`
	Type             string         `db:"type" json:"type"`
	AgentID          string         `db:"agent_id" json:"agentId"`
	DevicesRequested int            `db:"devices_requested" json:"devicesRequested"`
	Accessories      AccessoryItems `db:"accessories" json:"accessories"`
	Status           TicketStatus   `db:"status" json:"status"`
	SupportID        string         `db:"support_id" json:"supportId,omitempty"`
	Chat             ChatLog        `db:"chat" json:"chat"`
	Version          int64          `db:"version" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

type TicketCreateInput struct {
	Type             string
	AgentID          string
	DevicesRequested int
	Accessories      []AccessoryItem
}

// Scan normalizes legacy spellings stored by older clients.
func (s *TicketStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = ""
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return errors.Errorf("unsupported ticket status type %T", src)
	}
	if st, ok := ParseTicketStatus(raw); ok {
		*s = st
		return nil
	}
	*s = TicketStatus(raw)
	return nil
}
