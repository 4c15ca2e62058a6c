package sqlstore

import (
	"context"
	"strings"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const ticketColumns = `
  ticket_number, type, agent_id, devices_requested, accessories, status,
  support_id, chat, version, created_at, updated_at`

// legacyStatusSpellings maps a canonical status to every lowercased spelling
// that may be stored for it. It must accept the same set as
// models.ParseTicketStatus.
var legacyStatusSpellings = map[models.TicketStatus][]string{
	models.TicketStatusOpen:     {"open", "unassigned"},
	models.TicketStatusAssigned: {"assigned", "asigned"},
}

func (s *Store) InsertTicket(ctx context.Context, t *models.Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = t.CreatedAt
	if t.Version == 0 {
		t.Version = 1
	}

	err := insert(ctx, s.db, `
INSERT INTO tickets (`+ticketColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT DO NOTHING
`, t.TicketNumber, t.Type, t.AgentID, t.DevicesRequested, t.Accessories, t.Status,
		t.SupportID, t.Chat, t.Version, t.CreatedAt, t.UpdatedAt)
	return errors.Wrap(err, "insert ticket")
}

func (s *Store) GetTicket(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	var t *models.Ticket
	err := s.read(ctx, func() (err error) {
		t, err = getTicket(ctx, s.db, ticketNumber)
		return err
	})
	return t, err
}

// ListTickets returns tickets newest first, optionally filtered by status.
func (s *Store) ListTickets(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error) {
	var out []*models.Ticket
	err := s.read(ctx, func() (err error) {
		if status == "" {
			out, err = getMany[models.Ticket](ctx, s.db, `SELECT`+ticketColumns+` FROM tickets ORDER BY created_at DESC, ticket_number`)
			return err
		}
		spellings, ok := legacyStatusSpellings[status]
		if !ok {
			spellings = []string{strings.ToLower(string(status))}
		}
		query, args, err := sqlx.In(`SELECT`+ticketColumns+` FROM tickets WHERE LOWER(TRIM(status)) IN (?) ORDER BY created_at DESC, ticket_number`,
			spellings)
		if err != nil {
			return err
		}
		out, err = getMany[models.Ticket](ctx, s.db, query, args...)
		return err
	})
	return out, errors.Wrap(err, "list tickets")
}

func (t *txStore) GetTicket(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	return getTicket(ctx, t.tx, ticketNumber)
}

func (t *txStore) UpdateTicket(ctx context.Context, tk *models.Ticket, expectedVersion int64) error {
	now := t.now()
	err := casUpdate(ctx, t.tx, `
UPDATE tickets SET
  type = ?, agent_id = ?, devices_requested = ?, accessories = ?, status = ?,
  support_id = ?, chat = ?, version = version + 1, updated_at = ?
WHERE ticket_number = ? AND version = ?
`, tk.Type, tk.AgentID, tk.DevicesRequested, tk.Accessories, tk.Status,
		tk.SupportID, tk.Chat, now, tk.TicketNumber, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "update ticket")
	}
	tk.Version = expectedVersion + 1
	tk.UpdatedAt = now
	return nil
}

func getTicket(ctx context.Context, q sqlx.ExtContext, ticketNumber string) (*models.Ticket, error) {
	t, err := getOne[models.Ticket](ctx, q, `SELECT`+ticketColumns+` FROM tickets WHERE ticket_number = ?`, ticketNumber)
	return t, errors.Wrap(err, "get ticket")
}
