package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	maxConflictRetries = 5
	maxNumberAttempts  = 5
	maxChatMessageLen  = 2000
)

type Repository interface {
	storage.Transactor
	InsertTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, ticketNumber string) (*models.Ticket, error)
	ListTickets(ctx context.Context, status models.TicketStatus) ([]*models.Ticket, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestParcel opens a ticket asking support to pack a parcel for an agent.
func (s *Service) RequestParcel(ctx context.Context, in models.TicketCreateInput) (*models.Ticket, error) {
	agentID := strings.TrimSpace(in.AgentID)
	if agentID == "" {
		return nil, apperr.Validation("agentId is required")
	}
	if in.DevicesRequested < 0 {
		return nil, apperr.Validation("devicesRequested must not be negative")
	}
	for _, it := range in.Accessories {
		if strings.TrimSpace(it.AccessoryID) == "" {
			return nil, apperr.Validation("accessoryId is required")
		}
		if it.Quantity <= 0 {
			return nil, apperr.Validation("accessory %s: quantity must be positive", it.AccessoryID)
		}
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		typ = models.TicketTypeParcelRequest
	}

	now := s.now()
	t := &models.Ticket{
		Type:             typ,
		AgentID:          agentID,
		DevicesRequested: in.DevicesRequested,
		Accessories:      models.AccessoryItems(in.Accessories),
		Status:           models.TicketStatusOpen,
		Chat:             models.ChatLog{},
		CreatedAt:        now,
	}

	// numbers are millisecond stamps; bump on collision
	ms := now.UnixMilli()
	for i := 0; i < maxNumberAttempts; i++ {
		t.TicketNumber = fmt.Sprintf("PR-%d", ms+int64(i))
		err := s.repo.InsertTicket(ctx, t)
		if err == nil {
			slog.Info("ticket opened", "ticket_number", t.TicketNumber, "agent_id", agentID)
			return t, nil
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, apperr.Conflict(apperr.CodeConflict, "could not allocate a ticket number, try again")
}

// Assign moves an open ticket to the calling support user. A ticket is
// assigned at most once.
func (s *Service) Assign(ctx context.Context, ticketNumber, actingSupportID string) (*models.Ticket, error) {
	if actingSupportID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "acting support user is required")
	}
	if strings.TrimSpace(ticketNumber) == "" {
		return nil, apperr.Validation("ticketNumber is required")
	}

	var out *models.Ticket
	err := s.withTransaction(ctx, func(tx storage.Tx) error {
		t, err := s.load(ctx, tx, ticketNumber)
		if err != nil {
			return err
		}
		if t.Status != models.TicketStatusOpen {
			return apperr.Conflict(apperr.CodeTicketAlreadyAssigned, "ticket %s is already assigned", ticketNumber)
		}
		v := t.Version
		t.Status = models.TicketStatusAssigned
		t.SupportID = actingSupportID
		if err := tx.UpdateTicket(ctx, t, v); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("ticket assigned", "ticket_number", ticketNumber, "support_id", actingSupportID)
	return out, nil
}

func (s *Service) AddChatMessage(ctx context.Context, ticketNumber, sender, message string) (*models.Ticket, error) {
	sender = strings.TrimSpace(sender)
	message = strings.TrimSpace(message)
	switch {
	case strings.TrimSpace(ticketNumber) == "":
		return nil, apperr.Validation("ticketNumber is required")
	case sender == "":
		return nil, apperr.Validation("sender is required")
	case message == "":
		return nil, apperr.Validation("message is required")
	case len(message) > maxChatMessageLen:
		return nil, apperr.Validation("message exceeds %d bytes", maxChatMessageLen)
	}

	var out *models.Ticket
	err := s.withTransaction(ctx, func(tx storage.Tx) error {
		t, err := s.load(ctx, tx, ticketNumber)
		if err != nil {
			return err
		}
		v := t.Version
		t.Chat = append(t.Chat, models.ChatMessage{Sender: sender, Message: message, SentAt: s.now()})
		if err := tx.UpdateTicket(ctx, t, v); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	if strings.TrimSpace(ticketNumber) == "" {
		return nil, apperr.Validation("ticketNumber is required")
	}
	t, err := s.repo.GetTicket(ctx, ticketNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeTicketNotFound, "ticket %s not found", ticketNumber)
	}
	return t, err
}

// List accepts legacy status spellings such as "unassigned" and "Asigned".
func (s *Service) List(ctx context.Context, status string) ([]*models.Ticket, error) {
	var st models.TicketStatus
	if strings.TrimSpace(status) != "" {
		parsed, ok := models.ParseTicketStatus(status)
		if !ok {
			return nil, apperr.Validation("unknown ticket status %q", status)
		}
		st = parsed
	}
	return s.repo.ListTickets(ctx, st)
}

func (s *Service) load(ctx context.Context, tx storage.Tx, ticketNumber string) (*models.Ticket, error) {
	t, err := tx.GetTicket(ctx, ticketNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeTicketNotFound, "ticket %s not found", ticketNumber)
	}
	return t, err
}

func (s *Service) withTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond

	err := backoff.Retry(func() error {
		err := s.repo.InTx(ctx, fn)
		if err != nil && !errors.Is(err, storage.ErrVersionConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxConflictRetries), ctx))
	if errors.Is(err, storage.ErrVersionConflict) {
		return apperr.Wrap(err, apperr.KindConflict, apperr.CodeConflict, "concurrent update, try again")
	}
	return err
}
