package inventory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/ledger"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxConflictRetries = 5

type Repository interface {
	storage.Transactor
	InsertDevice(ctx context.Context, d *models.Device) error
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, status models.DeviceStatus) ([]*models.Device, error)
	InsertAccessory(ctx context.Context, a *models.Accessory) error
	GetAccessory(ctx context.Context, accessoryID string) (*models.Accessory, error)
	ListAccessories(ctx context.Context) ([]*models.Accessory, error)
}

// DevicePatch carries a manual device edit. Nil fields are left unchanged.
type DevicePatch struct {
	DeviceName    *string
	InventoryFlag *bool
	Status        *string
	AgentID       *string
	UserID        *string
}

type Service struct {
	repo  Repository
	newID func() (string, error)
}

func New(repo Repository) *Service {
	return &Service{repo: repo, newID: newDeviceID}
}

// device ids are time-ordered UUIDs so listings sort by creation
func newDeviceID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate device id")
	}
	return id.String(), nil
}

func (s *Service) AddDevice(ctx context.Context, name string, inventoryFlag bool) (*models.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("deviceName is required")
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	d := &models.Device{
		DeviceID:      id,
		DeviceName:    name,
		Status:        models.DeviceStatusAvailable,
		InventoryFlag: inventoryFlag,
	}
	if err := s.repo.InsertDevice(ctx, d); err != nil {
		return nil, err
	}
	slog.Info("device added", "device_id", d.DeviceID)
	return d, nil
}

func (s *Service) ListDevices(ctx context.Context, status string) ([]*models.Device, error) {
	st := models.DeviceStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, apperr.Validation("unknown device status %q", status)
	}
	return s.repo.ListDevices(ctx, st)
}

func (s *Service) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, apperr.Validation("deviceId is required")
	}
	d, err := s.repo.GetDevice(ctx, deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeDeviceNotFound, "device %s not found", deviceID)
	}
	return d, err
}

// UpdateDevice applies a manual edit. Devices held by a parcel are locked,
// and only the ledger may assign a device.
func (s *Service) UpdateDevice(ctx context.Context, deviceID string, patch DevicePatch, actingSupportID string) (*models.Device, error) {
	if actingSupportID == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, apperr.CodeUnauthenticated, "acting support user is required")
	}
	if strings.TrimSpace(deviceID) == "" {
		return nil, apperr.Validation("deviceId is required")
	}
	if patch.DeviceName != nil && strings.TrimSpace(*patch.DeviceName) == "" {
		return nil, apperr.Validation("deviceName must not be empty")
	}
	var target models.DeviceStatus
	if patch.Status != nil {
		target = models.DeviceStatus(strings.ToLower(strings.TrimSpace(*patch.Status)))
		if !target.Valid() {
			return nil, apperr.Validation("unknown device status %q", *patch.Status)
		}
		if target == models.DeviceStatusAssigned {
			return nil, apperr.InvalidTransition("devices are assigned only by adding them to a parcel")
		}
	}

	var out *models.Device
	err := s.withTransaction(ctx, func(tx storage.Tx) error {
		d, err := tx.GetDevice(ctx, deviceID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(apperr.CodeDeviceNotFound, "device %s not found", deviceID)
		}
		if err != nil {
			return err
		}
		v := d.Version

		if patch.DeviceName != nil {
			d.DeviceName = strings.TrimSpace(*patch.DeviceName)
		}
		if patch.InventoryFlag != nil {
			d.InventoryFlag = *patch.InventoryFlag
		}

		reassigning := patch.AgentID != nil || patch.UserID != nil
		if d.Status == models.DeviceStatusAssigned && (reassigning || (target != "" && target != d.Status)) {
			return apperr.InvalidTransition("device %s is assigned to parcel %s", d.DeviceID, d.ParcelNumber)
		}

		if target == models.DeviceStatusAvailable && target != d.Status {
			d.ClearAssignment()
		}
		if patch.AgentID != nil {
			d.AgentID = strings.TrimSpace(*patch.AgentID)
		}
		if patch.UserID != nil {
			d.UserID = strings.TrimSpace(*patch.UserID)
		}
		if target != "" {
			d.Status = target
		}
		if d.Status == models.DeviceStatusDamaged || d.Status == models.DeviceStatusDelivered {
			if d.AgentID == "" || d.UserID == "" {
				return apperr.Validation("agentId and userId are required for status %s", d.Status)
			}
			if d.SupportID == "" {
				d.SupportID = actingSupportID
			}
		}

		if !d.AssignmentConsistent() {
			return apperr.Validation("device %s assignment does not match status %s", d.DeviceID, d.Status)
		}
		if err := tx.UpdateDevice(ctx, d, v); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("device updated", "device_id", out.DeviceID, "status", out.Status, "support_id", actingSupportID)
	return out, nil
}

func (s *Service) AddAccessory(ctx context.Context, name string, specs models.AccessorySpecs, quantity int) (*models.Accessory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if quantity < 0 {
		return nil, apperr.Validation("quantity must not be negative")
	}

	a := &models.Accessory{
		AccessoryID: uuid.NewString(),
		Name:        name,
		Specs:       specs,
		Quantity:    strconv.Itoa(quantity),
		Status:      models.AccessoryStatusActive,
	}
	if err := s.repo.InsertAccessory(ctx, a); err != nil {
		return nil, err
	}
	slog.Info("accessory added", "accessory_id", a.AccessoryID, "quantity", quantity)
	return a, nil
}

// AccessoryView adds the derived stock flag to an accessory.
type AccessoryView struct {
	*models.Accessory
	InStock bool `json:"inStock"`
}

func view(a *models.Accessory) *AccessoryView {
	n, err := ledger.ParseQuantity(a.Quantity)
	return &AccessoryView{Accessory: a, InStock: err == nil && n > 0}
}

func (s *Service) ListAccessories(ctx context.Context) ([]*AccessoryView, error) {
	list, err := s.repo.ListAccessories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*AccessoryView, 0, len(list))
	for _, a := range list {
		out = append(out, view(a))
	}
	return out, nil
}

func (s *Service) GetAccessory(ctx context.Context, accessoryID string) (*AccessoryView, error) {
	if strings.TrimSpace(accessoryID) == "" {
		return nil, apperr.Validation("accessoryId is required")
	}
	a, err := s.repo.GetAccessory(ctx, accessoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeAccessoryNotFound, "accessory %s not found", accessoryID)
	}
	if err != nil {
		return nil, err
	}
	return view(a), nil
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
