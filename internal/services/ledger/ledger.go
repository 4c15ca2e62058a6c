package ledger

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"
)

// Assignment is stamped on every device placed in a parcel.
type Assignment struct {
	SupportID    string
	AgentID      string
	UserID       string
	ParcelNumber string
}

// Every operation validates the whole batch before the first write, so a
// rejected batch leaves the transaction untouched. Writes are version-checked;
// storage.ErrVersionConflict means another transaction got there first and
// the caller should retry from scratch. Rows are written in id order so two
// transactions touching the same rows always lock them in the same order.

func ReserveDevices(ctx context.Context, tx storage.Tx, deviceIDs []string, a Assignment) ([]*models.Device, error) {
	if err := checkUnique(deviceIDs); err != nil {
		return nil, err
	}
	if a.SupportID == "" || a.AgentID == "" || a.UserID == "" {
		return nil, apperr.Validation("supportId, agentId and userId are required to assign devices")
	}

	devices, err := loadDevices(ctx, tx, deviceIDs)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Status != models.DeviceStatusAvailable {
			return nil, apperr.Newf(apperr.KindDeviceUnavailable, apperr.CodeDeviceUnavailable,
				"device %s is %s", d.DeviceID, d.Status)
		}
	}

	for _, d := range inIDOrder(devices) {
		v := d.Version
		d.Status = models.DeviceStatusAssigned
		d.SupportID = a.SupportID
		d.AgentID = a.AgentID
		d.UserID = a.UserID
		d.ParcelNumber = a.ParcelNumber
		d.InventoryFlag = false
		if err := tx.UpdateDevice(ctx, d, v); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

// ReleaseDevices moves every device of a parcel to status, keeping the
// assignment fields as the delivery record.
func ReleaseDevices(ctx context.Context, tx storage.Tx, deviceIDs []string, status models.DeviceStatus) error {
	if status == models.DeviceStatusAvailable || status == models.DeviceStatusAssigned || !status.Valid() {
		return apperr.Validation("cannot release devices to status %q", status)
	}
	if len(deviceIDs) == 0 {
		return nil
	}

	devices, err := loadDevices(ctx, tx, dedupe(deviceIDs))
	if err != nil {
		return err
	}
	for _, d := range inIDOrder(devices) {
		if d.Status == status {
			continue
		}
		if !d.HasAssignment() {
			return apperr.Newf(apperr.KindDataCorruption, apperr.CodeDataCorruption,
				"device %s has no assignment", d.DeviceID)
		}
		v := d.Version
		d.Status = status
		if err := tx.UpdateDevice(ctx, d, v); err != nil {
			return err
		}
	}
	return nil
}

// ReserveAccessories decrements stock for every item. Items that share an
// accessory id are summed before the stock check.
func ReserveAccessories(ctx context.Context, tx storage.Tx, items []models.AccessoryItem) error {
	if len(items) == 0 {
		return nil
	}

	order := make([]string, 0, len(items))
	want := make(map[string]int, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.AccessoryID) == "" {
			return apperr.Validation("accessoryId is required")
		}
		if it.Quantity <= 0 {
			return apperr.Validation("quantity for accessory %s must be positive", it.AccessoryID)
		}
		if _, ok := want[it.AccessoryID]; !ok {
			order = append(order, it.AccessoryID)
		}
		want[it.AccessoryID] += it.Quantity
	}
	slices.Sort(order)

	type pending struct {
		acc  *models.Accessory
		left int
	}
	plan := make([]pending, 0, len(order))
	for _, id := range order {
		a, err := tx.GetAccessory(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(apperr.CodeAccessoryNotFound, "accessory %s not found", id)
		}
		if err != nil {
			return err
		}
		stock, err := ParseQuantity(a.Quantity)
		if err != nil {
			return apperr.Wrap(err, apperr.KindDataCorruption, apperr.CodeDataCorruption,
				"accessory "+id+" has an invalid stored quantity")
		}
		if want[id] > stock {
			return apperr.Newf(apperr.KindInsufficientStock, apperr.CodeInsufficientStock,
				"accessory %s: requested %d, in stock %d", id, want[id], stock)
		}
		plan = append(plan, pending{acc: a, left: stock - want[id]})
	}

	for _, p := range plan {
		v := p.acc.Version
		p.acc.Quantity = strconv.Itoa(p.left)
		if err := tx.UpdateAccessory(ctx, p.acc, v); err != nil {
			return err
		}
	}
	return nil
}

// ParseQuantity reads a stored stock level. Only non-negative base-10
// integers are accepted.
func ParseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "quantity %q", s)
	}
	if n < 0 {
		return 0, errors.Errorf("quantity %q is negative", s)
	}
	return n, nil
}

func loadDevices(ctx context.Context, tx storage.Tx, ids []string) ([]*models.Device, error) {
	out := make([]*models.Device, 0, len(ids))
	for _, id := range ids {
		d, err := tx.GetDevice(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeDeviceNotFound, "device %s not found", id)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// inIDOrder returns a copy of devices sorted by id. The caller's slice keeps
// the request order.
func inIDOrder(devices []*models.Device) []*models.Device {
	out := slices.Clone(devices)
	slices.SortFunc(out, func(a, b *models.Device) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return out
}

func checkUnique(ids []string) error {
	if len(ids) == 0 {
		return apperr.Validation("at least one device is required")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("deviceId must not be empty")
		}
		if _, ok := seen[id]; ok {
			return apperr.Validation("device %s is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
