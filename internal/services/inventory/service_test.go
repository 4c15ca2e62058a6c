package inventory

import (
	"context"
	"testing"

	"github.com/BearBump/ParcelBox/internal/apperr"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/ledger"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/BearBump/ParcelBox/internal/storage/sqlstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type InventorySuite struct {
	suite.Suite

	ctx context.Context
	st  *sqlstore.Store
	svc *Service
}

func (s *InventorySuite) SetupTest() {
	s.ctx = context.Background()
	st, err := sqlstore.NewSQLite(":memory:")
	s.Require().NoError(err)
	s.st = st
	s.svc = New(st)
}

func (s *InventorySuite) TearDownTest() {
	s.st.Close()
}

func ptr[T any](v T) *T { return &v }

func (s *InventorySuite) TestAddDevice() {
	d, err := s.svc.AddDevice(s.ctx, "  Scanner ", true)
	s.Require().NoError(err)
	s.Equal("Scanner", d.DeviceName)
	s.Equal(models.DeviceStatusAvailable, d.Status)

	id, err := uuid.Parse(d.DeviceID)
	s.Require().NoError(err)
	s.Equal(uuid.Version(7), id.Version())

	got, err := s.svc.GetDevice(s.ctx, d.DeviceID)
	s.Require().NoError(err)
	s.True(got.InventoryFlag)
	s.True(got.AssignmentConsistent())

	_, err = s.svc.AddDevice(s.ctx, " ", false)
	s.Equal(apperr.KindValidation, apperr.KindOf(err))

	_, err = s.svc.GetDevice(s.ctx, "missing")
	s.Equal(apperr.CodeDeviceNotFound, apperr.CodeOf(err))
}

func (s *InventorySuite) TestListDevices() {
	_, err := s.svc.AddDevice(s.ctx, "a", false)
	s.Require().NoError(err)
	d, err := s.svc.AddDevice(s.ctx, "b", false)
	s.Require().NoError(err)
	_, err = s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{Status: ptr("damaged"), AgentID: ptr("ag"), UserID: ptr("us")}, "sup-1")
	s.Require().NoError(err)

	all, err := s.svc.ListDevices(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	damaged, err := s.svc.ListDevices(s.ctx, "Damaged")
	s.Require().NoError(err)
	s.Require().Len(damaged, 1)
	s.Equal("sup-1", damaged[0].SupportID)

	_, err = s.svc.ListDevices(s.ctx, "lost")
	s.Equal(apperr.KindValidation, apperr.KindOf(err))
}

func (s *InventorySuite) TestUpdateDevice_StatusRules() {
	d, err := s.svc.AddDevice(s.ctx, "tab", false)
	s.Require().NoError(err)

	_, err = s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{Status: ptr("assigned")}, "sup-1")
	s.Equal(apperr.KindInvalidTransition, apperr.KindOf(err))

	_, err = s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{Status: ptr("damaged")}, "sup-1")
	s.Equal(apperr.KindValidation, apperr.KindOf(err), "agent and user are required")

	got, err := s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{Status: ptr("damaged"), AgentID: ptr("ag"), UserID: ptr("us")}, "sup-1")
	s.Require().NoError(err)
	s.Equal(models.DeviceStatusDamaged, got.Status)
	s.True(got.AssignmentConsistent())

	got, err = s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{Status: ptr("available"), DeviceName: ptr("tab-2")}, "sup-1")
	s.Require().NoError(err)
	s.Equal(models.DeviceStatusAvailable, got.Status)
	s.Equal("tab-2", got.DeviceName)
	s.Empty(got.SupportID)
	s.Empty(got.AgentID)
	s.Empty(got.UserID)

	_, err = s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{AgentID: ptr("ag")}, "sup-1")
	s.Equal(apperr.KindValidation, apperr.KindOf(err), "available devices carry no assignment")

	_, err = s.svc.UpdateDevice(s.ctx, "missing", DevicePatch{InventoryFlag: ptr(true)}, "sup-1")
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func (s *InventorySuite) TestUpdateDevice_AssignedIsLocked() {
	d, err := s.svc.AddDevice(s.ctx, "tab", false)
	s.Require().NoError(err)
	s.Require().NoError(s.st.InTx(s.ctx, func(tx storage.Tx) error {
		_, err := ledger.ReserveDevices(s.ctx, tx, []string{d.DeviceID}, ledger.Assignment{SupportID: "s", AgentID: "a", UserID: "u", ParcelNumber: "PCL1"})
		return err
	}))

	_, err = s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{Status: ptr("damaged"), AgentID: ptr("a"), UserID: ptr("u")}, "sup-1")
	s.Equal(apperr.KindInvalidTransition, apperr.KindOf(err))

	got, err := s.svc.UpdateDevice(s.ctx, d.DeviceID, DevicePatch{InventoryFlag: ptr(true)}, "sup-1")
	s.Require().NoError(err)
	s.True(got.InventoryFlag)
	s.Equal(models.DeviceStatusAssigned, got.Status)
}

func (s *InventorySuite) TestAccessories() {
	a, err := s.svc.AddAccessory(s.ctx, "Charger", models.AccessorySpecs{Type: "usb-c", Power: "20W"}, 3)
	s.Require().NoError(err)
	s.Equal("3", a.Quantity)

	empty, err := s.svc.AddAccessory(s.ctx, "Cable", models.AccessorySpecs{}, 0)
	s.Require().NoError(err)

	_, err = s.svc.AddAccessory(s.ctx, "Bad", models.AccessorySpecs{}, -1)
	s.Equal(apperr.KindValidation, apperr.KindOf(err))

	s.Require().NoError(s.st.InsertAccessory(s.ctx, &models.Accessory{AccessoryID: "dmg", Name: "Old", Quantity: "4", Status: models.AccessoryStatusDamaged}))

	list, err := s.svc.ListAccessories(s.ctx)
	s.Require().NoError(err)
	s.Len(list, 2)

	got, err := s.svc.GetAccessory(s.ctx, a.AccessoryID)
	s.Require().NoError(err)
	s.True(got.InStock)
	s.Equal("20W", got.Specs.Power)

	got, err = s.svc.GetAccessory(s.ctx, empty.AccessoryID)
	s.Require().NoError(err)
	s.False(got.InStock)

	_, err = s.svc.GetAccessory(s.ctx, "nope")
	s.Equal(apperr.CodeAccessoryNotFound, apperr.CodeOf(err))
}

func TestInventorySuite(t *testing.T) {
	suite.Run(t, new(InventorySuite))
}
