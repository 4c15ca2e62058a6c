package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgres_RepoFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "parcelbox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/parcelbox_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.Equal(t, DialectPostgres, st.Dialect())

	require.NoError(t, st.InsertDevice(ctx, &models.Device{DeviceID: "D3", DeviceName: "Tablet", Status: models.DeviceStatusAvailable}))
	require.NoError(t, st.InsertAccessory(ctx, &models.Accessory{AccessoryID: "A1", Name: "Cable", Quantity: "3"}))

	// Two transactions race for the same device; the second CAS must miss.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.InTx(ctx, func(tx storage.Tx) error {
				d, err := tx.GetDevice(ctx, "D3")
				if err != nil {
					return err
				}
				time.Sleep(100 * time.Millisecond)
				d.Status = models.DeviceStatusAssigned
				d.SupportID, d.AgentID, d.UserID = "S", "A", "U"
				return tx.UpdateDevice(ctx, d, d.Version)
			})
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, storage.ErrVersionConflict)
			conflicts++
		}
	}
	require.Equal(t, 1, conflicts)

	d, err := st.GetDevice(ctx, "D3")
	require.NoError(t, err)
	require.Equal(t, int64(2), d.Version)

	require.NoError(t, st.InTx(ctx, func(tx storage.Tx) error {
		return tx.InsertParcel(ctx, &models.Parcel{
			ParcelNumber: "PCL123", PickupLocation: "A", Destination: "B", Status: models.ParcelStatusSent,
			Devices: models.StringList{"D3"}, Accessories: models.AccessoryItems{{AccessoryID: "A1", Quantity: 1}},
		})
	}))
	found, err := st.SearchActiveParcels(ctx, "pcl12", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)

	pending, err := st.ListShippedWithoutTracking(ctx, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	now := time.Now().UTC()
	require.NoError(t, st.InsertTracking(ctx, &models.TrackingRecord{ParcelNumber: "PCL123", ExpectedDelivery: now}))
	require.ErrorIs(t, st.InsertTracking(ctx, &models.TrackingRecord{ParcelNumber: "PCL123", ExpectedDelivery: now}), storage.ErrDuplicate)
}
