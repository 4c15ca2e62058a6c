package tracking

import (
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestResolve_PicksLatestNotAfterNow(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &models.TrackingRecord{
		ParcelNumber: "PCL1",
		TrackingHistory: models.TrackingHistory{
			{Status: "A", Location: "la", Timestamp: t0},
			{Status: "C", Location: "lc", Timestamp: t0.Add(2 * time.Hour)},
			{Status: "B", Location: "lb", Timestamp: t0.Add(time.Hour)},
		},
	}

	v := Resolve(rec, t0.Add(-time.Second))
	require.Equal(t, models.TrackingStatusPending, v.Status)
	require.Equal(t, models.TrackingLocationUnknown, v.Location)

	require.Equal(t, "A", Resolve(rec, t0).Status)
	require.Equal(t, "B", Resolve(rec, t0.Add(90*time.Minute)).Status)
	v = Resolve(rec, t0.Add(3*time.Hour))
	require.Equal(t, "C", v.Status)
	require.Equal(t, "lc", v.Location)

	require.Equal(t, models.TrackingStatusPending, Resolve(&models.TrackingRecord{}, t0).Status)
}

func TestExpectedDelivery(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := func(status string, off time.Duration) models.TrackingEntry {
		return models.TrackingEntry{Status: status, Timestamp: anchor.Add(off)}
	}

	require.Equal(t, anchor.Add(5*day), ExpectedDelivery(nil, anchor))
	require.Equal(t, anchor.Add(5*day), ExpectedDelivery(models.TrackingHistory{entry(models.TrackingStatusPickedUp, 0)}, anchor))
	require.Equal(t, anchor.Add(3*day), ExpectedDelivery(models.TrackingHistory{
		entry(models.TrackingStatusPickedUp, 0), entry(models.TrackingStatusInTransit, time.Hour),
	}, anchor))
	require.Equal(t, anchor, ExpectedDelivery(models.TrackingHistory{
		entry(models.TrackingStatusInTransit, 0), entry(models.TrackingStatusDelivered, time.Hour),
	}, anchor))
}

func TestSynthesize_FixedSchedule(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := Synthesize(&models.Parcel{ParcelNumber: "PCL1", PickupLocation: "X", Destination: "Y"}, anchor)

	require.Len(t, rec.TrackingHistory, 3)
	require.Equal(t, anchor.Add(day), rec.ExpectedDelivery)
	require.Equal(t, anchor.Add(4*time.Hour), rec.TrackingHistory[1].Timestamp)
	require.Equal(t, models.TrackingStatusOutForDelivery, Resolve(rec, anchor.Add(8*time.Hour)).Status)
}
