package tracking

import (
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
)

const (
	inTransitOffset      = 4 * time.Hour
	outForDeliveryOffset = 8 * time.Hour

	day = 24 * time.Hour
)

// Synthesize builds the fixed three-step history for a parcel anchored at
// anchor.
func Synthesize(p *models.Parcel, anchor time.Time) *models.TrackingRecord {
	anchor = anchor.UTC()
	history := models.TrackingHistory{
		{Status: models.TrackingStatusPickedUp, Location: p.PickupLocation, Timestamp: anchor},
		{Status: models.TrackingStatusInTransit, Location: models.TrackingLocationCheckpoint, Timestamp: anchor.Add(inTransitOffset)},
		{Status: models.TrackingStatusOutForDelivery, Location: p.Destination, Timestamp: anchor.Add(outForDeliveryOffset)},
	}
	return &models.TrackingRecord{
		ParcelNumber:     p.ParcelNumber,
		TrackingHistory:  history,
		ExpectedDelivery: ExpectedDelivery(history, anchor),
		CreatedAt:        anchor,
	}
}

// ExpectedDelivery derives the estimate from the latest synthesized entry.
func ExpectedDelivery(history models.TrackingHistory, anchor time.Time) time.Time {
	var latest string
	var latestAt time.Time
	for i, e := range history {
		if i == 0 || !e.Timestamp.Before(latestAt) {
			latest, latestAt = e.Status, e.Timestamp
		}
	}

	switch latest {
	case models.TrackingStatusDelivered:
		return anchor
	case models.TrackingStatusOutForDelivery:
		return anchor.Add(day)
	case models.TrackingStatusInTransit:
		return anchor.Add(3 * day)
	default:
		return anchor.Add(5 * day)
	}
}

// Resolve picks the latest entry whose timestamp is not after now.
func Resolve(r *models.TrackingRecord, now time.Time) *models.TrackingView {
	view := &models.TrackingView{
		ParcelNumber:     r.ParcelNumber,
		Status:           models.TrackingStatusPending,
		Location:         models.TrackingLocationUnknown,
		History:          r.TrackingHistory,
		ExpectedDelivery: r.ExpectedDelivery,
	}

	var best *models.TrackingEntry
	for i := range r.TrackingHistory {
		e := &r.TrackingHistory[i]
		if e.Timestamp.After(now) {
			continue
		}
		if best == nil || !e.Timestamp.Before(best.Timestamp) {
			best = e
		}
	}
	if best != nil {
		view.Status = best.Status
		view.Location = best.Location
	}
	return view
}
