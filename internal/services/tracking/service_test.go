package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/apperr"
	cachemocks "github.com/BearBump/ParcelBox/internal/cache/mocks"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetParcel(ctx context.Context, parcelNumber string) (*models.Parcel, error) {
	args := m.Called(ctx, parcelNumber)
	p, _ := args.Get(0).(*models.Parcel)
	return p, args.Error(1)
}

func (m *mockRepository) InsertTracking(ctx context.Context, r *models.TrackingRecord) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRepository) GetTracking(ctx context.Context, parcelNumber string) (*models.TrackingRecord, error) {
	args := m.Called(ctx, parcelNumber)
	r, _ := args.Get(0).(*models.TrackingRecord)
	return r, args.Error(1)
}

type ServiceSuite struct {
	suite.Suite

	repo  *mockRepository
	cache *cachemocks.MockBytesCache
	now   time.Time
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &mockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.now = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	s.svc = New(s.repo, s.cache, 10*time.Minute).WithClock(func() time.Time { return s.now })
}

func (s *ServiceSuite) parcel() *models.Parcel {
	return &models.Parcel{ParcelNumber: "PCL1", PickupLocation: "Warehouse", Destination: "Office", Status: models.ParcelStatusSent}
}

func (s *ServiceSuite) TestGenerate_WritesAndCaches() {
	s.repo.On("GetParcel", mock.Anything, "PCL1").Return(s.parcel(), nil).Once()
	s.repo.On("InsertTracking", mock.Anything, mock.MatchedBy(func(r *models.TrackingRecord) bool {
		return r.ParcelNumber == "PCL1" && len(r.TrackingHistory) == 3
	})).Return(nil).Once()
	s.cache.On("Set", mock.Anything, "tracking:PCL1:record", mock.Anything, 10*time.Minute).Return(nil).Once()

	rec, err := s.svc.Generate(context.Background(), "PCL1")
	s.Require().NoError(err)
	s.Equal(s.now.Add(24*time.Hour), rec.ExpectedDelivery)
	s.Equal(models.TrackingStatusPickedUp, rec.TrackingHistory[0].Status)
	s.Equal("Warehouse", rec.TrackingHistory[0].Location)
	s.Equal(models.TrackingLocationCheckpoint, rec.TrackingHistory[1].Location)
	s.Equal(s.now.Add(8*time.Hour), rec.TrackingHistory[2].Timestamp)
	s.Equal("Office", rec.TrackingHistory[2].Location)

	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGenerate_Twice_Conflict() {
	s.repo.On("GetParcel", mock.Anything, "PCL1").Return(s.parcel(), nil)
	s.repo.On("InsertTracking", mock.Anything, mock.Anything).Return(errors.Wrap(storage.ErrDuplicate, "insert tracking")).Once()

	_, err := s.svc.Generate(context.Background(), "PCL1")
	s.Equal(apperr.KindConflict, apperr.KindOf(err))
	s.Equal(apperr.CodeTrackingExists, apperr.CodeOf(err))

	s.repo.On("InsertTracking", mock.Anything, mock.Anything).Return(errors.Wrap(storage.ErrDuplicate, "insert tracking")).Once()
	created, err := s.svc.EnsureGenerated(context.Background(), "PCL1")
	s.NoError(err)
	s.False(created)
}

func (s *ServiceSuite) TestGenerate_OnlyShippedParcels() {
	received := s.parcel()
	received.Status = models.ParcelStatusReceived
	s.repo.On("GetParcel", mock.Anything, "PCL2").Return(received, nil).Once()
	s.repo.On("InsertTracking", mock.Anything, mock.Anything).Return(nil).Once()
	s.cache.On("Set", mock.Anything, "tracking:PCL2:record", mock.Anything, 10*time.Minute).Return(nil).Once()
	_, err := s.svc.Generate(context.Background(), "PCL2")
	s.Require().NoError(err)

	for _, status := range []models.ParcelStatus{models.ParcelStatusPacked, models.ParcelStatusDelivered} {
		p := s.parcel()
		p.Status = status
		s.repo.On("GetParcel", mock.Anything, "PCL1").Return(p, nil).Once()

		_, err := s.svc.Generate(context.Background(), "PCL1")
		s.Equal(apperr.KindInvalidTransition, apperr.KindOf(err), status)

		s.repo.On("GetParcel", mock.Anything, "PCL1").Return(p, nil).Once()
		created, err := s.svc.EnsureGenerated(context.Background(), "PCL1")
		s.NoError(err)
		s.False(created)
	}

	s.repo.AssertNumberOfCalls(s.T(), "InsertTracking", 1)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGenerate_ParcelNotFound() {
	s.repo.On("GetParcel", mock.Anything, "nope").Return(nil, errors.Wrap(storage.ErrNotFound, "get parcel")).Once()

	_, err := s.svc.Generate(context.Background(), "nope")
	s.Equal(apperr.CodeParcelNotFound, apperr.CodeOf(err))

	_, err = s.svc.Generate(context.Background(), "")
	s.Equal(apperr.KindValidation, apperr.KindOf(err))
}

func (s *ServiceSuite) TestResolveCurrent_CacheHitDerivesFromClock() {
	rec := Synthesize(s.parcel(), s.now)
	b, err := json.Marshal(rec)
	s.Require().NoError(err)
	s.cache.On("Get", mock.Anything, "tracking:PCL1:record").Return(b, true, nil)

	s.now = s.now.Add(5 * time.Hour)
	v, err := s.svc.ResolveCurrent(context.Background(), "PCL1")
	s.Require().NoError(err)
	s.Equal(models.TrackingStatusInTransit, v.Status)
	s.Equal(models.TrackingLocationCheckpoint, v.Location)

	s.now = s.now.Add(4 * time.Hour)
	v, err = s.svc.ResolveCurrent(context.Background(), "PCL1")
	s.Require().NoError(err)
	s.Equal(models.TrackingStatusOutForDelivery, v.Status)

	s.repo.AssertNotCalled(s.T(), "GetTracking", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestResolveCurrent_CacheErrorFallsBackToRepo() {
	rec := Synthesize(s.parcel(), s.now)
	s.cache.On("Get", mock.Anything, "tracking:PCL1:record").Return(nil, false, errors.New("redis down")).Once()
	s.repo.On("GetTracking", mock.Anything, "PCL1").Return(rec, nil).Once()
	s.cache.On("Set", mock.Anything, "tracking:PCL1:record", mock.Anything, 10*time.Minute).Return(errors.New("redis down")).Once()

	v, err := s.svc.ResolveCurrent(context.Background(), "PCL1")
	s.Require().NoError(err)
	s.Equal(models.TrackingStatusPickedUp, v.Status)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestResolveCurrent_NotFound() {
	s.cache.On("Get", mock.Anything, "tracking:X:record").Return(nil, false, nil).Once()
	s.repo.On("GetTracking", mock.Anything, "X").Return(nil, errors.Wrap(storage.ErrNotFound, "get tracking")).Once()

	_, err := s.svc.ResolveCurrent(context.Background(), "X")
	s.Equal(apperr.KindNotFound, apperr.KindOf(err))
	s.Equal(apperr.CodeTrackingNotFound, apperr.CodeOf(err))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
