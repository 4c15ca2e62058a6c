package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/auth"
	"github.com/BearBump/ParcelBox/internal/cache/rediscache"
	"github.com/BearBump/ParcelBox/internal/metrics"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/inventory"
	"github.com/BearBump/ParcelBox/internal/services/parcels"
	"github.com/BearBump/ParcelBox/internal/services/tickets"
	"github.com/BearBump/ParcelBox/internal/services/tracking"
	"github.com/BearBump/ParcelBox/internal/services/users"
	"github.com/BearBump/ParcelBox/internal/storage/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type response struct {
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"status_code"`
	Code       string          `json:"code"`
}

type APISuite struct {
	suite.Suite

	st      *sqlstore.Store
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	metrics *metrics.Collector
	h       http.Handler
	token   string
	header  http.Header
}

func (s *APISuite) SetupTest() {
	st, err := sqlstore.NewSQLite(":memory:")
	s.Require().NoError(err)
	s.st = st

	s.mr = miniredis.RunT(s.T())
	s.rdb = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})

	s.metrics = metrics.NewCollector()
	guard := auth.NewGuard("api-test-secret", time.Hour, false)
	track := tracking.New(st, rediscache.NewWithClient(s.rdb), time.Minute)

	api := New(
		users.New(st, guard, rediscache.NewRateLimiter(s.rdb, "parcelbox:"), 10).WithHashCost(bcrypt.MinCost),
		inventory.New(st),
		parcels.New(st, track, nil, s.metrics),
		track,
		tickets.New(st),
	)
	s.h = api.Router(Options{Guard: guard, Metrics: s.metrics, RequestTimeout: 5 * time.Second})
	s.token = ""
	s.header = http.Header{}
}

func (s *APISuite) TearDownTest() {
	_ = s.rdb.Close()
	s.st.Close()
}

func (s *APISuite) do(method, path string, body any) (int, response) {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for k, v := range s.header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)

	var out response
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	s.Equal(rr.Code, out.StatusCode)
	return rr.Code, out
}

func (s *APISuite) login() string {
	code, _ := s.do(http.MethodPost, "/user/register", map[string]string{
		"name": "Sam", "phone": "5551234567", "email": "sam@example.com", "password": "password123",
	})
	s.Require().Equal(http.StatusCreated, code)

	code, res := s.do(http.MethodPost, "/user/login", map[string]string{"phone": "5551234567", "password": "password123"})
	s.Require().Equal(http.StatusOK, code)
	var sess struct {
		Token string              `json:"token"`
		User  *models.SupportUser `json:"user"`
	}
	s.Require().NoError(json.Unmarshal(res.Data, &sess))
	s.token = sess.Token
	return sess.User.SupportID
}

func (s *APISuite) TestUsers() {
	code, res := s.do(http.MethodGet, "/user/userdata", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.Equal("UNAUTHENTICATED", res.Code)

	s.token = "not-a-token"
	code, res = s.do(http.MethodGet, "/user/userdata", nil)
	s.Equal(http.StatusForbidden, code)
	s.Equal("FORBIDDEN", res.Code)
	s.token = ""

	supportID := s.login()

	code, res = s.do(http.MethodGet, "/user/userdata", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("success", res.Status)
	s.Contains(string(res.Data), supportID)
	s.NotContains(string(res.Data), "password")

	code, res = s.do(http.MethodPost, "/user/register", map[string]string{
		"name": "Other", "phone": "5551234567", "email": "o@example.com", "password": "password123",
	})
	s.Equal(http.StatusConflict, code)
	s.Equal("PHONE_TAKEN", res.Code)

	code, res = s.do(http.MethodPost, "/user/login", map[string]string{"phone": "5551234567", "password": "wrong-pass"})
	s.Equal(http.StatusUnauthorized, code)
	s.Equal("INVALID_CREDENTIALS", res.Code)
}

func (s *APISuite) TestRequestDecoding() {
	code, res := s.do(http.MethodPost, "/user/login", `{"phone":"1","password":"x","extra":true}`)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", res.Code)
	s.Contains(res.Message, "extra")

	code, res = s.do(http.MethodPost, "/user/login", `{"phone":`)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("malformed JSON", res.Message)

	code, res = s.do(http.MethodPost, "/user/login", `{"phone":5}`)
	s.Equal(http.StatusBadRequest, code)
	s.Contains(res.Message, "phone")

	code, _ = s.do(http.MethodPost, "/user/login", ``)
	s.Equal(http.StatusBadRequest, code)

	code, res = s.do(http.MethodPost, "/parcel/parcelNumber", `{}`)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("parcelNumber is required", res.Message)
}

func (s *APISuite) TestInventory() {
	code, _ := s.do(http.MethodPost, "/device/adddevice", map[string]any{"deviceName": "Scanner"})
	s.Equal(http.StatusUnauthorized, code)

	s.login()

	code, res := s.do(http.MethodPost, "/device/adddevice", map[string]any{"deviceName": "Scanner", "inventoryFlag": true})
	s.Require().Equal(http.StatusCreated, code)
	var d models.Device
	s.Require().NoError(json.Unmarshal(res.Data, &d))

	code, res = s.do(http.MethodGet, "/device/"+d.DeviceID, nil)
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), `"status":"available"`)

	code, res = s.do(http.MethodGet, "/device/missing", nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("DEVICE_NOT_FOUND", res.Code)

	code, res = s.do(http.MethodPost, "/device/updatedevice", map[string]any{"deviceId": d.DeviceID, "status": "damaged", "agentId": "ag", "userId": "us"})
	s.Require().Equal(http.StatusOK, code)

	code, res = s.do(http.MethodGet, "/device/alldevices?status=available", nil)
	s.Require().Equal(http.StatusOK, code)
	s.JSONEq(`[]`, string(res.Data))

	code, res = s.do(http.MethodPost, "/device/updatedevice", map[string]any{"deviceId": d.DeviceID, "status": "assigned"})
	s.Equal(http.StatusConflict, code)
	s.Equal("INVALID_TRANSITION", res.Code)

	code, res = s.do(http.MethodPost, "/accessory/addaccessory", map[string]any{"name": "Charger", "specs": map[string]string{"power": "20W"}, "quantity": 4})
	s.Require().Equal(http.StatusCreated, code)
	var acc models.Accessory
	s.Require().NoError(json.Unmarshal(res.Data, &acc))

	code, res = s.do(http.MethodGet, "/accessory/allaccessory", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), `"inStock":true`)

	code, res = s.do(http.MethodPost, "/accessory/accessoriesid", map[string]string{"accessoryId": acc.AccessoryID})
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), `"quantity":"4"`)

	code, res = s.do(http.MethodPost, "/accessory/accessoriesid", map[string]string{"accessoryId": "nope"})
	s.Equal(http.StatusNotFound, code)
	s.Equal("ACCESSORY_NOT_FOUND", res.Code)
}

func (s *APISuite) TestParcelLifecycle() {
	ctx := context.Background()
	for _, id := range []string{"D1", "D2"} {
		s.Require().NoError(s.st.InsertDevice(ctx, &models.Device{DeviceID: id, DeviceName: id, Status: models.DeviceStatusAvailable}))
	}
	s.Require().NoError(s.st.InsertAccessory(ctx, &models.Accessory{AccessoryID: "A1", Name: "Cable", Quantity: "3"}))
	supportID := s.login()

	code, res := s.do(http.MethodPost, "/parcel/addparcel", map[string]any{
		"pickupLocation": "X", "destination": "Y", "agentId": "agent-1",
		"devices": []string{"D1", "D2"}, "accessories": []map[string]any{{"accessoryId": "A1", "quantity": 2}},
	})
	s.Require().Equal(http.StatusCreated, code, res.Message)
	var p models.Parcel
	s.Require().NoError(json.Unmarshal(res.Data, &p))
	s.Equal(models.ParcelStatusPacked, p.Status)
	s.Equal(supportID, p.SupportID)

	code, res = s.do(http.MethodPost, "/parcel/addparcel", map[string]any{
		"pickupLocation": "X", "destination": "Y", "agentId": "agent-1", "devices": []string{"D1"},
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("DEVICE_UNAVAILABLE", res.Code)

	code, res = s.do(http.MethodGet, "/parcel/userparcels", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), p.ParcelNumber)

	s.token = ""
	code, res = s.do(http.MethodPost, "/tracking/parcelNumber", map[string]string{"parcelNumber": p.ParcelNumber})
	s.Equal(http.StatusNotFound, code)
	s.Equal("TRACKING_NOT_FOUND", res.Code)

	code, res = s.do(http.MethodPost, "/parcel/updatestatus", map[string]string{"parcelNumber": p.ParcelNumber, "status": "sent"})
	s.Require().Equal(http.StatusOK, code, res.Message)
	s.Contains(string(res.Data), `"tracking"`)

	code, res = s.do(http.MethodPost, "/tracking/generate", map[string]string{"parcelNumber": p.ParcelNumber})
	s.Equal(http.StatusConflict, code)
	s.Equal("TRACKING_EXISTS", res.Code)

	code, res = s.do(http.MethodPost, "/tracking/parcelNumber", map[string]string{"parcelNumber": p.ParcelNumber})
	s.Require().Equal(http.StatusOK, code)
	var view models.TrackingView
	s.Require().NoError(json.Unmarshal(res.Data, &view))
	s.Equal(models.TrackingStatusPickedUp, view.Status)
	s.Equal("X", view.Location)
	s.Len(view.History, 3)
	s.True(s.mr.Exists("tracking:" + p.ParcelNumber + ":record"))

	code, res = s.do(http.MethodPost, "/parcel/agentidstatus", map[string]string{"agentId": "agent-1", "status": "sent"})
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), p.ParcelNumber)

	code, res = s.do(http.MethodGet, "/parcel/search?q="+strings.ToLower(p.ParcelNumber[3:8]), nil)
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), p.ParcelNumber)

	code, _ = s.do(http.MethodPost, "/parcel/updatestatus", map[string]string{"parcelNumber": p.ParcelNumber, "status": "delivered"})
	s.Require().Equal(http.StatusOK, code)

	code, res = s.do(http.MethodPost, "/parcel/updatestatus", map[string]string{"parcelNumber": p.ParcelNumber, "status": "sent"})
	s.Equal(http.StatusConflict, code)
	s.Equal("INVALID_TRANSITION", res.Code)

	code, res = s.do(http.MethodGet, "/device/alldevices?status=delivered", nil)
	s.Require().Equal(http.StatusOK, code)
	var ds []models.Device
	s.Require().NoError(json.Unmarshal(res.Data, &ds))
	s.Len(ds, 2)

	code, res = s.do(http.MethodGet, "/parcel/allparcels", nil)
	s.Require().Equal(http.StatusOK, code)
	s.JSONEq(`[]`, string(res.Data))
}

func (s *APISuite) TestParcel_ReplayedRequestKey() {
	ctx := context.Background()
	s.Require().NoError(s.st.InsertDevice(ctx, &models.Device{DeviceID: "D1", DeviceName: "D1", Status: models.DeviceStatusAvailable}))
	s.Require().NoError(s.st.InsertAccessory(ctx, &models.Accessory{AccessoryID: "A1", Name: "Cable", Quantity: "5"}))
	s.login()

	code, res := s.do(http.MethodPost, "/parcel/addparcel", map[string]any{
		"pickupLocation": "X", "destination": "Y", "agentId": "agent-1", "devices": []string{"D1"},
	})
	s.Require().Equal(http.StatusCreated, code, res.Message)
	var p models.Parcel
	s.Require().NoError(json.Unmarshal(res.Data, &p))

	body := map[string]any{
		"parcelNumber": p.ParcelNumber,
		"accessories":  []map[string]any{{"accessoryId": "A1", "quantity": 2}},
	}
	s.header.Set("Idempotency-Key", "retry-7")
	code, res = s.do(http.MethodPost, "/parcel/Updateparcel", body)
	s.Require().Equal(http.StatusOK, code, res.Message)

	code, res = s.do(http.MethodPost, "/parcel/Updateparcel", body)
	s.Equal(http.StatusConflict, code)
	s.Equal("DUPLICATE_REQUEST", res.Code)

	a, err := s.st.GetAccessory(ctx, "A1")
	s.Require().NoError(err)
	s.Equal("3", a.Quantity)

	s.header.Del("Idempotency-Key")
	body["idempotencyKey"] = "retry-8"
	code, _ = s.do(http.MethodPost, "/parcel/Updateparcel", body)
	s.Equal(http.StatusOK, code)
	code, res = s.do(http.MethodPost, "/parcel/Updateparcel", body)
	s.Equal("DUPLICATE_REQUEST", res.Code)
	s.Equal(http.StatusConflict, code)
}

func (s *APISuite) TestTrackingGenerate_RejectsPackedParcel() {
	ctx := context.Background()
	s.Require().NoError(s.st.InsertDevice(ctx, &models.Device{DeviceID: "D1", DeviceName: "D1", Status: models.DeviceStatusAvailable}))
	s.login()

	code, res := s.do(http.MethodPost, "/parcel/addparcel", map[string]any{
		"pickupLocation": "X", "destination": "Y", "agentId": "agent-1", "devices": []string{"D1"},
	})
	s.Require().Equal(http.StatusCreated, code, res.Message)
	var p models.Parcel
	s.Require().NoError(json.Unmarshal(res.Data, &p))

	code, res = s.do(http.MethodPost, "/tracking/generate", map[string]string{"parcelNumber": p.ParcelNumber})
	s.Equal(http.StatusConflict, code)
	s.Equal("INVALID_TRANSITION", res.Code)
}

func (s *APISuite) TestTickets() {
	code, res := s.do(http.MethodPost, "/tickets/requestParcel", map[string]any{
		"agentId": "agent-1", "devicesRequested": 2, "accessories": []map[string]any{{"accessoryId": "A1", "quantity": 1}},
	})
	s.Require().Equal(http.StatusCreated, code)
	var t models.Ticket
	s.Require().NoError(json.Unmarshal(res.Data, &t))
	s.Equal(models.TicketStatusOpen, t.Status)

	code, _ = s.do(http.MethodPost, "/tickets/updatestatus", map[string]string{"ticketNumber": t.TicketNumber})
	s.Equal(http.StatusUnauthorized, code)

	supportID := s.login()
	code, res = s.do(http.MethodPost, "/tickets/updatestatus", map[string]string{"ticketNumber": t.TicketNumber})
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), supportID)

	code, res = s.do(http.MethodPost, "/tickets/updatestatus", map[string]string{"ticketNumber": t.TicketNumber})
	s.Equal(http.StatusConflict, code)
	s.Equal("TICKET_ALREADY_ASSIGNED", res.Code)

	code, _ = s.do(http.MethodPost, "/tickets/chat", map[string]string{"ticketNumber": t.TicketNumber, "message": "packing now"})
	s.Require().Equal(http.StatusOK, code)

	code, res = s.do(http.MethodPost, "/tickets/ticketNumber", map[string]string{"ticketNumber": t.TicketNumber})
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), "packing now")

	code, res = s.do(http.MethodGet, "/tickets/alltickets?status=Asigned", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Contains(string(res.Data), t.TicketNumber)

	code, res = s.do(http.MethodPost, "/tickets/ticketNumber", map[string]string{"ticketNumber": "PR-0"})
	s.Equal(http.StatusNotFound, code)
	s.Equal("TICKET_NOT_FOUND", res.Code)
}

func (s *APISuite) TestOperationalRoutes() {
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rr.Code)

	code, res := s.do(http.MethodGet, "/nope", nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("ROUTE_NOT_FOUND", res.Code)

	rr = httptest.NewRecorder()
	s.h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `parcelbox_http_requests_total{code="404",method="GET",route="unmatched"} 1`)
	s.Contains(rr.Body.String(), `route="/healthz"`)
}

func (s *APISuite) TestSwaggerServed() {
	sw := filepath.Join(s.T().TempDir(), "swagger.json")
	s.Require().NoError(os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	h := New(nil, nil, nil, nil, nil).Router(Options{Guard: auth.NewGuard("x", 0, false), SwaggerPath: sw})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/swagger.json", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"swagger"`)
}

func (s *APISuite) TestFail_DeadlineIsTimeout() {
	rr := httptest.NewRecorder()
	fail(rr, httptest.NewRequest(http.MethodPost, "/parcel/updatestatus", nil), errors.Wrap(context.DeadlineExceeded, "update parcel"))
	s.Equal(http.StatusGatewayTimeout, rr.Code)
	s.Contains(rr.Body.String(), `"code":"TIMEOUT"`)

	rr = httptest.NewRecorder()
	fail(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused to 10.0.0.1"))
	s.Equal(http.StatusInternalServerError, rr.Code)
	s.NotContains(rr.Body.String(), "10.0.0.1")
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}
