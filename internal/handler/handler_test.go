package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/stay-reservation/internal/middleware"
	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service"
	"github.com/iliyamo/stay-reservation/internal/utils"
)

const testSecret = "handler-secret"

type mockBookings struct{ mock.Mock }

func (m *mockBookings) Reserve(ctx context.Context, a model.Actor, req service.ReserveRequest) (service.Result, error) {
	args := m.Called(a, req)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *mockBookings) ModifyDates(ctx context.Context, a model.Actor, id uint64, rng model.DateRange) (service.Result, error) {
	args := m.Called(a, id, rng)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *mockBookings) Get(ctx context.Context, a model.Actor, id uint64) (*model.Booking, error) {
	args := m.Called(a, id)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) List(ctx context.Context, a model.Actor, st model.BookingStatus) ([]model.Booking, error) {
	args := m.Called(a, st)
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *mockBookings) Export(ctx context.Context, a model.Actor, st model.BookingStatus, w io.Writer) error {
	args := m.Called(a, st)
	_, _ = io.WriteString(w, "id\n1\n")
	return args.Error(0)
}

func (m *mockBookings) UpdateStatus(ctx context.Context, a model.Actor, id uint64, ch model.Change, reason string) (service.Result, error) {
	args := m.Called(a, id, ch, reason)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *mockBookings) Cancel(ctx context.Context, a model.Actor, id uint64, reason string) (service.Result, error) {
	args := m.Called(a, id, reason)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *mockBookings) AddAttachments(ctx context.Context, a model.Actor, id uint64, files []model.Upload) (service.Result, error) {
	names := make([]string, 0, len(files))
	for _, f := range files {
		body, _ := io.ReadAll(f.Body)
		names = append(names, f.Filename+":"+string(body))
	}
	args := m.Called(a, id, names)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *mockBookings) RemoveAttachment(ctx context.Context, a model.Actor, id uint64, key string) (service.Result, error) {
	args := m.Called(a, id, key)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *mockBookings) Delete(ctx context.Context, a model.Actor, id uint64) (service.Result, error) {
	args := m.Called(a, id)
	return args.Get(0).(service.Result), args.Error(1)
}

type mockResources struct{ mock.Mock }

func (m *mockResources) Create(ctx context.Context, a model.Actor, in service.CreateResourceInput) (model.Resource, error) {
	args := m.Called(a, in.Kind, in.Title, in.Location, in.MaxGuests, len(in.Images))
	r, _ := args.Get(0).(model.Resource)
	return r, args.Error(1)
}

func (m *mockResources) Get(ctx context.Context, ref model.ResourceRef) (model.Resource, error) {
	args := m.Called(ref)
	r, _ := args.Get(0).(model.Resource)
	return r, args.Error(1)
}

func (m *mockResources) List(ctx context.Context, a model.Actor, kind model.ResourceKind) ([]model.Resource, error) {
	args := m.Called(a, kind)
	return args.Get(0).([]model.Resource), args.Error(1)
}

func (m *mockResources) SetStatus(ctx context.Context, a model.Actor, ref model.ResourceRef, status string) (model.Resource, error) {
	args := m.Called(a, ref, status)
	r, _ := args.Get(0).(model.Resource)
	return r, args.Error(1)
}

type mockAvailability struct{ mock.Mock }

func (m *mockAvailability) IsAvailable(ctx context.Context, ref model.ResourceRef, rng model.DateRange) (bool, error) {
	args := m.Called(ref, rng)
	return args.Bool(0), args.Error(1)
}

func (m *mockAvailability) BlockingIntervals(ctx context.Context, ref model.ResourceRef, w model.DateRange) ([]model.DateRange, error) {
	args := m.Called(ref, w)
	return args.Get(0).([]model.DateRange), args.Error(1)
}

type testServer struct {
	e         *echo.Echo
	bookings  *mockBookings
	resources *mockResources
	avail     *mockAvailability
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{e: echo.New(), bookings: &mockBookings{}, resources: &mockResources{}, avail: &mockAvailability{}}
	s.e.Validator = NewRequestValidator()
	bh := NewBookingHandler(s.bookings)
	rh := NewResourceHandler(s.resources, s.avail)

	s.e.GET("/v1/properties", rh.ListProperties)
	s.e.GET("/v1/resources/:kind/:id", rh.Get)
	s.e.GET("/v1/resources/:kind/:id/availability", rh.Availability)
	s.e.GET("/v1/resources/:kind/:id/blocked", rh.Blocked)

	g := s.e.Group("/v1", middleware.JWTAuth(testSecret))
	g.POST("/bookings", bh.Create)
	g.GET("/bookings", bh.List)
	g.GET("/bookings/export", bh.Export)
	g.GET("/bookings/:id", bh.Get)
	g.PATCH("/bookings/:id/dates", bh.ModifyDates)
	g.POST("/bookings/:id/cancel", bh.Cancel)
	g.POST("/bookings/:id/attachments", bh.AddAttachments)
	g.DELETE("/bookings/:id/attachments", bh.RemoveAttachment)
	g.PATCH("/bookings/:id/status", bh.UpdateStatus, middleware.RequireRole(model.RoleHost, model.RoleAdmin))
	g.POST("/host/properties", rh.CreateProperty, middleware.RequireRole(model.RoleHost, model.RoleAdmin))
	g.PATCH("/host/resources/:kind/:id/status", rh.SetStatus, middleware.RequireRole(model.RoleHost, model.RoleAdmin))

	t.Cleanup(func() {
		s.bookings.AssertExpectations(t)
		s.resources.AssertExpectations(t)
		s.avail.AssertExpectations(t)
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, actor *model.Actor, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if actor != nil {
		tok, err := utils.NewAccessToken(testSecret, actor.ID, actor.Role, 5)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path string, actor *model.Actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, actor, strings.NewReader(body), echo.MIMEApplicationJSON)
}

var (
	guest = &model.Actor{ID: 1, Role: model.RoleGuest}
	host  = &model.Actor{ID: 10, Role: model.RoleHost}
	admin = &model.Actor{ID: 99, Role: model.RoleAdmin}
)

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateBooking(t *testing.T) {
	s := newTestServer(t)
	pid := uint64(3)
	want := service.ReserveRequest{
		Ref:             model.ResourceRef{Kind: model.KindProperty, ID: 3},
		Range:           model.DateRange{CheckIn: day("2025-01-03"), CheckOut: day("2025-01-05")},
		Guests:          2,
		TotalPriceCents: 20000,
	}
	s.bookings.On("Reserve", *guest, want).Return(service.Result{
		Booking:  &model.Booking{ID: 7, UserID: 1, PropertyID: &pid, Status: model.BookingPending, PaymentStatus: model.PaymentPending},
		Warnings: []string{"notification could not be sent"},
	}, nil)

	rec := s.doJSON(t, http.MethodPost, "/v1/bookings", guest,
		`{"resource_kind":"property","resource_id":3,"check_in":"2025-01-03","check_out":"2025-01-05","guests":2,"total_price_cents":20000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, float64(7), out["booking"].(map[string]any)["id"])
	assert.Equal(t, []any{"notification could not be sent"}, out["warnings"])
}

func TestCreateBooking_RequestValidation(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]string{
		"bad json":      `{`,
		"missing dates": `{"resource_kind":"property","resource_id":3,"guests":2,"total_price_cents":1}`,
		"bad date":      `{"resource_kind":"property","resource_id":3,"check_in":"03/01/2025","check_out":"2025-01-05","guests":2,"total_price_cents":1}`,
		"too many":      `{"resource_kind":"property","resource_id":3,"check_in":"2025-01-03","check_out":"2025-01-05","guests":21,"total_price_cents":1}`,
		"unknown kind":  `{"resource_kind":"castle","resource_id":3,"check_in":"2025-01-03","check_out":"2025-01-05","guests":2,"total_price_cents":1}`,
		"no price":      `{"resource_kind":"property","resource_id":3,"check_in":"2025-01-03","check_out":"2025-01-05","guests":2}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.doJSON(t, http.MethodPost, "/v1/bookings", guest, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := s.doJSON(t, http.MethodPost, "/v1/bookings", nil, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{fmt.Errorf("reserve: %w", model.ErrConflict), http.StatusConflict, "conflict"},
		{model.ErrTimeout, http.StatusConflict, "reservation_busy"},
		{model.ErrForbidden, http.StatusForbidden, "forbidden"},
		{model.ErrNotFound, http.StatusNotFound, "not found"},
		{model.ErrValidation, http.StatusBadRequest, "validation"},
		{model.ErrUnavailable, http.StatusServiceUnavailable, "dependency unavailable"},
		{errors.New("db exploded"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			s := newTestServer(t)
			s.bookings.On("Reserve", *host, mock.Anything).Return(service.Result{}, tc.err)
			rec := s.doJSON(t, http.MethodPost, "/v1/bookings", host,
				`{"resource_kind":"tours","resource_id":3,"check_in":"2025-01-03","check_out":"2025-01-05","guests":2,"total_price_cents":1}`)
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
			assert.NotContains(t, rec.Body.String(), "db exploded")
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	s := newTestServer(t)
	s.bookings.On("UpdateStatus", *host, uint64(4), model.Change{Payment: model.PaymentPaid}, "").
		Return(service.Result{Booking: &model.Booking{ID: 4, Status: model.BookingConfirmed, PaymentStatus: model.PaymentPaid}}, nil)
	s.bookings.On("UpdateStatus", *admin, uint64(4), model.Change{Booking: model.BookingCancelled}, "fraud").
		Return(service.Result{}, fmt.Errorf("update booking 4: %w", model.ErrInvalidTransition))

	rec := s.doJSON(t, http.MethodPatch, "/v1/bookings/4/status", host, `{"payment_status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFIRMED", decode(t, rec)["booking"].(map[string]any)["status"])

	rec = s.doJSON(t, http.MethodPatch, "/v1/bookings/4/status", admin, `{"status":"cancelled","reason":"fraud"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.doJSON(t, http.MethodPatch, "/v1/bookings/4/status", guest, `{"status":"CONFIRMED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(t, http.MethodPatch, "/v1/bookings/4/status", host, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodPatch, "/v1/bookings/4/status", host, `{"status":"ARCHIVED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelGetListDelete(t *testing.T) {
	s := newTestServer(t)
	s.bookings.On("Cancel", *guest, uint64(5), "").Return(service.Result{Booking: &model.Booking{ID: 5}}, nil)
	s.bookings.On("Cancel", *guest, uint64(6), "plans changed").Return(service.Result{Booking: &model.Booking{ID: 6}}, nil)
	s.bookings.On("Get", *guest, uint64(8)).Return(nil, model.ErrNotFound)
	s.bookings.On("List", *guest, model.BookingConfirmed).Return([]model.Booking{{ID: 1}, {ID: 2}}, nil)

	rec := s.do(t, http.MethodPost, "/v1/bookings/5/cancel", guest, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/v1/bookings/6/cancel", guest, `{"reason":"plans changed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/bookings/8", guest, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/bookings/abc", guest, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/bookings?status=confirmed", guest, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])

	rec = s.do(t, http.MethodGet, "/v1/bookings?status=nope", guest, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModifyDates(t *testing.T) {
	s := newTestServer(t)
	rng := model.DateRange{CheckIn: day("2025-02-01"), CheckOut: day("2025-02-04")}
	s.bookings.On("ModifyDates", *guest, uint64(3), rng).Return(service.Result{Booking: &model.Booking{ID: 3}}, nil)

	rec := s.doJSON(t, http.MethodPatch, "/v1/bookings/3/dates", guest, `{"check_in":"2025-02-01","check_out":"2025-02-04"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	s.bookings.On("Export", *host, model.BookingStatus("")).Return(nil)

	rec := s.do(t, http.MethodGet, "/v1/bookings/export", host, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "bookings.csv")
	assert.Equal(t, "id\n1\n", rec.Body.String())
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		part, err := w.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAttachments(t *testing.T) {
	s := newTestServer(t)
	s.bookings.On("AddAttachments", *guest, uint64(2), []string{"receipt.pdf:%PDF"}).
		Return(service.Result{Booking: &model.Booking{ID: 2, Attachments: []string{"media/k.pdf"}}}, nil)
	s.bookings.On("RemoveAttachment", *guest, uint64(2), "media/k.pdf").
		Return(service.Result{Booking: &model.Booking{ID: 2}, Warnings: []string{"attachment media/k.pdf could not be removed from storage"}}, nil)

	body, ct := multipartBody(t, nil, "files", map[string]string{"receipt.pdf": "%PDF"})
	rec := s.do(t, http.MethodPost, "/v1/bookings/2/attachments", guest, body, ct)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.doJSON(t, http.MethodPost, "/v1/bookings/2/attachments", guest, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodDelete, "/v1/bookings/2/attachments", guest, `{"key":"media/k.pdf"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["warnings"], 1)
}

func TestAvailabilityEndpoints(t *testing.T) {
	s := newTestServer(t)
	ref := model.ResourceRef{Kind: model.KindTourPackage, ID: 4}
	s.avail.On("IsAvailable", ref, model.DateRange{CheckIn: day("2025-01-03"), CheckOut: day("2025-01-05")}).Return(false, nil)
	s.avail.On("BlockingIntervals", ref, model.DateRange{CheckIn: day("2025-01-01"), CheckOut: day("2025-02-01")}).
		Return([]model.DateRange{{CheckIn: day("2025-01-03"), CheckOut: day("2025-01-05")}}, nil)

	rec := s.do(t, http.MethodGet, "/v1/resources/tours/4/availability?check_in=2025-01-03&check_out=2025-01-05", nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decode(t, rec)["available"])

	rec = s.do(t, http.MethodGet, "/v1/resources/tours/4/blocked?from=2025-01-01&to=2025-02-01", nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{map[string]any{"check_in": "2025-01-03", "check_out": "2025-01-05"}}, decode(t, rec)["blocked"])

	rec = s.do(t, http.MethodGet, "/v1/resources/tours/4/availability?check_in=soon", nil, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/resources/boats/4/availability?check_in=2025-01-03&check_out=2025-01-05", nil, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalog(t *testing.T) {
	s := newTestServer(t)
	s.resources.On("List", visitor, model.KindProperty).
		Return([]model.Resource{&model.Property{ID: 1, Title: "Loft", Status: model.PropertyAvailable}}, nil)
	s.resources.On("Get", model.ResourceRef{Kind: model.KindProperty, ID: 9}).Return(nil, model.ErrNotFound)

	rec := s.do(t, http.MethodGet, "/v1/properties", nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = s.do(t, http.MethodGet, "/v1/resources/properties/9", nil, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHostResources(t *testing.T) {
	s := newTestServer(t)
	s.resources.On("Create", *host, model.KindProperty, "Loft", "Rome", 3, 2).
		Return(&model.Property{ID: 11, HostID: 10, Title: "Loft"}, nil)
	s.resources.On("SetStatus", *host, model.ResourceRef{Kind: model.KindProperty, ID: 11}, "INACTIVE").
		Return(&model.Property{ID: 11, Status: model.PropertyInactive}, nil)

	body, ct := multipartBody(t, map[string]string{"title": "Loft", "location": "Rome", "max_guests": "3"},
		"images", map[string]string{"a.jpg": "x", "b.jpg": "y"})
	rec := s.do(t, http.MethodPost, "/v1/host/properties", host, body, ct)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body, ct = multipartBody(t, map[string]string{"title": "Loft", "location": "Rome", "max_guests": "many"},
		"images", map[string]string{"a.jpg": "x"})
	rec = s.do(t, http.MethodPost, "/v1/host/properties", host, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(t, http.MethodPatch, "/v1/host/resources/properties/11/status", host, `{"status":"INACTIVE"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.doJSON(t, http.MethodPatch, "/v1/host/resources/properties/11/status", guest, `{"status":"INACTIVE"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health(failingPinger{}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	e = echo.New()
	e.GET("/healthz", Health(nil))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("down") }
