package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service"
)

// BookingService is the booking core as seen by HTTP.
type BookingService interface {
	Reserve(ctx context.Context, actor model.Actor, req service.ReserveRequest) (service.Result, error)
	ModifyDates(ctx context.Context, actor model.Actor, id uint64, rng model.DateRange) (service.Result, error)
	Get(ctx context.Context, actor model.Actor, id uint64) (*model.Booking, error)
	List(ctx context.Context, actor model.Actor, status model.BookingStatus) ([]model.Booking, error)
	Export(ctx context.Context, actor model.Actor, status model.BookingStatus, w io.Writer) error
	UpdateStatus(ctx context.Context, actor model.Actor, id uint64, change model.Change, reason string) (service.Result, error)
	Cancel(ctx context.Context, actor model.Actor, id uint64, reason string) (service.Result, error)
	AddAttachments(ctx context.Context, actor model.Actor, id uint64, files []model.Upload) (service.Result, error)
	RemoveAttachment(ctx context.Context, actor model.Actor, id uint64, key string) (service.Result, error)
	Delete(ctx context.Context, actor model.Actor, id uint64) (service.Result, error)
}

// BookingHandler serves the /v1/bookings routes.  Every route is behind
// JWTAuth; scoping by role happens in the service.
type BookingHandler struct {
	Bookings BookingService
}

func NewBookingHandler(bookings BookingService) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings}
}

type reserveReq struct {
	ResourceKind    string `json:"resource_kind" validate:"required"`
	ResourceID      uint64 `json:"resource_id" validate:"required"`
	CheckIn         string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut        string `json:"check_out" validate:"required,datetime=2006-01-02"`
	Guests          int    `json:"guests" validate:"required,min=1,max=20"`
	TotalPriceCents int64  `json:"total_price_cents" validate:"required,gt=0"`
}

type datesReq struct {
	CheckIn  string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut string `json:"check_out" validate:"required,datetime=2006-01-02"`
}

type statusReq struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Reason        string `json:"reason" validate:"max=255"`
}

type cancelReq struct {
	Reason string `json:"reason" validate:"max=255"`
}

type detachReq struct {
	Key string `json:"key" validate:"required"`
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reserveReq
	if err := bind(c, &req); err != nil {
		return err
	}
	kind, err := model.ParseResourceKind(req.ResourceKind)
	if err != nil {
		return respondError(c, err)
	}
	rng, err := parseRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid dates"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.Reserve(ctx, actor, service.ReserveRequest{
		Ref:             model.ResourceRef{Kind: kind, ID: req.ResourceID},
		Range:           rng,
		Guests:          req.Guests,
		TotalPriceCents: req.TotalPriceCents,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// List handles GET /v1/bookings?status=.
func (h *BookingHandler) List(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	status, err := statusFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Bookings.List(ctx, actor, status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": items, "count": len(items)})
}

// Export handles GET /v1/bookings/export and answers text/csv.
func (h *BookingHandler) Export(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	status, err := statusFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	var buf bytes.Buffer
	if err := h.Bookings.Export(ctx, actor, status, &buf); err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="bookings.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	b, err := h.Bookings.Get(ctx, actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ModifyDates handles PATCH /v1/bookings/:id/dates.
func (h *BookingHandler) ModifyDates(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req datesReq
	if err := bind(c, &req); err != nil {
		return err
	}
	rng, err := parseRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid dates"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.ModifyDates(ctx, actor, id, rng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateStatus handles PATCH /v1/bookings/:id/status (hosts and admins).
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req statusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	var change model.Change
	if strings.TrimSpace(req.Status) != "" {
		st, err := model.ParseBookingStatus(req.Status)
		if err != nil {
			return respondError(c, err)
		}
		change.Booking = st
	}
	if strings.TrimSpace(req.PaymentStatus) != "" {
		ps, err := model.ParsePaymentStatus(req.PaymentStatus)
		if err != nil {
			return respondError(c, err)
		}
		change.Payment = ps
	}
	if change.Empty() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status or payment_status is required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.UpdateStatus(ctx, actor, id, change, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel handles POST /v1/bookings/:id/cancel.  The body is optional.
func (h *BookingHandler) Cancel(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req cancelReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.Cancel(ctx, actor, id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AddAttachments handles POST /v1/bookings/:id/attachments as
// multipart/form-data with one or more "files" parts.
func (h *BookingHandler) AddAttachments(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	files, closeFiles, err := formUploads(c, "files")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form with files is required"})
	}
	defer closeFiles()
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "files is required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.AddAttachments(ctx, actor, id, files)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// RemoveAttachment handles DELETE /v1/bookings/:id/attachments with the
// key in the body.
func (h *BookingHandler) RemoveAttachment(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req detachReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.RemoveAttachment(ctx, actor, id, req.Key)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/admin/bookings/:id.
func (h *BookingHandler) Delete(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Bookings.Delete(ctx, actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func statusFilter(c echo.Context) (model.BookingStatus, error) {
	raw := strings.TrimSpace(c.QueryParam("status"))
	if raw == "" {
		return "", nil
	}
	return model.ParseBookingStatus(raw)
}
