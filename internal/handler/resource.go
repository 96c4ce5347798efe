package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service"
)

// ResourceService is the resource catalog as seen by HTTP.
type ResourceService interface {
	Create(ctx context.Context, actor model.Actor, in service.CreateResourceInput) (model.Resource, error)
	Get(ctx context.Context, ref model.ResourceRef) (model.Resource, error)
	List(ctx context.Context, actor model.Actor, kind model.ResourceKind) ([]model.Resource, error)
	SetStatus(ctx context.Context, actor model.Actor, ref model.ResourceRef, status string) (model.Resource, error)
}

// AvailabilityService answers occupancy questions.
type AvailabilityService interface {
	IsAvailable(ctx context.Context, ref model.ResourceRef, rng model.DateRange) (bool, error)
	BlockingIntervals(ctx context.Context, ref model.ResourceRef, window model.DateRange) ([]model.DateRange, error)
}

// ResourceHandler serves the public catalog, availability and the host
// resource routes.
type ResourceHandler struct {
	Resources       ResourceService
	AvailabilitySvc AvailabilityService
}

func NewResourceHandler(resources ResourceService, availability AvailabilityService) *ResourceHandler {
	if resources == nil || availability == nil {
		panic("nil service passed to NewResourceHandler")
	}
	return &ResourceHandler{Resources: resources, AvailabilitySvc: availability}
}

// anonymous callers browse the bookable catalog
var visitor = model.Actor{Role: model.RoleGuest}

// ListProperties handles GET /v1/properties.
func (h *ResourceHandler) ListProperties(c echo.Context) error {
	return h.listPublic(c, model.KindProperty)
}

// ListTours handles GET /v1/tours.
func (h *ResourceHandler) ListTours(c echo.Context) error {
	return h.listPublic(c, model.KindTourPackage)
}

func (h *ResourceHandler) listPublic(c echo.Context, kind model.ResourceKind) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Resources.List(ctx, visitor, kind)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// Get handles GET /v1/resources/:kind/:id.
func (h *ResourceHandler) Get(c echo.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Resources.Get(ctx, ref)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Availability handles GET /v1/resources/:kind/:id/availability.
func (h *ResourceHandler) Availability(c echo.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return respondError(c, err)
	}
	rng, err := parseRange(c.QueryParam("check_in"), c.QueryParam("check_out"))
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ok, err := h.AvailabilitySvc.IsAvailable(ctx, ref, rng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"resource":  ref,
		"check_in":  rng.CheckIn.Format("2006-01-02"),
		"check_out": rng.CheckOut.Format("2006-01-02"),
		"available": ok,
	})
}

type blockedRange struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

// Blocked handles GET /v1/resources/:kind/:id/blocked?from=&to= for
// calendar rendering.
func (h *ResourceHandler) Blocked(c echo.Context) error {
	ref, err := parseRef(c)
	if err != nil {
		return respondError(c, err)
	}
	window, err := parseRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ranges, err := h.AvailabilitySvc.BlockingIntervals(ctx, ref, window)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]blockedRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, blockedRange{CheckIn: r.CheckIn.Format("2006-01-02"), CheckOut: r.CheckOut.Format("2006-01-02")})
	}
	return c.JSON(http.StatusOK, echo.Map{"resource": ref, "blocked": out})
}

// CreateProperty handles POST /v1/host/properties (multipart).
func (h *ResourceHandler) CreateProperty(c echo.Context) error {
	return h.create(c, model.KindProperty, "location")
}

// CreateTour handles POST /v1/host/tours (multipart).
func (h *ResourceHandler) CreateTour(c echo.Context) error {
	return h.create(c, model.KindTourPackage, "destination")
}

// create reads title, the location field, max_guests, an optional host_id
// (admins only) and one or more "images" parts.
func (h *ResourceHandler) create(c echo.Context, kind model.ResourceKind, locationField string) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	images, closeImages, err := formUploads(c, "images")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form with images is required"})
	}
	defer closeImages()

	maxGuests, err := strconv.Atoi(strings.TrimSpace(c.FormValue("max_guests")))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_guests must be a number"})
	}
	var hostID uint64
	if raw := strings.TrimSpace(c.FormValue("host_id")); raw != "" {
		if hostID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid host_id"})
		}
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Resources.Create(ctx, actor, service.CreateResourceInput{
		Kind:      kind,
		HostID:    hostID,
		Title:     c.FormValue("title"),
		Location:  c.FormValue(locationField),
		MaxGuests: maxGuests,
		Images:    images,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// HostList handles GET /v1/host/resources?kind=.
func (h *ResourceHandler) HostList(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var kind model.ResourceKind
	if raw := c.QueryParam("kind"); raw != "" {
		k, err := model.ParseResourceKind(raw)
		if err != nil {
			return respondError(c, err)
		}
		kind = k
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Resources.List(ctx, actor, kind)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

type resourceStatusReq struct {
	Status string `json:"status" validate:"required"`
}

// SetStatus handles PATCH /v1/host/resources/:kind/:id/status.
func (h *ResourceHandler) SetStatus(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ref, err := parseRef(c)
	if err != nil {
		return respondError(c, err)
	}
	var req resourceStatusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Resources.SetStatus(ctx, actor, ref, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
