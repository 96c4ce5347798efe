package handler // handler defines http handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stay-reservation/internal/middleware"
	"github.com/iliyamo/stay-reservation/internal/model"
)

// requestTimeout bounds every handler's work; a reservation may spend part
// of it waiting for the resource lock.
const requestTimeout = 10 * time.Second

// RequestValidator plugs go-playground/validator into echo.Context.Validate.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator reports fields by their json names.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// bind decodes and validates the request body into dst.  The returned error
// is already an HTTP response.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err.Error()
	}
	fe := ve[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date (YYYY-MM-DD)"
	case "email":
		return field + " must be an email address"
	}
	return field + " is invalid (" + fe.Tag() + ")"
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// actorOf returns the caller set by JWTAuth.  Routes behind JWTAuth always
// have one; ok=false means the route was mounted without it.
func actorOf(c echo.Context) (model.Actor, bool) {
	return middleware.ActorFrom(c)
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseRef reads the :kind and :id path parameters.  kind accepts
// "properties"/"tours" as well as the enum values.
func parseRef(c echo.Context) (model.ResourceRef, error) {
	kind, err := model.ParseResourceKind(c.Param("kind"))
	if err != nil {
		return model.ResourceRef{}, err
	}
	id, ok := parseID(c, "id")
	if !ok {
		return model.ResourceRef{}, fmt.Errorf("%w: invalid resource id", model.ErrValidation)
	}
	return model.ResourceRef{Kind: kind, ID: id}, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date (YYYY-MM-DD)", model.ErrValidation, s)
	}
	return t, nil
}

func parseRange(in, out string) (model.DateRange, error) {
	ci, err := parseDate(in)
	if err != nil {
		return model.DateRange{}, err
	}
	co, err := parseDate(out)
	if err != nil {
		return model.DateRange{}, err
	}
	return model.DateRange{CheckIn: ci, CheckOut: co}, nil
}

// formUploads opens every file sent under field.  The returned closer must
// be called once the uploads have been consumed.
func formUploads(c echo.Context, field string) ([]model.Upload, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, func() {}, err
	}
	headers := form.File[field]
	uploads := make([]model.Upload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		uploads = append(uploads, model.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
