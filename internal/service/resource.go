package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

// CreateResourceInput describes a new property or tour package.  Location
// is the property's address or the tour's destination.  HostID lets an
// admin create on behalf of a host; hosts always own what they create.
type CreateResourceInput struct {
	Kind      model.ResourceKind
	HostID    uint64
	Title     string
	Location  string
	MaxGuests int
	Images    []model.Upload
}

// ResourceService is the host/admin side of the resource catalog.
type ResourceService struct {
	store  ports.ResourceStore
	media  ports.MediaStore
	scope  *Scoper
	logger *log.Logger
}

func NewResourceService(store ports.ResourceStore, media ports.MediaStore, logger *log.Logger) *ResourceService {
	if logger == nil {
		logger = log.New("resource")
	}
	return &ResourceService{store: store, media: media, scope: NewScoper(store), logger: logger}
}

// Create stores the images first; a resource without at least one stored
// image is never persisted.
func (s *ResourceService) Create(ctx context.Context, actor model.Actor, in CreateResourceInput) (model.Resource, error) {
	if !actor.IsHost() && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only hosts and admins create resources", model.ErrForbidden)
	}
	owner := actor.ID
	if actor.IsAdmin() && in.HostID != 0 {
		owner = in.HostID
	}
	in.Title, in.Location = strings.TrimSpace(in.Title), strings.TrimSpace(in.Location)
	switch {
	case in.Kind != model.KindProperty && in.Kind != model.KindTourPackage:
		return nil, fmt.Errorf("%w: unknown resource kind %q", model.ErrValidation, in.Kind)
	case in.Title == "" || in.Location == "":
		return nil, fmt.Errorf("%w: title and location are required", model.ErrValidation)
	case in.MaxGuests < 1:
		return nil, fmt.Errorf("%w: max_guests must be at least 1", model.ErrValidation)
	case len(in.Images) == 0:
		return nil, fmt.Errorf("%w: at least one image is required", model.ErrValidation)
	}
	if s.media == nil {
		return nil, fmt.Errorf("%w: media store is not configured", model.ErrUnavailable)
	}
	keys, err := s.media.Store(ctx, in.Images)
	if errors.Is(err, model.ErrValidation) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: store images: %v", model.ErrUnavailable, err)
	}

	var res model.Resource
	if in.Kind == model.KindProperty {
		p := &model.Property{HostID: owner, Title: in.Title, Location: in.Location,
			Status: model.PropertyAvailable, MaxGuests: in.MaxGuests, Images: keys}
		res, err = p, s.store.CreateProperty(ctx, p)
	} else {
		t := &model.TourPackage{HostID: owner, Title: in.Title, Destination: in.Location,
			Status: model.TourAvailable, MaxGuests: in.MaxGuests, Images: keys}
		res, err = t, s.store.CreateTourPackage(ctx, t)
	}
	if err != nil {
		for _, k := range keys {
			if rmErr := s.media.Remove(ctx, k); rmErr != nil {
				s.logger.Warnj(log.JSON{"event": "media_remove_failed", "key": k, "error": rmErr.Error()})
			}
		}
		return nil, fmt.Errorf("create %s: %w", strings.ToLower(string(in.Kind)), err)
	}
	return res, nil
}

func (s *ResourceService) Get(ctx context.Context, ref model.ResourceRef) (model.Resource, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, ref)
}

// List returns the resources of kind visible to actor.  An empty kind lists
// both.
func (s *ResourceService) List(ctx context.Context, actor model.Actor, kind model.ResourceKind) ([]model.Resource, error) {
	f := s.scope.VisibleResources(actor)
	f.Kind = kind
	return s.store.List(ctx, f)
}

// SetStatus changes a resource's availability status.  Resources are
// deactivated this way rather than deleted.
func (s *ResourceService) SetStatus(ctx context.Context, actor model.Actor, ref model.ResourceRef, status string) (model.Resource, error) {
	res, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.scope.AuthorizeResource(actor, res); err != nil {
		return nil, err
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	if !model.ValidStatus(ref.Kind, status) {
		return nil, fmt.Errorf("%w: %q is not a %s status", model.ErrValidation, status, strings.ToLower(string(ref.Kind)))
	}
	if err := s.store.SetStatus(ctx, ref, status); err != nil {
		return nil, fmt.Errorf("set status of %s: %w", ref, err)
	}
	return s.store.Get(ctx, ref)
}
