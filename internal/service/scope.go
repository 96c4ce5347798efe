package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

// Action is what an actor wants to do with a booking.
type Action int

const (
	ActionView Action = iota
	ActionModifyDates
	ActionCancel
	ActionSetStatus
	ActionAttach
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionModifyDates:
		return "modify dates of"
	case ActionCancel:
		return "cancel"
	case ActionSetStatus:
		return "change status of"
	case ActionAttach:
		return "manage attachments of"
	case ActionDelete:
		return "delete"
	}
	return "act on"
}

// guests may only touch their own bookings, and only in these ways
var guestActions = map[Action]bool{
	ActionView:        true,
	ActionModifyDates: true,
	ActionCancel:      true,
	ActionAttach:      true,
}

// Scoper resolves what an actor may see and change.  Host ownership of a
// booking is always derived from the referenced resource's owner, never
// from the booking's requesting user.
type Scoper struct {
	registry ports.ResourceRegistry
}

func NewScoper(registry ports.ResourceRegistry) *Scoper {
	return &Scoper{registry: registry}
}

// VisibleBookings returns the booking filter for actor, optionally narrowed
// to one status.  A host without resources gets a filter that matches
// nothing.
func (s *Scoper) VisibleBookings(ctx context.Context, actor model.Actor, status model.BookingStatus) (model.BookingFilter, error) {
	switch actor.Role {
	case model.RoleAdmin:
		return model.BookingFilter{All: true, Status: status}, nil
	case model.RoleHost:
		ids, err := s.registry.IDsByHost(ctx, actor.ID)
		if err != nil {
			return model.BookingFilter{}, fmt.Errorf("resolve resources of host %d: %w", actor.ID, err)
		}
		return model.BookingFilter{
			PropertyIDs:    ids.PropertyIDs,
			TourPackageIDs: ids.TourPackageIDs,
			Status:         status,
		}, nil
	case model.RoleGuest:
		id := actor.ID
		return model.BookingFilter{UserID: &id, Status: status}, nil
	}
	return model.BookingFilter{}, fmt.Errorf("%w: unknown role %q", model.ErrForbidden, actor.Role)
}

// VisibleResources: admins see everything, hosts their own resources and
// everyone else the bookable catalog.
func (s *Scoper) VisibleResources(actor model.Actor) model.ResourceFilter {
	switch actor.Role {
	case model.RoleAdmin:
		return model.ResourceFilter{}
	case model.RoleHost:
		id := actor.ID
		return model.ResourceFilter{HostID: &id}
	}
	return model.ResourceFilter{BookableOnly: true}
}

// AuthorizeBooking returns nil when actor may perform action on b and an
// ErrForbidden otherwise.
func (s *Scoper) AuthorizeBooking(ctx context.Context, actor model.Actor, b *model.Booking, action Action) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleHost:
		if action == ActionDelete {
			break
		}
		ref, err := b.Ref()
		if err != nil {
			return err
		}
		owns, err := s.ownsResource(ctx, actor, ref)
		if err != nil {
			return err
		}
		if owns {
			return nil
		}
	case model.RoleGuest:
		if b.UserID == actor.ID && guestActions[action] {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s booking %d", model.ErrForbidden, action, b.ID)
}

// CanViewBooking is AuthorizeBooking for ActionView as a boolean.
func (s *Scoper) CanViewBooking(ctx context.Context, actor model.Actor, b *model.Booking) (bool, error) {
	err := s.AuthorizeBooking(ctx, actor, b, ActionView)
	if errors.Is(err, model.ErrForbidden) {
		return false, nil
	}
	return err == nil, err
}

// AuthorizeResource allows the owning host and admins.
func (s *Scoper) AuthorizeResource(actor model.Actor, res model.Resource) error {
	if actor.IsAdmin() || (actor.IsHost() && res.OwnerID() == actor.ID) {
		return nil
	}
	return fmt.Errorf("%w: %s belongs to another host", model.ErrForbidden, res.Ref())
}

// a vanished resource has no owner, so nobody but an admin owns it
func (s *Scoper) ownsResource(ctx context.Context, actor model.Actor, ref model.ResourceRef) (bool, error) {
	res, err := s.registry.Get(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve owner of %s: %w", ref, err)
	}
	return res.OwnerID() == actor.ID, nil
}
