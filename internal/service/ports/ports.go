// Package ports declares the collaborators the booking core talks to.
// Repositories, the lock, the queue publisher and the media store
// implement them; tests substitute in-memory fakes.
package ports

import (
	"context"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/queue"
)

// ResourceRegistry is the read side of the resource catalog.
type ResourceRegistry interface {
	Get(ctx context.Context, ref model.ResourceRef) (model.Resource, error)
	IDsByHost(ctx context.Context, hostID uint64) (model.ResourceIDs, error)
}

type ResourceStore interface {
	ResourceRegistry
	CreateProperty(ctx context.Context, p *model.Property) error
	CreateTourPackage(ctx context.Context, t *model.TourPackage) error
	List(ctx context.Context, f model.ResourceFilter) ([]model.Resource, error)
	SetStatus(ctx context.Context, ref model.ResourceRef, status string) error
}

// BookingStore persists bookings.  Every write that depends on occupancy
// goes through InTx so the check and the write share one transaction.
type BookingStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	ActiveIntervals(ctx context.Context, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error)
	Delete(ctx context.Context, id uint64) error
	InTx(ctx context.Context, fn func(tx BookingTx) error) error
}

// BookingTx is the transactional view handed to InTx callbacks.
type BookingTx interface {
	// LockResource loads the resource row and holds it until commit.
	LockResource(ctx context.Context, ref model.ResourceRef) (model.Resource, error)
	// ActiveIntervals lists PENDING/CONFIRMED ranges on ref, skipping excludeID.
	ActiveIntervals(ctx context.Context, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
	Insert(ctx context.Context, b *model.Booking) error
	Update(ctx context.Context, b *model.Booking) error
}

type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Notifier interface {
	PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

type MediaStore interface {
	Store(ctx context.Context, files []model.Upload) ([]string, error)
	Remove(ctx context.Context, key string) error
}

type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}
