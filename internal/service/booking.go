package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/queue"
	"github.com/iliyamo/stay-reservation/internal/report"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

// Result is a successful write plus any non-fatal collaborator failures
// (notification, media cleanup).  Warnings never mean the write failed.
type Result struct {
	Booking  *model.Booking `json:"booking"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (r *Result) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// ReserveRequest is the input of Reserve.
type ReserveRequest struct {
	Ref             model.ResourceRef
	Range           model.DateRange
	Guests          int
	TotalPriceCents int64
}

// BookingService owns the reservation transaction and the booking state
// machine.  Every method is scoped through the Scoper before it reads or
// writes.
type BookingService struct {
	bookings ports.BookingStore
	registry ports.ResourceRegistry
	scope    *Scoper
	locker   ports.Locker
	notifier ports.Notifier
	media    ports.MediaStore
	users    ports.UserDirectory
	logger   *log.Logger
	now      func() time.Time
}

// NewBookingService wires the booking core.  notifier, media and users may
// be nil; the related side effects are then skipped.
func NewBookingService(
	bookings ports.BookingStore,
	registry ports.ResourceRegistry,
	locker ports.Locker,
	notifier ports.Notifier,
	media ports.MediaStore,
	users ports.UserDirectory,
	logger *log.Logger,
) *BookingService {
	if logger == nil {
		logger = log.New("booking")
	}
	return &BookingService{
		bookings: bookings,
		registry: registry,
		scope:    NewScoper(registry),
		locker:   locker,
		notifier: notifier,
		media:    media,
		users:    users,
		logger:   logger,
		now:      time.Now,
	}
}

// Reserve creates a PENDING booking if the resource is free for the
// requested range.  The occupancy check and the insert run inside the
// resource's critical section and one transaction that row-locks the
// resource, so two overlapping requests can never both succeed.
func (s *BookingService) Reserve(ctx context.Context, actor model.Actor, req ReserveRequest) (Result, error) {
	if actor.IsHost() {
		return Result{}, fmt.Errorf("%w: hosts cannot place bookings", model.ErrForbidden)
	}
	if err := req.Ref.Validate(); err != nil {
		return Result{}, err
	}
	if err := validateStay(req.Range, s.now()); err != nil {
		return Result{}, err
	}
	if err := model.ValidateGuests(req.Guests); err != nil {
		return Result{}, err
	}
	if req.TotalPriceCents <= 0 {
		return Result{}, fmt.Errorf("%w: total price must be positive", model.ErrValidation)
	}

	b := &model.Booking{
		UserID:          actor.ID,
		CheckIn:         req.Range.CheckIn,
		CheckOut:        req.Range.CheckOut,
		Guests:          req.Guests,
		TotalPriceCents: req.TotalPriceCents,
		Status:          model.BookingPending,
		PaymentStatus:   model.PaymentPending,
	}
	b.PropertyID, b.TourPackageID = model.RefFor(req.Ref)
	if err := b.Validate(); err != nil {
		return Result{}, err
	}

	err := s.withResource(ctx, req.Ref, func(tx ports.BookingTx) error {
		res, err := tx.LockResource(ctx, req.Ref)
		if err != nil {
			return err
		}
		if !res.Bookable() {
			return fmt.Errorf("%w: %s is not accepting reservations", model.ErrConflict, req.Ref)
		}
		if c := res.Capacity(); c > 0 && req.Guests > c {
			return fmt.Errorf("%w: %s holds at most %d guests", model.ErrValidation, req.Ref, c)
		}
		if err := ensureFree(ctx, tx, req.Ref, 0, req.Range); err != nil {
			return err
		}
		return tx.Insert(ctx, b)
	})
	if err != nil {
		return Result{}, fmt.Errorf("reserve %s: %w", req.Ref, err)
	}

	out := Result{Booking: b}
	s.notify(ctx, &out, queue.EventCreated)
	return out, nil
}

// ModifyDates moves an active booking to rng, re-running the same atomic
// occupancy check with the booking excluded from its own conflict set.
func (s *BookingService) ModifyDates(ctx context.Context, actor model.Actor, id uint64, rng model.DateRange) (Result, error) {
	if err := validateStay(rng, s.now()); err != nil {
		return Result{}, err
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.scope.AuthorizeBooking(ctx, actor, b, ActionModifyDates); err != nil {
		return Result{}, err
	}
	ref, err := b.Ref()
	if err != nil {
		return Result{}, err
	}

	var updated *model.Booking
	err = s.withResource(ctx, ref, func(tx ports.BookingTx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !cur.Active() {
			return fmt.Errorf("%w: dates of a %s booking cannot change", model.ErrInvalidTransition, cur.Status)
		}
		res, err := tx.LockResource(ctx, ref)
		if err != nil {
			return err
		}
		if !res.Bookable() {
			return fmt.Errorf("%w: %s is not accepting reservations", model.ErrConflict, ref)
		}
		if err := ensureFree(ctx, tx, ref, id, rng); err != nil {
			return err
		}
		cur.CheckIn, cur.CheckOut = rng.CheckIn, rng.CheckOut
		if err := cur.Validate(); err != nil {
			return err
		}
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("modify booking %d: %w", id, err)
	}

	out := Result{Booking: updated}
	s.notify(ctx, &out, queue.EventUpdated)
	return out, nil
}

// Get returns one booking.  Bookings outside the actor's scope are
// reported as not found so their existence does not leak.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, id uint64) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.scope.CanViewBooking(ctx, actor, b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, id)
	}
	return b, nil
}

// List returns the actor's visible bookings, optionally narrowed to one
// status.
func (s *BookingService) List(ctx context.Context, actor model.Actor, status model.BookingStatus) ([]model.Booking, error) {
	f, err := s.scope.VisibleBookings(ctx, actor, status)
	if err != nil {
		return nil, err
	}
	if f.MatchesNothing() {
		return []model.Booking{}, nil
	}
	return s.bookings.List(ctx, f)
}

// Export writes the actor's visible bookings as CSV.
func (s *BookingService) Export(ctx context.Context, actor model.Actor, status model.BookingStatus, w io.Writer) error {
	items, err := s.List(ctx, actor, status)
	if err != nil {
		return err
	}
	return report.WriteBookingsCSV(w, items)
}

// UpdateStatus applies a booking and/or payment status change.  Only the
// owning host and admins may call it.  reason is used when the change
// cancels the booking.
func (s *BookingService) UpdateStatus(ctx context.Context, actor model.Actor, id uint64, change model.Change, reason string) (Result, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.scope.AuthorizeBooking(ctx, actor, b, ActionSetStatus); err != nil {
		return Result{}, err
	}
	return s.transition(ctx, actor, id, change, reason)
}

// Cancel cancels a booking; the booking owner may use it as well.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, id uint64, reason string) (Result, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.scope.AuthorizeBooking(ctx, actor, b, ActionCancel); err != nil {
		return Result{}, err
	}
	return s.transition(ctx, actor, id, model.Change{Booking: model.BookingCancelled}, reason)
}

func (s *BookingService) transition(ctx context.Context, actor model.Actor, id uint64, change model.Change, reason string) (Result, error) {
	var (
		before  model.State
		updated *model.Booking
	)
	err := s.bookings.InTx(ctx, func(tx ports.BookingTx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = cur.State()
		next, err := before.Apply(change)
		if err != nil {
			return err
		}
		cur.Status, cur.PaymentStatus = next.Booking, next.Payment
		if next.Booking == model.BookingCancelled && before.Booking != model.BookingCancelled {
			at := s.now().UTC()
			why := strings.TrimSpace(reason)
			if why == "" {
				why = model.DefaultCancellationReason(actor.Role)
			}
			cur.CancelledAt = &at
			cur.CancellationReason = &why
		}
		if err := cur.Validate(); err != nil {
			return err
		}
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("update booking %d: %w", id, err)
	}

	out := Result{Booking: updated}
	kind := queue.EventStatusChanged
	if updated.Status == model.BookingCancelled && before.Booking != model.BookingCancelled {
		kind = queue.EventCancelled
	}
	s.notify(ctx, &out, kind)
	return out, nil
}

// AddAttachments stores payment evidence and links it to the booking.  A
// storage failure fails the call; files stored for a write that then fails
// are removed again.
func (s *BookingService) AddAttachments(ctx context.Context, actor model.Actor, id uint64, files []model.Upload) (Result, error) {
	if len(files) == 0 {
		return Result{}, fmt.Errorf("%w: no files supplied", model.ErrValidation)
	}
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.scope.AuthorizeBooking(ctx, actor, b, ActionAttach); err != nil {
		return Result{}, err
	}
	if len(b.Attachments)+len(files) > model.MaxAttachments {
		return Result{}, fmt.Errorf("%w: at most %d attachments per booking", model.ErrValidation, model.MaxAttachments)
	}
	if s.media == nil {
		return Result{}, fmt.Errorf("%w: media store is not configured", model.ErrUnavailable)
	}
	keys, err := s.media.Store(ctx, files)
	if errors.Is(err, model.ErrValidation) {
		return Result{}, err
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: store attachments: %v", model.ErrUnavailable, err)
	}

	var out Result
	err = s.bookings.InTx(ctx, func(tx ports.BookingTx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if len(cur.Attachments)+len(keys) > model.MaxAttachments {
			return fmt.Errorf("%w: at most %d attachments per booking", model.ErrValidation, model.MaxAttachments)
		}
		cur.Attachments = append(cur.Attachments, keys...)
		if err := cur.Validate(); err != nil {
			return err
		}
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		out.Booking = cur
		return nil
	})
	if err != nil {
		for _, k := range keys {
			s.removeMedia(ctx, nil, k)
		}
		return Result{}, fmt.Errorf("attach to booking %d: %w", id, err)
	}
	return out, nil
}

// RemoveAttachment unlinks key from the booking and then deletes the file.
// A failed delete is a warning: the booking no longer references it.
func (s *BookingService) RemoveAttachment(ctx context.Context, actor model.Actor, id uint64, key string) (Result, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.scope.AuthorizeBooking(ctx, actor, b, ActionAttach); err != nil {
		return Result{}, err
	}

	var out Result
	err = s.bookings.InTx(ctx, func(tx ports.BookingTx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		kept := make([]string, 0, len(cur.Attachments))
		for _, a := range cur.Attachments {
			if a != key {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(cur.Attachments) {
			return fmt.Errorf("%w: attachment %q", model.ErrNotFound, key)
		}
		cur.Attachments = kept
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		out.Booking = cur
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("detach from booking %d: %w", id, err)
	}
	s.removeMedia(ctx, &out, key)
	return out, nil
}

// Delete hard-deletes a booking.  Admin only; everyone else cancels.
func (s *BookingService) Delete(ctx context.Context, actor model.Actor, id uint64) (Result, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.scope.AuthorizeBooking(ctx, actor, b, ActionDelete); err != nil {
		return Result{}, err
	}
	if err := s.bookings.Delete(ctx, id); err != nil {
		return Result{}, fmt.Errorf("delete booking %d: %w", id, err)
	}
	out := Result{Booking: b}
	for _, k := range b.Attachments {
		s.removeMedia(ctx, &out, k)
	}
	return out, nil
}

// withResource runs fn in a transaction while holding ref's critical
// section.  The section is released before any notification is sent.
func (s *BookingService) withResource(ctx context.Context, ref model.ResourceRef, fn func(tx ports.BookingTx) error) error {
	release, err := s.locker.Acquire(ctx, ref.Key())
	if err != nil {
		return err
	}
	defer release()
	return s.bookings.InTx(ctx, fn)
}

// ensureFree applies the overlap predicate to the current occupancy of ref.
func ensureFree(ctx context.Context, tx ports.BookingTx, ref model.ResourceRef, excludeID uint64, want model.DateRange) error {
	occupied, err := tx.ActiveIntervals(ctx, ref, excludeID)
	if err != nil {
		return err
	}
	if clash, ok := model.FirstConflict(occupied, want); ok {
		return fmt.Errorf("%w: %s is booked from %s to %s", model.ErrConflict, ref,
			clash.CheckIn.Format(time.DateOnly), clash.CheckOut.Format(time.DateOnly))
	}
	return nil
}

func (s *BookingService) removeMedia(ctx context.Context, out *Result, key string) {
	if s.media == nil {
		return
	}
	if err := s.media.Remove(ctx, key); err != nil {
		s.logger.Warnj(log.JSON{"event": "media_remove_failed", "key": key, "error": err.Error()})
		if out != nil {
			out.warn("attachment " + key + " could not be removed from storage")
		}
	}
}
