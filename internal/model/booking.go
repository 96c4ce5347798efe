package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinGuests      = 1
	MaxGuests      = 20
	MaxAttachments = 5
)

// DateRange is the half-open interval [CheckIn, CheckOut).
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// Validate enforces CheckIn < CheckOut.
func (r DateRange) Validate() error {
	if r.CheckIn.IsZero() || r.CheckOut.IsZero() {
		return fmt.Errorf("%w: check_in and check_out are required", ErrValidation)
	}
	if !r.CheckIn.Before(r.CheckOut) {
		return fmt.Errorf("%w: check_in must be before check_out", ErrValidation)
	}
	return nil
}

// Overlaps is the only conflict predicate in the system.  [a,b) and [c,d)
// overlap iff a < d && c < b, so back-to-back stays do not collide.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

// FirstConflict returns the first interval in occupied that overlaps want.
func FirstConflict(occupied []DateRange, want DateRange) (DateRange, bool) {
	for _, o := range occupied {
		if o.Overlaps(want) {
			return o, true
		}
	}
	return DateRange{}, false
}

// Booking is a reservation of exactly one resource by one user.
//
// Exactly one of PropertyID / TourPackageID is set; Ref() enforces it.
// CancellationReason and CancelledAt are only populated once Status is
// CANCELLED.  Attachments are opaque media-store keys.
type Booking struct {
	ID                 uint64        `json:"id"`
	UserID             uint64        `json:"user_id"`
	PropertyID         *uint64       `json:"property_id,omitempty"`
	TourPackageID      *uint64       `json:"tour_package_id,omitempty"`
	CheckIn            time.Time     `json:"check_in"`
	CheckOut           time.Time     `json:"check_out"`
	Guests             int           `json:"guests"`
	TotalPriceCents    int64         `json:"total_price_cents"`
	Status             BookingStatus `json:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	Attachments        []string      `json:"attachments"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// RefFor builds the pair of nullable columns for ref.
func RefFor(ref ResourceRef) (propertyID, tourPackageID *uint64) {
	id := ref.ID
	if ref.Kind == KindTourPackage {
		return nil, &id
	}
	return &id, nil
}

// Ref returns the single resource this booking points at.  Both or neither
// reference being set is a validation error.
func (b *Booking) Ref() (ResourceRef, error) {
	switch {
	case b.PropertyID != nil && b.TourPackageID != nil:
		return ResourceRef{}, fmt.Errorf("%w: booking references both a property and a tour package", ErrValidation)
	case b.PropertyID != nil:
		return ResourceRef{Kind: KindProperty, ID: *b.PropertyID}, nil
	case b.TourPackageID != nil:
		return ResourceRef{Kind: KindTourPackage, ID: *b.TourPackageID}, nil
	}
	return ResourceRef{}, fmt.Errorf("%w: booking references no resource", ErrValidation)
}

func (b *Booking) Range() DateRange { return DateRange{CheckIn: b.CheckIn, CheckOut: b.CheckOut} }

func (b *Booking) State() State { return State{Booking: b.Status, Payment: b.PaymentStatus} }

// Active reports whether the booking occupies its resource.
func (b *Booking) Active() bool { return b.Status.Active() }

// Validate checks every record-level invariant.  It is run before each
// insert and update.
func (b *Booking) Validate() error {
	if _, err := b.Ref(); err != nil {
		return err
	}
	if err := b.Range().Validate(); err != nil {
		return err
	}
	if err := ValidateGuests(b.Guests); err != nil {
		return err
	}
	if b.TotalPriceCents < 0 {
		return fmt.Errorf("%w: total price must not be negative", ErrValidation)
	}
	if !b.Status.Valid() || !b.PaymentStatus.Valid() {
		return fmt.Errorf("%w: unknown status %q/%q", ErrValidation, b.Status, b.PaymentStatus)
	}
	if len(b.Attachments) > MaxAttachments {
		return fmt.Errorf("%w: at most %d attachments", ErrValidation, MaxAttachments)
	}
	if b.Status != BookingCancelled && (b.CancellationReason != nil || b.CancelledAt != nil) {
		return fmt.Errorf("%w: cancellation details on a booking that is not cancelled", ErrValidation)
	}
	return nil
}

// ValidateGuests enforces 1 <= guests <= 20.
func ValidateGuests(n int) error {
	if n < MinGuests || n > MaxGuests {
		return fmt.Errorf("%w: guests must be between %d and %d", ErrValidation, MinGuests, MaxGuests)
	}
	return nil
}

// BookingFilter is the visibility scope computed for an actor.  All lifts
// every restriction; otherwise a booking matches when it belongs to UserID
// or references one of the listed resources.  A non-All filter with no
// criteria matches nothing.
type BookingFilter struct {
	All            bool
	UserID         *uint64
	PropertyIDs    []uint64
	TourPackageIDs []uint64
	Status         BookingStatus
}

// MatchesNothing reports whether the scope is empty, so callers can skip
// the query entirely.
func (f BookingFilter) MatchesNothing() bool {
	return !f.All && f.UserID == nil && len(f.PropertyIDs) == 0 && len(f.TourPackageIDs) == 0
}

// Matches evaluates the filter in memory.  The SQL rendering in the
// repository must agree with it.
func (f BookingFilter) Matches(b *Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.All {
		return true
	}
	if f.UserID != nil && b.UserID == *f.UserID {
		return true
	}
	if b.PropertyID != nil && containsID(f.PropertyIDs, *b.PropertyID) {
		return true
	}
	if b.TourPackageID != nil && containsID(f.TourPackageIDs, *b.TourPackageID) {
		return true
	}
	return false
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// DefaultCancellationReason is used when the canceller gives no reason.
func DefaultCancellationReason(r Role) string {
	return "cancelled by " + strings.ToLower(string(r))
}
