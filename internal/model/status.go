package model

import (
	"fmt"
	"strings"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// ActiveBookingStatuses occupy their resource; everything else never blocks.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingCompleted},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
	BookingCancelled: {},
	BookingCompleted: {},
}

func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) Active() bool { return s == BookingPending || s == BookingConfirmed }

// Terminal reports whether no outgoing booking transition exists.
func (s BookingStatus) Terminal() bool {
	next, ok := bookingTransitions[s]
	return !ok || len(next) == 0
}

func (s BookingStatus) CanTransitionTo(t BookingStatus) bool {
	for _, n := range bookingTransitions[s] {
		if n == t {
			return true
		}
	}
	return false
}

// ParseBookingStatus converts a request value, case-insensitively.
func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown booking status %q", ErrValidation, s)
	}
	return st, nil
}

// PaymentStatus is a declarative flag set by a trusted actor.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:  {PaymentPaid, PaymentFailed},
	PaymentPaid:     {PaymentRefunded},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(t PaymentStatus) bool {
	for _, n := range paymentTransitions[s] {
		if n == t {
			return true
		}
	}
	return false
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown payment status %q", ErrValidation, s)
	}
	return st, nil
}

// State is the coupled (booking, payment) status pair.  It only moves
// through Apply so the derived transitions are never observed half-applied.
type State struct {
	Booking BookingStatus `json:"status"`
	Payment PaymentStatus `json:"payment_status"`
}

// Change requests new statuses.  An empty field leaves that half unchanged.
type Change struct {
	Booking BookingStatus
	Payment PaymentStatus
}

func (c Change) Empty() bool { return c.Booking == "" && c.Payment == "" }

// Apply returns the state that results from c.  The payment half is applied
// first, then the booking half, then the coupling rules:
//
//	payment -> PAID while booking PENDING   => booking CONFIRMED
//	booking -> CANCELLED while payment PAID => payment REFUNDED
//
// Any booking change out of CANCELLED or COMPLETED is ErrInvalidTransition,
// as is any payment change on a COMPLETED booking, PAID on a cancelled one,
// or a change that moves nothing.
func (s State) Apply(c Change) (State, error) {
	if c.Empty() {
		return s, fmt.Errorf("%w: no status supplied", ErrValidation)
	}
	if c.Booking != "" && !c.Booking.Valid() {
		return s, fmt.Errorf("%w: unknown booking status %q", ErrValidation, c.Booking)
	}
	if c.Payment != "" && !c.Payment.Valid() {
		return s, fmt.Errorf("%w: unknown payment status %q", ErrValidation, c.Payment)
	}

	next := s
	if c.Payment != "" && c.Payment != s.Payment {
		if s.Booking == BookingCompleted {
			return s, fmt.Errorf("%w: payment of a completed booking is final", ErrInvalidTransition)
		}
		if s.Booking == BookingCancelled && c.Payment == PaymentPaid {
			return s, fmt.Errorf("%w: cannot mark a cancelled booking as paid", ErrInvalidTransition)
		}
		if s.Booking == BookingCancelled && !(s.Payment == PaymentPaid && c.Payment == PaymentRefunded) {
			return s, fmt.Errorf("%w: a cancelled booking may only move payment PAID -> REFUNDED", ErrInvalidTransition)
		}
		if !s.Payment.CanTransitionTo(c.Payment) {
			return s, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, s.Payment, c.Payment)
		}
		next.Payment = c.Payment
		if c.Payment == PaymentPaid && next.Booking == BookingPending {
			next.Booking = BookingConfirmed
		}
	}

	if c.Booking != "" {
		if s.Booking.Terminal() {
			return s, fmt.Errorf("%w: booking is already %s", ErrInvalidTransition, s.Booking)
		}
		if c.Booking != next.Booking {
			if !next.Booking.CanTransitionTo(c.Booking) {
				return s, fmt.Errorf("%w: booking %s -> %s", ErrInvalidTransition, next.Booking, c.Booking)
			}
			next.Booking = c.Booking
		}
		if next.Booking == BookingCancelled && next.Payment == PaymentPaid {
			next.Payment = PaymentRefunded
		}
	}

	if next == s {
		return s, fmt.Errorf("%w: status is already %s/%s", ErrInvalidTransition, s.Booking, s.Payment)
	}
	return next, nil
}
