package service

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/stay-reservation/internal/queue"
)

const notifyTimeout = 3 * time.Second

// notify publishes the booking event to the requesting user.  Failures are
// logged and surfaced as warnings on out; the write has already committed.
func (s *BookingService) notify(ctx context.Context, out *Result, kind queue.EventKind) {
	if s.notifier == nil || out.Booking == nil {
		return
	}
	// a client hanging up must not drop the notification
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	b := out.Booking
	ev := queue.BookingEvent{
		Kind:          kind,
		BookingID:     b.ID,
		UserID:        b.UserID,
		CheckIn:       b.CheckIn,
		CheckOut:      b.CheckOut,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		OccurredAt:    s.now().UTC(),
	}
	if ref, err := b.Ref(); err == nil {
		ev.ResourceKind, ev.ResourceID = string(ref.Kind), ref.ID
	}
	if b.CancellationReason != nil {
		ev.Reason = *b.CancellationReason
	}
	if s.users != nil {
		u, err := s.users.GetByID(ctx, b.UserID)
		if err != nil {
			s.logger.Warnj(log.JSON{"event": "notify_skipped", "booking_id": b.ID, "kind": kind, "error": err.Error()})
			out.warn("notification could not be sent")
			return
		}
		ev.Email = u.Email
	}
	if err := s.notifier.PublishBookingEvent(ctx, ev); err != nil {
		s.logger.Warnj(log.JSON{"event": "notify_failed", "booking_id": b.ID, "kind": kind, "error": err.Error()})
		out.warn("notification could not be sent")
	}
}
