// Package queue carries booking notifications over RabbitMQ: the API
// publishes a BookingEvent after each committed change and a background
// consumer turns it into an email.
package queue

import "time"

// EventKind names what happened to the booking.
type EventKind string

const (
	EventCreated       EventKind = "booking.created"
	EventUpdated       EventKind = "booking.updated"
	EventStatusChanged EventKind = "booking.status_changed"
	EventCancelled     EventKind = "booking.cancelled"
)

// BookingEvent is self-contained so consumers never query the primary
// database.  Email is the requesting user's address.
type BookingEvent struct {
	Kind          EventKind `json:"kind"`
	BookingID     uint64    `json:"booking_id"`
	UserID        uint64    `json:"user_id"`
	Email         string    `json:"email"`
	ResourceKind  string    `json:"resource_kind"`
	ResourceID    uint64    `json:"resource_id"`
	CheckIn       time.Time `json:"check_in"`
	CheckOut      time.Time `json:"check_out"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
