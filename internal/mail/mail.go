// Package mail renders booking events into plain-text emails and sends
// them through an SMTP relay.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/iliyamo/stay-reservation/internal/config"
	"github.com/iliyamo/stay-reservation/internal/queue"
)

// Mailer implements queue.Sender.
type Mailer struct {
	client *gomail.Client
	from   string
}

func NewMailer(cfg config.MailConfig) (*Mailer, error) {
	opts := []gomail.Option{gomail.WithPort(cfg.Port), gomail.WithTimeout(10 * time.Second)}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &Mailer{client: c, from: cfg.From}, nil
}

func (m *Mailer) SendBookingEvent(ctx context.Context, ev queue.BookingEvent) error {
	if ev.Email == "" {
		return fmt.Errorf("booking %d: no recipient address", ev.BookingID)
	}
	msg := gomail.NewMsg()
	if err := msg.FromFormat("Stay Reservations", m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(ev.Email); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	subject, body := Render(ev)
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send booking %d: %w", ev.BookingID, err)
	}
	return nil
}

// Render returns the subject and body for ev.
func Render(ev queue.BookingEvent) (subject, body string) {
	switch ev.Kind {
	case queue.EventCreated:
		subject = fmt.Sprintf("Booking #%d received", ev.BookingID)
	case queue.EventUpdated:
		subject = fmt.Sprintf("Booking #%d dates changed", ev.BookingID)
	case queue.EventCancelled:
		subject = fmt.Sprintf("Booking #%d cancelled", ev.BookingID)
	default:
		subject = fmt.Sprintf("Booking #%d is now %s", ev.BookingID, strings.ToLower(ev.Status))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Booking:  #%d\n", ev.BookingID)
	fmt.Fprintf(&b, "Resource: %s %d\n", strings.ToLower(strings.ReplaceAll(ev.ResourceKind, "_", " ")), ev.ResourceID)
	fmt.Fprintf(&b, "Dates:    %s to %s\n", ev.CheckIn.Format(time.DateOnly), ev.CheckOut.Format(time.DateOnly))
	fmt.Fprintf(&b, "Status:   %s\n", ev.Status)
	fmt.Fprintf(&b, "Payment:  %s\n", ev.PaymentStatus)
	if ev.Reason != "" {
		fmt.Fprintf(&b, "Reason:   %s\n", ev.Reason)
	}
	return subject, b.String()
}
