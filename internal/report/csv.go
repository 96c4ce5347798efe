// Package report renders already-scoped booking lists for export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/stay-reservation/internal/model"
)

var header = []string{
	"id", "user_id", "resource_kind", "resource_id", "check_in", "check_out",
	"guests", "total_price", "status", "payment_status", "cancellation_reason",
	"cancelled_at", "attachments", "created_at",
}

// WriteBookingsCSV writes one row per booking.  Prices are rendered in
// major units with two decimals.
func WriteBookingsCSV(w io.Writer, bookings []model.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range bookings {
		if err := cw.Write(row(&bookings[i])); err != nil {
			return fmt.Errorf("write booking %d: %w", bookings[i].ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(b *model.Booking) []string {
	kind, id := "", ""
	if ref, err := b.Ref(); err == nil {
		kind, id = string(ref.Kind), strconv.FormatUint(ref.ID, 10)
	}
	reason, cancelledAt := "", ""
	if b.CancellationReason != nil {
		reason = *b.CancellationReason
	}
	if b.CancelledAt != nil {
		cancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return []string{
		strconv.FormatUint(b.ID, 10),
		strconv.FormatUint(b.UserID, 10),
		kind,
		id,
		b.CheckIn.UTC().Format(time.DateOnly),
		b.CheckOut.UTC().Format(time.DateOnly),
		strconv.Itoa(b.Guests),
		fmt.Sprintf("%d.%02d", b.TotalPriceCents/100, b.TotalPriceCents%100),
		string(b.Status),
		string(b.PaymentStatus),
		reason,
		cancelledAt,
		strings.Join(b.Attachments, ";"),
		b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
