package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

const bookingColumns = `id, user_id, property_id, tour_package_id, check_in, check_out, guests, total_price_cents,
	status, payment_status, cancellation_reason, cancelled_at, attachments, created_at, updated_at`

// BookingRepo stores bookings.  Occupancy-dependent writes run through
// InTx, which hands the callback a transaction-bound view.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

func getBooking(ctx context.Context, q querier, id uint64, forUpdate bool) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if forUpdate {
		query += " FOR UPDATE"
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapDBError(err, fmt.Sprintf("booking %d", id))
	}
	return b, nil
}

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b           model.Booking
		propertyID  sql.NullInt64
		tourID      sql.NullInt64
		reason      sql.NullString
		cancelledAt sql.NullTime
		attachments []byte
	)
	err := s.Scan(&b.ID, &b.UserID, &propertyID, &tourID, &b.CheckIn, &b.CheckOut, &b.Guests, &b.TotalPriceCents,
		&b.Status, &b.PaymentStatus, &reason, &cancelledAt, &attachments, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if propertyID.Valid {
		id := uint64(propertyID.Int64)
		b.PropertyID = &id
	}
	if tourID.Valid {
		id := uint64(tourID.Int64)
		b.TourPackageID = &id
	}
	if reason.Valid {
		b.CancellationReason = &reason.String
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		b.CancelledAt = &at
	}
	b.CheckIn, b.CheckOut = b.CheckIn.UTC(), b.CheckOut.UTC()
	if b.Attachments, err = decodeKeys(attachments); err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns the bookings matching f ordered by id.  The WHERE clause is
// the SQL form of model.BookingFilter.Matches.
func (r *BookingRepo) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	out := []model.Booking{}
	if f.MatchesNothing() {
		return out, nil
	}
	q, args := bookingQuery(f)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func bookingQuery(f model.BookingFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.All {
		var scope []string
		if f.UserID != nil {
			scope = append(scope, "user_id = ?")
			args = append(args, *f.UserID)
		}
		if len(f.PropertyIDs) > 0 {
			scope = append(scope, "property_id IN ("+placeholders(len(f.PropertyIDs))+")")
			for _, id := range f.PropertyIDs {
				args = append(args, id)
			}
		}
		if len(f.TourPackageIDs) > 0 {
			scope = append(scope, "tour_package_id IN ("+placeholders(len(f.TourPackageIDs))+")")
			for _, id := range f.TourPackageIDs {
				args = append(args, id)
			}
		}
		where = append(where, "("+strings.Join(scope, " OR ")+")")
	}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY id", args
}

// ActiveIntervals returns the PENDING and CONFIRMED ranges on ref.  Outside
// a transaction the answer is advisory only.
func (r *BookingRepo) ActiveIntervals(ctx context.Context, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error) {
	return activeIntervals(ctx, r.db, ref, excludeID)
}

func activeIntervals(ctx context.Context, q querier, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error) {
	column := "property_id"
	if ref.Kind == model.KindTourPackage {
		column = "tour_package_id"
	}
	rows, err := q.QueryContext(ctx,
		`SELECT check_in, check_out FROM bookings WHERE `+column+` = ? AND status IN (?, ?) AND id <> ? ORDER BY check_in`,
		ref.ID, string(model.BookingPending), string(model.BookingConfirmed), excludeID)
	if err != nil {
		return nil, mapDBError(err, "occupancy of "+ref.String())
	}
	defer rows.Close()
	var out []model.DateRange
	for rows.Next() {
		var d model.DateRange
		if err := rows.Scan(&d.CheckIn, &d.CheckOut); err != nil {
			return nil, err
		}
		d.CheckIn, d.CheckOut = d.CheckIn.UTC(), d.CheckOut.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes the booking row.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("booking %d", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: booking %d", model.ErrNotFound, id)
	}
	return nil
}

// InTx runs fn in one transaction and commits when it returns nil.  Any
// error, or a panic in fn, rolls back.
func (r *BookingRepo) InTx(ctx context.Context, fn func(tx ports.BookingTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&bookingTx{tx: tx, now: time.Now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapDBError(err, "commit")
	}
	committed = true
	return nil
}

type bookingTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *bookingTx) LockResource(ctx context.Context, ref model.ResourceRef) (model.Resource, error) {
	return loadResource(ctx, t.tx, ref, true)
}

func (t *bookingTx) ActiveIntervals(ctx context.Context, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error) {
	return activeIntervals(ctx, t.tx, ref, excludeID)
}

func (t *bookingTx) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	return getBooking(ctx, t.tx, id, true)
}

// Insert writes b and assigns its id and timestamps.
func (t *bookingTx) Insert(ctx context.Context, b *model.Booking) error {
	attachments, err := encodeKeys(b.Attachments)
	if err != nil {
		return err
	}
	now := t.now().UTC().Truncate(time.Second)
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, property_id, tour_package_id, check_in, check_out, guests, total_price_cents,
			status, payment_status, cancellation_reason, cancelled_at, attachments, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, nullID(b.PropertyID), nullID(b.TourPackageID), b.CheckIn, b.CheckOut, b.Guests, b.TotalPriceCents,
		string(b.Status), string(b.PaymentStatus), nullString(b.CancellationReason), nullTime(b.CancelledAt), attachments, now, now)
	if err != nil {
		return mapDBError(err, "booking")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID, b.CreatedAt, b.UpdatedAt = uint64(id), now, now
	return nil
}

// Update rewrites the mutable columns of b.  The resource reference and
// owner never change after insert.
func (t *bookingTx) Update(ctx context.Context, b *model.Booking) error {
	attachments, err := encodeKeys(b.Attachments)
	if err != nil {
		return err
	}
	now := t.now().UTC().Truncate(time.Second)
	_, err = t.tx.ExecContext(ctx,
		`UPDATE bookings SET check_in = ?, check_out = ?, guests = ?, total_price_cents = ?, status = ?, payment_status = ?,
			cancellation_reason = ?, cancelled_at = ?, attachments = ?, updated_at = ? WHERE id = ?`,
		b.CheckIn, b.CheckOut, b.Guests, b.TotalPriceCents, string(b.Status), string(b.PaymentStatus),
		nullString(b.CancellationReason), nullTime(b.CancelledAt), attachments, now, b.ID)
	if err != nil {
		return mapDBError(err, fmt.Sprintf("booking %d", b.ID))
	}
	b.UpdatedAt = now
	return nil
}

func nullID(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
