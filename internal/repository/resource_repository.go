package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/stay-reservation/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	propertyColumns = `id, host_id, title, location, status, max_guests, images, created_at, updated_at`
	tourColumns     = `id, host_id, title, destination, status, max_guests, images, created_at, updated_at`
)

// ResourceRepo stores properties and tour packages.  Both live in their
// own table; the repository presents them through model.Resource.
type ResourceRepo struct {
	db *sql.DB
}

func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

// Get loads one resource.  A missing row is model.ErrNotFound.
func (r *ResourceRepo) Get(ctx context.Context, ref model.ResourceRef) (model.Resource, error) {
	return loadResource(ctx, r.db, ref, false)
}

// loadResource reads ref through q.  With forUpdate the row stays locked
// until q's transaction ends; every writer that checks occupancy of ref
// serialises on it.
func loadResource(ctx context.Context, q querier, ref model.ResourceRef, forUpdate bool) (model.Resource, error) {
	suffix := ""
	if forUpdate {
		suffix = " FOR UPDATE"
	}
	switch ref.Kind {
	case model.KindProperty:
		row := q.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`+suffix, ref.ID)
		p, err := scanProperty(row)
		if err != nil {
			return nil, mapDBError(err, ref.String())
		}
		return p, nil
	case model.KindTourPackage:
		row := q.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tour_packages WHERE id = ?`+suffix, ref.ID)
		t, err := scanTour(row)
		if err != nil {
			return nil, mapDBError(err, ref.String())
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: unknown resource kind %q", model.ErrValidation, ref.Kind)
}

func scanProperty(s rowScanner) (*model.Property, error) {
	var (
		p      model.Property
		images []byte
	)
	if err := s.Scan(&p.ID, &p.HostID, &p.Title, &p.Location, &p.Status, &p.MaxGuests, &images, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	p.Images, err = decodeKeys(images)
	return &p, err
}

func scanTour(s rowScanner) (*model.TourPackage, error) {
	var (
		t      model.TourPackage
		images []byte
	)
	if err := s.Scan(&t.ID, &t.HostID, &t.Title, &t.Destination, &t.Status, &t.MaxGuests, &images, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	t.Images, err = decodeKeys(images)
	return &t, err
}

// IDsByHost lists the ids of every property and tour package owned by hostID.
func (r *ResourceRepo) IDsByHost(ctx context.Context, hostID uint64) (model.ResourceIDs, error) {
	var (
		ids model.ResourceIDs
		err error
	)
	ids.PropertyIDs, err = r.ids(ctx, `SELECT id FROM properties WHERE host_id = ? ORDER BY id`, hostID)
	if err != nil {
		return model.ResourceIDs{}, fmt.Errorf("properties of host %d: %w", hostID, err)
	}
	ids.TourPackageIDs, err = r.ids(ctx, `SELECT id FROM tour_packages WHERE host_id = ? ORDER BY id`, hostID)
	if err != nil {
		return model.ResourceIDs{}, fmt.Errorf("tour packages of host %d: %w", hostID, err)
	}
	return ids, nil
}

func (r *ResourceRepo) ids(ctx context.Context, q string, args ...any) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateProperty inserts p and fills in its id and timestamps.
func (r *ResourceRepo) CreateProperty(ctx context.Context, p *model.Property) error {
	images, err := encodeKeys(p.Images)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO properties (host_id, title, location, status, max_guests, images, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.HostID, p.Title, p.Location, string(p.Status), p.MaxGuests, images, now, now)
	if err != nil {
		return mapDBError(err, "property")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt, p.UpdatedAt = uint64(id), now, now
	return nil
}

// CreateTourPackage inserts t and fills in its id and timestamps.
func (r *ResourceRepo) CreateTourPackage(ctx context.Context, t *model.TourPackage) error {
	images, err := encodeKeys(t.Images)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tour_packages (host_id, title, destination, status, max_guests, images, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.HostID, t.Title, t.Destination, string(t.Status), t.MaxGuests, images, now, now)
	if err != nil {
		return mapDBError(err, "tour package")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID, t.CreatedAt, t.UpdatedAt = uint64(id), now, now
	return nil
}

// List returns the resources matching f, properties before tour packages,
// each ordered by id.
func (r *ResourceRepo) List(ctx context.Context, f model.ResourceFilter) ([]model.Resource, error) {
	out := []model.Resource{}
	if f.Kind == "" || f.Kind == model.KindProperty {
		q, args := resourceQuery("properties", propertyColumns, f, model.PropertyAvailable)
		rows, err := r.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("list properties: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProperty(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	if f.Kind == "" || f.Kind == model.KindTourPackage {
		q, args := resourceQuery("tour_packages", tourColumns, f, model.TourAvailable, model.TourUpcoming)
		rows, err := r.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("list tour packages: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTour(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resourceQuery renders f for one table.  bookable lists the statuses that
// accept reservations on that table.
func resourceQuery[S ~string](table, columns string, f model.ResourceFilter, bookable ...S) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.HostID != nil {
		where = append(where, "host_id = ?")
		args = append(args, *f.HostID)
	}
	if f.BookableOnly {
		where = append(where, "status IN ("+placeholders(len(bookable))+")")
		for _, s := range bookable {
			args = append(args, string(s))
		}
	}
	q := `SELECT ` + columns + ` FROM ` + table
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY id", args
}

// SetStatus writes a new status.  The caller validates status for ref's kind.
func (r *ResourceRepo) SetStatus(ctx context.Context, ref model.ResourceRef, status string) error {
	table := "properties"
	if ref.Kind == model.KindTourPackage {
		table = "tour_packages"
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Truncate(time.Second), ref.ID)
	if err != nil {
		return mapDBError(err, ref.String())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, ref)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// media keys are stored as a JSON array column
func encodeKeys(keys []string) ([]byte, error) {
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(keys)
}

func decodeKeys(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode media keys: %w", err)
	}
	return out, nil
}
