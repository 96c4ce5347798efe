package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

// Availability answers occupancy questions from live booking data.  It
// never caches: occupancy is derived from active bookings on every call.
type Availability struct {
	registry ports.ResourceRegistry
	bookings ports.BookingStore
	now      func() time.Time
}

func NewAvailability(registry ports.ResourceRegistry, bookings ports.BookingStore) *Availability {
	return &Availability{registry: registry, bookings: bookings, now: time.Now}
}

// IsAvailable reports whether ref can be booked for rng.  A missing or
// non-bookable resource is simply unavailable.
func (a *Availability) IsAvailable(ctx context.Context, ref model.ResourceRef, rng model.DateRange) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	if err := validateStay(rng, a.now()); err != nil {
		return false, err
	}
	res, err := a.registry.Get(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", ref, err)
	}
	if !res.Bookable() {
		return false, nil
	}
	occupied, err := a.bookings.ActiveIntervals(ctx, ref, 0)
	if err != nil {
		return false, fmt.Errorf("load occupancy of %s: %w", ref, err)
	}
	_, clash := model.FirstConflict(occupied, rng)
	return !clash, nil
}

// BlockingIntervals lists the active booking ranges of ref that overlap
// window, ordered by check-in.  Unlike IsAvailable a missing resource is
// reported as ErrNotFound.
func (a *Availability) BlockingIntervals(ctx context.Context, ref model.ResourceRef, window model.DateRange) ([]model.DateRange, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if _, err := a.registry.Get(ctx, ref); err != nil {
		return nil, err
	}
	occupied, err := a.bookings.ActiveIntervals(ctx, ref, 0)
	if err != nil {
		return nil, fmt.Errorf("load occupancy of %s: %w", ref, err)
	}
	out := make([]model.DateRange, 0, len(occupied))
	for _, r := range occupied {
		if r.Overlaps(window) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out, nil
}

// validateStay checks a requested stay: well-formed and not starting
// before today (UTC), with "today" taken at call time.
func validateStay(rng model.DateRange, now time.Time) error {
	if err := rng.Validate(); err != nil {
		return err
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if rng.CheckIn.Before(today) {
		return fmt.Errorf("%w: check_in is in the past", model.ErrValidation)
	}
	return nil
}
