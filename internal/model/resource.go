package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResourceKind distinguishes the two bookable resource variants.
type ResourceKind string

const (
	KindProperty    ResourceKind = "PROPERTY"
	KindTourPackage ResourceKind = "TOUR_PACKAGE"
)

// ParseResourceKind accepts the path forms used by the HTTP layer
// ("property", "properties", "tour", "tours") as well as the canonical names.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "property", "properties":
		return KindProperty, nil
	case "tour", "tours", "tour_package", "tour-package", "tour_packages":
		return KindTourPackage, nil
	}
	return "", fmt.Errorf("%w: unknown resource kind %q", ErrValidation, s)
}

// ResourceRef points at exactly one bookable resource.
type ResourceRef struct {
	Kind ResourceKind `json:"kind"`
	ID   uint64       `json:"id"`
}

// Key is the identity used to scope the reservation critical section.
func (r ResourceRef) Key() string {
	return "resource:" + string(r.Kind) + ":" + strconv.FormatUint(r.ID, 10)
}

func (r ResourceRef) String() string { return r.Key() }

// Validate rejects an unknown kind or a zero id.
func (r ResourceRef) Validate() error {
	if r.Kind != KindProperty && r.Kind != KindTourPackage {
		return fmt.Errorf("%w: unknown resource kind %q", ErrValidation, r.Kind)
	}
	if r.ID == 0 {
		return fmt.Errorf("%w: resource id is required", ErrValidation)
	}
	return nil
}

// ValidStatus reports whether status belongs to the status set of kind.
func ValidStatus(kind ResourceKind, status string) bool {
	if kind == KindTourPackage {
		return TourStatus(status).Valid()
	}
	return PropertyStatus(status).Valid()
}

// Resource is the capability set the core needs from a bookable unit:
// an owner, an availability status and a guest capacity.
type Resource interface {
	Ref() ResourceRef
	OwnerID() uint64
	Bookable() bool
	Capacity() int
}

// PropertyStatus is the availability status of a lodging property.
type PropertyStatus string

const (
	PropertyAvailable PropertyStatus = "AVAILABLE"
	PropertyBooked    PropertyStatus = "BOOKED"
	PropertyCancelled PropertyStatus = "CANCELLED"
	PropertyConfirmed PropertyStatus = "CONFIRMED"
	PropertyInactive  PropertyStatus = "INACTIVE"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyAvailable, PropertyBooked, PropertyCancelled, PropertyConfirmed, PropertyInactive:
		return true
	}
	return false
}

// TourStatus is the availability status of a tour package.
type TourStatus string

const (
	TourAvailable TourStatus = "AVAILABLE"
	TourSoldOut   TourStatus = "SOLD_OUT"
	TourCancelled TourStatus = "CANCELLED"
	TourUpcoming  TourStatus = "UPCOMING"
)

func (s TourStatus) Valid() bool {
	switch s {
	case TourAvailable, TourSoldOut, TourCancelled, TourUpcoming:
		return true
	}
	return false
}

// Property mirrors the `properties` table.
type Property struct {
	ID        uint64         `json:"id"`
	HostID    uint64         `json:"host_id"`
	Title     string         `json:"title"`
	Location  string         `json:"location"`
	Status    PropertyStatus `json:"status"`
	MaxGuests int            `json:"max_guests"`
	Images    []string       `json:"images"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (p *Property) Ref() ResourceRef { return ResourceRef{Kind: KindProperty, ID: p.ID} }
func (p *Property) OwnerID() uint64  { return p.HostID }
func (p *Property) Bookable() bool   { return p.Status == PropertyAvailable }
func (p *Property) Capacity() int    { return p.MaxGuests }

// TourPackage mirrors the `tour_packages` table.
type TourPackage struct {
	ID          uint64     `json:"id"`
	HostID      uint64     `json:"host_id"`
	Title       string     `json:"title"`
	Destination string     `json:"destination"`
	Status      TourStatus `json:"status"`
	MaxGuests   int        `json:"max_guests"`
	Images      []string   `json:"images"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *TourPackage) Ref() ResourceRef { return ResourceRef{Kind: KindTourPackage, ID: t.ID} }
func (t *TourPackage) OwnerID() uint64  { return t.HostID }

// Bookable reports whether the tour accepts reservations.  Upcoming tours
// are sold ahead of their start, so both AVAILABLE and UPCOMING qualify.
func (t *TourPackage) Bookable() bool {
	return t.Status == TourAvailable || t.Status == TourUpcoming
}
func (t *TourPackage) Capacity() int { return t.MaxGuests }

// ResourceIDs is the set of resources owned by one host, split per kind.
type ResourceIDs struct {
	PropertyIDs    []uint64
	TourPackageIDs []uint64
}

func (r ResourceIDs) Empty() bool { return len(r.PropertyIDs) == 0 && len(r.TourPackageIDs) == 0 }

// Contains reports whether ref is one of the listed resources.
func (r ResourceIDs) Contains(ref ResourceRef) bool {
	ids := r.PropertyIDs
	if ref.Kind == KindTourPackage {
		ids = r.TourPackageIDs
	}
	for _, id := range ids {
		if id == ref.ID {
			return true
		}
	}
	return false
}

// ResourceFilter restricts a resource listing.  A zero filter lists
// everything; HostID limits to one owner; BookableOnly hides resources whose
// status does not accept reservations.
type ResourceFilter struct {
	Kind         ResourceKind
	HostID       *uint64
	BookableOnly bool
}
