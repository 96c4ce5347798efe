package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/stay-reservation/internal/lock"
	"github.com/iliyamo/stay-reservation/internal/model"
	"github.com/iliyamo/stay-reservation/internal/queue"
	"github.com/iliyamo/stay-reservation/internal/service/ports"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func stay(in, out string) model.DateRange { return model.DateRange{CheckIn: day(in), CheckOut: day(out)} }

func fixedNow() time.Time { return day("2024-12-01").Add(9 * time.Hour) }

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	c.Attachments = append([]string(nil), b.Attachments...)
	return &c
}

// memRegistry is an in-memory ports.ResourceStore.
type memRegistry struct {
	mu     sync.Mutex
	nextID uint64
	items  map[model.ResourceRef]model.Resource
	gets   int
}

func newRegistry() *memRegistry {
	return &memRegistry{items: map[model.ResourceRef]model.Resource{}}
}

func (r *memRegistry) addProperty(id, host uint64, status model.PropertyStatus, maxGuests int) *model.Property {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &model.Property{ID: id, HostID: host, Title: fmt.Sprintf("p%d", id), Location: "x", Status: status, MaxGuests: maxGuests, Images: []string{"img"}}
	r.items[p.Ref()] = p
	return p
}

func (r *memRegistry) addTour(id, host uint64, status model.TourStatus) *model.TourPackage {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &model.TourPackage{ID: id, HostID: host, Title: fmt.Sprintf("t%d", id), Destination: "y", Status: status, Images: []string{"img"}}
	r.items[t.Ref()] = t
	return t
}

func (r *memRegistry) Get(_ context.Context, ref model.ResourceRef) (model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	res, ok := r.items[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, ref)
	}
	return res, nil
}

func (r *memRegistry) IDsByHost(_ context.Context, hostID uint64) (model.ResourceIDs, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids model.ResourceIDs
	for ref, res := range r.items {
		if res.OwnerID() != hostID {
			continue
		}
		if ref.Kind == model.KindProperty {
			ids.PropertyIDs = append(ids.PropertyIDs, ref.ID)
		} else {
			ids.TourPackageIDs = append(ids.TourPackageIDs, ref.ID)
		}
	}
	return ids, nil
}

func (r *memRegistry) CreateProperty(_ context.Context, p *model.Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = 1000 + r.nextID
	r.items[p.Ref()] = p
	return nil
}

func (r *memRegistry) CreateTourPackage(_ context.Context, t *model.TourPackage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = 1000 + r.nextID
	r.items[t.Ref()] = t
	return nil
}

func (r *memRegistry) List(_ context.Context, f model.ResourceFilter) ([]model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Resource{}
	for ref, res := range r.items {
		if f.Kind != "" && ref.Kind != f.Kind {
			continue
		}
		if f.HostID != nil && res.OwnerID() != *f.HostID {
			continue
		}
		if f.BookableOnly && !res.Bookable() {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().Key() < out[j].Ref().Key() })
	return out, nil
}

func (r *memRegistry) SetStatus(_ context.Context, ref model.ResourceRef, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch v := r.items[ref].(type) {
	case *model.Property:
		v.Status = model.PropertyStatus(status)
	case *model.TourPackage:
		v.Status = model.TourStatus(status)
	default:
		return model.ErrNotFound
	}
	return nil
}

// memBookings is an in-memory ports.BookingStore.  A transaction buffers its
// writes until commit; LockResource and GetForUpdate hold a row mutex until
// the transaction ends, like SELECT ... FOR UPDATE.
type memBookings struct {
	registry *memRegistry

	mu       sync.Mutex
	nextID   uint64
	rows     map[uint64]*model.Booking
	rowLocks map[string]*sync.Mutex
	lists    int
	failTx   error
}

func newBookings(registry *memRegistry) *memBookings {
	return &memBookings{registry: registry, rows: map[uint64]*model.Booking{}, rowLocks: map[string]*sync.Mutex{}}
}

func (m *memBookings) seed(b *model.Booking) *model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	m.rows[b.ID] = cloneBooking(b)
	return b
}

func (m *memBookings) row(id uint64) *model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.rows[id]; ok {
		return cloneBooking(b)
	}
	return nil
}

func (m *memBookings) rowLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.rowLocks[key] = l
	}
	return l
}

func (m *memBookings) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	if b := m.row(id); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, id)
}

func (m *memBookings) List(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := []model.Booking{}
	for _, b := range m.rows {
		if f.Matches(b) {
			out = append(out, *cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memBookings) activeIntervals(ref model.ResourceRef, excludeID uint64, pending map[uint64]*model.Booking) []model.DateRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := map[uint64]*model.Booking{}
	for id, b := range m.rows {
		merged[id] = b
	}
	for id, b := range pending {
		merged[id] = b
	}
	var out []model.DateRange
	for id, b := range merged {
		r, err := b.Ref()
		if err != nil || r != ref || id == excludeID || !b.Active() {
			continue
		}
		out = append(out, b.Range())
	}
	return out
}

func (m *memBookings) ActiveIntervals(_ context.Context, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error) {
	return m.activeIntervals(ref, excludeID, nil), nil
}

func (m *memBookings) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("%w: booking %d", model.ErrNotFound, id)
	}
	delete(m.rows, id)
	return nil
}

func (m *memBookings) InTx(ctx context.Context, fn func(tx ports.BookingTx) error) error {
	tx := &memTx{store: m, pending: map[uint64]*model.Booking{}, held: map[string]bool{}}
	defer tx.unlockAll()
	if err := fn(tx); err != nil {
		return err
	}
	if m.failTx != nil {
		return m.failTx
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range tx.pending {
		m.rows[id] = b
	}
	return nil
}

type memTx struct {
	store   *memBookings
	pending map[uint64]*model.Booking
	held    map[string]bool
	locks   []*sync.Mutex
}

func (t *memTx) hold(key string) {
	if t.held[key] {
		return
	}
	l := t.store.rowLock(key)
	l.Lock()
	t.held[key] = true
	t.locks = append(t.locks, l)
}

func (t *memTx) unlockAll() {
	for _, l := range t.locks {
		l.Unlock()
	}
}

func (t *memTx) LockResource(ctx context.Context, ref model.ResourceRef) (model.Resource, error) {
	t.hold(ref.Key())
	return t.store.registry.Get(ctx, ref)
}

func (t *memTx) ActiveIntervals(_ context.Context, ref model.ResourceRef, excludeID uint64) ([]model.DateRange, error) {
	return t.store.activeIntervals(ref, excludeID, t.pending), nil
}

func (t *memTx) GetForUpdate(_ context.Context, id uint64) (*model.Booking, error) {
	t.hold(fmt.Sprintf("booking:%d", id))
	if b, ok := t.pending[id]; ok {
		return cloneBooking(b), nil
	}
	if b := t.store.row(id); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, id)
}

func (t *memTx) Insert(_ context.Context, b *model.Booking) error {
	t.store.mu.Lock()
	t.store.nextID++
	b.ID = t.store.nextID
	t.store.mu.Unlock()
	b.CreatedAt, b.UpdatedAt = fixedNow(), fixedNow()
	t.pending[b.ID] = cloneBooking(b)
	return nil
}

func (t *memTx) Update(_ context.Context, b *model.Booking) error {
	b.UpdatedAt = fixedNow()
	t.pending[b.ID] = cloneBooking(b)
	return nil
}

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (n *recordingNotifier) PublishBookingEvent(_ context.Context, ev queue.BookingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) last() queue.BookingEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

type memUsers map[uint64]model.User

func (u memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return model.User{}, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
}

// memMedia hands out sequential keys and can be told to fail.
type memMedia struct {
	mu        sync.Mutex
	n         int
	stored    map[string]bool
	storeErr  error
	removeErr error
}

func newMedia() *memMedia { return &memMedia{stored: map[string]bool{}} }

func (m *memMedia) Store(_ context.Context, files []model.Upload) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	keys := make([]string, 0, len(files))
	for range files {
		m.n++
		k := fmt.Sprintf("media/%d", m.n)
		m.stored[k] = true
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memMedia) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.stored, key)
	return nil
}

// fixture wires a BookingService over the in-memory fakes.
type fixture struct {
	registry *memRegistry
	bookings *memBookings
	notifier *recordingNotifier
	media    *memMedia
	locker   *lock.LocalLocker
	svc      *BookingService
	avail    *Availability
}

const (
	guestA uint64 = 1
	guestB uint64 = 2
	hostA  uint64 = 10
	hostB  uint64 = 20
	admin  uint64 = 99
)

var (
	asGuestA = model.Actor{ID: guestA, Role: model.RoleGuest}
	asGuestB = model.Actor{ID: guestB, Role: model.RoleGuest}
	asHostA  = model.Actor{ID: hostA, Role: model.RoleHost}
	asHostB  = model.Actor{ID: hostB, Role: model.RoleHost}
	asAdmin  = model.Actor{ID: admin, Role: model.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: newRegistry(),
		notifier: &recordingNotifier{},
		media:    newMedia(),
		locker:   lock.NewLocalLocker(2 * time.Second),
	}
	f.bookings = newBookings(f.registry)
	users := memUsers{
		guestA: {ID: guestA, Email: "a@example.com", Role: model.RoleGuest},
		guestB: {ID: guestB, Email: "b@example.com", Role: model.RoleGuest},
	}
	f.svc = NewBookingService(f.bookings, f.registry, f.locker, f.notifier, f.media, users, quietLogger())
	f.svc.now = fixedNow
	f.avail = NewAvailability(f.registry, f.bookings)
	f.avail.now = fixedNow
	return f
}

func (f *fixture) booking(user uint64, ref model.ResourceRef, rng model.DateRange, st model.BookingStatus, pay model.PaymentStatus) *model.Booking {
	b := &model.Booking{
		UserID:          user,
		CheckIn:         rng.CheckIn,
		CheckOut:        rng.CheckOut,
		Guests:          2,
		TotalPriceCents: 10000,
		Status:          st,
		PaymentStatus:   pay,
	}
	b.PropertyID, b.TourPackageID = model.RefFor(ref)
	return f.bookings.seed(b)
}
