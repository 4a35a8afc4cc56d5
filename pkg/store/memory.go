package store

import (
	"sort"
	"sync"
	"time"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
)

// memCell pairs a cell with its own mutex so the check-and-increment
// on one cell never serializes submissions against unrelated cells.
type memCell struct {
	mu   sync.Mutex
	cell database.ShiftCell
}

// Memory is the map-backed Store implementation used in development
// and tests. It gives the same atomicity guarantee as the relational
// conditional UPDATE: the capacity check and the increment happen
// under the cell's mutex, and batches lock cells in sorted key order.
type Memory struct {
	mu sync.Mutex

	cells    map[string]*memCell
	bookings map[string]*database.Booking // cohort+"\x00"+employeeID
	byRef    map[string]string
	events   []*database.ReminderEvent
	admins   map[string]*database.MasterUser

	nextCellID    uint
	nextBookingID uint
	nextShiftID   uint
	nextEventID   uint
	nextAdminID   uint
}

func NewMemory() *Memory {
	return &Memory{
		cells:    make(map[string]*memCell),
		bookings: make(map[string]*database.Booking),
		byRef:    make(map[string]string),
		admins:   make(map[string]*database.MasterUser),
	}
}

func cellKeyOf(c database.ShiftCell) models.CellKey {
	return models.CellKey{Cohort: c.Cohort, Location: c.Location, Date: c.Date, ShiftType: c.ShiftType}
}

func bookingKey(cohort, employeeID string) string {
	return cohort + "\x00" + employeeID
}

func (m *Memory) UpsertCells(cells []database.ShiftCell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, c := range cells {
		key := cellKeyOf(c).String()
		if existing, ok := m.cells[key]; ok {
			existing.mu.Lock()
			existing.cell.Rate = c.Rate
			existing.cell.Capacity = c.Capacity
			existing.cell.UpdatedAt = now
			existing.mu.Unlock()
			continue
		}
		m.nextCellID++
		c.ID = m.nextCellID
		c.CreatedAt = now
		c.UpdatedAt = now
		m.cells[key] = &memCell{cell: c}
	}
	return nil
}

func (m *Memory) UpdateCell(id uint, capacity int, rate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mc := range m.cells {
		mc.mu.Lock()
		if mc.cell.ID == id && mc.cell.BookedCount <= capacity {
			mc.cell.Capacity = capacity
			mc.cell.Rate = rate
			mc.cell.UpdatedAt = time.Now()
			mc.mu.Unlock()
			return nil
		}
		mc.mu.Unlock()
	}
	return ErrNotFound
}

func (m *Memory) DeleteCells(cohort, location, date string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, mc := range m.cells {
		c := mc.cell
		if c.Cohort != cohort {
			continue
		}
		if location != "" && c.Location != location {
			continue
		}
		if date != "" && c.Date != date {
			continue
		}
		delete(m.cells, key)
		removed++
	}
	return removed, nil
}

func (m *Memory) CellsForCohort(cohort string) ([]database.ShiftCell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cells []database.ShiftCell
	for _, mc := range m.cells {
		mc.mu.Lock()
		c := mc.cell
		mc.mu.Unlock()
		if c.Cohort == cohort {
			cells = append(cells, c)
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		return cellKeyOf(cells[i]).String() < cellKeyOf(cells[j]).String()
	})
	return cells, nil
}

func (m *Memory) FindCell(key models.CellKey) (*database.ShiftCell, error) {
	m.mu.Lock()
	mc, ok := m.cells[key.String()]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	mc.mu.Lock()
	c := mc.cell
	mc.mu.Unlock()
	return &c, nil
}

func (m *Memory) CommitBooking(b *database.Booking, keys []models.CellKey) (*models.CellKey, error) {
	// Resolve cells up front, then lock them in sorted key order so
	// concurrent batches cannot deadlock.
	type lockTarget struct {
		key models.CellKey
		mc  *memCell
	}
	m.mu.Lock()
	targets := make([]lockTarget, 0, len(keys))
	for _, k := range sortedCellKeys(keys) {
		mc, ok := m.cells[k.String()]
		if !ok {
			m.mu.Unlock()
			return nil, ErrNotFound
		}
		targets = append(targets, lockTarget{key: k, mc: mc})
	}
	m.mu.Unlock()

	for _, t := range targets {
		t.mc.mu.Lock()
	}
	unlockAll := func() {
		for _, t := range targets {
			t.mc.mu.Unlock()
		}
	}

	now := time.Now()
	for _, t := range targets {
		if t.mc.cell.BookedCount >= t.mc.cell.Capacity {
			full := t.key
			unlockAll()
			return &full, nil
		}
	}
	for _, t := range targets {
		t.mc.cell.BookedCount++
		t.mc.cell.UpdatedAt = now
	}
	// Release the cell locks before taking the structure lock; every
	// other method acquires them in the opposite order.
	unlockAll()

	m.mu.Lock()
	defer m.mu.Unlock()
	key := bookingKey(b.Cohort, b.EmployeeID)
	if existing, ok := m.bookings[key]; ok {
		b.ID = existing.ID
		b.Reference = existing.Reference
		b.CreatedAt = existing.CreatedAt
	} else {
		m.nextBookingID++
		b.ID = m.nextBookingID
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	for i := range b.Shifts {
		m.nextShiftID++
		b.Shifts[i].ID = m.nextShiftID
		b.Shifts[i].BookingID = b.ID
	}
	stored := *b
	stored.Shifts = append([]database.BookingShift(nil), b.Shifts...)
	m.bookings[key] = &stored
	m.byRef[b.Reference] = key
	return nil, nil
}

func copyBooking(b *database.Booking) *database.Booking {
	out := *b
	out.Shifts = append([]database.BookingShift(nil), b.Shifts...)
	return &out
}

func (m *Memory) FindBooking(cohort, employeeID string) (*database.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingKey(cohort, employeeID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBooking(b), nil
}

func (m *Memory) FindBookingByRef(reference string) (*database.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byRef[reference]
	if !ok {
		return nil, ErrNotFound
	}
	b, ok := m.bookings[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBooking(b), nil
}

func (m *Memory) CreateEvents(events []database.ReminderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range events {
		m.nextEventID++
		events[i].ID = m.nextEventID
		if events[i].CreatedAt.IsZero() {
			events[i].CreatedAt = now
		}
		stored := events[i]
		m.events = append(m.events, &stored)
	}
	return nil
}

func (m *Memory) DeletePendingForBooking(bookingID uint) error {
	if bookingID == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, e := range m.events {
		if e.ApplicationID == bookingID && e.Status == database.StatusPending {
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return nil
}

func (m *Memory) PendingDue(cutoff time.Time) ([]database.ReminderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []database.ReminderEvent
	for _, e := range m.events {
		if e.Status == database.StatusPending && !e.ScheduledFor.After(cutoff) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (m *Memory) SetEventOutcome(id uint, status, responseText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.Status = status
			e.ResponseText = responseText
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EventByID(id uint) (*database.ReminderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			out := *e
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) RecentEvents(limit int) ([]database.ReminderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []database.ReminderEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.events[i])
	}
	return out, nil
}

func (m *Memory) FindAdmin(username string) (*database.MasterUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.admins[username]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) CreateAdmin(u *database.MasterUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAdminID++
	u.ID = m.nextAdminID
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	stored := *u
	m.admins[u.Username] = &stored
	return nil
}

func (m *Memory) CountAdmins() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.admins)), nil
}
