package store

import (
	"errors"
	"sort"
	"time"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistence capability the booking ledger and reminder
// scheduler depend on. Two interchangeable implementations exist: a
// gorm-backed one for production and an in-memory one for development
// and tests. Both honor the same atomicity contract on CommitBooking.
type Store interface {
	// Shift cells
	UpsertCells(cells []database.ShiftCell) error
	UpdateCell(id uint, capacity int, rate string) error
	DeleteCells(cohort, location, date string) (int64, error)
	CellsForCohort(cohort string) ([]database.ShiftCell, error)
	FindCell(key models.CellKey) (*database.ShiftCell, error)

	// CommitBooking applies a whole submission atomically: it
	// increments bookedCount for every key, subject to
	// bookedCount < capacity, and creates or replaces the booking for
	// (cohort, employee_id). If any cell is already full, nothing is
	// applied and that cell's key is returned. The check and the
	// increment must be a single conditional step, never a read
	// followed by a write.
	CommitBooking(b *database.Booking, keys []models.CellKey) (*models.CellKey, error)

	FindBooking(cohort, employeeID string) (*database.Booking, error)
	FindBookingByRef(reference string) (*database.Booking, error)

	// Reminder events. CreateEvents assigns IDs to the passed slice
	// elements. DeletePendingForBooking removes the booking's events
	// that are still pending; terminal events stay for the audit
	// history, and bookingID 0 (manual events) is never matched.
	CreateEvents(events []database.ReminderEvent) error
	DeletePendingForBooking(bookingID uint) error
	PendingDue(cutoff time.Time) ([]database.ReminderEvent, error)
	SetEventOutcome(id uint, status, responseText string) error
	EventByID(id uint) (*database.ReminderEvent, error)
	RecentEvents(limit int) ([]database.ReminderEvent, error)

	// Admin users
	FindAdmin(username string) (*database.MasterUser, error)
	CreateAdmin(u *database.MasterUser) error
	CountAdmins() (int64, error)
}

// sortedCellKeys returns a copy of keys in stable lock order. Both
// implementations claim cells in this order so two concurrent batches
// over the same cells can never lock them in opposite order.
func sortedCellKeys(keys []models.CellKey) []models.CellKey {
	out := append([]models.CellKey(nil), keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
