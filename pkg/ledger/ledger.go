package ledger

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

// Ledger owns shift-cell capacity. It validates submissions against
// provisioned cells and commits them through the store's atomic
// check-and-increment, so accepted bookings can never push a cell past
// its capacity even under concurrent submissions.
type Ledger struct {
	store store.Store
	log   zerolog.Logger
}

func New(st store.Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: st, log: log}
}

// Submission is one applicant's complete shift-selection form.
type Submission struct {
	Cohort     string
	EmployeeID string
	LineID     string
	Phone      string
	Selections []models.ShiftSelection
}

// Result is the outcome of an accepted submission. Created is false
// when the submission replaced the applicant's earlier booking.
type Result struct {
	Booking *database.Booking
	Created bool
}

// NewReference builds the human-presentable booking identifier. It is
// generated once on first submission and survives amendments.
func NewReference() string {
	return "BK-" + strings.ToUpper(uuid.NewString()[:8])
}

// Submit validates every selection against the cohort's provisioned
// cells, then commits the batch atomically: all selections claim a
// slot, or none do and the full cell is reported. A repeat submission
// by the same identity replaces the earlier booking ("latest wins").
func (l *Ledger) Submit(sub Submission) (*Result, error) {
	keys, shifts, err := l.resolve(sub.Cohort, sub.Selections)
	if err != nil {
		return nil, err
	}

	created := false
	if _, err := l.store.FindBooking(sub.Cohort, sub.EmployeeID); errors.Is(err, store.ErrNotFound) {
		created = true
	} else if err != nil {
		return nil, err
	}

	booking := &database.Booking{
		Reference:  NewReference(),
		Cohort:     sub.Cohort,
		EmployeeID: sub.EmployeeID,
		LineID:     sub.LineID,
		Phone:      sub.Phone,
		Shifts:     shifts,
	}
	full, err := l.store.CommitBooking(booking, keys)
	if err != nil {
		return nil, err
	}
	if full != nil {
		return nil, &CapacityExceededError{Key: *full}
	}

	l.log.Info().
		Str("reference", booking.Reference).
		Str("cohort", sub.Cohort).
		Str("employee", sub.EmployeeID).
		Int("shifts", len(shifts)).
		Bool("created", created).
		Msg("booking accepted")
	return &Result{Booking: booking, Created: created}, nil
}

// Amend replaces the booking's shift set and contact fields under the
// same capacity discipline as Submit. Slots claimed by the previous
// selection set are NOT released; bookedCount is never decremented.
func (l *Ledger) Amend(reference, employeeID, lineID, phone string, selections []models.ShiftSelection) (*Result, error) {
	existing, err := l.store.FindBookingByRef(reference)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if existing.EmployeeID != employeeID {
		return nil, ErrIdentityMismatch
	}

	res, err := l.Submit(Submission{
		Cohort:     existing.Cohort,
		EmployeeID: employeeID,
		LineID:     lineID,
		Phone:      phone,
		Selections: selections,
	})
	if err != nil {
		return nil, err
	}
	res.Created = false
	return res, nil
}

// Lookup returns the applicant's current booking, if any.
func (l *Ledger) Lookup(cohort, employeeID string) (*database.Booking, error) {
	b, err := l.store.FindBooking(cohort, employeeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// CapacitySnapshot is the read-only view backing the shift-selection
// form. It reflects concurrent bookedCount changes on the caller's
// next poll; only the increment itself is strictly consistent.
func (l *Ledger) CapacitySnapshot(cohort string) ([]models.CellSnapshot, error) {
	cells, err := l.store.CellsForCohort(cohort)
	if err != nil {
		return nil, err
	}
	out := make([]models.CellSnapshot, 0, len(cells))
	for _, c := range cells {
		out = append(out, models.CellSnapshot{
			Location:    c.Location,
			Date:        c.Date,
			ShiftType:   c.ShiftType,
			Rate:        c.Rate,
			Capacity:    c.Capacity,
			BookedCount: c.BookedCount,
			Full:        c.BookedCount >= c.Capacity,
		})
	}
	return out, nil
}

// resolve maps selections to existing cells, denormalizing each cell's
// rate onto the booking shift rows.
func (l *Ledger) resolve(cohort string, selections []models.ShiftSelection) ([]models.CellKey, []database.BookingShift, error) {
	if len(selections) == 0 {
		return nil, nil, ErrNoSelections
	}
	seen := make(map[models.CellKey]bool, len(selections))
	keys := make([]models.CellKey, 0, len(selections))
	shifts := make([]database.BookingShift, 0, len(selections))
	for _, sel := range selections {
		key := models.CellKey{
			Cohort:    cohort,
			Location:  sel.Location,
			Date:      sel.Date,
			ShiftType: sel.ShiftType,
		}
		if seen[key] {
			return nil, nil, ErrDuplicateSelection
		}
		seen[key] = true

		cell, err := l.store.FindCell(key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, &UnknownShiftCellError{Key: key}
		}
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		shifts = append(shifts, database.BookingShift{
			Location:  cell.Location,
			Date:      cell.Date,
			ShiftType: cell.ShiftType,
			Rate:      cell.Rate,
		})
	}
	return keys, shifts, nil
}
