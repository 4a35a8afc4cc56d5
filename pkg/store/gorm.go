package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
)

// errCellFull rolls back the commit transaction when a conditional
// increment matches no row.
var errCellFull = errors.New("shift cell full")

// Gorm is the relational Store implementation. Works against both
// Postgres and SQLite (see database.InitDB).
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// UpsertCells creates cells or updates rate/capacity of existing ones.
// BookedCount is never touched by the upsert.
func (s *Gorm) UpsertCells(cells []database.ShiftCell) error {
	if len(cells) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "cohort"}, {Name: "location"}, {Name: "date"}, {Name: "shift_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "capacity", "updated_at"}),
	}).Create(&cells).Error
}

// UpdateCell edits capacity and rate. The update is refused when the
// new capacity would undercut the current booked count.
func (s *Gorm) UpdateCell(id uint, capacity int, rate string) error {
	res := s.db.Model(&database.ShiftCell{}).
		Where("id = ? AND booked_count <= ?", id, capacity).
		Updates(map[string]interface{}{"capacity": capacity, "rate": rate})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCells removes cells matching the non-empty filters; bookings
// already accepted against them are kept (retention is an admin
// concern).
func (s *Gorm) DeleteCells(cohort, location, date string) (int64, error) {
	q := s.db.Where("cohort = ?", cohort)
	if location != "" {
		q = q.Where("location = ?", location)
	}
	if date != "" {
		q = q.Where("date = ?", date)
	}
	res := q.Delete(&database.ShiftCell{})
	return res.RowsAffected, res.Error
}

func (s *Gorm) CellsForCohort(cohort string) ([]database.ShiftCell, error) {
	var cells []database.ShiftCell
	err := s.db.Where("cohort = ?", cohort).
		Order("location, date, shift_type").Find(&cells).Error
	return cells, err
}

func (s *Gorm) FindCell(key models.CellKey) (*database.ShiftCell, error) {
	var cell database.ShiftCell
	err := s.db.Where("cohort = ? AND location = ? AND date = ? AND shift_type = ?",
		key.Cohort, key.Location, key.Date, key.ShiftType).First(&cell).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cell, nil
}

// CommitBooking increments every cell with a single conditional UPDATE
// per key, all inside one transaction; a full cell rolls the whole
// submission back. The booking row is then created or replaced via a
// single-query upsert on (cohort, employee_id).
func (s *Gorm) CommitBooking(b *database.Booking, keys []models.CellKey) (*models.CellKey, error) {
	var full *models.CellKey
	ordered := sortedCellKeys(keys)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range ordered {
			k := ordered[i]
			res := tx.Model(&database.ShiftCell{}).
				Where("cohort = ? AND location = ? AND date = ? AND shift_type = ? AND booked_count < capacity",
					k.Cohort, k.Location, k.Date, k.ShiftType).
				UpdateColumn("booked_count", gorm.Expr("booked_count + ?", 1))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				full = &ordered[i]
				return errCellFull
			}
		}

		shifts := b.Shifts
		b.Shifts = nil
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cohort"}, {Name: "employee_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"line_id", "phone", "updated_at"}),
		}).Create(b).Error; err != nil {
			return err
		}

		// Re-read the row: on conflict the original ID and reference
		// survive and the caller needs them.
		var saved database.Booking
		if err := tx.Where("cohort = ? AND employee_id = ?", b.Cohort, b.EmployeeID).
			First(&saved).Error; err != nil {
			return err
		}
		b.ID = saved.ID
		b.Reference = saved.Reference
		b.CreatedAt = saved.CreatedAt

		if err := tx.Where("booking_id = ?", b.ID).
			Delete(&database.BookingShift{}).Error; err != nil {
			return err
		}
		for i := range shifts {
			shifts[i].ID = 0
			shifts[i].BookingID = b.ID
		}
		if err := tx.Create(&shifts).Error; err != nil {
			return err
		}
		b.Shifts = shifts
		return nil
	})

	if full != nil {
		return full, nil
	}
	return nil, err
}

func (s *Gorm) FindBooking(cohort, employeeID string) (*database.Booking, error) {
	var b database.Booking
	err := s.db.Preload("Shifts").
		Where("cohort = ? AND employee_id = ?", cohort, employeeID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Gorm) FindBookingByRef(reference string) (*database.Booking, error) {
	var b database.Booking
	err := s.db.Preload("Shifts").Where("reference = ?", reference).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Gorm) CreateEvents(events []database.ReminderEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.Create(&events).Error
}

func (s *Gorm) DeletePendingForBooking(bookingID uint) error {
	if bookingID == 0 {
		return nil
	}
	return s.db.Where("application_id = ? AND status = ?", bookingID, database.StatusPending).
		Delete(&database.ReminderEvent{}).Error
}

func (s *Gorm) PendingDue(cutoff time.Time) ([]database.ReminderEvent, error) {
	var events []database.ReminderEvent
	err := s.db.Where("status = ? AND scheduled_for <= ?", database.StatusPending, cutoff).
		Order("scheduled_for").Find(&events).Error
	return events, err
}

func (s *Gorm) SetEventOutcome(id uint, status, responseText string) error {
	res := s.db.Model(&database.ReminderEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "response_text": responseText})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) EventByID(id uint) (*database.ReminderEvent, error) {
	var e database.ReminderEvent
	err := s.db.First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Gorm) RecentEvents(limit int) ([]database.ReminderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []database.ReminderEvent
	err := s.db.Order("created_at desc").Limit(limit).Find(&events).Error
	return events, err
}

func (s *Gorm) FindAdmin(username string) (*database.MasterUser, error) {
	var u database.MasterUser
	err := s.db.Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Gorm) CreateAdmin(u *database.MasterUser) error {
	return s.db.Create(u).Error
}

func (s *Gorm) CountAdmins() (int64, error) {
	var count int64
	err := s.db.Model(&database.MasterUser{}).Count(&count).Error
	return count, err
}
