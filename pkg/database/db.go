package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ReminderEvent delivery statuses. Both sent and failed are terminal.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ShiftCell represents the shift_cells table: one bookable
// (cohort, location, date, shift type) slot group.
type ShiftCell struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Cohort      string    `gorm:"uniqueIndex:idx_cell;not null" json:"cohort"`
	Location    string    `gorm:"uniqueIndex:idx_cell;not null" json:"location"`
	Date        string    `gorm:"uniqueIndex:idx_cell;not null" json:"date"`
	ShiftType   string    `gorm:"uniqueIndex:idx_cell;not null" json:"shift_type"`
	Rate        string    `json:"rate"`
	Capacity    int       `gorm:"not null" json:"capacity"`
	BookedCount int       `gorm:"not null;default:0" json:"booked_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Booking represents the bookings table. One row per applicant per
// cohort; a resubmission replaces the row's shift set in place.
type Booking struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Reference  string         `gorm:"unique;not null" json:"reference"`
	Cohort     string         `gorm:"uniqueIndex:idx_applicant;not null" json:"cohort"`
	EmployeeID string         `gorm:"uniqueIndex:idx_applicant;not null" json:"employee_id"`
	LineID     string         `json:"line_id"`
	Phone      string         `json:"phone"`
	Shifts     []BookingShift `gorm:"constraint:OnDelete:CASCADE" json:"shifts"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// BookingShift represents the booking_shifts table: one accepted
// selection, with the cell's rate denormalized at acceptance time.
type BookingShift struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	BookingID uint   `gorm:"index;not null" json:"booking_id"`
	Location  string `gorm:"not null" json:"location"`
	Date      string `gorm:"not null" json:"date"`
	ShiftType string `gorm:"not null" json:"shift_type"`
	Rate      string `json:"rate"`
}

// ReminderEvent represents the reminder_events table. ApplicationID 0
// marks a manually sent, unassociated event.
type ReminderEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ApplicationID uint      `gorm:"index" json:"application_id"`
	TargetHandle  string    `gorm:"not null" json:"target_handle"`
	Message       string    `json:"message"`
	ScheduledFor  time.Time `gorm:"index;not null" json:"scheduled_for"`
	Status        string    `gorm:"index;not null;default:pending" json:"status"`
	ResponseText  string    `json:"response_text"`
	CreatedAt     time.Time `json:"created_at"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// InitDB initializes the database connection and migrates the schema
func InitDB() *gorm.DB {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "bookings.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}

	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// Auto Migration
	db.AutoMigrate(&ShiftCell{}, &Booking{}, &BookingShift{}, &ReminderEvent{}, &MasterUser{})

	return db
}
