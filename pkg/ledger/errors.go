package ledger

import (
	"errors"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
)

var (
	ErrNoSelections       = errors.New("at least one shift selection is required")
	ErrDuplicateSelection = errors.New("duplicate shift selection in submission")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrIdentityMismatch   = errors.New("booking does not belong to this applicant")
)

// UnknownShiftCellError reports a selection that does not resolve to a
// provisioned shift cell for the cohort.
type UnknownShiftCellError struct {
	Key models.CellKey
}

func (e *UnknownShiftCellError) Error() string {
	return "unknown shift cell " + e.Key.String()
}

// CapacityExceededError names the cell that was already fully booked
// when the submission tried to claim a slot. The whole submission is
// rolled back; the applicant may resubmit with different shifts.
type CapacityExceededError struct {
	Key models.CellKey
}

func (e *CapacityExceededError) Error() string {
	return "shift cell " + e.Key.String() + " is fully booked"
}
