package models

import "fmt"

// ShiftSelection is one (location, date, shift type) pick made on the
// shift-selection form. Date is the display string as rendered by the
// form, e.g. "13-Jun" or "Mon, Jun 16".
type ShiftSelection struct {
	Location  string `json:"location"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
}

// CellKey identifies a single bookable shift cell.
type CellKey struct {
	Cohort    string
	Location  string
	Date      string
	ShiftType string
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Cohort, k.Location, k.Date, k.ShiftType)
}

// CellSnapshot is the read-only capacity view served to the
// shift-selection UI.
type CellSnapshot struct {
	Location    string `json:"location"`
	Date        string `json:"date"`
	ShiftType   string `json:"shift_type"`
	Rate        string `json:"rate"`
	Capacity    int    `json:"capacity"`
	BookedCount int    `json:"booked_count"`
	Full        bool   `json:"full"`
}
