package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Taipei is the recipients' local zone. Taiwan has had no daylight
// saving since 1979, so a fixed offset is correct and keeps the binary
// free of a tzdata requirement.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// Reminders land at 09:00 local time the day before the shift, and
// dispatch is only allowed during the first half hour after that.
const (
	reminderHour          = 9
	dispatchWindowMinutes = 30
)

// The two display formats shift dates arrive in: admin-entered
// ("13-Jun") and UI-rendered ("Mon, Jun 16").
var shiftDateLayouts = []string{"2-Jan", "Mon, Jan 2"}

// InvalidDateError reports a shift date string matching neither
// supported format. It skips a single reminder, never a whole batch.
type InvalidDateError struct {
	Text string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("unrecognized shift date %q", e.Text)
}

// ParseShiftDate parses a shift display date into a calendar date in
// the given year, anchored at Taipei local midnight.
func ParseShiftDate(text string, year int) (time.Time, error) {
	s := strings.TrimSpace(text)
	for _, layout := range shiftDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, Taipei), nil
	}
	return time.Time{}, &InvalidDateError{Text: text}
}

// ReminderInstant returns the UTC instant at which the reminder for a
// shift on the given local date is due: 09:00 Taipei time the day
// before.
func ReminderInstant(shiftDate time.Time) time.Time {
	d := shiftDate.In(Taipei)
	return time.Date(d.Year(), d.Month(), d.Day(), reminderHour, 0, 0, 0, Taipei).
		AddDate(0, 0, -1).
		UTC()
}

// InDispatchWindow reports whether now falls inside the daily dispatch
// window, 09:00:00 up to but excluding 09:30:00 Taipei time. Outside
// the window due reminders wait for the next day's window instead of
// going out at arbitrary hours.
func InDispatchWindow(now time.Time) bool {
	local := now.In(Taipei)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= reminderHour*60 && minutes < reminderHour*60+dispatchWindowMinutes
}
