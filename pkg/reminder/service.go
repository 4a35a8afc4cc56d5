package reminder

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/line"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

// DefaultTemplate is the message used for scheduled shift reminders.
const DefaultTemplate = "Hi {{name}}! Reminder: your {{shift}} shift at {{location}} on {{date}} starts at {{time}}. See you there!"

// Display start times per shift type, used for the {{time}}
// placeholder.
var shiftStartTimes = map[string]string{
	"DS": "09:00",
	"NS": "21:00",
}

// Scheduler derives reminder events from accepted bookings and drives
// the dispatch-and-record cycle. The messenger is injected once at
// construction; there is no global client.
type Scheduler struct {
	store store.Store
	msgr  line.Messenger
	tmpl  string
	now   func() time.Time
	log   zerolog.Logger
}

func New(st store.Store, msgr line.Messenger, tmpl string, log zerolog.Logger) *Scheduler {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	return &Scheduler{
		store: st,
		msgr:  msgr,
		tmpl:  tmpl,
		now:   time.Now,
		log:   log,
	}
}

// ScheduleFor creates one pending reminder event per booked shift,
// due at 09:00 Taipei time the day before the shift. A shift date that
// matches neither supported format is skipped with a warning; it never
// fails the other shifts or the booking itself.
func (s *Scheduler) ScheduleFor(b *database.Booking) ([]database.ReminderEvent, error) {
	// A resubmission replaces the booking's shift set, so reminders
	// still pending from the previous set must not survive it.
	// Terminal events stay for the audit history.
	if b.ID != 0 {
		if err := s.store.DeletePendingForBooking(b.ID); err != nil {
			return nil, err
		}
	}
	if b.LineID == "" {
		s.log.Warn().Uint("booking", b.ID).Msg("booking has no LINE handle, skipping reminders")
		return nil, nil
	}

	year := s.now().In(Taipei).Year()
	events := make([]database.ReminderEvent, 0, len(b.Shifts))
	for _, sh := range b.Shifts {
		date, err := ParseShiftDate(sh.Date, year)
		if err != nil {
			s.log.Warn().Err(err).
				Uint("booking", b.ID).
				Str("location", sh.Location).
				Str("shift", sh.ShiftType).
				Msg("skipping reminder for unparsable shift date")
			continue
		}
		msg := Render(s.tmpl, map[string]string{
			"name":     b.EmployeeID,
			"location": sh.Location,
			"date":     sh.Date,
			"time":     shiftStartTimes[sh.ShiftType],
			"shift":    sh.ShiftType,
		})
		events = append(events, database.ReminderEvent{
			ApplicationID: b.ID,
			TargetHandle:  b.LineID,
			Message:       msg,
			ScheduledFor:  ReminderInstant(date),
			Status:        database.StatusPending,
		})
	}
	if len(events) == 0 {
		return nil, nil
	}
	if err := s.store.CreateEvents(events); err != nil {
		return nil, err
	}
	return events, nil
}

// DueNotifications returns pending events whose scheduled instant has
// passed, but only while now is inside the daily dispatch window.
// Outside the window it returns nothing, even for overdue events.
func (s *Scheduler) DueNotifications(now time.Time) ([]database.ReminderEvent, error) {
	if !InDispatchWindow(now) {
		return nil, nil
	}
	return s.store.PendingDue(now.UTC())
}

// RecordOutcome moves an event to sent or failed and stores the
// response or error text. Re-invoking on an already-terminal event
// overwrites the stored text.
func (s *Scheduler) RecordOutcome(id uint, delivered bool, text string) error {
	status := database.StatusSent
	if !delivered {
		status = database.StatusFailed
	}
	return s.store.SetEventOutcome(id, status, text)
}

// RunDue is one dispatch cycle, invoked by an external trigger (cron
// or the admin endpoint): fetch due events, push each through the
// messenger, record every outcome. A delivery failure is recorded on
// its own event and never stops the rest of the batch.
func (s *Scheduler) RunDue(ctx context.Context) (sent, failed int, err error) {
	events, err := s.DueNotifications(s.now())
	if err != nil {
		return 0, 0, err
	}
	for _, e := range events {
		if pushErr := s.msgr.PushText(ctx, e.TargetHandle, e.Message); pushErr != nil {
			failed++
			s.log.Error().Err(pushErr).Uint("event", e.ID).Msg("reminder delivery failed")
			if rerr := s.RecordOutcome(e.ID, false, pushErr.Error()); rerr != nil {
				s.log.Error().Err(rerr).Uint("event", e.ID).Msg("could not record delivery failure")
			}
			continue
		}
		sent++
		if rerr := s.RecordOutcome(e.ID, true, "ok"); rerr != nil {
			s.log.Error().Err(rerr).Uint("event", e.ID).Msg("could not record delivery success")
		}
	}
	return sent, failed, nil
}

// DispatchOutcome reports one immediate delivery attempt.
type DispatchOutcome struct {
	EventID   uint   `json:"event_id"`
	Delivered bool   `json:"delivered"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// ManualSend bypasses scheduling entirely: it renders the template
// against the supplied values, pushes immediately, and records an
// event with ApplicationID 0 (manual, unassociated). The date value
// defaults to the given shift date text.
func (s *Scheduler) ManualSend(ctx context.Context, handle, shiftDateText, tmpl string, values map[string]string) (*DispatchOutcome, error) {
	if tmpl == "" {
		tmpl = s.tmpl
	}
	if values == nil {
		values = make(map[string]string)
	}
	if _, ok := values["date"]; !ok {
		values["date"] = shiftDateText
	}
	text := Render(tmpl, values)

	pushErr := s.msgr.PushText(ctx, handle, text)
	status, resp := database.StatusSent, "ok"
	if pushErr != nil {
		status, resp = database.StatusFailed, pushErr.Error()
	}
	events := []database.ReminderEvent{{
		ApplicationID: 0,
		TargetHandle:  handle,
		Message:       text,
		ScheduledFor:  s.now().UTC(),
		Status:        status,
		ResponseText:  resp,
	}}
	if err := s.store.CreateEvents(events); err != nil {
		return nil, err
	}
	out := &DispatchOutcome{EventID: events[0].ID, Delivered: pushErr == nil, Message: text}
	if pushErr != nil {
		out.Error = pushErr.Error()
	}
	return out, nil
}

// Redeliver re-pushes an existing event (the operator's manual
// re-trigger for failed deliveries) and records the new outcome.
func (s *Scheduler) Redeliver(ctx context.Context, id uint) (*DispatchOutcome, error) {
	e, err := s.store.EventByID(id)
	if err != nil {
		return nil, err
	}
	pushErr := s.msgr.PushText(ctx, e.TargetHandle, e.Message)
	out := &DispatchOutcome{EventID: e.ID, Delivered: pushErr == nil, Message: e.Message}
	text := "ok"
	if pushErr != nil {
		out.Error = pushErr.Error()
		text = pushErr.Error()
	}
	if err := s.RecordOutcome(e.ID, pushErr == nil, text); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the most recent events for the admin audit view.
func (s *Scheduler) History(limit int) ([]database.ReminderEvent, error) {
	return s.store.RecentEvents(limit)
}
