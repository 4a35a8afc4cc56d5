package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

type push struct {
	To   string
	Text string
}

// fakeMessenger records pushes and can be told to fail for a handle.
type fakeMessenger struct {
	mu      sync.Mutex
	pushes  []push
	failFor map[string]error
}

func (f *fakeMessenger) PushText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.pushes = append(f.pushes, push{To: to, Text: text})
	return nil
}

// inWindow is 09:15 Taipei on Jun 16 2024, inside the dispatch window.
var inWindow = time.Date(2024, time.June, 16, 9, 15, 0, 0, Taipei)

func newTestScheduler(t *testing.T, msgr *fakeMessenger, now time.Time) (*Scheduler, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	s := New(st, msgr, "", zerolog.Nop())
	s.now = func() time.Time { return now }
	return s, st
}

func TestScheduleForCreatesOneEventPerShift(t *testing.T) {
	fm := &fakeMessenger{}
	s, _ := newTestScheduler(t, fm, inWindow)

	booking := &database.Booking{
		ID:         7,
		EmployeeID: "e-1",
		LineID:     "U1",
		Shifts: []database.BookingShift{
			{Location: "FC1", Date: "Mon, Jun 16", ShiftType: "DS"},
			{Location: "FC2", Date: "17-Jun", ShiftType: "NS"},
		},
	}

	events, err := s.ScheduleFor(booking)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	want := time.Date(2024, time.June, 15, 1, 0, 0, 0, time.UTC)
	if !events[0].ScheduledFor.Equal(want) {
		t.Errorf("expected first event at %v, got %v", want, events[0].ScheduledFor)
	}
	if events[0].Status != database.StatusPending {
		t.Errorf("expected pending status, got %s", events[0].Status)
	}
	if events[0].ApplicationID != 7 || events[0].TargetHandle != "U1" {
		t.Errorf("event not bound to booking: %+v", events[0])
	}
}

func TestScheduleForSkipsBadDateOnly(t *testing.T) {
	fm := &fakeMessenger{}
	s, _ := newTestScheduler(t, fm, inWindow)

	events, err := s.ScheduleFor(&database.Booking{
		ID:         1,
		EmployeeID: "e-1",
		LineID:     "U1",
		Shifts: []database.BookingShift{
			{Location: "FC1", Date: "not a date", ShiftType: "DS"},
			{Location: "FC1", Date: "16-Jun", ShiftType: "DS"},
		},
	})
	if err != nil {
		t.Fatalf("one bad date must not fail the batch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the parsable shift to survive, got %d events", len(events))
	}
}

func TestResubmitSupersedesPendingReminders(t *testing.T) {
	fm := &fakeMessenger{}
	s, st := newTestScheduler(t, fm, inWindow)

	booking := &database.Booking{
		ID:         7,
		EmployeeID: "e-1",
		LineID:     "U1",
		Shifts: []database.BookingShift{
			{Location: "FC1", Date: "Mon, Jun 16", ShiftType: "DS"},
			{Location: "FC2", Date: "17-Jun", ShiftType: "NS"},
		},
	}
	if _, err := s.ScheduleFor(booking); err != nil {
		t.Fatalf("first schedule failed: %v", err)
	}

	// A reminder already delivered before the resubmission stays in the
	// audit history.
	farFuture := inWindow.Add(365 * 24 * time.Hour).UTC()
	pending, err := st.PendingDue(farFuture)
	if err != nil {
		t.Fatalf("pending query failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events after first submit, got %d", len(pending))
	}
	if err := s.RecordOutcome(pending[0].ID, true, "ok"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// Resubmit with a changed shift set. Pending events from the first
	// submission must not survive alongside the new ones.
	booking.Shifts = []database.BookingShift{
		{Location: "FC3", Date: "18-Jun", ShiftType: "DS"},
	}
	if _, err := s.ScheduleFor(booking); err != nil {
		t.Fatalf("second schedule failed: %v", err)
	}

	pending, err = st.PendingDue(farFuture)
	if err != nil {
		t.Fatalf("pending query failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly 1 pending event after resubmit, got %d", len(pending))
	}
	if pending[0].ScheduledFor.Day() != 17 {
		t.Errorf("surviving event is not for the new shift: %+v", pending[0])
	}

	history, err := st.RecentEvents(0)
	if err != nil {
		t.Fatalf("history query failed: %v", err)
	}
	var sentKept bool
	for _, e := range history {
		if e.ApplicationID == 7 && e.Status == database.StatusSent {
			sentKept = true
		}
	}
	if !sentKept {
		t.Error("expected the delivered event to survive the resubmission")
	}
}

func TestDueNotificationsWindow(t *testing.T) {
	fm := &fakeMessenger{}
	s, st := newTestScheduler(t, fm, inWindow)

	overdue := []database.ReminderEvent{{
		TargetHandle: "U1",
		Message:      "hello",
		ScheduledFor: inWindow.Add(-24 * time.Hour).UTC(),
		Status:       database.StatusPending,
	}}
	if err := st.CreateEvents(overdue); err != nil {
		t.Fatalf("seeding event: %v", err)
	}

	for _, outside := range []time.Time{
		time.Date(2024, time.June, 16, 8, 59, 59, 0, Taipei),
		time.Date(2024, time.June, 16, 9, 30, 0, 0, Taipei),
	} {
		due, err := s.DueNotifications(outside)
		if err != nil {
			t.Fatalf("due query failed: %v", err)
		}
		if len(due) != 0 {
			t.Errorf("expected no events outside window at %s, got %d",
				outside.Format("15:04:05"), len(due))
		}
	}

	due, err := s.DueNotifications(inWindow)
	if err != nil {
		t.Fatalf("due query failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due event inside window, got %d", len(due))
	}
}

func TestRunDueRecordsOutcomes(t *testing.T) {
	fm := &fakeMessenger{failFor: map[string]error{"U-broken": errors.New("status 400: invalid user")}}
	s, st := newTestScheduler(t, fm, inWindow)

	seed := []database.ReminderEvent{
		{TargetHandle: "U-ok", Message: "m1", ScheduledFor: inWindow.Add(-time.Hour).UTC(), Status: database.StatusPending},
		{TargetHandle: "U-broken", Message: "m2", ScheduledFor: inWindow.Add(-time.Hour).UTC(), Status: database.StatusPending},
	}
	if err := st.CreateEvents(seed); err != nil {
		t.Fatalf("seeding events: %v", err)
	}

	sent, failed, err := s.RunDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch cycle failed: %v", err)
	}
	if sent != 1 || failed != 1 {
		t.Errorf("expected 1 sent and 1 failed, got %d and %d", sent, failed)
	}

	ok, _ := st.EventByID(seed[0].ID)
	if ok.Status != database.StatusSent {
		t.Errorf("expected sent, got %s", ok.Status)
	}
	broken, _ := st.EventByID(seed[1].ID)
	if broken.Status != database.StatusFailed {
		t.Errorf("expected failed, got %s", broken.Status)
	}
	if broken.ResponseText == "" {
		t.Error("expected the delivery error recorded on the event")
	}

	// Terminal events are not picked up again; no automatic retry.
	sent, failed, err = s.RunDue(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if sent != 0 || failed != 0 {
		t.Errorf("expected an empty second cycle, got %d sent %d failed", sent, failed)
	}
}

func TestManualSend(t *testing.T) {
	fm := &fakeMessenger{}
	s, st := newTestScheduler(t, fm, inWindow)

	out, err := s.ManualSend(context.Background(), "U1", "Mon, Jun 16",
		"Hi {{name}}, shift at {{location}} on {{date}}",
		map[string]string{"name": "John", "location": "FC1"})
	if err != nil {
		t.Fatalf("manual send failed: %v", err)
	}

	want := "Hi John, shift at FC1 on Mon, Jun 16"
	if out.Message != want {
		t.Errorf("expected %q, got %q", want, out.Message)
	}
	if !out.Delivered {
		t.Error("expected delivery to succeed")
	}
	if len(fm.pushes) != 1 || fm.pushes[0].Text != want {
		t.Errorf("expected one push with rendered text, got %+v", fm.pushes)
	}

	e, err := st.EventByID(out.EventID)
	if err != nil {
		t.Fatalf("recorded event missing: %v", err)
	}
	if e.ApplicationID != 0 {
		t.Errorf("manual events must carry applicationID 0, got %d", e.ApplicationID)
	}
	if e.Status != database.StatusSent {
		t.Errorf("expected sent, got %s", e.Status)
	}
}

func TestRedeliverMissingEvent(t *testing.T) {
	fm := &fakeMessenger{}
	s, _ := newTestScheduler(t, fm, inWindow)

	_, err := s.Redeliver(context.Background(), 999)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown event, got %v", err)
	}
	if len(fm.pushes) != 0 {
		t.Errorf("expected no push for unknown event, got %+v", fm.pushes)
	}
}

func TestRecordOutcomeOverwritesTerminalText(t *testing.T) {
	fm := &fakeMessenger{}
	s, st := newTestScheduler(t, fm, inWindow)

	seed := []database.ReminderEvent{{
		TargetHandle: "U1", Message: "m", ScheduledFor: inWindow.UTC(), Status: database.StatusPending,
	}}
	if err := st.CreateEvents(seed); err != nil {
		t.Fatalf("seeding event: %v", err)
	}

	if err := s.RecordOutcome(seed[0].ID, true, "ok"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := s.RecordOutcome(seed[0].ID, true, "ok again"); err != nil {
		t.Fatalf("re-record failed: %v", err)
	}

	e, _ := st.EventByID(seed[0].ID)
	if e.ResponseText != "ok again" {
		t.Errorf("expected overwritten text, got %q", e.ResponseText)
	}
}
