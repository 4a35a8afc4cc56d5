package ledger

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/iskwon89/JobShiftSelector-sub000/pkg/database"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/models"
	"github.com/iskwon89/JobShiftSelector-sub000/pkg/store"
)

func newTestLedger(t *testing.T, cells []database.ShiftCell) *Ledger {
	t.Helper()
	st := store.NewMemory()
	if err := st.UpsertCells(cells); err != nil {
		t.Fatalf("seeding cells: %v", err)
	}
	return New(st, zerolog.Nop())
}

func TestSubmitRoundTrip(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Rate: "NT$1,400", Capacity: 5},
		{Cohort: "A", Location: "FC1", Date: "14-Jun", ShiftType: "NS", Rate: "NT$1,700", Capacity: 5},
	})

	res, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-100",
		LineID:     "U100",
		Phone:      "0911222333",
		Selections: []models.ShiftSelection{
			{Location: "FC1", Date: "13-Jun", ShiftType: "DS"},
			{Location: "FC1", Date: "14-Jun", ShiftType: "NS"},
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.Created {
		t.Error("expected first submission to create a booking")
	}
	if res.Booking.Reference == "" {
		t.Error("expected a booking reference")
	}

	b, err := l.Lookup("A", "e-100")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(b.Shifts) != 2 {
		t.Fatalf("expected 2 booked shifts, got %d", len(b.Shifts))
	}
	if b.Shifts[0].Rate != "NT$1,400" || b.Shifts[1].Rate != "NT$1,700" {
		t.Errorf("expected denormalized rates, got %q and %q", b.Shifts[0].Rate, b.Shifts[1].Rate)
	}
}

func TestSubmitUnknownCell(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: 5},
	})

	_, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-100",
		Selections: []models.ShiftSelection{
			{Location: "FC9", Date: "13-Jun", ShiftType: "DS"},
		},
	})

	var unknown *UnknownShiftCellError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownShiftCellError, got %v", err)
	}
	if unknown.Key.Location != "FC9" {
		t.Errorf("expected offending cell FC9, got %s", unknown.Key.Location)
	}
}

func TestConcurrentSubmissionsRespectCapacity(t *testing.T) {
	const capacity = 3
	const contenders = 10

	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: capacity},
	})

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := l.Submit(Submission{
				Cohort:     "A",
				EmployeeID: "e-" + string(rune('a'+n)),
				LineID:     "U1",
				Selections: []models.ShiftSelection{
					{Location: "FC1", Date: "13-Jun", ShiftType: "DS"},
				},
			})
			results[n] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var full *CapacityExceededError
		if !errors.As(err, &full) {
			t.Fatalf("expected CapacityExceededError for losers, got %v", err)
		}
	}
	if successes != capacity {
		t.Errorf("expected exactly %d accepted submissions, got %d", capacity, successes)
	}

	cells, err := l.CapacitySnapshot("A")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if cells[0].BookedCount != capacity {
		t.Errorf("expected bookedCount %d, got %d", capacity, cells[0].BookedCount)
	}
}

func TestLastSlotRace(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: 1},
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = l.Submit(Submission{
				Cohort:     "A",
				EmployeeID: []string{"e-1", "e-2"}[n],
				Selections: []models.ShiftSelection{
					{Location: "FC1", Date: "13-Jun", ShiftType: "DS"},
				},
			})
		}(i)
	}
	wg.Wait()

	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("expected exactly one winner, got errors %v and %v", errs[0], errs[1])
	}

	cells, _ := l.CapacitySnapshot("A")
	if cells[0].BookedCount != 1 {
		t.Errorf("expected bookedCount 1, got %d", cells[0].BookedCount)
	}
}

func TestBatchIsAllOrNothing(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: 5},
		{Cohort: "A", Location: "FC1", Date: "14-Jun", ShiftType: "DS", Capacity: 1},
	})

	// Fill the 14-Jun cell first.
	if _, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-0",
		Selections: []models.ShiftSelection{{Location: "FC1", Date: "14-Jun", ShiftType: "DS"}},
	}); err != nil {
		t.Fatalf("seed submit failed: %v", err)
	}

	_, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-1",
		Selections: []models.ShiftSelection{
			{Location: "FC1", Date: "13-Jun", ShiftType: "DS"},
			{Location: "FC1", Date: "14-Jun", ShiftType: "DS"},
		},
	})

	var full *CapacityExceededError
	if !errors.As(err, &full) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if full.Key.Date != "14-Jun" {
		t.Errorf("expected the full cell to be named, got %s", full.Key)
	}

	// The available cell must not keep a partial increment.
	cells, _ := l.CapacitySnapshot("A")
	for _, c := range cells {
		if c.Date == "13-Jun" && c.BookedCount != 0 {
			t.Errorf("cell %s has bookedCount %d after failed batch", c.Date, c.BookedCount)
		}
	}
}

func TestResubmitReplacesBooking(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: 5},
		{Cohort: "A", Location: "FC2", Date: "14-Jun", ShiftType: "NS", Capacity: 5},
	})

	first, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-1",
		LineID:     "U1",
		Selections: []models.ShiftSelection{{Location: "FC1", Date: "13-Jun", ShiftType: "DS"}},
	})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	second, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-1",
		LineID:     "U1-new",
		Selections: []models.ShiftSelection{{Location: "FC2", Date: "14-Jun", ShiftType: "NS"}},
	})
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if second.Created {
		t.Error("expected replacement, not creation")
	}
	if second.Booking.Reference != first.Booking.Reference {
		t.Errorf("reference changed on resubmission: %s -> %s",
			first.Booking.Reference, second.Booking.Reference)
	}

	b, _ := l.Lookup("A", "e-1")
	if len(b.Shifts) != 1 || b.Shifts[0].Location != "FC2" {
		t.Errorf("expected latest-wins shift set, got %+v", b.Shifts)
	}
	if b.LineID != "U1-new" {
		t.Errorf("expected contact fields replaced, got %s", b.LineID)
	}
}

func TestAmendDoesNotReleaseSlots(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: 5},
		{Cohort: "A", Location: "FC2", Date: "14-Jun", ShiftType: "NS", Capacity: 5},
	})

	res, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-1",
		Selections: []models.ShiftSelection{{Location: "FC1", Date: "13-Jun", ShiftType: "DS"}},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := l.Amend(res.Booking.Reference, "e-1", "U1", "", []models.ShiftSelection{
		{Location: "FC2", Date: "14-Jun", ShiftType: "NS"},
	}); err != nil {
		t.Fatalf("amend failed: %v", err)
	}

	// Documented behavior: the original cell keeps its claimed slot.
	cells, _ := l.CapacitySnapshot("A")
	for _, c := range cells {
		if c.BookedCount != 1 {
			t.Errorf("expected bookedCount 1 on %s/%s, got %d", c.Location, c.Date, c.BookedCount)
		}
	}
}

func TestAmendIdentityMismatch(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Capacity: 5},
	})

	res, err := l.Submit(Submission{
		Cohort:     "A",
		EmployeeID: "e-1",
		Selections: []models.ShiftSelection{{Location: "FC1", Date: "13-Jun", ShiftType: "DS"}},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = l.Amend(res.Booking.Reference, "e-2", "", "", []models.ShiftSelection{
		{Location: "FC1", Date: "13-Jun", ShiftType: "DS"},
	})
	if !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	l := newTestLedger(t, []database.ShiftCell{
		{Cohort: "A", Location: "FC1", Date: "13-Jun", ShiftType: "DS", Rate: "NT$1,400", Capacity: 3},
		{Cohort: "A", Location: "FC2", Date: "14-Jun", ShiftType: "NS", Rate: "NT$1,700", Capacity: 2},
	})

	first, err := l.CapacitySnapshot("A")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	second, err := l.CapacitySnapshot("A")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshots differ with no intervening submissions:\n%+v\n%+v", first, second)
	}
}
