package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/portal/internal/platform/lock"
	"github.com/hospital/portal/internal/platform/uow"
)

// runRepositoryContract exercises a store backend against the behavior the
// service relies on. Store-specific tests call it after connecting.
func runRepositoryContract(t *testing.T, avail AvailabilityRepository, appts AppointmentRepository, tx uow.Transactor) {
	ctx := context.Background()
	doctor := uuid.New()

	a := &Availability{DoctorID: doctor, Date: "2024-05-01", TimeSlots: []TimeSlot{
		{ID: uuid.New(), Start: "09:00", End: "09:30"},
		{ID: uuid.New(), Start: "09:00", End: "09:30"},
	}}
	if err := avail.Create(ctx, a); err != nil {
		t.Fatalf("create availability: %v", err)
	}

	t.Run("get round trip", func(t *testing.T) {
		got, err := avail.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Date != "2024-05-01" || len(got.TimeSlots) != 2 || got.TimeSlots[1].ID != a.TimeSlots[1].ID {
			t.Errorf("unexpected record %+v", got)
		}
		if _, err := avail.GetByID(ctx, uuid.New()); !errors.Is(err, ErrAvailabilityNotFound) {
			t.Errorf("expected ErrAvailabilityNotFound, got %v", err)
		}
	})

	t.Run("list in creation order", func(t *testing.T) {
		second := &Availability{DoctorID: doctor, Date: "2024-05-02", TimeSlots: []TimeSlot{{ID: uuid.New(), Start: "10:00", End: "10:30"}}}
		if err := avail.Create(ctx, second); err != nil {
			t.Fatalf("create: %v", err)
		}
		items, err := avail.ListByDoctor(ctx, doctor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(items) != 2 || items[0].ID != a.ID || items[1].ID != second.ID {
			t.Errorf("unexpected order")
		}
	})

	t.Run("conditional swap", func(t *testing.T) {
		ok, err := avail.SwapSlotBooked(ctx, a.ID, 1, false, true)
		if err != nil || !ok {
			t.Fatalf("first swap: %v, %v", ok, err)
		}
		ok, err = avail.SwapSlotBooked(ctx, a.ID, 1, false, true)
		if err != nil || ok {
			t.Fatalf("second swap should not apply: %v, %v", ok, err)
		}
		if _, err := avail.SwapSlotBooked(ctx, a.ID, 7, false, true); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("expected ErrInvalidSlot, got %v", err)
		}
		if _, err := avail.SwapSlotBooked(ctx, uuid.New(), 0, false, true); !errors.Is(err, ErrAvailabilityNotFound) {
			t.Errorf("expected ErrAvailabilityNotFound, got %v", err)
		}
		if err := avail.SetSlotBooked(ctx, a.ID, 1, false); err != nil {
			t.Fatalf("reset: %v", err)
		}
	})

	t.Run("one active appointment per slot", func(t *testing.T) {
		base := Appointment{
			DoctorID: doctor, PatientID: uuid.New(), AvailabilityID: a.ID, SlotIndex: 1, SlotID: a.TimeSlots[1].ID,
			Date: a.Date, StartTime: "09:00", EndTime: "09:30", Status: StatusPending,
		}
		first := base
		if err := appts.Create(ctx, &first); err != nil {
			t.Fatalf("create: %v", err)
		}
		dup := base
		if err := appts.Create(ctx, &dup); !errors.Is(err, ErrBookingConflict) {
			t.Fatalf("expected ErrBookingConflict, got %v", err)
		}

		first.Status = StatusCancelled
		if err := appts.UpdateStatus(ctx, &first); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		next := base
		if err := appts.Create(ctx, &next); err != nil {
			t.Fatalf("create after cancel: %v", err)
		}
		first.Status = StatusPending
		if err := appts.UpdateStatus(ctx, &first); !errors.Is(err, ErrBookingConflict) {
			t.Errorf("expected ErrBookingConflict on uncancel, got %v", err)
		}

		items, err := appts.ListByDoctor(ctx, doctor)
		if err != nil || len(items) != 2 || items[0].ID != next.ID {
			t.Errorf("expected newest first, got %d items, %v", len(items), err)
		}
	})

	t.Run("concurrent booking", func(t *testing.T) {
		svc := NewService(avail, appts, tx, lock.NewLocal(5*time.Second), zerolog.Nop())
		f := &fixture{svc: svc}
		published, err := svc.Publish(ctx, PublishRequest{DoctorID: doctor, Date: "2024-05-03", TimeSlots: []SlotInput{{Start: "11:00", End: "11:30"}}})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		successes, _ := concurrentBookings(t, f, published, 10)
		if successes != 1 {
			t.Fatalf("expected exactly 1 success, got %d", successes)
		}
		got, _ := avail.GetByID(ctx, published.ID)
		if !got.TimeSlots[0].IsBooked {
			t.Error("expected slot booked")
		}
	})
}
