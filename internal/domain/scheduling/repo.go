package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AvailabilityRepository persists availability records and their slots.
// Missing records return ErrAvailabilityNotFound and out-of-range indexes
// ErrInvalidSlot.
type AvailabilityRepository interface {
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	// ListByDoctor returns records in creation order.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error)
	SetSlotBooked(ctx context.Context, id uuid.UUID, index int, booked bool) error
	// SwapSlotBooked sets the flag to `to` only if it currently equals
	// `from`, reporting whether the write happened.
	SwapSlotBooked(ctx context.Context, id uuid.UUID, index int, from, to bool) (bool, error)
}

// AppointmentRepository persists appointments. Create and UpdateStatus return
// ErrBookingConflict when a second active appointment would reference the
// same slot.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, a *Appointment) error
	// ListByDoctor and ListByPatient return newest-created first.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
}

// Directory resolves user ids to the identity shown on appointment lists.
// Unknown ids are absent from the result.
type Directory interface {
	Parties(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Party, error)
}
