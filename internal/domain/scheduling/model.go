package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether an appointment in this status holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// TimeSlot is one bookable interval. Its position within the Availability is
// fixed once published; ID is the stable reference stored on appointments.
type TimeSlot struct {
	ID       uuid.UUID `json:"id"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	IsBooked bool      `json:"isBooked"`
}

// Availability is the set of slots a doctor published for one date.
type Availability struct {
	ID        uuid.UUID  `json:"id"`
	DoctorID  uuid.UUID  `json:"doctorId"`
	Date      string     `json:"date"`
	TimeSlots []TimeSlot `json:"timeSlots"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Appointment reserves one slot. Date and times are copied from the slot at
// booking time; Status is the only field that changes afterwards.
type Appointment struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctorId"`
	PatientID      uuid.UUID `json:"patientId"`
	AvailabilityID uuid.UUID `json:"availabilityId"`
	SlotIndex      int       `json:"slotIndex"`
	SlotID         uuid.UUID `json:"slotId"`
	Date           string    `json:"date"`
	StartTime      string    `json:"startTime"`
	EndTime        string    `json:"endTime"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Party is the identity shown next to an appointment.
type Party struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization *string   `json:"specialization,omitempty"`
}

// AppointmentView is an appointment joined with the other party.
type AppointmentView struct {
	*Appointment
	Patient *Party `json:"patient,omitempty"`
	Doctor  *Party `json:"doctor,omitempty"`
}

type SlotInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type PublishRequest struct {
	DoctorID  uuid.UUID   `json:"doctorId"`
	Date      string      `json:"date"`
	TimeSlots []SlotInput `json:"timeSlots"`
}

type BookRequest struct {
	AvailabilityID uuid.UUID `json:"availabilityId"`
	SlotIndex      *int      `json:"slotIndex"`
	DoctorID       uuid.UUID `json:"doctorId"`
	PatientID      uuid.UUID `json:"patientId"`
	Date           string    `json:"date"`
}

type StatusRequest struct {
	Status string `json:"status"`
}
