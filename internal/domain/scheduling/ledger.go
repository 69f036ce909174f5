package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/portal/internal/platform/apperr"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

func parseDate(s string) (string, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", apperr.Invalid("date must be YYYY-MM-DD")
	}
	return d.Format(dateLayout), nil
}

func parseSlot(i int, in SlotInput) (TimeSlot, error) {
	start, err := time.Parse(clockLayout, strings.TrimSpace(in.Start))
	if err != nil {
		return TimeSlot{}, apperr.Invalid(fmt.Sprintf("timeSlots[%d].start must be HH:MM", i))
	}
	end, err := time.Parse(clockLayout, strings.TrimSpace(in.End))
	if err != nil {
		return TimeSlot{}, apperr.Invalid(fmt.Sprintf("timeSlots[%d].end must be HH:MM", i))
	}
	if !end.After(start) {
		return TimeSlot{}, apperr.Invalid(fmt.Sprintf("timeSlots[%d] must end after it starts", i))
	}
	return TimeSlot{
		ID:    uuid.New(),
		Start: start.Format(clockLayout),
		End:   end.Format(clockLayout),
	}, nil
}

// Publish stores a new availability record with every slot free. Records are
// never merged, so a doctor may publish the same date more than once.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (*Availability, error) {
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctorId is required")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if len(req.TimeSlots) == 0 {
		return nil, apperr.Invalid("at least one time slot is required")
	}

	a := &Availability{DoctorID: req.DoctorID, Date: date, TimeSlots: make([]TimeSlot, 0, len(req.TimeSlots))}
	for i, in := range req.TimeSlots {
		slot, err := parseSlot(i, in)
		if err != nil {
			return nil, err
		}
		a.TimeSlots = append(a.TimeSlots, slot)
	}

	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.availability.Create(ctx, a)
	}); err != nil {
		return nil, err
	}
	s.logger.Info().Str("availability_id", a.ID.String()).Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date).Int("slots", len(a.TimeSlots)).Msg("availability published")
	return a, nil
}

// ListAvailability returns the doctor's records in creation order.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	return s.availability.ListByDoctor(ctx, doctorID)
}

// GetSlot resolves one slot of a record.
func (s *Service) GetSlot(ctx context.Context, availabilityID uuid.UUID, index int) (*Availability, TimeSlot, error) {
	a, err := s.availability.GetByID(ctx, availabilityID)
	if err != nil {
		return nil, TimeSlot{}, err
	}
	if index < 0 || index >= len(a.TimeSlots) {
		return nil, TimeSlot{}, ErrInvalidSlot
	}
	return a, a.TimeSlots[index], nil
}

// SetBooked persists a slot's booked flag without any precondition.
func (s *Service) SetBooked(ctx context.Context, availabilityID uuid.UUID, index int, booked bool) error {
	return s.availability.SetSlotBooked(ctx, availabilityID, index, booked)
}

func slotIndexByID(a *Availability, slotID uuid.UUID) int {
	for i, slot := range a.TimeSlots {
		if slot.ID == slotID {
			return i
		}
	}
	return -1
}
