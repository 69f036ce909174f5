package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hospital/portal/internal/platform/apperr"
	"github.com/hospital/portal/internal/platform/uow"
)

// BookSlot reserves one slot and creates a pending appointment for it. The
// slot flag and the appointment are written in one unit of work under the
// slot's lock; of concurrent calls for one slot exactly one succeeds.
func (s *Service) BookSlot(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.AvailabilityID == uuid.Nil {
		return nil, apperr.Invalid("availabilityId is required")
	}
	if req.SlotIndex == nil {
		return nil, ErrInvalidSlot
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patientId is required")
	}
	var date string
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			return nil, err
		}
		date = d
	}
	index := *req.SlotIndex

	release, err := s.lockSlot(ctx, req.AvailabilityID, index)
	if err != nil {
		return nil, err
	}
	defer release()

	var appt *Appointment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		av, slot, err := s.GetSlot(ctx, req.AvailabilityID, index)
		if err != nil {
			return err
		}
		if slot.IsBooked {
			return ErrSlotAlreadyBooked
		}
		doctorID := req.DoctorID
		if doctorID == uuid.Nil {
			doctorID = av.DoctorID
		} else if doctorID != av.DoctorID {
			return apperr.Invalid("doctorId does not match the availability")
		}
		if date == "" {
			date = av.Date
		}

		swapped, err := s.availability.SwapSlotBooked(ctx, av.ID, index, false, true)
		if err != nil {
			return err
		}
		if !swapped {
			return ErrBookingConflict
		}
		uow.OnRollback(ctx, "release slot", func(ctx context.Context) error {
			_, err := s.availability.SwapSlotBooked(ctx, av.ID, index, true, false)
			return err
		})

		a := &Appointment{
			DoctorID:       doctorID,
			PatientID:      req.PatientID,
			AvailabilityID: av.ID,
			SlotIndex:      index,
			SlotID:         slot.ID,
			Date:           date,
			StartTime:      slot.Start,
			EndTime:        slot.End,
			Status:         StatusPending,
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			s.logger.Info().Str("availability_id", req.AvailabilityID.String()).Int("slot_index", index).
				Str("reason", err.Error()).Msg("booking rejected")
		}
		return nil, err
	}

	s.logger.Info().Str("appointment_id", appt.ID.String()).Str("availability_id", appt.AvailabilityID.String()).
		Int("slot_index", appt.SlotIndex).Str("patient_id", appt.PatientID.String()).Msg("slot booked")
	return appt, nil
}

// ChangeStatus overwrites an appointment's status. Cancelling frees the slot.
// Leaving cancelled is not a plain overwrite, even without strict transitions:
// the slot is re-reserved first, and ErrBookingConflict is returned with the
// status left cancelled if someone else has booked it since. A bare overwrite
// would leave two active appointments on one slot.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, raw string) (*Appointment, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := s.lockSlot(ctx, current.AvailabilityID, current.SlotIndex)
	if err != nil {
		return nil, err
	}
	defer release()

	var appt *Appointment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		prev := a.Status
		if s.strict && !CanTransition(prev, next) {
			return ErrInvalidTransition
		}

		switch {
		case prev.Active() && next == StatusCancelled:
			if err := s.releaseSlot(ctx, a); err != nil {
				return err
			}
		case prev == StatusCancelled && next.Active():
			if err := s.reserveSlot(ctx, a); err != nil {
				return err
			}
		}

		if prev != next {
			a.Status = next
			if err := s.appointments.UpdateStatus(ctx, a); err != nil {
				return err
			}
		}
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", appt.ID.String()).Str("status", string(appt.Status)).Msg("appointment status changed")
	return appt, nil
}

// releaseSlot frees the slot an appointment holds, located by its stable id.
// A missing record or slot is skipped.
func (s *Service) releaseSlot(ctx context.Context, a *Appointment) error {
	av, err := s.availability.GetByID(ctx, a.AvailabilityID)
	if errors.Is(err, ErrAvailabilityNotFound) {
		s.logger.Debug().Str("appointment_id", a.ID.String()).Msg("release skipped, availability missing")
		return nil
	}
	if err != nil {
		return err
	}
	index := slotIndexByID(av, a.SlotID)
	if index < 0 {
		s.logger.Debug().Str("appointment_id", a.ID.String()).Msg("release skipped, slot missing")
		return nil
	}

	swapped, err := s.availability.SwapSlotBooked(ctx, av.ID, index, true, false)
	if err != nil {
		return err
	}
	if !swapped {
		s.logger.Debug().Str("appointment_id", a.ID.String()).Msg("release skipped, slot already free")
		return nil
	}
	uow.OnRollback(ctx, "rebook slot", func(ctx context.Context) error {
		_, err := s.availability.SwapSlotBooked(ctx, av.ID, index, false, true)
		return err
	})
	return nil
}

// reserveSlot takes the slot back for an appointment leaving cancelled.
func (s *Service) reserveSlot(ctx context.Context, a *Appointment) error {
	av, err := s.availability.GetByID(ctx, a.AvailabilityID)
	if err != nil {
		return err
	}
	index := slotIndexByID(av, a.SlotID)
	if index < 0 {
		return ErrInvalidSlot
	}

	swapped, err := s.availability.SwapSlotBooked(ctx, av.ID, index, false, true)
	if err != nil {
		return err
	}
	if !swapped {
		return ErrBookingConflict
	}
	uow.OnRollback(ctx, "release slot", func(ctx context.Context) error {
		_, err := s.availability.SwapSlotBooked(ctx, av.ID, index, true, false)
		return err
	})
	return nil
}
