package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetAppointment returns a single appointment.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// ListForDoctor returns the doctor's appointments, newest first, each joined
// with its patient.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentView, error) {
	appts, err := s.appointments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	parties, err := s.parties(ctx, appts, func(a *Appointment) uuid.UUID { return a.PatientID })
	if err != nil {
		return nil, err
	}
	views := make([]AppointmentView, len(appts))
	for i, a := range appts {
		views[i] = AppointmentView{Appointment: a, Patient: withoutSpecialization(parties[a.PatientID])}
	}
	return views, nil
}

// ListForPatient returns the patient's appointments, newest first, each
// joined with its doctor.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentView, error) {
	appts, err := s.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	parties, err := s.parties(ctx, appts, func(a *Appointment) uuid.UUID { return a.DoctorID })
	if err != nil {
		return nil, err
	}
	views := make([]AppointmentView, len(appts))
	for i, a := range appts {
		views[i] = AppointmentView{Appointment: a, Doctor: parties[a.DoctorID]}
	}
	return views, nil
}

func (s *Service) parties(ctx context.Context, appts []*Appointment, pick func(*Appointment) uuid.UUID) (map[uuid.UUID]*Party, error) {
	if s.directory == nil || len(appts) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(appts))
	seen := make(map[uuid.UUID]bool, len(appts))
	for _, a := range appts {
		id := pick(a)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	parties, err := s.directory.Parties(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve parties: %w", err)
	}
	return parties, nil
}

func withoutSpecialization(p *Party) *Party {
	if p == nil || p.Specialization == nil {
		return p
	}
	cp := *p
	cp.Specialization = nil
	return &cp
}
