package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/portal/internal/platform/db"
)

// activeSlotIndex is the partial unique index allowing one non-cancelled
// appointment per slot.
const activeSlotIndex = "appointment_active_slot_idx"

// -- Availability --

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const availabilityCols = `id, doctor_id, date::text, created_at, updated_at`

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO availability (id, doctor_id, date, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5)`,
		a.ID, a.DoctorID, a.Date, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	for i := range a.TimeSlots {
		s := &a.TimeSlots[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		_, err := q.Exec(ctx, `
			INSERT INTO availability_slot (availability_id, slot_index, id, start_time, end_time, is_booked)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, i, s.ID, s.Start, s.End, s.IsBooked)
		if err != nil {
			return fmt.Errorf("insert availability slot %d: %w", i, err)
		}
	}
	return nil
}

func (r *availabilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	var a Availability
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+availabilityCols+` FROM availability WHERE id = $1`, id).
		Scan(&a.ID, &a.DoctorID, &a.Date, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAvailabilityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	slots, err := r.slots(ctx, []uuid.UUID{a.ID})
	if err != nil {
		return nil, err
	}
	a.TimeSlots = slots[a.ID]
	return &a, nil
}

func (r *availabilityRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+availabilityCols+` FROM availability WHERE doctor_id = $1 ORDER BY created_at, id`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	var items []*Availability
	var ids []uuid.UUID
	for rows.Next() {
		var a Availability
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.Date, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		items = append(items, &a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return items, nil
	}
	slots, err := r.slots(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range items {
		a.TimeSlots = slots[a.ID]
	}
	return items, nil
}

func (r *availabilityRepoPG) slots(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]TimeSlot, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT availability_id, id, start_time, end_time, is_booked
		FROM availability_slot
		WHERE availability_id = ANY($1::uuid[])
		ORDER BY availability_id, slot_index`, strIDs)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]TimeSlot, len(ids))
	for rows.Next() {
		var owner uuid.UUID
		var s TimeSlot
		if err := rows.Scan(&owner, &s.ID, &s.Start, &s.End, &s.IsBooked); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out[owner] = append(out[owner], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return out, nil
}

func (r *availabilityRepoPG) SetSlotBooked(ctx context.Context, id uuid.UUID, index int, booked bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slot SET is_booked = $3
		WHERE availability_id = $1 AND slot_index = $2`, id, index, booked)
	if err != nil {
		return fmt.Errorf("set slot booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missing(ctx, id)
	}
	return r.touch(ctx, id)
}

func (r *availabilityRepoPG) SwapSlotBooked(ctx context.Context, id uuid.UUID, index int, from, to bool) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slot SET is_booked = $4
		WHERE availability_id = $1 AND slot_index = $2 AND is_booked = $3`, id, index, from, to)
	if err != nil {
		return false, fmt.Errorf("swap slot booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM availability_slot WHERE availability_id = $1 AND slot_index = $2)`,
			id, index).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("check slot: %w", err)
		}
		if !exists {
			return false, r.missing(ctx, id)
		}
		return false, nil
	}
	return true, r.touch(ctx, id)
}

// missing resolves a zero-row slot update to the right sentinel.
func (r *availabilityRepoPG) missing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM availability WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if !exists {
		return ErrAvailabilityNotFound
	}
	return ErrInvalidSlot
}

func (r *availabilityRepoPG) touch(ctx context.Context, id uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `UPDATE availability SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch availability: %w", err)
	}
	return nil
}

// -- Appointment --

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentCols = `id, doctor_id, patient_id, availability_id, slot_index, slot_id, date::text,
	start_time, end_time, status, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.AvailabilityID, &a.SlotIndex, &a.SlotID, &a.Date,
		&a.StartTime, &a.EndTime, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, availability_id, slot_index, slot_id, date,
			start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $12)`,
		a.ID, a.DoctorID, a.PatientID, a.AvailabilityID, a.SlotIndex, a.SlotID, a.Date,
		a.StartTime, a.EndTime, a.Status, a.CreatedAt, a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return ErrBookingConflict
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE appointment SET status = $2, updated_at = $3 WHERE id = $1`,
		a.ID, a.Status, a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return ErrBookingConflict
	}
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `WHERE doctor_id = $1`, doctorID)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `WHERE patient_id = $1`, patientID)
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, arg uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+appointmentCols+` FROM appointment `+where+` ORDER BY created_at DESC, id DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return items, nil
}
