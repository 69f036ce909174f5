package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func parseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode %s %q: %w", field, s, err)
	}
	return id, nil
}

// -- Availability --

type slotDoc struct {
	ID       string `bson:"id"`
	Start    string `bson:"start"`
	End      string `bson:"end"`
	IsBooked bool   `bson:"is_booked"`
}

type availabilityDoc struct {
	ID        string    `bson:"_id"`
	DoctorID  string    `bson:"doctor_id"`
	Date      string    `bson:"date"`
	TimeSlots []slotDoc `bson:"time_slots"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toAvailabilityDoc(a *Availability) availabilityDoc {
	slots := make([]slotDoc, len(a.TimeSlots))
	for i, s := range a.TimeSlots {
		slots[i] = slotDoc{ID: s.ID.String(), Start: s.Start, End: s.End, IsBooked: s.IsBooked}
	}
	return availabilityDoc{
		ID:        a.ID.String(),
		DoctorID:  a.DoctorID.String(),
		Date:      a.Date,
		TimeSlots: slots,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (d availabilityDoc) toAvailability() (*Availability, error) {
	id, err := parseUUID("availability id", d.ID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseUUID("doctor id", d.DoctorID)
	if err != nil {
		return nil, err
	}
	a := &Availability{
		ID:        id,
		DoctorID:  doctorID,
		Date:      d.Date,
		TimeSlots: make([]TimeSlot, len(d.TimeSlots)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for i, s := range d.TimeSlots {
		slotID, err := parseUUID("slot id", s.ID)
		if err != nil {
			return nil, err
		}
		a.TimeSlots[i] = TimeSlot{ID: slotID, Start: s.Start, End: s.End, IsBooked: s.IsBooked}
	}
	return a, nil
}

// MongoAvailabilityRepo keeps slots embedded in their availability document,
// so a slot flag flip is a single-document conditional update.
type MongoAvailabilityRepo struct{ c *mongo.Collection }

func NewAvailabilityRepoMongo(db *mongo.Database) *MongoAvailabilityRepo {
	return &MongoAvailabilityRepo{c: db.Collection("availability")}
}

func (r *MongoAvailabilityRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("availability_doctor_created_idx"),
	})
	if err != nil {
		return fmt.Errorf("create availability indexes: %w", err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	now := mongoNow()
	a.CreatedAt, a.UpdatedAt = now, now
	for i := range a.TimeSlots {
		if a.TimeSlots[i].ID == uuid.Nil {
			a.TimeSlots[i].ID = uuid.New()
		}
	}
	if _, err := r.c.InsertOne(ctx, toAvailabilityDoc(a)); err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

func (r *MongoAvailabilityRepo) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	var d availabilityDoc
	err := r.c.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAvailabilityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find availability: %w", err)
	}
	return d.toAvailability()
}

func (r *MongoAvailabilityRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.c.Find(ctx, bson.M{"doctor_id": doctorID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Availability
	for cur.Next(ctx) {
		var d availabilityDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}
		a, err := d.toAvailability()
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return items, nil
}

func slotField(index int, name string) string {
	return "time_slots." + strconv.Itoa(index) + "." + name
}

func (r *MongoAvailabilityRepo) SetSlotBooked(ctx context.Context, id uuid.UUID, index int, booked bool) error {
	if index < 0 {
		return r.missing(ctx, id)
	}
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": id.String(), slotField(index, "id"): bson.M{"$exists": true}},
		bson.M{"$set": bson.M{slotField(index, "is_booked"): booked, "updated_at": mongoNow()}})
	if err != nil {
		return fmt.Errorf("set slot booked: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missing(ctx, id)
	}
	return nil
}

func (r *MongoAvailabilityRepo) SwapSlotBooked(ctx context.Context, id uuid.UUID, index int, from, to bool) (bool, error) {
	if index < 0 {
		return false, r.missing(ctx, id)
	}
	res, err := r.c.UpdateOne(ctx,
		bson.M{"_id": id.String(), slotField(index, "is_booked"): from},
		bson.M{"$set": bson.M{slotField(index, "is_booked"): to, "updated_at": mongoNow()}})
	if err != nil {
		return false, fmt.Errorf("swap slot booked: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.c.CountDocuments(ctx, bson.M{"_id": id.String(), slotField(index, "id"): bson.M{"$exists": true}})
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	if n == 0 {
		return false, r.missing(ctx, id)
	}
	return false, nil
}

func (r *MongoAvailabilityRepo) missing(ctx context.Context, id uuid.UUID) error {
	n, err := r.c.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if n == 0 {
		return ErrAvailabilityNotFound
	}
	return ErrInvalidSlot
}

// -- Appointment --

type appointmentDoc struct {
	ID             string    `bson:"_id"`
	DoctorID       string    `bson:"doctor_id"`
	PatientID      string    `bson:"patient_id"`
	AvailabilityID string    `bson:"availability_id"`
	SlotIndex      int       `bson:"slot_index"`
	SlotID         string    `bson:"slot_id"`
	Date           string    `bson:"date"`
	StartTime      string    `bson:"start_time"`
	EndTime        string    `bson:"end_time"`
	Status         string    `bson:"status"`
	Active         bool      `bson:"active"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toAppointmentDoc(a *Appointment) appointmentDoc {
	return appointmentDoc{
		ID:             a.ID.String(),
		DoctorID:       a.DoctorID.String(),
		PatientID:      a.PatientID.String(),
		AvailabilityID: a.AvailabilityID.String(),
		SlotIndex:      a.SlotIndex,
		SlotID:         a.SlotID.String(),
		Date:           a.Date,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		Active:         a.Status.Active(),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (d appointmentDoc) toAppointment() (*Appointment, error) {
	ids := make([]uuid.UUID, 5)
	for i, f := range []struct{ name, raw string }{
		{"appointment id", d.ID},
		{"doctor id", d.DoctorID},
		{"patient id", d.PatientID},
		{"availability id", d.AvailabilityID},
		{"slot id", d.SlotID},
	} {
		id, err := parseUUID(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return &Appointment{
		ID:             ids[0],
		DoctorID:       ids[1],
		PatientID:      ids[2],
		AvailabilityID: ids[3],
		SlotIndex:      d.SlotIndex,
		SlotID:         ids[4],
		Date:           d.Date,
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		Status:         Status(d.Status),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

// MongoAppointmentRepo stores an `active` flag so a partial unique index can
// allow one non-cancelled appointment per slot.
type MongoAppointmentRepo struct{ c *mongo.Collection }

func NewAppointmentRepoMongo(db *mongo.Database) *MongoAppointmentRepo {
	return &MongoAppointmentRepo{c: db.Collection("appointments")}
}

func (r *MongoAppointmentRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "availability_id", Value: 1}, {Key: "slot_index", Value: 1}},
			Options: options.Index().SetName(activeSlotIndex).SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("appointment_doctor_idx")},
		{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("appointment_patient_idx")},
	})
	if err != nil {
		return fmt.Errorf("create appointment indexes: %w", err)
	}
	return nil
}

func (r *MongoAppointmentRepo) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := mongoNow()
	a.CreatedAt, a.UpdatedAt = now, now
	if _, err := r.c.InsertOne(ctx, toAppointmentDoc(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrBookingConflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *MongoAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var d appointmentDoc
	err := r.c.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return d.toAppointment()
}

func (r *MongoAppointmentRepo) UpdateStatus(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = mongoNow()
	res, err := r.c.UpdateOne(ctx, bson.M{"_id": a.ID.String()}, bson.M{"$set": bson.M{
		"status":     string(a.Status),
		"active":     a.Status.Active(),
		"updated_at": a.UpdatedAt,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrBookingConflict
		}
		return fmt.Errorf("update appointment status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *MongoAppointmentRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, bson.M{"doctor_id": doctorID.String()})
}

func (r *MongoAppointmentRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, bson.M{"patient_id": patientID.String()})
}

func (r *MongoAppointmentRepo) list(ctx context.Context, filter bson.M) ([]*Appointment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Appointment
	for cur.Next(ctx) {
		var d appointmentDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode appointment: %w", err)
		}
		a, err := d.toAppointment()
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return items, nil
}
