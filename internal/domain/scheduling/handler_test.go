package scheduling

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/portal/internal/platform/auth"
)

func newTestHandler(enforce bool) (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc, enforce), f, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withSession(req *http.Request, userID uuid.UUID, role string) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), auth.Session{UserID: userID.String(), Role: role}))
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func httpMessage(t *testing.T, err error) string {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return fmt.Sprint(he.Message)
}

func bookBody(a *Availability, index int, patientID uuid.UUID) string {
	return fmt.Sprintf(`{"availabilityId":%q,"slotIndex":%d,"doctorId":%q,"patientId":%q,"date":%q}`,
		a.ID, index, a.DoctorID, patientID, a.Date)
}

func TestHandler_Publish(t *testing.T) {
	h, _, e := newTestHandler(false)
	doctor := uuid.New()
	rec := httptest.NewRecorder()
	body := fmt.Sprintf(`{"doctorId":%q,"date":"2024-05-01","timeSlots":[{"start":"09:00","end":"09:30"}]}`, doctor)
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.Publish(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Message      string       `json:"message"`
		Availability Availability `json:"availability"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != "Availability added" || resp.Availability.DoctorID != doctor {
		t.Errorf("unexpected response %s", rec.Body.String())
	}
	if len(resp.Availability.TimeSlots) != 1 || resp.Availability.TimeSlots[0].IsBooked {
		t.Errorf("unexpected slots %+v", resp.Availability.TimeSlots)
	}
}

func TestHandler_Publish_Invalid(t *testing.T) {
	h, _, e := newTestHandler(false)
	err := h.Publish(e.NewContext(jsonRequest(http.MethodPost, `{"date":"2024-05-01","timeSlots":[]}`), httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ListAvailability(t *testing.T) {
	h, f, e := newTestHandler(false)
	doctor := uuid.New()
	f.publish(t, doctor)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("doctorId")
	c.SetParamValues(doctor.String())
	if err := h.ListAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Availability
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 {
		t.Errorf("expected 1 record, got %d", len(items))
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("doctorId")
	c.SetParamValues("not-a-uuid")
	h.ListAvailability(c)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_Book(t *testing.T) {
	h, f, e := newTestHandler(false)
	a := f.publish(t, uuid.New())
	patient := uuid.New()

	rec := httptest.NewRecorder()
	if err := h.Book(e.NewContext(jsonRequest(http.MethodPost, bookBody(a, 0, patient)), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Message     string      `json:"message"`
		Appointment Appointment `json:"appointment"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != "Appointment booked successfully" || resp.Appointment.Status != StatusPending {
		t.Errorf("unexpected response %s", rec.Body.String())
	}

	err := h.Book(e.NewContext(jsonRequest(http.MethodPost, bookBody(a, 0, patient)), httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a booked slot, got %d", code)
	}
	if msg := httpMessage(t, err); msg != "This slot is already booked" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestHandler_Book_Errors(t *testing.T) {
	h, f, e := newTestHandler(false)
	a := f.publish(t, uuid.New())

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"invalid slot", bookBody(a, 5, uuid.New()), http.StatusBadRequest, "Invalid time slot"},
		{"missing availability", bookBody(&Availability{ID: uuid.New(), DoctorID: a.DoctorID, Date: a.Date}, 0, uuid.New()),
			http.StatusNotFound, "Availability not found"},
		{"malformed body", `{"slotIndex":"zero"`, http.StatusBadRequest, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Book(e.NewContext(jsonRequest(http.MethodPost, tt.body), httptest.NewRecorder()))
			if code := httpCode(t, err); code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, code)
			}
			if msg := httpMessage(t, err); msg != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, msg)
			}
		})
	}
}

func TestHandler_ChangeStatus(t *testing.T) {
	h, f, e := newTestHandler(false)
	a := f.publish(t, uuid.New())
	appt := f.book(t, a, 0, uuid.New())

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, `{"status":"cancelled"}`), rec)
	c.SetParamNames("appointmentId")
	c.SetParamValues(appt.ID.String())
	if err := h.ChangeStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"Appointment status updated"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if f.avail.booked(t, a.ID, 0) {
		t.Error("expected slot freed")
	}
}

func TestHandler_ChangeStatus_Errors(t *testing.T) {
	h, _, e := newTestHandler(false)
	tests := []struct {
		name, id, body string
		code           int
		msg            string
	}{
		{"missing status", uuid.NewString(), `{}`, http.StatusBadRequest, "Status is required"},
		{"invalid status", uuid.NewString(), `{"status":"archived"}`, http.StatusBadRequest, "Invalid status"},
		{"unknown id", uuid.NewString(), `{"status":"confirmed"}`, http.StatusNotFound, "Appointment not found"},
		{"malformed id", "abc", `{"status":"confirmed"}`, http.StatusNotFound, "Appointment not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPatch, tt.body), httptest.NewRecorder())
			c.SetParamNames("appointmentId")
			c.SetParamValues(tt.id)
			err := h.ChangeStatus(c)
			if code := httpCode(t, err); code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, code)
			}
			if msg := httpMessage(t, err); msg != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, msg)
			}
		})
	}
}

func TestHandler_ListForPatient(t *testing.T) {
	h, f, e := newTestHandler(false)
	patient := uuid.New()
	f.book(t, f.publish(t, uuid.New()), 0, patient)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("patientId")
	c.SetParamValues(patient.String())
	if err := h.ListForPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Appointment
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].PatientID != patient {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Enforce_RequiresSession(t *testing.T) {
	h, f, e := newTestHandler(true)
	a := f.publish(t, uuid.New())

	err := h.Book(e.NewContext(jsonRequest(http.MethodPost, bookBody(a, 0, uuid.New())), httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}

func TestHandler_Enforce_Publish(t *testing.T) {
	h, _, e := newTestHandler(true)
	doctor := uuid.New()
	body := fmt.Sprintf(`{"doctorId":%q,"date":"2024-05-01","timeSlots":[{"start":"09:00","end":"09:30"}]}`, doctor)

	err := h.Publish(e.NewContext(withSession(jsonRequest(http.MethodPost, body), doctor, rolePatient), httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("patient publishing: expected 403, got %d", code)
	}
	err = h.Publish(e.NewContext(withSession(jsonRequest(http.MethodPost, body), uuid.New(), roleDoctor), httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("other doctor publishing: expected 403, got %d", code)
	}
	if err := h.Publish(e.NewContext(withSession(jsonRequest(http.MethodPost, body), doctor, roleDoctor), httptest.NewRecorder())); err != nil {
		t.Errorf("owner publishing: %v", err)
	}
}

func TestHandler_Enforce_Book(t *testing.T) {
	h, f, e := newTestHandler(true)
	a := f.publish(t, uuid.New())
	patient := uuid.New()

	err := h.Book(e.NewContext(withSession(jsonRequest(http.MethodPost, bookBody(a, 0, patient)), uuid.New(), rolePatient), httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusForbidden {
		t.Errorf("booking for someone else: expected 403, got %d", code)
	}
	if err := h.Book(e.NewContext(withSession(jsonRequest(http.MethodPost, bookBody(a, 0, patient)), patient, rolePatient), httptest.NewRecorder())); err != nil {
		t.Errorf("booking for self: %v", err)
	}
}

func TestHandler_Enforce_ChangeStatus(t *testing.T) {
	h, f, e := newTestHandler(true)
	a := f.publish(t, uuid.New())
	patient := uuid.New()
	appt := f.book(t, a, 0, patient)

	call := func(userID uuid.UUID, role, status string) error {
		c := e.NewContext(withSession(jsonRequest(http.MethodPatch, fmt.Sprintf(`{"status":%q}`, status)), userID, role), httptest.NewRecorder())
		c.SetParamNames("appointmentId")
		c.SetParamValues(appt.ID.String())
		return h.ChangeStatus(c)
	}

	if code := httpCode(t, call(patient, rolePatient, "confirmed")); code != http.StatusForbidden {
		t.Errorf("patient confirming: expected 403, got %d", code)
	}
	if code := httpCode(t, call(uuid.New(), roleDoctor, "confirmed")); code != http.StatusForbidden {
		t.Errorf("other doctor: expected 403, got %d", code)
	}
	if err := call(a.DoctorID, roleDoctor, "confirmed"); err != nil {
		t.Errorf("owning doctor confirming: %v", err)
	}
	if err := call(patient, rolePatient, "cancelled"); err != nil {
		t.Errorf("patient cancelling own appointment: %v", err)
	}
}

func TestHandler_Enforce_ListForDoctor(t *testing.T) {
	h, _, e := newTestHandler(true)
	doctor := uuid.New()

	c := e.NewContext(withSession(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), roleDoctor), httptest.NewRecorder())
	c.SetParamNames("doctorId")
	c.SetParamValues(doctor.String())
	if code := httpCode(t, h.ListForDoctor(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(withSession(httptest.NewRequest(http.MethodGet, "/", nil), doctor, roleDoctor), rec)
	c.SetParamNames("doctorId")
	c.SetParamValues(doctor.String())
	if err := h.ListForDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}
