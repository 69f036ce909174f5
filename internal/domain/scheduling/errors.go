package scheduling

import (
	"net/http"

	"github.com/hospital/portal/internal/platform/apperr"
)

var (
	ErrAvailabilityNotFound = apperr.NotFound("Availability not found")
	ErrAppointmentNotFound  = apperr.NotFound("Appointment not found")
	ErrInvalidSlot          = apperr.Invalid("Invalid time slot")
	// ErrSlotAlreadyBooked is a conflict that clients have always received as 400.
	ErrSlotAlreadyBooked = apperr.WithStatus(apperr.KindConflict, http.StatusBadRequest, "This slot is already booked")
	// ErrBookingConflict means another request claimed the slot first.
	ErrBookingConflict   = apperr.Conflict("slot was claimed by another booking, please choose again")
	ErrSlotBusy          = apperr.Conflict("slot is being updated, please retry")
	ErrStatusRequired    = apperr.Invalid("Status is required")
	ErrInvalidStatus     = apperr.Invalid("Invalid status")
	ErrInvalidTransition = apperr.Invalid("status transition not allowed")
	ErrForbidden         = apperr.Forbidden("not allowed to act on this resource")
)
