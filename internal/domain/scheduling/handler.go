package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/portal/internal/platform/apperr"
	"github.com/hospital/portal/internal/platform/auth"
)

const (
	roleDoctor  = "doctor"
	rolePatient = "patient"
)

type Handler struct {
	svc     *Service
	enforce bool
}

// NewHandler builds the HTTP layer. With enforce set every route except the
// public availability listing requires a session, and ownership rules apply.
func NewHandler(svc *Service, enforce bool) *Handler {
	return &Handler{svc: svc, enforce: enforce}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	appts := api.Group("/appointments")
	appts.POST("/book", h.Book)
	appts.GET("/doctor/:doctorId", h.ListForDoctor)
	appts.GET("/patient/:patientId", h.ListForPatient)
	appts.GET("/:appointmentId", h.Get)
	appts.PATCH("/:appointmentId/status", h.ChangeStatus)

	avail := api.Group("/availability")
	if h.enforce {
		avail.POST("/add", h.Publish, auth.RequireRole(roleDoctor))
	} else {
		avail.POST("/add", h.Publish)
	}
	avail.GET("/:doctorId", h.ListAvailability)
}

// pathID parses a uuid path parameter. Malformed ids resolve to uuid.Nil,
// which matches no record.
func pathID(c echo.Context, name string) uuid.UUID {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// authorize is a no-op unless enforcement is on. allowed reports whether the
// session may proceed.
func (h *Handler) authorize(c echo.Context, allowed func(s auth.Session) bool) error {
	if !h.enforce {
		return nil
	}
	s, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if !allowed(s) {
		return apperr.ToHTTP(ErrForbidden)
	}
	return nil
}

func isUser(s auth.Session, id uuid.UUID) bool {
	return id != uuid.Nil && s.UserID == id.String()
}

func (h *Handler) Publish(c echo.Context) error {
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.authorize(c, func(s auth.Session) bool {
		return s.Role == roleDoctor && isUser(s, req.DoctorID)
	}); err != nil {
		return err
	}
	a, err := h.svc.Publish(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Availability added",
		"availability": a,
	})
}

func (h *Handler) ListAvailability(c echo.Context) error {
	items, err := h.svc.ListAvailability(c.Request().Context(), pathID(c, "doctorId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Availability{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.authorize(c, func(s auth.Session) bool {
		return isUser(s, req.PatientID) || isUser(s, req.DoctorID)
	}); err != nil {
		return err
	}
	a, err := h.svc.BookSlot(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Appointment booked successfully",
		"appointment": a,
	})
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	doctorID := pathID(c, "doctorId")
	if err := h.authorize(c, func(s auth.Session) bool { return isUser(s, doctorID) }); err != nil {
		return err
	}
	views, err := h.svc.ListForDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID := pathID(c, "patientId")
	if err := h.authorize(c, func(s auth.Session) bool { return isUser(s, patientID) }); err != nil {
		return err
	}
	views, err := h.svc.ListForPatient(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.svc.GetAppointment(c.Request().Context(), pathID(c, "appointmentId"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if err := h.authorize(c, func(s auth.Session) bool {
		return isUser(s, a.PatientID) || isUser(s, a.DoctorID)
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	id := pathID(c, "appointmentId")

	if h.enforce {
		if _, ok := auth.SessionFromContext(ctx); !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		next, err := ParseStatus(req.Status)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		current, err := h.svc.GetAppointment(ctx, id)
		if err != nil {
			return apperr.ToHTTP(err)
		}
		if err := h.authorize(c, func(s auth.Session) bool {
			switch s.Role {
			case roleDoctor:
				return isUser(s, current.DoctorID)
			case rolePatient:
				return isUser(s, current.PatientID) && next == StatusCancelled
			}
			return false
		}); err != nil {
			return err
		}
	}

	a, err := h.svc.ChangeStatus(ctx, id, req.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Appointment status updated",
		"appointment": a,
	})
}
