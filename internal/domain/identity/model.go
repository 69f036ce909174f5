package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/portal/internal/platform/apperr"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// User is a registered patient or doctor. Users are not edited after
// registration.
type User struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	Specialization *string   `json:"specialization,omitempty"`
	Experience     *int      `json:"experience,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type RegisterRequest struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	Role           Role    `json:"role"`
	Specialization *string `json:"specialization"`
	Experience     *int    `json:"experience"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

const (
	minPasswordLen = 6
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordLen = 72
)

var (
	ErrUserNotFound = apperr.NotFound("user not found")
	// ErrEmailTaken and ErrInvalidCredentials keep the 400 status existing
	// clients expect.
	ErrEmailTaken         = apperr.WithStatus(apperr.KindConflict, 400, "Email already registered")
	ErrInvalidCredentials = apperr.WithStatus(apperr.KindUnauthorized, 400, "Invalid email or password.")
)
