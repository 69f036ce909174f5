package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/portal/internal/platform/apperr"
	"github.com/hospital/portal/internal/platform/auth"
	"github.com/hospital/portal/internal/platform/sanitize"
)

type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
	logger zerolog.Logger
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// NormalizeEmail folds an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	name := sanitize.Text(req.Name)
	email := NormalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" || req.Role == "" {
		return nil, apperr.Invalid("name, email, password and role are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Invalid("invalid email address")
	}
	if len(req.Password) < minPasswordLen {
		return nil, apperr.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(req.Password) > maxPasswordLen {
		return nil, apperr.Invalid(fmt.Sprintf("password must be at most %d bytes", maxPasswordLen))
	}
	if !req.Role.Valid() {
		return nil, apperr.Invalid("role must be patient or doctor")
	}

	u := &User{Name: name, Email: email, Role: req.Role}
	if req.Role == RoleDoctor {
		if req.Specialization != nil {
			spec := sanitize.Text(*req.Specialization)
			u.Specialization = &spec
		}
		if req.Experience != nil {
			if *req.Experience < 0 {
				return nil, apperr.Invalid("experience must not be negative")
			}
			exp := *req.Experience
			u.Experience = &exp
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Unexpected(fmt.Errorf("hash password: %w", err))
	}
	u.PasswordHash = hash

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, apperr.Unexpected(err)
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

// Login checks the password and mints a session token. Unknown email and wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Invalid("Email and password are required.")
	}
	if len(password) > maxPasswordLen {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Unexpected(err)
	}

	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, apperr.Unexpected(fmt.Errorf("check password: %w", err))
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.ID.String(), string(u.Role))
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Logout revokes the session's token so later requests carrying it fail.
func (s *Service) Logout(ctx context.Context, sess auth.Session) error {
	if err := s.tokens.Revoke(ctx, sess); err != nil {
		return apperr.Unexpected(err)
	}
	s.logger.Info().Str("user_id", sess.UserID).Msg("user logged out")
	return nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, apperr.Unexpected(err)
	}
	return u, err
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*User, int, error) {
	users, total, err := s.users.ListByRole(ctx, RoleDoctor, limit, offset)
	if err != nil {
		return nil, 0, apperr.Unexpected(err)
	}
	return users, total, nil
}

// AllDoctors returns every registered doctor ordered by name.
func (s *Service) AllDoctors(ctx context.Context) ([]*User, error) {
	users, _, err := s.users.ListByRole(ctx, RoleDoctor, 0, 0)
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	return users, nil
}

// Lookup returns the users with the given ids keyed by id. Unknown ids are
// absent from the map.
func (s *Service) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	users, err := s.users.ListByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	out := make(map[uuid.UUID]*User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
