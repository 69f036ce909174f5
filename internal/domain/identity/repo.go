package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists users. Create returns ErrEmailTaken on a duplicate
// email; lookups return ErrUserNotFound. ListByRole returns every match when
// limit is zero.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error)
	ListByRole(ctx context.Context, role Role, limit, offset int) ([]*User, int, error)
}
