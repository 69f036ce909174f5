package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/portal/internal/platform/apperr"
	"github.com/hospital/portal/internal/platform/lock"
	"github.com/hospital/portal/internal/platform/uow"
)

// Service owns the availability ledger, the booking coordinator and the
// appointment registry. Writes that touch a slot run under that slot's lock
// and inside one unit of work.
type Service struct {
	availability AvailabilityRepository
	appointments AppointmentRepository
	tx           uow.Transactor
	locks        lock.Locker
	directory    Directory
	strict       bool
	now          func() time.Time
	logger       zerolog.Logger
}

type Option func(*Service)

// WithStrictTransitions enforces the forward-only status lattice.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithDirectory enables the patient/doctor join on appointment lists.
func WithDirectory(d Directory) Option {
	return func(s *Service) { s.directory = d }
}

func NewService(availability AvailabilityRepository, appointments AppointmentRepository,
	tx uow.Transactor, locks lock.Locker, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		availability: availability,
		appointments: appointments,
		tx:           tx,
		locks:        locks,
		now:          time.Now,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func slotKey(availabilityID uuid.UUID, index int) string {
	return fmt.Sprintf("slot:%s:%d", availabilityID, index)
}

func (s *Service) lockSlot(ctx context.Context, availabilityID uuid.UUID, index int) (func(), error) {
	release, err := s.locks.Acquire(ctx, slotKey(availabilityID, index))
	if errors.Is(err, lock.ErrTimeout) {
		return nil, ErrSlotBusy
	}
	if err != nil {
		return nil, apperr.Unexpected(fmt.Errorf("acquire slot lock: %w", err))
	}
	return release, nil
}
