package mongodb

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hospital/portal/internal/platform/uow"
)

// Transactor runs units of work in multi-document transactions. Standalone
// servers reject transactions; after the first rejection the transactor
// switches to compensating mode for the life of the process.
type Transactor struct {
	client      *mongo.Client
	logger      zerolog.Logger
	unsupported atomic.Bool
}

func NewTransactor(client *mongo.Client, logger zerolog.Logger) *Transactor {
	return &Transactor{client: client, logger: logger}
}

// Transactional reports whether the last attempt ran inside a transaction.
func (t *Transactor) Transactional() bool {
	return !t.unsupported.Load()
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	if t.unsupported.Load() {
		return uow.Compensating(ctx, fn)
	}

	sess, err := t.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			t.disable(err)
			return uow.Compensating(ctx, fn)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		t.disable(err)
		return uow.Compensating(ctx, fn)
	}
	return err
}

func (t *Transactor) disable(cause error) {
	if t.unsupported.CompareAndSwap(false, true) {
		t.logger.Warn().Err(cause).Msg("mongo transactions not supported, using compensating writes")
	}
}

// IsNotSupported reports whether err means the deployment cannot run
// sessions or multi-document transactions (standalone server, old version).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 263: // IllegalOperation, OperationNotSupportedInTransaction
			return true
		}
	}

	// Standalone servers reject transaction numbers with this wording.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "transaction") && strings.Contains(msg, "replica set")
}
