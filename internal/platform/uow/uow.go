// Package uow groups repository writes into one unit of work. Stores with
// transactions roll back on failure; stores without them run recorded
// compensations instead.
package uow

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Transactor runs fn as a single unit of work. Repositories called with the
// context passed to fn take part in it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc adapts a function to Transactor.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TransactorFunc) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

type undoKey struct{}

type undoLog struct {
	mu    sync.Mutex
	steps []undoStep
}

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// OnRollback records undo to run if the enclosing Compensating unit fails.
// It is a no-op inside a real transaction or outside any unit of work.
func OnRollback(ctx context.Context, name string, undo func(ctx context.Context) error) {
	log, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	log.mu.Lock()
	log.steps = append(log.steps, undoStep{name: name, fn: undo})
	log.mu.Unlock()
}

// Compensating runs fn without a store transaction. When fn fails, recorded
// undo steps run in reverse order on a context that outlives cancellation of
// ctx. Undo failures are logged; fn's error is returned.
func Compensating(ctx context.Context, fn func(ctx context.Context) error) error {
	log := &undoLog{}
	err := fn(context.WithValue(ctx, undoKey{}, log))
	if err == nil {
		return nil
	}

	undoCtx := context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)
	log.mu.Lock()
	steps := log.steps
	log.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		if uerr := steps[i].fn(undoCtx); uerr != nil {
			logger.Error().Err(uerr).Str("step", steps[i].name).Msg("compensation failed")
			continue
		}
		logger.Warn().Str("step", steps[i].name).AnErr("cause", err).Msg("compensation applied")
	}
	return err
}

// Direct runs fn with no transaction and no compensation.
var Direct = TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})
