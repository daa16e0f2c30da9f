package llm

import (
	"context"

	"go.uber.org/zap"
)

// Attempt runs fn and returns its result, or fallback if fn fails or panics.
// It never propagates an error; the failure is logged under op.
func Attempt[T any](ctx context.Context, logger *zap.Logger, op string, fallback T, fn func(context.Context) (T, error)) (result T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("recovered panic, using fallback",
				zap.String("op", op),
				zap.Any("panic", r))
			result = fallback
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		logger.Warn("operation failed, using fallback",
			zap.String("op", op),
			zap.Error(err))
		return fallback
	}
	return v
}
