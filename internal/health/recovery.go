package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// ValidateFunc attempts recovery. Returns nil once recovered.
type ValidateFunc func(ctx context.Context) error

// RunRecovery calls validate after each Fibonacci delay (initial, 2x, 3x, 5x, ...)
// up to max. It stops when validate returns nil. After the final failed attempt
// it calls onExhausted.
func RunRecovery(ctx context.Context, validate ValidateFunc, initial, max time.Duration, onExhausted func()) {
	if initial <= 0 || max < initial {
		return
	}
	delays := fibDelays(initial, max)
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := validate(attemptCtx)
		cancel()
		if err == nil {
			return
		}
		if i == len(delays)-1 && onExhausted != nil {
			onExhausted()
		}
	}
}

func fibDelays(initial, max time.Duration) []time.Duration {
	var out []time.Duration
	a, b := int64(1), int64(2)
	for {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
		a, b = b, a+b
	}
	return out
}

// BundleSetter receives a reloaded model bundle.
type BundleSetter interface {
	SetBundle(*cropmodel.Bundle)
}

// ModelReloader returns a ValidateFunc that reloads the model bundle from path
// and installs it on target once it loads cleanly.
func ModelReloader(path string, target BundleSetter, logger *zap.Logger) ValidateFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		b := cropmodel.Load(path, logger)
		if b.Health() != cropmodel.HealthLoaded {
			return errors.New(b.Reason())
		}
		target.SetBundle(b)
		observability.SetModelLoaded(true)
		logger.Info("crop model reloaded", zap.String("version", b.Metadata().Version))
		return nil
	}
}
