// Package degraded decides, per read, whether the caller gets live LMS data or
// the simulated placeholder set, and tags the answer with its provenance.
package degraded

import (
	"context"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

// ReasonOffline is the Result reason when the explicit offline flag was set.
const ReasonOffline = "offline"

// FallbackRecorder receives one event per simulated answer.
type FallbackRecorder interface {
	RecordFallback(operation, reason string)
}

// Policy carries the logging and metrics hooks shared by every Resolve call.
type Policy struct {
	logger   *zap.Logger
	recorder FallbackRecorder
}

// NewPolicy builds a Policy. Both arguments are optional.
func NewPolicy(logger *zap.Logger, recorder FallbackRecorder) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{logger: logger, recorder: recorder}
}

// Result is a value plus where it came from.
type Result[T any] struct {
	Value     T
	Simulated bool
	Reason    string
}

// Resolve returns simulated data when offline is set or when live fails with a
// transport error. Any other live error is returned unchanged, and an empty live
// answer is still a live answer.
func Resolve[T any](ctx context.Context, p *Policy, operation string, offline bool, live func(context.Context) (T, error), simulated func() T) (Result[T], error) {
	if p == nil {
		p = NewPolicy(nil, nil)
	}
	if offline {
		p.fallback(operation, nil)
		return Result[T]{Value: simulated(), Simulated: true, Reason: ReasonOffline}, nil
	}

	value, err := live(ctx)
	if err == nil {
		return Result[T]{Value: value}, nil
	}
	if !errors.Is(err, appErrors.ErrTransportUnavailable) {
		var zero T
		return Result[T]{Value: zero}, err
	}

	p.fallback(operation, err)
	return Result[T]{Value: simulated(), Simulated: true, Reason: err.Error()}, nil
}

func (p *Policy) fallback(operation string, err error) {
	if err != nil {
		p.logger.Warn("lms unavailable, serving simulated data",
			zap.String("operation", operation),
			zap.Error(err),
		)
	} else {
		p.logger.Debug("offline mode, serving simulated data", zap.String("operation", operation))
	}
	if p.recorder != nil {
		label := ReasonOffline
		if err != nil {
			label = "transport"
		}
		p.recorder.RecordFallback(operation, label)
	}
}
