package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"livex/internal/metrics"
	livex_errors "livex/pkg/errors"
	"livex/pkg/logger"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
)

// CircuitBreakerHook fails Redis commands fast while Redis is unavailable, so
// ingestion answers 500 immediately instead of queueing on dead connections.
// Errors returned while the breaker is open wrap ErrServiceUnavailable.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

func NewCircuitBreakerHook(l *logger.Logger) *CircuitBreakerHook {
	cb := circuitbreaker.Builder[any]().
		WithFailureThreshold(5).
		WithDelay(10 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			if l != nil {
				l.Warnf("redis circuit breaker %s -> %s", e.OldState, e.NewState)
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateToFloat(e.NewState))
		}).
		Build()
	return &CircuitBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, openError()
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return openError()
		}
		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return openError()
		}
		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// record counts only infrastructure failures. A missing key or a script
// error raised on purpose says nothing about Redis health.
func (h *CircuitBreakerHook) record(err error) {
	var redisErr goredis.Error
	switch {
	case err == nil, errors.Is(err, goredis.Nil), errors.As(err, &redisErr):
		h.cb.RecordSuccess()
	default:
		h.cb.RecordError(err)
	}
}

func openError() error {
	return fmt.Errorf("redis circuit breaker open: %w: %w", livex_errors.ErrServiceUnavailable, circuitbreaker.ErrOpen)
}
