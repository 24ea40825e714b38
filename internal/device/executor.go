package device

import (
	"context"
	"time"

	"go.uber.org/zap"

	"smartcastbridge/internal/clock"
)

// Verification schedules. Power-on waits long before the first read because
// TVs are slow to wake; power-off confirms quickly or not at all.
var (
	powerOnVerifyDelays  = []time.Duration{5 * time.Second, 3 * time.Second}
	powerOffVerifyDelays = []time.Duration{time.Second, time.Second, time.Second}
)

// interAttemptDelay separates attempts whose send step itself failed.
const interAttemptDelay = time.Second

// Outcome is the terminal state of one power command execution.
type Outcome int

const (
	// OutcomeConfirmed means a verification read observed the target state.
	OutcomeConfirmed Outcome = iota
	// OutcomeOptimistic means every attempt was spent without confirmation;
	// the caller settles its visible state to the target anyway, treating
	// the missing confirmation as a reporting gap rather than failure.
	OutcomeOptimistic
)

func (o Outcome) String() string {
	if o == OutcomeConfirmed {
		return "confirmed"
	}
	return "optimistic"
}

// Executor wraps power commands in bounded retries with delayed
// verification. The hardware offers no confirmation channel, so each attempt
// is send, settle, re-read; exhausting attempts never surfaces an error,
// only OutcomeOptimistic. verify is the direct client's power-state read.
type Executor struct {
	verify func(context.Context) (bool, error)
	clock  clock.Clock
	logger *zap.Logger
}

// NewExecutor creates an executor verifying through the given state read.
func NewExecutor(verify func(context.Context) (bool, error), clk clock.Clock, logger *zap.Logger) *Executor {
	return &Executor{
		verify: verify,
		clock:  clk,
		logger: logger.Named("executor"),
	}
}

// TurnOn drives the device toward ON: up to two attempts, verification 5s
// after the first and 3s after the second.
func (e *Executor) TurnOn(ctx context.Context, send func(context.Context) error) Outcome {
	return e.run(ctx, send, true, powerOnVerifyDelays)
}

// TurnOff drives the device toward OFF: up to three attempts, verification
// 1s after each.
func (e *Executor) TurnOff(ctx context.Context, send func(context.Context) error) Outcome {
	return e.run(ctx, send, false, powerOffVerifyDelays)
}

func (e *Executor) run(ctx context.Context, send func(context.Context) error, target bool, delays []time.Duration) Outcome {
	for i, delay := range delays {
		attempt := i + 1

		if err := send(ctx); err != nil {
			// A failed send still consumes the attempt; the device may have
			// acted on a command whose response was lost.
			e.logger.Warn("power command send failed",
				zap.Bool("target_on", target),
				zap.Int("attempt", attempt),
				zap.Error(err))
			e.clock.Sleep(interAttemptDelay)
			continue
		}

		e.clock.Sleep(delay)

		on, err := e.verify(ctx)
		if err == nil && on == target {
			e.logger.Debug("power state confirmed",
				zap.Bool("target_on", target),
				zap.Int("attempt", attempt))
			return OutcomeConfirmed
		}
		e.logger.Debug("power state not yet confirmed",
			zap.Bool("target_on", target),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	e.logger.Info("power command settled optimistically",
		zap.Bool("target_on", target),
		zap.Int("attempts", len(delays)))
	return OutcomeOptimistic
}
