package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"smartcastbridge/internal/clock"
)

func newTestExecutor(verify func(context.Context) (bool, error)) (*Executor, *clock.MockClock) {
	clk := clock.NewMockClock(time.Now())
	return NewExecutor(verify, clk, zap.NewNop()), clk
}

func TestTurnOnConfirmedFirstAttempt(t *testing.T) {
	sends := 0
	e, clk := newTestExecutor(func(context.Context) (bool, error) { return true, nil })

	out := e.TurnOn(context.Background(), func(context.Context) error {
		sends++
		return nil
	})

	assert.Equal(t, OutcomeConfirmed, out)
	assert.Equal(t, 1, sends)
	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())
}

func TestTurnOnNeverConfirmsSettlesOptimistically(t *testing.T) {
	sends := 0
	e, clk := newTestExecutor(func(context.Context) (bool, error) { return false, nil })

	out := e.TurnOn(context.Background(), func(context.Context) error {
		sends++
		return nil
	})

	// Exactly the configured two attempts, not more, not fewer.
	assert.Equal(t, OutcomeOptimistic, out)
	assert.Equal(t, 2, sends)
	assert.Equal(t, []time.Duration{5 * time.Second, 3 * time.Second}, clk.Sleeps())
}

func TestTurnOffConfirmedSecondAttempt(t *testing.T) {
	sends := 0
	e, clk := newTestExecutor(func(context.Context) (bool, error) {
		// Still on after the first attempt, off after the second.
		return sends < 2, nil
	})

	out := e.TurnOff(context.Background(), func(context.Context) error {
		sends++
		return nil
	})

	assert.Equal(t, OutcomeConfirmed, out)
	assert.Equal(t, 2, sends)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clk.Sleeps())
}

func TestTurnOffExhaustsThreeAttempts(t *testing.T) {
	sends := 0
	e, _ := newTestExecutor(func(context.Context) (bool, error) { return true, nil })

	out := e.TurnOff(context.Background(), func(context.Context) error {
		sends++
		return nil
	})

	assert.Equal(t, OutcomeOptimistic, out)
	assert.Equal(t, 3, sends)
}

func TestSendErrorConsumesAttempt(t *testing.T) {
	sends := 0
	verifies := 0
	e, clk := newTestExecutor(func(context.Context) (bool, error) {
		verifies++
		return false, nil
	})

	out := e.TurnOn(context.Background(), func(context.Context) error {
		sends++
		return errors.New("connection refused")
	})

	// Failed sends skip verification but still burn the attempt and settle
	// optimistically; the device may have acted on a lost response.
	assert.Equal(t, OutcomeOptimistic, out)
	assert.Equal(t, 2, sends)
	assert.Equal(t, 0, verifies)
	assert.Equal(t, []time.Duration{interAttemptDelay, interAttemptDelay}, clk.Sleeps())
}

func TestVerifyErrorTreatedAsUnconfirmed(t *testing.T) {
	sends := 0
	e, _ := newTestExecutor(func(context.Context) (bool, error) {
		return false, errors.New("read timeout")
	})

	out := e.TurnOn(context.Background(), func(context.Context) error {
		sends++
		return nil
	})

	assert.Equal(t, OutcomeOptimistic, out)
	assert.Equal(t, 2, sends)
}
