package library

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/smartcast"
)

// panicClient embeds the stub and overrides a few operations to panic or
// return empty results, exercising the wrapper's normalization.
type panicClient struct {
	unavailable
}

func (panicClient) PowerState(context.Context) (bool, error) {
	panic("sdk internal failure")
}

func (panicClient) InputList(context.Context) ([]smartcast.Input, error) {
	return nil, nil
}

func (panicClient) CurrentInput(context.Context) (*smartcast.Input, error) {
	return &smartcast.Input{}, nil
}

func (panicClient) DeviceInfo(context.Context) (map[string]string, error) {
	return map[string]string{"model_name": "V505-J09"}, nil
}

func TestWrapperRecoversPanic(t *testing.T) {
	w := NewWrapper(panicClient{}, zap.NewNop())

	_, err := w.PowerState(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestWrapperNormalizesEmptyResults(t *testing.T) {
	w := NewWrapper(panicClient{}, zap.NewNop())

	_, err := w.InputList(context.Background())
	assert.ErrorIs(t, err, smartcast.ErrNoData)

	_, err = w.CurrentInput(context.Background())
	assert.ErrorIs(t, err, smartcast.ErrNoData)

	info, err := w.DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V505-J09", info["model_name"])
}

func TestUnavailableStub(t *testing.T) {
	w := Unavailable(zap.NewNop())
	ctx := context.Background()

	_, err := w.PowerState(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, w.PowerOn(ctx), ErrUnavailable)
	assert.ErrorIs(t, w.SetInput(ctx, "HDMI-1"), ErrUnavailable)
	assert.ErrorIs(t, w.Play(ctx), ErrUnavailable)
	assert.ErrorIs(t, w.PreviousTrack(ctx), ErrUnavailable)
	assert.ErrorIs(t, w.LaunchApp(ctx, apps.Config{AppID: "1"}), ErrUnavailable)
	_, err = w.CurrentApp(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewWithoutFactory(t *testing.T) {
	orig := Factory
	Factory = nil
	t.Cleanup(func() { Factory = orig })

	w, err := New("192.168.1.226", "token", 0, zap.NewNop())
	require.NoError(t, err)
	_, err = w.PowerState(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}
