// Package library is the seam for the vendor-provided control SDK, the
// second of the two transports. The SDK is an external collaborator: this
// package declares the narrow interface the bridge needs, normalizes its
// failure modes, and degrades to an always-failing stub when no SDK binding
// is linked in, so capability detection simply marks every library operation
// broken and dispatch falls through to the direct protocol client.
package library

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/smartcast"
)

// ErrUnavailable indicates no SDK binding is linked into this build.
var ErrUnavailable = errors.New("library: no vendor SDK binding available")

// Client is the surface the bridge needs from the vendor SDK. App
// operations exist only on this transport; the wire protocol has no
// documented equivalent.
type Client interface {
	PowerState(ctx context.Context) (bool, error)
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error

	CurrentInput(ctx context.Context) (*smartcast.Input, error)
	InputList(ctx context.Context) ([]smartcast.Input, error)
	SetInput(ctx context.Context, name string) error

	VolumeUp(ctx context.Context, steps int) error
	VolumeDown(ctx context.Context, steps int) error
	SetMute(ctx context.Context, on bool) error
	AudioSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, settingType, name string, value any) error
	SettingOptions(ctx context.Context, settingType, name string) ([]string, error)

	DeviceInfo(ctx context.Context) (map[string]string, error)

	// Playback keys live on the SDK's remote-control surface; the wire
	// protocol exposes no playback state to verify them against, so they
	// are fire-and-forget.
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error

	CurrentApp(ctx context.Context) (*apps.Config, error)
	LaunchApp(ctx context.Context, cfg apps.Config) error
}

// Factory builds a concrete SDK client for one device. A build that links a
// real binding assigns this before any device session is created; when nil,
// New returns the unavailable stub.
var Factory func(host, authToken string, timeout time.Duration, logger *zap.Logger) (Client, error)

// New returns the library transport for a device: a Wrapper around the
// factory's client, or around the unavailable stub when no factory is set.
func New(host, authToken string, timeout time.Duration, logger *zap.Logger) (*Wrapper, error) {
	if Factory == nil {
		return NewWrapper(unavailable{}, logger), nil
	}
	c, err := Factory(host, authToken, timeout, logger)
	if err != nil {
		return nil, err
	}
	return NewWrapper(c, logger), nil
}

// unavailable is the stub client used when no SDK binding is linked. Every
// operation fails with ErrUnavailable.
type unavailable struct{}

func (unavailable) PowerState(context.Context) (bool, error) { return false, ErrUnavailable }
func (unavailable) PowerOn(context.Context) error            { return ErrUnavailable }
func (unavailable) PowerOff(context.Context) error           { return ErrUnavailable }
func (unavailable) CurrentInput(context.Context) (*smartcast.Input, error) {
	return nil, ErrUnavailable
}
func (unavailable) InputList(context.Context) ([]smartcast.Input, error) {
	return nil, ErrUnavailable
}
func (unavailable) SetInput(context.Context, string) error      { return ErrUnavailable }
func (unavailable) VolumeUp(context.Context, int) error         { return ErrUnavailable }
func (unavailable) VolumeDown(context.Context, int) error       { return ErrUnavailable }
func (unavailable) SetMute(context.Context, bool) error         { return ErrUnavailable }
func (unavailable) AudioSettings(context.Context) (map[string]string, error) {
	return nil, ErrUnavailable
}
func (unavailable) SetSetting(context.Context, string, string, any) error { return ErrUnavailable }
func (unavailable) SettingOptions(context.Context, string, string) ([]string, error) {
	return nil, ErrUnavailable
}
func (unavailable) DeviceInfo(context.Context) (map[string]string, error) {
	return nil, ErrUnavailable
}
func (unavailable) Play(context.Context) error          { return ErrUnavailable }
func (unavailable) Pause(context.Context) error         { return ErrUnavailable }
func (unavailable) NextTrack(context.Context) error     { return ErrUnavailable }
func (unavailable) PreviousTrack(context.Context) error { return ErrUnavailable }

func (unavailable) CurrentApp(context.Context) (*apps.Config, error) { return nil, ErrUnavailable }
func (unavailable) LaunchApp(context.Context, apps.Config) error     { return ErrUnavailable }

// Unavailable returns a wrapper around the always-failing stub. Exposed for
// tests exercising degraded dispatch.
func Unavailable(logger *zap.Logger) *Wrapper {
	return NewWrapper(unavailable{}, logger)
}
