package device

import (
	"context"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/smartcast"
)

// Transport is the operation set both control surfaces implement. The
// direct protocol client and the library wrapper satisfy it structurally;
// the core never knows which one it is holding.
type Transport interface {
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
}

// MediaTransport is the playback-control surface, which only the library
// transport offers. Playback commands are fire-and-forget; neither transport
// can read playback state back.
type MediaTransport interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
}

// AppTransport is the app surface, which only the library transport offers.
type AppTransport interface {
	CurrentApp(ctx context.Context) (*apps.Config, error)
	LaunchApp(ctx context.Context, cfg apps.Config) error
}

// StatePublisher is the slice of the platform client the entity needs.
type StatePublisher interface {
	PublishState(entityID, state string, attrs map[string]any) error
	UpdateDeviceRegistry(uniqueID, model, swVersion string) error
}
