package library

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/smartcast"
)

// Wrapper normalizes a Client's failure modes for the core: panics inside
// the SDK become errors, and empty results on reads become
// smartcast.ErrNoData, so capability probes and entity refreshes see the
// same error taxonomy from both transports.
type Wrapper struct {
	client Client
	logger *zap.Logger
}

// NewWrapper wraps an SDK client.
func NewWrapper(client Client, logger *zap.Logger) *Wrapper {
	return &Wrapper{client: client, logger: logger.Named("library")}
}

// guard recovers an SDK panic into an error on *errp.
func (w *Wrapper) guard(op string, errp *error) {
	if r := recover(); r != nil {
		w.logger.Warn("vendor SDK panicked", zap.String("op", op), zap.Any("panic", r))
		*errp = fmt.Errorf("library %s: panic: %v", op, r)
	}
}

func (w *Wrapper) PowerState(ctx context.Context) (on bool, err error) {
	defer w.guard("power_state", &err)
	return w.client.PowerState(ctx)
}

func (w *Wrapper) PowerOn(ctx context.Context) (err error) {
	defer w.guard("power_on", &err)
	return w.client.PowerOn(ctx)
}

func (w *Wrapper) PowerOff(ctx context.Context) (err error) {
	defer w.guard("power_off", &err)
	return w.client.PowerOff(ctx)
}

func (w *Wrapper) CurrentInput(ctx context.Context) (in *smartcast.Input, err error) {
	defer w.guard("current_input", &err)
	in, err = w.client.CurrentInput(ctx)
	if err == nil && (in == nil || in.Name == "") {
		return nil, smartcast.ErrNoData
	}
	return in, err
}

func (w *Wrapper) InputList(ctx context.Context) (inputs []smartcast.Input, err error) {
	defer w.guard("input_list", &err)
	inputs, err = w.client.InputList(ctx)
	if err == nil && len(inputs) == 0 {
		return nil, smartcast.ErrNoData
	}
	return inputs, err
}

func (w *Wrapper) SetInput(ctx context.Context, name string) (err error) {
	defer w.guard("input_set", &err)
	return w.client.SetInput(ctx, name)
}

func (w *Wrapper) VolumeUp(ctx context.Context, steps int) (err error) {
	defer w.guard("volume_up", &err)
	return w.client.VolumeUp(ctx, steps)
}

func (w *Wrapper) VolumeDown(ctx context.Context, steps int) (err error) {
	defer w.guard("volume_down", &err)
	return w.client.VolumeDown(ctx, steps)
}

func (w *Wrapper) SetMute(ctx context.Context, on bool) (err error) {
	defer w.guard("mute_set", &err)
	return w.client.SetMute(ctx, on)
}

func (w *Wrapper) AudioSettings(ctx context.Context) (settings map[string]string, err error) {
	defer w.guard("audio_settings", &err)
	settings, err = w.client.AudioSettings(ctx)
	if err == nil && len(settings) == 0 {
		return nil, smartcast.ErrNoData
	}
	return settings, err
}

func (w *Wrapper) SetSetting(ctx context.Context, settingType, name string, value any) (err error) {
	defer w.guard("setting_set", &err)
	return w.client.SetSetting(ctx, settingType, name, value)
}

func (w *Wrapper) SettingOptions(ctx context.Context, settingType, name string) (opts []string, err error) {
	defer w.guard("setting_options", &err)
	opts, err = w.client.SettingOptions(ctx, settingType, name)
	if err == nil && len(opts) == 0 {
		return nil, smartcast.ErrNoData
	}
	return opts, err
}

func (w *Wrapper) DeviceInfo(ctx context.Context) (info map[string]string, err error) {
	defer w.guard("device_info", &err)
	info, err = w.client.DeviceInfo(ctx)
	if err == nil && len(info) == 0 {
		return nil, smartcast.ErrNoData
	}
	return info, err
}

func (w *Wrapper) Play(ctx context.Context) (err error) {
	defer w.guard("play", &err)
	return w.client.Play(ctx)
}

func (w *Wrapper) Pause(ctx context.Context) (err error) {
	defer w.guard("pause", &err)
	return w.client.Pause(ctx)
}

func (w *Wrapper) NextTrack(ctx context.Context) (err error) {
	defer w.guard("next_track", &err)
	return w.client.NextTrack(ctx)
}

func (w *Wrapper) PreviousTrack(ctx context.Context) (err error) {
	defer w.guard("previous_track", &err)
	return w.client.PreviousTrack(ctx)
}

func (w *Wrapper) CurrentApp(ctx context.Context) (cfg *apps.Config, err error) {
	defer w.guard("current_app", &err)
	return w.client.CurrentApp(ctx)
}

func (w *Wrapper) LaunchApp(ctx context.Context, cfg apps.Config) (err error) {
	defer w.guard("launch_app", &err)
	return w.client.LaunchApp(ctx, cfg)
}
