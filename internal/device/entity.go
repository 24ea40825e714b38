package device

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/clock"
)

// Class distinguishes the two supported device kinds; they differ in volume
// range and app support.
type Class string

const (
	ClassTV      Class = "tv"
	ClassSpeaker Class = "speaker"
)

// MaxVolume is the device's native volume ceiling, used to scale between
// the platform's 0..1 level and the wire value.
func (c Class) MaxVolume() int {
	if c == ClassSpeaker {
		return 31
	}
	return 100
}

// unknownAppName is reported when a device runs an app absent from the
// catalog and every configured extra.
const unknownAppName = "Unknown App"

// Snapshot is the device-observable state, assembled whole on each refresh
// and swapped atomically, never mutated field by field across a cycle.
type Snapshot struct {
	Available    bool
	PowerOn      bool
	VolumeLevel  float64 // 0..1
	Muted        bool
	CurrentInput string
	Inputs       []string
	CurrentApp   string
	SoundMode    string
	SoundModes   []string
}

// AppsSource supplies the shared read-only app catalog.
type AppsSource interface {
	Apps() []apps.App
}

// EntityOptions wires one entity.
type EntityOptions struct {
	Name       string
	UniqueID   string
	Class      Class
	VolumeStep int

	Matrix  *Matrix
	Direct  Transport
	Library Transport
	AppTr   AppTransport   // nil disables app features
	MediaTr MediaTransport // nil disables playback controls

	AppsSource     AppsSource
	AppsInclude    []string
	AppsExclude    []string
	AdditionalApps []apps.App

	Publisher StatePublisher
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Entity is the media-player surface for one device: it refreshes state
// through whichever transport the matrix selected per operation and
// publishes snapshots to the platform. One entity serves one device; its
// operations are invoked sequentially (poll loop and command handler of the
// same device never run concurrently by construction in main).
type Entity struct {
	name       string
	uniqueID   string
	class      Class
	volumeStep int

	matrix  *Matrix
	direct  Transport
	library Transport
	appTr   AppTransport
	mediaTr MediaTransport

	appsSource     AppsSource
	appsInclude    []string
	appsExclude    []string
	additionalApps []apps.App

	publisher StatePublisher
	clock     clock.Clock
	logger    *zap.Logger
	executor  *Executor

	mu               sync.RWMutex
	snap             Snapshot
	soundModes       []string
	soundModesLoaded bool
	infoPublished    bool
}

// NewEntity creates an entity from a detected matrix. The entity starts
// available with no observed state; the first Refresh fills it in.
func NewEntity(opts EntityOptions) *Entity {
	if opts.VolumeStep <= 0 {
		opts.VolumeStep = 1
	}
	logger := opts.Logger.Named("entity").With(zap.String("device", opts.Name))

	e := &Entity{
		name:           opts.Name,
		uniqueID:       opts.UniqueID,
		class:          opts.Class,
		volumeStep:     opts.VolumeStep,
		matrix:         opts.Matrix,
		direct:         opts.Direct,
		library:        opts.Library,
		appTr:          opts.AppTr,
		mediaTr:        opts.MediaTr,
		appsSource:     opts.AppsSource,
		appsInclude:    opts.AppsInclude,
		appsExclude:    opts.AppsExclude,
		additionalApps: opts.AdditionalApps,
		publisher:      opts.Publisher,
		clock:          opts.Clock,
		logger:         logger,
		snap:           Snapshot{Available: true},
	}
	e.executor = NewExecutor(opts.Direct.PowerState, opts.Clock, logger)
	return e
}

// Name returns the configured device name.
func (e *Entity) Name() string { return e.name }

// EntityID is the platform entity identifier.
func (e *Entity) EntityID() string {
	return "media_player." + slugify(e.name)
}

// Matrix exposes the detected capability matrix for diagnostics.
func (e *Entity) Matrix() *Matrix { return e.matrix }

// Snapshot returns the current state snapshot.
func (e *Entity) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

func (e *Entity) setSnapshot(snap Snapshot) {
	e.mu.Lock()
	e.snap = snap
	e.mu.Unlock()
}

// transportFor resolves the matrix's choice to a live transport, nil when
// the operation is unsupported on this unit.
func (e *Entity) transportFor(op Operation) Transport {
	switch e.matrix.Best(op) {
	case TransportDirect:
		return e.direct
	case TransportLibrary:
		return e.library
	default:
		return nil
	}
}

// Refresh polls the device and publishes a fresh snapshot. Unreachability is
// recoverable: availability flips off on the first failed poll while the
// device was believed on, once, and back on with the next success. A device
// believed off is allowed to stop answering without being marked unavailable.
func (e *Entity) Refresh(ctx context.Context) {
	e.refresh(ctx, false)
}

func (e *Entity) refresh(ctx context.Context, quiet bool) {
	tr := e.transportFor(OpPowerState)
	if tr == nil {
		e.logger.Debug("power state unsupported on this unit; refresh skipped")
		return
	}

	on, err := tr.PowerState(ctx)
	if err != nil {
		e.handleUnreachable(err, quiet)
		return
	}

	e.mu.RLock()
	wasAvailable := e.snap.Available
	e.mu.RUnlock()
	if !wasAvailable {
		e.logger.Info("device reachable again")
	}

	snap := Snapshot{Available: true, PowerOn: on}
	if on {
		e.collectOnState(ctx, &snap)
	}
	e.setSnapshot(snap)
	e.maybePublishDeviceInfo(ctx)
	e.publish()
}

func (e *Entity) handleUnreachable(err error, quiet bool) {
	if quiet {
		e.logger.Debug("device not answering after power command", zap.Error(err))
		return
	}

	e.mu.Lock()
	wasAvailable := e.snap.Available
	believedOff := !e.snap.PowerOn
	if wasAvailable && believedOff {
		// An off device legitimately stops answering; keep it available-off.
		// This holds for any failure while off, including the device
		// vanishing from the network entirely: without a positive ON
		// observation there is no way to tell a powered-down unit from a
		// gone one, so the off reading stands until the next success.
		e.mu.Unlock()
		e.logger.Debug("device unreachable while off", zap.Error(err))
		return
	}
	if wasAvailable {
		e.snap = Snapshot{Available: false}
	}
	e.mu.Unlock()

	if wasAvailable {
		e.logger.Warn("device unreachable; marking unavailable", zap.Error(err))
		e.publish()
	}
}

// collectOnState fills the snapshot fields that only exist while the device
// is on. Each read degrades independently; a failed audio read must not
// cost us the input fields.
func (e *Entity) collectOnState(ctx context.Context, snap *Snapshot) {
	if tr := e.transportFor(OpVolumeGet); tr != nil {
		settings, err := tr.AudioSettings(ctx)
		if err != nil {
			e.logger.Debug("audio settings read failed", zap.Error(err))
		} else {
			if raw, ok := settings["volume"]; ok {
				if v, err := strconv.Atoi(raw); err == nil {
					snap.VolumeLevel = float64(v) / float64(e.class.MaxVolume())
				}
			}
			if raw, ok := settings["mute"]; ok {
				snap.Muted = strings.EqualFold(raw, "on")
			}
			if raw, ok := settings["eq"]; ok && raw != "" {
				snap.SoundMode = raw
				e.loadSoundModesOnce(ctx, tr)
			}
		}
	}
	snap.SoundModes = e.cachedSoundModes()

	if tr := e.transportFor(OpCurrentInput); tr != nil {
		if in, err := tr.CurrentInput(ctx); err == nil && in != nil {
			snap.CurrentInput = in.Name
		} else {
			e.logger.Debug("current input read failed", zap.Error(err))
		}
	}

	if tr := e.transportFor(OpInputList); tr != nil {
		if list, err := tr.InputList(ctx); err == nil {
			names := make([]string, 0, len(list))
			for _, in := range list {
				names = append(names, in.Name)
			}
			snap.Inputs = names
		} else {
			e.logger.Debug("input list read failed", zap.Error(err))
		}
	}

	if e.class == ClassTV && e.appTr != nil {
		if cfg, err := e.appTr.CurrentApp(ctx); err == nil && cfg != nil {
			name := apps.FindAppName(e.allApps(), cfg.AppID, cfg.NameSpace)
			if name == "" {
				name = unknownAppName
			}
			snap.CurrentApp = name
		}
	}
}

// loadSoundModesOnce fetches the sound-mode options the first time a sound
// mode is observed; the option list does not change at runtime.
func (e *Entity) loadSoundModesOnce(ctx context.Context, tr Transport) {
	e.mu.Lock()
	loaded := e.soundModesLoaded
	e.mu.Unlock()
	if loaded {
		return
	}

	opts, err := tr.SettingOptions(ctx, "audio", "eq")
	if err != nil {
		e.logger.Debug("sound mode options read failed", zap.Error(err))
		return
	}
	e.mu.Lock()
	e.soundModes = opts
	e.soundModesLoaded = true
	e.mu.Unlock()
}

func (e *Entity) cachedSoundModes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.soundModes
}

// maybePublishDeviceInfo pushes model and firmware to the platform device
// registry once per process lifetime, on the first reachable refresh.
func (e *Entity) maybePublishDeviceInfo(ctx context.Context) {
	e.mu.Lock()
	published := e.infoPublished
	e.mu.Unlock()
	if published {
		return
	}

	tr := e.transportFor(OpDeviceInfo)
	if tr == nil {
		return
	}
	info, err := tr.DeviceInfo(ctx)
	if err != nil {
		e.logger.Debug("device info read failed", zap.Error(err))
		return
	}
	if err := e.publisher.UpdateDeviceRegistry(e.uniqueID, info["model_name"], info["firmware"]); err != nil {
		e.logger.Warn("device registry update failed", zap.Error(err))
		return
	}

	e.mu.Lock()
	e.infoPublished = true
	e.mu.Unlock()
}

// publish pushes the current snapshot to the platform.
func (e *Entity) publish() {
	snap := e.Snapshot()

	state := "off"
	switch {
	case !snap.Available:
		state = "unavailable"
	case snap.PowerOn:
		state = "on"
	}

	attrs := map[string]any{
		"friendly_name": e.name,
		"device_class":  string(e.class),
	}
	if snap.Available {
		attrs["source_list"] = e.sourceList(snap)
	}
	if snap.Available && snap.PowerOn {
		attrs["volume_level"] = snap.VolumeLevel
		attrs["is_volume_muted"] = snap.Muted
		attrs["source"] = snap.CurrentInput
		if snap.CurrentApp != "" {
			attrs["app_name"] = snap.CurrentApp
		}
		if snap.SoundMode != "" {
			attrs["sound_mode"] = snap.SoundMode
			attrs["sound_mode_list"] = snap.SoundModes
		}
	}

	if err := e.publisher.PublishState(e.EntityID(), state, attrs); err != nil {
		e.logger.Warn("state publish failed", zap.Error(err))
	}
}

// sourceList is inputs plus, for TVs, every launchable app name.
func (e *Entity) sourceList(snap Snapshot) []string {
	out := append([]string{}, snap.Inputs...)
	if e.class == ClassTV && e.appTr != nil {
		for _, a := range e.allApps() {
			out = append(out, a.Name)
		}
	}
	return out
}

// allApps is the configured extras plus the catalog filtered by
// include/exclude. Include wins over exclude when both are set.
func (e *Entity) allApps() []apps.App {
	out := append([]apps.App{}, e.additionalApps...)
	if e.appsSource == nil {
		return out
	}
	for _, a := range e.appsSource.Apps() {
		if e.appAllowed(a.Name) {
			out = append(out, a)
		}
	}
	return out
}

func (e *Entity) appAllowed(name string) bool {
	if len(e.appsInclude) > 0 {
		return containsFold(e.appsInclude, name)
	}
	if len(e.appsExclude) > 0 {
		return !containsFold(e.appsExclude, name)
	}
	return true
}

// TurnOn requests power on through the executor and settles the local state
// to ON whether or not the device confirmed; the command was sent, and a
// missing confirmation is a reporting gap, not proof of failure.
func (e *Entity) TurnOn(ctx context.Context) {
	tr := e.transportFor(OpPowerOn)
	if tr == nil {
		e.logger.Warn("power on unsupported on this unit")
		return
	}

	outcome := e.executor.TurnOn(ctx, tr.PowerOn)

	e.mu.Lock()
	e.snap.PowerOn = true
	e.snap.Available = true
	e.mu.Unlock()
	e.publish()

	// Confirmed means the device answers; a full refresh fills the rest.
	// Unconfirmed devices may still be waking, so failures stay quiet.
	e.refresh(ctx, outcome != OutcomeConfirmed)
}

// TurnOff requests power off and immediately clears every field that has no
// meaning on an off device, independent of the follow-up refresh, which an
// off device may legitimately ignore.
func (e *Entity) TurnOff(ctx context.Context) {
	tr := e.transportFor(OpPowerOff)
	if tr == nil {
		e.logger.Warn("power off unsupported on this unit")
		return
	}

	e.executor.TurnOff(ctx, tr.PowerOff)

	e.mu.Lock()
	e.snap.PowerOn = false
	e.snap.VolumeLevel = 0
	e.snap.Muted = false
	e.snap.CurrentInput = ""
	e.snap.CurrentApp = ""
	e.snap.SoundMode = ""
	e.mu.Unlock()
	e.publish()

	e.refresh(ctx, true)
}

// SetVolume sets an absolute level in 0..1, scaled to the device range.
func (e *Entity) SetVolume(ctx context.Context, level float64) error {
	tr := e.transportFor(OpVolumeSet)
	if tr == nil {
		e.logger.Warn("volume set unsupported on this unit")
		return nil
	}

	vol := int(math.Round(level * float64(e.class.MaxVolume())))
	if err := tr.SetSetting(ctx, "audio", "volume", vol); err != nil {
		return err
	}

	e.mu.Lock()
	e.snap.VolumeLevel = level
	e.mu.Unlock()
	e.publish()
	return nil
}

// VolumeUp raises volume by the configured step.
func (e *Entity) VolumeUp(ctx context.Context) error {
	return e.stepVolume(ctx, e.volumeStep)
}

// VolumeDown lowers volume by the configured step.
func (e *Entity) VolumeDown(ctx context.Context) error {
	return e.stepVolume(ctx, -e.volumeStep)
}

func (e *Entity) stepVolume(ctx context.Context, step int) error {
	tr := e.transportFor(OpVolumeSet)
	if tr == nil {
		e.logger.Warn("volume step unsupported on this unit")
		return nil
	}

	var err error
	if step >= 0 {
		err = tr.VolumeUp(ctx, step)
	} else {
		err = tr.VolumeDown(ctx, -step)
	}
	if err != nil {
		return err
	}

	delta := float64(step) / float64(e.class.MaxVolume())
	e.mu.Lock()
	e.snap.VolumeLevel = clamp01(e.snap.VolumeLevel + delta)
	e.mu.Unlock()
	e.publish()
	return nil
}

// SetMute sets an absolute mute state.
func (e *Entity) SetMute(ctx context.Context, on bool) error {
	tr := e.transportFor(OpVolumeSet)
	if tr == nil {
		e.logger.Warn("mute unsupported on this unit")
		return nil
	}
	if err := tr.SetMute(ctx, on); err != nil {
		return err
	}

	e.mu.Lock()
	e.snap.Muted = on
	e.mu.Unlock()
	e.publish()
	return nil
}

// SelectSource switches to an input when the name matches one, otherwise
// launches the named app (TVs only).
func (e *Entity) SelectSource(ctx context.Context, name string) error {
	if containsFold(e.Snapshot().Inputs, name) {
		tr := e.transportFor(OpInputSet)
		if tr == nil {
			e.logger.Warn("input switching unsupported on this unit", zap.String("input", name))
			return nil
		}
		if err := tr.SetInput(ctx, name); err != nil {
			return err
		}
		e.mu.Lock()
		e.snap.CurrentInput = name
		e.mu.Unlock()
		e.publish()
		return nil
	}

	if e.class == ClassTV && e.appTr != nil {
		if app := apps.FindApp(e.allApps(), name); app != nil && len(app.Config) > 0 {
			if err := e.appTr.LaunchApp(ctx, app.Config[0]); err != nil {
				return err
			}
			e.mu.Lock()
			e.snap.CurrentApp = app.Name
			e.mu.Unlock()
			e.publish()
			return nil
		}
	}

	e.logger.Warn("unknown source", zap.String("source", name))
	return nil
}

// MediaPlay resumes playback in whatever app is running.
func (e *Entity) MediaPlay(ctx context.Context) error {
	if e.mediaTr == nil {
		e.logger.Warn("playback control unsupported on this unit")
		return nil
	}
	return e.mediaTr.Play(ctx)
}

// MediaPause pauses playback.
func (e *Entity) MediaPause(ctx context.Context) error {
	if e.mediaTr == nil {
		e.logger.Warn("playback control unsupported on this unit")
		return nil
	}
	return e.mediaTr.Pause(ctx)
}

// MediaNextTrack skips forward.
func (e *Entity) MediaNextTrack(ctx context.Context) error {
	if e.mediaTr == nil {
		e.logger.Warn("playback control unsupported on this unit")
		return nil
	}
	return e.mediaTr.NextTrack(ctx)
}

// MediaPreviousTrack skips backward.
func (e *Entity) MediaPreviousTrack(ctx context.Context) error {
	if e.mediaTr == nil {
		e.logger.Warn("playback control unsupported on this unit")
		return nil
	}
	return e.mediaTr.PreviousTrack(ctx)
}

// SelectSoundMode writes the audio eq setting.
func (e *Entity) SelectSoundMode(ctx context.Context, mode string) error {
	tr := e.transportFor(OpVolumeSet)
	if tr == nil {
		e.logger.Warn("sound mode unsupported on this unit")
		return nil
	}
	if err := tr.SetSetting(ctx, "audio", "eq", mode); err != nil {
		return err
	}

	e.mu.Lock()
	e.snap.SoundMode = mode
	e.mu.Unlock()
	e.publish()
	return nil
}

// UpdateSetting is the generic settings service: type and name are
// slug-normalized, value may be an integer or a string.
func (e *Entity) UpdateSetting(ctx context.Context, settingType, name string, value any) error {
	tr := e.transportFor(OpVolumeSet)
	if tr == nil {
		e.logger.Warn("settings writes unsupported on this unit")
		return nil
	}
	return tr.SetSetting(ctx, slugify(settingType), slugify(name), value)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
