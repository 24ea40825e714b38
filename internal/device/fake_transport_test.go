package device

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/smartcast"
)

var errTransport = errors.New("transport failure")

// fakeDevice is the shared physical-device state two fake transports act on,
// so detector tests observe real cross-transport effects (one transport's
// power-on is visible to the other's verification read).
type fakeDevice struct {
	mu     sync.Mutex
	on     bool
	input  string
	inputs []smartcast.Input
	volume int
	muted  bool
	mode   string
}

func newFakeDevice(on bool) *fakeDevice {
	return &fakeDevice{
		on:    on,
		input: "HDMI-1",
		inputs: []smartcast.Input{
			{Name: "HDMI-1", ID: "1001", CName: "hdmi1"},
			{Name: "HDMI-2", ID: "1002", CName: "hdmi2"},
		},
		volume: 25,
		mode:   "Movie",
	}
}

// fakeTransport implements Transport against a fakeDevice with per-operation
// failure switches and call counters.
type fakeTransport struct {
	dev *fakeDevice

	failPowerState   bool
	panicPowerState  bool
	failPowerSend    bool
	powerNoop        bool // send succeeds, state does not change
	failInputList    bool
	failCurrentInput bool
	failSetInput     bool
	inputNoop        bool
	failAudio        bool
	failSetSetting   bool
	failDeviceInfo   bool

	powerOnCalls  int
	powerOffCalls int
	volUpCalls    int
	volDownCalls  int
	setInputs     []string
	setSettings   []settingWrite
	muteSets      []bool
}

type settingWrite struct {
	Type  string
	Name  string
	Value any
}

func (f *fakeTransport) PowerState(context.Context) (bool, error) {
	if f.panicPowerState {
		panic("fake transport exploded")
	}
	if f.failPowerState {
		return false, errTransport
	}
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.dev.on, nil
}

func (f *fakeTransport) PowerOn(context.Context) error {
	f.powerOnCalls++
	if f.failPowerSend {
		return errTransport
	}
	if !f.powerNoop {
		f.dev.mu.Lock()
		f.dev.on = true
		f.dev.mu.Unlock()
	}
	return nil
}

func (f *fakeTransport) PowerOff(context.Context) error {
	f.powerOffCalls++
	if f.failPowerSend {
		return errTransport
	}
	if !f.powerNoop {
		f.dev.mu.Lock()
		f.dev.on = false
		f.dev.mu.Unlock()
	}
	return nil
}

func (f *fakeTransport) CurrentInput(context.Context) (*smartcast.Input, error) {
	if f.failCurrentInput {
		return nil, errTransport
	}
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return &smartcast.Input{Name: f.dev.input}, nil
}

func (f *fakeTransport) InputList(context.Context) ([]smartcast.Input, error) {
	if f.failInputList {
		return nil, errTransport
	}
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.dev.inputs, nil
}

func (f *fakeTransport) SetInput(_ context.Context, name string) error {
	f.setInputs = append(f.setInputs, name)
	if f.failSetInput {
		return errTransport
	}
	if !f.inputNoop {
		f.dev.mu.Lock()
		f.dev.input = name
		f.dev.mu.Unlock()
	}
	return nil
}

func (f *fakeTransport) VolumeUp(_ context.Context, steps int) error {
	f.volUpCalls++
	f.dev.mu.Lock()
	f.dev.volume += steps
	f.dev.mu.Unlock()
	return nil
}

func (f *fakeTransport) VolumeDown(_ context.Context, steps int) error {
	f.volDownCalls++
	f.dev.mu.Lock()
	f.dev.volume -= steps
	f.dev.mu.Unlock()
	return nil
}

func (f *fakeTransport) SetMute(_ context.Context, on bool) error {
	f.muteSets = append(f.muteSets, on)
	f.dev.mu.Lock()
	f.dev.muted = on
	f.dev.mu.Unlock()
	return nil
}

func (f *fakeTransport) AudioSettings(context.Context) (map[string]string, error) {
	if f.failAudio {
		return nil, errTransport
	}
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	mute := "Off"
	if f.dev.muted {
		mute = "On"
	}
	return map[string]string{
		"volume": strconv.Itoa(f.dev.volume),
		"mute":   mute,
		"eq":     f.dev.mode,
	}, nil
}

func (f *fakeTransport) SetSetting(_ context.Context, settingType, name string, value any) error {
	f.setSettings = append(f.setSettings, settingWrite{settingType, name, value})
	if f.failSetSetting {
		return errTransport
	}
	if settingType == "audio" && name == "volume" {
		if v, ok := value.(int); ok {
			f.dev.mu.Lock()
			f.dev.volume = v
			f.dev.mu.Unlock()
		}
	}
	return nil
}

func (f *fakeTransport) SettingOptions(context.Context, string, string) ([]string, error) {
	return []string{"Movie", "Music", "Game"}, nil
}

func (f *fakeTransport) DeviceInfo(context.Context) (map[string]string, error) {
	if f.failDeviceInfo {
		return nil, errTransport
	}
	return map[string]string{"model_name": "M55Q7-J01", "firmware": "3.510.6.2"}, nil
}

var _ Transport = (*fakeTransport)(nil)

// fakeAppTransport records launches and reports a fixed running app.
type fakeAppTransport struct {
	current  *apps.Config
	fail     bool
	launched []apps.Config
}

func (f *fakeAppTransport) CurrentApp(context.Context) (*apps.Config, error) {
	if f.fail {
		return nil, errTransport
	}
	return f.current, nil
}

func (f *fakeAppTransport) LaunchApp(_ context.Context, cfg apps.Config) error {
	f.launched = append(f.launched, cfg)
	if f.fail {
		return errTransport
	}
	return nil
}

// fakeMediaTransport records playback commands in call order.
type fakeMediaTransport struct {
	fail  bool
	calls []string
}

func (f *fakeMediaTransport) record(op string) error {
	f.calls = append(f.calls, op)
	if f.fail {
		return errTransport
	}
	return nil
}

func (f *fakeMediaTransport) Play(context.Context) error          { return f.record("play") }
func (f *fakeMediaTransport) Pause(context.Context) error         { return f.record("pause") }
func (f *fakeMediaTransport) NextTrack(context.Context) error     { return f.record("next") }
func (f *fakeMediaTransport) PreviousTrack(context.Context) error { return f.record("previous") }

// fakePublisher records everything published to the platform.
type fakePublisher struct {
	mu       sync.Mutex
	states   []publishedState
	registry []registryUpdate
	err      error
}

type publishedState struct {
	EntityID string
	State    string
	Attrs    map[string]any
}

type registryUpdate struct {
	UniqueID  string
	Model     string
	SWVersion string
}

func (p *fakePublisher) PublishState(entityID, state string, attrs map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, publishedState{entityID, state, attrs})
	return p.err
}

func (p *fakePublisher) UpdateDeviceRegistry(uniqueID, model, swVersion string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry = append(p.registry, registryUpdate{uniqueID, model, swVersion})
	return p.err
}

func (p *fakePublisher) published() []publishedState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedState, len(p.states))
	copy(out, p.states)
	return out
}

func (p *fakePublisher) lastState() (publishedState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return publishedState{}, false
	}
	return p.states[len(p.states)-1], true
}

func (p *fakePublisher) countState(state string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.states {
		if s.State == state {
			n++
		}
	}
	return n
}
