package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/clock"
)

// allDirectMatrix marks every operation working on the direct transport and
// broken on the library, the common case for units without an SDK binding.
func allDirectMatrix() *Matrix {
	m := NewMatrix()
	for _, op := range Operations {
		m.SetDirect(op, Works)
		m.SetLibrary(op, Broken)
	}
	return m
}

type entityFixture struct {
	entity    *Entity
	dev       *fakeDevice
	direct    *fakeTransport
	appTr     *fakeAppTransport
	mediaTr   *fakeMediaTransport
	publisher *fakePublisher
}

type staticApps []apps.App

func (s staticApps) Apps() []apps.App { return s }

func newEntityFixture(t *testing.T, class Class, on bool) *entityFixture {
	t.Helper()
	dev := newFakeDevice(on)
	direct := &fakeTransport{dev: dev}
	library := &fakeTransport{dev: dev, failPowerState: true}
	appTr := &fakeAppTransport{}
	mediaTr := &fakeMediaTransport{}
	publisher := &fakePublisher{}

	catalog := staticApps{
		{Name: "Netflix", Config: []apps.Config{{AppID: "1", NameSpace: 3}}},
		{Name: "YouTube", Config: []apps.Config{{AppID: "5", NameSpace: 0}}},
	}

	e := NewEntity(EntityOptions{
		Name:       "Living Room TV",
		UniqueID:   "aa:bb:cc:dd:ee:ff",
		Class:      class,
		VolumeStep: 2,
		Matrix:     allDirectMatrix(),
		Direct:     direct,
		Library:    library,
		AppTr:      appTr,
		MediaTr:    mediaTr,
		AppsSource: catalog,
		Publisher:  publisher,
		Clock:      clock.NewMockClock(time.Now()),
		Logger:     zap.NewNop(),
	})

	return &entityFixture{entity: e, dev: dev, direct: direct, appTr: appTr, mediaTr: mediaTr, publisher: publisher}
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.appTr.current = &apps.Config{AppID: "1", NameSpace: 3}

	f.entity.Refresh(context.Background())

	snap := f.entity.Snapshot()
	assert.True(t, snap.Available)
	assert.True(t, snap.PowerOn)
	assert.InDelta(t, 0.25, snap.VolumeLevel, 1e-9) // volume 25 of 100
	assert.False(t, snap.Muted)
	assert.Equal(t, "HDMI-1", snap.CurrentInput)
	assert.Equal(t, []string{"HDMI-1", "HDMI-2"}, snap.Inputs)
	assert.Equal(t, "Netflix", snap.CurrentApp)
	assert.Equal(t, "Movie", snap.SoundMode)
	assert.Equal(t, []string{"Movie", "Music", "Game"}, snap.SoundModes)

	last, ok := f.publisher.lastState()
	require.True(t, ok)
	assert.Equal(t, "media_player.living_room_tv", last.EntityID)
	assert.Equal(t, "on", last.State)
	assert.Equal(t, 0.25, last.Attrs["volume_level"])
}

func TestRefreshSpeakerVolumeScale(t *testing.T) {
	f := newEntityFixture(t, ClassSpeaker, true)
	f.dev.volume = 31

	f.entity.Refresh(context.Background())
	assert.InDelta(t, 1.0, f.entity.Snapshot().VolumeLevel, 1e-9)
}

func TestRefreshPublishesDeviceInfoOnce(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)

	f.entity.Refresh(context.Background())
	f.entity.Refresh(context.Background())

	require.Len(t, f.publisher.registry, 1)
	assert.Equal(t, registryUpdate{"aa:bb:cc:dd:ee:ff", "M55Q7-J01", "3.510.6.2"}, f.publisher.registry[0])
}

func TestAvailabilityFlipsExactlyOnce(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	ctx := context.Background()

	f.entity.Refresh(ctx)
	require.True(t, f.entity.Snapshot().PowerOn)

	f.direct.failPowerState = true
	f.entity.Refresh(ctx)
	f.entity.Refresh(ctx)
	f.entity.Refresh(ctx)

	assert.False(t, f.entity.Snapshot().Available)
	assert.Equal(t, 1, f.publisher.countState("unavailable"),
		"three failed polls must publish unavailable exactly once")

	f.direct.failPowerState = false
	f.entity.Refresh(ctx)
	assert.True(t, f.entity.Snapshot().Available)
}

func TestUnreachableWhileOffStaysAvailable(t *testing.T) {
	f := newEntityFixture(t, ClassTV, false)
	ctx := context.Background()

	f.entity.Refresh(ctx)
	require.False(t, f.entity.Snapshot().PowerOn)

	// A device believed off may legitimately stop answering.
	f.direct.failPowerState = true
	f.entity.Refresh(ctx)

	snap := f.entity.Snapshot()
	assert.True(t, snap.Available)
	assert.False(t, snap.PowerOn)
	assert.Equal(t, 0, f.publisher.countState("unavailable"))
}

func TestTurnOnOptimisticWhenNeverConfirmed(t *testing.T) {
	f := newEntityFixture(t, ClassTV, false)
	// Commands go through but the device never answers a state read, so no
	// verification ever confirms.
	f.direct.failPowerState = true

	f.entity.TurnOn(context.Background())

	assert.Equal(t, 2, f.direct.powerOnCalls)
	snap := f.entity.Snapshot()
	assert.True(t, snap.PowerOn, "local state settles to ON without confirmation")
	assert.True(t, snap.Available)
}

func TestTurnOffClearsTransientFields(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.appTr.current = &apps.Config{AppID: "1", NameSpace: 3}
	ctx := context.Background()

	f.entity.Refresh(ctx)
	require.Equal(t, "HDMI-1", f.entity.Snapshot().CurrentInput)

	// The follow-up refresh fails; fields must be cleared regardless.
	f.direct.failAudio = true
	f.direct.failCurrentInput = true
	f.entity.TurnOff(ctx)

	snap := f.entity.Snapshot()
	assert.False(t, snap.PowerOn)
	assert.Zero(t, snap.VolumeLevel)
	assert.False(t, snap.Muted)
	assert.Empty(t, snap.CurrentInput)
	assert.Empty(t, snap.CurrentApp)
	assert.Empty(t, snap.SoundMode)
}

func TestTurnOffRefreshFailureStaysQuiet(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	ctx := context.Background()
	f.entity.Refresh(ctx)

	f.direct.failPowerState = true
	f.entity.TurnOff(ctx)

	snap := f.entity.Snapshot()
	assert.False(t, snap.PowerOn)
	assert.True(t, snap.Available, "an off device that stops answering stays available")
	assert.Equal(t, 0, f.publisher.countState("unavailable"))
}

func TestUnsupportedOperationNoOps(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	for _, op := range Operations {
		f.entity.matrix.SetDirect(op, Broken)
		f.entity.matrix.SetLibrary(op, Broken)
	}

	ctx := context.Background()
	f.entity.Refresh(ctx)
	f.entity.TurnOn(ctx)
	f.entity.TurnOff(ctx)
	require.NoError(t, f.entity.SetVolume(ctx, 0.5))
	require.NoError(t, f.entity.SelectSource(ctx, "HDMI-2"))

	assert.Zero(t, f.direct.powerOnCalls)
	assert.Zero(t, f.direct.powerOffCalls)
	assert.Empty(t, f.direct.setSettings)
	assert.Empty(t, f.direct.setInputs)
}

func TestSetVolumeScalesToDeviceRange(t *testing.T) {
	f := newEntityFixture(t, ClassSpeaker, true)

	require.NoError(t, f.entity.SetVolume(context.Background(), 0.5))

	require.Len(t, f.direct.setSettings, 1)
	assert.Equal(t, settingWrite{"audio", "volume", 16}, f.direct.setSettings[0])
	assert.Equal(t, 0.5, f.entity.Snapshot().VolumeLevel)
}

func TestVolumeStep(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.entity.Refresh(context.Background())

	require.NoError(t, f.entity.VolumeUp(context.Background()))
	assert.Equal(t, 1, f.direct.volUpCalls)
	assert.InDelta(t, 0.27, f.entity.Snapshot().VolumeLevel, 1e-9)

	require.NoError(t, f.entity.VolumeDown(context.Background()))
	assert.Equal(t, 1, f.direct.volDownCalls)
	assert.InDelta(t, 0.25, f.entity.Snapshot().VolumeLevel, 1e-9)
}

func TestSetMute(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)

	require.NoError(t, f.entity.SetMute(context.Background(), true))
	assert.Equal(t, []bool{true}, f.direct.muteSets)
	assert.True(t, f.entity.Snapshot().Muted)
}

func TestMediaControls(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	ctx := context.Background()

	require.NoError(t, f.entity.MediaPlay(ctx))
	require.NoError(t, f.entity.MediaPause(ctx))
	require.NoError(t, f.entity.MediaNextTrack(ctx))
	require.NoError(t, f.entity.MediaPreviousTrack(ctx))
	assert.Equal(t, []string{"play", "pause", "next", "previous"}, f.mediaTr.calls)

	f.mediaTr.fail = true
	assert.Error(t, f.entity.MediaPlay(ctx))
}

func TestMediaControlsWithoutTransportNoOp(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.entity.mediaTr = nil

	assert.NoError(t, f.entity.MediaPlay(context.Background()))
	assert.NoError(t, f.entity.MediaNextTrack(context.Background()))
	assert.Empty(t, f.mediaTr.calls)
}

func TestSelectSourceInput(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.entity.Refresh(context.Background())

	require.NoError(t, f.entity.SelectSource(context.Background(), "HDMI-2"))
	assert.Equal(t, []string{"HDMI-2"}, f.direct.setInputs)
	assert.Equal(t, "HDMI-2", f.entity.Snapshot().CurrentInput)
}

func TestSelectSourceApp(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.entity.Refresh(context.Background())

	require.NoError(t, f.entity.SelectSource(context.Background(), "Netflix"))
	require.Len(t, f.appTr.launched, 1)
	assert.Equal(t, apps.Config{AppID: "1", NameSpace: 3}, f.appTr.launched[0])
	assert.Equal(t, "Netflix", f.entity.Snapshot().CurrentApp)
	assert.Empty(t, f.direct.setInputs)
}

func TestSelectSourceAppExcluded(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.entity.appsExclude = []string{"Netflix"}
	f.entity.Refresh(context.Background())

	require.NoError(t, f.entity.SelectSource(context.Background(), "Netflix"))
	assert.Empty(t, f.appTr.launched)
}

func TestSourceListIncludesAppsForTV(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.entity.Refresh(context.Background())

	last, ok := f.publisher.lastState()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"HDMI-1", "HDMI-2", "Netflix", "YouTube"},
		last.Attrs["source_list"])
}

func TestUpdateSettingSlugNormalization(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)

	require.NoError(t, f.entity.UpdateSetting(context.Background(), "Audio", "Surround Sound", "On"))

	require.Len(t, f.direct.setSettings, 1)
	assert.Equal(t, settingWrite{"audio", "surround_sound", "On"}, f.direct.setSettings[0])
}

func TestUnknownRunningApp(t *testing.T) {
	f := newEntityFixture(t, ClassTV, true)
	f.appTr.current = &apps.Config{AppID: "404", NameSpace: 9}

	f.entity.Refresh(context.Background())
	assert.Equal(t, unknownAppName, f.entity.Snapshot().CurrentApp)
}
