package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartcastbridge/internal/clock"
)

func runDetector(t *testing.T, direct, library *fakeTransport) *Matrix {
	t.Helper()
	d := NewDetector(direct, library, clock.NewMockClock(time.Now()), zap.NewNop())
	return d.Run(context.Background())
}

func TestDetectorHealthyDeviceOn(t *testing.T) {
	dev := newFakeDevice(true)
	direct := &fakeTransport{dev: dev}
	library := &fakeTransport{dev: dev}

	m := runDetector(t, direct, library)

	require.True(t, m.Complete(), "no flag may remain unknown after detection")
	for _, op := range []Operation{OpPowerState, OpInputList, OpCurrentInput, OpVolumeGet, OpVolumeSet, OpDeviceInfo, OpPowerOff, OpInputSet} {
		assert.Equal(t, Works, m.Direct(op), "direct %s", op)
		assert.Equal(t, Works, m.Library(op), "library %s", op)
	}
	// Device was on, so power-on had no probeable precondition this run.
	assert.Equal(t, Broken, m.Direct(OpPowerOn))
	assert.Equal(t, Broken, m.Library(OpPowerOn))
}

func TestDetectorRestoresDeviceState(t *testing.T) {
	dev := newFakeDevice(true)
	dev.input = "HDMI-2"
	direct := &fakeTransport{dev: dev}
	library := &fakeTransport{dev: dev}

	runDetector(t, direct, library)

	// Mutating probes ran (power off, input switch) but the device must end
	// exactly where it started.
	assert.True(t, dev.on)
	assert.Equal(t, "HDMI-2", dev.input)
}

func TestDetectorDeviceOffProbesPowerOn(t *testing.T) {
	dev := newFakeDevice(false)
	direct := &fakeTransport{dev: dev}
	library := &fakeTransport{dev: dev}

	m := runDetector(t, direct, library)

	require.True(t, m.Complete())
	assert.Equal(t, Works, m.Direct(OpPowerOn))
	assert.Equal(t, Works, m.Library(OpPowerOn))
	assert.Equal(t, Broken, m.Direct(OpPowerOff))
	// Input switching needs the device on; it stayed off throughout.
	assert.Equal(t, Broken, m.Direct(OpInputSet))
	assert.False(t, dev.on, "device must be restored to off")
}

func TestDetectorBrokenDirectFallsBackToLibrary(t *testing.T) {
	dev := newFakeDevice(true)
	direct := &fakeTransport{dev: dev, failInputList: true}
	library := &fakeTransport{dev: dev}

	m := runDetector(t, direct, library)

	assert.Equal(t, Broken, m.Direct(OpInputList))
	assert.Equal(t, Works, m.Library(OpInputList))
	assert.Equal(t, TransportLibrary, m.Best(OpInputList))
}

func TestDetectorProbePanicDoesNotAbort(t *testing.T) {
	dev := newFakeDevice(true)
	direct := &fakeTransport{dev: dev}
	library := &fakeTransport{dev: dev, panicPowerState: true}

	m := runDetector(t, direct, library)

	require.True(t, m.Complete())
	assert.Equal(t, Broken, m.Library(OpPowerState))
	assert.Equal(t, Works, m.Direct(OpPowerState))
	// Probes after the panicking one still ran.
	assert.Equal(t, Works, m.Library(OpDeviceInfo))
}

func TestDetectorPowerSendAcceptedButNoChange(t *testing.T) {
	dev := newFakeDevice(true)
	direct := &fakeTransport{dev: dev, powerNoop: true}
	library := &fakeTransport{dev: dev}

	m := runDetector(t, direct, library)

	// The direct send "succeeded" on the wire but verification saw no state
	// change; only a real flip counts.
	assert.Equal(t, Broken, m.Direct(OpPowerOff))
	assert.Equal(t, Works, m.Library(OpPowerOff))
	assert.True(t, dev.on, "library probe must have restored power")
}

func TestDetectorUnreachableDeviceCompletesBroken(t *testing.T) {
	dev := newFakeDevice(false)
	direct := &fakeTransport{
		dev:              dev,
		failPowerState:   true,
		failPowerSend:    true,
		failInputList:    true,
		failCurrentInput: true,
		failSetInput:     true,
		failAudio:        true,
		failSetSetting:   true,
		failDeviceInfo:   true,
	}
	library := &fakeTransport{
		dev:              dev,
		failPowerState:   true,
		failPowerSend:    true,
		failInputList:    true,
		failCurrentInput: true,
		failSetInput:     true,
		failAudio:        true,
		failSetSetting:   true,
		failDeviceInfo:   true,
	}

	m := runDetector(t, direct, library)

	require.True(t, m.Complete())
	for _, op := range Operations {
		assert.Equal(t, TransportNone, m.Best(op), "%s", op)
	}
}
