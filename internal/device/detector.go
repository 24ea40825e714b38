package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartcastbridge/internal/clock"
	"smartcastbridge/internal/smartcast"
)

// Settle delays between a mutating probe and its verification read. TVs take
// noticeably longer to report on than off.
const (
	powerOnSettle  = 2 * time.Second
	powerOffSettle = time.Second
	inputSettle    = time.Second
)

var errNoStateChange = errors.New("device state did not change")

// Detector populates a capability matrix by exercising every operation on
// both transports against the live device. It runs once, serially, during
// setup, before the entity accepts commands. The direct client is ground
// truth for all verification reads.
type Detector struct {
	direct  Transport
	library Transport
	clock   clock.Clock
	logger  *zap.Logger
}

// NewDetector creates a detector for one device.
func NewDetector(direct, library Transport, clk clock.Clock, logger *zap.Logger) *Detector {
	return &Detector{
		direct:  direct,
		library: library,
		clock:   clk,
		logger:  logger.Named("detector"),
	}
}

// Run probes every operation and returns the completed matrix: no flag is
// left Unknown. A failing probe marks its flag Broken and never aborts the
// remaining probes; mutating probes restore the device's pre-probe state.
func (d *Detector) Run(ctx context.Context) *Matrix {
	m := NewMatrix()

	d.probeReads(ctx, m)
	d.probeVolumeSet(ctx, m)
	d.probePower(ctx, m)
	d.probeInputSet(ctx, m)
	d.finalize(m)

	d.logger.Info("capability detection complete", zap.Any("matrix", m.Summary()))
	return m
}

// sides pairs each transport with its matrix setter so probe loops stay flat.
func (d *Detector) sides(m *Matrix, op Operation) []struct {
	name   string
	tr     Transport
	record func(TriState)
} {
	return []struct {
		name   string
		tr     Transport
		record func(TriState)
	}{
		{"direct", d.direct, func(s TriState) { m.SetDirect(op, s) }},
		{"library", d.library, func(s TriState) { m.SetLibrary(op, s) }},
	}
}

// probe runs one probe function, converting any error or panic into Broken.
func (d *Detector) probe(ctx context.Context, op Operation, transport string, fn func(context.Context) error) (result TriState) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("probe panicked",
				zap.String("op", string(op)),
				zap.String("transport", transport),
				zap.Any("panic", r))
			result = Broken
		}
	}()

	if err := fn(ctx); err != nil {
		d.logger.Debug("probe failed",
			zap.String("op", string(op)),
			zap.String("transport", transport),
			zap.Error(err))
		return Broken
	}
	d.logger.Debug("probe succeeded",
		zap.String("op", string(op)),
		zap.String("transport", transport))
	return Works
}

// probeReads covers the read-only operations: a transport works iff it
// returns a non-empty, well-typed result without error.
func (d *Detector) probeReads(ctx context.Context, m *Matrix) {
	probes := []struct {
		op Operation
		fn func(context.Context, Transport) error
	}{
		{OpPowerState, func(ctx context.Context, tr Transport) error {
			_, err := tr.PowerState(ctx)
			return err
		}},
		{OpInputList, func(ctx context.Context, tr Transport) error {
			list, err := tr.InputList(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return smartcast.ErrNoData
			}
			return nil
		}},
		{OpCurrentInput, func(ctx context.Context, tr Transport) error {
			in, err := tr.CurrentInput(ctx)
			if err != nil {
				return err
			}
			if in == nil || in.Name == "" {
				return smartcast.ErrNoData
			}
			return nil
		}},
		{OpVolumeGet, func(ctx context.Context, tr Transport) error {
			settings, err := tr.AudioSettings(ctx)
			if err != nil {
				return err
			}
			if _, ok := settings["volume"]; !ok {
				return smartcast.ErrNoData
			}
			return nil
		}},
		{OpDeviceInfo, func(ctx context.Context, tr Transport) error {
			info, err := tr.DeviceInfo(ctx)
			if err != nil {
				return err
			}
			if len(info) == 0 {
				return smartcast.ErrNoData
			}
			return nil
		}},
	}

	for _, p := range probes {
		fn := p.fn
		for _, side := range d.sides(m, p.op) {
			tr := side.tr
			side.record(d.probe(ctx, p.op, side.name, func(ctx context.Context) error {
				return fn(ctx, tr)
			}))
		}
	}
}

// probeVolumeSet writes the device's current volume back to itself, a
// harmless mutation that proves the settings write path end to end.
func (d *Detector) probeVolumeSet(ctx context.Context, m *Matrix) {
	settings, err := d.direct.AudioSettings(ctx)
	if err != nil {
		d.logger.Debug("volume-set probes skipped: cannot read current volume", zap.Error(err))
		return
	}
	raw, ok := settings["volume"]
	if !ok {
		d.logger.Debug("volume-set probes skipped: device reports no volume setting")
		return
	}
	vol, err := strconv.Atoi(raw)
	if err != nil {
		d.logger.Debug("volume-set probes skipped: non-numeric volume", zap.String("volume", raw))
		return
	}

	for _, side := range d.sides(m, OpVolumeSet) {
		tr := side.tr
		side.record(d.probe(ctx, OpVolumeSet, side.name, func(ctx context.Context) error {
			return tr.SetSetting(ctx, "audio", "volume", vol)
		}))
	}
}

// probePower is state-aware: power-on is only probeable when the device is
// off and power-off only when on, so exactly one of the two gets live probes
// per run; the other is resolved Broken by finalize.
func (d *Detector) probePower(ctx context.Context, m *Matrix) {
	on, err := d.direct.PowerState(ctx)
	if err != nil {
		d.logger.Warn("power probes skipped: cannot determine current power state", zap.Error(err))
		return
	}

	op, target := OpPowerOn, true
	if on {
		op, target = OpPowerOff, false
	}

	for _, side := range d.sides(m, op) {
		tr := side.tr
		state := d.probe(ctx, op, side.name, func(ctx context.Context) error {
			return d.flipAndVerify(ctx, tr, target)
		})
		side.record(state)
		// Restore so the other transport starts from the same state and
		// detection leaves the device as it found it.
		if state == Works {
			d.restorePower(ctx, !target)
		}
	}
}

// flipAndVerify sends a power command on tr, waits the settle delay, then
// confirms via the direct client that the state actually changed.
func (d *Detector) flipAndVerify(ctx context.Context, tr Transport, target bool) error {
	var err error
	settle := powerOffSettle
	if target {
		err = tr.PowerOn(ctx)
		settle = powerOnSettle
	} else {
		err = tr.PowerOff(ctx)
	}
	if err != nil {
		return err
	}

	d.clock.Sleep(settle)

	got, err := d.direct.PowerState(ctx)
	if err != nil {
		return fmt.Errorf("verify power state: %w", err)
	}
	if got != target {
		return errNoStateChange
	}
	return nil
}

func (d *Detector) restorePower(ctx context.Context, target bool) {
	if err := d.flipAndVerify(ctx, d.direct, target); err == nil {
		return
	}
	if err := d.flipAndVerify(ctx, d.library, target); err == nil {
		return
	}
	d.logger.Warn("failed to restore power state after probe", zap.Bool("target", target))
}

// probeInputSet needs the device on and at least two distinct inputs: it
// switches to any other input, verifies via the direct client, and switches
// back through whichever transport just proved itself.
func (d *Detector) probeInputSet(ctx context.Context, m *Matrix) {
	on, err := d.direct.PowerState(ctx)
	if err != nil || !on {
		d.logger.Debug("input-set probes skipped: device not verifiably on")
		return
	}

	inputs, err := d.direct.InputList(ctx)
	if err != nil || len(inputs) < 2 {
		d.logger.Debug("input-set probes skipped: need at least two inputs", zap.Int("inputs", len(inputs)))
		return
	}

	current, err := d.direct.CurrentInput(ctx)
	if err != nil || current == nil {
		d.logger.Debug("input-set probes skipped: cannot read current input", zap.Error(err))
		return
	}

	var other string
	for _, in := range inputs {
		if !strings.EqualFold(in.Name, current.Name) {
			other = in.Name
			break
		}
	}
	if other == "" {
		d.logger.Debug("input-set probes skipped: all inputs share one name")
		return
	}

	for _, side := range d.sides(m, OpInputSet) {
		tr := side.tr
		state := d.probe(ctx, OpInputSet, side.name, func(ctx context.Context) error {
			return d.switchAndVerify(ctx, tr, other)
		})
		side.record(state)
		if state == Works {
			if err := d.switchAndVerify(ctx, tr, current.Name); err != nil {
				d.logger.Warn("failed to restore input after probe",
					zap.String("input", current.Name), zap.Error(err))
			}
		}
	}
}

func (d *Detector) switchAndVerify(ctx context.Context, tr Transport, name string) error {
	if err := tr.SetInput(ctx, name); err != nil {
		return err
	}
	d.clock.Sleep(inputSettle)

	got, err := d.direct.CurrentInput(ctx)
	if err != nil {
		return fmt.Errorf("verify current input: %w", err)
	}
	if got == nil || !strings.EqualFold(got.Name, name) {
		return errNoStateChange
	}
	return nil
}

// finalize resolves every remaining Unknown to Broken: a mutating operation
// whose precondition never held during this run is treated as not working,
// so the matrix is always complete afterwards.
func (d *Detector) finalize(m *Matrix) {
	for _, op := range Operations {
		if m.Direct(op) == Unknown {
			m.SetDirect(op, Broken)
			d.logger.Debug("unprobed operation marked broken",
				zap.String("op", string(op)), zap.String("transport", "direct"))
		}
		if m.Library(op) == Unknown {
			m.SetLibrary(op, Broken)
			d.logger.Debug("unprobed operation marked broken",
				zap.String("op", string(op)), zap.String("transport", "library"))
		}
	}
}
