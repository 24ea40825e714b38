// Package device contains the control core: the per-unit capability matrix,
// the setup-time capability detector, the retry/verify command executor, and
// the media-player entity that ties them to a platform surface.
package device

// Operation is one logical device operation tracked by the capability
// matrix. Both transports implement every operation; whether either actually
// works on a given physical unit is only knowable by probing it.
type Operation string

const (
	OpPowerState   Operation = "power_state"
	OpPowerOn      Operation = "power_on"
	OpPowerOff     Operation = "power_off"
	OpInputList    Operation = "input_list"
	OpInputSet     Operation = "input_set"
	OpCurrentInput Operation = "current_input"
	OpVolumeGet    Operation = "volume_get"
	OpVolumeSet    Operation = "volume_set"
	OpDeviceInfo   Operation = "device_info"
)

// Operations lists every tracked operation, in probe order.
var Operations = []Operation{
	OpPowerState,
	OpPowerOn,
	OpPowerOff,
	OpInputList,
	OpInputSet,
	OpCurrentInput,
	OpVolumeGet,
	OpVolumeSet,
	OpDeviceInfo,
}

// TriState is the probe result for one operation on one transport. Unknown
// exists only before detection; a completed matrix holds Works or Broken.
type TriState int

const (
	Unknown TriState = iota
	Works
	Broken
)

func (s TriState) String() string {
	switch s {
	case Works:
		return "works"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// TransportKind identifies which transport the dispatcher selected.
type TransportKind int

const (
	// TransportNone means neither transport works; callers log and no-op.
	TransportNone TransportKind = iota
	// TransportDirect is the direct protocol client.
	TransportDirect
	// TransportLibrary is the vendor SDK wrapper.
	TransportLibrary
)

func (k TransportKind) String() string {
	switch k {
	case TransportDirect:
		return "direct"
	case TransportLibrary:
		return "library"
	default:
		return "none"
	}
}

type capabilityRecord struct {
	Direct  TriState
	Library TriState
}

// Matrix records, per operation, whether each transport works on one
// physical unit. It is populated serially by the detector during setup and
// treated as immutable afterwards; each entity owns its own matrix.
type Matrix struct {
	records map[Operation]*capabilityRecord
}

// NewMatrix creates a matrix with every flag Unknown.
func NewMatrix() *Matrix {
	m := &Matrix{records: make(map[Operation]*capabilityRecord, len(Operations))}
	for _, op := range Operations {
		m.records[op] = &capabilityRecord{}
	}
	return m
}

// SetDirect records the direct transport's probe result for op.
func (m *Matrix) SetDirect(op Operation, s TriState) {
	m.records[op].Direct = s
}

// SetLibrary records the library transport's probe result for op.
func (m *Matrix) SetLibrary(op Operation, s TriState) {
	m.records[op].Library = s
}

// Direct returns the direct transport's flag for op.
func (m *Matrix) Direct(op Operation) TriState {
	return m.records[op].Direct
}

// Library returns the library transport's flag for op.
func (m *Matrix) Library(op Operation) TriState {
	return m.records[op].Library
}

// Complete reports whether every flag has been resolved to Works or Broken.
func (m *Matrix) Complete() bool {
	for _, rec := range m.records {
		if rec.Direct == Unknown || rec.Library == Unknown {
			return false
		}
	}
	return true
}

// Best is the dispatcher: the preferred transport for op, direct over
// library when both work, TransportNone when neither does. Pure and
// recomputed on demand; never cached.
func (m *Matrix) Best(op Operation) TransportKind {
	rec := m.records[op]
	switch {
	case rec.Direct == Works:
		return TransportDirect
	case rec.Library == Works:
		return TransportLibrary
	default:
		return TransportNone
	}
}

// Summary maps each operation to its chosen transport name, for diagnostics.
func (m *Matrix) Summary() map[string]string {
	out := make(map[string]string, len(Operations))
	for _, op := range Operations {
		out[string(op)] = m.Best(op).String()
	}
	return out
}
