package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrixBestPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		direct  TriState
		library TriState
		want    TransportKind
	}{
		{"both work prefers direct", Works, Works, TransportDirect},
		{"direct only", Works, Broken, TransportDirect},
		{"library only", Broken, Works, TransportLibrary},
		{"both broken", Broken, Broken, TransportNone},
		{"unknown is not works", Unknown, Unknown, TransportNone},
		{"direct unknown library works", Unknown, Works, TransportLibrary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatrix()
			m.SetDirect(OpPowerOn, tt.direct)
			m.SetLibrary(OpPowerOn, tt.library)
			assert.Equal(t, tt.want, m.Best(OpPowerOn))
		})
	}
}

func TestMatrixComplete(t *testing.T) {
	m := NewMatrix()
	assert.False(t, m.Complete())

	for _, op := range Operations {
		m.SetDirect(op, Works)
	}
	assert.False(t, m.Complete(), "library flags still unknown")

	for _, op := range Operations {
		m.SetLibrary(op, Broken)
	}
	assert.True(t, m.Complete())
}

func TestMatrixSummary(t *testing.T) {
	m := NewMatrix()
	m.SetDirect(OpPowerState, Works)
	m.SetLibrary(OpInputSet, Works)

	sum := m.Summary()
	assert.Equal(t, "direct", sum["power_state"])
	assert.Equal(t, "library", sum["input_set"])
	assert.Equal(t, "none", sum["device_info"])
	assert.Len(t, sum, len(Operations))
}
