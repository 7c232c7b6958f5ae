package indi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPolicy_AdmissionTable exercises every BLOB/non-BLOB combination
// across each admission mode.
func TestPolicy_AdmissionTable(t *testing.T) {
	cases := []struct {
		mode   BlobEnable
		isBlob bool
		admit  bool
	}{
		{BlobNever, true, false},
		{BlobAlso, true, true},
		{BlobOnly, true, true},
		{BlobOnly, false, false},
		{BlobNever, false, true},
		{BlobAlso, false, true},
	}

	for _, c := range cases {
		p := NewPolicy(c.mode)
		got := p.Admit(c.isBlob, "cam", "v")
		assert.Equalf(t, c.admit, got, "mode=%s isBlob=%v", c.mode, c.isBlob)
	}
}

func TestPolicy_Precedence_VectorOverDeviceOverDefault(t *testing.T) {
	p := NewPolicy(BlobNever)
	require.NoError(t, p.Update("cam", "", BlobAlso))
	require.NoError(t, p.Update("cam", "v1", BlobOnly))

	assert.Equal(t, BlobOnly, p.effective("cam", "v1"))
	assert.Equal(t, BlobAlso, p.effective("cam", "v2"))
	assert.Equal(t, BlobNever, p.effective("other", "v1"))
}

func TestPolicy_RejectsInvalidValue(t *testing.T) {
	p := NewPolicy(BlobNever)
	err := p.Update("cam", "", BlobEnable("Sometimes"))
	assert.ErrorIs(t, err, ErrInvalidBlobEnable)
}

// TestPolicy_ScenarioBLOBFanout checks three independently configured
// client policies reacting to a BLOB and a non-BLOB message on the same
// device, each admitting or suppressing according to its own mode.
func TestPolicy_ScenarioBLOBFanout(t *testing.T) {
	clientA := NewPolicy(BlobNever)
	require.NoError(t, clientA.Update("cam", "", BlobNever))

	clientB := NewPolicy(BlobNever)
	require.NoError(t, clientB.Update("cam", "", BlobOnly))

	clientC := NewPolicy(BlobNever)

	assert.False(t, clientA.Admit(true, "cam", "v"))
	assert.True(t, clientB.Admit(true, "cam", "v"))
	assert.False(t, clientC.Admit(true, "cam", "v"))

	assert.True(t, clientA.Admit(false, "cam", "v"))
	assert.False(t, clientB.Admit(false, "cam", "v"))
	assert.True(t, clientC.Admit(false, "cam", "v"))
}
