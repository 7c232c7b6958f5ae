package indi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber_Decimal(t *testing.T) {
	v, err := ParseNumber("40")
	require.NoError(t, err)
	assert.Equal(t, 40.0, v)
}

func TestParseNumber_Scientific(t *testing.T) {
	v, err := ParseNumber("1.5e3")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, v)
}

func TestParseNumber_Sexagesimal(t *testing.T) {
	v, err := ParseNumber("10:30:00")
	require.NoError(t, err)
	assert.InDelta(t, 10.5, v, 0.0001)
}

func TestParseNumber_NegativeSexagesimal(t *testing.T) {
	v, err := ParseNumber("-123:45")
	require.NoError(t, err)
	assert.InDelta(t, -123.75, v, 0.0001)
}

func TestParseNumber_Invalid(t *testing.T) {
	_, err := ParseNumber("not-a-number")
	require.Error(t, err)

	var nfe *NumberFormatError
	assert.ErrorAs(t, err, &nfe)
}

// FormatNumber sexagesimal examples.
func TestFormatNumber_Sexagesimal(t *testing.T) {
	s, err := FormatNumber(-123.75, "%7.3m")
	require.NoError(t, err)
	assert.Equal(t, "-123:45", s)

	s, err = FormatNumber(1.0/60+2.0/3600, "%9.6m")
	require.NoError(t, err)
	assert.Equal(t, "  0:01:02", s)
}

func TestFormatNumber_PlainFloat(t *testing.T) {
	s, err := FormatNumber(20.0, "%3.1f")
	require.NoError(t, err)
	assert.Equal(t, "20.0", s)
}

func TestFormatNumber_RoundTripsThroughParse(t *testing.T) {
	s, err := FormatNumber(45.5, "%6.5m")
	require.NoError(t, err)

	v, err := ParseNumber(s)
	require.NoError(t, err)
	assert.InDelta(t, 45.5, v, 0.05)
}
