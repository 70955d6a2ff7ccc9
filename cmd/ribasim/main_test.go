package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstantAcceptsSecondsOrRFC3339(t *testing.T) {
	v, err := parseInstant("123.5")
	require.NoError(t, err)
	assert.InDelta(t, 123.5, v, 1e-9)

	v, err = parseInstant("1970-01-01T00:02:03Z")
	require.NoError(t, err)
	assert.InDelta(t, 123, v, 1e-9)

	_, err = parseInstant("not-a-time")
	require.Error(t, err)
}

func TestParseWindowMapsStartToZero(t *testing.T) {
	start, end, err := parseWindow("1970-01-01T00:00:00Z", "1970-01-01T01:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 0.0, start)
	assert.InDelta(t, 3600, end, 1e-9)

	_, _, err = parseWindow("bogus", "0")
	require.Error(t, err)
}
