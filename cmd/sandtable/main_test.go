package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMove(t *testing.T) {
	m, err := parseMove([]string{"100", "45"}, 3000)
	require.NoError(t, err)
	require.NotNil(t, m.R)
	require.NotNil(t, m.Theta)
	require.NotNil(t, m.Speed)
	assert.InDelta(t, 100.0, *m.R, 1e-9)
	assert.InDelta(t, 45.0, *m.Theta, 1e-9)
	assert.InDelta(t, 3000.0, *m.Speed, 1e-9)

	m, err = parseMove([]string{"10", "-90", "1500"}, 3000)
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, *m.Speed, 1e-9)

	_, err = parseMove([]string{"10"}, 3000)
	require.Error(t, err)

	_, err = parseMove([]string{"10", "x"}, 3000)
	require.Error(t, err)

	_, err = parseMove([]string{"1", "2", "3", "4"}, 3000)
	require.Error(t, err)
}
