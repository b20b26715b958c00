package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	rep, err := ParseStatus("<Idle|MPos:12.000,45.000|FR:0|Bf:15,128>")
	require.NoError(t, err)

	assert.Equal(t, StateIdle, rep.State)
	assert.InDelta(t, 12.0, rep.R, 1e-9)
	assert.InDelta(t, 45.0, rep.Theta, 1e-9)
	assert.True(t, rep.HasFeed)
	assert.True(t, rep.HasBuffer)
	assert.Equal(t, 15, rep.PlannerBuffer)
	assert.Equal(t, 128, rep.RxBuffer)
	assert.False(t, rep.PinX())
	assert.False(t, rep.PinY())
}

func TestParseStatus_Grbl11(t *testing.T) {
	rep, err := ParseStatus("<Hold:0|MPos:100.500,-370.250,0.000|FS:2500,0|Bf:3,97|Pn:XY|WCO:0.000,0.000,0.000>")
	require.NoError(t, err)

	assert.Equal(t, StateHold, rep.State)
	assert.InDelta(t, 100.5, rep.R, 1e-9)
	assert.InDelta(t, -370.25, rep.Theta, 1e-9)
	assert.InDelta(t, 2500.0, rep.FeedRate, 1e-9)
	assert.Equal(t, 3, rep.PlannerBuffer)
	assert.Equal(t, 97, rep.RxBuffer)
	assert.True(t, rep.PinX())
	assert.True(t, rep.PinY())
}

func TestParseStatus_Optional(t *testing.T) {
	rep, err := ParseStatus("<Run|MPos:1,2|F:500>")
	require.NoError(t, err)

	assert.Equal(t, StateRun, rep.State)
	assert.InDelta(t, 500.0, rep.FeedRate, 1e-9)
	assert.False(t, rep.HasBuffer)
	assert.Empty(t, rep.Pins)
}

func TestParseStatus_Invalid(t *testing.T) {
	for _, line := range []string{
		"Idle|MPos:0,0",
		"<>",
		"<Idle|FS:0,0>",
		"<Idle|MPos:abc,0>",
		"<Idle|MPos:1>",
		"<Idle|MPos:1,2|Bf:15>",
		"<Idle|MPos:1,2|FS:x,0>",
	} {
		_, err := ParseStatus(line)
		require.ErrorIs(t, err, ErrInvalidStatus, line)
	}
}
