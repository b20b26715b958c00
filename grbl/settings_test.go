package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettingLine(t *testing.T) {
	key, value, err := ParseSettingLine("$110=10000.000")
	require.NoError(t, err)
	assert.Equal(t, 110, key)
	assert.InDelta(t, 10000.0, value, 1e-9)

	key, value, err = ParseSettingLine("$11=0.010")
	require.NoError(t, err)
	assert.Equal(t, 11, key)
	assert.InDelta(t, 0.01, value, 1e-12)

	for _, line := range []string{"110=1", "$=1", "$x=1", "$1=", "$1=abc", "$1"} {
		_, _, err := ParseSettingLine(line)
		require.ErrorIs(t, err, ErrInvalidSettingLine, line)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Len(t, s, 34)
	assert.InDelta(t, 10.0, s[0], 1e-12)
	assert.InDelta(t, 22.222, s[102], 1e-12)
	assert.InDelta(t, 200.0, s[132], 1e-12)
	assert.Equal(t, "homing cycle", SettingName(22))
	assert.Empty(t, SettingName(99))

	// callers get their own copy
	s[0] = 1
	assert.InDelta(t, 10.0, DefaultSettings()[0], 1e-12)
}

func TestSettings_Diff(t *testing.T) {
	want := Settings{0: 10, 11: 0.01, 102: 22.222}
	have := Settings{0: 10, 11: 0.0100001, 102: 22.2, 200: 1}

	assert.Equal(t, []int{102}, have.Diff(want))
	assert.False(t, have.Matches(want))

	have[102] = 22.222
	assert.True(t, have.Matches(want), "keys not wanted are ignored")

	delete(have, 0)
	assert.Equal(t, []int{0}, have.Diff(want))
}

func TestSettings_Keys(t *testing.T) {
	assert.Equal(t, []int{1, 20, 100}, Settings{100: 0, 1: 0, 20: 0}.Keys())
}
