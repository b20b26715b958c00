package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReading(t *testing.T) {
	r, err := ParseReading("10000000000000101")
	require.NoError(t, err)

	assert.True(t, r.ThetaZero)
	assert.Equal(t, []int{0, 13}, r.Touched())

	r, err = ParseReading("00000000000000000")
	require.NoError(t, err)
	assert.False(t, r.ThetaZero)
	assert.Empty(t, r.Touched())
}

func TestParseReading_Invalid(t *testing.T) {
	for _, line := range []string{
		"",
		"0000000000000000",
		"000000000000000000",
		"0000000000000000x",
		"ok 00000000000000",
	} {
		_, err := ParseReading(line)
		assert.ErrorIs(t, err, ErrInvalidReading, "line %q", line)
	}
}
