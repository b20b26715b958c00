// Package sensor reads the touch and proximity sensor board of the table.
//
// The board prints one line per sample: 16 touch digits followed by one
// proximity digit, e.g. "00000000000000101". The proximity switch marks
// the zero angle of the table.
package sensor

import (
	"errors"
	"fmt"
)

const (
	// TouchCount is the number of touch pads on the board.
	TouchCount = 16
	// LineLength is the length of a sample line.
	LineLength = TouchCount + 1
)

// ErrInvalidReading is returned for a line that is not a sample.
var ErrInvalidReading = errors.New("sensor: invalid reading")

// Reading is one sample of the board.
type Reading struct {
	Touch     [TouchCount]bool
	ThetaZero bool
}

// Touched returns the indexes of the pads being touched.
func (r Reading) Touched() []int {
	var idx []int
	for i, on := range r.Touch {
		if on {
			idx = append(idx, i)
		}
	}

	return idx
}

// ParseReading parses a sample line.
func ParseReading(line string) (Reading, error) {
	var r Reading

	if len(line) != LineLength {
		return r, fmt.Errorf("%w: want %d characters, got %d in %q", ErrInvalidReading, LineLength, len(line), line)
	}

	for i := 0; i < LineLength; i++ {
		c := line[i]
		if c < '0' || c > '9' {
			return r, fmt.Errorf("%w: non-digit %q at %d", ErrInvalidReading, c, i)
		}

		on := c != '0'
		if i < TouchCount {
			r.Touch[i] = on
		} else {
			r.ThetaZero = on
		}
	}

	return r, nil
}
