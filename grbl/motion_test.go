package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAngleUnwrapped(t *testing.T) {
	tests := []struct {
		name      string
		prevTheta float64
		prevUnwr  float64
		nextTheta float64
		want      float64
	}{
		{"wrap forward through 180", 170, 170, -170, 190},
		{"wrap backward through 0", 10, 10, 350, -10},
		{"keeps accumulated turns", 10, 730, 350, 710},
		{"small step", 90, 450, 100, 460},
		{"exact half turn", 0, 0, 180, 180},
		{"negative half turn", 180, 180, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Move{Theta: Float(tt.prevTheta), ThetaUnwrapped: Float(tt.prevUnwr)}
			next := Move{Theta: Float(tt.nextTheta)}

			require.True(t, SetAngleUnwrapped(prev, &next))
			assert.InDelta(t, tt.want, *next.ThetaUnwrapped, 1e-9)
			assert.LessOrEqual(t, abs(*next.ThetaUnwrapped-tt.prevUnwr), 180.0)
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

func TestSetAngleUnwrapped_Missing(t *testing.T) {
	next := Move{}
	assert.False(t, SetAngleUnwrapped(originMove(), &next))

	next = Move{Theta: Float(10)}
	assert.False(t, SetAngleUnwrapped(Move{Theta: Float(0)}, &next))
	assert.Nil(t, next.ThetaUnwrapped)
}

func TestMotionState_Apply(t *testing.T) {
	s := NewMotionState(RMin, RMax)
	assert.True(t, s.Limits.SoftRMin)
	assert.True(t, s.Limits.HardRMax)
	assert.True(t, s.HasBufferSpace())

	s.Limits.ThetaZero = true
	s.Apply(StatusReport{State: StateIdle, R: 12, Theta: 45, HasBuffer: true, PlannerBuffer: 0, RxBuffer: 100})

	assert.Equal(t, StateIdle, s.Status)
	assert.InDelta(t, 12.0, s.PosR, 1e-9)
	assert.InDelta(t, 45.0, s.PosTheta, 1e-9)
	assert.Equal(t, LimitFlags{ThetaZero: true}, s.Limits)
	assert.False(t, s.HasBufferSpace())

	s.Apply(StatusReport{State: StateAlarm, R: 0, Pins: "X"})
	assert.True(t, s.Limits.SoftRMin)
	assert.True(t, s.Limits.HardRMin)
	assert.False(t, s.Limits.HardRMax)
	assert.Equal(t, 0, s.PlannerBuffer, "buffer kept when not reported")

	s.Apply(StatusReport{State: StateIdle, R: 273, Pins: "Y"})
	assert.True(t, s.Limits.SoftRMax)
	assert.True(t, s.Limits.HardRMax)
	assert.False(t, s.Limits.HardRMin)
}

func TestMotionState_CheckMove_HardLimit(t *testing.T) {
	s := NewMotionState(RMin, RMax)
	s.Apply(StatusReport{State: StateIdle, R: 5, Pins: "X"})

	into := NewMove(3, 0, 3000)
	require.ErrorIs(t, s.CheckMove(&into, false), ErrMoveRejected)

	away := NewMove(8, 0, 3000)
	require.NoError(t, s.CheckMove(&away, false))

	s.Apply(StatusReport{State: StateIdle, R: 200, Pins: "Y"})
	out := NewMove(210, 0, 3000)
	require.ErrorIs(t, s.CheckMove(&out, true), ErrMoveRejected, "hard limits hold while homing")
}

func TestMotionState_CheckMove_SoftLimit(t *testing.T) {
	s := NewMotionState(RMin, RMax)
	s.Apply(StatusReport{State: StateIdle, R: 0})
	require.True(t, s.Limits.SoftRMin)

	inward := NewMove(-1, 0, 3000)
	require.ErrorIs(t, s.CheckMove(&inward, false), ErrMoveRejected)
	require.NoError(t, s.CheckMove(&inward, true), "soft limits are ignored while homing")

	outward := NewMove(10, 0, 3000)
	require.NoError(t, s.CheckMove(&outward, false))

	stay := NewMove(0, 90, 3000)
	require.NoError(t, s.CheckMove(&stay, false))

	s.Apply(StatusReport{State: StateIdle, R: 100})
	tooFar := NewMove(300, 0, 3000)
	require.ErrorIs(t, s.CheckMove(&tooFar, false), ErrMoveRejected)
}

func TestMotionState_CheckMove_Rounding(t *testing.T) {
	s := NewMotionState(RMin, RMax)
	s.Apply(StatusReport{State: StateIdle, R: 273})

	// equal to the position once rounded, so no soft limit check applies
	m := NewMove(273.0004, 12.34567, 3000)
	require.NoError(t, s.CheckMove(&m, false))
	assert.InDelta(t, 273.0, *m.R, 1e-12)
	assert.InDelta(t, 12.346, *m.Theta, 1e-12)
}

func TestMotionState_CheckMove_Incomplete(t *testing.T) {
	s := NewMotionState(RMin, RMax)
	s.Apply(StatusReport{State: StateIdle, R: 50})

	noAngle := Move{R: Float(60)}
	require.ErrorIs(t, s.CheckMove(&noAngle, false), ErrMoveRejected)

	noRadius := Move{Theta: Float(60)}
	require.ErrorIs(t, s.CheckMove(&noRadius, false), ErrMoveRejected)

	unwrappedOnly := Move{R: Float(60), ThetaUnwrapped: Float(720)}
	require.NoError(t, s.CheckMove(&unwrappedOnly, false))
}

func TestMove(t *testing.T) {
	assert.True(t, Move{}.IsEmpty())
	assert.True(t, Move{ThetaUnwrapped: Float(1)}.IsEmpty())
	assert.False(t, Move{Speed: Float(1)}.IsEmpty())

	m := NewMove(1, 2, 3)
	c := m.clone()
	*c.R = 10
	assert.InDelta(t, 1.0, *m.R, 1e-12)
	assert.Equal(t, "Move(r=1.000, theta=2.000, theta_unwrapped=nil, speed=3.000, received=false)", m.String())
}
