package grbl

import (
	"fmt"
	"math"
)

// Travel bounds of the radius axis in millimeters: the dish radius of
// 280 mm minus half the 14 mm marble.
const (
	RMin = 0.0
	RMax = 273.0
)

// Device buffer sizes. Reported occupancy is the free space, so an empty
// planner reports PlannerBufferMax.
const (
	PlannerBufferMax = 15
	RxBufferMax      = 128
)

// movePrecision is the number of decimals a move is rounded to before it
// is compared against the limits.
const movePrecision = 3

// Move is a target in polar coordinates. Nil fields are unset.
type Move struct {
	R     *float64 // mm
	Theta *float64 // degrees
	// ThetaUnwrapped is the angle sent to the device; it is never reduced
	// modulo 360.
	ThetaUnwrapped *float64
	Speed          *float64 // mm/min
	Received       bool
}

// NewMove returns a move with radius, angle and speed set.
func NewMove(r, theta, speed float64) Move {
	return Move{R: &r, Theta: &theta, Speed: &speed}
}

// Float returns a pointer to v, for building moves field by field.
func Float(v float64) *float64 { return &v }

// IsEmpty reports whether the move carries no radius, angle or speed.
func (m Move) IsEmpty() bool {
	return m.R == nil && m.Theta == nil && m.Speed == nil
}

func (m Move) String() string {
	return fmt.Sprintf("Move(r=%s, theta=%s, theta_unwrapped=%s, speed=%s, received=%t)",
		fmtOpt(m.R), fmtOpt(m.Theta), fmtOpt(m.ThetaUnwrapped), fmtOpt(m.Speed), m.Received)
}

func fmtOpt(v *float64) string {
	if v == nil {
		return "nil"
	}

	return fmt.Sprintf("%.3f", *v)
}

// clone copies the pointed-to values so later edits do not alias.
func (m Move) clone() Move {
	c := Move{Received: m.Received}
	if m.R != nil {
		c.R = Float(*m.R)
	}
	if m.Theta != nil {
		c.Theta = Float(*m.Theta)
	}
	if m.ThetaUnwrapped != nil {
		c.ThetaUnwrapped = Float(*m.ThetaUnwrapped)
	}
	if m.Speed != nil {
		c.Speed = Float(*m.Speed)
	}

	return c
}

func originMove() Move {
	return Move{R: Float(0), Theta: Float(0), ThetaUnwrapped: Float(0)}
}

// LimitFlags tracks which limits the table is at.
type LimitFlags struct {
	SoftRMin  bool
	SoftRMax  bool
	HardRMin  bool
	HardRMax  bool
	ThetaZero bool
}

// MotionState is the last known state of the device.
type MotionState struct {
	Status        MachineState
	PosR          float64
	PosTheta      float64
	FeedRate      float64
	PlannerBuffer int
	RxBuffer      int
	PinX          bool
	PinY          bool

	Limits LimitFlags

	rMin float64
	rMax float64
}

// NewMotionState returns the state assumed before the first status report:
// empty buffers and every radius limit considered hit until proven otherwise.
func NewMotionState(rMin, rMax float64) MotionState {
	return MotionState{
		PlannerBuffer: PlannerBufferMax,
		RxBuffer:      RxBufferMax,
		Limits: LimitFlags{
			SoftRMin: true,
			SoftRMax: true,
			HardRMin: true,
			HardRMax: true,
		},
		rMin: rMin,
		rMax: rMax,
	}
}

// Apply updates the state from a status report and recomputes the radius
// limits. ThetaZero is owned by the proximity sensor and left untouched.
func (s *MotionState) Apply(rep StatusReport) {
	s.Status = rep.State
	s.PosR = rep.R
	s.PosTheta = rep.Theta
	if rep.HasFeed {
		s.FeedRate = rep.FeedRate
	}
	if rep.HasBuffer {
		s.PlannerBuffer = rep.PlannerBuffer
		s.RxBuffer = rep.RxBuffer
	}
	s.PinX = rep.PinX()
	s.PinY = rep.PinY()

	s.Limits.SoftRMin = s.PosR <= s.rMin
	s.Limits.SoftRMax = s.PosR >= s.rMax
	s.Limits.HardRMin = s.PinX
	s.Limits.HardRMax = s.PinY
}

// HasBufferSpace reports whether the planner can take another move.
func (s *MotionState) HasBufferSpace() bool {
	return s.PlannerBuffer >= 1
}

// CheckMove validates m against the current limits, rounding its radius
// and angles in place first. While homing the soft limits and travel
// bounds are not enforced because the position cannot be trusted.
func (s *MotionState) CheckMove(m *Move, homing bool) error {
	if m.R == nil {
		return fmt.Errorf("%w: %s has no radius", ErrMoveRejected, m)
	}
	if m.Theta == nil && m.ThetaUnwrapped == nil {
		return fmt.Errorf("%w: %s has no angle", ErrMoveRejected, m)
	}

	roundField(m.R)
	roundField(m.Theta)
	roundField(m.ThetaUnwrapped)

	r := *m.R
	if s.Limits.HardRMin && r < s.PosR {
		return fmt.Errorf("%w: %s is into the hard r_min limit switch", ErrMoveRejected, m)
	}
	if s.Limits.HardRMax && r > s.PosR {
		return fmt.Errorf("%w: %s is into the hard r_max limit switch", ErrMoveRejected, m)
	}

	if !homing && r != s.PosR {
		switch {
		case s.Limits.SoftRMin && r < s.PosR:
			return fmt.Errorf("%w: %s is into the soft r_min limit", ErrMoveRejected, m)
		case s.Limits.SoftRMax && r > s.PosR:
			return fmt.Errorf("%w: %s is into the soft r_max limit", ErrMoveRejected, m)
		case r > s.rMax || r < s.rMin:
			return fmt.Errorf("%w: %s is out of bounds [%.0f, %.0f]", ErrMoveRejected, m, s.rMin, s.rMax)
		}
	}

	return nil
}

func roundField(v *float64) {
	if v == nil {
		return
	}
	p := math.Pow10(movePrecision)
	*v = math.Round(*v*p) / p
}

// SetAngleUnwrapped sets next.ThetaUnwrapped so that it differs from
// prev.ThetaUnwrapped by the shortest signed rotation from prev.Theta to
// next.Theta. It returns false if either angle is missing.
func SetAngleUnwrapped(prev Move, next *Move) bool {
	if next.Theta == nil {
		return false
	}
	if prev.Theta == nil || prev.ThetaUnwrapped == nil {
		return false
	}

	delta := *next.Theta - *prev.Theta
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}

	next.ThetaUnwrapped = Float(*prev.ThetaUnwrapped + delta)

	return true
}
