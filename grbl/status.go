package grbl

import (
	"fmt"
	"strconv"
	"strings"
)

// MachineState is the state field of a status report.
type MachineState string

const (
	StateUnknown MachineState = ""
	StateIdle    MachineState = "Idle"
	StateRun     MachineState = "Run"
	StateHold    MachineState = "Hold"
	StateAlarm   MachineState = "Alarm"
	StateHome    MachineState = "Home"
	StateJog     MachineState = "Jog"
	StateDoor    MachineState = "Door"
	StateCheck   MachineState = "Check"
	StateSleep   MachineState = "Sleep"
)

// StatusReport is a parsed real-time status report, e.g.
//
//	<Idle|MPos:12.000,45.000,0.000|FS:0,0|Bf:15,128|Pn:X>
//
// The X axis carries the radius and the second machine axis the angle.
type StatusReport struct {
	State MachineState
	R     float64
	Theta float64

	HasFeed      bool
	FeedRate     float64
	SpindleSpeed float64

	HasBuffer     bool
	PlannerBuffer int
	RxBuffer      int

	// Pins lists the letters of the tripped input pins, empty if none.
	Pins string
}

// PinX reports whether the X limit pin is tripped.
func (r StatusReport) PinX() bool { return strings.Contains(r.Pins, "X") }

// PinY reports whether the Y limit pin is tripped.
func (r StatusReport) PinY() bool { return strings.Contains(r.Pins, "Y") }

// ParseStatus parses a status report line.
func ParseStatus(line string) (StatusReport, error) {
	var rep StatusReport

	start := strings.IndexByte(line, '<')
	end := strings.LastIndexByte(line, '>')
	if start < 0 || end <= start {
		return rep, fmt.Errorf("%w: %q", ErrInvalidStatus, line)
	}

	fields := strings.Split(line[start+1:end], "|")

	// "Hold:0" and "Door:1" carry a sub-state
	state, _, _ := strings.Cut(fields[0], ":")
	rep.State = MachineState(state)
	if rep.State == StateUnknown {
		return rep, fmt.Errorf("%w: missing state in %q", ErrInvalidStatus, line)
	}

	hasPos := false
	for _, field := range fields[1:] {
		name, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}

		switch name {
		case "MPos":
			nums, err := parseFloats(value)
			if err != nil || len(nums) < 2 {
				return rep, fmt.Errorf("%w: bad MPos %q", ErrInvalidStatus, value)
			}
			rep.R, rep.Theta = nums[0], nums[1]
			hasPos = true
		case "FS", "F", "FR":
			nums, err := parseFloats(value)
			if err != nil || len(nums) < 1 {
				return rep, fmt.Errorf("%w: bad feed %q", ErrInvalidStatus, value)
			}
			rep.HasFeed = true
			rep.FeedRate = nums[0]
			if len(nums) > 1 {
				rep.SpindleSpeed = nums[1]
			}
		case "Bf":
			nums, err := parseFloats(value)
			if err != nil || len(nums) != 2 {
				return rep, fmt.Errorf("%w: bad buffer state %q", ErrInvalidStatus, value)
			}
			rep.HasBuffer = true
			rep.PlannerBuffer, rep.RxBuffer = int(nums[0]), int(nums[1])
		case "Pn":
			rep.Pins = value
		}
	}

	if !hasPos {
		return rep, fmt.Errorf("%w: missing MPos in %q", ErrInvalidStatus, line)
	}

	return rep, nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	nums := make([]float64, 0, len(parts))

	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		nums = append(nums, v)
	}

	return nums, nil
}
