package grbl

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Settings maps firmware setting keys to values.
type Settings map[int]float64

type settingInfo struct {
	name  string
	value float64
}

// settingTable is the firmware key set with the values the table runs with.
var settingTable = map[int]settingInfo{
	0:   {"step pulse, us", 10},
	1:   {"step idle delay, ms", 25},
	2:   {"step port invert mask", 0},
	3:   {"direction port invert mask", 4},
	4:   {"step enable invert", 0},
	5:   {"limit pins invert", 0},
	6:   {"probe pin invert", 0},
	10:  {"status report mask", 255},
	11:  {"junction deviation, mm", 0.010},
	12:  {"arc tolerance, mm", 0.002},
	13:  {"report inches", 0},
	20:  {"soft limits", 0},
	21:  {"hard limits", 1},
	22:  {"homing cycle", 1},
	23:  {"homing direction invert mask", 3},
	24:  {"homing feed, mm/min", 100},
	25:  {"homing seek, mm/min", 3000},
	26:  {"homing debounce, ms", 250},
	27:  {"homing pull-off, mm", 8},
	30:  {"max spindle speed, rpm", 1000},
	31:  {"min spindle speed, rpm", 0},
	32:  {"laser mode", 0},
	100: {"x steps/mm", 40},
	101: {"y steps/mm", 40},
	102: {"z steps/deg", 22.222},
	110: {"x max rate, mm/min", 10000},
	111: {"y max rate, mm/min", 10000},
	112: {"z max rate, mm/min", 10000},
	120: {"x acceleration, mm/s^2", 50},
	121: {"y acceleration, mm/s^2", 50},
	122: {"z acceleration, mm/s^2", 10},
	130: {"x max travel, mm", 550},
	131: {"y max travel, mm", 345},
	132: {"z max travel, mm", 200},
}

// DefaultSettings returns a fresh copy of the settings the table expects.
func DefaultSettings() Settings {
	s := make(Settings, len(settingTable))
	for k, info := range settingTable {
		s[k] = info.value
	}

	return s
}

// SettingName returns a short description of key, or "" if unknown.
func SettingName(key int) string {
	return settingTable[key].name
}

// Keys returns the keys in ascending order.
func (s Settings) Keys() []int {
	return slices.Sorted(maps.Keys(s))
}

// Matches reports whether every key of want is present in s with the same
// value. Keys only present in s are ignored.
func (s Settings) Matches(want Settings) bool {
	return len(s.Diff(want)) == 0
}

// Diff returns, in ascending order, the keys of want that are missing from
// s or differ from it.
func (s Settings) Diff(want Settings) []int {
	var diff []int
	for _, k := range want.Keys() {
		have, ok := s[k]
		if !ok || !sameSetting(have, want[k]) {
			diff = append(diff, k)
		}
	}

	return diff
}

// sameSetting compares at the three decimals the firmware reports.
func sameSetting(a, b float64) bool {
	return math.Round(a*1000) == math.Round(b*1000)
}

// ParseSettingLine parses a "$<key>=<value>" line.
func ParseSettingLine(line string) (int, float64, error) {
	_, rest, ok := strings.Cut(line, "$")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSettingLine, line)
	}

	keyStr, valStr, ok := strings.Cut(rest, "=")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSettingLine, line)
	}

	key, err := strconv.Atoi(strings.TrimSpace(keyStr))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad key in %q", ErrInvalidSettingLine, line)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(valStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad value in %q", ErrInvalidSettingLine, line)
	}

	return key, value, nil
}
