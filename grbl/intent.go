package grbl

import "strings"

// Intent is a pending need of the driver. Intents are not queued: each one
// is either set or not, and the generator picks at most one per cycle.
type Intent uint16

const (
	IntentReset Intent = 1 << iota
	IntentPing
	IntentStatus
	IntentUnlock
	IntentSendSetting
	IntentGetSettings
	IntentSendMove
	IntentHoming
	// IntentTrailing marks that the device may still emit an unsolicited
	// line for the last exchange.
	IntentTrailing
)

var intentNames = []struct {
	intent Intent
	name   string
}{
	{IntentReset, "reset"},
	{IntentPing, "ping"},
	{IntentStatus, "status"},
	{IntentUnlock, "unlock"},
	{IntentSendSetting, "send_setting"},
	{IntentGetSettings, "get_settings"},
	{IntentSendMove, "send_move"},
	{IntentHoming, "homing"},
	{IntentTrailing, "trailing"},
}

// IntentSet is a set of pending intents.
type IntentSet uint16

// Has reports whether i is pending.
func (s IntentSet) Has(i Intent) bool { return uint16(s)&uint16(i) != 0 }

// Add marks all intents as pending.
func (s *IntentSet) Add(intents ...Intent) {
	for _, i := range intents {
		*s |= IntentSet(i)
	}
}

// Remove clears all intents.
func (s *IntentSet) Remove(intents ...Intent) {
	for _, i := range intents {
		*s &^= IntentSet(i)
	}
}

func (s IntentSet) String() string {
	if s == 0 {
		return "none"
	}

	var names []string
	for _, in := range intentNames {
		if s.Has(in.intent) {
			names = append(names, in.name)
		}
	}

	return strings.Join(names, "|")
}
