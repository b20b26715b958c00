package grbl

import "strings"

// ResponseKind is the class of a line received from the device.
type ResponseKind int

const (
	// RespNone means no response was received, e.g. after a timeout.
	RespNone ResponseKind = iota
	RespOther
	RespStatus
	RespAck
	RespAlarm
	RespError
	RespStartup
	RespCheckLimits
	RespNeedUnlock
	RespUnlocked
	RespSettingValue
)

// Device notices matched by the classifier.
const (
	StartupBanner  = "Grbl 1.1h ['$' for help]"
	MsgCheckLimits = "[MSG:Check Limits]"
	MsgNeedUnlock  = "[MSG:'$H'|'$X' to unlock]"
	MsgUnlocked    = "[MSG:Caution: Unlocked]"
)

var responseKindNames = [...]string{
	RespNone:         "none",
	RespOther:        "other",
	RespStatus:       "status",
	RespAck:          "ack",
	RespAlarm:        "alarm",
	RespError:        "error",
	RespStartup:      "startup",
	RespCheckLimits:  "check_limits",
	RespNeedUnlock:   "need_unlock",
	RespUnlocked:     "unlocked",
	RespSettingValue: "setting_value",
}

func (k ResponseKind) String() string {
	if k < 0 || int(k) >= len(responseKindNames) {
		return "unknown"
	}

	return responseKindNames[k]
}

// Response is a classified device line.
type Response struct {
	Kind ResponseKind
	Raw  string
}

type classifyRule struct {
	kind  ResponseKind
	match func(line string) bool
}

func contains(sub string) func(string) bool {
	return func(line string) bool { return strings.Contains(line, sub) }
}

// classifyRules is evaluated in order and the first match wins. A status
// report may carry "ok" or "ALARM" in its state field, so it is checked first.
var classifyRules = []classifyRule{
	{RespStatus, func(line string) bool {
		return strings.Contains(line, "<") && strings.Contains(line, ">")
	}},
	{RespAck, contains("ok")},
	{RespAlarm, contains("ALARM")},
	{RespError, contains("error")},
	{RespStartup, contains(StartupBanner)},
	{RespCheckLimits, contains(MsgCheckLimits)},
	{RespNeedUnlock, contains(MsgNeedUnlock)},
	{RespUnlocked, contains(MsgUnlocked)},
	{RespSettingValue, contains("=")},
}

// Classify maps a received line to its response kind.
func Classify(line string) Response {
	for _, rule := range classifyRules {
		if rule.match(line) {
			return Response{Kind: rule.kind, Raw: line}
		}
	}

	return Response{Kind: RespOther, Raw: line}
}
