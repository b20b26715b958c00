package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want ResponseKind
	}{
		{"<Idle|MPos:0.000,0.000,0.000|FS:0,0>", RespStatus},
		{"<Alarm|MPos:0.000,0.000,0.000|FS:0,0>", RespStatus},
		{"ok", RespAck},
		{"ALARM:1", RespAlarm},
		{"error:9", RespError},
		{StartupBanner, RespStartup},
		{MsgCheckLimits, RespCheckLimits},
		{MsgNeedUnlock, RespNeedUnlock},
		{MsgUnlocked, RespUnlocked},
		{"$110=10000.000", RespSettingValue},
		{"[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]", RespOther},
		{"", RespOther},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := Classify(tt.line)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.line, got.Raw)
		})
	}
}

func TestClassify_Order(t *testing.T) {
	// status wins over every other marker it may contain
	assert.Equal(t, RespStatus, Classify("<ok ALARM error $1=2>").Kind)
	assert.Equal(t, RespStatus, Classify("x>y<z").Kind)
	// "ok" wins over the alarm marker
	assert.Equal(t, RespAck, Classify("ALARM ok").Kind)
	assert.Equal(t, RespAlarm, Classify("ALARM:3 error").Kind)
	// half a status report is not a status report
	assert.Equal(t, RespAlarm, Classify("<ALARM").Kind)
	assert.Equal(t, RespError, Classify("error: $1=2").Kind)
	assert.Equal(t, RespStartup, Classify("\x00"+StartupBanner).Kind)
	assert.Equal(t, RespSettingValue, Classify("[MSG:x=1]").Kind)
}

func TestResponseKind_String(t *testing.T) {
	assert.Equal(t, "status", RespStatus.String())
	assert.Equal(t, "setting_value", RespSettingValue.String())
	assert.Equal(t, "unknown", ResponseKind(99).String())
}
