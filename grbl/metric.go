package grbl

import "sync/atomic"

// Metrics contains atomic counters for a driver.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CommandSendCount indicates the number of messages written to the device.
	CommandSendCount atomic.Uint64
	// ResponseCount indicates the number of lines classified and applied.
	ResponseCount atomic.Uint64
	// TimeoutCount indicates the number of runs aborted by a reply timeout.
	TimeoutCount atomic.Uint64
	// AlarmCount indicates the number of alarm responses.
	AlarmCount atomic.Uint64
	// ErrorCount indicates the number of error responses.
	ErrorCount atomic.Uint64
	// MoveSendCount indicates the number of moves acknowledged by the device.
	MoveSendCount atomic.Uint64
	// MoveRejectCount indicates the number of moves rejected before sending.
	MoveRejectCount atomic.Uint64
	// SettingWriteCount indicates the number of setting writes sent.
	SettingWriteCount atomic.Uint64
	// HardResetCount indicates the number of reconnects made to zero the device.
	HardResetCount atomic.Uint64
}

func (m *Metrics) incCommandSendCount()  { m.CommandSendCount.Add(1) }
func (m *Metrics) incResponseCount()     { m.ResponseCount.Add(1) }
func (m *Metrics) incTimeoutCount()      { m.TimeoutCount.Add(1) }
func (m *Metrics) incAlarmCount()        { m.AlarmCount.Add(1) }
func (m *Metrics) incErrorCount()        { m.ErrorCount.Add(1) }
func (m *Metrics) incMoveSendCount()     { m.MoveSendCount.Add(1) }
func (m *Metrics) incMoveRejectCount()   { m.MoveRejectCount.Add(1) }
func (m *Metrics) incSettingWriteCount() { m.SettingWriteCount.Add(1) }
func (m *Metrics) incHardResetCount()    { m.HardResetCount.Add(1) }
