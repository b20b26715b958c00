package serialline

import "sync/atomic"

// Metrics contains atomic counters for a transport.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ConnectCount indicates the number of successful connects.
	ConnectCount atomic.Uint64
	// LineRecvCount indicates the number of non-empty lines queued by the reader.
	LineRecvCount atomic.Uint64
	// BytesRecv indicates the number of raw bytes read from the port.
	BytesRecv atomic.Uint64
	// BytesWritten indicates the number of bytes written to the port.
	BytesWritten atomic.Uint64
	// ReadErrCount indicates the number of read errors that stopped the reader.
	ReadErrCount atomic.Uint64
	// QueueLength indicates the number of lines waiting in the FIFO.
	QueueLength atomic.Int64
}

func (m *Metrics) incConnectCount() {
	m.ConnectCount.Add(1)
}

func (m *Metrics) incLineRecvCount() {
	m.LineRecvCount.Add(1)
}

func (m *Metrics) addBytesRecv(n int) {
	m.BytesRecv.Add(uint64(n))
}

func (m *Metrics) addBytesWritten(n int) {
	m.BytesWritten.Add(uint64(n))
}

func (m *Metrics) incReadErrCount() {
	m.ReadErrCount.Add(1)
}

func (m *Metrics) setQueueLength(n int) {
	m.QueueLength.Store(int64(n))
}
