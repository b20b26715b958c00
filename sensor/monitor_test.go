package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandscape/sandtable/logger"
	"github.com/sandscape/sandtable/serialline"
	"github.com/sandscape/sandtable/serialline/serialtest"
)

type stubTransport struct {
	mu         sync.Mutex
	lines      []string
	connectErr error
	connected  bool
}

func (s *stubTransport) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true

	return nil
}

func (s *stubTransport) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false

	return nil
}

func (s *stubTransport) TryReceive() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.lines) == 0 {
		return "", false
	}
	line := s.lines[0]
	s.lines = s.lines[1:]

	return line, true
}

func (s *stubTransport) push(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = append(s.lines, lines...)
}

func newStubMonitor(t *testing.T, opts ...Option) (*Monitor, *stubTransport) {
	t.Helper()

	tr := &stubTransport{}
	opts = append([]Option{WithLogger(logger.NewMockLogger().AllowAll())}, opts...)

	m, err := NewMonitor(context.Background(), tr, opts...)
	require.NoError(t, err)

	return m, tr
}

func TestMonitor_PollLatestWins(t *testing.T) {
	var got []Reading
	m, tr := newStubMonitor(t, WithHandler(func(r Reading) { got = append(got, r) }))

	_, ok := m.Poll()
	assert.False(t, ok)

	_, ok = m.Latest()
	assert.False(t, ok)

	tr.push("00000000000000000", "10000000000000000", "00000000000000011")

	r, ok := m.Poll()
	require.True(t, ok)
	assert.True(t, r.ThetaZero)
	assert.Equal(t, []int{15}, r.Touched())

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, r, latest)

	require.Len(t, got, 1)
	assert.Equal(t, r, got[0])

	metrics := m.GetMetrics()
	assert.Equal(t, uint64(1), metrics.ReadingCount.Load())
	assert.Equal(t, uint64(2), metrics.DroppedCount.Load())
}

func TestMonitor_PollInvalidKeepsPrevious(t *testing.T) {
	m, tr := newStubMonitor(t)

	tr.push("00000000000000001")
	_, ok := m.Poll()
	require.True(t, ok)

	// an older valid line does not rescue a garbled newest one
	tr.push("00000000000000000", "garbage")
	_, ok = m.Poll()
	assert.False(t, ok)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.True(t, latest.ThetaZero)
	assert.Equal(t, uint64(1), m.GetMetrics().InvalidCount.Load())
}

func TestMonitor_Options(t *testing.T) {
	tr := &stubTransport{}

	_, err := NewMonitor(context.Background(), nil)
	require.Error(t, err)

	_, err = NewMonitor(context.Background(), tr, WithPollInterval(0))
	require.Error(t, err)

	_, err = NewMonitor(context.Background(), tr, WithPollInterval(time.Minute))
	require.Error(t, err)

	_, err = NewMonitor(context.Background(), tr, WithLogger(nil))
	require.Error(t, err)

	m, err := NewMonitor(context.Background(), tr, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, m.interval)
}

func TestMonitor_StartConnectFailure(t *testing.T) {
	m, tr := newStubMonitor(t)
	tr.connectErr = errors.New("no such port")

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, tr.connectErr)

	// a failed start can be retried
	tr.connectErr = nil
	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestMonitor_OverSerialLine(t *testing.T) {
	line := serialtest.NewLine()
	cfg, err := serialline.NewConfig("/dev/null", DefaultBaudRate,
		serialline.WithOpener(line.Opener()),
		serialline.WithSettleDelay(0),
		serialline.WithReadTimeout(10*time.Millisecond),
		serialline.WithDisplayName("sensor"),
		serialline.WithLogger(logger.NewMockLogger().AllowAll()),
	)
	require.NoError(t, err)

	tr, err := serialline.NewTransport(context.Background(), cfg)
	require.NoError(t, err)

	zero := make(chan bool, 16)
	m, err := NewMonitor(context.Background(), tr,
		WithPollInterval(5*time.Millisecond),
		WithLogger(logger.NewMockLogger().AllowAll()),
		WithHandler(func(r Reading) {
			select {
			case zero <- r.ThetaZero:
			default:
			}
		}),
	)
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })

	dev, err := line.Device(time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	go func() { _, _ = dev.Write([]byte("00000000000000001\r\n")) }()

	select {
	case z := <-zero:
		assert.True(t, z)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading delivered")
	}

	require.NoError(t, m.Stop())
	assert.False(t, tr.IsConnected())
}
