package grbl

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sandscape/sandtable/logger"
	"github.com/sandscape/sandtable/serialline"
	"github.com/sandscape/sandtable/serialline/serialtest"
)

// fakeGrbl simulates the controller firmware on the device end of a pipe.
type fakeGrbl struct {
	mu       sync.Mutex
	r, theta float64
	state    string
	pins     string
	// statusLine, if set, replaces the generated status report.
	statusLine  string
	statusDelay time.Duration
	settings    Settings
	// readOnly acknowledges setting writes without storing them.
	readOnly bool
	// refuseSettings answers setting writes with an error.
	refuseSettings bool
	silent         bool
	// script returns a canned reply for a command, consumed on first use.
	script   map[string][]string
	received []string
	writes   int
	conns    []net.Conn
}

func newFakeGrbl() *fakeGrbl {
	return &fakeGrbl{
		state:    "Idle",
		settings: DefaultSettings(),
		script:   make(map[string][]string),
	}
}

// attach serves every port the line opens until the test ends.
func (f *fakeGrbl) attach(t *testing.T, line *serialtest.Line) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case conn := <-line.Devices():
				f.mu.Lock()
				f.conns = append(f.conns, conn)
				f.mu.Unlock()

				go f.serve(conn)
			}
		}
	}()

	t.Cleanup(func() {
		close(done)

		f.mu.Lock()
		defer f.mu.Unlock()
		for _, c := range f.conns {
			_ = c.Close()
		}
	})
}

func (f *fakeGrbl) serve(conn net.Conn) {
	rd := bufio.NewReader(conn)
	var line []byte

	for {
		b, err := rd.ReadByte()
		if err != nil {
			return
		}

		var cmd string
		switch b {
		case '?', 0x18, '!', '~':
			cmd = string(b)
		case '\n':
			cmd = strings.TrimSuffix(string(line), "\r")
			line = line[:0]
		default:
			line = append(line, b)
			continue
		}

		for _, reply := range f.handle(cmd) {
			if _, err := conn.Write([]byte(reply + "\r\n")); err != nil {
				return
			}
		}
	}
}

func (f *fakeGrbl) handle(cmd string) []string {
	f.mu.Lock()
	f.received = append(f.received, cmd)

	if f.silent {
		f.mu.Unlock()
		return nil
	}

	if reply, ok := f.script[cmd]; ok {
		delete(f.script, cmd)
		f.mu.Unlock()

		return reply
	}

	if cmd == "?" {
		delay := f.statusDelay
		report := f.statusReportLocked()
		f.mu.Unlock()
		time.Sleep(delay)

		return []string{report}
	}
	defer f.mu.Unlock()

	switch {
	case cmd == "\x18":
		return []string{"", StartupBanner}
	case cmd == "!" || cmd == "~":
		return nil
	case cmd == "":
		return []string{"ok"}
	case cmd == "$X":
		return []string{MsgUnlocked, "ok"}
	case cmd == "$H":
		f.pins = ""
		return []string{"ok"}
	case cmd == "$$":
		out := make([]string, 0, len(f.settings)+1)
		for _, k := range f.settings.Keys() {
			out = append(out, fmt.Sprintf("$%d=%s", k, strconv.FormatFloat(f.settings[k], 'f', -1, 64)))
		}

		return append(out, "ok")
	case strings.HasPrefix(cmd, "$"):
		key, value, err := ParseSettingLine(cmd)
		if err != nil {
			return []string{"error:3"}
		}
		f.writes++
		if f.refuseSettings {
			return []string{"error:7"}
		}
		if !f.readOnly {
			f.settings[key] = value
		}

		return []string{"ok"}
	case strings.HasPrefix(cmd, "G1 "):
		var r, theta, speed float64
		if _, err := fmt.Sscanf(cmd, "G1 X%f Z%f F%f", &r, &theta, &speed); err != nil {
			return []string{"error:20"}
		}
		f.r, f.theta = r, theta
		f.pins = ""

		return []string{"ok"}
	default:
		return []string{"error:1"}
	}
}

func (f *fakeGrbl) statusReportLocked() string {
	if f.statusLine != "" {
		return f.statusLine
	}

	report := fmt.Sprintf("<%s|MPos:%.3f,%.3f,0.000|FS:0,0|Bf:15,128", f.state, f.r, f.theta)
	if f.pins != "" {
		report += "|Pn:" + f.pins
	}

	return report + ">"
}

func (f *fakeGrbl) set(fn func(f *fakeGrbl)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(f)
}

func (f *fakeGrbl) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.received...)
}

func (f *fakeGrbl) resetCommands() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.received = nil
}

func (f *fakeGrbl) settingWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.writes
}

func testLogger() logger.Logger {
	return logger.NewMockLogger().AllowAll()
}

type testEnv struct {
	drv  *Driver
	dev  *fakeGrbl
	line *serialtest.Line
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	line := serialtest.NewLine()
	tcfg, err := serialline.NewConfig("fake", 115200,
		serialline.WithOpener(line.Opener()),
		serialline.WithSettleDelay(0),
		serialline.WithReadTimeout(20*time.Millisecond),
		serialline.WithCloseTimeout(time.Second),
		serialline.WithLogger(testLogger()),
	)
	require.NoError(t, err)

	tr, err := serialline.NewTransport(context.Background(), tcfg)
	require.NoError(t, err)

	base := []Option{
		WithResponseTimeout(300 * time.Millisecond),
		WithHomingTimeout(time.Second),
		WithTrailingPause(10 * time.Millisecond),
		WithStopTimeout(100 * time.Millisecond),
		WithLogger(testLogger()),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)

	drv, err := NewDriver(tr, cfg)
	require.NoError(t, err)

	dev := newFakeGrbl()
	dev.attach(t, line)

	t.Cleanup(func() { _ = drv.Close() })

	return &testEnv{drv: drv, dev: dev, line: line}
}

// startup connects and runs the reset sequence, then forgets the commands
// it took.
func (e *testEnv) startup(t *testing.T) {
	t.Helper()

	require.NoError(t, e.drv.Startup(context.Background()))
	e.dev.resetCommands()
}

// stubTransport is a LineTransport that is never connected.
type stubTransport struct{}

func (stubTransport) Connect(context.Context) error { return nil }
func (stubTransport) Disconnect() error             { return nil }
func (stubTransport) Write([]byte) error            { return nil }
func (stubTransport) Receive(context.Context, time.Duration) (string, error) {
	return "", serialline.ErrReceiveTimeout
}
func (stubTransport) TryReceive() (string, bool) { return "", false }
func (stubTransport) Discard() int               { return 0 }
func (stubTransport) IsConnected() bool          { return false }

func newStubDriver(t *testing.T) *Driver {
	t.Helper()

	cfg, err := NewConfig(WithLogger(testLogger()))
	require.NoError(t, err)

	drv, err := NewDriver(stubTransport{}, cfg)
	require.NoError(t, err)

	return drv
}
