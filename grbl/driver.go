package grbl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sandscape/sandtable/internal/pool"
	"github.com/sandscape/sandtable/logger"
	"github.com/sandscape/sandtable/serialline"
)

// maxSettingAttempts bounds how often one staged setting is resent after
// the device answered it with an error.
const maxSettingAttempts = 3

var (
	ErrResponseTimeout    = errors.New("grbl: response timeout")
	ErrPingFailed         = errors.New("grbl: ping failed")
	ErrMoveRejected       = errors.New("grbl: move rejected")
	ErrInvalidStatus      = errors.New("grbl: invalid status report")
	ErrInvalidSettingLine = errors.New("grbl: invalid setting line")
	ErrSettingsSync       = errors.New("grbl: settings sync failed")
	ErrSettingsMismatch   = errors.New("grbl: settings still differ after sync")
	ErrNotAllowed         = errors.New("grbl: command not allowed in this phase")
)

// LineTransport is the line-framed link the driver talks over.
type LineTransport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Write(p []byte) error
	Receive(ctx context.Context, timeout time.Duration) (string, error)
	TryReceive() (string, bool)
	Discard() int
	IsConnected() bool
}

var _ LineTransport = (*serialline.Transport)(nil)

// Driver speaks the Grbl request/response protocol to the motion controller.
//
// Every operation performs one run: the driver repeatedly picks the next
// command from the pending intents, sends it, waits for exactly one reply
// and applies it, until nothing is left to send. Device faults such as
// alarms, errors and lock notices only add intents and are recovered
// within the run. A run fails only when the device does not answer in
// time or the link breaks.
//
// Operations are serialized. The getters, RequestHardReset and
// SetThetaZero may be called from any goroutine.
type Driver struct {
	cfg       *Config
	transport LineTransport
	logger    logger.Logger

	// runMu serializes runs so at most one message is awaiting a reply.
	runMu sync.Mutex

	// stateMu guards the fields below. They are only written while runMu
	// is held, except motion.Limits.ThetaZero, phase and nextMove.
	stateMu   sync.RWMutex
	phase     Phase
	pending   IntentSet
	motion    MotionState
	lastResp  Response
	next      Message
	prev      Message
	nextMove  Move
	prevMove  Move
	movesSent int

	staged         *Message
	stagedAttempts int
	stagedFailed   bool
	rejected       error

	settings *xsync.MapOf[int, float64]

	hardResetRequested atomic.Bool
	controlLoop        atomic.Bool

	metrics Metrics
}

// NewDriver creates a Driver over transport. The transport is connected
// by Connect or Startup.
func NewDriver(transport LineTransport, cfg *Config) (*Driver, error) {
	if transport == nil {
		return nil, errors.New("grbl: transport is nil")
	}
	if cfg == nil {
		return nil, errors.New("grbl: config is nil")
	}

	d := &Driver{
		cfg:       cfg,
		transport: transport,
		logger:    cfg.logger.With("device", "grbl"),
		phase:     PhaseSetup,
		motion:    NewMotionState(cfg.rMin, cfg.rMax),
		prevMove:  originMove(),
		settings:  xsync.NewMapOf[int, float64](),
	}
	d.controlLoop.Store(true)

	return d, nil
}

// Config returns the driver configuration.
func (d *Driver) Config() *Config { return d.cfg }

// GetMetrics returns the driver counters.
func (d *Driver) GetMetrics() *Metrics { return &d.metrics }

// Connect opens the link and pings the device. On a failed ping the link
// is closed again.
func (d *Driver) Connect(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	return d.connectLocked(ctx)
}

// Startup connects, then resets and unlocks the device.
func (d *Driver) Startup(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if err := d.connectLocked(ctx); err != nil {
		return err
	}

	d.logger.Info("grbl: resetting and unlocking")

	return d.runWith(ctx, IntentReset, IntentUnlock)
}

// Close closes the link.
func (d *Driver) Close() error {
	return d.transport.Disconnect()
}

// Reset soft-resets the device and waits for it to come back. Reset, Unlock
// and Status return ErrNotAllowed when the current phase does not send
// the command.
func (d *Driver) Reset(ctx context.Context) error {
	return d.do(ctx, IntentReset)
}

// Unlock clears the alarm lock of the device.
func (d *Driver) Unlock(ctx context.Context) error {
	return d.do(ctx, IntentUnlock)
}

// Status queries a status report and updates the motion state.
func (d *Driver) Status(ctx context.Context) error {
	return d.do(ctx, IntentStatus)
}

// Ping sends an empty line and waits for the acknowledgement.
func (d *Driver) Ping(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	return d.pingLocked(ctx)
}

// SendNextMove switches to PhaseAct and sends the move set by ProposeMove.
// A move failing the limit checks is dropped without being sent and is not
// an error; LastRejection reports it.
func (d *Driver) SendNextMove(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.stateMu.Lock()
	d.phase = PhaseAct
	d.rejected = nil
	d.stateMu.Unlock()

	return d.runWith(ctx, IntentSendMove)
}

// LastRejection returns why the last move was dropped, wrapping
// ErrMoveRejected, or nil if it was sent. It is reset by SendNextMove.
func (d *Driver) LastRejection() error {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.rejected
}

// Home switches to PhaseSetup, backs the radius off a tripped limit switch
// and then runs the firmware homing cycle if enabled. A failed homing
// disables the control loop.
func (d *Driver) Home(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.logger.Info("grbl: homing")
	d.SetPhase(PhaseSetup)

	err := d.runWith(ctx, IntentStatus, IntentHoming)
	if err != nil {
		d.controlLoop.Store(false)
	}

	return err
}

// Hold pauses the motion in progress.
func (d *Driver) Hold(ctx context.Context) error {
	return d.sendCommand(ctx, CmdHold)
}

// Resume continues a held motion.
func (d *Driver) Resume(ctx context.Context) error {
	return d.sendCommand(ctx, CmdResume)
}

// HardReset closes and reopens the link. Reopening the port reboots the
// controller, which zeroes its machine position.
func (d *Driver) HardReset(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	return d.hardResetLocked(ctx)
}

// RequestHardReset makes the next run start with a hard reset.
func (d *Driver) RequestHardReset() {
	d.hardResetRequested.Store(true)
}

// Stop halts the machine immediately with a soft reset, then checks the
// device answers a status query. If it does not, the link is hard reset.
func (d *Driver) Stop(ctx context.Context) error {
	// written before taking runMu so a run blocked on a reply cannot delay it
	if err := d.transport.Write([]byte(CmdSoftReset)); err != nil {
		d.logger.Warn("grbl: soft reset on stop failed", "error", err)
	}
	d.logger.Info("grbl: stopped")

	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.stateMu.Lock()
	d.phase = PhaseSetup
	d.pending.Add(IntentStatus)
	d.stateMu.Unlock()

	if err := d.run(ctx, d.cfg.stopTimeout); err != nil {
		d.logger.Warn("grbl: no status after stop, hard resetting", "error", err)
		return d.hardResetLocked(ctx)
	}

	return nil
}

// ProposeMove sets the move the next SendNextMove sends.
func (d *Driver) ProposeMove(m Move) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.nextMove = m.clone()
}

// SetPhase sets the control loop phase that gates command generation.
func (d *Driver) SetPhase(p Phase) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.phase = p
}

// Phase returns the current phase.
func (d *Driver) Phase() Phase {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.phase
}

// SetThetaZero records the state of the angle proximity switch.
func (d *Driver) SetThetaZero(hit bool) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.motion.Limits.ThetaZero = hit
}

// Motion returns a copy of the motion state.
func (d *Driver) Motion() MotionState {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.motion
}

// HasBufferSpace reports whether the device planner can take another move.
func (d *Driver) HasBufferSpace() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.motion.HasBufferSpace()
}

// Pending returns the intents not yet satisfied.
func (d *Driver) Pending() IntentSet {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.pending
}

// LastResponse returns the last classified response.
func (d *Driver) LastResponse() Response {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.lastResp
}

// PrevMove returns the last move acknowledged by the device.
func (d *Driver) PrevMove() Move {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.prevMove.clone()
}

// NextMove returns the proposed move.
func (d *Driver) NextMove() Move {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.nextMove.clone()
}

// MovesSent returns the number of moves acknowledged by the device.
func (d *Driver) MovesSent() int {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.movesSent
}

// Settings returns the settings last read from the device.
func (d *Driver) Settings() Settings {
	s := make(Settings, d.settings.Size())
	d.settings.Range(func(key int, value float64) bool {
		s[key] = value
		return true
	})

	return s
}

// ControlLoopEnabled reports whether the higher-level control loop may
// keep running. Error responses and failed homing clear it.
func (d *Driver) ControlLoopEnabled() bool { return d.controlLoop.Load() }

// EnableControlLoop sets the control loop flag.
func (d *Driver) EnableControlLoop(enabled bool) { d.controlLoop.Store(enabled) }

func (d *Driver) do(ctx context.Context, intents ...Intent) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if err := d.runWith(ctx, intents...); err != nil {
		return err
	}

	return d.unserved(intents)
}

// unserved fails if the phase kept any of intents from being sent. The
// leftovers are dropped so they do not fire in a later phase.
func (d *Driver) unserved(intents []Intent) error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	var left IntentSet
	for _, in := range intents {
		if d.pending.Has(in) {
			left.Add(in)
		}
	}
	if left == 0 {
		return nil
	}

	d.pending.Remove(intents...)

	return fmt.Errorf("%w: %s in phase %s", ErrNotAllowed, left, d.phase)
}

func (d *Driver) runWith(ctx context.Context, intents ...Intent) error {
	d.stateMu.Lock()
	d.pending.Add(intents...)
	d.stateMu.Unlock()

	return d.run(ctx, d.cfg.responseTimeout)
}

func (d *Driver) connectLocked(ctx context.Context) error {
	if err := d.transport.Connect(ctx); err != nil {
		return fmt.Errorf("grbl: connect: %w", err)
	}

	// boot output must not be taken for the ping reply
	if n := d.transport.Discard(); n > 0 {
		d.logger.Debug("grbl: discarded boot output", "lines", n)
	}

	if err := d.pingLocked(ctx); err != nil {
		_ = d.transport.Disconnect()
		return err
	}

	d.logger.Info("grbl: connected")

	return nil
}

func (d *Driver) pingLocked(ctx context.Context) error {
	if err := d.runWith(ctx, IntentPing); err != nil {
		d.logger.Error("grbl: device did not answer ping", "error", err)
		return fmt.Errorf("%w: %w", ErrPingFailed, err)
	}

	return nil
}

func (d *Driver) hardResetLocked(ctx context.Context) error {
	d.hardResetRequested.Store(false)
	d.metrics.incHardResetCount()
	d.logger.Info("grbl: hard reset")

	if err := d.transport.Disconnect(); err != nil {
		return fmt.Errorf("grbl: hard reset: %w", err)
	}

	d.stateMu.Lock()
	d.prevMove = originMove()
	d.nextMove = Move{}
	d.stateMu.Unlock()

	return d.connectLocked(ctx)
}

// sendCommand sends a command outside the generator, then finishes with a
// run to carry out whatever the reply asks for.
func (d *Driver) sendCommand(ctx context.Context, cmd string) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if _, err := d.drain(); err != nil {
		return err
	}

	d.stateMu.Lock()
	d.next = commandMessage(cmd)
	d.stateMu.Unlock()

	if err := d.exchange(ctx, d.cfg.responseTimeout); err != nil {
		return err
	}

	return d.run(ctx, d.cfg.responseTimeout)
}

// run sends commands until no intent is left and no trailing line is
// expected. It must be called with runMu held.
func (d *Driver) run(ctx context.Context, timeout time.Duration) error {
	if d.hardResetRequested.Load() && !d.Pending().Has(IntentPing) {
		if err := d.hardResetLocked(ctx); err != nil {
			return err
		}
	}

	d.stateMu.Lock()
	d.stagedFailed = false
	d.logger.Debug("grbl: run", "phase", d.phase, "pending", d.pending)
	d.stateMu.Unlock()

	lastProgress := time.Now()
	fresh := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.Pending().Has(IntentTrailing) {
			if err := pool.Sleep(ctx, d.cfg.trailingPause); err != nil {
				return err
			}
		}

		n, err := d.drain()
		if err != nil {
			return err
		}
		if n > 0 {
			lastProgress = time.Now()
			fresh = false
		}

		if !fresh {
			d.generate()
		}
		fresh = false

		if !d.nextIsEmpty() {
			if err := d.exchange(ctx, timeout); err != nil {
				return err
			}
			lastProgress = time.Now()

			d.generate()
			fresh = true
		}

		if !d.nextIsEmpty() {
			continue
		}

		if !d.Pending().Has(IntentTrailing) {
			d.logger.Debug("grbl: run finished")
			return d.runResult()
		}

		if time.Since(lastProgress) > timeout {
			d.stateMu.Lock()
			d.pending.Remove(IntentTrailing)
			d.stateMu.Unlock()
			d.metrics.incTimeoutCount()

			return fmt.Errorf("%w: trailing line not received within %v", ErrResponseTimeout, timeout)
		}
	}
}

func (d *Driver) runResult() error {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	if d.stagedFailed {
		return fmt.Errorf("%w: device kept refusing a setting", ErrSettingsSync)
	}

	return nil
}

func (d *Driver) nextIsEmpty() bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	return d.next.IsEmpty()
}

// exchange writes the next message and applies the one reply it gets.
func (d *Driver) exchange(ctx context.Context, timeout time.Duration) error {
	d.stateMu.RLock()
	msg := d.next
	d.stateMu.RUnlock()

	if msg.Is(CmdHome) {
		timeout = d.cfg.homingTimeout
	}

	d.logger.Debug("grbl: send", "message", msg.String())

	if err := d.transport.Write(msg.Payload); err != nil {
		return fmt.Errorf("grbl: send %q: %w", msg.Payload, err)
	}
	d.metrics.incCommandSendCount()
	if msg.Kind == MsgSetting {
		d.metrics.incSettingWriteCount()
	}

	d.markSent()

	line, err := d.transport.Receive(ctx, timeout)
	if err != nil {
		d.stateMu.Lock()
		d.lastResp = Response{}
		d.stateMu.Unlock()

		if errors.Is(err, serialline.ErrReceiveTimeout) {
			d.metrics.incTimeoutCount()
			d.logger.Error("grbl: no reply", "message", msg.String(), "timeout", timeout)

			return fmt.Errorf("%w: reply to %q: %w", ErrResponseTimeout, msg.Payload, err)
		}

		return fmt.Errorf("grbl: reply to %q: %w", msg.Payload, err)
	}

	if err := d.apply(line); err != nil {
		return err
	}

	d.stateMu.Lock()
	d.prev = d.next
	d.stateMu.Unlock()

	return nil
}

// drain applies every line already queued.
func (d *Driver) drain() (int, error) {
	n := 0
	for {
		line, ok := d.transport.TryReceive()
		if !ok {
			return n, nil
		}
		n++

		if err := d.apply(line); err != nil {
			return n, err
		}
	}
}

func (d *Driver) apply(line string) error {
	resp := Classify(line)
	d.metrics.incResponseCount()

	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.lastResp = resp
	d.logger.Debug("grbl: response", "kind", resp.Kind, "line", resp.Raw, "in_flight", d.next.String())

	return d.handleResponse(resp)
}

// handleResponse applies a response to the message in flight. It must be
// called with stateMu held.
func (d *Driver) handleResponse(resp Response) error {
	in := &d.next
	in.Response = resp.Raw
	good := false

	switch resp.Kind {
	case RespSettingValue:
		key, value, err := ParseSettingLine(resp.Raw)
		if err != nil {
			d.logger.Warn("grbl: ignoring malformed setting line", "error", err)
			d.pending.Add(IntentStatus)

			break
		}
		d.settings.Store(key, value)
		d.pending.Remove(IntentGetSettings)
		d.pending.Add(IntentTrailing)
		good = true

	case RespStatus:
		if in.Is(CmdStatus) {
			rep, err := ParseStatus(resp.Raw)
			if err != nil {
				d.logger.Error("grbl: garbled status report", "error", err)
				d.pending.Add(IntentReset, IntentUnlock, IntentStatus)

				break
			}
			d.motion.Apply(rep)
			d.pending.Remove(IntentStatus)
			good = true
		}

	case RespAck:
		if ackAccepted(in) {
			good = true
			if in.Is(CmdHome) {
				d.pending.Remove(IntentHoming)
			}
		}
		d.pending.Remove(IntentTrailing)

	case RespAlarm:
		d.metrics.incAlarmCount()
		d.logger.Warn("grbl: alarm", "line", resp.Raw)
		d.motion.Status = StateAlarm
		d.pending.Add(IntentReset, IntentUnlock, IntentStatus)

	case RespError:
		d.metrics.incErrorCount()
		d.logger.Error("grbl: error response, stopping control loop", "line", resp.Raw, "in_flight", in.String())
		d.pending.Add(IntentReset, IntentUnlock, IntentStatus)
		d.controlLoop.Store(false)

	case RespStartup:
		d.pending.Remove(IntentReset)
		d.pending.Add(IntentUnlock, IntentStatus)

	case RespCheckLimits, RespNeedUnlock:
		d.pending.Add(IntentUnlock, IntentStatus)

	case RespUnlocked:
		d.pending.Remove(IntentUnlock)
		d.pending.Add(IntentStatus, IntentTrailing)

	case RespOther:
		d.pending.Add(IntentStatus)

	default:
		d.logger.Error("grbl: unrecognized response", "line", resp.Raw, "kind", resp.Kind)
		d.pending.Add(IntentReset, IntentUnlock, IntentStatus)
	}

	if !good {
		return nil
	}

	in.Received = true

	switch {
	case in.Kind == MsgMove:
		d.nextMove.Received = true
		d.prevMove = d.nextMove
		d.nextMove = Move{}
		d.movesSent++
		d.metrics.incMoveSendCount()
		d.pending.Remove(IntentSendMove)
		if d.pending.Has(IntentHoming) {
			// the switches must be read again before deciding the next homing step
			d.pending.Add(IntentStatus)
		}
	case in.Kind == MsgSetting:
		d.pending.Remove(IntentSendSetting)
		d.staged = nil
	case in.Is(CmdUnlock):
		d.pending.Remove(IntentUnlock)
	case in.Is(CmdSoftReset):
		d.pending.Remove(IntentReset)
	}

	return nil
}

// ackAccepted reports whether "ok" is the expected reply to m.
func ackAccepted(m *Message) bool {
	switch m.Kind {
	case MsgEmpty, MsgMove, MsgSetting:
		return true
	case MsgCommand:
		return m.Is(CmdPing) || m.Is(CmdHome) || m.Is(CmdHold) || m.Is(CmdResume) || m.Is(CmdUnlock)
	default:
		return false
	}
}

func (d *Driver) generate() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.next = d.generateLocked()
}

// generateLocked builds the next message. It must be called with stateMu held.
func (d *Driver) generateLocked() Message {
	step := Generate(d.phase, &d.pending, d.lastResp.Kind)

	switch step {
	case StepPing:
		return commandMessage(CmdPing)
	case StepSoftReset:
		return commandMessage(CmdSoftReset)
	case StepStatus:
		return commandMessage(CmdStatus)
	case StepUnlock:
		return commandMessage(CmdUnlock)
	case StepGetSettings:
		return commandMessage(CmdGetSettings)
	case StepSendSetting:
		return d.settingStepLocked()
	case StepHoming:
		return d.homingStepLocked()
	case StepSendMove:
		return d.moveStepLocked()
	default:
		return Message{}
	}
}

func (d *Driver) settingStepLocked() Message {
	if d.staged == nil {
		d.logger.Error("grbl: setting write pending but no setting staged")
		d.pending.Remove(IntentSendSetting)

		return d.generateLocked()
	}

	if d.stagedAttempts >= maxSettingAttempts {
		d.logger.Error("grbl: giving up on setting", "setting", d.staged.String(), "attempts", d.stagedAttempts)
		d.staged = nil
		d.stagedFailed = true
		d.pending.Remove(IntentSendSetting)

		return d.generateLocked()
	}

	return *d.staged
}

// markSent records that the message in flight went out.
func (d *Driver) markSent() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.next.Sent = true
	if d.next.Kind == MsgSetting {
		d.stagedAttempts++
	}
}

func (d *Driver) homingStepLocked() Message {
	dist, speed := d.cfg.homingBackoff, d.cfg.homingBackoffSpeed

	switch {
	case d.motion.Limits.HardRMin:
		d.nextMove = d.backoffMove(d.motion.PosR+dist, speed)
	case d.motion.Limits.HardRMax:
		d.nextMove = d.backoffMove(d.motion.PosR-dist, speed)
	case d.cfg.homingEnabled:
		return commandMessage(CmdHome)
	default:
		d.logger.Info("grbl: no limit switch tripped and firmware homing disabled, homing done")
		d.pending.Remove(IntentHoming)

		return d.generateLocked()
	}

	msg := d.moveStepLocked()
	if msg.IsEmpty() {
		d.logger.Error("grbl: cannot back off the limit switch, homing aborted",
			"hard_r_min", d.motion.Limits.HardRMin, "hard_r_max", d.motion.Limits.HardRMax)
		d.pending.Remove(IntentHoming)
		d.controlLoop.Store(false)
	}

	return msg
}

// backoffMove keeps the machine angle as it is and only moves the radius.
func (d *Driver) backoffMove(r, speed float64) Move {
	theta := math.Mod(d.motion.PosTheta, 360)
	if theta < 0 {
		theta += 360
	}

	return Move{R: Float(r), Theta: Float(theta), ThetaUnwrapped: Float(d.motion.PosTheta), Speed: Float(speed)}
}

func (d *Driver) moveStepLocked() Message {
	mv := d.nextMove.clone()
	if mv.IsEmpty() {
		d.pending.Remove(IntentSendMove)
		return Message{}
	}

	if mv.ThetaUnwrapped == nil {
		if !SetAngleUnwrapped(d.prevMove, &mv) && mv.Theta != nil {
			mv.ThetaUnwrapped = Float(*mv.Theta)
		}
	}
	if mv.Speed == nil {
		mv.Speed = Float(d.cfg.defaultSpeed)
	}

	if err := d.motion.CheckMove(&mv, d.pending.Has(IntentHoming)); err != nil {
		d.logger.Warn("grbl: not sending move", "error", err)
		d.metrics.incMoveRejectCount()
		d.rejected = err
		d.nextMove = Move{}
		d.pending.Remove(IntentSendMove)

		return Message{}
	}

	d.nextMove = mv

	return moveMessage(mv)
}

// stage sets the setting the next IntentSendSetting run writes.
func (d *Driver) stage(key int, value float64) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	msg := settingMessage(key, value)
	d.staged = &msg
	d.stagedAttempts = 0
}
