// Package grbl implements the host side of the Grbl 1.1 serial protocol
// for a polar sand table, where the X axis drives the radius in mm and
// the Z axis the angle in degrees.
//
// The protocol is half-duplex: the host sends one command and waits for
// one reply, and ordering is the only correlation between the two. The
// [Driver] keeps a set of pending intents (reset, status, unlock, ...);
// [Generate] picks the next command from them according to the control
// loop [Phase], and [Classify] turns every reply into a [Response] whose
// effects add or clear intents. Alarms, errors and lock notices are
// therefore recovered by the driver itself and never surface as errors.
//
// Moves are checked against the last reported position and limit state
// before they are sent (see [MotionState.CheckMove]), and their angle is
// unwrapped so consecutive moves never turn more than half a revolution
// (see [SetAngleUnwrapped]).
//
// Example:
//
//	tcfg, _ := serialline.NewConfig("/dev/ttyACM0", 115200, serialline.WithDisplayName("grbl"))
//	tr, _ := serialline.NewTransport(ctx, tcfg)
//	cfg, _ := grbl.NewConfig()
//	drv, _ := grbl.NewDriver(tr, cfg)
//	if err := drv.Startup(ctx); err != nil {
//	    return err
//	}
//	defer drv.Close()
//
//	drv.ProposeMove(grbl.NewMove(100, 45, 3000))
//	err := drv.SendNextMove(ctx)
package grbl
