// Package serialline provides a newline-framed text transport over a serial port.
//
// A Transport owns one serial connection. On Connect it opens the port,
// waits for the board to settle (most controller boards reboot when the
// port is opened), and starts a dedicated reader task. The reader blocks
// on the port, splits the byte stream on '\n', decodes each frame as text
// (invalid UTF-8 is replaced, never fatal), trims surrounding whitespace and
// pushes non-empty lines, in arrival order, into a bounded FIFO.
//
// The reader applies no protocol logic. A single consumer takes lines off
// the FIFO with Receive (blocking, bounded by a timeout) or TryReceive
// (non-blocking). Writes go straight to the port and are serialized.
//
// # Failure model
//
// A non-timeout read error stops the reader. The error is kept and returned,
// wrapped in ErrReaderStopped, by the next Receive that finds the FIFO
// empty. The transport never terminates the process; the owner decides
// whether to reconnect.
package serialline
