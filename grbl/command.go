package grbl

import (
	"fmt"
	"strconv"
)

// Commands sent verbatim to the device.
const (
	CmdPing        = "\n"
	CmdStatus      = "?"
	CmdHold        = "!\n"
	CmdResume      = "~\n"
	CmdSoftReset   = "\x18"
	CmdUnlock      = "$X\n"
	CmdHome        = "$H\n"
	CmdGetSettings = "$$\n"
)

// MessageKind is the kind of an outgoing message.
type MessageKind int

const (
	MsgEmpty MessageKind = iota
	MsgCommand
	MsgMove
	MsgSetting
)

func (k MessageKind) String() string {
	switch k {
	case MsgEmpty:
		return "empty"
	case MsgCommand:
		return "command"
	case MsgMove:
		return "move"
	case MsgSetting:
		return "setting"
	default:
		return "unknown"
	}
}

// Message is an outgoing message and the reply it got.
type Message struct {
	Kind    MessageKind
	Payload []byte
	// Move is set for MsgMove messages.
	Move Move

	Sent     bool
	Response string
	Received bool
}

// IsEmpty reports whether there is nothing to send.
func (m *Message) IsEmpty() bool { return m.Kind == MsgEmpty }

// Is reports whether m is the command cmd.
func (m *Message) Is(cmd string) bool {
	return m.Kind == MsgCommand && string(m.Payload) == cmd
}

func (m *Message) String() string {
	return fmt.Sprintf("%s %q", m.Kind, m.Payload)
}

func commandMessage(cmd string) Message {
	return Message{Kind: MsgCommand, Payload: []byte(cmd)}
}

func moveMessage(mv Move) Message {
	return Message{Kind: MsgMove, Payload: FormatMove(mv), Move: mv}
}

func settingMessage(key int, value float64) Message {
	return Message{Kind: MsgSetting, Payload: FormatSetting(key, value)}
}

// FormatMove renders a linear move. The unwrapped angle is sent when known.
// The move must have a radius, an angle and a speed.
func FormatMove(mv Move) []byte {
	theta := mv.ThetaUnwrapped
	if theta == nil {
		theta = mv.Theta
	}

	return fmt.Appendf(nil, "G1 X%.2f Z%.2f F%.2f\n", *mv.R, *theta, *mv.Speed)
}

// FormatSetting renders a setting write, e.g. "$11=0.01\n".
func FormatSetting(key int, value float64) []byte {
	return []byte("$" + strconv.Itoa(key) + "=" + strconv.FormatFloat(value, 'f', -1, 64) + "\n")
}
