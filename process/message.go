// Package process implements the actor core: isolated per-process
// interpreter state, mailbox, links, monitors, and supervision, grounded
// on original_source/src/concurrency/process.rs's TinyProc. Where the
// Rust original reaches for crossbeam's unbounded MPSC channel, the
// mailbox here is a mutex-guarded slice: Go channels can't be peeked or
// have a message pushed back to the front without a second queue
// alongside them, which is exactly what selective receive needs, so the
// slice does both jobs directly.
package process

import "tinytotvm/value"

// MessageKind tags one of the message forms a mailbox can carry.
type MessageKind uint8

const (
	MsgValue MessageKind = iota
	MsgSignal
	MsgExit
	MsgDown
	MsgLink
	MsgUnlink
	MsgMonitor
	MsgTrapExit
)

// Message is the payload type flowing through mailboxes. Only the
// fields relevant to Kind are populated.
type Message struct {
	Kind MessageKind

	Value  value.Value // MsgValue
	Signal string      // MsgSignal

	PID ID // MsgExit, MsgDown, MsgLink, MsgUnlink, MsgMonitor: the other process

	Ref    string // MsgDown, MsgMonitor: monitor reference
	Reason string // MsgExit(implicit "normal"/custom), MsgDown

	Trap bool // MsgTrapExit
}

func ValueMessage(v value.Value) Message { return Message{Kind: MsgValue, Value: v} }
func SignalMessage(s string) Message     { return Message{Kind: MsgSignal, Signal: s} }
func ExitMessage(from ID, reason string) Message {
	return Message{Kind: MsgExit, PID: from, Reason: reason}
}
func DownMessage(from ID, ref, reason string) Message {
	return Message{Kind: MsgDown, PID: from, Ref: ref, Reason: reason}
}
func LinkMessage(from ID) Message     { return Message{Kind: MsgLink, PID: from} }
func UnlinkMessage(from ID) Message   { return Message{Kind: MsgUnlink, PID: from} }
func MonitorMessage(from ID, ref string) Message {
	return Message{Kind: MsgMonitor, PID: from, Ref: ref}
}
func TrapExitMessage(trap bool) Message { return Message{Kind: MsgTrapExit, Trap: trap} }
