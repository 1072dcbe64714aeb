package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxFIFOOrder(t *testing.T) {
	var m Mailbox
	m.Send(SignalMessage("a"))
	m.Send(SignalMessage("b"))

	first, ok := m.TryRecv()
	require.True(t, ok)
	require.Equal(t, "a", first.Signal)

	second, ok := m.TryRecv()
	require.True(t, ok)
	require.Equal(t, "b", second.Signal)

	_, ok = m.TryRecv()
	require.False(t, ok)
}

func TestMailboxPutFrontPreservesOrderAheadOfNewArrivals(t *testing.T) {
	var m Mailbox
	m.Send(SignalMessage("late"))
	m.PutFront([]Message{SignalMessage("first"), SignalMessage("second")})

	msg, ok := m.TryRecv()
	require.True(t, ok)
	require.Equal(t, "first", msg.Signal)

	msg, ok = m.TryRecv()
	require.True(t, ok)
	require.Equal(t, "second", msg.Signal)

	msg, ok = m.TryRecv()
	require.True(t, ok)
	require.Equal(t, "late", msg.Signal)
}

func TestMailboxHasMessagesAndLen(t *testing.T) {
	var m Mailbox
	require.False(t, m.HasMessages())
	require.Equal(t, 0, m.Len())

	m.Send(SignalMessage("x"))
	require.True(t, m.HasMessages())
	require.Equal(t, 1, m.Len())
}

func TestMailboxPutFrontEmptyIsNoop(t *testing.T) {
	var m Mailbox
	m.Send(SignalMessage("only"))
	m.PutFront(nil)
	require.Equal(t, 1, m.Len())
}
