package process

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tinytotvm/value"
)

func TestValueMessageCarriesKindAndValue(t *testing.T) {
	msg := ValueMessage(value.Int(7))
	require.Equal(t, MsgValue, msg.Kind)
	require.Equal(t, int64(7), msg.Value.Int)
}

func TestExitAndDownMessageFields(t *testing.T) {
	exit := ExitMessage(3, "boom")
	require.Equal(t, MsgExit, exit.Kind)
	require.Equal(t, ID(3), exit.PID)
	require.Equal(t, "boom", exit.Reason)

	down := DownMessage(3, "ref-1", "boom")
	require.Equal(t, MsgDown, down.Kind)
	require.Equal(t, "ref-1", down.Ref)
}

func TestLinkUnlinkMonitorMessages(t *testing.T) {
	require.Equal(t, MsgLink, LinkMessage(1).Kind)
	require.Equal(t, MsgUnlink, UnlinkMessage(1).Kind)

	mon := MonitorMessage(2, "ref-9")
	require.Equal(t, MsgMonitor, mon.Kind)
	require.Equal(t, ID(2), mon.PID)
	require.Equal(t, "ref-9", mon.Ref)
}

func TestTrapExitMessage(t *testing.T) {
	msg := TrapExitMessage(true)
	require.Equal(t, MsgTrapExit, msg.Kind)
	require.True(t, msg.Trap)
}
