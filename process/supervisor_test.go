package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRestartPolicyShouldRestart(t *testing.T) {
	require.True(t, Permanent.ShouldRestart("normal"))
	require.True(t, Permanent.ShouldRestart("crash"))

	require.False(t, Temporary.ShouldRestart("normal"))
	require.False(t, Temporary.ShouldRestart("crash"))

	require.False(t, Transient.ShouldRestart("normal"))
	require.True(t, Transient.ShouldRestart("crash"))
}

func TestCanRestartRespectsIntensityWithinPeriod(t *testing.T) {
	sup := NewSupervisor(1, SupervisorSpec{Strategy: OneForOne, Intensity: 2, Period: time.Minute}, nil)

	require.True(t, sup.CanRestart())
	sup.RecordRestart()
	require.True(t, sup.CanRestart())
	sup.RecordRestart()
	require.False(t, sup.CanRestart())
}

func TestCanRestartResetsAfterPeriodElapses(t *testing.T) {
	sup := NewSupervisor(1, SupervisorSpec{Strategy: OneForOne, Intensity: 1, Period: time.Millisecond}, nil)
	sup.RecordRestart()
	require.False(t, sup.CanRestart())

	time.Sleep(5 * time.Millisecond)
	require.True(t, sup.CanRestart())
}

func TestCanRestartFalseWithoutSupervisor(t *testing.T) {
	p := New(1, nil, nil)
	require.False(t, p.CanRestart())
}

func TestChildSpecCarriesShutdownAndType(t *testing.T) {
	spec := ChildSpec{
		ID:       "worker-1",
		Restart:  Permanent,
		Shutdown: Shutdown{Kind: Timeout, After: 5 * time.Second},
		Type:     Worker,
	}
	require.Equal(t, Timeout, spec.Shutdown.Kind)
	require.Equal(t, 5*time.Second, spec.Shutdown.After)
	require.Equal(t, Worker, spec.Type)

	nested := ChildSpec{ID: "sup-1", Shutdown: Shutdown{Kind: Infinity}, Type: SupervisorChild}
	require.Equal(t, Infinity, nested.Shutdown.Kind)
	require.Equal(t, SupervisorChild, nested.Type)
}
