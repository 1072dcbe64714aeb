package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegistersDistinctMetrics(t *testing.T) {
	collector, reg := NewCollector()
	collector.ProcessesSpawned.Inc()
	collector.ProcessesExited.Inc()
	collector.ActiveProcesses.Set(3)
	collector.ReductionsRun.Add(10)
	collector.MessagesDelivered.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestTwoCollectorsDoNotCollide(t *testing.T) {
	_, reg1 := NewCollector()
	_, reg2 := NewCollector()
	require.NotPanics(t, func() {
		reg1.Gather()
		reg2.Gather()
	})
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	collector, reg := NewCollector()
	collector.ProcessesSpawned.Inc()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 4096)
	n, _ := resp.Body.Read(buf)
	require.True(t, strings.Contains(string(buf[:n]), "ttvm_processes_spawned_total"))
}
