package proxyctx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestJobState_Terminal(t *testing.T) {
	t.Parallel()

	nonTerminal := []JobState{JobStatePending, JobStateHeld, JobStateProcessing, JobStateStopped}
	for _, s := range nonTerminal {
		require.False(t, s.Terminal(), s.String())
	}

	terminal := []JobState{JobStateCanceled, JobStateAborted, JobStateCompleted}
	for _, s := range terminal {
		require.True(t, s.Terminal(), s.String())
	}
}

func TestParseJobState_RoundTrip(t *testing.T) {
	t.Parallel()

	for s := JobStatePending; s <= JobStateCompleted; s++ {
		require.Equal(t, s, ParseJobState(s.String()))
	}
}

func TestParseJobState_UnknownDefaultsToPending(t *testing.T) {
	t.Parallel()

	require.Equal(t, JobStatePending, ParseJobState("not-a-real-state"))
}

func TestRecord_Prunable(t *testing.T) {
	t.Parallel()

	r := NewRecord(1, JobStatePending)
	require.False(t, r.Prunable())

	r.SetRemote(JobStateCanceled)
	require.True(t, r.Prunable())
}

func TestRecord_NewRecordDefaultsLocalToPending(t *testing.T) {
	t.Parallel()

	r := NewRecord(42, JobStateProcessing)
	require.Equal(t, int32(42), r.RemoteJobID)
	require.Equal(t, JobStateProcessing, r.Remote())
	require.Equal(t, JobStatePending, r.Local())
	require.Equal(t, int32(0), r.LocalID())
}

func TestContext_SetPrinterURIUpdatesResourcePath(t *testing.T) {
	t.Parallel()

	c := New("https://infra.example.com/ipp/system", "socket://printer.example.com", uuid.New(), "", "ippproxy")
	require.Equal(t, "/ipp/system", c.ResourcePath())

	c.SetPrinterURI("https://infra.example.com/ipp/print/acme-1")
	require.Equal(t, "https://infra.example.com/ipp/print/acme-1", c.PrinterURI())
	require.Equal(t, "/ipp/print/acme-1", c.ResourcePath())
}

func TestContext_DoneIsMonotonic(t *testing.T) {
	t.Parallel()

	c := New("https://infra.example.com/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "", "ippproxy")
	require.False(t, c.Done())

	c.Shutdown()
	require.True(t, c.Done())

	c.Shutdown()
	require.True(t, c.Done())
}

func TestContext_DeviceAttrsRoundTrip(t *testing.T) {
	t.Parallel()

	c := New("https://infra.example.com/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "application/pdf", "ippproxy")
	require.Equal(t, "application/pdf", c.PreferredOutputFormat())
	require.Empty(t, c.DeviceAttrs())
}
