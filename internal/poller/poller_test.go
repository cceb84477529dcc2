package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/jobtable"
	"github.com/istopwg/ippinfra/internal/logging"
	"github.com/istopwg/ippinfra/internal/proxyctx"
	"github.com/istopwg/ippinfra/internal/registrar"
)

func TestJobStateKeywordFromEnum(t *testing.T) {
	t.Parallel()

	cases := map[int32]string{
		3: "pending", 4: "pending-held", 5: "processing", 6: "processing-stopped",
		7: "canceled", 8: "aborted", 9: "completed", 99: "pending",
	}
	for enum, want := range cases {
		require.Equal(t, want, jobStateKeywordFromEnum(enum))
	}
}

func TestClampInterval(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, clampInterval(-5))
	require.Equal(t, 30, clampInterval(999))
	require.Equal(t, 10, clampInterval(10))
}

func TestParseEventGroup_CollectsAllFields(t *testing.T) {
	t.Parallel()

	g := ipp.AttributeGroup{Tag: ipp.GroupEventNotification, Attributes: []ipp.Attribute{
		{Name: "notify-subscribed-event", Values: []ipp.Value{ipp.Keyword("job-state-changed")}},
		{Name: "notify-job-id", Values: []ipp.Value{ipp.Int(42)}},
		{Name: "job-state", Values: []ipp.Value{ipp.Enum(7)}},
		{Name: "notify-sequence-number", Values: []ipp.Value{ipp.Int(3)}},
		{Name: "printer-state-reasons", Values: []ipp.Value{ipp.Keyword("identify-printer-requested")}},
	}}

	ev := parseEventGroup(g)
	require.Equal(t, "job-state-changed", ev.subscribedEvent)
	require.True(t, ev.haveJobID)
	require.Equal(t, int32(42), ev.jobID)
	require.Equal(t, "canceled", ev.jobState)
	require.Equal(t, int32(3), ev.seqNumber)
	require.True(t, ev.identifyRequest)
}

func TestDispatchEvents_JobFetchableInsertsPendingRecord(t *testing.T) {
	t.Parallel()

	table := jobtable.New()
	p := &Poller{table: table, log: logging.New(logging.ERROR, 16), pc: newTestContext()}

	resp := &ipp.Message{Groups: []ipp.AttributeGroup{
		{Tag: ipp.GroupEventNotification, Attributes: []ipp.Attribute{
			{Name: "notify-subscribed-event", Values: []ipp.Value{ipp.Keyword("job-fetchable")}},
			{Name: "job-id", Values: []ipp.Value{ipp.Int(9)}},
			{Name: "notify-sequence-number", Values: []ipp.Value{ipp.Int(0)}},
		}},
	}}

	p.dispatchEvents(context.Background(), resp)
	rec, ok := table.Get(9)
	require.True(t, ok)
	require.Equal(t, proxyctx.JobStatePending, rec.Remote())
	require.Equal(t, int32(1), p.seqNumber)
}

func TestDispatchEvents_JobStateChangedUpdatesExistingRecord(t *testing.T) {
	t.Parallel()

	table := jobtable.New()
	table.Insert(proxyctx.NewRecord(9, proxyctx.JobStatePending))
	p := &Poller{table: table, log: logging.New(logging.ERROR, 16), pc: newTestContext()}

	resp := &ipp.Message{Groups: []ipp.AttributeGroup{
		{Tag: ipp.GroupEventNotification, Attributes: []ipp.Attribute{
			{Name: "notify-subscribed-event", Values: []ipp.Value{ipp.Keyword("job-state-changed")}},
			{Name: "job-id", Values: []ipp.Value{ipp.Int(9)}},
			{Name: "job-state", Values: []ipp.Value{ipp.Enum(9)}},
			{Name: "notify-sequence-number", Values: []ipp.Value{ipp.Int(4)}},
		}},
	}}

	p.dispatchEvents(context.Background(), resp)
	rec, ok := table.Get(9)
	require.True(t, ok)
	require.Equal(t, proxyctx.JobStateCompleted, rec.Remote())
	require.Equal(t, int32(5), p.seqNumber)
}

func TestDispatchEvents_UnknownJobIDIgnoredForStateChange(t *testing.T) {
	t.Parallel()

	table := jobtable.New()
	p := &Poller{table: table, log: logging.New(logging.ERROR, 16), pc: newTestContext()}

	resp := &ipp.Message{Groups: []ipp.AttributeGroup{
		{Tag: ipp.GroupEventNotification, Attributes: []ipp.Attribute{
			{Name: "notify-subscribed-event", Values: []ipp.Value{ipp.Keyword("job-state-changed")}},
			{Name: "job-id", Values: []ipp.Value{ipp.Int(404)}},
		}},
	}}

	require.NotPanics(t, func() { p.dispatchEvents(context.Background(), resp) })
	require.Equal(t, 0, table.Len())
}

func newTestContext() *proxyctx.Context {
	return proxyctx.New("ipp://infra.example.com/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "", "ippproxy")
}

// fakeFetchableServer answers Get-Jobs with a fixed set of job groups, the
// shape StartupScan consumes.
func fakeFetchableServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := ipp.Decode(r.Body)
		require.NoError(t, err)
		require.Equal(t, uint16(ipp.OpGetJobs), req.OpOrStatus)

		resp := &ipp.Message{VersionMajor: 2, RequestID: req.RequestID, OpOrStatus: uint16(ipp.StatusOK)}
		resp.Groups = append(resp.Groups,
			ipp.AttributeGroup{Tag: ipp.GroupJob, Attributes: []ipp.Attribute{
				{Name: "job-id", Values: []ipp.Value{ipp.Int(1)}},
				{Name: "job-state", Values: []ipp.Value{ipp.Enum(3)}},
			}},
			ipp.AttributeGroup{Tag: ipp.GroupJob, Attributes: []ipp.Attribute{
				{Name: "job-id", Values: []ipp.Value{ipp.Int(2)}},
				{Name: "job-state", Values: []ipp.Value{ipp.Enum(9)}}, // completed, must be skipped
			}},
		)
		w.Header().Set("Content-Type", "application/ipp")
		ipp.Encode(w, resp)
	}))
}

func TestStartupScan_SeedsOnlyPendingAndStoppedJobs(t *testing.T) {
	t.Parallel()

	srv := fakeFetchableServer(t)
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	client, err := ipp.Dial(context.Background(), fmt.Sprintf("ipp://%s/ipp/print/acme-1", host), ipp.Options{})
	require.NoError(t, err)

	pc := newTestContext()
	table := jobtable.New()
	p := New(pc, table, &registrar.Session{Client: client}, nil, logging.New(logging.ERROR, 16))

	require.NoError(t, p.StartupScan(context.Background()))
	require.Equal(t, 1, table.Len())
	_, ok := table.Get(1)
	require.True(t, ok)
	_, ok = table.Get(2)
	require.False(t, ok)
}
