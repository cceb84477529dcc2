// Package worker implements C6: the job state machine that fetches a
// claimed infrastructure job's documents and transports them to the local
// output device, reporting progress back through the infrastructure wire
// protocol.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/istopwg/ippinfra/internal/backoff"
	"github.com/istopwg/ippinfra/internal/capability"
	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/jobtable"
	"github.com/istopwg/ippinfra/internal/logging"
	"github.com/istopwg/ippinfra/internal/proxyctx"
	"github.com/istopwg/ippinfra/internal/registrar"
	"github.com/istopwg/ippinfra/internal/transport"
)

const idleWaitBackstop = 15 * time.Second

// fallbackFormats is the §4.6 output-format fallback chain, tried in order
// only when the device does not advertise application/pdf.
var fallbackFormats = []string{"image/urf", "image/pwg-raster", "application/vnd.hp-pcl"}

// Worker owns its own infrastructure session, separate from the poller's,
// per §5's "Task W owns its own session for fetch/ack/update traffic".
type Worker struct {
	pc        *proxyctx.Context
	table     *jobtable.Table
	log       *logging.Logger
	dial      registrar.Dialer
	localDial transport.LocalDialer
	session   *registrar.Session

	reconnectSeq *backoff.Sequence
}

func New(pc *proxyctx.Context, table *jobtable.Table, session *registrar.Session, dial registrar.Dialer, localDial transport.LocalDialer, log *logging.Logger) *Worker {
	return &Worker{pc: pc, table: table, session: session, dial: dial, localDial: localDial, log: log, reconnectSeq: backoff.New()}
}

// Run implements §4.6 steps 1-3: scan, run-or-wait, prune, repeat until
// pc.Done().
func (w *Worker) Run(ctx context.Context) {
	for !w.pc.Done() {
		rec := w.table.FirstPendingEligible()
		if rec == nil {
			w.table.PruneTerminal()
			w.table.Wait(idleTimeoutChan())
			continue
		}
		w.runJob(ctx, rec)
	}
}

func idleTimeoutChan() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		time.Sleep(idleWaitBackstop)
		close(ch)
	}()
	return ch
}

// runJob drives one job record through the state machine diagrammed in
// §4.6. It is atomic per job: any transport/HTTP failure aborts only this
// job, never the process.
func (w *Worker) runJob(ctx context.Context, rec *proxyctx.Record) {
	jobID := rec.RemoteJobID
	client := w.ensureSession(ctx)
	if client == nil {
		// Connection loss at the session-open boundary: leave the record
		// pending so the next scan retries it once the worker reconnects.
		return
	}
	log := w.log.ForJob(jobID)

	fetchResp, err := w.fetchJob(ctx, client, jobID)
	if err != nil {
		if fetchResp != nil && fetchResp.Status().NotFetchable() {
			log.Info("job already claimed by another output device")
			rec.SetLocal(proxyctx.JobStateCompleted)
			return
		}
		log.Warn("Fetch-Job failed, aborting job", "err", err)
		rec.SetLocal(proxyctx.JobStateAborted)
		w.reportFinalStatus(ctx, client, jobID, proxyctx.JobStateAborted, log)
		return
	}

	if err := w.acknowledgeJob(ctx, client, jobID); err != nil {
		log.Warn("Acknowledge-Job failed, aborting job", "err", err)
		rec.SetLocal(proxyctx.JobStateAborted)
		w.reportFinalStatus(ctx, client, jobID, proxyctx.JobStateAborted, log)
		return
	}
	rec.SetLocal(proxyctx.JobStateProcessing)

	numDocs := numberOfDocuments(fetchResp)
	format := chooseOutputFormat(w.pc)
	jobAttrs := fetchResp.AttrSet()

	final := w.runDocuments(ctx, client, rec, jobAttrs, numDocs, format, log)
	rec.SetLocal(final)
	w.reportFinalStatus(ctx, client, jobID, final, log)
}

// ensureSession returns the worker's live client, reconnecting with
// Fibonacci back-off if the previous one was torn down. It never blocks
// past pc.Done() becoming true.
func (w *Worker) ensureSession(ctx context.Context) *ipp.Client {
	if w.session.Client != nil {
		return w.session.Client
	}
	client, err := w.dial(ctx, w.pc.PrinterURI())
	if err != nil {
		delay := w.reconnectSeq.Duration()
		w.log.Warn("worker session reconnect failed, retrying", "retry_in", delay, "err", err)
		registrar.InterruptibleSleep(ctx, w.pc, delay)
		return nil
	}
	w.reconnectSeq.Reset()
	w.session.Client = client
	return client
}

func (w *Worker) fetchJob(ctx context.Context, client *ipp.Client, jobID int32) (*ipp.Message, error) {
	reqID := client.NextRequestID()
	req := ipp.FetchJob(reqID, w.pc.PrinterURI(), capability.DeviceUUIDURN(w.pc.DeviceUUID()), w.pc.RequestingUser, jobID)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		w.session.Client = nil
		return nil, fmt.Errorf("worker: Fetch-Job transport: %w", err)
	}
	if resp.Status().IsError() {
		return resp, &ipp.StatusError{Status: resp.Status(), Op: ipp.OpFetchJob}
	}
	return resp, nil
}

func (w *Worker) acknowledgeJob(ctx context.Context, client *ipp.Client, jobID int32) error {
	reqID := client.NextRequestID()
	req := ipp.AcknowledgeJob(reqID, w.pc.PrinterURI(), capability.DeviceUUIDURN(w.pc.DeviceUUID()), w.pc.RequestingUser, jobID)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		w.session.Client = nil
		return fmt.Errorf("worker: Acknowledge-Job transport: %w", err)
	}
	if resp.Status().IsError() {
		return &ipp.StatusError{Status: resp.Status(), Op: ipp.OpAcknowledgeJob}
	}
	return nil
}

// runDocuments implements the §4.6 per-document loop and returns the
// terminal local_job_state the worker settled on. jobAttrs is the fetched
// job's own attribute set, the source for the operation/job-template
// attributes §4.7 copies onto the local submission.
func (w *Worker) runDocuments(ctx context.Context, client *ipp.Client, rec *proxyctx.Record, jobAttrs ipp.AttributeSet, numDocs int32, format string, log *logging.JobLogger) proxyctx.JobState {
	for d := int32(1); d <= numDocs; d++ {
		if state, stop := terminalFromRemote(rec); stop {
			log.Info("remote job reached a terminal state before document fetch, stopping", "document", d, "remote_state", rec.Remote())
			return state
		}

		if err := w.updateDocumentStatus(ctx, client, rec.RemoteJobID, d, "processing"); err != nil {
			log.Warn("Update-Document-Status(processing) failed, aborting job", "document", d, "err", err)
			return proxyctx.JobStateAborted
		}

		data, compression, err := w.fetchDocument(ctx, client, rec.RemoteJobID, d, format)
		if err != nil {
			log.Warn("Fetch-Document failed, aborting job", "document", d, "err", err)
			return proxyctx.JobStateAborted
		}

		if err := w.transportDocument(ctx, rec, jobAttrs, data, format, compression); err != nil {
			log.Warn("document transport failed, aborting job", "document", d, "err", err)
			return proxyctx.JobStateAborted
		}
		if state, stop := terminalFromRemote(rec); stop {
			log.Info("remote job reached a terminal state during transport", "document", d, "remote_state", rec.Remote())
			return state
		}

		if err := w.acknowledgeDocument(ctx, client, rec.RemoteJobID, d); err != nil {
			log.Warn("Acknowledge-Document failed, aborting job", "document", d, "err", err)
			return proxyctx.JobStateAborted
		}
		if err := w.updateDocumentStatus(ctx, client, rec.RemoteJobID, d, "completed"); err != nil {
			log.Warn("Update-Document-Status(completed) failed, aborting job", "document", d, "err", err)
			return proxyctx.JobStateAborted
		}
	}
	return proxyctx.JobStateCompleted
}

// fetchDocument returns the document bytes and the compression encoding, if
// any, the infrastructure printer named on the "compression" attribute of
// its Fetch-Document response — the §4.7 inbound encoding the transport
// adapter must either pass through or transcode away before the local
// device sees it.
func (w *Worker) fetchDocument(ctx context.Context, client *ipp.Client, jobID, docNumber int32, format string) ([]byte, string, error) {
	reqID := client.NextRequestID()
	req := ipp.FetchDocument(reqID, w.pc.PrinterURI(), capability.DeviceUUIDURN(w.pc.DeviceUUID()), w.pc.RequestingUser, jobID, docNumber, format)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		w.session.Client = nil
		return nil, "", fmt.Errorf("worker: Fetch-Document transport: %w", err)
	}
	if resp.Status().IsError() {
		return nil, "", &ipp.StatusError{Status: resp.Status(), Op: ipp.OpFetchDocument}
	}
	compression := ""
	if attr, ok := resp.Find("compression"); ok {
		compression = attr.String()
	}
	return resp.Data, compression, nil
}

func (w *Worker) acknowledgeDocument(ctx context.Context, client *ipp.Client, jobID, docNumber int32) error {
	reqID := client.NextRequestID()
	req := ipp.AcknowledgeDocument(reqID, w.pc.PrinterURI(), capability.DeviceUUIDURN(w.pc.DeviceUUID()), w.pc.RequestingUser, jobID, docNumber)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		w.session.Client = nil
		return fmt.Errorf("worker: Acknowledge-Document transport: %w", err)
	}
	if resp.Status().IsError() {
		return &ipp.StatusError{Status: resp.Status(), Op: ipp.OpAcknowledgeDocument}
	}
	return nil
}

func (w *Worker) updateDocumentStatus(ctx context.Context, client *ipp.Client, jobID, docNumber int32, state string) error {
	reqID := client.NextRequestID()
	req := ipp.UpdateDocumentStatus(reqID, w.pc.PrinterURI(), capability.DeviceUUIDURN(w.pc.DeviceUUID()), w.pc.RequestingUser, jobID, docNumber, state)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		w.session.Client = nil
		return fmt.Errorf("worker: Update-Document-Status transport: %w", err)
	}
	if resp.Status().IsError() {
		return &ipp.StatusError{Status: resp.Status(), Op: ipp.OpUpdateDocumentStatus}
	}
	return nil
}

// reportFinalStatus issues the job's terminal Update-Job-Status. It is
// best-effort: the session may already be broken, in which case the
// failure is logged and swallowed rather than retried (§7: "the worker
// does not mid-state-machine retry").
func (w *Worker) reportFinalStatus(ctx context.Context, client *ipp.Client, jobID int32, state proxyctx.JobState, log *logging.JobLogger) {
	if client == nil {
		client = w.ensureSession(ctx)
		if client == nil {
			log.Warn("could not report final job status: no session", "state", state)
			return
		}
	}
	reqID := client.NextRequestID()
	req := ipp.UpdateJobStatus(reqID, w.pc.PrinterURI(), capability.DeviceUUIDURN(w.pc.DeviceUUID()), w.pc.RequestingUser, jobID, state.String())

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		w.session.Client = nil
		log.Warn("Update-Job-Status failed", "state", state, "err", err)
		return
	}
	if resp.Status().IsError() {
		log.Warn("Update-Job-Status rejected", "state", state, "status", resp.Status())
	}
}

// transportDocument dispatches data to the local output device according
// to device_uri's scheme (§4.7), canceling the local job if the remote job
// is canceled mid-transport. jobAttrs is the fetched job's own attribute
// set, not the local device's probed capabilities — §4.7's copied
// operation/job-template attributes (job-name, copies, media, ...) come
// from the job the submitter created, never from the device. compression
// is the encoding named on the document's Fetch-Document response, which
// the transport adapter either passes through or transcodes away depending
// on what the local device advertises.
func (w *Worker) transportDocument(ctx context.Context, rec *proxyctx.Record, jobAttrs ipp.AttributeSet, data []byte, format, compression string) error {
	deviceURI := w.pc.DeviceURI()
	scheme := schemeOf(deviceURI)

	remoteCanceled := func() bool { return rec.Remote() == proxyctx.JobStateCanceled }

	switch scheme {
	case "socket":
		return transport.SendToSocket(ctx, deviceURI, bytes.NewReader(data), compression)
	case "ipp", "ipps":
		copied := transport.BuildCopiedAttributes(jobAttrs)
		result, err := transport.SendToLocalPrinter(ctx, w.localDial, deviceURI, copied, format, compression, bytes.NewReader(data), remoteCanceled)
		if err != nil {
			return err
		}
		rec.SetLocalID(result.JobID)
		return nil
	default:
		return fmt.Errorf("worker: unsupported device URI scheme %q", deviceURI)
	}
}

func schemeOf(deviceURI string) string {
	for i, ch := range deviceURI {
		if ch == ':' {
			return deviceURI[:i]
		}
	}
	return ""
}

// terminalFromRemote implements the diagram's "any state -- remote
// canceled -> local cancel -> canceled" edge, generalized to the other
// remote terminal states the infrastructure can report: a remote
// cancellation maps to a local cancel, while a remote abort or completion
// mirrors onto the matching local terminal state rather than forcing a
// cancel that never happened.
func terminalFromRemote(rec *proxyctx.Record) (proxyctx.JobState, bool) {
	switch rec.Remote() {
	case proxyctx.JobStateCanceled:
		return proxyctx.JobStateCanceled, true
	case proxyctx.JobStateAborted:
		return proxyctx.JobStateAborted, true
	case proxyctx.JobStateCompleted:
		return proxyctx.JobStateCompleted, true
	default:
		return proxyctx.JobStatePending, false
	}
}

// numberOfDocuments implements §4.6's defaulting rule: absent or < 1
// becomes 1.
func numberOfDocuments(resp *ipp.Message) int32 {
	attr, ok := resp.Find("number-of-documents")
	if !ok {
		return 1
	}
	n, ok := attr.Int()
	if !ok || n < 1 {
		return 1
	}
	return n
}

// chooseOutputFormat implements §4.6's selection rule.
func chooseOutputFormat(pc *proxyctx.Context) string {
	if pref := pc.PreferredOutputFormat(); pref != "" {
		return pref
	}

	supported := map[string]bool{}
	if attr, ok := pc.DeviceAttrs().Get("document-format-supported"); ok {
		for _, s := range attr.Strings() {
			supported[s] = true
		}
	}

	if supported["application/pdf"] {
		return "application/pdf"
	}
	for _, f := range fallbackFormats {
		if supported[f] {
			return f
		}
	}
	return ""
}
