// Package poller implements C4: the event poller that drains the
// subscription's notification queue, classifies events, and enqueues
// actionable job ids into the Job Table.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/istopwg/ippinfra/internal/capability"
	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/jobtable"
	"github.com/istopwg/ippinfra/internal/logging"
	"github.com/istopwg/ippinfra/internal/proxyctx"
	"github.com/istopwg/ippinfra/internal/registrar"
)

const (
	defaultGetInterval = 10
	minGetInterval     = 0
	maxGetInterval     = 30
)

// Poller owns the infrastructure session used for reads (§5, Task E).
type Poller struct {
	pc      *proxyctx.Context
	table   *jobtable.Table
	log     *logging.Logger
	dial    registrar.Dialer
	session *registrar.Session

	seqNumber int32
}

func New(pc *proxyctx.Context, table *jobtable.Table, session *registrar.Session, dial registrar.Dialer, log *logging.Logger) *Poller {
	return &Poller{pc: pc, table: table, session: session, dial: dial, log: log}
}

// StartupScan implements §4.4's pre-loop seeding: Get-Jobs with
// which-jobs=fetchable, inserting a record for any job already in state
// pending or stopped.
func (p *Poller) StartupScan(ctx context.Context) error {
	client := p.session.Client
	reqID := client.NextRequestID()
	req := ipp.GetJobsFetchable(reqID, p.pc.PrinterURI(), capability.DeviceUUIDURN(p.pc.DeviceUUID()), p.pc.RequestingUser)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		return err
	}
	if resp.Status().IsError() {
		return &ipp.StatusError{Status: resp.Status(), Op: ipp.OpGetJobs}
	}

	for _, g := range resp.Groups {
		if g.Tag != ipp.GroupJob {
			continue
		}
		jobSet := ipp.FromGroups([]ipp.AttributeGroup{g}, ipp.GroupOperation)
		idAttr, ok := jobSet.Get("job-id")
		if !ok {
			continue
		}
		jobID, _ := idAttr.Int()

		stateName := "pending"
		if sAttr, ok := jobSet.Get("job-state"); ok {
			if enumVal, ok := sAttr.Int(); ok {
				stateName = jobStateKeywordFromEnum(enumVal)
			}
		}
		state := proxyctx.ParseJobState(stateName)
		if state != proxyctx.JobStatePending && state != proxyctx.JobStateStopped {
			continue
		}

		p.table.Insert(proxyctx.NewRecord(jobID, state))
	}
	return nil
}

// Run loops until pc.Done(), implementing §4.4 steps 1-6.
func (p *Poller) Run(ctx context.Context) {
	for !p.pc.Done() {
		interval, err := p.pollOnce(ctx)
		if err != nil {
			p.log.Warn("Get-Notifications failed", "err", err)
			interval = defaultGetInterval
		}

		if !registrar.InterruptibleSleep(ctx, p.pc, time.Duration(interval)*time.Second) {
			return
		}
		if p.pc.Done() {
			return
		}

		// §4.4 step 6: "reconnect the session (the connection may have
		// been idle-closed by the peer)".
		p.reconnect(ctx)
	}
}

func (p *Poller) reconnect(ctx context.Context) {
	client, err := p.dial(ctx, p.pc.PrinterURI())
	if err != nil {
		p.log.Warn("poller reconnect failed, retrying next cycle", "err", err)
		return
	}
	p.session.Client = client
}

// pollOnce issues one Get-Notifications round trip and dispatches every
// event found, returning the clamped inter-poll interval (§4.4 step 2).
func (p *Poller) pollOnce(ctx context.Context) (int, error) {
	client := p.session.Client
	reqID := client.NextRequestID()
	req := ipp.GetNotifications(reqID, p.pc.PrinterURI(), capability.DeviceUUIDURN(p.pc.DeviceUUID()), p.pc.RequestingUser, p.session.SubscriptionID, p.seqNumber)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		return defaultGetInterval, err
	}
	if resp.Status().IsError() {
		return defaultGetInterval, &ipp.StatusError{Status: resp.Status(), Op: ipp.OpGetNotifications}
	}

	interval := defaultGetInterval
	if iv, ok := resp.Find("notify-get-interval"); ok {
		if n, ok := iv.Int(); ok {
			interval = clampInterval(int(n))
		}
	}

	p.dispatchEvents(ctx, resp)
	return interval, nil
}

func clampInterval(v int) int {
	if v < minGetInterval {
		return minGetInterval
	}
	if v > maxGetInterval {
		return maxGetInterval
	}
	return v
}

// eventGroup is the accumulated per-group state §4.4 step 3 describes.
// Group boundaries are the only record separator (per the spec's Open
// Question guidance): everything inside one GroupEventNotification group
// belongs to the same event.
type eventGroup struct {
	subscribedEvent string
	jobID           int32
	haveJobID       bool
	jobState        string
	seqNumber       int32
	identifyRequest bool
}

// dispatchEvents implements §4.4 steps 3-5: it walks event groups strictly
// in response order, accumulates one eventGroup per notification, and
// dispatches on subscribedEvent.
func (p *Poller) dispatchEvents(ctx context.Context, resp *ipp.Message) {
	var maxSeq int32 = -1

	for _, g := range resp.Groups {
		if g.Tag != ipp.GroupEventNotification {
			continue
		}
		ev := parseEventGroup(g)
		if ev.seqNumber > maxSeq {
			maxSeq = ev.seqNumber
		}
		p.handleEvent(ctx, ev)
	}

	if maxSeq >= 0 {
		next := maxSeq + 1
		if next > p.seqNumber {
			p.seqNumber = next
		}
	}
}

func parseEventGroup(g ipp.AttributeGroup) eventGroup {
	var ev eventGroup
	for _, a := range g.Attributes {
		switch a.Name {
		case "notify-subscribed-event":
			ev.subscribedEvent = a.String()
		case "job-id", "notify-job-id":
			if n, ok := a.Int(); ok {
				ev.jobID = n
				ev.haveJobID = true
			}
		case "job-state":
			if n, ok := a.Int(); ok {
				ev.jobState = jobStateKeywordFromEnum(n)
			} else {
				ev.jobState = a.String()
			}
		case "notify-sequence-number":
			if n, ok := a.Int(); ok {
				ev.seqNumber = n
			}
		case "printer-state-reasons":
			for _, v := range a.Strings() {
				if v == "identify-printer-requested" {
					ev.identifyRequest = true
				}
			}
		}
	}
	return ev
}

func (p *Poller) handleEvent(ctx context.Context, ev eventGroup) {
	if ev.identifyRequest {
		p.handleIdentify(ctx)
	}

	switch ev.subscribedEvent {
	case "job-fetchable":
		if !ev.haveJobID {
			return
		}
		if _, exists := p.table.Get(ev.jobID); !exists {
			// §4.4 step 5: the new record's remote state is the one the
			// event itself reports, not assumed pending.
			p.table.Insert(proxyctx.NewRecord(ev.jobID, proxyctx.ParseJobState(ev.jobState)))
		}
	case "job-state-changed":
		if !ev.haveJobID {
			return
		}
		if rec, exists := p.table.Get(ev.jobID); exists {
			rec.SetRemote(proxyctx.ParseJobState(ev.jobState))
			p.table.Signal()
		}
	}
}

// handleIdentify implements §4.4 step 5.
func (p *Poller) handleIdentify(ctx context.Context) {
	client := p.session.Client
	reqID := client.NextRequestID()
	req := ipp.AcknowledgeIdentifyPrinter(reqID, p.pc.PrinterURI(), capability.DeviceUUIDURN(p.pc.DeviceUUID()), p.pc.RequestingUser)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		p.log.Warn("Acknowledge-Identify-Printer failed", "err", err)
		return
	}

	actions := map[string]bool{}
	if attr, ok := resp.Find("identify-actions"); ok {
		for _, s := range attr.Strings() {
			actions[s] = true
		}
	}

	message := ""
	if attr, ok := resp.Find("message"); ok {
		message = attr.String()
	}

	if actions["display"] {
		p.log.Info("identify-printer: display", "message", message)
	}
	if actions["sound"] || len(actions) == 0 {
		p.log.Info(fmt.Sprintf("identify-printer: sound \a%s", message))
	}
}

// jobStateKeywordFromEnum maps the IPP job-state enum values (3-9) used on
// the wire to the keyword names proxyctx.ParseJobState expects.
func jobStateKeywordFromEnum(v int32) string {
	switch v {
	case 3:
		return "pending"
	case 4:
		return "pending-held"
	case 5:
		return "processing"
	case 6:
		return "processing-stopped"
	case 7:
		return "canceled"
	case 8:
		return "aborted"
	case 9:
		return "completed"
	default:
		return "pending"
	}
}
