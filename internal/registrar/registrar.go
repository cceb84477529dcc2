// Package registrar implements C2: opening the authenticated session to
// the infrastructure printer, performing system-level registration when
// needed, and creating the pull subscription.
package registrar

import (
	"context"
	"fmt"
	"time"

	"github.com/istopwg/ippinfra/internal/backoff"
	"github.com/istopwg/ippinfra/internal/capability"
	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/logging"
	"github.com/istopwg/ippinfra/internal/proxyctx"
)

// Dialer opens an ipp.Client, matching the signature internal/ipp.Dial
// exposes; abstracted so tests can substitute a fake transport.
type Dialer func(ctx context.Context, target string) (*ipp.Client, error)

// Session is what the registrar hands back to the poller and worker: a
// live connection plus the allocated subscription id.
type Session struct {
	Client         *ipp.Client
	SubscriptionID int32
}

// Register implements §4.2's full procedure: connect with back-off,
// optionally bootstrap from /ipp/system, then create the pull subscription.
// Registration failures are fatal (§7, §6 exit code 1) except for transient
// connectivity errors, which retry indefinitely via the Fibonacci sequence
// unless pc.Done() becomes true.
func Register(ctx context.Context, pc *proxyctx.Context, dial Dialer, log *logging.Logger) (*Session, error) {
	client, err := connectWithBackoff(ctx, pc, dial, log)
	if err != nil {
		return nil, err
	}

	if pc.ResourcePath() == "/ipp/system" {
		if err := bootstrapFromSystem(ctx, pc, client, log); err != nil {
			return nil, fmt.Errorf("registrar: system registration: %w", err)
		}
		// §4.2 step 2: reconnect using the concrete printer URI returned by
		// Register-Output-Device.
		client, err = connectWithBackoff(ctx, pc, dial, log)
		if err != nil {
			return nil, err
		}
	}

	subID, err := createSubscription(ctx, pc, client)
	if err != nil {
		return nil, fmt.Errorf("registrar: create subscription: %w", err)
	}

	return &Session{Client: client, SubscriptionID: subID}, nil
}

func connectWithBackoff(ctx context.Context, pc *proxyctx.Context, dial Dialer, log *logging.Logger) (*ipp.Client, error) {
	seq := backoff.New()
	for {
		if pc.Done() {
			return nil, fmt.Errorf("registrar: shutdown requested before connecting")
		}
		client, err := dial(ctx, pc.PrinterURI())
		if err == nil {
			return client, nil
		}
		delay := seq.Duration()
		log.Warn("infrastructure printer not responding, retrying", "uri", pc.PrinterURI(), "retry_in", delay)
		if !InterruptibleSleep(ctx, pc, delay) {
			return nil, fmt.Errorf("registrar: shutdown requested during back-off")
		}
	}
}

// InterruptibleSleep sleeps for d in 1-second increments so shutdown stays
// responsive (§5 suspension-point rule), returning false as soon as
// pc.Done() fires or ctx is canceled.
func InterruptibleSleep(ctx context.Context, pc *proxyctx.Context, d time.Duration) bool {
	remaining := d
	for remaining > 0 {
		step := time.Second
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
		}
		if pc.Done() {
			return false
		}
		remaining -= step
	}
	return true
}

func bootstrapFromSystem(ctx context.Context, pc *proxyctx.Context, client *ipp.Client, log *logging.Logger) error {
	reqID := client.NextRequestID()
	req := ipp.RegisterOutputDevice(reqID, pc.PrinterURI(), capability.DeviceUUIDURN(pc.DeviceUUID()), pc.RequestingUser)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		return err
	}
	if resp.Status().IsError() {
		return &ipp.StatusError{Status: resp.Status(), Op: ipp.OpRegisterOutputDevice}
	}

	xri, ok := extractXRI(resp)
	if !ok {
		// §7: "missing xri-uri after system registration" is fatal for
		// this scope.
		return fmt.Errorf("registrar: printer-xri-supported[0].xri-uri missing from Register-Output-Device response")
	}

	log.Info("registered with infrastructure system, printer URI resolved", "xri_uri", xri)
	pc.SetPrinterURI(xri)
	return nil
}

// extractXRI pulls printer-xri-supported[0].xri-uri out of a
// Register-Output-Device response, per §4.2 step 2.
func extractXRI(resp *ipp.Message) (string, bool) {
	attr, ok := resp.Find("printer-xri-supported")
	if !ok || len(attr.Values) == 0 {
		return "", false
	}
	first := attr.Values[0]
	if first.Tag != ipp.TagCollection {
		return "", false
	}
	for _, member := range first.Collection {
		if member.Name == "xri-uri" {
			if s := member.String(); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func createSubscription(ctx context.Context, pc *proxyctx.Context, client *ipp.Client) (int32, error) {
	reqID := client.NextRequestID()
	req := ipp.CreatePrinterSubscriptions(reqID, pc.PrinterURI(), capability.DeviceUUIDURN(pc.DeviceUUID()), pc.RequestingUser)

	resp, err := client.Do(ctx, req, nil)
	if err != nil {
		return 0, err
	}
	if resp.Status().IsError() {
		return 0, &ipp.StatusError{Status: resp.Status(), Op: ipp.OpCreatePrinterSubscriptions}
	}

	attr, ok := resp.Find("notify-subscription-id")
	if !ok {
		return 0, fmt.Errorf("registrar: notify-subscription-id missing from response")
	}
	id, _ := attr.Int()
	return id, nil
}

// Deregister implements the §4.2 shutdown sequence: cancel the
// subscription, then deregister. Both calls are best-effort (§7: "final
// deregistration is best-effort").
func Deregister(ctx context.Context, pc *proxyctx.Context, sess *Session, log *logging.Logger) {
	reqID := sess.Client.NextRequestID()
	cancelReq := ipp.CancelSubscription(reqID, pc.PrinterURI(), capability.DeviceUUIDURN(pc.DeviceUUID()), pc.RequestingUser, sess.SubscriptionID)
	if _, err := sess.Client.Do(ctx, cancelReq, nil); err != nil {
		log.Warn("best-effort subscription cancel failed", "err", err)
	}

	reqID = sess.Client.NextRequestID()
	deregReq := ipp.DeregisterOutputDevice(reqID, pc.PrinterURI(), capability.DeviceUUIDURN(pc.DeviceUUID()), pc.RequestingUser)
	if _, err := sess.Client.Do(ctx, deregReq, nil); err != nil {
		log.Warn("best-effort output device deregistration failed", "err", err)
	}
}
