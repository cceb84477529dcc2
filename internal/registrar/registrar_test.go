package registrar

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
	"github.com/istopwg/ippinfra/internal/logging"
	"github.com/istopwg/ippinfra/internal/proxyctx"
)

// fakeInfra is a minimal IPP-over-HTTP server standing in for the
// infrastructure printer, just enough to drive Register/Deregister through
// their request/response shapes.
type fakeInfra struct {
	srv            *httptest.Server
	resolvedURI    string
	subscriptionID int32

	lastRegisterSystemURI string
	sawRegisterPrinterURI bool
}

func newFakeInfra(resolvedURI string, subscriptionID int32) *fakeInfra {
	f := &fakeInfra{resolvedURI: resolvedURI, subscriptionID: subscriptionID}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeInfra) handle(w http.ResponseWriter, r *http.Request) {
	req, err := ipp.Decode(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := &ipp.Message{VersionMajor: 2, VersionMinor: 0, RequestID: req.RequestID}
	switch ipp.Operation(req.OpOrStatus) {
	case ipp.OpRegisterOutputDevice:
		if a, ok := req.Find("system-uri"); ok {
			f.lastRegisterSystemURI = a.String()
		}
		if _, ok := req.Find("printer-uri"); ok {
			f.sawRegisterPrinterURI = true
		}
		resp.OpOrStatus = uint16(ipp.StatusOK)
		resp.AddOperationGroup(ipp.Attribute{
			Name: "printer-xri-supported",
			Values: []ipp.Value{ipp.Coll([]ipp.Attribute{
				{Name: "xri-uri", Values: []ipp.Value{ipp.URI(f.resolvedURI)}},
			})},
		})
	case ipp.OpCreatePrinterSubscriptions:
		resp.OpOrStatus = uint16(ipp.StatusOK)
		resp.AddOperationGroup(ipp.Attribute{
			Name:   "notify-subscription-id",
			Values: []ipp.Value{ipp.Int(f.subscriptionID)},
		})
	case ipp.OpCancelSubscription, ipp.OpDeregisterOutputDevice:
		resp.OpOrStatus = uint16(ipp.StatusOK)
	default:
		resp.OpOrStatus = uint16(ipp.StatusClientErrorBadRequest)
	}

	w.Header().Set("Content-Type", "application/ipp")
	ipp.Encode(w, resp)
}

func (f *fakeInfra) Close() { f.srv.Close() }

// ippTarget turns an httptest server's http:// URL plus a resource path
// into the ipp:// target string ipp.Dial expects, preserving host:port so
// the real dialer lands on the fake server.
func (f *fakeInfra) ippTarget(path string) string {
	host := strings.TrimPrefix(f.srv.URL, "http://")
	return fmt.Sprintf("ipp://%s%s", host, path)
}

func dialerFor(f *fakeInfra) Dialer {
	return func(ctx context.Context, target string) (*ipp.Client, error) {
		return ipp.Dial(ctx, target, ipp.Options{})
	}
}

func TestRegister_SystemBootstrapResolvesPrinterURIAndSubscribes(t *testing.T) {
	t.Parallel()

	f := newFakeInfra("", 77)
	defer f.Close()
	// The resolved xri-uri must itself point back at the fake server so the
	// reconnect step in Register succeeds.
	f.resolvedURI = f.ippTarget("/ipp/print/acme-1")

	pc := proxyctx.New(f.ippTarget("/ipp/system"), "socket://printer.example.com", uuid.New(), "", "ippproxy")
	log := logging.New(logging.ERROR, 16)

	sess, err := Register(context.Background(), pc, dialerFor(f), log)
	require.NoError(t, err)
	require.Equal(t, int32(77), sess.SubscriptionID)
	require.Equal(t, f.resolvedURI, pc.PrinterURI())

	require.Equal(t, f.ippTarget("/ipp/system"), f.lastRegisterSystemURI, "Register-Output-Device must carry system-uri")
	require.False(t, f.sawRegisterPrinterURI, "Register-Output-Device must not carry printer-uri")
}

func TestRegister_DirectPrinterURISkipsBootstrap(t *testing.T) {
	t.Parallel()

	f := newFakeInfra("", 5)
	defer f.Close()

	target := f.ippTarget("/ipp/print/acme-1")
	pc := proxyctx.New(target, "socket://printer.example.com", uuid.New(), "", "ippproxy")
	log := logging.New(logging.ERROR, 16)

	sess, err := Register(context.Background(), pc, dialerFor(f), log)
	require.NoError(t, err)
	require.Equal(t, int32(5), sess.SubscriptionID)
	require.Equal(t, target, pc.PrinterURI(), "a direct printer URI must never be rewritten")
}

func TestDeregister_BestEffortNeverPanics(t *testing.T) {
	t.Parallel()

	f := newFakeInfra("", 1)
	defer f.Close()

	target := f.ippTarget("/ipp/print/acme-1")
	pc := proxyctx.New(target, "socket://printer.example.com", uuid.New(), "", "ippproxy")
	log := logging.New(logging.ERROR, 16)

	sess, err := Register(context.Background(), pc, dialerFor(f), log)
	require.NoError(t, err)

	require.NotPanics(t, func() { Deregister(context.Background(), pc, sess, log) })
}

func TestRegister_ShutdownBeforeConnectingFailsFast(t *testing.T) {
	t.Parallel()

	pc := proxyctx.New("ipp://unreachable.invalid/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "", "ippproxy")
	pc.Shutdown()
	log := logging.New(logging.ERROR, 16)

	_, err := Register(context.Background(), pc, func(ctx context.Context, target string) (*ipp.Client, error) {
		t.Fatal("dialer must not be called once pc.Done() is already true")
		return nil, nil
	}, log)
	require.Error(t, err)
}
