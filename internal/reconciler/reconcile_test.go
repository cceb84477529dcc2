package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/proxyctx"
)

type fakePusher struct {
	deltas []ipp.Attribute
	err    error
	calls  int
}

func (f *fakePusher) UpdateOutputDeviceAttributes(ctx context.Context, printerURI, deviceUUID, user string, deltas []ipp.Attribute) error {
	f.calls++
	f.deltas = deltas
	return f.err
}

func TestDelta_MissingPreviousIsADelta(t *testing.T) {
	t.Parallel()

	newAttrs := ipp.AttributeSet{
		"color-supported": {Name: "color-supported", Values: []ipp.Value{ipp.Bool(true)}},
	}
	got := Delta(ipp.AttributeSet{}, newAttrs)
	require.Len(t, got, 1)
	require.Equal(t, "color-supported", got[0].Name)
}

func TestDelta_UnchangedAttributeIsNotADelta(t *testing.T) {
	t.Parallel()

	attrs := ipp.AttributeSet{
		"color-supported": {Name: "color-supported", Values: []ipp.Value{ipp.Bool(true)}},
	}
	require.Empty(t, Delta(attrs, attrs))
}

func TestDelta_ChangedValueIsADelta(t *testing.T) {
	t.Parallel()

	previous := ipp.AttributeSet{
		"print-quality-supported": {Name: "print-quality-supported", Values: []ipp.Value{ipp.Enum(4)}},
	}
	next := ipp.AttributeSet{
		"print-quality-supported": {Name: "print-quality-supported", Values: []ipp.Value{ipp.Enum(5)}},
	}
	got := Delta(previous, next)
	require.Len(t, got, 1)
	require.Equal(t, int32(5), got[0].Values[0].Int)
}

func TestDelta_IgnoresAttributesOutsideAllowlist(t *testing.T) {
	t.Parallel()

	next := ipp.AttributeSet{
		"printer-name": {Name: "printer-name", Values: []ipp.Value{ipp.Text("acme-1")}},
	}
	require.Empty(t, Delta(ipp.AttributeSet{}, next))
}

func TestReconcile_NoDeltaSkipsPush(t *testing.T) {
	t.Parallel()

	pc := proxyctx.New("https://infra.example.com/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "", "ippproxy")
	attrs := ipp.AttributeSet{
		"color-supported": {Name: "color-supported", Values: []ipp.Value{ipp.Bool(false)}},
	}
	pc.SetDeviceAttrs(attrs)

	pusher := &fakePusher{}
	require.NoError(t, Reconcile(context.Background(), pc, attrs, pusher))
	require.Equal(t, 0, pusher.calls)
}

func TestReconcile_PushesDeltaAndAcceptsNewSet(t *testing.T) {
	t.Parallel()

	pc := proxyctx.New("https://infra.example.com/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "", "ippproxy")
	next := ipp.AttributeSet{
		"color-supported": {Name: "color-supported", Values: []ipp.Value{ipp.Bool(true)}},
	}

	pusher := &fakePusher{}
	require.NoError(t, Reconcile(context.Background(), pc, next, pusher))
	require.Equal(t, 1, pusher.calls)
	require.Len(t, pusher.deltas, 1)
	require.Equal(t, next, pc.DeviceAttrs())
}

func TestReconcile_PushFailureLeavesAcceptedSetUnchanged(t *testing.T) {
	t.Parallel()

	pc := proxyctx.New("https://infra.example.com/ipp/print/acme-1", "socket://printer.example.com", uuid.New(), "", "ippproxy")
	previous := ipp.AttributeSet{}
	pc.SetDeviceAttrs(previous)

	next := ipp.AttributeSet{
		"color-supported": {Name: "color-supported", Values: []ipp.Value{ipp.Bool(true)}},
	}
	pusher := &fakePusher{err: errors.New("device unreachable")}
	err := Reconcile(context.Background(), pc, next, pusher)
	require.Error(t, err)
	require.Equal(t, previous, pc.DeviceAttrs())
}
