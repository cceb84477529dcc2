// Package reconciler implements C3: diffing a freshly probed attribute set
// against the last-accepted one and pushing only the deltas.
package reconciler

import (
	"context"

	"github.com/istopwg/ippinfra/internal/capability"
	"github.com/istopwg/ippinfra/internal/ipp"
	"github.com/istopwg/ippinfra/internal/proxyctx"
)

// Pusher issues Update-Output-Device-Attributes.
type Pusher interface {
	UpdateOutputDeviceAttributes(ctx context.Context, printerURI, deviceUUID, user string, deltas []ipp.Attribute) error
}

// Reconcile compares newAttrs against pc's last-accepted attribute set and
// pushes an Update-Output-Device-Attributes request containing only the
// attributes that changed or were newly introduced, restricted to the
// tracked-attribute allowlist (§4.3, which is the same list C1 requests).
// On success it replaces pc's accepted attribute set with newAttrs.
//
// Two successive probes yielding an equal allowlisted set produce zero
// requests (§8 round-trip property) because Delta returns an empty slice
// and Reconcile skips the push entirely in that case.
func Reconcile(ctx context.Context, pc *proxyctx.Context, newAttrs ipp.AttributeSet, pusher Pusher) error {
	deltas := Delta(pc.DeviceAttrs(), newAttrs)
	if len(deltas) == 0 {
		pc.SetDeviceAttrs(newAttrs)
		return nil
	}

	if err := pusher.UpdateOutputDeviceAttributes(ctx, pc.PrinterURI(), capability.DeviceUUIDURN(pc.DeviceUUID()), pc.RequestingUser, deltas); err != nil {
		return err
	}
	pc.SetDeviceAttrs(newAttrs)
	return nil
}

// Delta returns every allowlisted attribute in newAttrs that is missing
// from previous or unequal to it under §4.3's equality semantics.
func Delta(previous, newAttrs ipp.AttributeSet) []ipp.Attribute {
	var deltas []ipp.Attribute
	for _, name := range capability.RequestedAttributes {
		nv, ok := newAttrs.Get(name)
		if !ok {
			continue
		}
		pv, existed := previous.Get(name)
		if !existed || !pv.Equal(nv) {
			deltas = append(deltas, nv)
		}
	}
	return deltas
}
