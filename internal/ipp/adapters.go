package ipp

import "context"

// ClientProber adapts *Client to capability.Prober.
type ClientProber struct {
	Client *Client
}

func (p ClientProber) GetPrinterAttributes(ctx context.Context, deviceURI string, requested []string) (AttributeSet, error) {
	reqID := p.Client.NextRequestID()
	req := GetPrinterAttributes(reqID, deviceURI, requested)

	resp, err := p.Client.Do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status().IsError() {
		return nil, &StatusError{Status: resp.Status(), Op: OpGetPrinterAttributes}
	}
	return resp.AttrSet(), nil
}

// ClientPusher adapts *Client to reconciler.Pusher.
type ClientPusher struct {
	Client *Client
}

func (p ClientPusher) UpdateOutputDeviceAttributes(ctx context.Context, printerURI, deviceUUID, user string, deltas []Attribute) error {
	reqID := p.Client.NextRequestID()
	req := UpdateOutputDeviceAttributes(reqID, printerURI, deviceUUID, user, deltas)

	resp, err := p.Client.Do(ctx, req, nil)
	if err != nil {
		return err
	}
	if resp.Status().IsError() {
		return &StatusError{Status: resp.Status(), Op: OpUpdateOutputDeviceAttributes}
	}
	return nil
}
