package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/istopwg/ippinfra/internal/ipp"
)

// LocalDialer opens a connection to the local output device, matching
// ipp.Dial's signature so tests can substitute a fake transport.
type LocalDialer func(ctx context.Context, target string) (*ipp.Client, error)

// LocalJobResult is what SendToLocalPrinter hands back once the document is
// fully accepted, so the caller (C6) can start the Get-Job-Attributes poll.
type LocalJobResult struct {
	JobID int32
}

// SendToLocalPrinter implements the ipp:// / ipps:// half of §4.7: probe
// compression-supported/operations-supported, pick Create-Job+Send-Document
// when available and Print-Job otherwise, submit doc with the copied
// attribute set, then poll job-state until it leaves the active states,
// canceling locally if remoteCanceled reports true mid-flight.
// inboundCompression is the encoding named on the Fetch-Document response
// that produced doc (empty or "none" if the document arrived uncompressed).
func SendToLocalPrinter(ctx context.Context, dial LocalDialer, deviceURI string, copied CopiedAttributes, format, inboundCompression string, doc io.Reader, remoteCanceled func() bool) (LocalJobResult, error) {
	client, err := dial(ctx, deviceURI)
	if err != nil {
		return LocalJobResult{}, fmt.Errorf("transport: dial local device: %w", err)
	}

	createSupported, compressionSupported, err := probeLocalCapabilities(ctx, client, deviceURI)
	if err != nil {
		return LocalJobResult{}, err
	}

	data, compression, contentEncoding, err := prepareDocument(doc, inboundCompression, compressionSupported)
	if err != nil {
		return LocalJobResult{}, err
	}

	var jobID int32
	if createSupported {
		jobID, err = createThenSend(ctx, client, deviceURI, copied, format, compression, contentEncoding, data)
	} else {
		jobID, err = printInline(ctx, client, deviceURI, copied, format, compression, contentEncoding, data)
	}
	if err != nil {
		return LocalJobResult{}, err
	}

	if err := pollUntilTerminal(ctx, client, deviceURI, jobID, remoteCanceled); err != nil {
		return LocalJobResult{JobID: jobID}, err
	}
	return LocalJobResult{JobID: jobID}, nil
}

func probeLocalCapabilities(ctx context.Context, client *ipp.Client, printerURI string) (createSupported bool, compressionSupported map[string]bool, err error) {
	compressionSupported = map[string]bool{}
	reqID := client.NextRequestID()
	resp, err := client.Do(ctx, ipp.LocalGetPrinterAttributes(reqID, printerURI), nil)
	if err != nil {
		return false, nil, fmt.Errorf("transport: probe local printer attributes: %w", err)
	}
	if resp.Status().IsError() {
		return false, nil, &ipp.StatusError{Status: resp.Status(), Op: ipp.OpGetPrinterAttributes}
	}

	if attr, ok := resp.Find("operations-supported"); ok {
		var haveCreate, haveSend bool
		for _, v := range attr.Values {
			if v.Tag != ipp.TagEnum {
				continue
			}
			switch v.Int {
			case int32(ipp.OpCreateJob):
				haveCreate = true
			case int32(ipp.OpSendDocument):
				haveSend = true
			}
		}
		createSupported = haveCreate && haveSend
	}
	if attr, ok := resp.Find("compression-supported"); ok {
		for _, s := range attr.Strings() {
			compressionSupported[s] = true
		}
	}
	return createSupported, compressionSupported, nil
}

// prepareDocument reads doc fully (local documents are bounded print jobs,
// not unbounded streams) and decides how inboundCompression, the encoding
// named on the Fetch-Document response, reaches the local device per §4.7:
// if compressionSupported names it, declare it as the outbound compression
// attribute unchanged; otherwise the device has no IPP vocabulary for it, so
// it travels instead as an HTTP Content-Encoding header and is dropped from
// the outbound attribute set — the proxy transcodes the framing the
// document arrives in, never the payload bytes themselves.
func prepareDocument(doc io.Reader, inboundCompression string, compressionSupported map[string]bool) (data []byte, compression, contentEncoding string, err error) {
	data, err = io.ReadAll(doc)
	if err != nil {
		return nil, "", "", fmt.Errorf("transport: read document: %w", err)
	}
	if inboundCompression == "" || inboundCompression == "none" {
		return data, "", "", nil
	}
	if compressionSupported[inboundCompression] {
		return data, inboundCompression, "", nil
	}
	return data, "", inboundCompression, nil
}

// doLocalWithData issues req carrying data as the trailing document bytes,
// setting contentEncoding on the HTTP request when prepareDocument decided
// the device needs the encoding announced at the transport layer instead of
// the IPP compression attribute.
func doLocalWithData(ctx context.Context, client *ipp.Client, req *ipp.Message, data []byte, contentEncoding string) (*ipp.Message, error) {
	if contentEncoding != "" {
		return client.DoWithContentEncoding(ctx, req, data, contentEncoding)
	}
	return client.Do(ctx, req, data)
}

func createThenSend(ctx context.Context, client *ipp.Client, printerURI string, copied CopiedAttributes, format, compression, contentEncoding string, data []byte) (int32, error) {
	reqID := client.NextRequestID()
	resp, err := client.Do(ctx, ipp.LocalCreateJob(reqID, printerURI, copied.Operation, copied.JobTemplate), nil)
	if err != nil {
		return 0, fmt.Errorf("transport: Create-Job: %w", err)
	}
	if resp.Status().IsError() {
		return 0, &ipp.StatusError{Status: resp.Status(), Op: ipp.OpCreateJob}
	}
	idAttr, ok := resp.Find("job-id")
	if !ok {
		return 0, fmt.Errorf("transport: Create-Job response missing job-id")
	}
	jobID, _ := idAttr.Int()

	reqID = client.NextRequestID()
	sendResp, err := doLocalWithData(ctx, client, ipp.LocalSendDocument(reqID, printerURI, jobID, format, compression), data, contentEncoding)
	if err != nil {
		return jobID, fmt.Errorf("transport: Send-Document: %w", err)
	}
	if sendResp.Status().IsError() {
		return jobID, &ipp.StatusError{Status: sendResp.Status(), Op: ipp.OpSendDocument}
	}
	return jobID, nil
}

func printInline(ctx context.Context, client *ipp.Client, printerURI string, copied CopiedAttributes, format, compression, contentEncoding string, data []byte) (int32, error) {
	reqID := client.NextRequestID()
	req := ipp.LocalPrintJob(reqID, printerURI, copied.Operation, copied.JobTemplate, format, compression)
	req.Data = data
	resp, err := doLocalWithData(ctx, client, req, data, contentEncoding)
	if err != nil {
		return 0, fmt.Errorf("transport: Print-Job: %w", err)
	}
	if resp.Status().IsError() {
		return 0, &ipp.StatusError{Status: resp.Status(), Op: ipp.OpPrintJob}
	}
	idAttr, ok := resp.Find("job-id")
	if !ok {
		return 0, fmt.Errorf("transport: Print-Job response missing job-id")
	}
	jobID, _ := idAttr.Int()
	return jobID, nil
}

const localPollInterval = 2 * time.Second

// pollUntilTerminal polls Get-Job-Attributes (job-state only) until the
// local job leaves the active states. If remoteCanceled reports true while
// the local job is still active, it issues a local Cancel-Job rather than
// waiting out the device — §4.7's "the infrastructure job was canceled
// mid-print" handling, letting the in-flight Send-Document/Print-Job call
// that already returned stand and only affecting the poll loop that follows.
func pollUntilTerminal(ctx context.Context, client *ipp.Client, printerURI string, jobID int32, remoteCanceled func() bool) error {
	for {
		if remoteCanceled != nil && remoteCanceled() {
			reqID := client.NextRequestID()
			if _, err := client.Do(ctx, ipp.LocalCancelJob(reqID, printerURI, jobID), nil); err != nil {
				return fmt.Errorf("transport: local Cancel-Job: %w", err)
			}
			return nil
		}

		reqID := client.NextRequestID()
		resp, err := client.Do(ctx, ipp.LocalGetJobAttributes(reqID, printerURI, jobID), nil)
		if err != nil {
			return fmt.Errorf("transport: Get-Job-Attributes: %w", err)
		}
		if resp.Status().IsError() {
			return &ipp.StatusError{Status: resp.Status(), Op: ipp.OpGetJobAttributes}
		}

		stateAttr, ok := resp.Find("job-state")
		if !ok {
			return fmt.Errorf("transport: Get-Job-Attributes response missing job-state")
		}
		enumVal, _ := stateAttr.Int()
		if enumVal != 5 && enumVal != 4 && enumVal != 3 {
			// 3=pending, 4=pending-held, 5=processing are the only
			// non-terminal local job states; anything else means the
			// device finished, stopped, canceled, or aborted the job.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(localPollInterval):
		}
	}
}

// CopiedAttributes holds the infrastructure job's attributes split the way
// §4.7 and the original (ippproxy.c's IPP_TAG_OPERATION/IPP_TAG_JOB split)
// require: Operation lands in the local request's operation group,
// JobTemplate in its job-template group.
type CopiedAttributes struct {
	Operation   []ipp.Attribute
	JobTemplate []ipp.Attribute
}

// BuildCopiedAttributes assembles the operation and job-template attribute
// sets §4.7 copies from the fetched infrastructure job onto the local
// submission, pulling only the names in ipp.CopiedOperationAttrNames/
// CopiedJobTemplateAttrNames out of the job's own attribute set (the
// Fetch-Job response, not the local device's probed capabilities).
func BuildCopiedAttributes(job ipp.AttributeSet) CopiedAttributes {
	var out CopiedAttributes
	for _, name := range ipp.CopiedOperationAttrNames {
		if a, ok := job.Get(name); ok {
			out.Operation = append(out.Operation, a)
		}
	}
	for _, name := range ipp.CopiedJobTemplateAttrNames {
		if a, ok := job.Get(name); ok {
			out.JobTemplate = append(out.JobTemplate, a)
		}
	}
	return out
}
