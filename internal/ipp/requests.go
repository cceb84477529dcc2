package ipp

// Envelope carries the three operation attributes §6 requires on every
// infrastructure-bound request.
type Envelope struct {
	PrinterURI       string
	OutputDeviceUUID string
	RequestingUser   string
}

func (e Envelope) apply(m *Message) {
	var attrs []Attribute
	if e.PrinterURI != "" {
		attrs = append(attrs, Attribute{Name: "printer-uri", Values: []Value{URI(e.PrinterURI)}})
	}
	if e.OutputDeviceUUID != "" {
		attrs = append(attrs, Attribute{Name: "output-device-uuid", Values: []Value{URI(e.OutputDeviceUUID)}})
	}
	if e.RequestingUser != "" {
		attrs = append(attrs, Attribute{Name: "requesting-user-name", Values: []Value{Text(e.RequestingUser)}})
	}
	m.AddOperationGroup(attrs...)
}

// GetPrinterAttributes builds a Get-Printer-Attributes request restricted to
// the given requested-attributes list (§4.1, §4.7).
func GetPrinterAttributes(reqID int32, printerURI string, requested []string) *Message {
	m := NewRequest(OpGetPrinterAttributes, reqID)
	Envelope{PrinterURI: printerURI}.apply(m)
	if len(requested) > 0 {
		vals := make([]Value, len(requested))
		for i, n := range requested {
			vals[i] = Keyword(n)
		}
		m.AddOperationGroup(Attribute{Name: "requested-attributes", Values: vals})
	}
	return m
}

// RegisterOutputDevice builds the system-level registration request of §4.2
// step 2. The target carries as system-uri, not printer-uri: Register-Output-
// Device is addressed to the System object at /ipp/system, so Envelope's
// printer-uri field is left unset and system-uri is added directly.
func RegisterOutputDevice(reqID int32, systemURI, deviceUUID, user string) *Message {
	m := NewRequest(OpRegisterOutputDevice, reqID)
	Envelope{OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(
		Attribute{Name: "system-uri", Values: []Value{URI(systemURI)}},
		Attribute{Name: "printer-service-type", Values: []Value{Keyword("print")}},
	)
	return m
}

// DeregisterOutputDevice builds the shutdown-time deregistration request.
func DeregisterOutputDevice(reqID int32, printerURI, deviceUUID, user string) *Message {
	m := NewRequest(OpDeregisterOutputDevice, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	return m
}

// SubscriptionEvents is the fixed event set from §4.2 step 3.
var SubscriptionEvents = []string{
	"document-config-changed",
	"document-state-changed",
	"job-config-changed",
	"job-fetchable",
	"job-state-changed",
	"printer-config-changed",
	"printer-state-changed",
}

// CreatePrinterSubscriptions builds the pull subscription request.
func CreatePrinterSubscriptions(reqID int32, printerURI, deviceUUID, user string) *Message {
	m := NewRequest(OpCreatePrinterSubscriptions, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)

	evVals := make([]Value, len(SubscriptionEvents))
	for i, e := range SubscriptionEvents {
		evVals[i] = Keyword(e)
	}
	m.addToGroup(GroupJob, []Attribute{
		{Name: "notify-pull-method", Values: []Value{Keyword("ippget")}},
		{Name: "notify-lease-duration", Values: []Value{Int(0)}},
		{Name: "notify-events", Values: evVals},
	})
	return m
}

// CancelSubscription builds the shutdown-time unsubscribe request.
func CancelSubscription(reqID int32, printerURI, deviceUUID, user string, subscriptionID int32) *Message {
	m := NewRequest(OpCancelSubscription, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(Attribute{Name: "notify-subscription-id", Values: []Value{Int(subscriptionID)}})
	return m
}

// GetNotifications builds the event poller's per-cycle pull request (§4.4
// step 1).
func GetNotifications(reqID int32, printerURI, deviceUUID, user string, subscriptionID, seqNumber int32) *Message {
	m := NewRequest(OpGetNotifications, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(
		Attribute{Name: "notify-subscription-ids", Values: []Value{Int(subscriptionID)}},
		Attribute{Name: "notify-sequence-numbers", Values: []Value{Int(seqNumber)}},
		Attribute{Name: "notify-wait", Values: []Value{Bool(false)}},
	)
	return m
}

// GetJobsFetchable builds the §4.4 startup scan request.
func GetJobsFetchable(reqID int32, printerURI, deviceUUID, user string) *Message {
	m := NewRequest(OpGetJobs, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(Attribute{Name: "which-jobs", Values: []Value{Keyword("fetchable")}})
	return m
}

// FetchJob builds a Fetch-Job request.
func FetchJob(reqID int32, printerURI, deviceUUID, user string, jobID int32) *Message {
	m := NewRequest(OpFetchJob, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(Attribute{Name: "job-id", Values: []Value{Int(jobID)}})
	return m
}

// AcknowledgeJob builds an Acknowledge-Job request.
func AcknowledgeJob(reqID int32, printerURI, deviceUUID, user string, jobID int32) *Message {
	m := NewRequest(OpAcknowledgeJob, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(Attribute{Name: "job-id", Values: []Value{Int(jobID)}})
	return m
}

// FetchDocument builds a Fetch-Document request, optionally pinning the
// document-format-accepted per §4.6's output format selection.
func FetchDocument(reqID int32, printerURI, deviceUUID, user string, jobID, docNumber int32, formatAccepted string) *Message {
	m := NewRequest(OpFetchDocument, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(
		Attribute{Name: "job-id", Values: []Value{Int(jobID)}},
		Attribute{Name: "document-number", Values: []Value{Int(docNumber)}},
	)
	if formatAccepted != "" {
		m.AddOperationGroup(Attribute{Name: "document-format-accepted", Values: []Value{Keyword(formatAccepted)}})
	}
	return m
}

// AcknowledgeDocument builds an Acknowledge-Document request.
func AcknowledgeDocument(reqID int32, printerURI, deviceUUID, user string, jobID, docNumber int32) *Message {
	m := NewRequest(OpAcknowledgeDocument, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(
		Attribute{Name: "job-id", Values: []Value{Int(jobID)}},
		Attribute{Name: "document-number", Values: []Value{Int(docNumber)}},
	)
	return m
}

// UpdateOutputDeviceAttributes builds the §4.3 delta push.
func UpdateOutputDeviceAttributes(reqID int32, printerURI, deviceUUID, user string, deltas []Attribute) *Message {
	m := NewRequest(OpUpdateOutputDeviceAttributes, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(deltas...)
	return m
}

// UpdateJobStatus builds the worker's terminal job status write-back.
func UpdateJobStatus(reqID int32, printerURI, deviceUUID, user string, jobID int32, state string) *Message {
	m := NewRequest(OpUpdateJobStatus, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(
		Attribute{Name: "job-id", Values: []Value{Int(jobID)}},
		Attribute{Name: "output-device-job-state", Values: []Value{Keyword(state)}},
	)
	return m
}

// UpdateDocumentStatus builds the per-document status write-back.
func UpdateDocumentStatus(reqID int32, printerURI, deviceUUID, user string, jobID, docNumber int32, state string) *Message {
	m := NewRequest(OpUpdateDocumentStatus, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	m.AddOperationGroup(
		Attribute{Name: "job-id", Values: []Value{Int(jobID)}},
		Attribute{Name: "document-number", Values: []Value{Int(docNumber)}},
		Attribute{Name: "output-device-document-state", Values: []Value{Keyword(state)}},
	)
	return m
}

// AcknowledgeIdentifyPrinter builds the immediate acknowledgement issued
// when the poller detects identify-printer-requested (§4.4 step 5).
func AcknowledgeIdentifyPrinter(reqID int32, printerURI, deviceUUID, user string) *Message {
	m := NewRequest(OpAcknowledgeIdentifyPrinter, reqID)
	Envelope{PrinterURI: printerURI, OutputDeviceUUID: deviceUUID, RequestingUser: user}.apply(m)
	return m
}
