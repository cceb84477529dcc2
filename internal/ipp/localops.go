package ipp

// Operations against the local output device (§4.7, §6 "Local device wire
// protocol") carry no output-device-uuid/requesting-user envelope — only
// printer-uri and the operation's own attributes, the job-template and
// operation attributes copied over from the infrastructure job.

// LocalGetPrinterAttributes asks the local device only for
// compression-supported and operations-supported, used to decide whether
// Create-Job+Send-Document is available (§4.7).
func LocalGetPrinterAttributes(reqID int32, printerURI string) *Message {
	return GetPrinterAttributes(reqID, printerURI, []string{"compression-supported", "operations-supported"})
}

// LocalCreateJob builds a Create-Job request carrying the infrastructure
// job's copied attributes, per §4.7: operationAttrs (job-name, job-priority,
// ...) land in the operation group alongside printer-uri, while
// jobTemplateAttrs (copies, media, sides, ...) land in the job-template
// group, matching the original's explicit IPP_TAG_OPERATION/IPP_TAG_JOB
// split.
func LocalCreateJob(reqID int32, printerURI string, operationAttrs, jobTemplateAttrs []Attribute) *Message {
	m := NewRequest(OpCreateJob, reqID)
	ops := append([]Attribute{{Name: "printer-uri", Values: []Value{URI(printerURI)}}}, operationAttrs...)
	m.AddOperationGroup(ops...)
	m.AddJobGroup(jobTemplateAttrs...)
	return m
}

// LocalSendDocument builds a Send-Document request, with last-document set
// and the given document-format / optional compression attribute.
func LocalSendDocument(reqID int32, printerURI string, localJobID int32, format, compression string) *Message {
	m := NewRequest(OpSendDocument, reqID)
	ops := []Attribute{
		{Name: "printer-uri", Values: []Value{URI(printerURI)}},
		{Name: "job-id", Values: []Value{Int(localJobID)}},
		{Name: "last-document", Values: []Value{Bool(true)}},
	}
	if format != "" {
		ops = append(ops, Attribute{Name: "document-format", Values: []Value{Keyword(format)}})
	}
	if compression != "" {
		ops = append(ops, Attribute{Name: "compression", Values: []Value{Keyword(compression)}})
	}
	m.AddOperationGroup(ops...)
	return m
}

// LocalPrintJob builds a Print-Job request carrying the same operation/
// job-template split as LocalCreateJob, for devices without the
// Create-Job+Send-Document split.
func LocalPrintJob(reqID int32, printerURI string, operationAttrs, jobTemplateAttrs []Attribute, format, compression string) *Message {
	m := NewRequest(OpPrintJob, reqID)
	ops := []Attribute{{Name: "printer-uri", Values: []Value{URI(printerURI)}}}
	ops = append(ops, operationAttrs...)
	if format != "" {
		ops = append(ops, Attribute{Name: "document-format", Values: []Value{Keyword(format)}})
	}
	if compression != "" {
		ops = append(ops, Attribute{Name: "compression", Values: []Value{Keyword(compression)}})
	}
	m.AddOperationGroup(ops...)
	m.AddJobGroup(jobTemplateAttrs...)
	return m
}

// LocalGetJobAttributes polls job-state only, per §4.7's "poll
// Get-Job-Attributes (requesting only job-state)".
func LocalGetJobAttributes(reqID int32, printerURI string, localJobID int32) *Message {
	m := NewRequest(OpGetJobAttributes, reqID)
	m.AddOperationGroup(
		Attribute{Name: "printer-uri", Values: []Value{URI(printerURI)}},
		Attribute{Name: "job-id", Values: []Value{Int(localJobID)}},
		Attribute{Name: "requested-attributes", Values: []Value{Keyword("job-state")}},
	)
	return m
}

// LocalCancelJob builds a Cancel-Job request for the local device.
func LocalCancelJob(reqID int32, printerURI string, localJobID int32) *Message {
	m := NewRequest(OpCancelJob, reqID)
	m.AddOperationGroup(
		Attribute{Name: "printer-uri", Values: []Value{URI(printerURI)}},
		Attribute{Name: "job-id", Values: []Value{Int(localJobID)}},
	)
	return m
}

// CopiedOperationAttrNames and CopiedJobTemplateAttrNames are the exact
// attribute sets §4.7 says get copied from the infrastructure job onto the
// local Create-Job/Print-Job request.
var CopiedOperationAttrNames = []string{
	"job-name", "job-password", "job-password-encryption", "job-priority",
}

var CopiedJobTemplateAttrNames = []string{
	"copies", "finishings", "finishings-col", "job-account-id",
	"job-accounting-user-id", "media", "media-col",
	"multiple-document-handling", "orientation-requested", "page-ranges",
	"print-color-mode", "print-quality", "sides",
}
