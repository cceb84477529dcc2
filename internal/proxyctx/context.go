// Package proxyctx defines the Proxy Context and Job Record data model of
// §3, shared across every component instead of any process-wide singleton
// (§9: "wrap in the Proxy Context struct passed explicitly").
package proxyctx

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/istopwg/ippinfra/internal/ipp"
)

// JobState mirrors the IPP job-state enumeration used for both
// remote_job_state and local_job_state (§3).
type JobState int

const (
	JobStatePending JobState = iota
	JobStateHeld
	JobStateProcessing
	JobStateStopped
	JobStateCanceled
	JobStateAborted
	JobStateCompleted
)

var jobStateNames = map[JobState]string{
	JobStatePending:    "pending",
	JobStateHeld:       "pending-held",
	JobStateProcessing: "processing",
	JobStateStopped:    "processing-stopped",
	JobStateCanceled:   "canceled",
	JobStateAborted:    "aborted",
	JobStateCompleted:  "completed",
}

func (s JobState) String() string {
	if n, ok := jobStateNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseJobState maps an IPP keyword/enum job-state string to a JobState.
// Unrecognized values map to JobStatePending, the safest "not yet terminal"
// default.
func ParseJobState(s string) JobState {
	for k, v := range jobStateNames {
		if v == s {
			return k
		}
	}
	return JobStatePending
}

// Terminal reports whether the state is one from which no further progress
// for that job will occur.
func (s JobState) Terminal() bool { return s >= JobStateCanceled }

// Record is one job-record as defined in §3. remote_job_state is owned by
// the Event Poller (C4); local_job_id and local_job_state are owned by the
// Job Worker (C6) while it is executing that job.
type Record struct {
	RemoteJobID    int32
	RemoteState    atomic.Int32 // JobState, mutated only by C4
	LocalJobID     atomic.Int32
	LocalState     atomic.Int32 // JobState, mutated only by C6
}

func NewRecord(remoteJobID int32, remoteState JobState) *Record {
	r := &Record{RemoteJobID: remoteJobID}
	r.RemoteState.Store(int32(remoteState))
	r.LocalState.Store(int32(JobStatePending))
	return r
}

func (r *Record) Remote() JobState       { return JobState(r.RemoteState.Load()) }
func (r *Record) SetRemote(s JobState)   { r.RemoteState.Store(int32(s)) }
func (r *Record) Local() JobState        { return JobState(r.LocalState.Load()) }
func (r *Record) SetLocal(s JobState)    { r.LocalState.Store(int32(s)) }
func (r *Record) LocalID() int32         { return r.LocalJobID.Load() }
func (r *Record) SetLocalID(id int32)    { r.LocalJobID.Store(id) }

// Prunable reports the §3 pruning eligibility rule: remote_job_state >=
// canceled.
func (r *Record) Prunable() bool { return r.Remote().Terminal() }

// Context is the one-per-process Proxy Context of §3.
type Context struct {
	mu sync.RWMutex

	printerURI    string
	resourcePath  string
	deviceURI     string
	deviceUUID    uuid.UUID
	outputFormat  string
	deviceAttrs   ipp.AttributeSet

	done atomic.Bool

	RequestingUser string
}

// New constructs a Context for the given device URI / infrastructure URI.
// deviceUUID must already be derived (internal/capability owns derivation).
func New(infrastructureURI, deviceURI string, deviceUUID uuid.UUID, preferredFormat, user string) *Context {
	c := &Context{
		printerURI:     infrastructureURI,
		deviceURI:      deviceURI,
		deviceUUID:     deviceUUID,
		outputFormat:   preferredFormat,
		RequestingUser: user,
		deviceAttrs:    ipp.AttributeSet{},
	}
	c.resourcePath = resourcePathOf(infrastructureURI)
	return c
}

func resourcePathOf(rawURI string) string {
	// A dependency-free path extraction is sufficient here; net/url is used
	// by the registrar when it needs the full parsed URI.
	idx := 0
	slashes := 0
	for i, ch := range rawURI {
		if ch == '/' {
			slashes++
			if slashes == 3 {
				idx = i
				break
			}
		}
	}
	if idx == 0 {
		return "/"
	}
	return rawURI[idx:]
}

func (c *Context) PrinterURI() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.printerURI
}

// SetPrinterURI replaces the infrastructure printer URI, the one mutation
// the registrar may perform after system-level registration (§3).
func (c *Context) SetPrinterURI(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printerURI = uri
	c.resourcePath = resourcePathOf(uri)
}

func (c *Context) ResourcePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resourcePath
}

func (c *Context) DeviceURI() string   { return c.deviceURI }
func (c *Context) DeviceUUID() uuid.UUID { return c.deviceUUID }

func (c *Context) PreferredOutputFormat() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outputFormat
}

func (c *Context) DeviceAttrs() ipp.AttributeSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceAttrs
}

// SetDeviceAttrs replaces the last-accepted attribute set, called by the
// Attribute Reconciler (C3) only after a successful
// Update-Output-Device-Attributes.
func (c *Context) SetDeviceAttrs(attrs ipp.AttributeSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceAttrs = attrs
}

// Done reports the monotonic shutdown flag (§3: "once true, never reset").
func (c *Context) Done() bool { return c.done.Load() }

// Shutdown flips the done flag. Idempotent.
func (c *Context) Shutdown() { c.done.Store(true) }
