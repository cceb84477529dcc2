// Package logging implements the structured logger named in the Log
// collaborator (§6): leveled, key/value context, a ring buffer the
// diagnostic dashboard reads, and a verbose IPP transcript dump mode.
package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/istopwg/ippinfra/internal/ipp"
)

// Level is the logger's severity, ordered least to most verbose.
type Level int

const (
	ERROR Level = iota
	WARN
	INFO
	DEBUG
	TRACE
)

var levelNames = map[Level]string{
	ERROR: "ERROR",
	WARN:  "WARN",
	INFO:  "INFO",
	DEBUG: "DEBUG",
	TRACE: "TRACE",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return "UNKNOWN"
}

// LevelFromString parses a configured verbosity string, defaulting to INFO.
func LevelFromString(s string) Level {
	for lvl, name := range levelNames {
		if name == s {
			return lvl
		}
	}
	return INFO
}

// Entry is one buffered log line.
type Entry struct {
	Timestamp   time.Time
	Level       Level
	Message     string
	RemoteJobID int32 // 0 when the line is not job-scoped
	Context     map[string]interface{}
}

// Logger is constructed once in cmd/ippproxy and threaded explicitly
// through the Proxy Context and every component — there is no
// package-level singleton (§9).
type Logger struct {
	mu            sync.RWMutex
	level         Level
	buffer        []Entry
	maxBufferSize int
	verboseIPP    bool
	onEntry       func(Entry)
}

// New constructs a Logger at the given level with a ring buffer sized
// maxBufferSize.
func New(level Level, maxBufferSize int) *Logger {
	if maxBufferSize <= 0 {
		maxBufferSize = 500
	}
	return &Logger{level: level, maxBufferSize: maxBufferSize}
}

// SetOnEntry installs a callback invoked after every buffered entry,
// without holding the logger's lock — internal/diag uses this to fan new
// lines out to connected WebSocket log-tail clients.
func (l *Logger) SetOnEntry(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onEntry = fn
}

// SetVerboseIPP toggles the full attribute-group transcript dump.
func (l *Logger) SetVerboseIPP(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verboseIPP = enabled
}

func (l *Logger) Error(msg string, kv ...interface{}) { l.log(ERROR, 0, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(WARN, 0, msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(INFO, 0, msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(DEBUG, 0, msg, kv...) }
func (l *Logger) Trace(msg string, kv ...interface{}) { l.log(TRACE, 0, msg, kv...) }

// ForJob returns a JobLogger that tags every line with remoteJobID, the
// context the worker (C6) needs when several jobs interleave in the log.
func (l *Logger) ForJob(remoteJobID int32) *JobLogger {
	return &JobLogger{log: l, remoteJobID: remoteJobID}
}

// JobLogger is Logger scoped to a single remote job id.
type JobLogger struct {
	log         *Logger
	remoteJobID int32
}

func (j *JobLogger) Error(msg string, kv ...interface{}) { j.log.log(ERROR, j.remoteJobID, msg, kv...) }
func (j *JobLogger) Warn(msg string, kv ...interface{})  { j.log.log(WARN, j.remoteJobID, msg, kv...) }
func (j *JobLogger) Info(msg string, kv ...interface{})  { j.log.log(INFO, j.remoteJobID, msg, kv...) }
func (j *JobLogger) Debug(msg string, kv ...interface{}) { j.log.log(DEBUG, j.remoteJobID, msg, kv...) }

func (l *Logger) log(level Level, remoteJobID int32, msg string, kv ...interface{}) {
	l.mu.Lock()
	if level > l.level {
		l.mu.Unlock()
		return
	}

	ctx := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			ctx[key] = kv[i+1]
		}
	}

	entry := Entry{Timestamp: time.Now(), Level: level, Message: msg, RemoteJobID: remoteJobID, Context: ctx}
	if len(l.buffer) >= l.maxBufferSize {
		l.buffer = l.buffer[1:]
	}
	l.buffer = append(l.buffer, entry)

	cb := l.onEntry
	l.mu.Unlock()

	fmt.Println(formatEntry(entry))
	if cb != nil {
		cb(entry)
	}
}

func formatEntry(e Entry) string {
	line := fmt.Sprintf("%s [%s]", e.Timestamp.Format(time.RFC3339), e.Level)
	if e.RemoteJobID != 0 {
		line += fmt.Sprintf(" job=%d", e.RemoteJobID)
	}
	line += " " + e.Message
	for k, v := range e.Context {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	return line
}

// Buffer returns a copy of the retained log lines, for internal/diag's
// GET /logs endpoint and for a fresh WebSocket client's backlog.
func (l *Logger) Buffer() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// IPPTrace dumps m's full attribute-group structure when verbose IPP
// logging is enabled. Its signature matches ipp.Trace, so cmd/ippproxy
// hands it directly to ipp.Options.Trace.
func (l *Logger) IPPTrace(direction string, m *ipp.Message) {
	l.mu.RLock()
	on := l.verboseIPP
	l.mu.RUnlock()
	if !on || m == nil {
		return
	}

	l.Debug(fmt.Sprintf("ipp %s op_or_status=0x%04x request_id=%d", direction, m.OpOrStatus, m.RequestID))
	for _, g := range m.Groups {
		for _, a := range g.Attributes {
			l.Debug(fmt.Sprintf("  group=0x%02x %s=%v", g.Tag, a.Name, attrValues(a)))
		}
	}
}

func attrValues(a ipp.Attribute) []string {
	out := make([]string, 0, len(a.Values))
	for _, v := range a.Values {
		switch v.Tag {
		case ipp.TagInteger, ipp.TagEnum:
			out = append(out, fmt.Sprintf("%d", v.Int))
		case ipp.TagBoolean:
			out = append(out, fmt.Sprintf("%t", v.Bool))
		case ipp.TagResolution:
			out = append(out, v.Resolution.String())
		default:
			out = append(out, v.String)
		}
	}
	return out
}
