// Package backoff implements the proxy's connection-retry delay sequence.
//
// §5 mandates an exact, deterministic Fibonacci-modulo-60 sequence rather
// than a generic exponential back-off, and §9 says explicitly to "preserve
// exactly; it is small, bounded, and the test suite relies on its
// deterministic sequence". github.com/cenkalti/backoff (used elsewhere in
// the retrieval pack for HTTP retry loops) only implements exponential and
// constant strategies and has no way to express this recurrence, so this
// package reimplements the original tool's FIB_NEXT/FIB_VALUE macros in Go
// rather than adapting a third-party strategy to fit.
package backoff

import "time"

// Sequence produces the Fibonacci-modulo-60 back-off delays described in
// §5 and §9: starting at 1, each call to Next advances the internal state
// and returns the next delay in seconds (1..60).
//
// The encoding packs the previous two terms into a single int, exactly as
// the original tool's FIB_NEXT/FIB_VALUE macros do: the low byte holds the
// current delay, the high byte holds the delay before that.
type Sequence struct {
	state int
}

// New returns a Sequence reinitialized to its first value, 1 — "reinitialized
// to 1 at each new connect site" per §5.
func New() *Sequence {
	return &Sequence{state: 1}
}

// Value returns the current delay in seconds without advancing the
// sequence.
func (s *Sequence) Value() int {
	return s.state & 255
}

// Next advances the sequence and returns the new delay in seconds.
//
//	next = ((prev>>8 + prev&255 - 1) mod 60) + 1, high byte <- previous low byte
func (s *Sequence) Next() int {
	prev := s.state
	next := (((prev >> 8) + (prev & 255) - 1) % 60) + 1
	s.state = next | ((prev & 255) << 8)
	return s.Value()
}

// Duration is a convenience wrapper returning Next() as a time.Duration of
// seconds.
func (s *Sequence) Duration() time.Duration {
	return time.Duration(s.Next()) * time.Second
}

// Reset reinitializes the sequence to its first value (used when a
// connection attempt finally succeeds, so the next failure starts the
// back-off fresh).
func (s *Sequence) Reset() {
	s.state = 1
}
