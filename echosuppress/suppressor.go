// Package echosuppress filters text deltas that merely restate a tool
// result the provider already surfaced once. It is a pure string-matching
// component with no async behavior, sitting as the last filter before the
// stream pipeline consumer.
package echosuppress

import "strings"

// maxExpected bounds the FIFO of expected echoes. Providers echo a result
// immediately after the tool completes, so an expectation that survives
// this many newer ones is stale and is discarded.
const maxExpected = 8

// Suppressor consumes expected echo text from incoming deltas. The
// zero value is ready to use.
type Suppressor struct {
	// expected is a FIFO of echo strings still to be consumed. Only the
	// head may be partially consumed; offset tracks how much of it has
	// matched so far.
	expected   []string
	offset     int
	suppressed uint64
}

// ExpectEcho registers resultText as an echo the provider may re-emit.
// Call immediately after a tool-complete whose result the provider is
// known to sometimes restate verbatim. Empty results are ignored.
func (s *Suppressor) ExpectEcho(resultText string) {
	if resultText == "" {
		return
	}
	s.expected = append(s.expected, resultText)
	if len(s.expected) > maxExpected {
		if s.offset > 0 {
			// The head is mid-match; drop the next-oldest instead.
			s.expected = append(s.expected[:1], s.expected[2:]...)
		} else {
			// The head's echo never arrived.
			s.expected = s.expected[1:]
		}
	}
}

// FilterDelta returns the portion of delta that is not a continuation of
// an expected echo, consuming matched prefixes from the FIFO as they
// match. Once an expected string is fully consumed it is removed.
// Unmatched text passes through unchanged.
func (s *Suppressor) FilterDelta(delta string) string {
	for delta != "" && len(s.expected) > 0 {
		head := s.expected[0][s.offset:]

		if strings.HasPrefix(delta, head) {
			// Delta covers the rest of the head; consume it and keep
			// matching the remainder against the next expectation.
			delta = delta[len(head):]
			s.expected = s.expected[1:]
			s.offset = 0
			s.suppressed++
			continue
		}

		if strings.HasPrefix(head, delta) {
			// Delta is a partial continuation of the head.
			s.offset += len(delta)
			return ""
		}

		if s.offset > 0 {
			// The echo diverged mid-match; abandon this expectation and
			// let the text through.
			s.expected = s.expected[1:]
			s.offset = 0
			continue
		}

		// Head never started matching: the delta is ordinary text. Keep
		// the expectation for a later delta.
		break
	}
	return delta
}

// Pending returns the number of expected echoes not yet consumed.
func (s *Suppressor) Pending() int {
	return len(s.expected)
}

// Suppressed returns how many expected echoes have been fully consumed.
func (s *Suppressor) Suppressed() uint64 {
	return s.suppressed
}

// Reset discards all pending expectations.
func (s *Suppressor) Reset() {
	s.expected = nil
	s.offset = 0
}
