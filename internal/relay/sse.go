// Package relay reframes an upstream Server-Sent-Events byte stream into the
// outbound protocol's event vocabulary. Decoding is incremental and
// tolerant: malformed events are dropped, buffering is bounded, and the
// outbound stream terminates exactly once.
package relay

import "bytes"

// doneSentinel terminates a stream in-band.
const doneSentinel = "[DONE]"

// maxBufferBytes caps the internal reassembly buffer. On overflow the oldest
// half is discarded; losing partial malformed data is preferable to
// unbounded growth.
const maxBufferBytes = 1 << 20

var (
	eventSep   = []byte("\n\n")
	dataPrefix = []byte("data:")
)

// Decoder incrementally reassembles SSE event payloads from raw bytes.
// The trailing incomplete fragment is retained between Feed calls.
type Decoder struct {
	buf       []byte
	done      bool
	overflows int
}

// Feed appends a chunk and returns every complete data payload found, plus
// whether the done sentinel was reached. Once done, further input is
// ignored.
func (d *Decoder) Feed(chunk []byte) ([][]byte, bool) {
	if d.done {
		return nil, true
	}
	d.buf = append(d.buf, chunk...)
	if len(d.buf) > maxBufferBytes {
		d.buf = append([]byte(nil), d.buf[len(d.buf)/2:]...)
		d.overflows++
	}

	var payloads [][]byte
	for {
		idx := bytes.Index(d.buf, eventSep)
		if idx < 0 {
			break
		}
		block := d.buf[:idx]
		d.buf = d.buf[idx+len(eventSep):]

		payload, ok := extractData(block)
		if !ok {
			continue
		}
		if string(payload) == doneSentinel {
			d.done = true
			d.buf = nil
			return payloads, true
		}
		payloads = append(payloads, payload)
	}
	return payloads, false
}

// extractData collects the data lines of one event block. Multiple data
// lines are joined with a newline per the SSE spec; blocks without a data
// line (comments, event-only frames) are skipped.
func extractData(block []byte) ([]byte, bool) {
	var out []byte
	found := false
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		val := bytes.TrimPrefix(line, dataPrefix)
		val = bytes.TrimPrefix(val, []byte(" "))
		if found {
			out = append(out, '\n')
		}
		out = append(out, val...)
		found = true
	}
	return out, found
}

// Overflows reports how many times the buffer cap was hit.
func (d *Decoder) Overflows() int {
	return d.overflows
}

// Pending reports how many buffered bytes were never consumed. Non-zero at
// stream end means the upstream closed mid-event.
func (d *Decoder) Pending() int {
	return len(bytes.TrimSpace(d.buf))
}
