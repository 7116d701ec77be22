package protocol

import "encoding/json"

// StreamEventKind classifies a decoded upstream streaming event.
type StreamEventKind int

const (
	StreamDelta StreamEventKind = iota
	StreamStop
	StreamError
)

// StreamEvent is the protocol-neutral form of one upstream streaming event.
// It is produced by the relay's decoder and consumed by a per-protocol
// emitter; it is never persisted.
type StreamEvent struct {
	Kind StreamEventKind

	// Delta payload.
	Text     string
	Thinking string

	// Tool-call delta payload. ToolName is set when the upstream delivers a
	// complete call in one event; ToolInput alone carries incremental
	// argument JSON.
	ToolName  string
	ToolInput string

	// Stop payload. StopReason uses Gemini's finishReason vocabulary.
	StopReason string
	Usage      *UsageMetadata

	// Error payload (upstream error event).
	ErrMessage string

	// Raw is the original upstream JSON, kept for passthrough targets.
	Raw json.RawMessage
}
