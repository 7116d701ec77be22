package relay

import (
	"encoding/json"
	"fmt"

	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// Emitter serializes protocol-neutral stream events into the outbound
// protocol's SSE frames. Emitters are single-use and not safe for
// concurrent use; one emitter serves one response stream.
type Emitter interface {
	// Emit maps one upstream event into outbound frames, ready to write.
	Emit(ev protocol.StreamEvent) [][]byte
	// Finish emits the terminal frames. Idempotent; after the first call
	// every subsequent Emit and Finish returns nil.
	Finish() [][]byte
}

func dataFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

func rawDataFrame(raw []byte) []byte {
	return []byte(fmt.Sprintf("data: %s\n\n", raw))
}

func eventFrame(name string, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}
