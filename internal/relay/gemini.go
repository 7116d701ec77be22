package relay

import "github.com/solara-labs/prism-gateway/internal/protocol"

// GeminiEmitter re-frames events for native callers. Chunks pass through
// with their original JSON; only the SSE envelope is re-encoded.
type GeminiEmitter struct {
	finished bool
}

func NewGeminiEmitter() *GeminiEmitter {
	return &GeminiEmitter{}
}

func (e *GeminiEmitter) Emit(ev protocol.StreamEvent) [][]byte {
	if e.finished {
		return nil
	}
	switch ev.Kind {
	case protocol.StreamDelta:
		if len(ev.Raw) == 0 {
			return nil
		}
		return [][]byte{rawDataFrame(ev.Raw)}
	case protocol.StreamStop:
		e.finished = true
		if len(ev.Raw) == 0 {
			return nil
		}
		return [][]byte{rawDataFrame(ev.Raw)}
	case protocol.StreamError:
		e.finished = true
		env := struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}{}
		env.Error.Code = 500
		env.Error.Message = ev.ErrMessage
		env.Error.Status = "INTERNAL"
		return [][]byte{dataFrame(env)}
	}
	return nil
}

// Finish is a no-op for native callers; Gemini streams have no terminal
// sentinel, the connection close is the signal.
func (e *GeminiEmitter) Finish() [][]byte {
	e.finished = true
	return nil
}
