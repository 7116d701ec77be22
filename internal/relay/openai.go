package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// OpenAIEmitter frames events in the chat-completions streaming vocabulary:
// delta chunks, a finish chunk, then the [DONE] sentinel.
type OpenAIEmitter struct {
	id        string
	model     string
	created   int64
	sentRole  bool
	finished  bool
	sawTool   bool
	toolIndex int
}

func NewOpenAIEmitter(model string) *OpenAIEmitter {
	return &OpenAIEmitter{
		id:      "chatcmpl-" + uuid.NewString(),
		model:   model,
		created: time.Now().Unix(),
	}
}

func (e *OpenAIEmitter) Emit(ev protocol.StreamEvent) [][]byte {
	if e.finished {
		return nil
	}
	switch ev.Kind {
	case protocol.StreamDelta:
		if ev.ToolName != "" || ev.ToolInput != "" {
			return [][]byte{dataFrame(e.toolChunk(ev))}
		}
		if ev.Text == "" {
			return nil
		}
		return [][]byte{dataFrame(e.chunk(ev.Text, nil))}
	case protocol.StreamStop:
		e.finished = true
		var frames [][]byte
		// Gemini may deliver a functionCall alongside the finishReason.
		if ev.ToolName != "" || ev.ToolInput != "" {
			frames = append(frames, dataFrame(e.toolChunk(ev)))
		}
		reason := openAIFinishReason(ev.StopReason)
		if e.sawTool {
			reason = "tool_calls"
		}
		frames = append(frames, dataFrame(e.chunk(ev.Text, &reason)))
		return append(frames, []byte("data: [DONE]\n\n"))
	case protocol.StreamError:
		e.finished = true
		env := struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}{}
		env.Error.Message = ev.ErrMessage
		env.Error.Type = "api_error"
		return [][]byte{dataFrame(env), []byte("data: [DONE]\n\n")}
	}
	return nil
}

func (e *OpenAIEmitter) Finish() [][]byte {
	if e.finished {
		return nil
	}
	e.finished = true
	reason := "stop"
	return [][]byte{
		dataFrame(e.chunk("", &reason)),
		[]byte("data: [DONE]\n\n"),
	}
}

// toolChunk frames a tool-call delta. A named call is complete in one
// fragment and advances the tool index; a bare ToolInput continues the
// arguments of the call at the current index.
func (e *OpenAIEmitter) toolChunk(ev protocol.StreamEvent) protocol.ChatCompletionChunk {
	e.sawTool = true
	call := protocol.ChatToolCallDelta{
		Index:    e.toolIndex,
		Function: &protocol.ChatFunctionCallDelta{Arguments: ev.ToolInput},
	}
	if ev.ToolName != "" {
		call.ID = "call_" + uuid.NewString()
		call.Type = "function"
		call.Function.Name = ev.ToolName
		e.toolIndex++
	}
	delta := protocol.ChatDelta{ToolCalls: []protocol.ChatToolCallDelta{call}}
	if !e.sentRole {
		delta.Role = "assistant"
		e.sentRole = true
	}
	return protocol.ChatCompletionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []protocol.ChunkChoice{{Index: 0, Delta: delta}},
	}
}

func (e *OpenAIEmitter) chunk(content string, finish *string) protocol.ChatCompletionChunk {
	delta := protocol.ChatDelta{Content: content}
	if !e.sentRole {
		delta.Role = "assistant"
		e.sentRole = true
	}
	return protocol.ChatCompletionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []protocol.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func openAIFinishReason(reason string) string {
	switch reason {
	case protocol.FinishMaxTokens:
		return "length"
	case protocol.FinishSafety, protocol.FinishRecitation:
		return "content_filter"
	default:
		return "stop"
	}
}
