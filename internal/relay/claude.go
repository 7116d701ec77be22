package relay

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// ClaudeEmitter frames events in the Anthropic messages streaming
// vocabulary: message_start, content_block_start, content_block_delta
// frames, then content_block_stop, message_delta, message_stop. The opening
// frames are emitted lazily with the first delta so an upstream that fails
// before producing content never starts a message. Content blocks switch
// when the delta kind changes: text, thinking, and tool_use each get their
// own block with an increasing index.
type ClaudeEmitter struct {
	id    string
	model string

	started    bool
	blockOpen  bool
	blockType  string
	blockIndex int
	toolUsed   bool
	finished   bool
}

func NewClaudeEmitter(model string) *ClaudeEmitter {
	return &ClaudeEmitter{
		id:    "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		model: model,
	}
}

func (e *ClaudeEmitter) Emit(ev protocol.StreamEvent) [][]byte {
	if e.finished {
		return nil
	}
	switch ev.Kind {
	case protocol.StreamDelta:
		if ev.Text == "" && ev.Thinking == "" && ev.ToolName == "" && ev.ToolInput == "" {
			return nil
		}
		return e.deltaFrames(ev)
	case protocol.StreamStop:
		return e.close(ev)
	case protocol.StreamError:
		e.finished = true
		return [][]byte{eventFrame("error", protocol.ClaudeStreamEvent{
			Type:  "error",
			Error: &protocol.ClaudeError{Type: "api_error", Message: ev.ErrMessage},
		})}
	}
	return nil
}

func (e *ClaudeEmitter) Finish() [][]byte {
	if e.finished {
		return nil
	}
	return e.close(protocol.StreamEvent{Kind: protocol.StreamStop, StopReason: protocol.FinishStop})
}

func (e *ClaudeEmitter) deltaFrames(ev protocol.StreamEvent) [][]byte {
	if ev.ToolName != "" || ev.ToolInput != "" {
		return e.toolFrames(ev)
	}
	if ev.Thinking != "" && ev.Text == "" {
		frames := e.startBlock(protocol.ContentBlock{Type: "thinking"}, false)
		return append(frames, e.deltaFrame(protocol.ClaudeDelta{Type: "thinking_delta", Thinking: ev.Thinking}))
	}
	frames := e.startBlock(protocol.ContentBlock{Type: "text"}, false)
	return append(frames, e.deltaFrame(protocol.ClaudeDelta{Type: "text_delta", Text: ev.Text}))
}

// toolFrames relays a tool call. A named call opens its own tool_use block;
// a bare ToolInput continues the arguments of the open one.
func (e *ClaudeEmitter) toolFrames(ev protocol.StreamEvent) [][]byte {
	e.toolUsed = true
	block := protocol.ContentBlock{Type: "tool_use", Input: json.RawMessage(`{}`)}
	forceNew := ev.ToolName != ""
	if forceNew {
		block.ID = "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		block.Name = ev.ToolName
	}
	frames := e.startBlock(block, forceNew)
	if ev.ToolInput != "" {
		frames = append(frames, e.deltaFrame(protocol.ClaudeDelta{Type: "input_json_delta", PartialJSON: ev.ToolInput}))
	}
	return frames
}

// openMessage emits message_start on first use.
func (e *ClaudeEmitter) openMessage() [][]byte {
	if e.started {
		return nil
	}
	e.started = true
	return [][]byte{eventFrame("message_start", protocol.ClaudeStreamEvent{
		Type: "message_start",
		Message: &protocol.MessagesResponse{
			ID:      e.id,
			Type:    "message",
			Role:    "assistant",
			Model:   e.model,
			Content: []protocol.ContentBlock{},
		},
	})}
}

// startBlock opens the message and a content block of the given type,
// closing the previous block when the type changes (or when forceNew asks
// for a fresh block of the same type).
func (e *ClaudeEmitter) startBlock(block protocol.ContentBlock, forceNew bool) [][]byte {
	frames := e.openMessage()
	if e.blockOpen && e.blockType == block.Type && !forceNew {
		return frames
	}
	frames = append(frames, e.stopBlock()...)
	e.blockOpen = true
	e.blockType = block.Type
	idx := e.blockIndex
	frames = append(frames, eventFrame("content_block_start", protocol.ClaudeStreamEvent{
		Type:         "content_block_start",
		Index:        &idx,
		ContentBlock: &block,
	}))
	return frames
}

func (e *ClaudeEmitter) stopBlock() [][]byte {
	if !e.blockOpen {
		return nil
	}
	e.blockOpen = false
	idx := e.blockIndex
	e.blockIndex++
	return [][]byte{eventFrame("content_block_stop", protocol.ClaudeStreamEvent{
		Type:  "content_block_stop",
		Index: &idx,
	})}
}

func (e *ClaudeEmitter) deltaFrame(delta protocol.ClaudeDelta) []byte {
	idx := e.blockIndex
	return eventFrame("content_block_delta", protocol.ClaudeStreamEvent{
		Type:  "content_block_delta",
		Index: &idx,
		Delta: &delta,
	})
}

func (e *ClaudeEmitter) close(ev protocol.StreamEvent) [][]byte {
	e.finished = true
	var frames [][]byte
	switch {
	case ev.ToolName != "" || ev.ToolInput != "":
		// Gemini may deliver a functionCall alongside the finishReason.
		frames = e.toolFrames(ev)
	case ev.Text != "":
		frames = e.startBlock(protocol.ContentBlock{Type: "text"}, false)
		frames = append(frames, e.deltaFrame(protocol.ClaudeDelta{Type: "text_delta", Text: ev.Text}))
	default:
		// A message carries at least one block even when the upstream sent
		// no content.
		frames = e.startBlock(protocol.ContentBlock{Type: "text"}, false)
	}
	frames = append(frames, e.stopBlock()...)

	reason := claudeStopReason(ev.StopReason)
	if e.toolUsed && reason == "end_turn" {
		reason = "tool_use"
	}
	deltaEv := protocol.ClaudeStreamEvent{
		Type:  "message_delta",
		Delta: &protocol.ClaudeDelta{StopReason: reason},
	}
	if ev.Usage != nil {
		deltaEv.Usage = &protocol.ClaudeUsage{
			InputTokens:  ev.Usage.PromptTokenCount,
			OutputTokens: ev.Usage.CandidatesTokenCount,
		}
	}
	frames = append(frames, eventFrame("message_delta", deltaEv))
	frames = append(frames, eventFrame("message_stop", protocol.ClaudeStreamEvent{Type: "message_stop"}))
	return frames
}

func claudeStopReason(reason string) string {
	switch reason {
	case protocol.FinishMaxTokens:
		return "max_tokens"
	default:
		return "end_turn"
	}
}
