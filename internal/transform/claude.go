package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// ClaudeRequest maps a Claude messages request into Gemini's native shape.
// The explicit system field becomes systemInstruction; content blocks map to
// parts (text, tool_use→functionCall, tool_result→functionResponse).
func ClaudeRequest(req *protocol.MessagesRequest) (*protocol.GenerateRequest, *apierror.Envelope) {
	out := &protocol.GenerateRequest{}

	for i, m := range req.Messages {
		role, err := geminiRole(m.Role)
		if err != nil {
			return nil, apierror.Validation(fmt.Sprintf("messages[%d].role", i), err.Error())
		}
		parts, envErr := claudeParts(i, m.Content)
		if envErr != nil {
			return nil, envErr
		}
		out.Contents = append(out.Contents, protocol.Content{Role: role, Parts: parts})
	}

	if req.System != "" {
		out.SystemInstruction = &protocol.Content{
			Parts: []protocol.Part{{Text: req.System}},
		}
	}

	maxTokens := req.MaxTokens
	cfg := &protocol.GenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		MaxOutputTokens: &maxTokens,
	}
	if len(req.StopSequences) > 0 {
		cfg.StopSequences = req.StopSequences
	}
	out.GenerationConfig = cfg

	if len(req.Tools) > 0 {
		var decls []protocol.FunctionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, protocol.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
		out.Tools = []protocol.GeminiTool{{FunctionDeclarations: decls}}
	}

	return out, nil
}

func claudeParts(msgIdx int, content protocol.ClaudeContent) ([]protocol.Part, *apierror.Envelope) {
	var parts []protocol.Part
	for j, block := range content {
		switch block.Type {
		case "text":
			parts = append(parts, protocol.Part{Text: block.Text})
		case "tool_use":
			parts = append(parts, protocol.Part{FunctionCall: &protocol.FunctionCall{
				Name: block.Name,
				Args: block.Input,
			}})
		case "tool_result":
			resp := block.Content
			if len(resp) == 0 {
				resp = json.RawMessage(`{}`)
			} else if resp[0] != '{' {
				// Gemini requires an object; wrap scalar/array results.
				wrapped, err := json.Marshal(map[string]json.RawMessage{"result": resp})
				if err != nil {
					return nil, apierror.Validation(
						fmt.Sprintf("messages[%d].content[%d].content", msgIdx, j), "invalid tool result")
				}
				resp = wrapped
			}
			parts = append(parts, protocol.Part{FunctionResponse: &protocol.FunctionResponse{
				Name:     block.ToolUseID,
				Response: resp,
			}})
		default:
			return nil, apierror.Validation(
				fmt.Sprintf("messages[%d].content[%d].type", msgIdx, j),
				fmt.Sprintf("unsupported content block type %q", block.Type))
		}
	}
	return parts, nil
}

// ClaudeResponse maps a Gemini response back into the Claude messages shape.
// Each part becomes one content block; a stable id is synthesized since the
// upstream provides none.
func ClaudeResponse(resp *protocol.GenerateResponse, model string) (*protocol.MessagesResponse, *apierror.Envelope) {
	if len(resp.Candidates) == 0 {
		return nil, apierror.Validation("candidates", "missing in upstream response")
	}
	cand := resp.Candidates[0]

	out := &protocol.MessagesResponse{
		ID:    "msg_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:  "message",
		Role:  "assistant",
		Model: model,
	}

	hasToolUse := false
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			hasToolUse = true
			input := part.FunctionCall.Args
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			out.Content = append(out.Content, protocol.ContentBlock{
				Type:  "tool_use",
				ID:    "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		case part.Thought:
			out.Content = append(out.Content, protocol.ContentBlock{Type: "thinking", Thinking: part.Text})
		default:
			out.Content = append(out.Content, protocol.ContentBlock{Type: "text", Text: part.Text})
		}
	}

	out.StopReason = claudeStopReason(cand.FinishReason, hasToolUse)

	if u := resp.UsageMetadata; u != nil {
		out.Usage = protocol.ClaudeUsage{
			InputTokens:  u.PromptTokenCount,
			OutputTokens: u.CandidatesTokenCount,
		}
	}

	return out, nil
}

// claudeStopReason normalizes Gemini's finishReason enum to the Claude
// stop-reason vocabulary: end_turn, max_tokens, tool_use.
func claudeStopReason(reason string, hasToolUse bool) string {
	if hasToolUse {
		return "tool_use"
	}
	switch reason {
	case protocol.FinishMaxTokens:
		return "max_tokens"
	default:
		return "end_turn"
	}
}
