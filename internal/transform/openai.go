package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// OpenAIRequest maps an OpenAI chat-completions request into Gemini's native
// shape. System messages are lifted out of the message sequence into
// systemInstruction.
func OpenAIRequest(req *protocol.ChatCompletionRequest) (*protocol.GenerateRequest, *apierror.Envelope) {
	out := &protocol.GenerateRequest{}

	var systemParts []string
	for i, m := range req.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		role, err := geminiRole(m.Role)
		if err != nil {
			return nil, apierror.Validation(fmt.Sprintf("messages[%d].role", i), err.Error())
		}
		out.Contents = append(out.Contents, protocol.Content{
			Role:  role,
			Parts: []protocol.Part{{Text: m.Content}},
		})
	}
	if len(systemParts) > 0 {
		out.SystemInstruction = &protocol.Content{
			Parts: []protocol.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}

	if cfg := openAIGenerationConfig(req); cfg != nil {
		out.GenerationConfig = cfg
	}

	if len(req.Tools) > 0 {
		var decls []protocol.FunctionDeclaration
		for i, t := range req.Tools {
			if t.Type != "function" {
				return nil, apierror.Validation(fmt.Sprintf("tools[%d].type", i), fmt.Sprintf("unsupported tool type %q", t.Type))
			}
			decls = append(decls, protocol.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		out.Tools = []protocol.GeminiTool{{FunctionDeclarations: decls}}
	}

	return out, nil
}

// Sampling-parameter rename table: max_tokens→maxOutputTokens, top_p→topP,
// stop→stopSequences, temperature is identity.
func openAIGenerationConfig(req *protocol.ChatCompletionRequest) *protocol.GenerationConfig {
	if req.Temperature == nil && req.TopP == nil && req.MaxTokens == nil &&
		len(req.Stop) == 0 && req.N == nil {
		return nil
	}
	cfg := &protocol.GenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
		CandidateCount:  req.N,
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = []string(req.Stop)
	}
	return cfg
}

// OpenAIResponse maps a Gemini response back into the chat-completions
// shape. The Nth candidate becomes the Nth choice; a candidate's text parts
// collapse into one message content string.
func OpenAIResponse(resp *protocol.GenerateResponse, model string) (*protocol.ChatCompletionResponse, *apierror.Envelope) {
	if len(resp.Candidates) == 0 {
		return nil, apierror.Validation("candidates", "missing in upstream response")
	}

	out := &protocol.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
	}

	for i, cand := range resp.Candidates {
		choice := protocol.ChatChoice{
			Index:   i,
			Message: protocol.ChatMessage{Role: "assistant"},
		}
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part.FunctionCall != nil {
				choice.Message.ToolCalls = append(choice.Message.ToolCalls, protocol.ChatToolCall{
					ID:   "call_" + uuid.NewString(),
					Type: "function",
					Function: protocol.ChatFunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: argsJSON(part.FunctionCall.Args),
					},
				})
				continue
			}
			if part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		choice.Message.Content = text.String()
		choice.FinishReason = openAIFinishReason(cand.FinishReason, len(choice.Message.ToolCalls) > 0)
		out.Choices = append(out.Choices, choice)
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = protocol.ChatUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.PromptTokenCount + u.CandidatesTokenCount,
		}
	}

	return out, nil
}

// openAIFinishReason normalizes Gemini's finishReason enum to the
// chat-completions vocabulary: stop, length, content_filter, tool_calls.
func openAIFinishReason(reason string, hasToolCalls bool) string {
	if hasToolCalls {
		return "tool_calls"
	}
	switch reason {
	case protocol.FinishMaxTokens:
		return "length"
	case protocol.FinishSafety, protocol.FinishRecitation:
		return "content_filter"
	default:
		return "stop"
	}
}

func argsJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
