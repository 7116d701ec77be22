// Package validate checks inbound request bodies before any transformation
// or upstream call is attempted. Failures carry the offending field path.
package validate

import (
	"fmt"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// Claude request bounds.
const (
	claudeMaxTokensMin   = 1
	claudeMaxTokensMax   = 8192
	claudeTopKMin        = 1
	claudeTopKMax        = 40
	claudeMaxStopSeqs    = 4
	claudeStopSeqMaxLen  = 64
	claudeSystemMaxLen   = 32000
	claudeMaxTools       = 128
	claudeToolNameMaxLen = 64
)

// ClaudeRequest enforces the Claude messages schema: strict user/assistant
// alternation starting and ending on user, plus numeric ranges and array
// caps.
func ClaudeRequest(req *protocol.MessagesRequest) *apierror.Envelope {
	if req.Model == "" {
		return apierror.Validation("model", "field is required")
	}
	if len(req.Messages) == 0 {
		return apierror.Validation("messages", "must be non-empty")
	}
	for i, m := range req.Messages {
		path := fmt.Sprintf("messages[%d].role", i)
		if m.Role != "user" && m.Role != "assistant" {
			return apierror.Validation(path, fmt.Sprintf("invalid role %q", m.Role))
		}
		if i > 0 && m.Role == req.Messages[i-1].Role {
			return apierror.Validation(path, "roles must alternate between user and assistant")
		}
	}
	if req.Messages[0].Role != "user" {
		return apierror.Validation("messages[0].role", "first message must be from user")
	}
	if last := len(req.Messages) - 1; req.Messages[last].Role != "user" {
		return apierror.Validation(fmt.Sprintf("messages[%d].role", last), "last message must be from user")
	}
	if req.MaxTokens < claudeMaxTokensMin || req.MaxTokens > claudeMaxTokensMax {
		return apierror.Validation("max_tokens", fmt.Sprintf("must be between %d and %d", claudeMaxTokensMin, claudeMaxTokensMax))
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		return apierror.Validation("temperature", "must be between 0 and 1")
	}
	if req.TopK != nil && (*req.TopK < claudeTopKMin || *req.TopK > claudeTopKMax) {
		return apierror.Validation("top_k", fmt.Sprintf("must be between %d and %d", claudeTopKMin, claudeTopKMax))
	}
	if len(req.StopSequences) > claudeMaxStopSeqs {
		return apierror.Validation("stop_sequences", fmt.Sprintf("at most %d entries", claudeMaxStopSeqs))
	}
	for i, s := range req.StopSequences {
		if len(s) < 1 || len(s) > claudeStopSeqMaxLen {
			return apierror.Validation(fmt.Sprintf("stop_sequences[%d]", i), fmt.Sprintf("length must be between 1 and %d", claudeStopSeqMaxLen))
		}
	}
	if len(req.System) > claudeSystemMaxLen {
		return apierror.Validation("system", fmt.Sprintf("length must be at most %d", claudeSystemMaxLen))
	}
	if len(req.Tools) > claudeMaxTools {
		return apierror.Validation("tools", fmt.Sprintf("at most %d entries", claudeMaxTools))
	}
	for i, t := range req.Tools {
		if len(t.Name) < 1 || len(t.Name) > claudeToolNameMaxLen {
			return apierror.Validation(fmt.Sprintf("tools[%d].name", i), fmt.Sprintf("length must be between 1 and %d", claudeToolNameMaxLen))
		}
	}
	return nil
}

// OpenAIRequest enforces the chat-completions schema. System messages are
// exempt from role checks; they are extracted during transformation.
func OpenAIRequest(req *protocol.ChatCompletionRequest) *apierror.Envelope {
	if req.Model == "" {
		return apierror.Validation("model", "field is required")
	}
	if len(req.Messages) == 0 {
		return apierror.Validation("messages", "must be non-empty")
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant", "tool":
		default:
			return apierror.Validation(fmt.Sprintf("messages[%d].role", i), fmt.Sprintf("invalid role %q", m.Role))
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return apierror.Validation("temperature", "must be between 0 and 2")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return apierror.Validation("top_p", "must be between 0 and 1")
	}
	if req.MaxTokens != nil && *req.MaxTokens < 1 {
		return apierror.Validation("max_tokens", "must be at least 1")
	}
	if req.N != nil && (*req.N < 1 || *req.N > 8) {
		return apierror.Validation("n", "must be between 1 and 8")
	}
	return nil
}

// GeminiRequest enforces the minimal native-schema requirements; the request
// is otherwise passed through untouched.
func GeminiRequest(req *protocol.GenerateRequest) *apierror.Envelope {
	if len(req.Contents) == 0 {
		return apierror.Validation("contents", "must be non-empty")
	}
	for i, c := range req.Contents {
		if len(c.Parts) == 0 {
			return apierror.Validation(fmt.Sprintf("contents[%d].parts", i), "must be non-empty")
		}
		if c.Role != "" && c.Role != "user" && c.Role != "model" {
			return apierror.Validation(fmt.Sprintf("contents[%d].role", i), fmt.Sprintf("invalid role %q", c.Role))
		}
	}
	return nil
}
