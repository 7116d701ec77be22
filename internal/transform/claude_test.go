package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

func TestClaudeRequestBasic(t *testing.T) {
	req := &protocol.MessagesRequest{
		Model:     "gemini-2.0-flash",
		MaxTokens: 100,
		Messages: []protocol.ClaudeMessage{
			{Role: "user", Content: protocol.ClaudeContent{{Type: "text", Text: "Hi"}}},
		},
	}

	out, env := ClaudeRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if len(out.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(out.Contents))
	}
	if out.Contents[0].Role != "user" || out.Contents[0].Parts[0].Text != "Hi" {
		t.Errorf("message not mapped: %+v", out.Contents[0])
	}
	if out.GenerationConfig == nil || *out.GenerationConfig.MaxOutputTokens != 100 {
		t.Errorf("max_tokens not mapped to maxOutputTokens: %+v", out.GenerationConfig)
	}
	if out.SystemInstruction != nil {
		t.Errorf("expected no systemInstruction, got %+v", out.SystemInstruction)
	}
}

func TestClaudeRequestSystemField(t *testing.T) {
	req := &protocol.MessagesRequest{
		Model:     "gemini-2.0-flash",
		MaxTokens: 50,
		System:    "Be brief.",
		Messages: []protocol.ClaudeMessage{
			{Role: "user", Content: protocol.ClaudeContent{{Type: "text", Text: "Hi"}}},
			{Role: "assistant", Content: protocol.ClaudeContent{{Type: "text", Text: "Yo"}}},
			{Role: "user", Content: protocol.ClaudeContent{{Type: "text", Text: "Bye"}}},
		},
	}
	out, env := ClaudeRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if out.SystemInstruction == nil || out.SystemInstruction.Parts[0].Text != "Be brief." {
		t.Errorf("system not lifted: %+v", out.SystemInstruction)
	}
	if out.Contents[1].Role != "model" {
		t.Errorf("assistant not mapped to model: %s", out.Contents[1].Role)
	}
}

func TestClaudeRequestToolBlocks(t *testing.T) {
	req := &protocol.MessagesRequest{
		Model:     "gemini-2.0-flash",
		MaxTokens: 50,
		Messages: []protocol.ClaudeMessage{
			{Role: "user", Content: protocol.ClaudeContent{{Type: "text", Text: "weather?"}}},
			{Role: "assistant", Content: protocol.ClaudeContent{{
				Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"city":"Oslo"}`),
			}}},
			{Role: "user", Content: protocol.ClaudeContent{{
				Type: "tool_result", ToolUseID: "toolu_1", Content: json.RawMessage(`"sunny"`),
			}}},
		},
		Tools: []protocol.ClaudeTool{{Name: "get_weather", InputSchema: json.RawMessage(`{"type":"object"}`)}},
	}

	out, env := ClaudeRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if fc := out.Contents[1].Parts[0].FunctionCall; fc == nil || fc.Name != "get_weather" {
		t.Errorf("tool_use not mapped to functionCall: %+v", out.Contents[1].Parts[0])
	}
	fr := out.Contents[2].Parts[0].FunctionResponse
	if fr == nil {
		t.Fatal("tool_result not mapped to functionResponse")
	}
	// Scalar results are wrapped into an object.
	if string(fr.Response) != `{"result":"sunny"}` {
		t.Errorf("scalar tool result not wrapped: %s", fr.Response)
	}
	if len(out.Tools) != 1 || out.Tools[0].FunctionDeclarations[0].Name != "get_weather" {
		t.Errorf("tool declarations not mapped: %+v", out.Tools)
	}
}

func TestClaudeRequestUnknownBlockType(t *testing.T) {
	req := &protocol.MessagesRequest{
		Model:     "gemini-2.0-flash",
		MaxTokens: 50,
		Messages: []protocol.ClaudeMessage{
			{Role: "user", Content: protocol.ClaudeContent{{Type: "image"}}},
		},
	}
	if _, env := ClaudeRequest(req); env == nil || env.Kind != apierror.KindValidation {
		t.Error("expected validation error for unknown block type")
	}
}

func TestClaudeResponseBasic(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{{
			Content:      protocol.Content{Role: "model", Parts: []protocol.Part{{Text: "Hello!"}}},
			FinishReason: protocol.FinishStop,
		}},
		UsageMetadata: &protocol.UsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 3},
	}

	out, env := ClaudeResponse(resp, "gemini-2.0-flash")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if !strings.HasPrefix(out.ID, "msg_") || strings.Contains(out.ID, "-") {
		t.Errorf("expected dashless msg_ id, got %s", out.ID)
	}
	if out.Role != "assistant" || out.Type != "message" {
		t.Errorf("wrong envelope fields: %+v", out)
	}
	if len(out.Content) != 1 || out.Content[0].Text != "Hello!" {
		t.Errorf("content not mapped: %+v", out.Content)
	}
	if out.StopReason != "end_turn" {
		t.Errorf("expected end_turn, got %s", out.StopReason)
	}
	if out.Usage.InputTokens != 4 || out.Usage.OutputTokens != 3 {
		t.Errorf("usage not mapped: %+v", out.Usage)
	}
}

func TestClaudeResponseToolUse(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{{
			Content: protocol.Content{Parts: []protocol.Part{{
				FunctionCall: &protocol.FunctionCall{Name: "get_weather", Args: json.RawMessage(`{"city":"Oslo"}`)},
			}}},
			FinishReason: protocol.FinishStop,
		}},
	}
	out, env := ClaudeResponse(resp, "m")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	block := out.Content[0]
	if block.Type != "tool_use" || !strings.HasPrefix(block.ID, "toolu_") {
		t.Errorf("functionCall not mapped to tool_use: %+v", block)
	}
	if out.StopReason != "tool_use" {
		t.Errorf("expected tool_use stop reason, got %s", out.StopReason)
	}
}

func TestClaudeResponseThinking(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{{
			Content: protocol.Content{Parts: []protocol.Part{
				{Text: "pondering", Thought: true},
				{Text: "answer"},
			}},
			FinishReason: protocol.FinishStop,
		}},
	}
	out, env := ClaudeResponse(resp, "m")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if out.Content[0].Type != "thinking" || out.Content[1].Type != "text" {
		t.Errorf("thought part not mapped to thinking block: %+v", out.Content)
	}
	// Thinking text lives in the "thinking" field, not "text".
	if out.Content[0].Thinking != "pondering" || out.Content[0].Text != "" {
		t.Errorf("thinking content in the wrong field: %+v", out.Content[0])
	}
}

func TestClaudeResponseMaxTokens(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{{
			Content:      protocol.Content{Parts: []protocol.Part{{Text: "truncated"}}},
			FinishReason: protocol.FinishMaxTokens,
		}},
	}
	out, env := ClaudeResponse(resp, "m")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if out.StopReason != "max_tokens" {
		t.Errorf("expected max_tokens, got %s", out.StopReason)
	}
}

func TestGeminiResponseRequiresCandidates(t *testing.T) {
	if _, env := GeminiResponse(&protocol.GenerateResponse{}); env == nil {
		t.Error("expected validation error for empty candidates")
	}
	resp := &protocol.GenerateResponse{Candidates: []protocol.Candidate{{}}}
	out, env := GeminiResponse(resp)
	if env != nil || out != resp {
		t.Error("expected identity passthrough")
	}
}
