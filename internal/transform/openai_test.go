package transform

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestOpenAIRequestBasic(t *testing.T) {
	req := &protocol.ChatCompletionRequest{
		Model: "gemini-2.0-flash",
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: "Be terse."},
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello!"},
			{Role: "user", Content: "Bye"},
		},
		Temperature: floatPtr(0.5),
		TopP:        floatPtr(0.9),
		MaxTokens:   intPtr(100),
		Stop:        protocol.StringList{"END"},
	}

	out, env := OpenAIRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}

	// System message is lifted out of the sequence.
	if len(out.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(out.Contents))
	}
	if out.SystemInstruction == nil || out.SystemInstruction.Parts[0].Text != "Be terse." {
		t.Errorf("expected systemInstruction from system message, got %+v", out.SystemInstruction)
	}
	if out.Contents[0].Role != "user" || out.Contents[1].Role != "model" {
		t.Errorf("role mapping wrong: %s, %s", out.Contents[0].Role, out.Contents[1].Role)
	}

	cfg := out.GenerationConfig
	if cfg == nil {
		t.Fatal("expected generationConfig")
	}
	if *cfg.MaxOutputTokens != 100 {
		t.Errorf("max_tokens not renamed: %+v", cfg)
	}
	if *cfg.Temperature != 0.5 || *cfg.TopP != 0.9 {
		t.Errorf("sampling params lost: %+v", cfg)
	}
	if len(cfg.StopSequences) != 1 || cfg.StopSequences[0] != "END" {
		t.Errorf("stop not mapped to stopSequences: %+v", cfg.StopSequences)
	}
}

func TestOpenAIRequestMultipleSystemMessages(t *testing.T) {
	req := &protocol.ChatCompletionRequest{
		Model: "gemini-2.0-flash",
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: "One."},
			{Role: "system", Content: "Two."},
			{Role: "user", Content: "Hi"},
		},
	}
	out, env := OpenAIRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if out.SystemInstruction.Parts[0].Text != "One.\n\nTwo." {
		t.Errorf("expected joined system text, got %q", out.SystemInstruction.Parts[0].Text)
	}
}

func TestOpenAIRequestNoSamplingParams(t *testing.T) {
	req := &protocol.ChatCompletionRequest{
		Model:    "gemini-2.0-flash",
		Messages: []protocol.ChatMessage{{Role: "user", Content: "Hi"}},
	}
	out, env := OpenAIRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if out.GenerationConfig != nil {
		t.Errorf("expected generationConfig omitted, got %+v", out.GenerationConfig)
	}
}

func TestOpenAIRequestTools(t *testing.T) {
	req := &protocol.ChatCompletionRequest{
		Model:    "gemini-2.0-flash",
		Messages: []protocol.ChatMessage{{Role: "user", Content: "weather?"}},
		Tools: []protocol.ChatTool{{
			Type: "function",
			Function: protocol.ChatFunction{
				Name:       "get_weather",
				Parameters: json.RawMessage(`{"type":"object"}`),
			},
		}},
	}
	out, env := OpenAIRequest(req)
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if len(out.Tools) != 1 || out.Tools[0].FunctionDeclarations[0].Name != "get_weather" {
		t.Errorf("tool not mapped: %+v", out.Tools)
	}

	req.Tools[0].Type = "retrieval"
	if _, env := OpenAIRequest(req); env == nil || env.Kind != apierror.KindValidation {
		t.Error("expected validation error for unsupported tool type")
	}
}

func TestOpenAIResponseBasic(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{{
			Content:      protocol.Content{Role: "model", Parts: []protocol.Part{{Text: "Hello "}, {Text: "world"}}},
			FinishReason: protocol.FinishStop,
		}},
		UsageMetadata: &protocol.UsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 2},
	}

	out, env := OpenAIResponse(resp, "gemini-2.0-flash")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if !strings.HasPrefix(out.ID, "chatcmpl-") {
		t.Errorf("expected chatcmpl- id, got %s", out.ID)
	}
	if out.Choices[0].Message.Content != "Hello world" {
		t.Errorf("text parts not collapsed: %q", out.Choices[0].Message.Content)
	}
	if out.Choices[0].FinishReason != "stop" {
		t.Errorf("expected stop, got %s", out.Choices[0].FinishReason)
	}
	if out.Usage.TotalTokens != 6 {
		t.Errorf("expected total tokens 6, got %d", out.Usage.TotalTokens)
	}
}

func TestOpenAIResponseFinishReasons(t *testing.T) {
	tests := []struct {
		upstream string
		want     string
	}{
		{protocol.FinishStop, "stop"},
		{protocol.FinishMaxTokens, "length"},
		{protocol.FinishSafety, "content_filter"},
		{protocol.FinishRecitation, "content_filter"},
		{"SOMETHING_NEW", "stop"},
	}
	for _, tt := range tests {
		resp := &protocol.GenerateResponse{
			Candidates: []protocol.Candidate{{
				Content:      protocol.Content{Parts: []protocol.Part{{Text: "x"}}},
				FinishReason: tt.upstream,
			}},
		}
		out, env := OpenAIResponse(resp, "m")
		if env != nil {
			t.Fatalf("unexpected error: %v", env)
		}
		if out.Choices[0].FinishReason != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.upstream, tt.want, out.Choices[0].FinishReason)
		}
	}
}

func TestOpenAIResponseToolCalls(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{{
			Content: protocol.Content{Parts: []protocol.Part{{
				FunctionCall: &protocol.FunctionCall{Name: "get_weather", Args: json.RawMessage(`{"city":"Oslo"}`)},
			}}},
			FinishReason: protocol.FinishStop,
		}},
	}
	out, env := OpenAIResponse(resp, "m")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	choice := out.Choices[0]
	calls := choice.Message.ToolCalls
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if !strings.HasPrefix(calls[0].ID, "call_") {
		t.Errorf("expected call_ id, got %s", calls[0].ID)
	}
	if calls[0].Function.Arguments != `{"city":"Oslo"}` {
		t.Errorf("arguments not passed through: %s", calls[0].Function.Arguments)
	}
	// The calls must marshal inside the message object, not beside it.
	raw, err := json.Marshal(choice)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"message":{"role":"assistant","content":"","tool_calls":[`) {
		t.Errorf("tool_calls not nested under message: %s", raw)
	}
	// Tool calls override the upstream finish reason.
	if choice.FinishReason != "tool_calls" {
		t.Errorf("expected tool_calls, got %s", choice.FinishReason)
	}
}

func TestOpenAIResponseMultipleCandidates(t *testing.T) {
	resp := &protocol.GenerateResponse{
		Candidates: []protocol.Candidate{
			{Content: protocol.Content{Parts: []protocol.Part{{Text: "first"}}}, FinishReason: protocol.FinishStop},
			{Content: protocol.Content{Parts: []protocol.Part{{Text: "second"}}}, FinishReason: protocol.FinishStop},
		},
	}
	out, env := OpenAIResponse(resp, "m")
	if env != nil {
		t.Fatalf("unexpected error: %v", env)
	}
	if len(out.Choices) != 2 {
		t.Fatalf("expected 2 choices, got %d", len(out.Choices))
	}
	if out.Choices[1].Index != 1 || out.Choices[1].Message.Content != "second" {
		t.Errorf("candidate order not preserved: %+v", out.Choices[1])
	}
}

func TestOpenAIResponseNoCandidates(t *testing.T) {
	_, env := OpenAIResponse(&protocol.GenerateResponse{}, "m")
	if env == nil || env.Kind != apierror.KindValidation {
		t.Error("expected validation error for empty candidates")
	}
}
