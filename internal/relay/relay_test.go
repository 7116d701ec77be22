package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamGeminiPassthrough(t *testing.T) {
	upstream := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hello\"}]}}]}\n\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" world\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":3,\"candidatesTokenCount\":7}}\n\n"

	w := httptest.NewRecorder()
	stats := Stream(context.Background(), w, strings.NewReader(upstream), NewGeminiEmitter(), testLogger())

	if stats.Events != 2 {
		t.Errorf("expected 2 events, got %d", stats.Events)
	}
	if stats.Usage.CompletionTokens != 7 {
		t.Errorf("expected completion tokens from usage, got %d", stats.Usage.CompletionTokens)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"text":"Hello"`) || !strings.Contains(body, `"finishReason":"STOP"`) {
		t.Errorf("expected both chunks relayed verbatim:\n%s", body)
	}
}

func TestStreamFragmentationIdempotent(t *testing.T) {
	// The relayed output must not depend on where read boundaries fall.
	upstream := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}]}\n\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]},\"finishReason\":\"STOP\"}]}\n\n"

	whole := httptest.NewRecorder()
	Stream(context.Background(), whole, strings.NewReader(upstream), NewGeminiEmitter(), testLogger())

	byteAtATime := httptest.NewRecorder()
	Stream(context.Background(), byteAtATime, iotest.OneByteReader(strings.NewReader(upstream)), NewGeminiEmitter(), testLogger())

	if whole.Body.String() != byteAtATime.Body.String() {
		t.Errorf("output differs across read chunking:\nwhole:\n%s\nbyte-at-a-time:\n%s",
			whole.Body.String(), byteAtATime.Body.String())
	}
}

func TestStreamClaudeOutbound(t *testing.T) {
	// Anthropic-vocabulary upstream events relayed to a Claude caller.
	upstream := "data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n\n" +
		"data: {\"type\":\"message_stop\"}\n\n" +
		"data: [DONE]\n\n"

	w := httptest.NewRecorder()
	stats := Stream(context.Background(), w, strings.NewReader(upstream), NewClaudeEmitter("gemini-2.0-flash"), testLogger())

	if stats.Events != 2 {
		t.Errorf("expected 2 events (delta + stop), got %d", stats.Events)
	}
	body := w.Body.String()
	for _, marker := range []string{
		"event: message_start",
		"event: content_block_delta",
		`"text":"Hello"`,
		"event: message_stop",
	} {
		if !strings.Contains(body, marker) {
			t.Errorf("expected %q in relayed stream:\n%s", marker, body)
		}
	}
	if strings.Contains(body, "[DONE]") {
		t.Errorf("the upstream sentinel must not leak to Claude callers:\n%s", body)
	}
}

func TestStreamClaudeSingleDeltaThenDone(t *testing.T) {
	// A lone delta followed by the sentinel must still produce a complete,
	// singly-terminated Claude stream.
	upstream := "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
		"data: [DONE]\n\n"

	w := httptest.NewRecorder()
	Stream(context.Background(), w, strings.NewReader(upstream), NewClaudeEmitter("gemini-2.0-flash"), testLogger())

	body := w.Body.String()
	if n := strings.Count(body, "event: content_block_delta"); n != 1 {
		t.Errorf("expected exactly one text delta, got %d:\n%s", n, body)
	}
	if n := strings.Count(body, "event: message_stop"); n != 1 {
		t.Errorf("expected exactly one terminal event, got %d:\n%s", n, body)
	}
}

func TestStreamFunctionCallReachesOpenAICaller(t *testing.T) {
	upstream := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"functionCall\":{\"name\":\"get_weather\",\"args\":{\"city\":\"Oslo\"}}}]},\"finishReason\":\"STOP\"}]}\n\n"

	w := httptest.NewRecorder()
	Stream(context.Background(), w, strings.NewReader(upstream), NewOpenAIEmitter("gemini-2.0-flash"), testLogger())

	body := w.Body.String()
	if !strings.Contains(body, `"tool_calls":[{"index":0,"id":"call_`) {
		t.Errorf("function call dropped from the stream:\n%s", body)
	}
	if !strings.Contains(body, `"name":"get_weather"`) {
		t.Errorf("expected function name in tool delta:\n%s", body)
	}
	if !strings.Contains(body, `"finish_reason":"tool_calls"`) {
		t.Errorf("expected finish_reason tool_calls:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("OpenAI streams must end with [DONE]:\n%s", body)
	}
}

func TestStreamOpenAIOutbound(t *testing.T) {
	upstream := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hi\"}]},\"finishReason\":\"STOP\"}]}\n\n"

	w := httptest.NewRecorder()
	Stream(context.Background(), w, strings.NewReader(upstream), NewOpenAIEmitter("gemini-2.0-flash"), testLogger())

	body := w.Body.String()
	if !strings.Contains(body, `"finish_reason":"stop"`) {
		t.Errorf("expected finish chunk:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("OpenAI streams must end with [DONE]:\n%s", body)
	}
}

func TestStreamMalformedEventDropped(t *testing.T) {
	upstream := "data: {not json\n\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]},\"finishReason\":\"STOP\"}]}\n\n"

	w := httptest.NewRecorder()
	stats := Stream(context.Background(), w, strings.NewReader(upstream), NewGeminiEmitter(), testLogger())

	if stats.Dropped != 1 {
		t.Errorf("expected 1 dropped event, got %d", stats.Dropped)
	}
	if stats.Events != 1 {
		t.Errorf("expected the valid event to survive, got %d", stats.Events)
	}
	if !strings.Contains(w.Body.String(), `"text":"ok"`) {
		t.Errorf("valid event not relayed:\n%s", w.Body.String())
	}
}

func TestStreamTruncatedUpstreamStillTerminates(t *testing.T) {
	// Upstream dies mid-event; the OpenAI caller still gets a finish chunk.
	upstream := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"partial\"}]}}]}\n\ndata: {\"cand"

	w := httptest.NewRecorder()
	Stream(context.Background(), w, strings.NewReader(upstream), NewOpenAIEmitter("gemini-2.0-flash"), testLogger())

	body := w.Body.String()
	if !strings.Contains(body, `"content":"partial"`) {
		t.Errorf("expected the complete event relayed:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must terminate despite truncation:\n%s", body)
	}
}

func TestStreamCanceledContextStopsReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	stats := Stream(ctx, w, strings.NewReader("data: {\"type\":\"ping\"}\n\n"), NewGeminiEmitter(), testLogger())

	if stats.Events != 0 {
		t.Errorf("expected no events after cancellation, got %d", stats.Events)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected no output after cancellation, got %q", w.Body.String())
	}
}
