package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/middleware"
	"github.com/solara-labs/prism-gateway/internal/protocol"
	"github.com/solara-labs/prism-gateway/internal/relay"
	"github.com/solara-labs/prism-gateway/internal/storage"
	"github.com/solara-labs/prism-gateway/internal/telemetry"
)

// execution carries one validated, transformed request through key
// selection, the upstream call, and the response path.
type execution struct {
	protocol   protocol.Protocol
	model      string
	endpoint   string
	stream     bool
	normalized *protocol.GenerateRequest
	respond    func(*protocol.GenerateResponse) (any, *apierror.Envelope)
	emitter    func() relay.Emitter
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, ex execution) {
	reqID := middleware.RequestIDFromContext(r.Context())

	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		apierror.Write(w, ex.protocol, reqID, apierror.Authentication("Not authenticated"))
		return
	}

	sel, err := h.pool.Select(creds.Keys)
	if err != nil {
		apierror.Write(w, ex.protocol, reqID, apierror.Internal("no credential available"))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordSelection(sel.Reason)
		h.metrics.KeysTracked.Set(float64(h.pool.Size()))
	}

	if ex.stream {
		h.executeStream(w, r, ex, sel.Key, reqID)
		return
	}

	ctx := r.Context()
	timeout := h.cfg().Upstream.RequestTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, env := h.up.Generate(ctx, ex.model, sel.Key, ex.normalized)
	latency := time.Since(start)

	if env != nil {
		h.recordFailure(ex, sel.Key, latency, env)
		logCompleted(reqID, ex, sel, env.HTTPStatus, latency, false)
		apierror.Write(w, ex.protocol, reqID, env)
		return
	}

	out, env := ex.respond(resp)
	if env != nil {
		// The upstream answered but the body was unusable; that still
		// counts against the credential's quality.
		h.recordFailure(ex, sel.Key, latency, env)
		apierror.Write(w, ex.protocol, reqID, env)
		return
	}

	h.pool.RecordOutcome(sel.Key, latency, true)

	promptTokens, completionTokens := 0, 0
	if u := resp.UsageMetadata; u != nil {
		promptTokens, completionTokens = u.PromptTokenCount, u.CandidatesTokenCount
	}
	h.store.LogRequest(storage.RequestLog{
		KeyHash:          apierror.HashKey(sel.Key),
		Model:            ex.model,
		Endpoint:         ex.endpoint,
		StatusCode:       http.StatusOK,
		LatencyMs:        latency.Milliseconds(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	})
	h.store.UpsertKeyMetrics(apierror.HashKey(sel.Key), storage.MetricsDelta{
		Success:   true,
		LatencyMs: latency.Milliseconds(),
	})
	if h.metrics != nil {
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Protocol:         string(ex.protocol),
			Status:           statusLabel(http.StatusOK),
			Model:            ex.model,
			LatencyMs:        float64(latency.Milliseconds()),
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
		})
	}
	logCompleted(reqID, ex, sel, http.StatusOK, latency, false)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *Handler) executeStream(w http.ResponseWriter, r *http.Request, ex execution, key, reqID string) {
	start := time.Now()
	body, env := h.up.Stream(r.Context(), ex.model, key, ex.normalized)
	established := time.Since(start)

	if env != nil {
		h.recordFailure(ex, key, established, env)
		slog.Error("streaming upstream request failed",
			"request_id", reqID, "error", env.Message, "key", apierror.MaskKey(key))
		apierror.Write(w, ex.protocol, reqID, env)
		return
	}
	defer body.Close()

	// Headers received; the credential did its job even if the stream is
	// later cut short.
	h.pool.RecordOutcome(key, established, true)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	logger := slog.Default().With("request_id", reqID, "protocol", string(ex.protocol))
	stats := relay.Stream(r.Context(), w, body, ex.emitter(), logger)
	total := time.Since(start)

	h.store.LogRequest(storage.RequestLog{
		KeyHash:          apierror.HashKey(key),
		Model:            ex.model,
		Endpoint:         ex.endpoint,
		StatusCode:       http.StatusOK,
		LatencyMs:        total.Milliseconds(),
		PromptTokens:     stats.Usage.PromptTokens,
		CompletionTokens: stats.Usage.CompletionTokens,
		IsStream:         true,
	})
	h.store.UpsertKeyMetrics(apierror.HashKey(key), storage.MetricsDelta{
		Success:   true,
		LatencyMs: established.Milliseconds(),
	})
	if h.metrics != nil {
		h.metrics.RecordStream(string(ex.protocol), stats.Events, stats.BufferOverflows)
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Protocol:         string(ex.protocol),
			Status:           statusLabel(http.StatusOK),
			Stream:           true,
			Model:            ex.model,
			LatencyMs:        float64(total.Milliseconds()),
			PromptTokens:     stats.Usage.PromptTokens,
			CompletionTokens: stats.Usage.CompletionTokens,
		})
	}

	slog.Info("stream completed",
		"request_id", reqID,
		"protocol", string(ex.protocol),
		"model", ex.model,
		"events", stats.Events,
		"dropped", stats.Dropped,
		"duration_ms", total.Milliseconds(),
	)
}

// recordFailure folds an upstream failure into the credential's metrics and
// persistence. Upstream validation complaints (bad request shape) are not
// the key's fault and leave its counters alone.
func (h *Handler) recordFailure(ex execution, key string, latency time.Duration, env *apierror.Envelope) {
	if env.Kind != apierror.KindValidation {
		h.pool.RecordOutcome(key, latency, false)
		h.store.UpsertKeyMetrics(apierror.HashKey(key), storage.MetricsDelta{
			LatencyMs: latency.Milliseconds(),
		})
	}
	h.store.LogRequest(storage.RequestLog{
		KeyHash:      apierror.HashKey(key),
		Model:        ex.model,
		Endpoint:     ex.endpoint,
		StatusCode:   env.HTTPStatus,
		LatencyMs:    latency.Milliseconds(),
		IsStream:     ex.stream,
		ErrorMessage: env.Message,
	})
	if h.metrics != nil {
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Protocol:  string(ex.protocol),
			Status:    statusLabel(env.HTTPStatus),
			Stream:    ex.stream,
			Model:     ex.model,
			LatencyMs: float64(latency.Milliseconds()),
		})
	}
}
