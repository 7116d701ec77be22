// Package gateway wires the inbound HTTP surfaces to the transform,
// key-selection, upstream, and relay layers.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/config"
	"github.com/solara-labs/prism-gateway/internal/keypool"
	"github.com/solara-labs/prism-gateway/internal/middleware"
	"github.com/solara-labs/prism-gateway/internal/protocol"
	"github.com/solara-labs/prism-gateway/internal/relay"
	"github.com/solara-labs/prism-gateway/internal/storage"
	"github.com/solara-labs/prism-gateway/internal/telemetry"
	"github.com/solara-labs/prism-gateway/internal/transform"
	"github.com/solara-labs/prism-gateway/internal/upstream"
	"github.com/solara-labs/prism-gateway/internal/validate"
)

// Upstream is the slice of the Gemini client the handlers need; the
// concrete client satisfies it and tests substitute fakes.
type Upstream interface {
	Generate(ctx context.Context, model, apiKey string, req *protocol.GenerateRequest) (*protocol.GenerateResponse, *apierror.Envelope)
	Stream(ctx context.Context, model, apiKey string, req *protocol.GenerateRequest) (io.ReadCloser, *apierror.Envelope)
}

var _ Upstream = (*upstream.Client)(nil)

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	pool    *keypool.Pool
	up      Upstream
	store   *storage.Store
	metrics *telemetry.Metrics
	cfg     func() *config.Config
}

func NewHandler(pool *keypool.Pool, up Upstream, store *storage.Store, metrics *telemetry.Metrics, cfg func() *config.Config) *Handler {
	return &Handler{
		pool:    pool,
		up:      up,
		store:   store,
		metrics: metrics,
		cfg:     cfg,
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req protocol.ChatCompletionRequest
	if env := decodeBody(r, &req); env != nil {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, env)
		return
	}
	if env := validate.OpenAIRequest(&req); env != nil {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, env)
		return
	}
	normalized, env := transform.OpenAIRequest(&req)
	if env != nil {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, env)
		return
	}

	h.execute(w, r, execution{
		protocol:   protocol.ProtocolOpenAI,
		model:      req.Model,
		endpoint:   "/v1/chat/completions",
		stream:     req.Stream,
		normalized: normalized,
		respond: func(resp *protocol.GenerateResponse) (any, *apierror.Envelope) {
			return transform.OpenAIResponse(resp, req.Model)
		},
		emitter: func() relay.Emitter { return relay.NewOpenAIEmitter(req.Model) },
	})
}

// ClaudeMessages handles POST /v1/messages.
func (h *Handler) ClaudeMessages(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req protocol.MessagesRequest
	if env := decodeBody(r, &req); env != nil {
		apierror.Write(w, protocol.ProtocolClaude, reqID, env)
		return
	}
	if env := validate.ClaudeRequest(&req); env != nil {
		apierror.Write(w, protocol.ProtocolClaude, reqID, env)
		return
	}
	normalized, env := transform.ClaudeRequest(&req)
	if env != nil {
		apierror.Write(w, protocol.ProtocolClaude, reqID, env)
		return
	}

	h.execute(w, r, execution{
		protocol:   protocol.ProtocolClaude,
		model:      req.Model,
		endpoint:   "/v1/messages",
		stream:     req.Stream,
		normalized: normalized,
		respond: func(resp *protocol.GenerateResponse) (any, *apierror.Envelope) {
			return transform.ClaudeResponse(resp, req.Model)
		},
		emitter: func() relay.Emitter { return relay.NewClaudeEmitter(req.Model) },
	})
}

// GeminiGenerate handles POST /v1beta/models/{modelAction} where the path
// parameter carries both the model and the method, colon-separated
// (gemini-2.0-flash:generateContent).
func (h *Handler) GeminiGenerate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	model, action, ok := splitModelAction(chi.URLParam(r, "modelAction"))
	if !ok {
		env := apierror.Validation("model", "expected models/{model}:generateContent or :streamGenerateContent")
		apierror.Write(w, protocol.ProtocolGemini, reqID, env)
		return
	}

	var req protocol.GenerateRequest
	if env := decodeBody(r, &req); env != nil {
		apierror.Write(w, protocol.ProtocolGemini, reqID, env)
		return
	}
	if env := validate.GeminiRequest(&req); env != nil {
		apierror.Write(w, protocol.ProtocolGemini, reqID, env)
		return
	}
	normalized, env := transform.GeminiRequest(&req)
	if env != nil {
		apierror.Write(w, protocol.ProtocolGemini, reqID, env)
		return
	}

	h.execute(w, r, execution{
		protocol:   protocol.ProtocolGemini,
		model:      model,
		endpoint:   "/v1beta/models/" + model + ":" + action,
		stream:     action == "streamGenerateContent",
		normalized: normalized,
		respond: func(resp *protocol.GenerateResponse) (any, *apierror.Envelope) {
			return transform.GeminiResponse(resp)
		},
		emitter: func() relay.Emitter { return relay.NewGeminiEmitter() },
	})
}

func splitModelAction(param string) (model, action string, ok bool) {
	idx := strings.LastIndex(param, ":")
	if idx <= 0 {
		return "", "", false
	}
	model, action = param[:idx], param[idx+1:]
	if action != "generateContent" && action != "streamGenerateContent" {
		return "", "", false
	}
	return model, action, true
}

// KeyPoolSnapshot handles GET /admin/keys with the in-memory pool state.
// Key material is masked.
func (h *Handler) KeyPoolSnapshot(w http.ResponseWriter, r *http.Request) {
	keys := h.pool.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count": len(keys),
		"keys":  keys,
	})
}

// ListModels handles GET /v1/models, proxying the upstream model catalog in
// the OpenAI list shape.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	creds, ok := middleware.CredentialsFromContext(r.Context())
	if !ok {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, apierror.Authentication("Not authenticated"))
		return
	}

	sel, err := h.pool.Select(creds.Keys)
	if err != nil {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, apierror.Internal("no credential available"))
		return
	}

	lister, ok := h.up.(interface {
		ListModels(ctx context.Context, apiKey string) ([]string, *apierror.Envelope)
	})
	if !ok {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, apierror.Internal("model listing unavailable"))
		return
	}
	names, env := lister.ListModels(r.Context(), sel.Key)
	if env != nil {
		apierror.Write(w, protocol.ProtocolOpenAI, reqID, env)
		return
	}

	type modelObject struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := make([]modelObject, 0, len(names))
	for _, name := range names {
		models = append(models, modelObject{ID: name, Object: "model", OwnedBy: "google"})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": models})
}

func decodeBody(r *http.Request, dest any) *apierror.Envelope {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apierror.Validation("body", "failed to read request body")
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return apierror.Validation("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// statusLabel formats an HTTP status for metrics.
func statusLabel(code int) string {
	return strconv.Itoa(code)
}

func logCompleted(reqID string, ex execution, sel keypool.Selection, status int, latency time.Duration, stream bool) {
	slog.Info("request completed",
		"request_id", reqID,
		"protocol", string(ex.protocol),
		"model", ex.model,
		"key", apierror.MaskKey(sel.Key),
		"selection_reason", sel.Reason,
		"healthy_keys", sel.HealthyCount,
		"status", status,
		"duration_ms", latency.Milliseconds(),
		"stream", stream,
	)
}
