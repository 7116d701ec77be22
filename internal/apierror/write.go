package apierror

import (
	"encoding/json"
	"net/http"

	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// openAIError matches the OpenAI error response format.
type openAIError struct {
	Error openAIErrorBody `json:"error"`
}

type openAIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// claudeError matches the Anthropic error response format.
type claudeError struct {
	Type  string          `json:"type"`
	Error claudeErrorBody `json:"error"`
}

type claudeErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// geminiError matches Google's RPC error response format.
type geminiError struct {
	Error geminiErrorBody `json:"error"`
}

type geminiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Body serializes the envelope in the given protocol's error vocabulary.
func Body(env *Envelope, proto protocol.Protocol) []byte {
	var payload any
	switch proto {
	case protocol.ProtocolClaude:
		payload = claudeError{
			Type:  "error",
			Error: claudeErrorBody{Type: claudeErrorType(env.Kind), Message: env.Message},
		}
	case protocol.ProtocolGemini:
		payload = geminiError{
			Error: geminiErrorBody{Code: env.HTTPStatus, Message: env.Message, Status: geminiStatus(env.HTTPStatus)},
		}
	default:
		payload = openAIError{
			Error: openAIErrorBody{Message: env.Message, Type: openAIErrorType(env.Kind), Code: string(env.Kind)},
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"error":{"message":"internal error"}}`)
	}
	return data
}

// Write serializes the envelope in the caller's protocol and writes it with
// the envelope's HTTP status.
func Write(w http.ResponseWriter, proto protocol.Protocol, requestID string, env *Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(env.HTTPStatus)
	w.Write(Body(env, proto))
}

func openAIErrorType(k Kind) string {
	switch k {
	case KindAuthentication:
		return "authentication_error"
	case KindValidation:
		return "invalid_request_error"
	case KindRateLimit:
		return "rate_limit_error"
	case KindUpstreamAPI, KindNetwork:
		return "api_error"
	default:
		return "server_error"
	}
}

func claudeErrorType(k Kind) string {
	switch k {
	case KindAuthentication:
		return "authentication_error"
	case KindValidation:
		return "invalid_request_error"
	case KindRateLimit:
		return "rate_limit_error"
	case KindUpstreamAPI, KindNetwork:
		return "api_error"
	default:
		return "internal_server_error"
	}
}

func geminiStatus(httpStatus int) string {
	switch httpStatus {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return "UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "DEADLINE_EXCEEDED"
	default:
		return "INTERNAL"
	}
}
