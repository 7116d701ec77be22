// Package transform contains the pure request/response mappings between each
// inbound protocol and Gemini's native API. Transformations never perform
// I/O; malformed input surfaces as a validation envelope carrying the
// offending field path.
package transform

import (
	"fmt"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// GeminiRequest is the identity transform for native callers.
func GeminiRequest(req *protocol.GenerateRequest) (*protocol.GenerateRequest, *apierror.Envelope) {
	return req, nil
}

// GeminiResponse passes the upstream body through after checking the
// required top-level field is present.
func GeminiResponse(resp *protocol.GenerateResponse) (*protocol.GenerateResponse, *apierror.Envelope) {
	if len(resp.Candidates) == 0 {
		return nil, apierror.Validation("candidates", "missing in upstream response")
	}
	return resp, nil
}

// geminiRole maps an outbound-protocol role onto Gemini's user/model pair.
func geminiRole(role string) (string, error) {
	switch role {
	case "user", "tool":
		return "user", nil
	case "assistant":
		return "model", nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}
