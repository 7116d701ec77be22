package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/solara-labs/prism-gateway/internal/apierror"
	"github.com/solara-labs/prism-gateway/internal/protocol"
)

const credentialsKey contextKey = "credentials"

// Credentials holds the caller-submitted upstream keys for one request.
// Callers may submit several keys (comma-separated) and the gateway
// load-balances across them.
type Credentials struct {
	Keys     []string
	Protocol protocol.Protocol
}

// Extract returns middleware that pulls upstream credentials from the
// protocol's auth header, rejecting requests without any key in the
// caller's own error vocabulary.
func Extract(proto protocol.Protocol) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys := credentialKeys(proto, r)
			if len(keys) == 0 {
				env := apierror.Authentication(missingKeyMessage(proto))
				apierror.Write(w, proto, RequestIDFromContext(r.Context()), env)
				return
			}
			ctx := context.WithValue(r.Context(), credentialsKey, &Credentials{Keys: keys, Protocol: proto})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialsFromContext returns the extracted credentials, if any.
func CredentialsFromContext(ctx context.Context) (*Credentials, bool) {
	c, ok := ctx.Value(credentialsKey).(*Credentials)
	return c, ok
}

func credentialKeys(proto protocol.Protocol, r *http.Request) []string {
	var raw string
	switch proto {
	case protocol.ProtocolClaude:
		raw = r.Header.Get("x-api-key")
	case protocol.ProtocolGemini:
		raw = r.Header.Get("x-goog-api-key")
		if raw == "" {
			raw = r.URL.Query().Get("key")
		}
	default:
		auth := r.Header.Get("Authorization")
		raw = strings.TrimPrefix(auth, "Bearer ")
		if raw == auth {
			raw = ""
		}
	}
	return splitKeys(raw)
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func missingKeyMessage(proto protocol.Protocol) string {
	switch proto {
	case protocol.ProtocolClaude:
		return "Missing x-api-key header"
	case protocol.ProtocolGemini:
		return "Missing x-goog-api-key header or key query parameter"
	default:
		return "Missing Authorization header. Use: Authorization: Bearer <api-key>"
	}
}
