// Package protocol defines the wire formats the gateway speaks: the three
// inbound schemas (OpenAI chat completions, Claude messages, Gemini native)
// and the normalized Gemini request every inbound request is translated to.
package protocol

// Protocol identifies an inbound request/response schema.
type Protocol string

const (
	ProtocolOpenAI Protocol = "openai"
	ProtocolClaude Protocol = "claude"
	ProtocolGemini Protocol = "gemini"
)

// String returns the raw schema identifier.
func (p Protocol) String() string {
	return string(p)
}
