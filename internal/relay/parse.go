package relay

import (
	"encoding/json"
	"strings"

	"github.com/solara-labs/prism-gateway/internal/protocol"
)

// parseEvent decodes one upstream data payload into a protocol-neutral
// stream event. It understands Gemini chunk objects (candidates/parts) and
// typed events in the Anthropic vocabulary (content_block_delta,
// message_delta, message_stop). Unknown or ignorable events return ok=false;
// undecodable JSON returns an error.
func parseEvent(payload []byte) (protocol.StreamEvent, bool, error) {
	var probe struct {
		Candidates    []protocol.Candidate    `json:"candidates"`
		UsageMetadata *protocol.UsageMetadata `json:"usageMetadata"`
		Type          string                  `json:"type"`
		Delta         typedDelta              `json:"delta"`
		Error         *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return protocol.StreamEvent{}, false, err
	}

	if probe.Error != nil {
		return protocol.StreamEvent{
			Kind:       protocol.StreamError,
			ErrMessage: probe.Error.Message,
			Raw:        json.RawMessage(payload),
		}, true, nil
	}

	if probe.Type != "" {
		return parseTypedEvent(probe.Type, probe.Delta, payload)
	}

	if len(probe.Candidates) == 0 {
		return protocol.StreamEvent{}, false, nil
	}

	ev := protocol.StreamEvent{
		Kind:  protocol.StreamDelta,
		Usage: probe.UsageMetadata,
		Raw:   json.RawMessage(payload),
	}
	cand := probe.Candidates[0]
	var text, thinking strings.Builder
	for _, part := range cand.Content.Parts {
		if part.FunctionCall != nil {
			if ev.ToolName == "" {
				ev.ToolName = part.FunctionCall.Name
				ev.ToolInput = string(part.FunctionCall.Args)
				if ev.ToolInput == "" {
					ev.ToolInput = "{}"
				}
			}
			continue
		}
		if part.Thought {
			thinking.WriteString(part.Text)
			continue
		}
		text.WriteString(part.Text)
	}
	ev.Text = text.String()
	ev.Thinking = thinking.String()
	if cand.FinishReason != "" {
		ev.Kind = protocol.StreamStop
		ev.StopReason = cand.FinishReason
	}
	return ev, true, nil
}

// typedDelta is the delta object carried by Anthropic-vocabulary events.
type typedDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Thinking    string `json:"thinking"`
	PartialJSON string `json:"partial_json"`
	StopReason  string `json:"stop_reason"`
}

func parseTypedEvent(typ string, delta typedDelta, payload []byte) (protocol.StreamEvent, bool, error) {
	switch typ {
	case "content_block_delta":
		ev := protocol.StreamEvent{Kind: protocol.StreamDelta, Raw: json.RawMessage(payload)}
		switch delta.Type {
		case "thinking_delta":
			ev.Thinking = delta.Thinking
		case "input_json_delta":
			ev.ToolInput = delta.PartialJSON
		default:
			ev.Text = delta.Text
		}
		return ev, true, nil
	case "message_delta":
		return protocol.StreamEvent{
			Kind:       protocol.StreamStop,
			StopReason: normalizeStopReason(delta.StopReason),
			Raw:        json.RawMessage(payload),
		}, true, nil
	case "message_stop":
		return protocol.StreamEvent{
			Kind:       protocol.StreamStop,
			StopReason: protocol.FinishStop,
			Raw:        json.RawMessage(payload),
		}, true, nil
	default:
		// message_start, content_block_start, content_block_stop, ping
		return protocol.StreamEvent{}, false, nil
	}
}

// normalizeStopReason lifts an Anthropic stop reason into Gemini's
// finishReason vocabulary so emitters deal with a single enum.
func normalizeStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return protocol.FinishMaxTokens
	case "", "end_turn", "stop_sequence":
		return protocol.FinishStop
	default:
		return protocol.FinishStop
	}
}
