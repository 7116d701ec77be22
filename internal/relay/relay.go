package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// Stats summarizes one relayed stream for logging and metrics.
type Stats struct {
	Events          int
	Dropped         int
	BufferOverflows int
	Usage           usageCarrier
}

type usageCarrier struct {
	PromptTokens     int
	CompletionTokens int
}

// Stream pumps the upstream SSE body through the decoder and emitter,
// forwarding each outbound frame immediately. It returns when the done
// sentinel arrives, the upstream closes, or the caller's context is
// canceled; the outbound stream is terminated exactly once in all cases.
func Stream(ctx context.Context, w http.ResponseWriter, upstream io.Reader, em Emitter, logger *slog.Logger) Stats {
	var stats Stats

	flusher, _ := w.(http.Flusher)
	writeFrames := func(frames [][]byte) {
		for _, f := range frames {
			if len(f) == 0 {
				continue
			}
			w.Write(f)
		}
		if len(frames) > 0 && flusher != nil {
			flusher.Flush()
		}
	}

	dec := &Decoder{}
	buf := make([]byte, 32*1024)

	for {
		if ctx.Err() != nil {
			// Caller is gone; stop reading so the upstream connection is
			// released instead of drained in the background.
			logger.Info("client disconnected mid-stream")
			return stats
		}

		n, readErr := upstream.Read(buf)
		if n > 0 {
			before := dec.Overflows()
			payloads, done := dec.Feed(buf[:n])
			if dec.Overflows() > before {
				stats.BufferOverflows += dec.Overflows() - before
				logger.Warn("stream buffer cap exceeded, oldest half discarded")
			}
			for _, payload := range payloads {
				ev, ok, err := parseEvent(payload)
				if err != nil {
					stats.Dropped++
					logger.Warn("dropping malformed stream event", "error", err)
					continue
				}
				if !ok {
					continue
				}
				stats.Events++
				if ev.Usage != nil {
					stats.Usage.PromptTokens = ev.Usage.PromptTokenCount
					stats.Usage.CompletionTokens = ev.Usage.CandidatesTokenCount
				}
				writeFrames(em.Emit(ev))
			}
			if done {
				writeFrames(em.Finish())
				return stats
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("upstream stream read failed", "error", readErr)
			}
			if dec.Pending() > 0 {
				logger.Warn("stream ended with unconsumed buffered data", "bytes", dec.Pending())
			}
			writeFrames(em.Finish())
			return stats
		}
	}
}
