package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/llmgate/llmgate/adapters/metrics"
	"github.com/llmgate/llmgate/app"
	"github.com/llmgate/llmgate/domain/gateway"
	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/domain/stream"
)

// defaultKeepaliveInterval is how often a comment frame is written while
// the upstream has produced no bytes yet. Long prompts can take tens of
// seconds before the first event; intermediaries drop idle connections.
const defaultKeepaliveInterval = 25 * time.Second

// keepaliveFrame is an SSE comment; provider SDKs ignore it.
const keepaliveFrame = ": keepalive\n\n"

// relay pumps a live upstream SSE body to the client while extracting
// token usage from the frames passing through. Response headers go out
// before upstream is contacted, so every failure after that point is
// delivered as a terminal error event, not a status code.
type relay struct {
	svc       *app.GatewayService
	metrics   *metrics.Collector
	log       zerolog.Logger
	keepalive time.Duration
}

func newRelay(svc *app.GatewayService, m *metrics.Collector, log zerolog.Logger, keepalive time.Duration) *relay {
	if keepalive == 0 {
		keepalive = defaultKeepaliveInterval
	}
	return &relay{svc: svc, metrics: m, log: log, keepalive: keepalive}
}

// streamEvent is one message from the reader goroutine. Exactly one of
// chunk and err is set; io.EOF signals a clean end of stream.
type streamEvent struct {
	chunk []byte
	err   error
}

// upstreamStatusError is a non-2xx status observed on stream open. The
// provider body is relayed verbatim inside the error frame.
type upstreamStatusError struct {
	status int
	body   []byte
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.status)
}

// serve relays one streaming request. Exactly one usage record is queued
// before it returns, whatever the outcome.
func (r *relay) serve(w http.ResponseWriter, req *http.Request, greq gateway.Request, p principal.Principal) {
	ctx := req.Context()
	start := time.Now()

	flusher, ok := w.(http.Flusher)
	if !ok {
		// Should not happen with net/http; degrade to an error response.
		e := gateway.ErrorResponse{Status: 500, Type: "api_error", Message: "Streaming unsupported"}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.Status)
		w.Write(e.Envelope())
		r.svc.RecordOutcome(p, greq, gateway.TokenUsage{}, "", 0, e.Message)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// First keepalive goes out before upstream is even dialed.
	r.writeKeepalive(w, flusher)

	events := make(chan streamEvent)
	go r.pump(ctx, greq, events)

	extractor := stream.NewExtractor()
	ticker := time.NewTicker(r.keepalive)
	defer ticker.Stop()

	sawData := false
loop:
	for {
		select {
		case ev := <-events:
			if ev.chunk != nil {
				if !sawData {
					sawData = true
					ticker.Stop()
				}
				if _, err := w.Write(ev.chunk); err != nil {
					// Client went away mid-stream; keep the usage
					// observed so far.
					extractor.Flush()
					extractor.SetError("client disconnected")
					break loop
				}
				flusher.Flush()
				extractor.Feed(ev.chunk)
				continue
			}
			if ev.err == io.EOF {
				extractor.Flush()
				break loop
			}
			r.failStream(w, flusher, extractor, ev.err)
			break loop

		case <-ticker.C:
			if !sawData {
				r.writeKeepalive(w, flusher)
			}

		case <-ctx.Done():
			extractor.Flush()
			extractor.SetError("client disconnected")
			break loop
		}
	}

	durationMs := time.Since(start).Milliseconds()
	r.svc.RecordOutcome(p, greq, extractor.Usage(), extractor.RequestID(), durationMs, extractor.ErrorMessage())
	countUsage(r.metrics, greq.Model, extractor.Usage())
}

// pump opens the upstream stream and forwards body chunks to the relay
// loop. It owns closing the body and always ends with an error event
// (io.EOF for a clean end).
func (r *relay) pump(ctx context.Context, greq gateway.Request, events chan<- streamEvent) {
	send := func(ev streamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	body, err := r.svc.OpenStream(ctx, greq)
	if err != nil {
		send(streamEvent{err: err})
		return
	}
	defer body.Body.Close()

	if body.Status < 200 || body.Status >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(body.Body, 64<<10))
		send(streamEvent{err: &upstreamStatusError{status: body.Status, body: raw}})
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := body.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !send(streamEvent{chunk: chunk}) {
				return
			}
		}
		if err != nil {
			send(streamEvent{err: err})
			return
		}
	}
}

// failStream records the failure on the extractor and makes a best-effort
// attempt to deliver one terminal error frame to the client.
func (r *relay) failStream(w http.ResponseWriter, flusher http.Flusher, extractor *stream.Extractor, err error) {
	extractor.Flush()

	var data []byte
	var se *upstreamStatusError
	switch {
	case errors.As(err, &se):
		msg := fmt.Sprintf("upstream status %d", se.status)
		extractor.SetError(msg)
		if len(se.body) > 0 {
			// The provider already shaped an error envelope; relay it.
			data = se.body
		} else {
			e := gateway.ErrUpstream
			data = e.Envelope()
		}
		if r.metrics != nil {
			r.metrics.UpstreamErrors.WithLabelValues("status").Inc()
		}
	case errors.Is(err, context.DeadlineExceeded):
		e := gateway.ErrTimeout
		extractor.SetError(e.Message)
		data = e.Envelope()
		if r.metrics != nil {
			r.metrics.UpstreamErrors.WithLabelValues("timeout").Inc()
		}
	default:
		e := gateway.ErrUpstream
		extractor.SetError(e.Message)
		data = e.Envelope()
		if r.metrics != nil {
			r.metrics.UpstreamErrors.WithLabelValues("transport").Inc()
		}
		r.log.Warn().Err(err).Msg("upstream stream failed")
	}

	if _, werr := fmt.Fprintf(w, "event: error\ndata: %s\n\n", data); werr == nil {
		flusher.Flush()
	}
}

func (r *relay) writeKeepalive(w http.ResponseWriter, flusher http.Flusher) {
	if _, err := io.WriteString(w, keepaliveFrame); err != nil {
		return
	}
	flusher.Flush()
	if r.metrics != nil {
		r.metrics.KeepalivesSent.Inc()
	}
}
