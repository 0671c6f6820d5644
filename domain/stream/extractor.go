// Package stream provides incremental SSE usage extraction for relayed
// provider streams. The relay forwards every chunk to the client unmodified;
// the extractor observes the same bytes on the side and recovers token-usage
// metadata without ever interfering with the live stream.
package stream

import (
	"bytes"
	"encoding/json"

	"github.com/llmgate/llmgate/domain/gateway"
)

const dataPrefix = "data: "

// usagePayload mirrors the provider's usage object. Unknown fields are
// dropped by the JSON decoder.
type usagePayload struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// event is the tagged union over the recognized SSE event kinds.
// Everything except message_start, message_delta and error is ignored.
type event struct {
	Type    string `json:"type"`
	Message *struct {
		ID    string        `json:"id"`
		Usage *usagePayload `json:"usage"`
	} `json:"message"`
	Usage *usagePayload   `json:"usage"`
	Error json.RawMessage `json:"error"`
}

// Extractor accumulates usage metadata from an SSE byte stream delivered in
// arbitrary chunks. Lines are only parsed once terminated, so frames split
// mid-line or mid-JSON-token across network chunks are handled correctly:
// parsing is chunk-boundary invariant.
//
// An Extractor is not safe for concurrent use; the relay owns it for the
// duration of one in-flight response.
type Extractor struct {
	lineBuf   []byte
	usage     gateway.TokenUsage
	requestID string
	errMsg    string
}

// NewExtractor creates an extractor for one streaming response.
func NewExtractor() *Extractor {
	return &Extractor{lineBuf: make([]byte, 0, 512)}
}

// Feed consumes the next relayed chunk. All complete lines are processed;
// a trailing partial line stays buffered for the next chunk.
func (e *Extractor) Feed(p []byte) {
	e.lineBuf = append(e.lineBuf, p...)
	for {
		i := bytes.IndexByte(e.lineBuf, '\n')
		if i < 0 {
			return
		}
		line := e.lineBuf[:i]
		e.lineBuf = e.lineBuf[i+1:]
		e.processLine(line)
	}
}

// Flush processes any buffered trailing content. Streams may end without a
// final newline; call once at end-of-body.
func (e *Extractor) Flush() {
	if len(e.lineBuf) > 0 {
		e.processLine(e.lineBuf)
		e.lineBuf = e.lineBuf[:0]
	}
}

// Usage returns the token counts accumulated so far.
func (e *Extractor) Usage() gateway.TokenUsage {
	return e.usage
}

// RequestID returns the provider message id, if one was observed.
func (e *Extractor) RequestID() string {
	return e.requestID
}

// ErrorMessage returns the serialized provider error event, if any.
func (e *Extractor) ErrorMessage() string {
	return e.errMsg
}

// SetError records a transport-level failure observed by the relay so it
// lands in the usage record alongside any provider-reported error.
func (e *Extractor) SetError(msg string) {
	e.errMsg = msg
}

func (e *Extractor) processLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return
	}

	// One malformed event must not abort the stream.
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}

	if ev.Message != nil && ev.Message.ID != "" {
		e.requestID = ev.Message.ID
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil && ev.Message.Usage != nil {
			u := ev.Message.Usage
			e.usage.InputTokens = u.InputTokens
			e.usage.CacheCreationTokens = u.CacheCreationInputTokens
			e.usage.CacheReadTokens = u.CacheReadInputTokens
		}
	case "message_delta":
		// The provider reports cumulative output tokens on each delta.
		if ev.Usage != nil {
			e.usage.OutputTokens = ev.Usage.OutputTokens
		}
	case "error":
		if len(ev.Error) > 0 {
			e.errMsg = string(ev.Error)
		}
	}
}
