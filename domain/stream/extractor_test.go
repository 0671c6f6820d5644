package stream_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/llmgate/llmgate/domain/stream"
)

const samplePayload = `event: message_start
data: {"type":"message_start","message":{"id":"msg_01ABC","usage":{"input_tokens":1200,"cache_creation_input_tokens":300,"cache_read_input_tokens":4500,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":857}}

event: message_stop
data: {"type":"message_stop"}

`

func feedAll(e *stream.Extractor, payload string) {
	e.Feed([]byte(payload))
	e.Flush()
}

func TestExtractor_FullStream(t *testing.T) {
	e := stream.NewExtractor()
	feedAll(e, samplePayload)

	u := e.Usage()
	if u.InputTokens != 1200 {
		t.Errorf("inputTokens = %d, want 1200", u.InputTokens)
	}
	if u.OutputTokens != 857 {
		t.Errorf("outputTokens = %d, want 857", u.OutputTokens)
	}
	if u.CacheCreationTokens != 300 {
		t.Errorf("cacheCreationTokens = %d, want 300", u.CacheCreationTokens)
	}
	if u.CacheReadTokens != 4500 {
		t.Errorf("cacheReadTokens = %d, want 4500", u.CacheReadTokens)
	}
	if e.RequestID() != "msg_01ABC" {
		t.Errorf("requestID = %q, want msg_01ABC", e.RequestID())
	}
	if e.ErrorMessage() != "" {
		t.Errorf("unexpected error message %q", e.ErrorMessage())
	}
}

// Parsing must be chunk-boundary invariant: splitting the payload at
// arbitrary byte offsets, including mid-line and mid-JSON-token, recovers
// the same counts as a single unsplit delivery.
func TestExtractor_ChunkBoundaryInvariant(t *testing.T) {
	whole := stream.NewExtractor()
	feedAll(whole, samplePayload)
	want := whole.Usage()

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		e := stream.NewExtractor()
		rest := []byte(samplePayload)
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			e.Feed(rest[:n])
			rest = rest[n:]
		}
		e.Flush()

		if e.Usage() != want {
			t.Fatalf("trial %d: usage = %+v, want %+v", trial, e.Usage(), want)
		}
		if e.RequestID() != "msg_01ABC" {
			t.Fatalf("trial %d: requestID = %q", trial, e.RequestID())
		}
	}
}

func TestExtractor_SingleByteFeed(t *testing.T) {
	e := stream.NewExtractor()
	for i := 0; i < len(samplePayload); i++ {
		e.Feed([]byte{samplePayload[i]})
	}
	e.Flush()

	if e.Usage().InputTokens != 1200 || e.Usage().OutputTokens != 857 {
		t.Errorf("usage = %+v", e.Usage())
	}
}

func TestExtractor_PartialTrailingLineHeldUntilComplete(t *testing.T) {
	e := stream.NewExtractor()

	// Three complete data lines plus one trailing partial line.
	chunk := "data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_X\",\"usage\":{\"input_tokens\":10}}}\n" +
		"data: {\"type\":\"content_block_delta\"}\n" +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":5}}\n" +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_to"
	e.Feed([]byte(chunk))

	if e.Usage().OutputTokens != 5 {
		t.Errorf("outputTokens = %d, want 5 before partial line completes", e.Usage().OutputTokens)
	}

	e.Feed([]byte("kens\":99}}\n"))
	if e.Usage().OutputTokens != 99 {
		t.Errorf("outputTokens = %d, want 99 after completion", e.Usage().OutputTokens)
	}
}

func TestExtractor_FlushHandlesMissingFinalNewline(t *testing.T) {
	e := stream.NewExtractor()
	e.Feed([]byte(`data: {"type":"message_delta","usage":{"output_tokens":42}}`))

	if e.Usage().OutputTokens != 0 {
		t.Fatal("unterminated line must not be parsed before flush")
	}

	e.Flush()
	if e.Usage().OutputTokens != 42 {
		t.Errorf("outputTokens = %d, want 42 after flush", e.Usage().OutputTokens)
	}
}

func TestExtractor_SkipsDoneAndEmpty(t *testing.T) {
	e := stream.NewExtractor()
	feedAll(e, "data: [DONE]\ndata: \ndata:\n")

	if e.Usage() != (stream.NewExtractor()).Usage() {
		t.Errorf("usage = %+v, want zero", e.Usage())
	}
}

func TestExtractor_MalformedLineSwallowed(t *testing.T) {
	e := stream.NewExtractor()
	feedAll(e, "data: {not json at all\n"+
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":7}}\n")

	if e.Usage().OutputTokens != 7 {
		t.Errorf("outputTokens = %d, want 7 after malformed line", e.Usage().OutputTokens)
	}
}

func TestExtractor_ErrorEventRecorded(t *testing.T) {
	e := stream.NewExtractor()
	feedAll(e, `data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`+"\n")

	if !strings.Contains(e.ErrorMessage(), "overloaded_error") {
		t.Errorf("errorMessage = %q, want provider error", e.ErrorMessage())
	}
}

func TestExtractor_IgnoresNonDataLines(t *testing.T) {
	e := stream.NewExtractor()
	feedAll(e, ": keepalive\nevent: message_delta\nretry: 500\n")

	if e.Usage().Total() != 0 {
		t.Errorf("usage = %+v, want zero", e.Usage())
	}
}

func TestExtractor_CRLFLines(t *testing.T) {
	e := stream.NewExtractor()
	feedAll(e, "data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":11}}\r\n")

	if e.Usage().OutputTokens != 11 {
		t.Errorf("outputTokens = %d, want 11 with CRLF endings", e.Usage().OutputTokens)
	}
}

func TestExtractor_LargeChunkScenario(t *testing.T) {
	// A ~2000 byte chunk holding three complete data lines and one trailing
	// partial line: the three parse immediately, the tail waits.
	pad := strings.Repeat("x", 600)
	chunk := fmt.Sprintf("data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_big\",\"usage\":{\"input_tokens\":100}},\"pad\":%q}\n", pad) +
		fmt.Sprintf("data: {\"type\":\"content_block_delta\",\"pad\":%q}\n", pad) +
		fmt.Sprintf("data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":60},\"pad\":%q}\n", pad) +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":"

	if len(chunk) < 1500 || len(chunk) > 2500 {
		t.Fatalf("test chunk size drifted: %d bytes", len(chunk))
	}

	e := stream.NewExtractor()
	e.Feed([]byte(chunk))

	u := e.Usage()
	if u.InputTokens != 100 || u.OutputTokens != 60 {
		t.Errorf("usage after partial chunk = %+v, want input 100 output 60", u)
	}

	e.Feed([]byte("75}}\n"))
	if e.Usage().OutputTokens != 75 {
		t.Errorf("outputTokens = %d, want 75", e.Usage().OutputTokens)
	}
}
