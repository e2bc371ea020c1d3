package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/balancer"
	"github.com/Nash0810/gobalance/internal/health"
	"github.com/Nash0810/gobalance/internal/logging"
	"github.com/Nash0810/gobalance/internal/retry"
)

func testPolicy() *retry.Policy {
	return retry.NewPolicy(3, time.Millisecond, 5*time.Millisecond, 2, 100)
}

func newSingleBackendSetup(t *testing.T, srv *httptest.Server) (*balancer.Balancer, *health.Breakers, *health.PassiveTracker) {
	t.Helper()
	reg := backend.NewRegistry()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	reg.Add("b1", u, 1)

	bal := balancer.NewBalancer(reg, balancer.NewRoundRobinStrategy(), false, logging.NewLogger("test"))
	breakers := health.NewBreakers(logging.NewLogger("test"))
	passive := health.NewPassiveTracker(reg, logging.NewLogger("test"))
	return bal, breakers, passive
}

func TestGenerateConcatenatesNDJSONUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"Hel"}` + "\n"))
		w.Write([]byte(`{"response":"lo"}` + "\n"))
		w.Write([]byte(`{"response":"","done":true,"total_tokens":5}` + "\n"))
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	result, err := p.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Fallback {
		t.Fatal("did not expect fallback result")
	}
	if result.Text != "Hello" {
		t.Errorf("expected concatenated text 'Hello', got %q", result.Text)
	}
	if result.Tokens != 5 {
		t.Errorf("expected tokens=5, got %d", result.Tokens)
	}
}

func TestGenerateSkipsMalformedLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"A"}` + "\n"))
		w.Write([]byte("not json\n"))
		w.Write([]byte(`{"response":"B","done":true,"total_tokens":2}` + "\n"))
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	result, err := p.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != "AB" {
		t.Errorf("expected 'AB' with malformed line skipped, got %q", result.Text)
	}
}

func TestGenerateRetriesOnTransportFailureThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"response":"ok","done":true,"total_tokens":1}` + "\n"))
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	result, err := p.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Fallback {
		t.Fatal("expected eventual success, not fallback")
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestGenerateReturnsFallbackWhenRetriesExhaust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	result, err := p.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate should never return an error, got %v", err)
	}
	if !result.Fallback {
		t.Error("expected a fallback result after retries exhaust")
	}
}

type recordingSink struct {
	chunks []string
	failAt int
}

func (s *recordingSink) Emit(chunk string) error {
	if s.failAt > 0 && len(s.chunks)+1 == s.failAt {
		return errors.New("client write failed")
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func TestGenerateStreamingEmitsChunksInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"one"}` + "\n"))
		w.Write([]byte(`{"response":"two"}` + "\n"))
		w.Write([]byte(`{"response":"","done":true,"total_tokens":3}` + "\n"))
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	sink := &recordingSink{}
	if err := p.GenerateStreaming(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"}, sink); err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	if len(sink.chunks) != 2 || sink.chunks[0] != "one" || sink.chunks[1] != "two" {
		t.Errorf("expected chunks [one two] in order, got %v", sink.chunks)
	}
}

func TestGenerateStreamingDoesNotRetryAfterFirstByte(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"response":"partial"}` + "\n"))
		flusher, ok := w.(http.Flusher)
		if ok {
			flusher.Flush()
		}
		// Connection drops mid-stream without a done frame: the retry
		// combinator must not attempt a second request since a chunk
		// already reached the client.
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	sink := &recordingSink{}
	_ = p.GenerateStreaming(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"}, sink)

	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt once a byte has been sent, got %d", attempts)
	}
	if len(sink.chunks) != 1 || sink.chunks[0] != "partial" {
		t.Errorf("expected the partial chunk to have reached the sink, got %v", sink.chunks)
	}
}

func TestGenerateStreamingRetriesBeforeFirstByte(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"response":"hello","done":true,"total_tokens":1}` + "\n"))
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	sink := &recordingSink{}
	if err := p.GenerateStreaming(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"}, sink); err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected a retry before any byte was sent, got %d attempts", attempts)
	}
	if len(sink.chunks) != 1 || sink.chunks[0] != "hello" {
		t.Errorf("expected the successful attempt's chunk, got %v", sink.chunks)
	}
}

func TestGenerateStreamingPropagatesSinkWriteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"one"}` + "\n"))
		w.Write([]byte(`{"response":"two","done":true}` + "\n"))
	}))
	defer srv.Close()

	bal, breakers, passive := newSingleBackendSetup(t, srv)
	p := NewProxy(bal, breakers, testPolicy(), 200, passive, logging.NewLogger("test"))

	sink := &recordingSink{failAt: 1}
	err := p.GenerateStreaming(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"}, sink)
	if err == nil {
		t.Fatal("expected the sink's write failure to propagate")
	}
}
