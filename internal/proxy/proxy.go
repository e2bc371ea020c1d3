// Package proxy implements the Streaming Proxy: it opens a generation
// request against the selected backend, parses its NDJSON frames, and
// either concatenates them into a single response or fans them out to
// the client as Server-Sent Events.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/balancer"
	"github.com/Nash0810/gobalance/internal/health"
	"github.com/Nash0810/gobalance/internal/logging"
	"github.com/Nash0810/gobalance/internal/retry"
)

// GenerateRequest is the Request Envelope's HTTP-bound subset needed
// to dispatch a generation.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// generatePayload is the upstream wire body, bit-compatible with the
// Ollama generate endpoint.
type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// generateFrame is one NDJSON line the backend emits.
type generateFrame struct {
	Model         string `json:"model"`
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	TotalTokens   int    `json:"total_tokens"`
	TotalDuration int64  `json:"total_duration"`
}

// Result is a completed non-streaming generation.
type Result struct {
	Text     string
	Tokens   int
	Fallback bool
}

// ChunkSink receives streaming output. Emit is called once per chunk,
// in backend order.
type ChunkSink interface {
	Emit(chunk string) error
}

// streamIdleTimeout bounds how long a streaming dispatch may go
// without a frame before it is treated as a dead connection, per
// spec's per-frame idle deadline.
const streamIdleTimeout = 120 * time.Second

// Proxy is the Streaming Proxy component.
type Proxy struct {
	client         *http.Client
	balancer       *balancer.Balancer
	breakers       *health.Breakers
	passive        *health.PassiveTracker
	policy         *retry.Policy
	logger         *logging.Logger
	fallbackStatus int
}

// NewProxy wires bal's AllowFunc to breakers once, at construction:
// the predicate only closes over breakers, which never changes for
// the Proxy's lifetime, so installing it here (rather than on every
// dispatch) avoids mutating the shared balancer from concurrent
// Generate/GenerateStreaming goroutines.
func NewProxy(bal *balancer.Balancer, breakers *health.Breakers, policy *retry.Policy, fallbackStatus int, passive *health.PassiveTracker, logger *logging.Logger) *Proxy {
	if breakers != nil {
		bal.AllowFunc = func(id string) bool { return breakers.Get(id).AllowRequest() }
	}
	return &Proxy{
		client:         &http.Client{},
		balancer:       bal,
		breakers:       breakers,
		passive:        passive,
		policy:         policy,
		logger:         logger,
		fallbackStatus: fallbackStatus,
	}
}

// FallbackStatus exposes the configured fallback HTTP status, for the
// HTTP surface to use when Generate signals req.Fallback.
func (p *Proxy) FallbackStatus() int { return p.fallbackStatus }

// Generate performs a non-streaming dispatch with spec's retry policy:
// up to MaxAttempts with exponential backoff, re-entering the Load
// Balancer on each attempt. If every attempt fails, it returns a
// synthetic fallback Result rather than an error, per spec's fallback
// rule — callers must not treat Fallback as success for cache writes.
func (p *Proxy) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	var result Result
	err := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) error {
		b, selectErr := p.selectBackend()
		if selectErr != nil {
			return selectErr
		}

		dispatchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		start := time.Now()
		text, tokens, err := p.dispatchNonStreaming(dispatchCtx, b, req)
		elapsed := time.Since(start)

		if err != nil {
			p.passive.RecordFailure(b.ID, elapsed, err)
			p.tripBreaker(b.ID)
			p.logger.Warn("generation_attempt_failed", "backend", b.ID, "attempt", attempt, "err", err)
			return err
		}

		p.passive.RecordSuccess(b.ID, elapsed, int64(tokens))
		p.resetBreaker(b.ID)
		result = Result{Text: text, Tokens: tokens}
		return nil
	})

	if err != nil {
		return p.fallbackResult(), nil
	}
	return result, nil
}

// GenerateStreaming dispatches a streaming request, emitting each
// chunk to sink in backend order. It retries only if failure occurs
// before the first chunk is emitted, per spec's no-retry-after-first-
// byte rule for streams. A failure after the first chunk is returned to
// the caller without another dispatch.
func (p *Proxy) GenerateStreaming(ctx context.Context, req GenerateRequest, sink ChunkSink) error {
	var firstByteSent bool
	var streamErr error

	err := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) error {
		if firstByteSent {
			return retryAfterFirstByte
		}

		b, selectErr := p.selectBackend()
		if selectErr != nil {
			return selectErr
		}

		start := time.Now()
		tokens, sendErr, emitErr := p.dispatchStreaming(ctx, b, req, sink, &firstByteSent)
		elapsed := time.Since(start)

		if emitErr != nil {
			// A client-side write failure: nothing upstream to blame.
			p.passive.RecordFailure(b.ID, elapsed, emitErr)
			streamErr = emitErr
			return emitErr
		}
		if sendErr != nil {
			p.passive.RecordFailure(b.ID, elapsed, sendErr)
			p.tripBreaker(b.ID)
			if firstByteSent {
				streamErr = sendErr
				return retryAfterFirstByte
			}
			return sendErr
		}

		p.passive.RecordSuccess(b.ID, elapsed, int64(tokens))
		p.resetBreaker(b.ID)
		return nil
	})

	if errors.Is(err, retryAfterFirstByte) {
		return streamErr
	}
	return err
}

var retryAfterFirstByte = errors.New("proxy: cannot retry, bytes already sent to client")

func (p *Proxy) selectBackend() (*backend.Backend, error) {
	return p.balancer.Select()
}

func (p *Proxy) tripBreaker(id string) {
	if p.breakers != nil {
		p.breakers.Get(id).RecordFailure()
	}
}

func (p *Proxy) resetBreaker(id string) {
	if p.breakers != nil {
		p.breakers.Get(id).RecordSuccess()
	}
}

func (p *Proxy) fallbackResult() Result {
	return Result{
		Text:     "The service is temporarily unable to reach any model backend. Please try again shortly.",
		Tokens:   0,
		Fallback: true,
	}
}

func (p *Proxy) dispatchNonStreaming(ctx context.Context, b *backend.Backend, req GenerateRequest) (string, int, error) {
	body, err := json.Marshal(generatePayload{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return "", 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL.String()+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("backend %s returned status %d", b.ID, resp.StatusCode)
	}

	var text string
	tokens := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var frame generateFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue // malformed lines are skipped without failing the stream
		}
		text += frame.Response
		if frame.Done {
			tokens = frame.TotalTokens
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", 0, err
	}

	return text, tokens, nil
}

func (p *Proxy) dispatchStreaming(ctx context.Context, b *backend.Backend, req GenerateRequest, sink ChunkSink, firstByteSent *bool) (int, error, error) {
	body, err := json.Marshal(generatePayload{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: true,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return 0, err, nil
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, b.URL.String()+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return 0, err, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return 0, err, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("backend %s returned status %d", b.ID, resp.StatusCode), nil
	}

	// idle aborts streamCtx if no frame arrives within streamIdleTimeout,
	// reset on every frame received below.
	idle := time.AfterFunc(streamIdleTimeout, cancelStream)
	defer idle.Stop()

	tokens := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		idle.Reset(streamIdleTimeout)

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var frame generateFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		if frame.Response != "" {
			if emitErr := sink.Emit(frame.Response); emitErr != nil {
				return tokens, nil, emitErr
			}
			*firstByteSent = true
		}
		if frame.Done {
			tokens = frame.TotalTokens
			return tokens, nil, nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return tokens, err, nil
		}
		return tokens, err, nil
	}
	return tokens, errors.New("backend closed the stream without a done frame"), nil
}
