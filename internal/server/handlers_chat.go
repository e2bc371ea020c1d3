package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Nash0810/gobalance/internal/cache"
	"github.com/Nash0810/gobalance/internal/dispatch"
	"github.com/Nash0810/gobalance/internal/proxy"
	"github.com/Nash0810/gobalance/internal/store"
)

type chatRequest struct {
	Message        string     `json:"message"`
	ModelName      string     `json:"model_name"`
	Stream         bool       `json:"stream"`
	Temperature    *float64   `json:"temperature"`
	MaxTokens      *int       `json:"max_tokens"`
	ConversationID flexibleID `json:"conversation_id"`
}

type chatResponse struct {
	Message        string      `json:"message"`
	ConversationID string      `json:"conversation_id"`
	CodeBlocks     []CodeBlock `json:"code_blocks"`
	TokensUsed     int         `json:"tokens_used"`
	Model          string      `json:"model"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, conv, err := s.prepareChat(r)
	if err != nil {
		renderError(w, err)
		return
	}

	model := req.ModelName
	text, tokens, httpStatus := s.dispatchGeneration(r.Context(), model, req.prompt, req.temperature, req.maxTokens)

	s.deps.Conversations.AppendMessage(conv.ID, store.Message{Role: "user", Content: req.Message, Model: model})
	s.deps.Conversations.AppendMessage(conv.ID, store.Message{Role: "assistant", Content: text, Model: model})

	s.deps.Collector.RecordRequest(model, "/api/chat", fmt.Sprintf("%d", httpStatus), time.Since(start).Seconds(), tokens)

	renderJSON(w, httpStatus, chatResponse{
		Message:        text,
		ConversationID: conv.ID,
		CodeBlocks:     extractCodeBlocks(text),
		TokensUsed:     tokens,
		Model:          model,
	})
}

// preparedChat holds the fields derived from a chat request before
// dispatch: the resolved prompt (with any conversation history
// threaded in) and the resolved generation parameters.
type preparedChat struct {
	Message     string
	ModelName   string
	prompt      string
	temperature float64
	maxTokens   int
}

func (s *Server) prepareChat(r *http.Request) (*preparedChat, *store.Conversation, error) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, nil, badRequest("invalid request body")
	}
	if strings.TrimSpace(body.Message) == "" {
		return nil, nil, badRequest("message is required")
	}

	model := body.ModelName
	if model == "" {
		model = s.deps.DefaultModel
	}
	temperature := s.deps.Temperature
	if body.Temperature != nil {
		temperature = *body.Temperature
	}
	maxTokens := s.deps.MaxTokens
	if body.MaxTokens != nil {
		maxTokens = *body.MaxTokens
	}

	id, _ := identityFromContext(r.Context())

	var conv *store.Conversation
	if body.ConversationID != "" {
		c, ok := s.deps.Conversations.Get(string(body.ConversationID))
		if !ok {
			return nil, nil, notFound("unknown conversation_id")
		}
		conv = c
	} else {
		conv = s.deps.Conversations.Create(id.ID)
	}

	prompt := buildPrompt(s.deps.Conversations.RecentHistory(conv.ID), body.Message)

	return &preparedChat{
		Message:     body.Message,
		ModelName:   model,
		prompt:      prompt,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, conv, nil
}

// buildPrompt threads the conversation's trailing history into the
// prompt the same way the original chat route does: each prior
// message rendered as "Human: .../Assistant: ...", followed by the
// new turn.
func buildPrompt(history []store.Message, message string) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.Role == "assistant" {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("Human: ")
		}
		b.WriteString(m.Content)
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Human: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")
	return b.String()
}

// dispatchGeneration composes Cache -> SingleFlight -> LoadBalancer ->
// StreamingProxy for a non-streaming request, per spec §4.9. The
// returned status is the HTTP status the caller should render: 200 on
// a cache hit or successful dispatch, or the configured fallback
// status when every retry attempt failed.
func (s *Server) dispatchGeneration(ctx context.Context, model, prompt string, temperature float64, maxTokens int) (text string, tokens int, httpStatus int) {
	key := cache.Key(model, prompt, temperature, maxTokens)

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if cached, hit := s.deps.Cache.Get(cacheCtx, key); hit {
		cancel()
		s.deps.Collector.RecordCacheHit()
		return cached, 0, http.StatusOK
	}
	cancel()
	s.deps.Collector.RecordCacheMiss()

	var fellBack bool
	result, _, shared := s.deps.Gate.Do(key, func() (dispatch.Result, error) {
		r, err := s.deps.Proxy.Generate(ctx, proxy.GenerateRequest{
			Model:       model,
			Prompt:      prompt,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return dispatch.Result{}, err
		}
		if r.Fallback {
			fellBack = true
		} else {
			setCtx, setCancel := context.WithTimeout(context.Background(), 2*time.Second)
			s.deps.Cache.Set(setCtx, key, r.Text, s.deps.CacheTTL)
			setCancel()
		}
		return dispatch.Result{Body: r.Text, Tokens: r.Tokens}, nil
	})
	if shared {
		s.deps.Collector.CacheCoalesced.Inc()
	}

	httpStatus = http.StatusOK
	if fellBack {
		httpStatus = s.deps.Proxy.FallbackStatus()
	}
	return result.Body, result.Tokens, httpStatus
}

// sseSink adapts an http.ResponseWriter into a proxy.ChunkSink,
// flushing after every frame so chunks reach the client as they
// arrive rather than buffering until the handler returns.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Emit(chunk string) error {
	payload, err := json.Marshal(map[string]string{"chunk": chunk})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseSink) emitDone() {
	fmt.Fprintf(s.w, "data: %s\n\n", `{"done":true}`)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseSink) emitError(msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, conv, err := s.prepareChat(r)
	if err != nil {
		renderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	sink := &sseSink{w: w, flusher: flusher}

	var collected strings.Builder
	countingSink := chunkCounterSink{ChunkSink: sink, collected: &collected}

	err = s.deps.Proxy.GenerateStreaming(r.Context(), proxy.GenerateRequest{
		Model:       req.ModelName,
		Prompt:      req.prompt,
		Temperature: req.temperature,
		MaxTokens:   req.maxTokens,
	}, countingSink)

	status := "200"
	if err != nil {
		status = "502"
		sink.emitError(err.Error())
	} else {
		sink.emitDone()
	}

	text := collected.String()
	s.deps.Conversations.AppendMessage(conv.ID, store.Message{Role: "user", Content: req.Message, Model: req.ModelName})
	s.deps.Conversations.AppendMessage(conv.ID, store.Message{Role: "assistant", Content: text, Model: req.ModelName})

	s.deps.Collector.RecordRequest(req.ModelName, "/api/chat/stream", status, time.Since(start).Seconds(), 0)
}

// chunkCounterSink accumulates every emitted chunk so the streamed
// response can still be threaded into conversation history afterward.
type chunkCounterSink struct {
	proxy.ChunkSink
	collected *strings.Builder
}

func (c chunkCounterSink) Emit(chunk string) error {
	c.collected.WriteString(chunk)
	return c.ChunkSink.Emit(chunk)
}
