// ABOUTME: OpenAI chat completions provider built on sashabaranov/go-openai
// ABOUTME: Streams text, assembles tool call fragments and supports JSON schema output

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kimyungju/pricewise/internal/observability"
	"github.com/kimyungju/pricewise/internal/store"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// MaxRetries bounds attempts to open a stream on rate limits and 5xx.
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider implements Provider against the OpenAI chat completions API.
type OpenAIProvider struct {
	client     *openai.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewOpenAIProvider creates a provider. The API key is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     slog.Default().With("component", "llm", "provider", "openai"),
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete opens a streaming completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	chatReq, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}

	var stream *openai.ChatCompletionStream
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
			p.logger.Warn("retrying completion", "attempt", attempt+1, "error", err)
		}
		stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("creating completion: %w", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating completion after %d attempts: %w", p.maxRetries, err)
	}

	chunks := make(chan *Chunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

type partialCall struct {
	id   string
	name string
	args string
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *Chunk) {
	defer close(chunks)
	defer stream.Close()

	send := func(c *Chunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	calls := make(map[int]*partialCall)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			send(&Chunk{Err: fmt.Errorf("reading completion stream: %w", err), Done: true})
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			if !send(&Chunk{Text: delta.Content}) {
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			pc := calls[index]
			if pc == nil {
				pc = &partialCall{}
				calls[index] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args += tc.Function.Arguments
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		pc := calls[i]
		if pc.name == "" {
			continue
		}
		args, err := decodeArgs(pc.args)
		if err != nil {
			send(&Chunk{Err: fmt.Errorf("decoding arguments of %s: %w", pc.name, err), Done: true})
			return
		}
		if !send(&Chunk{ToolCall: &store.ToolCall{ID: pc.id, Name: pc.name, Args: args}}) {
			return
		}
	}
	send(&Chunk{Done: true})
}

func decodeArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func buildChatRequest(req *Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	messages, err := toOpenAIMessages(req.System, req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      req.Schema.Definition,
			},
		}
		return chatReq, nil
	}
	for _, spec := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.Schema),
			},
		})
	}
	return chatReq, nil
}

func toOpenAIMessages(system string, entries []store.Entry) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(entries)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, e := range entries {
		switch e.Kind {
		case store.KindUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: e.Content})
		case store.KindSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.Content})
		case store.KindTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    e.Content,
				ToolCallID: e.ToolCallID,
			})
		case store.KindAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: e.Content}
			for _, tc := range e.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("encoding arguments of %s: %w", tc.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)
		default:
			return nil, fmt.Errorf("unknown entry kind %q", e.Kind)
		}
	}
	return out, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// instrumented wraps a Provider with metrics and tracing.
type instrumented struct {
	Provider
	metrics *observability.Metrics
}

// Instrument returns p with request metrics and a span per completion.
func Instrument(p Provider, metrics *observability.Metrics) Provider {
	return &instrumented{Provider: p, metrics: metrics}
}

func (i *instrumented) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	ctx, span := observability.StartSpan(ctx, "llm.complete",
		"llm.provider", i.Name(), "llm.model", req.Model, "llm.structured", fmt.Sprint(req.Schema != nil))
	start := time.Now()

	in, err := i.Provider.Complete(ctx, req)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		i.metrics.LLMRequest(i.Name(), req.Model, err, time.Since(start))
		return nil, err
	}

	out := make(chan *Chunk)
	go func() {
		defer close(out)
		defer span.End()
		var streamErr error
		for c := range in {
			if c.Err != nil {
				streamErr = c.Err
			}
			select {
			case out <- c:
			case <-ctx.Done():
				streamErr = ctx.Err()
				for range in {
				}
				observability.RecordError(span, streamErr)
				i.metrics.LLMRequest(i.Name(), req.Model, streamErr, time.Since(start))
				return
			}
		}
		if streamErr != nil {
			observability.RecordError(span, streamErr)
		}
		i.metrics.LLMRequest(i.Name(), req.Model, streamErr, time.Since(start))
	}()
	return out, nil
}
