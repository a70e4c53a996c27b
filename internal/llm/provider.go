// ABOUTME: Provider interface, request and chunk types for model calls
// ABOUTME: Also provides Collect and a provider-backed history summarizer

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kimyungju/pricewise/internal/store"
	"github.com/kimyungju/pricewise/internal/tools"
)

// ErrEmptyResponse is returned when a model stream ends without content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Provider streams model completions.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Complete starts a completion. The channel is closed after a chunk with
	// Done set; a chunk carrying Err is always the last one.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)
}

// Schema requests structured JSON output.
type Schema struct {
	Name        string
	Description string
	Definition  json.RawMessage
}

// Request is one model call.
type Request struct {
	Model    string
	System   string
	Messages []store.Entry
	Tools    []tools.Spec
	Schema   *Schema
}

// Chunk is one streamed piece of a completion.
type Chunk struct {
	Text     string
	ToolCall *store.ToolCall
	Done     bool
	Err      error
}

// Completion is a fully collected model response.
type Completion struct {
	Content   string
	ToolCalls []store.ToolCall
}

// Collect drains chunks into a Completion. onText, when set, is called with
// every text fragment as it arrives.
func Collect(ctx context.Context, chunks <-chan *Chunk, onText func(string)) (*Completion, error) {
	var b strings.Builder
	out := &Completion{}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				out.Content = b.String()
				return out, nil
			}
			if c.Err != nil {
				return nil, c.Err
			}
			if c.Text != "" {
				b.WriteString(c.Text)
				if onText != nil {
					onText(c.Text)
				}
			}
			if c.ToolCall != nil {
				out.ToolCalls = append(out.ToolCalls, *c.ToolCall)
			}
			if c.Done {
				out.Content = b.String()
				return out, nil
			}
		}
	}
}

// Summarizer condenses conversation history with a model.
type Summarizer struct {
	provider Provider
	model    string
}

// NewSummarizer returns a Summarizer that calls model through p.
func NewSummarizer(p Provider, model string) *Summarizer {
	return &Summarizer{provider: p, model: model}
}

// Summarize sends instruction as the system prompt followed by entries and
// returns the model's text.
func (s *Summarizer) Summarize(ctx context.Context, instruction string, entries []store.Entry) (string, error) {
	chunks, err := s.provider.Complete(ctx, &Request{
		Model:    s.model,
		System:   instruction,
		Messages: entries,
	})
	if err != nil {
		return "", err
	}
	c, err := Collect(ctx, chunks, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(c.Content) == "" {
		return "", ErrEmptyResponse
	}
	return c.Content, nil
}
