// ABOUTME: Scripted Provider for tests that need deterministic model output
// ABOUTME: Replies are consumed in order; structured requests get a fixed JSON answer

// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/kimyungju/pricewise/internal/llm"
	"github.com/kimyungju/pricewise/internal/store"
)

// ErrScriptExhausted is returned when no scripted reply is left.
var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted completion.
type Reply struct {
	Text  []string
	Calls []store.ToolCall

	// Err fails the call to Complete.
	Err error

	// StreamErr is delivered after Text, as the last chunk.
	StreamErr error
}

// Say returns a text-only reply split into the given fragments.
func Say(fragments ...string) Reply {
	return Reply{Text: fragments}
}

// Call returns a reply requesting the given tool calls.
func Call(calls ...store.ToolCall) Reply {
	return Reply{Calls: calls}
}

// Provider replays Replies for tool-enabled requests. Requests with a Schema
// are answered with Structured, and requests without tools or schema (such as
// summaries) with Summary.
type Provider struct {
	mu         sync.Mutex
	replies    []Reply
	requests   []*llm.Request
	Structured string
	Summary    string
}

// New returns a Provider replaying replies in order.
func New(replies ...Reply) *Provider {
	return &Provider{replies: replies, Structured: `{"product_name":""}`, Summary: "summary"}
}

// Script appends replies.
func (p *Provider) Script(replies ...Reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, replies...)
}

// Requests returns the requests seen so far.
func (p *Provider) Requests() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.Request(nil), p.requests...)
}

// Remaining returns the number of unused replies.
func (p *Provider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

// Name returns "scripted".
func (p *Provider) Name() string { return "scripted" }

// Complete replays the next reply.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (<-chan *llm.Chunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var reply Reply
	switch {
	case req.Schema != nil:
		reply = Say(p.Structured)
	case len(req.Tools) == 0:
		reply = Say(p.Summary)
	case len(p.replies) == 0:
		p.mu.Unlock()
		return nil, ErrScriptExhausted
	default:
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	p.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}

	ch := make(chan *llm.Chunk, len(reply.Text)+len(reply.Calls)+1)
	for _, t := range reply.Text {
		ch <- &llm.Chunk{Text: t}
	}
	if reply.StreamErr != nil {
		ch <- &llm.Chunk{Err: reply.StreamErr, Done: true}
		close(ch)
		return ch, nil
	}
	for _, c := range reply.Calls {
		call := c
		ch <- &llm.Chunk{ToolCall: &call}
	}
	ch <- &llm.Chunk{Done: true}
	close(ch)
	return ch, nil
}

var _ llm.Provider = (*Provider)(nil)
