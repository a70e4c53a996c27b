// ABOUTME: Tests for the OpenAI provider against a fake streaming endpoint
// ABOUTME: Covers text streaming, tool call assembly, structured output and errors

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimyungju/pricewise/internal/observability"
	"github.com/kimyungju/pricewise/internal/store"
	"github.com/kimyungju/pricewise/internal/tools"
)

// fakeOpenAI serves each request with the next scripted list of SSE data
// payloads and records decoded request bodies.
type fakeOpenAI struct {
	t        *testing.T
	scripts  [][]string
	status   []int
	requests []map[string]any
	hits     atomic.Int32
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(f.hits.Add(1)) - 1
	var body map[string]any
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	f.requests = append(f.requests, body)

	if n < len(f.status) && f.status[n] != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status[n])
		fmt.Fprintf(w, `{"error":{"message":"status %d","type":"server_error"}}`, f.status[n])
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	for _, data := range f.scripts[n] {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newFakeProvider(t *testing.T, f *fakeOpenAI) *OpenAIProvider {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return p
}

func textChunk(s string) string {
	return fmt.Sprintf(`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`, s)
}

func toolChunk(index int, id, name, args string) string {
	return fmt.Sprintf(`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":%d,"id":%q,"type":"function","function":{"name":%q,"arguments":%q}}]}}]}`,
		index, id, name, args)
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.Error(t, err)
}

func TestOpenAI_StreamsText(t *testing.T) {
	f := &fakeOpenAI{scripts: [][]string{{textChunk("Hel"), textChunk("lo")}}}
	p := newFakeProvider(t, f)

	chunks, err := p.Complete(context.Background(), &Request{
		Model:    "gpt-4o-mini",
		System:   "be brief",
		Messages: []store.Entry{store.NewUserEntry("hi")},
	})
	require.NoError(t, err)

	var seen []string
	c, err := Collect(context.Background(), chunks, func(s string) { seen = append(seen, s) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", c.Content)
	assert.Equal(t, []string{"Hel", "lo"}, seen)
	assert.Empty(t, c.ToolCalls)

	req := f.requests[0]
	assert.Equal(t, true, req["stream"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hi", msgs[1].(map[string]any)["content"])
}

func TestOpenAI_AssemblesToolCalls(t *testing.T) {
	f := &fakeOpenAI{scripts: [][]string{{
		toolChunk(0, "call_1", "search_product", ""),
		toolChunk(1, "call_2", "view_wishlist", "{}"),
		toolChunk(0, "", "", `{"query":`),
		toolChunk(0, "", "", `"kindle"}`),
	}}}
	p := newFakeProvider(t, f)

	specs := []tools.Spec{{Name: "search_product", Description: "search", Schema: tools.SchemaFor[tools.ProductQuery]()}}
	chunks, err := p.Complete(context.Background(), &Request{Messages: []store.Entry{store.NewUserEntry("find a kindle")}, Tools: specs})
	require.NoError(t, err)

	c, err := Collect(context.Background(), chunks, nil)
	require.NoError(t, err)
	require.Len(t, c.ToolCalls, 2)
	assert.Equal(t, store.ToolCall{ID: "call_1", Name: "search_product", Args: map[string]any{"query": "kindle"}}, c.ToolCalls[0])
	assert.Equal(t, "view_wishlist", c.ToolCalls[1].Name)
	assert.Empty(t, c.ToolCalls[1].Args)

	req := f.requests[0]
	assert.Equal(t, DefaultModel, req["model"])
	sent := req["tools"].([]any)
	require.Len(t, sent, 1)
	fn := sent[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search_product", fn["name"])
	assert.Contains(t, fn["parameters"].(map[string]any)["properties"], "query")
}

func TestOpenAI_StructuredOutput(t *testing.T) {
	f := &fakeOpenAI{scripts: [][]string{{textChunk(`{"product_name":"Kindle","price":99.99,"currency":"USD"}`)}}}
	p := newFakeProvider(t, f)

	chunks, err := p.Complete(context.Background(), &Request{
		Messages: []store.Entry{store.NewUserEntry("hi")},
		Tools:    []tools.Spec{{Name: "ignored"}},
		Schema:   &Schema{Name: "receipt", Definition: tools.SchemaFor[store.Receipt]()},
	})
	require.NoError(t, err)
	c, err := Collect(context.Background(), chunks, nil)
	require.NoError(t, err)

	var r store.Receipt
	require.NoError(t, json.Unmarshal([]byte(c.Content), &r))
	assert.Equal(t, "Kindle", r.ProductName)

	req := f.requests[0]
	assert.NotContains(t, req, "tools")
	format := req["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "receipt", format["json_schema"].(map[string]any)["name"])
}

func TestOpenAI_ConvertsHistory(t *testing.T) {
	f := &fakeOpenAI{scripts: [][]string{{textChunk("ok")}}}
	p := newFakeProvider(t, f)

	history := []store.Entry{
		store.NewSystemEntry("Summary of earlier conversation:\nx"),
		store.NewUserEntry("find a kindle"),
		store.NewAssistantEntry("", store.ToolCall{ID: "call_1", Name: "search_product", Args: map[string]any{"query": "kindle"}}),
		store.NewToolEntry("search_product", "call_1", "1. Kindle"),
	}
	chunks, err := p.Complete(context.Background(), &Request{Messages: history})
	require.NoError(t, err)
	_, err = Collect(context.Background(), chunks, nil)
	require.NoError(t, err)

	msgs := f.requests[0]["messages"].([]any)
	require.Len(t, msgs, 4)
	assistant := msgs[2].(map[string]any)
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "call_1", call["id"])
	assert.JSONEq(t, `{"query":"kindle"}`, call["function"].(map[string]any)["arguments"].(string))
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	f := &fakeOpenAI{
		status:  []int{http.StatusServiceUnavailable, http.StatusOK},
		scripts: [][]string{nil, {textChunk("ok")}},
	}
	p := newFakeProvider(t, f)

	chunks, err := p.Complete(context.Background(), &Request{Messages: []store.Entry{store.NewUserEntry("hi")}})
	require.NoError(t, err)
	c, err := Collect(context.Background(), chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Content)
	assert.Equal(t, int32(2), f.hits.Load())
}

func TestOpenAI_DoesNotRetryClientErrors(t *testing.T) {
	f := &fakeOpenAI{status: []int{http.StatusBadRequest}, scripts: [][]string{nil}}
	p := newFakeProvider(t, f)

	_, err := p.Complete(context.Background(), &Request{Messages: []store.Entry{store.NewUserEntry("hi")}})
	require.Error(t, err)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestInstrument_RecordsRequests(t *testing.T) {
	f := &fakeOpenAI{scripts: [][]string{{textChunk("ok")}}}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	p := Instrument(newFakeProvider(t, f), metrics)
	assert.Equal(t, "openai", p.Name())

	chunks, err := p.Complete(context.Background(), &Request{Model: "gpt-4o-mini", Messages: []store.Entry{store.NewUserEntry("hi")}})
	require.NoError(t, err)
	_, err = Collect(context.Background(), chunks, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.LLMRequests.WithLabelValues("openai", "gpt-4o-mini", "success")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestToOpenAIMessages_UnknownKind(t *testing.T) {
	_, err := toOpenAIMessages("", []store.Entry{{Kind: "bogus"}})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bogus"))
}
