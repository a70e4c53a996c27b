// ABOUTME: Tests for the pricewise CLI commands
// ABOUTME: Runs chat against an in-process server with scripted model output

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimyungju/pricewise/internal/config"
	"github.com/kimyungju/pricewise/internal/gateway"
	"github.com/kimyungju/pricewise/internal/llm/llmtest"
	"github.com/kimyungju/pricewise/internal/protocol"
	"github.com/kimyungju/pricewise/internal/store"
	"github.com/kimyungju/pricewise/internal/tools"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "chat", "health", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestPromptForApproval(t *testing.T) {
	calls := []protocol.ToolCallData{{Name: "search_product", Args: map[string]any{"query": "headphones"}}}
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"full yes", "YES\n", true},
		{"no", "n\n", false},
		{"full no", "no\n", false},
		{"retry then no", "maybe\nn\n", false},
		{"eof approves", "", true},
		{"answer without newline", "n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := promptForApproval(bufio.NewReader(strings.NewReader(tt.input)), &out, calls)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Tool:  search_product")
			assert.Contains(t, out.String(), `Args:  {"query":"headphones"}`)
		})
	}
}

func TestPromptForApproval_RetryMessage(t *testing.T) {
	var out bytes.Buffer
	promptForApproval(bufio.NewReader(strings.NewReader("maybe\ny\n")), &out, nil)
	assert.Contains(t, out.String(), "Please enter 'y' or 'n'.")
}

func TestReadEvents(t *testing.T) {
	stream := "event: token\ndata: {\"content\":\"Hi\"}\n\n" +
		"event: error\ndata: {\"message\":\"boom\"}\n\n" +
		"event: done\ndata: {}\n\n" +
		"event: token\ndata: {\"content\":\"ignored\"}\n\n"

	var kinds []protocol.Kind
	err := readEvents(strings.NewReader(stream), func(kind protocol.Kind, data json.RawMessage) error {
		kinds = append(kinds, kind)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []protocol.Kind{protocol.KindToken, protocol.KindError}, kinds)
}

type staticSearcher struct{}

func (staticSearcher) Search(ctx context.Context, query string) (*tools.SearchResponse, error) {
	return &tools.SearchResponse{Results: []tools.SearchResult{
		{URL: "https://example.com/q30", Content: "Anker Soundcore Q30 $79"},
	}}, nil
}

func newServer(t *testing.T, provider *llmtest.Provider) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Checkpoint.Backend = config.BackendMemory
	cfg.LLM.APIKey = "sk-test"
	cfg.Search.APIKey = "tvly-test"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := gateway.New(cfg, logger, gateway.WithProvider(provider), gateway.WithSearcher(staticSearcher{}))
	require.NoError(t, err)
	server := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = gw.Shutdown(context.Background())
	})
	return server
}

func headphoneSearch() llmtest.Reply {
	return llmtest.Call(store.ToolCall{ID: "call_1", Name: "search_product", Args: map[string]any{"query": "wireless headphones under $100"}})
}

func TestChat_SingleQueryApproved(t *testing.T) {
	p := llmtest.New(headphoneSearch(), llmtest.Say("The Anker Soundcore Q30 is the pick."))
	p.Structured = `{"product_name":"Anker Soundcore Q30","price":79,"currency":"USD"}`
	server := newServer(t, p)

	var out bytes.Buffer
	c := newChatClient(server.URL, strings.NewReader("y\n"), &out)
	require.NoError(t, c.run(context.Background(), "Find me the best wireless headphones under $100"))

	text := out.String()
	assert.Contains(t, text, "--- Human Approval Required ---")
	assert.Contains(t, text, "← search_product: 1. Anker Soundcore Q30 $79")
	assert.Contains(t, text, "The Anker Soundcore Q30 is the pick.")
	assert.Contains(t, text, "=== Final Receipt ===")
	assert.Contains(t, text, "Price:   79.00 USD")
}

func TestChat_DeniedTool(t *testing.T) {
	p := llmtest.New(headphoneSearch(), llmtest.Say("Okay, I will not search."))
	server := newServer(t, p)

	var out bytes.Buffer
	c := newChatClient(server.URL, strings.NewReader("n\n"), &out)
	require.NoError(t, c.run(context.Background(), "Find me headphones"))

	text := out.String()
	assert.Contains(t, text, "Tool execution denied.")
	assert.Contains(t, text, "User denied execution of tool 'search_product'")
	assert.NotContains(t, text, "Final Receipt")
}

func TestChat_NonInteractiveAutoApproves(t *testing.T) {
	p := llmtest.New(headphoneSearch(), llmtest.Say("Found it."))
	server := newServer(t, p)

	var out bytes.Buffer
	c := newChatClient(server.URL, strings.NewReader(""), &out)
	require.NoError(t, c.run(context.Background(), "Find me headphones"))

	assert.Contains(t, out.String(), "Non-interactive mode detected, auto-approving.")
	assert.Contains(t, out.String(), "Found it.")
}

func TestChat_InteractiveLoop(t *testing.T) {
	p := llmtest.New(llmtest.Say("Hello!"), llmtest.Say("Bye!"))
	server := newServer(t, p)

	var out bytes.Buffer
	c := newChatClient(server.URL, strings.NewReader("hi\n\nthanks\nexit\n"), &out)
	require.NoError(t, c.run(context.Background(), ""))

	text := out.String()
	assert.Contains(t, text, "Agent: Hello!")
	assert.Contains(t, text, "Agent: Bye!")
	assert.Equal(t, 0, p.Remaining())
}

func TestChat_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newChatClient(url, strings.NewReader(""), io.Discard)
	err := c.run(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating session")
}

func TestRunHealth(t *testing.T) {
	server := newServer(t, llmtest.New())

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), &out, server.URL))
	assert.Equal(t, "healthy\n", out.String())

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	err := runHealth(context.Background(), io.Discard, bad.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	logger = setupLogger(config.LoggingConfig{Level: "bogus"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
