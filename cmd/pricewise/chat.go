// ABOUTME: chat command talking to a running server over its HTTP API
// ABOUTME: Renders SSE turns in the terminal and asks the user to approve pending tool calls

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kimyungju/pricewise/internal/protocol"
)

func defaultServerURL() string {
	if u := os.Getenv("PRICEWISE_URL"); u != "" {
		return u
	}
	return "http://localhost:8000"
}

func buildChatCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "chat [query]",
		Short: "Chat with a running server, approving tool calls in the terminal",
		Long: `Open a session on a running pricewise server and chat with it.

With a query argument a single turn is run, including any approvals, and the
receipt is printed. Without one an interactive prompt is started; type "exit"
or send EOF to leave. When stdin is closed pending tool calls are approved
automatically.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			c := newChatClient(server, cmd.InOrStdin(), cmd.OutOrStdout())
			return c.run(cmd.Context(), query)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", defaultServerURL(), "Server base URL (or PRICEWISE_URL)")
	return cmd
}

// chatClient drives one session of the HTTP API.
type chatClient struct {
	baseURL string
	http    *http.Client
	in      *bufio.Reader
	out     io.Writer

	assistant *color.Color
	tool      *color.Color
	warn      *color.Color
	fail      *color.Color
	success   *color.Color
}

func newChatClient(server string, in io.Reader, out io.Writer) *chatClient {
	return &chatClient{
		baseURL:   strings.TrimRight(server, "/"),
		http:      http.DefaultClient,
		in:        bufio.NewReader(in),
		out:       out,
		assistant: color.New(color.FgCyan),
		tool:      color.New(color.FgHiBlack),
		warn:      color.New(color.FgYellow),
		fail:      color.New(color.FgRed),
		success:   color.New(color.FgGreen),
	}
}

// turnResult is what a finished stream left behind.
type turnResult struct {
	pending []protocol.ToolCallData
	receipt *protocol.ReceiptData
	failed  string
}

func (c *chatClient) run(ctx context.Context, query string) error {
	sessionID, err := c.createSession(ctx)
	if err != nil {
		return err
	}

	if query != "" {
		fmt.Fprintf(c.out, "\nUser: %s\n", query)
		return c.turn(ctx, sessionID, query)
	}

	for {
		fmt.Fprint(c.out, "\nYou: ")
		line, err := c.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			return nil
		}
		if line != "" {
			if turnErr := c.turn(ctx, sessionID, line); turnErr != nil {
				return turnErr
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	}
}

// turn sends one message and keeps resuming until nothing is pending.
func (c *chatClient) turn(ctx context.Context, sessionID, content string) error {
	res, err := c.stream(ctx, "/chat/sessions/"+sessionID+"/messages", map[string]string{"content": content})
	if err != nil {
		return err
	}
	for len(res.pending) > 0 {
		approved := promptForApproval(c.in, c.out, res.pending)
		if !approved {
			c.warn.Fprintln(c.out, "\nTool execution denied.")
		}
		res, err = c.stream(ctx, "/chat/sessions/"+sessionID+"/approve", map[string]bool{"approved": approved})
		if err != nil {
			return err
		}
	}
	if res.receipt != nil {
		c.printReceipt(res.receipt)
	}
	return nil
}

func (c *chatClient) createSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/sessions", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding session: %w", err)
	}
	return body.SessionID, nil
}

// stream posts body to path and renders the SSE response.
func (c *chatClient) stream(ctx context.Context, path string, body any) (*turnResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	res := &turnResult{}
	speaking := false
	err = readEvents(resp.Body, func(kind protocol.Kind, data json.RawMessage) error {
		switch kind {
		case protocol.KindToken:
			var d protocol.TokenData
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			if !speaking {
				c.assistant.Fprint(c.out, "\nAgent: ")
				speaking = true
			}
			fmt.Fprint(c.out, d.Content)
		case protocol.KindToolCall:
			var d protocol.ToolCallData
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			speaking = false
			c.tool.Fprintf(c.out, "\n  → %s %s\n", d.Name, formatArgs(d.Args))
		case protocol.KindToolResult:
			var d protocol.ToolResultData
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			speaking = false
			c.tool.Fprintf(c.out, "\n  ← %s: %s\n", d.Name, protocol.Truncate(d.Result, 200))
		case protocol.KindApprovalRequired:
			var d protocol.ApprovalRequiredData
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			res.pending = d.ToolCalls
		case protocol.KindReceipt:
			var d protocol.ReceiptData
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			res.receipt = &d
		case protocol.KindError:
			var d protocol.ErrorData
			if err := json.Unmarshal(data, &d); err != nil {
				return err
			}
			res.failed = d.Message
			c.fail.Fprintf(c.out, "\nError: %s\n", d.Message)
		}
		return nil
	})
	if speaking {
		fmt.Fprintln(c.out)
	}
	if err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return res, nil
}

func (c *chatClient) printReceipt(r *protocol.ReceiptData) {
	c.success.Fprintln(c.out, "\n=== Final Receipt ===")
	fmt.Fprintf(c.out, "  Product: %s\n", r.ProductName)
	fmt.Fprintf(c.out, "  Price:   %.2f %s\n", r.Price, r.Currency)
	if r.AverageRating != nil {
		fmt.Fprintf(c.out, "  Rating:  %.1f\n", *r.AverageRating)
	}
	if r.PriceRange != "" {
		fmt.Fprintf(c.out, "  Range:   %s\n", r.PriceRange)
	}
	if r.RecommendationReason != "" {
		fmt.Fprintf(c.out, "  Why:     %s\n", r.RecommendationReason)
	}
	c.success.Fprintln(c.out, "=====================")
}

// promptForApproval shows the pending calls and asks for y/n. Closed input
// approves, so scripted runs do not hang.
func promptForApproval(in *bufio.Reader, out io.Writer, calls []protocol.ToolCallData) bool {
	yellow := color.New(color.FgYellow)
	yellow.Fprintln(out, "\n--- Human Approval Required ---")
	for _, tc := range calls {
		fmt.Fprintf(out, "  Tool:  %s\n", tc.Name)
		fmt.Fprintf(out, "  Args:  %s\n", formatArgs(tc.Args))
	}
	yellow.Fprintln(out, "-------------------------------")

	for {
		fmt.Fprint(out, "Approve execution? [y/n]: ")
		line, err := in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			fmt.Fprintln(out, "\nNon-interactive mode detected, auto-approving.")
			return true
		}
		fmt.Fprintln(out, "Please enter 'y' or 'n'.")
	}
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}

// readEvents calls fn for every SSE frame in r until r ends or a done event.
func readEvents(r io.Reader, fn func(kind protocol.Kind, data json.RawMessage) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var kind protocol.Kind
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			kind = protocol.Kind(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		case line == "":
			if kind == "" {
				continue
			}
			if kind == protocol.KindDone {
				return nil
			}
			if err := fn(kind, data); err != nil {
				return err
			}
			kind, data = "", nil
		}
	}
	return scanner.Err()
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
