// ABOUTME: HTTP API handlers for chat sessions, messages and approvals
// ABOUTME: Streams turn events as Server-Sent Events and maps service errors to status codes

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kimyungju/pricewise/internal/conversation"
	"github.com/kimyungju/pricewise/internal/protocol"
	"github.com/kimyungju/pricewise/internal/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// CreateSessionResponse is returned by POST /chat/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SendMessageRequest is the body of POST /chat/sessions/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ApproveRequest is the body of POST /chat/sessions/{id}/approve.
type ApproveRequest struct {
	Approved *bool `json:"approved"`
}

func (g *Gateway) registerChatRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/sessions", g.handleCreateSession)
	mux.HandleFunc("GET /chat/sessions/{id}/messages", g.handleGetMessages)
	mux.HandleFunc("POST /chat/sessions/{id}/messages", g.handleSendMessage)
	mux.HandleFunc("POST /chat/sessions/{id}/approve", g.handleApprove)
	mux.HandleFunc("GET /chat/sessions/{id}/events", g.handleWatch)
}

// handleCreateSession registers a new session.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := g.conversation.CreateSession()
	writeJSON(w, http.StatusOK, CreateSessionResponse{SessionID: sess.ID})
}

// handleGetMessages returns the persisted conversation so a client can
// rebuild its view after a refresh.
func (g *Gateway) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	history, err := g.conversation.History(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handleSendMessage starts a turn with the user's message and streams it.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeBody(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Check streaming support before starting the turn (fail fast)
	if _, ok := w.(http.Flusher); !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := g.conversation.Send(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.streamEvents(w, events)
}

// handleApprove resumes a paused turn with the user's decision and streams it.
func (g *Gateway) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := decodeBody(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Approved == nil {
		g.sendJSONError(w, http.StatusBadRequest, "approved is required")
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := g.conversation.Approve(r.Context(), r.PathValue("id"), *req.Approved)
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.streamEvents(w, events)
}

// handleWatch streams the events of every later turn of a session until the
// client disconnects.
func (g *Gateway) handleWatch(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	events, err := g.conversation.Subscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, err)
		return
	}
	g.streamEvents(w, events)
}

// streamEvents writes events until the channel closes. After a write
// failure the channel is still drained; the producer stops on its own once
// the request context is cancelled.
func (g *Gateway) streamEvents(w http.ResponseWriter, events <-chan protocol.Event) {
	sse, err := protocol.NewSSEWriter(w)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		for range events {
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	// watchers may wait a long time for the first event
	_ = http.NewResponseController(w).Flush()

	broken := false
	for e := range events {
		if broken {
			continue
		}
		if err := sse.Write(e); err != nil {
			g.logger.Debug("client stream closed", "error", err)
			broken = true
		}
	}
}

// sendServiceError maps conversation errors to HTTP responses.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, session.ErrTurnInProgress):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrEmptyMessage):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody parses a JSON request body into v.
func decodeBody(body io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
