// Package mcp exposes retrieval to LLM agents as Model Context Protocol tools
// over JSON-RPC, either as plain POST or as an SSE session.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/retrieval"
	"studyrag/backend/internal/vector"
)

const (
	ToolRetrieveContext = "retrieve_context"
	ToolDocumentStats   = "document_stats"
)

type Retriever interface {
	RetrieveContext(ctx context.Context, ownerID int64, query string, documentID *int64) (retrieval.Result, error)
}

type StatsReader interface {
	Stats(ctx context.Context, ownerID int64) (vector.Stats, error)
}

type Handler struct {
	retriever    Retriever
	stats        StatsReader
	sessions     map[string]chan string // session id -> serialized JSON-RPC responses
	sessionsLock sync.RWMutex
}

func NewHandler(r Retriever, s StatsReader) *Handler {
	return &Handler{
		retriever: r,
		stats:     s,
		sessions:  make(map[string]chan string),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type RetrieveArgs struct {
	OwnerID    int64  `json:"owner_id"`
	Query      string `json:"query"`
	DocumentID *int64 `json:"document_id,omitempty"`
}

type StatsArgs struct {
	OwnerID int64 `json:"owner_id"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

func tools() []Tool {
	ownerProp := map[string]string{"type": "integer", "description": "Owner whose materials are searched"}
	return []Tool{
		{
			Name: ToolRetrieveContext,
			Description: `Finds the passages of a student's uploaded materials most relevant to a question and returns them as one context block, best match first, separated by "---".
Returns "No relevant passages found." when nothing in the materials matches; answer from general knowledge and say so in that case.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"owner_id": ownerProp,
					"query": map[string]string{
						"type":        "string",
						"description": "The question, in natural language",
					},
					"document_id": map[string]string{
						"type":        "integer",
						"description": "Restrict the search to one document",
					},
				},
				"required": []string{"owner_id", "query"},
			},
		},
		{
			Name:        ToolDocumentStats,
			Description: "Reports how many documents and indexed chunks an owner has.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"owner_id": ownerProp},
				"required":   []string{"owner_id"},
			},
		},
	}
}

// processRequest returns nil for notifications, which get no response.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "studyrag-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools()}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
			return &resp
		}
		return h.callTool(ctx, req.ID, params)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, id interface{}, params CallParams) *JSONRPCResponse {
	switch params.Name {
	case ToolRetrieveContext:
		var args RetrieveArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || args.OwnerID <= 0 || strings.TrimSpace(args.Query) == "" {
			resp := makeErrorResponse(id, ErrInvalidParams, "owner_id and query are required")
			return &resp
		}

		slog.InfoContext(ctx, "mcp tool call", "tool", params.Name, "owner_id", args.OwnerID)
		res, err := h.retriever.RetrieveContext(ctx, args.OwnerID, args.Query, args.DocumentID)
		if err != nil {
			return toolError(id, fmt.Sprintf("Retrieval failed: %v", err))
		}
		if res.Degraded {
			return toolError(id, "Search is temporarily unavailable.")
		}
		if res.Context.NoContext {
			return toolText(id, "No relevant passages found.")
		}
		return toolText(id, res.Context.Text)

	case ToolDocumentStats:
		var args StatsArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || args.OwnerID <= 0 {
			resp := makeErrorResponse(id, ErrInvalidParams, "owner_id is required")
			return &resp
		}

		st, err := h.stats.Stats(ctx, args.OwnerID)
		if err != nil {
			return toolError(id, fmt.Sprintf("Stats unavailable: %v", err))
		}
		return toolText(id, fmt.Sprintf("%d documents, %d indexed chunks.", st.UniqueDocuments, st.TotalVectors))
	}

	slog.WarnContext(ctx, "tool not found", "tool", params.Name)
	resp := makeErrorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
	return &resp
}

func toolText(id interface{}, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func toolError(id interface{}, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: true},
	}
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

// ServeHTTP answers a single JSON-RPC request in the response body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, ErrParse, "Parse error")
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// HandleSSE opens a session stream. Responses to requests posted to
// HandleMessage are delivered here as "message" events.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		close(msgChan)
		h.sessionsLock.Unlock()
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	slog.Info("sse session started", "session_id", sessionID)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a request for an SSE session and answers 202; the
// JSON-RPC response is sent on the session stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeHTTPError(ctx, w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing sessionId")
		return
	}

	h.sessionsLock.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		h.writeHTTPError(ctx, w, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeHTTPError(ctx, w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// The request context ends with this handler; keep its values only.
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		resp := h.processRequest(bgCtx, req)
		if resp == nil {
			return
		}
		body, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(bgCtx, "failed to marshal response", "error", err)
			return
		}
		h.deliver(bgCtx, sessionID, string(body))
	}()
}

// deliver holds the read lock while sending so the session cannot be closed
// underneath it.
func (h *Handler) deliver(ctx context.Context, sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	msgChan, ok := h.sessions[sessionID]
	if !ok {
		slog.WarnContext(ctx, "session closed before response", "session_id", sessionID)
		return
	}
	select {
	case msgChan <- msg:
	default:
		slog.WarnContext(ctx, "session channel full, dropping message", "session_id", sessionID)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	// JSON-RPC over HTTP reports errors in the body with 200 OK.
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(makeErrorResponse(id, code, message)); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

func (h *Handler) writeHTTPError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
