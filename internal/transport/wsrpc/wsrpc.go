// Package wsrpc exposes a surface.Surface over a JSON-RPC 2.0 websocket
// connection. Its request/response envelope, per-connection write mutex,
// and bearer-token authorize() check are grounded on
// internal/gateway/gateway.go's handleWS/handleRPC/client, narrowed from
// that file's ~25-method ACP surface down to Dispatch's single
// operation-name entry point plus a subscribe-to-events notification
// channel for the event bus.
package wsrpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/basket/go-strand/internal/eventbus"
	"github.com/basket/go-strand/internal/surface"
)

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInternal       = -32603
)

// Config wires a Server to its collaborators.
type Config struct {
	Surface      *surface.Surface
	Events       *eventbus.Bus
	AuthToken    string // empty disables auth (local/dev use)
	AllowOrigins []string
	Logger       *slog.Logger
}

type Server struct {
	cfg Config

	clientsMu sync.RWMutex
	clients   map[*client]struct{}
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, clients: map[*client]struct{}{}}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"healthy": true})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	return token != "" && token == s.cfg.AuthToken
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex

	subMu     sync.Mutex
	eventSub  *eventbus.Subscription
	subCancel context.CancelFunc
}

func (c *client) write(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, payload)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func decodeID(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	return generic, true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowOrigins})
	if err != nil {
		return
	}
	c := &client{conn: conn}
	s.addClient(c)
	s.cfg.Logger.Info("wsrpc: client connected")
	defer func() {
		s.removeClient(c)
		s.cfg.Logger.Info("wsrpc: client disconnecting")
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		var req rpcRequest
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		resp := s.handleRPC(r.Context(), c, req)
		if resp == nil {
			continue
		}
		if err := c.write(r.Context(), resp); err != nil {
			s.cfg.Logger.Warn("wsrpc: write response failed", "method", req.Method, "error", err)
		}
	}
}

func (s *Server) handleRPC(ctx context.Context, c *client, req rpcRequest) *rpcResponse {
	id, hasID := decodeID(req.ID)
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !hasID {
			return nil
		}
		return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: ErrCodeInvalidRequest, Message: "invalid JSON-RPC request"}}
	}

	if req.Method == "session.events.subscribe" {
		s.subscribeClient(ctx, c, req.Params)
		if !hasID {
			return nil
		}
		return &rpcResponse{JSONRPC: "2.0", ID: id, Result: map[string]any{"subscribed": true}}
	}
	if req.Method == "session.events.unsubscribe" {
		s.unsubscribeClient(c)
		if !hasID {
			return nil
		}
		return &rpcResponse{JSONRPC: "2.0", ID: id, Result: map[string]any{"subscribed": false}}
	}

	result := s.cfg.Surface.Dispatch(ctx, req.Method, req.Params)
	if !hasID {
		return nil
	}
	if !result.Ok {
		return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: ErrCodeInternal, Message: result.Error}}
	}
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result.Payload}
}

type subscribeParams struct {
	Prefix string `json:"prefix,omitempty"`
}

// subscribeClient opens (or replaces) this connection's event-bus
// subscription and forwards every matching event as a "event" JSON-RPC
// notification (no id) for the lifetime of the connection.
func (s *Server) subscribeClient(ctx context.Context, c *client, params json.RawMessage) {
	if s.cfg.Events == nil {
		return
	}
	var p subscribeParams
	_ = json.Unmarshal(params, &p)

	s.unsubscribeClient(c)

	subCtx, cancel := context.WithCancel(ctx)
	sub := s.cfg.Events.Subscribe(p.Prefix)

	c.subMu.Lock()
	c.eventSub = sub
	c.subCancel = cancel
	c.subMu.Unlock()

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-sub.Ch():
				if !ok {
					return
				}
				note := rpcNotification{JSONRPC: "2.0", Method: "event", Params: event}
				if err := c.write(subCtx, note); err != nil {
					return
				}
			}
		}
	}()
}

func (s *Server) unsubscribeClient(c *client) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subCancel != nil {
		c.subCancel()
		c.subCancel = nil
	}
	if c.eventSub != nil {
		s.cfg.Events.Unsubscribe(c.eventSub)
		c.eventSub = nil
	}
}

func (s *Server) addClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	s.unsubscribeClient(c)
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, c)
}

// ClientCount reports how many websocket connections are active.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
