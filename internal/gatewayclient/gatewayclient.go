// Package gatewayclient is the core's only outbound connection to the
// external LLM gateway: chat.send, chat.history, chat.abort,
// sessions.delete. The core never runs an LLM or opens a listening
// socket itself; this client
// is the one place a network call is made, and every call site in
// internal/hooks and internal/lifecycle tolerates its failure.
//
// The wire shape is the same JSON-RPC 2.0 envelope
// ({jsonrpc, id, method, params} -> {jsonrpc, id, result|error}) that
// internal/gateway/gateway.go defines and internal/transport/wsrpc
// re-exposes for inbound Surface calls, so a single envelope shape is
// used on both sides of the gateway boundary.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/basket/go-strand/internal/hooks"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Client implements hooks.Gateway and lifecycle.Gateway by issuing
// JSON-RPC requests to a configured gateway base URL. A blank BaseURL
// makes every call fail fast with a descriptive error, which callers
// already tolerate (: "all gateway calls are tolerated to
// fail silently; the Store state is the source of truth").
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	nextID int64
}

// New builds a Client. baseURL may be empty to run with no gateway
// configured (every call then returns an error the caller logs and
// moves on from).
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.BaseURL == "" {
		return fmt.Errorf("gatewayclient: no gateway configured, cannot call %s", method)
	}
	c.nextID++
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("gatewayclient: encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gatewayclient: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gatewayclient: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("gatewayclient: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("gatewayclient: %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("gatewayclient: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// ChatSend starts or continues an agent session.
func (c *Client) ChatSend(ctx context.Context, sessionKey, message string) error {
	return c.call(ctx, "chat.send", map[string]any{"sessionKey": sessionKey, "message": message}, nil)
}

// ChatHistory fetches past turns for a session.
func (c *Client) ChatHistory(ctx context.Context, sessionKey string, limit int) ([]hooks.ChatTurn, error) {
	var out struct {
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
	}
	if err := c.call(ctx, "chat.history", map[string]any{"sessionKey": sessionKey, "limit": limit}, &out); err != nil {
		return nil, err
	}
	turns := make([]hooks.ChatTurn, 0, len(out.Messages))
	for _, m := range out.Messages {
		turns = append(turns, hooks.ChatTurn{Role: m.Role, Content: flattenContent(m.Content)})
	}
	return turns, nil
}

// ChatAbort best-effort cancels an in-flight agent turn.
func (c *Client) ChatAbort(ctx context.Context, sessionKey string) error {
	return c.call(ctx, "chat.abort", map[string]any{"sessionKey": sessionKey}, nil)
}

// SessionsDelete best-effort tears down a session.
func (c *Client) SessionsDelete(ctx context.Context, sessionKey string) error {
	return c.call(ctx, "sessions.delete", map[string]any{"sessionKey": sessionKey}, nil)
}

// flattenContent handles chat.history's documented content shape: a
// plain string, or a list of {type:"text", text} blocks.
func flattenContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var out string
		for _, block := range v {
			m, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}
