package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	"nhooyr.io/websocket/wsjson"
)

// Transport delivers one serialized payload to the remote sync endpoint.
// Nothing is assumed about the endpoint beyond success/failure.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
}

// ack is the minimal response both transports expect from the endpoint.
type ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HTTPTransport posts payloads as JSON over a request/response call.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport for the given endpoint URL. A nil
// client gets a 10 second timeout default.
func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{endpoint: endpoint, client: client}
}

// Send posts the payload and treats any non-2xx status as failure.
func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sync endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// WSTransport sends payloads over a WebSocket connection, the native
// transport of the collaborative editor this layer serves. The connection
// is dialed lazily and re-dialed after any failure.
type WSTransport struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
}

// NewWSTransport creates a transport for the given ws:// or wss:// URL.
func NewWSTransport(url string) *WSTransport {
	return &WSTransport{url: url}
}

// Send writes the payload as one message and waits for the endpoint's ack.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		conn, _, err := websocket.Dial(ctx, t.url, nil)
		if err != nil {
			return fmt.Errorf("failed to dial sync endpoint: %w", err)
		}
		t.conn = conn
	}

	if err := wsjson.Write(ctx, t.conn, json.RawMessage(payload)); err != nil {
		t.reset()
		return fmt.Errorf("failed to write sync message: %w", err)
	}

	var response ack
	if err := wsjson.Read(ctx, t.conn, &response); err != nil {
		t.reset()
		return fmt.Errorf("failed to read sync ack: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("sync endpoint rejected payload: %s", response.Error)
	}
	return nil
}

// Close shuts the connection down cleanly, if one is open.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close(websocket.StatusNormalClosure, "")
	t.conn = nil
	return err
}

// reset drops a connection in an unknown state so the next Send re-dials.
func (t *WSTransport) reset() {
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusInternalError, "transport reset")
		t.conn = nil
	}
}
