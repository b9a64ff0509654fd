package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wireMessage is the JSON envelope every frame carries over the trading
// WebSocket. Type selects how Payload is interpreted; unknown types are
// logged and dropped.
type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	wireTypeSubscribe   = "subscribe"
	wireTypeUnsubscribe = "unsubscribe"
	wireTypePing        = "ping"
	wireTypeTick        = "tick"
	wireTypeOrder       = "order"
	wireTypeTrade       = "trade"
	wireTypePosition    = "position"
	wireTypeAccount     = "account"
)

// wsClient is a thin JSON-framed WebSocket client: header-authenticated
// dial, write-mutex guarded sends, and a cancellable ping loop.
type wsClient struct {
	url     string
	header  http.Header
	conn    *websocket.Conn
	writeMu sync.Mutex

	pingCancel context.CancelFunc
}

func newWSClient(url, accessToken string) *wsClient {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+accessToken)
	return &wsClient{url: url, header: header}
}

func (c *wsClient) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, c.header)
	if err != nil {
		return fmt.Errorf("gateway: dial %s: %w", c.url, err)
	}
	c.conn = conn
	log.Printf("✅ gateway: connected to %s", c.url)
	return nil
}

func (c *wsClient) writeJSON(msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s payload: %w", msgType, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("gateway: connection is nil")
	}
	return c.conn.WriteJSON(wireMessage{Type: msgType, Payload: raw})
}

func (c *wsClient) readMessage() (wireMessage, error) {
	var msg wireMessage
	if c.conn == nil {
		return msg, fmt.Errorf("gateway: connection is nil")
	}
	if err := c.conn.ReadJSON(&msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (c *wsClient) startPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.writeJSON(wireTypePing, map[string]int64{"ts": time.Now().Unix()}); err != nil {
					log.Printf("gateway: ping failed: %v", err)
					return
				}
			}
		}
	}()
}

func (c *wsClient) close() error {
	if c.pingCancel != nil {
		c.pingCancel()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
