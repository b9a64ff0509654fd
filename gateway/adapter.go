package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

var _ Port = (*WSAdapter)(nil)

// Config configures a WSAdapter.
type Config struct {
	RESTBaseURL string
	WSURL       string
	Credentials Credentials
	TokenCacheFile string
	PingInterval   time.Duration
	HealthCheckInterval time.Duration
	StaleAfter          time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 60 * time.Second
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 5 * time.Minute
	}
	return c
}

// WSAdapter implements Port over a JSON-framed WebSocket plus a REST
// history fallback: a health monitor loop, reconnect-on-staleness, and
// token-refresh-before-reconnect, with explicit per-symbol
// subscribe/unsubscribe.
type WSAdapter struct {
	cfg     Config
	auth    *AuthClient
	history *historyClient

	mu          sync.RWMutex
	ws          *wsClient
	connected   bool
	lastMsgTime time.Time

	contractsMu sync.RWMutex
	contracts   map[string]Contract
	ticksMu     sync.RWMutex
	ticks       map[string]Tick

	onOrder    []func(OrderUpdate)
	onTrade    []func(TradeEvent)
	onPosition []func(PositionReport)
	onAccount  []func(AccountUpdate)
}

func NewWSAdapter(cfg Config) *WSAdapter {
	cfg = cfg.withDefaults()
	return &WSAdapter{
		cfg:       cfg,
		auth:      NewAuthClient(cfg.RESTBaseURL, cfg.Credentials),
		history:   newHistoryClient(cfg.RESTBaseURL),
		contracts: make(map[string]Contract),
		ticks:     make(map[string]Tick),
	}
}

// Connect logs in (or loads a cached token), dials the WebSocket, and
// starts the read loop, ping loop, and health monitor. connectTimeout
// bounds the whole sequence (default 60s, enforced by the worker).
func (a *WSAdapter) Connect(ctx context.Context) error {
	if a.cfg.TokenCacheFile != "" {
		if err := a.auth.LoadTokenFromFile(a.cfg.TokenCacheFile); err != nil || !a.auth.IsTokenValid() {
			if err := a.auth.Login(); err != nil {
				return fmt.Errorf("gateway: login: %w", err)
			}
		}
	} else if err := a.auth.Login(); err != nil {
		return fmt.Errorf("gateway: login: %w", err)
	}
	if a.cfg.TokenCacheFile != "" {
		_ = a.auth.SaveTokenToFile(a.cfg.TokenCacheFile)
	}

	if err := a.dial(); err != nil {
		return err
	}

	go a.readLoop()
	go a.healthMonitor(ctx)
	return nil
}

func (a *WSAdapter) dial() error {
	token, err := a.auth.GetValidToken()
	if err != nil {
		return fmt.Errorf("gateway: obtain token: %w", err)
	}
	ws := newWSClient(a.cfg.WSURL, token)
	if err := ws.connect(); err != nil {
		return err
	}
	ws.startPing(a.cfg.PingInterval)

	a.mu.Lock()
	a.ws = ws
	a.connected = true
	a.lastMsgTime = time.Now()
	a.mu.Unlock()
	return nil
}

func (a *WSAdapter) readLoop() {
	for {
		a.mu.RLock()
		ws := a.ws
		a.mu.RUnlock()
		if ws == nil {
			return
		}

		msg, err := ws.readMessage()
		if err != nil {
			log.Printf("gateway: read error: %v", err)
			a.mu.Lock()
			a.connected = false
			a.mu.Unlock()
			return
		}

		a.mu.Lock()
		a.lastMsgTime = time.Now()
		a.mu.Unlock()
		a.dispatch(msg)
	}
}

func (a *WSAdapter) dispatch(msg wireMessage) {
	switch msg.Type {
	case wireTypeTick:
		var t Tick
		if decodeInto(msg.Payload, &t) {
			a.ticksMu.Lock()
			a.ticks[t.VtSymbol] = t
			a.ticksMu.Unlock()
		}
	case wireTypeOrder:
		var o OrderUpdate
		if decodeInto(msg.Payload, &o) {
			for _, cb := range a.onOrder {
				cb(o)
			}
		}
	case wireTypeTrade:
		var tr TradeEvent
		if decodeInto(msg.Payload, &tr) {
			for _, cb := range a.onTrade {
				cb(tr)
			}
		}
	case wireTypePosition:
		var p PositionReport
		if decodeInto(msg.Payload, &p) {
			for _, cb := range a.onPosition {
				cb(p)
			}
		}
	case wireTypeAccount:
		var acc AccountUpdate
		if decodeInto(msg.Payload, &acc) {
			for _, cb := range a.onAccount {
				cb(acc)
			}
		}
	default:
		log.Printf("gateway: unrecognized message type %q, dropping", msg.Type)
	}
}

func (a *WSAdapter) healthMonitor(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.RLock()
			stale := time.Since(a.lastMsgTime) > a.cfg.StaleAfter
			connected := a.connected
			a.mu.RUnlock()

			if !connected || stale {
				log.Printf("gateway: connection unhealthy (connected=%v stale=%v), reconnecting", connected, stale)
				if err := a.reconnect(); err != nil {
					log.Printf("gateway: reconnect failed: %v", err)
				} else {
					go a.readLoop()
				}
			}
		}
	}
}

func (a *WSAdapter) reconnect() error {
	a.mu.Lock()
	ws := a.ws
	a.mu.Unlock()
	if ws != nil {
		_ = ws.close()
	}

	if !a.auth.IsTokenValid() {
		if err := a.auth.RefreshToken(); err != nil {
			if err := a.auth.Login(); err != nil {
				return fmt.Errorf("gateway: re-authentication failed: %w", err)
			}
		}
	}
	return a.dial()
}

// Connected reports the adapter's current session state.
func (a *WSAdapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *WSAdapter) send(msgType string, payload interface{}) error {
	a.mu.RLock()
	ws := a.ws
	connected := a.connected
	a.mu.RUnlock()
	if !connected || ws == nil {
		return fmt.Errorf("gateway: not connected")
	}
	return ws.writeJSON(msgType, payload)
}
