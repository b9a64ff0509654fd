// Package notifications delivers domain events to externally configured
// webhooks: per-hook event-type filtering, retry-with-delay delivery,
// and delivery logging, driven off the engine's eventbus.Bus.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/haka-quant/optionengine/cache"
	"github.com/haka-quant/optionengine/eventbus"
)

// Webhook is a configured delivery target, loaded once from config at
// startup — there is no admin UI for registering hooks at runtime.
type Webhook struct {
	ID                int
	URL               string
	Method            string
	EventTypes        []eventbus.EventType // empty means "all types"
	AuthType          string               // "BEARER" or ""
	AuthHeader        string
	AuthValue         string
	RetryCount        int
	RetryDelaySeconds int
}

// Payload is the JSON body POSTed to a matching webhook.
type Payload struct {
	EventType  string                 `json:"event_type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// Manager fans out eventbus events to configured webhooks.
type Manager struct {
	hooks  []Webhook
	redis  *cache.RedisClient
	client *http.Client
}

func NewManager(hooks []Webhook, redis *cache.RedisClient) *Manager {
	return &Manager{
		hooks:  hooks,
		redis:  redis,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Subscribe registers the manager for every type in allEventTypes. handle
// runs on the publisher's goroutine and picks the hooks whose EventTypes
// match (or that have none); each delivery then runs in its own goroutine.
func (m *Manager) Subscribe(bus *eventbus.Bus) {
	for _, et := range allEventTypes {
		bus.Subscribe(et, func(evt eventbus.Event) {
			m.handle(evt)
		})
	}
}

var allEventTypes = []eventbus.EventType{
	eventbus.EventActiveContractChanged,
	eventbus.EventManualCloseDetected,
	eventbus.EventManualOpenDetected,
	eventbus.EventOrderTimeout,
	eventbus.EventOrderRetryExhausted,
	eventbus.EventGreeksRiskBreach,
	eventbus.EventIcebergComplete,
	eventbus.EventTWAPComplete,
	eventbus.EventVWAPComplete,
	eventbus.EventTimedSplitComplete,
	eventbus.EventClassicIcebergComplete,
	eventbus.EventAdvancedOrderCancelled,
	eventbus.EventPositionOpened,
	eventbus.EventPositionClosed,
	eventbus.EventHedgeExecuted,
}

func (m *Manager) handle(evt eventbus.Event) {
	matched := m.matchingHooks(evt.Type)
	if len(matched) == 0 {
		return
	}

	payload := m.createPayload(evt)
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  notifications: failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range matched {
		go m.deliver(hook, body)
	}
}

func (m *Manager) matchingHooks(eventType eventbus.EventType) []Webhook {
	var out []Webhook
	for _, h := range m.hooks {
		if len(h.EventTypes) == 0 {
			out = append(out, h)
			continue
		}
		for _, t := range h.EventTypes {
			if t == eventType {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

func (m *Manager) createPayload(evt eventbus.Event) Payload {
	data, _ := structToMap(evt.Payload)
	return Payload{
		EventType:  string(evt.Type),
		OccurredAt: evt.OccurredAt,
		Data:       data,
	}
}

func structToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) deliver(hook Webhook, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, reqErr := http.NewRequest(hook.Method, hook.URL, bytes.NewBuffer(payload))
		if reqErr != nil {
			log.Printf("⚠️  notifications: failed to build webhook request for %s: %v", hook.URL, reqErr)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "optionengine-notifier/1.0")
		if hook.AuthType == "BEARER" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		log.Printf("🔹 notifications: sending webhook to %s (attempt %d/%d)", hook.URL, attempt, maxRetries)

		resp, err = m.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}

		if attempt < maxRetries {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	log.Printf("⚠️  notifications: webhook delivery to %s failed after %d attempts: %v", hook.URL, maxRetries, err)
}

// RefreshCache deletes the "active_webhooks" key from Redis. The manager's
// hooks are held in memory and are not read from that key.
func (m *Manager) RefreshCache() {
	if m.redis == nil {
		return
	}
	if err := m.redis.Delete(context.Background(), "active_webhooks"); err != nil {
		log.Printf("notifications: cache invalidation failed: %v", err)
		return
	}
	log.Println("🔄 notifications: webhook cache invalidated")
}
