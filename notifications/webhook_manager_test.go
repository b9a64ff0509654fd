package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haka-quant/optionengine/eventbus"
)

func TestManager_DeliversMatchingEventType(t *testing.T) {
	var mu sync.Mutex
	var received Payload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{
		{URL: server.URL, Method: http.MethodPost, EventTypes: []eventbus.EventType{eventbus.EventGreeksRiskBreach}, RetryCount: 1},
	}, nil)

	bus := eventbus.New()
	m.Subscribe(bus)

	bus.Publish(eventbus.Event{
		Type: eventbus.EventGreeksRiskBreach,
		Payload: eventbus.GreeksRiskBreach{
			Scope: "portfolio", BreachedFields: []string{"delta"},
		},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received.EventType == string(eventbus.EventGreeksRiskBreach)
	}, time.Second, 10*time.Millisecond)
}

func TestManager_SkipsNonMatchingEventType(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{
		{URL: server.URL, Method: http.MethodPost, EventTypes: []eventbus.EventType{eventbus.EventHedgeExecuted}, RetryCount: 1},
	}, nil)

	bus := eventbus.New()
	m.Subscribe(bus)

	bus.Publish(eventbus.Event{Type: eventbus.EventPositionOpened, Payload: eventbus.PositionOpened{VtSymbol: "IF2501"}})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, called)
}

func TestManager_EmptyFilterMatchesEverything(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{{URL: server.URL, Method: http.MethodPost, RetryCount: 1}}, nil)
	bus := eventbus.New()
	m.Subscribe(bus)

	bus.Publish(eventbus.Event{Type: eventbus.EventPositionClosed, Payload: eventbus.PositionClosed{VtSymbol: "IF2501"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 10*time.Millisecond)
}
