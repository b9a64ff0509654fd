package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// historyClient backs query_history with a retrying REST call, used as a
// fallback when the broker doesn't push history over the WebSocket
// session (or when the session is degraded).
type historyClient struct {
	baseURL string
	client  *retryablehttp.Client
}

func newHistoryClient(baseURL string) *historyClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil // the engine's own logging covers this; silence the library's
	return &historyClient{baseURL: baseURL, client: rc}
}

type historyBarWire struct {
	DateTime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// queryHistory fetches bars for vtSymbol over [start, end] at the given
// interval. On any failure it logs a warning and returns an empty slice
// rather than propagating the error — history backfill is best-effort.
func (h *historyClient) queryHistory(vtSymbol, interval string, start, end time.Time, accessToken string) []HistoryBar {
	url := fmt.Sprintf("%s/history?symbol=%s&interval=%s&start=%s&end=%s",
		h.baseURL, vtSymbol, interval, start.Format(time.RFC3339), end.Format(time.RFC3339))

	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Printf("gateway: build history request for %s: %v", vtSymbol, err)
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("gateway: history request for %s failed: %v", vtSymbol, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("gateway: history request for %s returned %d: %s", vtSymbol, resp.StatusCode, string(body))
		return nil
	}

	var wire []historyBarWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		log.Printf("gateway: parse history response for %s: %v", vtSymbol, err)
		return nil
	}

	bars := make([]HistoryBar, 0, len(wire))
	for _, w := range wire {
		dt, err := time.Parse(time.RFC3339, w.DateTime)
		if err != nil {
			continue
		}
		bars = append(bars, HistoryBar{
			DateTime: dt, Open: w.Open, High: w.High, Low: w.Low, Close: w.Close, Volume: w.Volume,
		})
	}
	return bars
}
