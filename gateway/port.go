// Package gateway implements the broker Gateway facade: a uniform port
// for subscribe/order/account/quote/history calls, backed by a
// JSON-framed WebSocket adapter plus a REST history fallback. Every
// method degrades gracefully when the broker session is down: log a
// warning and return empty/zero, never panic or block the caller
// indefinitely.
package gateway

import "time"

// Direction mirrors position.Direction without importing it, so gateway
// has no dependency on the domain aggregates it feeds.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Offset mirrors position.Offset.
type Offset string

const (
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// OrderType enumerates the order types the port accepts.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeFAK    OrderType = "FAK"
	OrderTypeFOK    OrderType = "FOK"
)

// OrderInstruction is the send_order request payload.
type OrderInstruction struct {
	VtSymbol  string
	Direction Direction
	Offset    Offset
	Volume    float64
	Price     float64
	OrderType OrderType
}

// OrderRequest is the pre-split instruction convert_order_request
// consumes; ConvertOrderRequest returns one-or-more of these, splitting
// close volume across today/yesterday lots when the exchange requires it.
type OrderRequest struct {
	OrderInstruction
	LockMode bool // "lock" position mode: open/close treated as independent legs
	NetMode  bool // "net" position mode: close nets directly against open
}

// Tick is a single real-time quote snapshot.
type Tick struct {
	VtSymbol    string
	LastPrice   float64
	BidPrice1   float64
	AskPrice1   float64
	BidVolume1  float64
	AskVolume1  float64
	DateTime    time.Time
}

// Contract describes one tradable instrument. OptionType/Strike/Expiry are
// only meaningful for option contracts (empty/zero for futures).
type Contract struct {
	VtSymbol   string
	Exchange   string
	Product    string
	PriceTick  float64
	Multiplier float64
	MinVolume  float64

	OptionType string // "CALL" or "PUT"; empty for a future contract
	Strike     float64
	Expiry     time.Time
}

// AccountBalance is the get_balance response.
type AccountBalance struct {
	Balance    float64
	FreeMargin float64
}

// PositionReport mirrors position.ExternalPositionReport at the gateway
// boundary (kept distinct so gateway never imports the position package).
type PositionReport struct {
	VtSymbol  string
	Direction Direction
	Volume    float64
}

// QuoteRequest is the send_quote request payload (two-sided market-maker
// quote).
type QuoteRequest struct {
	VtSymbol  string
	BidPrice  float64
	BidVolume float64
	AskPrice  float64
	AskVolume float64
}

// HistoryBar is one bar returned by query_history.
type HistoryBar struct {
	DateTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// OrderUpdate, TradeEvent, AccountUpdate are the payloads delivered to
// registered event callbacks.
type OrderUpdate struct {
	VtOrderID string
	VtSymbol  string
	Status    string
	Traded    float64
}

type TradeEvent struct {
	VtOrderID string
	VtSymbol  string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	TradeTime time.Time
}

type AccountUpdate struct {
	Balance    float64
	FreeMargin float64
}

// Port is the uniform broker-facing interface the strategy engine's
// adapters consume. Implementations MUST degrade gracefully: a
// disconnected broker session returns the zero value and logs a
// warning rather than raising.
type Port interface {
	Subscribe(vtSymbol string) error
	Unsubscribe(vtSymbol string) error

	SendOrder(instruction OrderInstruction) ([]string, error)
	CancelOrder(vtOrderID string) error
	CancelAllOrders() error
	ConvertOrderRequest(req OrderRequest) []OrderRequest

	GetTick(vtSymbol string) (Tick, bool)
	GetContract(vtSymbol string) (Contract, bool)
	GetAllContracts() []Contract
	GetContractsByProduct(product string) []Contract
	GetContractsByExchange(exchange string) []Contract

	GetBalance() (AccountBalance, bool)
	GetPosition(vtSymbol string, direction Direction) (PositionReport, bool)
	GetAllPositions() []PositionReport

	SendQuote(req QuoteRequest) (string, error)
	CancelQuote(vtQuoteID string) error

	QueryHistory(vtSymbol string, interval string, start, end time.Time) ([]HistoryBar, error)

	OnOrder(cb func(OrderUpdate))
	OnTrade(cb func(TradeEvent))
	OnPosition(cb func(PositionReport))
	OnAccount(cb func(AccountUpdate))

	// Connected reports whether the broker session is currently live.
	Connected() bool
}
