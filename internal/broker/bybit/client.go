package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/tradecraft-labs/execution-engine/internal/broker"
	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/enginerr"
	"github.com/tradecraft-labs/execution-engine/internal/orderbook"
)

// Client adapts the Bybit v5 unified trading API to the broker surface
// the execution scheduler consumes.
type Client struct {
	httpClient *bybit_api.Client
	category   string
	testnet    bool
	demo       bool
}

// New creates a Bybit client for the configured environment.
func New(cfg config.BrokerConfig) *Client {
	var baseURL string
	if cfg.Demo {
		// Demo trading environment (paper trading).
		baseURL = "https://api-demo.bybit.com"
	} else if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		cfg.APIKey,
		cfg.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	category := cfg.Category
	if category == "" {
		category = "spot"
	}

	return &Client{
		httpClient: httpClient,
		category:   category,
		testnet:    cfg.Testnet,
		demo:       cfg.Demo,
	}
}

// Environment returns a string describing the connected environment.
func (c *Client) Environment() string {
	if c.demo {
		return "demo"
	}
	if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

// GetOrderBook returns the raw depth payload for the symbol. The payload
// is handed to orderbook.Normalize unchanged.
func (c *Client) GetOrderBook(ctx context.Context, symbol string) (interface{}, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"limit":    25,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	if err != nil {
		return nil, enginerr.NewBrokerError("bybit", "get_order_book", err)
	}

	raw, err := unwrapResult(result)
	if err != nil {
		return nil, enginerr.NewBrokerError("bybit", "get_order_book", err)
	}

	var book struct {
		Symbol string     `json:"s"`
		Asks   [][]string `json:"a"`
		Bids   [][]string `json:"b"`
	}
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, enginerr.NewBrokerError("bybit", "get_order_book", err)
	}

	return map[string]interface{}{
		"asks": pairsToLevels(book.Asks),
		"bids": pairsToLevels(book.Bids),
	}, nil
}

// GetCurrentPrice returns the latest traded price for the symbol.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, enginerr.NewBrokerError("bybit", "get_current_price", err)
	}

	raw, err := unwrapResult(result)
	if err != nil {
		return 0, enginerr.NewBrokerError("bybit", "get_current_price", err)
	}

	var tickers struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &tickers); err != nil {
		return 0, enginerr.NewBrokerError("bybit", "get_current_price", err)
	}
	if len(tickers.List) == 0 {
		return 0, enginerr.NewBrokerError("bybit", "get_current_price", fmt.Errorf("no ticker data for %s", symbol))
	}

	return parseFloat(tickers.List[0].LastPrice), nil
}

// SubmitLimitOrder places a GTC limit order and returns the exchange id.
func (c *Client) SubmitLimitOrder(ctx context.Context, symbol string, side orderbook.Side, qty, price float64) (string, error) {
	return c.placeOrder(ctx, map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"side":        apiSide(side),
		"orderType":   "Limit",
		"qty":         formatQty(qty),
		"price":       formatQty(price),
		"timeInForce": "GTC",
	})
}

// SubmitMarketOrder places a market order and returns the exchange id.
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol string, side orderbook.Side, qty float64) (string, error) {
	return c.placeOrder(ctx, map[string]interface{}{
		"category":  c.category,
		"symbol":    symbol,
		"side":      apiSide(side),
		"orderType": "Market",
		"qty":       formatQty(qty),
	})
}

func (c *Client) placeOrder(ctx context.Context, params map[string]interface{}) (string, error) {
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return "", enginerr.NewBrokerError("bybit", "place_order", err)
	}

	raw, err := unwrapResult(result)
	if err != nil {
		return "", enginerr.NewBrokerError("bybit", "place_order", err)
	}

	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &placed); err != nil {
		return "", enginerr.NewBrokerError("bybit", "place_order", err)
	}
	if placed.OrderID == "" {
		return "", enginerr.NewBrokerError("bybit", "place_order", fmt.Errorf("empty order id in response"))
	}

	return placed.OrderID, nil
}

// GetOrderStatus resolves an order's current state. Open orders are
// checked first; an order absent from the open list is looked up in
// history, where Bybit keeps filled and cancelled orders.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (broker.OrderResult, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return broker.OrderResult{}, enginerr.NewBrokerError("bybit", "get_order_status", err)
	}
	if res, ok, err := findOrder(result, orderID); err != nil {
		return broker.OrderResult{}, enginerr.NewBrokerError("bybit", "get_order_status", err)
	} else if ok {
		return res, nil
	}

	result, err = c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return broker.OrderResult{}, enginerr.NewBrokerError("bybit", "get_order_status", err)
	}
	if res, ok, err := findOrder(result, orderID); err != nil {
		return broker.OrderResult{}, enginerr.NewBrokerError("bybit", "get_order_status", err)
	} else if ok {
		return res, nil
	}

	return broker.OrderResult{OrderID: orderID, Status: broker.StatusUnknown}, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	if _, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil {
		return enginerr.NewBrokerError("bybit", "cancel_order", err)
	}
	return nil
}

// unwrapResult checks the envelope return code and re-marshals the
// inner result for typed decoding.
func unwrapResult(response interface{}) ([]byte, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}
	return json.Marshal(serverResp.Result)
}

func findOrder(response interface{}, orderID string) (broker.OrderResult, bool, error) {
	raw, err := unwrapResult(response)
	if err != nil {
		return broker.OrderResult{}, false, err
	}

	var list struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderStatus string `json:"orderStatus"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return broker.OrderResult{}, false, err
	}

	for _, o := range list.List {
		if o.OrderID != orderID {
			continue
		}
		return broker.OrderResult{
			OrderID:   o.OrderID,
			Status:    mapStatus(o.OrderStatus),
			FilledQty: parseFloat(o.CumExecQty),
			AvgPrice:  parseFloat(o.AvgPrice),
		}, true, nil
	}
	return broker.OrderResult{}, false, nil
}

func mapStatus(s string) string {
	switch s {
	case "New", "Untriggered":
		return broker.StatusOpen
	case "PartiallyFilled":
		return broker.StatusPartial
	case "Filled":
		return broker.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return broker.StatusCancelled
	case "Rejected":
		return broker.StatusRejected
	default:
		return broker.StatusUnknown
	}
}

func apiSide(side orderbook.Side) string {
	if side == orderbook.SideSell {
		return "Sell"
	}
	return "Buy"
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func pairsToLevels(pairs [][]string) []interface{} {
	levels := make([]interface{}, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		levels = append(levels, []interface{}{p[0], p[1]})
	}
	return levels
}
