// client.go implements the live REST exchange backend:
//   - GetSymbolInfo: GET  /api/v3/exchangeInfo — per-symbol trading filters
//   - PlaceOrder:    POST /api/v3/order        — signed order submission
//
// Every request is rate-limited through per-category TokenBuckets and
// automatically retried on transport errors and 5xx responses. Orders carry
// an HMAC-SHA256 `signature` query parameter; the API key travels in the
// X-MBX-APIKEY header.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"aurora-core/pkg/types"
)

// Client is the live REST backend. It satisfies Backend; network failures
// surface as plain errors which the router wraps into TransportError.
type Client struct {
	http *resty.Client
	auth *Auth
	rl   *RateLimiter
}

// NewClient creates a live REST client with rate limiting and retry.
func NewClient(baseURL string, auth *Auth, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("X-MBX-APIKEY", auth.APIKey())

	return &Client{http: httpClient, auth: auth, rl: NewRateLimiter()}
}

// exchangeInfoResponse mirrors the venue's exchangeInfo payload; only the
// filter fields the core validates against are decoded.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Status  string `json:"status"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			MinQty      string `json:"minQty"`
			MaxQty      string `json:"maxQty"`
			StepSize    string `json:"stepSize"`
			MinPrice    string `json:"minPrice"`
			MaxPrice    string `json:"maxPrice"`
			TickSize    string `json:"tickSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func parseDec(s, fallback string) decimal.Decimal {
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}
	return decimal.RequireFromString(fallback)
}

// GetSymbolInfo fetches the trading filters for one symbol.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (types.SymbolFilters, error) {
	if err := c.rl.Info.Wait(ctx); err != nil {
		return types.SymbolFilters{}, err
	}

	var info exchangeInfoResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&info).
		Get("/api/v3/exchangeInfo")
	if err != nil {
		return types.SymbolFilters{}, fmt.Errorf("exchange info: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.SymbolFilters{}, fmt.Errorf("exchange info: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol || s.Status != "TRADING" {
			continue
		}
		f := types.DefaultFilters(symbol)
		for _, fl := range s.Filters {
			switch fl.FilterType {
			case "LOT_SIZE":
				f.LotMinQty = parseDec(fl.MinQty, "0.001")
				f.LotMaxQty = parseDec(fl.MaxQty, "999999999")
				f.LotStep = parseDec(fl.StepSize, "0.001")
			case "PRICE_FILTER":
				f.PriceMin = parseDec(fl.MinPrice, "0.01")
				f.PriceMax = parseDec(fl.MaxPrice, "999999999")
				f.PriceTick = parseDec(fl.TickSize, "0.01")
			case "MIN_NOTIONAL", "NOTIONAL":
				f.MinNotional = parseDec(fl.MinNotional, "10.0")
			}
		}
		return f, nil
	}
	return types.SymbolFilters{}, fmt.Errorf("exchange info: symbol %s not trading", symbol)
}

// orderResponse mirrors the venue's order placement payload.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	ExecutedQty   string `json:"executedQty"`
	CummQuoteQty  string `json:"cummulativeQuoteQty"`
	Status        string `json:"status"`
	Fills         []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		TradeID         int64  `json:"tradeId"`
	} `json:"fills"`
}

// mapStatus translates the venue's order status vocabulary.
func mapStatus(s string) types.OrderStatus {
	switch s {
	case "NEW":
		return types.StatusAck
	case "PARTIALLY_FILLED":
		return types.StatusPartial
	case "FILLED":
		return types.StatusFilled
	case "CANCELED", "EXPIRED":
		return types.StatusCanceled
	case "REJECTED":
		return types.StatusRejected
	default:
		return types.StatusError
	}
}

// PlaceOrder submits a signed order and maps the response.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.Price != nil {
		params.Set("price", req.Price.String())
	}
	if req.Type != types.OrderTypeMarket {
		params.Set("timeInForce", string(req.TimeInForce))
	}
	params.Set("newClientOrderId", req.ClientOrderID)

	var result orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.auth.SignQuery(params)).
		SetResult(&result).
		Post("/api/v3/order")
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := &types.OrderResult{
		OrderID:       fmt.Sprintf("%d", result.OrderID),
		ClientOrderID: result.ClientOrderID,
		Status:        mapStatus(result.Status),
		ExecutedQty:   parseDec(result.ExecutedQty, "0"),
		CummQuoteCost: parseDec(result.CummQuoteQty, "0"),
		ServerTimeNs:  result.TransactTime * int64(time.Millisecond),
	}
	for _, f := range result.Fills {
		out.Fills = append(out.Fills, types.Fill{
			Price:           parseDec(f.Price, "0"),
			Qty:             parseDec(f.Qty, "0"),
			Commission:      parseDec(f.Commission, "0"),
			CommissionAsset: f.CommissionAsset,
			TradeID:         f.TradeID,
		})
	}
	return out, nil
}
