package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"market-sim-go/order"
)

const (
	headerAccountID = "account-id"
	headerRequestID = "x-request-id"

	maxBodyBytes = 1 << 20
)

// RESTClient 实现 MarketClient，对接撮合服务的 HTTP API。
// 每个 agent 持有自己的 RESTClient；多个实例可以共享 HTTPClient 与 Limiter。
type RESTClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration // 单次请求超时，<=0 时使用 DefaultTimeout
	Limiter    RateLimiter
	Retry      RetryPolicy
	Recorder   Recorder
}

// DefaultTimeout 单次请求的默认超时。
const DefaultTimeout = 5 * time.Second

// NewDefaultHTTPClient 提供一个带超时的 http.Client，连接池可在所有 agent 间共享。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 64
	return &http.Client{Timeout: timeout, Transport: tr}
}

type accountReq struct {
	Balance  float64 `json:"account_balance"`
	Position int     `json:"position"`
}

type orderReq struct {
	Limit    float64    `json:"limit"`
	Quantity int        `json:"quantity"`
	Side     order.Side `json:"side"`
}

// wireOrder 用指针字段区分“缺失”与“零值”。
type wireOrder struct {
	ID        *string      `json:"id"`
	Limit     *float64     `json:"limit"`
	Quantity  *int         `json:"quantity"`
	Side      *order.Side  `json:"side"`
	Timestamp *float64     `json:"timestamp"`
	AccountID string       `json:"account_id"`
	Status    order.Status `json:"status"`
}

func (w wireOrder) toOrder() (order.Order, error) {
	switch {
	case w.ID == nil || *w.ID == "":
		return order.Order{}, errors.New("order missing id")
	case w.Limit == nil:
		return order.Order{}, errors.New("order missing limit")
	case w.Quantity == nil:
		return order.Order{}, errors.New("order missing quantity")
	case w.Side == nil:
		return order.Order{}, errors.New("order missing side")
	case w.Timestamp == nil:
		return order.Order{}, errors.New("order missing timestamp")
	}
	return order.Order{
		ID:        *w.ID,
		Limit:     *w.Limit,
		Quantity:  *w.Quantity,
		Side:      *w.Side,
		Timestamp: *w.Timestamp,
		AccountID: w.AccountID,
		Status:    w.Status,
	}, nil
}

type wireQuote struct {
	Limit    *float64 `json:"limit"`
	Quantity *int     `json:"quantity"`
}

type wireAccount struct {
	Balance  *float64 `json:"account_balance"`
	Position int      `json:"position"`
}

// CreateAccount 调用 POST /account/new，返回原始账户 ID 文本。
func (c *RESTClient) CreateAccount(ctx context.Context, init order.AccountInit) (string, error) {
	const op = "create_account"
	var id string
	err := c.call(ctx, op, http.MethodPost, "/account/new", "", accountReq{Balance: init.Balance, Position: init.Position}, func(raw []byte) error {
		id = strings.Trim(strings.TrimSpace(string(raw)), `"`)
		if id == "" {
			return errors.New("empty account id")
		}
		return nil
	})
	return id, err
}

// ReadAccount 调用 GET /account。
func (c *RESTClient) ReadAccount(ctx context.Context, accountID string) (order.AccountView, error) {
	const op = "read_account"
	var view order.AccountView
	err := c.call(ctx, op, http.MethodGet, "/account", accountID, nil, func(raw []byte) error {
		var w wireAccount
		if err := json.Unmarshal(raw, &w); err != nil {
			return err
		}
		if w.Balance == nil {
			return errors.New("account missing account_balance")
		}
		view = order.AccountView{Balance: *w.Balance, Position: w.Position}
		return nil
	})
	return view, err
}

// ListOrders 调用 GET /order。
func (c *RESTClient) ListOrders(ctx context.Context, accountID string) ([]order.Order, error) {
	const op = "list_orders"
	var out []order.Order
	err := c.call(ctx, op, http.MethodGet, "/order", accountID, nil, func(raw []byte) error {
		var ws []wireOrder
		if err := json.Unmarshal(raw, &ws); err != nil {
			return err
		}
		if ws == nil {
			return errors.New("orders: expected array")
		}
		out = make([]order.Order, 0, len(ws))
		for i, w := range ws {
			o, err := w.toOrder()
			if err != nil {
				return fmt.Errorf("orders[%d]: %w", i, err)
			}
			out = append(out, o)
		}
		return nil
	})
	return out, err
}

// CreateOrder 调用 POST /order/new 提交限价单。
func (c *RESTClient) CreateOrder(ctx context.Context, accountID string, limit float64, quantity int, side order.Side) (order.Order, error) {
	const op = "create_order"
	if !side.Valid() {
		return order.Order{}, &ProtocolError{Op: op, Reason: fmt.Sprintf("invalid side %q", side)}
	}
	var created order.Order
	err := c.call(ctx, op, http.MethodPost, "/order/new", accountID, orderReq{Limit: limit, Quantity: quantity, Side: side}, func(raw []byte) error {
		var w wireOrder
		if err := json.Unmarshal(raw, &w); err != nil {
			return err
		}
		o, err := w.toOrder()
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	return created, err
}

// DeleteOrder 调用 DELETE /order/{id}；任意 2xx 视为确认。
func (c *RESTClient) DeleteOrder(ctx context.Context, accountID, orderID string) error {
	const op = "delete_order"
	if orderID == "" {
		return &ProtocolError{Op: op, Reason: "empty order id"}
	}
	return c.call(ctx, op, http.MethodDelete, "/order/"+url.PathEscape(orderID), accountID, nil, nil)
}

// ReadBestQuotes 调用 GET /market/quote，响应为 [bestBid|null, bestAsk|null]。
func (c *RESTClient) ReadBestQuotes(ctx context.Context) (*order.Quote, *order.Quote, error) {
	const op = "read_quotes"
	var bid, ask *order.Quote
	err := c.call(ctx, op, http.MethodGet, "/market/quote", "", nil, func(raw []byte) error {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("quote: expected 2 elements, got %d", len(pair))
		}
		var err error
		if bid, err = decodeQuote(pair[0]); err != nil {
			return fmt.Errorf("bid: %w", err)
		}
		if ask, err = decodeQuote(pair[1]); err != nil {
			return fmt.Errorf("ask: %w", err)
		}
		return nil
	})
	return bid, ask, err
}

func decodeQuote(raw json.RawMessage) (*order.Quote, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var w wireQuote
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Limit == nil || w.Quantity == nil {
		return nil, errors.New("quote missing limit/quantity")
	}
	return &order.Quote{Limit: *w.Limit, Quantity: *w.Quantity}, nil
}

// call 发送请求并把响应体交给 decode；按重试策略包装整个往返。
func (c *RESTClient) call(ctx context.Context, op, method, path, accountID string, body any, decode func([]byte) error) error {
	if c == nil || c.HTTPClient == nil {
		return ErrClientNotSet
	}
	return c.Retry.do(ctx, func() error {
		start := time.Now()
		c.record(func(r Recorder) { r.RecordRESTRequest(op) })
		err := c.roundTrip(ctx, op, method, path, accountID, body, decode)
		elapsed := time.Since(start).Seconds()
		c.record(func(r Recorder) { r.RecordRESTLatency(op, elapsed) })
		if err != nil {
			c.record(func(r Recorder) { r.RecordRESTError(op) })
		}
		return err
	})
}

func (c *RESTClient) roundTrip(ctx context.Context, op, method, path, accountID string, body any, decode func([]byte) error) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return &ConnectivityError{Op: op, Err: err}
		}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &ProtocolError{Op: op, Reason: fmt.Sprintf("encode body: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return &ProtocolError{Op: op, Reason: fmt.Sprintf("build request: %v", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accountID != "" {
		req.Header.Set(headerAccountID, accountID)
	}
	req.Header.Set(headerRequestID, uuid.NewString())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &ConnectivityError{Op: op, Err: err}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &ConnectivityError{Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}
	if resp.StatusCode >= 300 {
		return &ProtocolError{Op: op, Status: resp.StatusCode, Reason: strings.TrimSpace(string(raw))}
	}
	if decode == nil {
		return nil
	}
	if err := decode(raw); err != nil {
		return &ProtocolError{Op: op, Status: resp.StatusCode, Reason: err.Error()}
	}
	return nil
}

func (c *RESTClient) record(fn func(Recorder)) {
	if c.Recorder != nil {
		fn(c.Recorder)
	}
}
