// Package exchangetest 提供内存版撮合服务（不撮合，只挂单），用于 gateway/sim 的测试。
package exchangetest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"market-sim-go/order"
)

// Exchange 按账户保存挂单，报价取各方向最优价。
type Exchange struct {
	mu       sync.Mutex
	accounts map[string]*order.Book
	balances map[string]order.AccountInit
	clock    float64
	failures map[string][]int // route -> 依次返回的状态码
	requests map[string]int
}

func New() *Exchange {
	return &Exchange{
		accounts: make(map[string]*order.Book),
		balances: make(map[string]order.AccountInit),
		failures: make(map[string][]int),
		requests: make(map[string]int),
	}
}

// Server 启动 httptest 服务，base URL 已带 /api 前缀。
func (e *Exchange) Server() (*httptest.Server, string) {
	ts := httptest.NewServer(e.Router())
	return ts, ts.URL + "/api"
}

// Router 注册与真实服务一致的路由。
func (e *Exchange) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/account/new", e.wrap("create_account", e.newAccount)).Methods(http.MethodPost)
	api.HandleFunc("/account", e.wrap("read_account", e.withAccount(e.getAccount))).Methods(http.MethodGet)
	api.HandleFunc("/order/new", e.wrap("create_order", e.withAccount(e.newOrder))).Methods(http.MethodPost)
	api.HandleFunc("/order", e.wrap("list_orders", e.withAccount(e.listOrders))).Methods(http.MethodGet)
	api.HandleFunc("/order/{id}", e.wrap("delete_order", e.withAccount(e.deleteOrder))).Methods(http.MethodDelete)
	api.HandleFunc("/market/quote", e.wrap("read_quotes", e.quote)).Methods(http.MethodGet)
	return r
}

// FailNext 让 route 接下来的请求依次返回给定状态码。
func (e *Exchange) FailNext(route string, statuses ...int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[route] = append(e.failures[route], statuses...)
}

// Seed 直接在账户下挂单，返回订单。
func (e *Exchange) Seed(accountID string, limit float64, side order.Side) order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeLocked(accountID, limit, 1, side)
}

// Execute 把订单标记为已成交；之后的撤单请求返回 409。
func (e *Exchange) Execute(accountID, orderID string) bool {
	e.mu.Lock()
	book, ok := e.accounts[accountID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	o, ok := book.Get(orderID)
	if !ok {
		return false
	}
	if err := order.NewStateMachine().Transition(&o, order.StatusExecuted); err != nil {
		return false
	}
	book.Set(o)
	return true
}

// Orders 返回账户当前挂单（时间升序）。
func (e *Exchange) Orders(accountID string) []order.Order {
	e.mu.Lock()
	book, ok := e.accounts[accountID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return book.List()
}

// Accounts 返回全部账户 ID。
func (e *Exchange) Accounts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.accounts))
	for id := range e.accounts {
		ids = append(ids, id)
	}
	return ids
}

// RequestCount 返回 route 收到的请求数。
func (e *Exchange) RequestCount(route string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[route]
}

type accountCtxHandler func(w http.ResponseWriter, r *http.Request, accountID string, book *order.Book)

func (e *Exchange) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.requests[route]++
		var status int
		if q := e.failures[route]; len(q) > 0 {
			status, e.failures[route] = q[0], q[1:]
		}
		e.mu.Unlock()
		if status != 0 {
			http.Error(w, "injected failure", status)
			return
		}
		h(w, r)
	}
}

func (e *Exchange) withAccount(h accountCtxHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("account-id")
		if id == "" {
			http.Error(w, "`account-id` missing in Header", http.StatusBadRequest)
			return
		}
		e.mu.Lock()
		book, ok := e.accounts[id]
		e.mu.Unlock()
		if !ok {
			http.Error(w, "this `account-id` does not exist", http.StatusForbidden)
			return
		}
		h(w, r, id, book)
	}
}

func (e *Exchange) newAccount(w http.ResponseWriter, r *http.Request) {
	var init order.AccountInit
	if err := json.NewDecoder(r.Body).Decode(&init); err != nil {
		http.Error(w, "field `account_balance` in Body is invalid", http.StatusBadRequest)
		return
	}
	id := uuid.NewString()
	e.mu.Lock()
	e.accounts[id] = order.NewBook()
	e.balances[id] = init
	e.mu.Unlock()
	_, _ = w.Write([]byte(id))
}

func (e *Exchange) getAccount(w http.ResponseWriter, _ *http.Request, id string, _ *order.Book) {
	e.mu.Lock()
	init := e.balances[id]
	e.mu.Unlock()
	writeJSON(w, map[string]any{
		"id":              id,
		"account_balance": init.Balance,
		"position":        init.Position,
	})
}

func (e *Exchange) newOrder(w http.ResponseWriter, r *http.Request, id string, _ *order.Book) {
	var req struct {
		Limit    float64    `json:"limit"`
		Quantity int        `json:"quantity"`
		Side     order.Side `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Limit <= 0 || req.Quantity <= 0 {
		http.Error(w, "order invalid", http.StatusBadRequest)
		return
	}
	e.mu.Lock()
	o := e.placeLocked(id, req.Limit, req.Quantity, req.Side)
	e.mu.Unlock()
	writeJSON(w, o)
}

func (e *Exchange) listOrders(w http.ResponseWriter, _ *http.Request, _ string, book *order.Book) {
	writeJSON(w, book.List())
}

func (e *Exchange) deleteOrder(w http.ResponseWriter, r *http.Request, _ string, book *order.Book) {
	if _, err := book.Cancel(mux.Vars(r)["id"]); err != nil {
		status := http.StatusConflict
		if errors.Is(err, order.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (e *Exchange) quote(w http.ResponseWriter, _ *http.Request) {
	e.mu.Lock()
	var bid, ask *order.Quote
	for _, book := range e.accounts {
		for _, o := range book.List() {
			switch o.Side {
			case order.SideBid:
				if bid == nil || o.Limit > bid.Limit {
					bid = &order.Quote{Limit: o.Limit, Quantity: o.Quantity}
				}
			case order.SideAsk:
				if ask == nil || o.Limit < ask.Limit {
					ask = &order.Quote{Limit: o.Limit, Quantity: o.Quantity}
				}
			}
		}
	}
	e.mu.Unlock()
	writeJSON(w, []*order.Quote{bid, ask})
}

func (e *Exchange) placeLocked(accountID string, limit float64, qty int, side order.Side) order.Order {
	e.clock++
	o := order.Order{
		ID:        uuid.NewString(),
		Limit:     limit,
		Quantity:  qty,
		Side:      side,
		Timestamp: e.clock,
		AccountID: accountID,
		Status:    order.StatusPending,
	}
	if book, ok := e.accounts[accountID]; ok {
		book.Set(o)
	}
	return o
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
