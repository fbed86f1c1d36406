package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matchbox/book"
	"matchbox/service"
)

// Server is the JSON/websocket front door. All writes funnel into the
// order service; websocket clients get the service's live trade feed
// fanned out through non-blocking hubs.
type Server struct {
	svc      *service.OrderService
	tradeHub *hub[service.TradeEvent]
	upgrader websocket.Upgrader
	log      *zap.Logger
}

type orderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Type   string `json:"type"`
	Price  int64  `json:"price"`
	Qty    int64  `json:"qty"`
}

type orderResponse struct {
	OrderID   uint64     `json:"order_id"`
	Status    string     `json:"status"`
	Remaining int64      `json:"remaining"`
	Fills     []fillView `json:"fills,omitempty"`
	AvgPrice  *int64     `json:"avg_price,omitempty"`
}

type fillView struct {
	MakerID uint64 `json:"maker_id"`
	TakerID uint64 `json:"taker_id"`
	Price   int64  `json:"price"`
	Qty     int64  `json:"qty"`
}

type bookResponse struct {
	Symbol string           `json:"symbol"`
	Bids   []book.LevelView `json:"bids"`
	Asks   []book.LevelView `json:"asks"`
}

type pricesResponse struct {
	Symbol string `json:"symbol"`
	Bid    *int64 `json:"bid,omitempty"`
	Ask    *int64 `json:"ask,omitempty"`
	Spread *int64 `json:"spread,omitempty"`
}

type outboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func New(svc *service.OrderService, log *zap.Logger) *Server {
	s := &Server{
		svc:      svc,
		tradeHub: newHub[service.TradeEvent](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
	}
	return s
}

// Start pumps the service's trade feed into the websocket hub until
// the context ends.
func (s *Server) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.svc.Events():
				if !ok {
					return
				}
				s.tradeHub.Broadcast(ev)
			}
		}
	}()
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/orders/", s.handleCancel)
	mux.HandleFunc("/book", s.handleBook)
	mux.HandleFunc("/prices", s.handlePrices)
	mux.HandleFunc("/symbols", s.handleSymbols)
	mux.HandleFunc("/ws/trades", s.handleTradeStream)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, errors.New("symbol is required"))
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	otype, err := parseOrderType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.svc.PlaceOrder(req.Symbol, side, otype, req.Price, req.Qty)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := orderResponse{
		OrderID:   res.OrderID,
		Status:    res.Status.String(),
		Remaining: res.Remaining,
	}
	for _, f := range res.Fills {
		resp.Fills = append(resp.Fills, fillView{
			MakerID: f.MakerID, TakerID: f.TakerID, Price: f.Price, Qty: f.Qty,
		})
	}
	if avg := res.AvgFillPrice(); avg != 0 {
		resp.AvgPrice = &avg
	}
	writeJSON(w, http.StatusOK, resp)
}

// DELETE /orders/{symbol}/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/orders/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, errors.New("expected /orders/{symbol}/{id}"))
		return
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid order id: %w", err))
		return
	}

	if err := s.svc.Cancel(parts[0], id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid depth: %w", err))
			return
		}
		depth = n
	}

	bids, asks, err := s.svc.Depth(symbol, depth)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, bookResponse{Symbol: symbol, Bids: bids, Asks: asks})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	bid, ask, haveBid, haveAsk, err := s.svc.TopOfBook(symbol)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := pricesResponse{Symbol: symbol}
	if haveBid {
		resp.Bid = &bid
	}
	if haveAsk {
		resp.Ask = &ask
	}
	if haveBid && haveAsk {
		sp := ask - bid
		resp.Spread = &sp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"symbols": s.svc.Symbols()})
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.tradeHub.Subscribe(32)
	defer s.tradeHub.Unsubscribe(sub)

	// Inbound frames are discarded, but the read loop is what surfaces
	// close and control frames; without it a dropped client is only
	// noticed on the next failed write.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case trade, ok := <-sub.ch:
			if !ok {
				return
			}
			msg := outboundMessage{Type: "trade", Data: trade}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func parseSide(value string) (book.Side, error) {
	switch strings.ToLower(value) {
	case "buy", "bid", "b":
		return book.Bid, nil
	case "sell", "ask", "s":
		return book.Ask, nil
	default:
		return 0, fmt.Errorf("unknown side %q", value)
	}
}

func parseOrderType(value string) (book.OrderType, error) {
	switch strings.ToLower(value) {
	case "limit", "lmt":
		return book.Limit, nil
	case "market", "mkt":
		return book.Market, nil
	case "ioc":
		return book.IOC, nil
	case "fok":
		return book.FOK, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", value)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, book.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, book.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, book.ErrOrderNotFound), errors.Is(err, book.ErrUnknownInstrument):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
