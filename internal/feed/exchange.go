package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/schema"
)

// ExchangeConfig configures the live websocket tick source.
type ExchangeConfig struct {
	URL     string
	Symbols []string
}

// Exchange streams trade ticks from a venue websocket and normalizes them
// through the instrument registry.
type Exchange struct {
	cfg  ExchangeConfig
	wss  *ws.WebSocket
	norm *Normalizer
	seq  uint64
}

// NewExchange creates an exchange tick source. Run must be called to start
// streaming.
func NewExchange(ctx context.Context, cfg ExchangeConfig, reg *schema.Registry) *Exchange {
	return &Exchange{
		cfg:  cfg,
		wss:  ws.New(ctx, cfg.URL),
		norm: NewNormalizer(reg),
	}
}

// Close shuts the websocket down.
func (e *Exchange) Close() {
	e.wss.Close()
}

type exchangeSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type exchangeSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func subscribeResponseParser(m ws.Message) (exchangeSubscribeResponse, bool) {
	var resp exchangeSubscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

type exchangeTrade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// ExchangeBookTicker is the best bid/ask snapshot stream payload.
type ExchangeBookTicker struct {
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// Run connects, subscribes every configured symbol's trade stream and emits
// normalized ticks until ctx is done.
func (e *Exchange) Run(ctx context.Context, emit Emit) error {
	if err := e.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	for _, symbol := range e.cfg.Symbols {
		if err := e.subscribeTrades(ctx, symbol); err != nil {
			return errors.Wrap(err, "subscribe trades").With("symbol", symbol)
		}
	}

	ch, cancel := e.wss.Subscribe()
	defer cancel()

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}

			trade, ok := ws.ReadMessage[exchangeTrade](m)
			if !ok || trade.EventType != "trade" {
				continue
			}

			e.seq++
			header, tick, err := e.norm.Normalize(e.seq, RawTick{
				Symbol:     trade.Symbol,
				Price:      trade.Price,
				Volume:     trade.Quantity,
				Source:     SourceExchange,
				TsExchange: trade.TradeTime * int64(time.Millisecond),
			})
			if err != nil {
				logs.Errorf("normalize trade tick, err: %+v", err)
				continue
			}
			emit(header, tick)
		}
	}
}

func (e *Exchange) subscribeTrades(ctx context.Context, symbol string) error {
	appendIntoRegister := true
	if err := e.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := exchangeSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@trade", strings.ToLower(symbol)),
				},
				ID: 1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := subscribeResponseParser(m)
			if !ok || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// ObserveBookTicker streams best bid/ask snapshots to handler. Used by the
// monitoring path only; the decision pipeline trades off the trade stream.
func (e *Exchange) ObserveBookTicker(ctx context.Context, handler func(t ExchangeBookTicker)) (unsubscribe func()) {
	ch, cancel := e.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				resp, ok := ws.ReadMessage[ExchangeBookTicker](m)
				if !ok || resp.Symbol == "" {
					continue
				}

				handler(resp)
			}
		}
	}()

	return cancel
}
