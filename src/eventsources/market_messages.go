package eventsources

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

const (
	channelCandle1m = "candle1m"
	channelTickers  = "tickers"
)

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxRequest struct {
	Op   string   `json:"op"`
	Args []okxArg `json:"args"`
}

type okxPush struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
	Arg   okxArg          `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

type okxTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	BidPx   string `json:"bidPx"`
	AskPx   string `json:"askPx"`
	Vol24h  string `json:"vol24h"`
	Open24h string `json:"open24h"`
	Ts      string `json:"ts"`
}

// ToInstID converts "BTC/USDT" into the exchange form "BTC-USDT".
func ToInstID(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}

// FromInstID converts "BTC-USDT" into "BTC/USDT".
func FromInstID(instID string) string {
	return strings.ReplaceAll(instID, "-", "/")
}

func newOKXRequest(op string, symbols []string) okxRequest {
	args := make([]okxArg, 0, len(symbols)*2)
	for _, sym := range symbols {
		instID := ToInstID(sym)
		args = append(args,
			okxArg{Channel: channelCandle1m, InstID: instID},
			okxArg{Channel: channelTickers, InstID: instID},
		)
	}

	return okxRequest{Op: op, Args: args}
}

// parseMarketMessage turns one stream frame into events. Control frames
// (pong, subscribe acks) produce no events and no error.
func parseMarketMessage(sourceID string, raw []byte) ([]eventmodels.Event, error) {
	if string(raw) == "pong" {
		return nil, nil
	}

	var push okxPush
	if err := json.Unmarshal(raw, &push); err != nil {
		return nil, fmt.Errorf("parseMarketMessage: %v: %w", err, eventmodels.ErrData)
	}

	switch push.Event {
	case "":
	case "error":
		return nil, fmt.Errorf("parseMarketMessage: upstream error %s: %s: %w", push.Code, push.Msg, eventmodels.ErrData)
	default:
		return nil, nil
	}

	if len(push.Data) == 0 {
		return nil, nil
	}

	symbol := FromInstID(push.Arg.InstID)

	switch push.Arg.Channel {
	case channelCandle1m:
		var rows [][]string
		if err := json.Unmarshal(push.Data, &rows); err != nil {
			return nil, fmt.Errorf("parseMarketMessage: candle rows: %v: %w", err, eventmodels.ErrData)
		}

		events := make([]eventmodels.Event, 0, len(rows))
		for _, row := range rows {
			c, err := parseCandleRow(row)
			if err != nil {
				return nil, err
			}
			events = append(events, c.toEvent(sourceID, symbol))
		}
		return events, nil

	case channelTickers:
		var tickers []okxTicker
		if err := json.Unmarshal(push.Data, &tickers); err != nil {
			return nil, fmt.Errorf("parseMarketMessage: tickers: %v: %w", err, eventmodels.ErrData)
		}

		events := make([]eventmodels.Event, 0, len(tickers))
		for _, t := range tickers {
			ev, err := t.toEvent(sourceID, symbol)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		return events, nil
	}

	return nil, nil
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

func (c Candle) toEvent(sourceID, symbol string) eventmodels.Event {
	return eventmodels.NewEvent(sourceID, eventmodels.CategoryMarket, symbol, c.Timestamp, map[string]interface{}{
		"open":      c.Open,
		"high":      c.High,
		"low":       c.Low,
		"close":     c.Close,
		"volume":    c.Volume,
		"timeframe": "1m",
	})
}

func parseCandleRow(row []string) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("parseCandleRow: expected 6 fields, found %d: %w", len(row), eventmodels.ErrData)
	}

	ts, err := parseMillis(row[0])
	if err != nil {
		return Candle{}, err
	}

	values := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return Candle{}, fmt.Errorf("parseCandleRow: field %d: %v: %w", i, err, eventmodels.ErrData)
		}
		values[i-1] = v
	}

	return Candle{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func (t okxTicker) toEvent(sourceID, symbol string) (eventmodels.Event, error) {
	ts, err := parseMillis(t.Ts)
	if err != nil {
		return eventmodels.Event{}, err
	}

	last := parseFloatOrZero(t.Last)
	open24h := parseFloatOrZero(t.Open24h)
	change := 0.0
	if open24h > 0 {
		change = (last - open24h) / open24h * 100
	}

	ev := eventmodels.NewEvent(sourceID, eventmodels.CategoryMarket, symbol, ts, map[string]interface{}{
		"last":       last,
		"bid":        parseFloatOrZero(t.BidPx),
		"ask":        parseFloatOrZero(t.AskPx),
		"volume_24h": parseFloatOrZero(t.Vol24h),
		"change_24h": change,
	})

	return ev.WithMetadata("data_subtype", "ticker"), nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parseMillis: %q: %w", s, eventmodels.ErrData)
	}

	return time.UnixMilli(ms).UTC(), nil
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return v
}
