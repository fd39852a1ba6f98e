package eventsources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

// HistoryProvider fetches closed candles for a symbol in [start, end].
type HistoryProvider interface {
	FetchCandles(ctx context.Context, symbol string, start, end time.Time, limit int) ([]Candle, error)
}

// InstrumentProvider lists tradable symbols in "BASE/QUOTE" form.
type InstrumentProvider interface {
	Instruments(ctx context.Context) ([]string, error)
}

const okxPageLimit = 100

// OKXClient is the request/response side of the exchange API.
type OKXClient struct {
	baseURL string
	client  *http.Client
}

func NewOKXClient(baseURL string, timeout time.Duration) *OKXClient {
	return &OKXClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type okxResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type okxInstrument struct {
	InstID   string `json:"instId"`
	QuoteCcy string `json:"quoteCcy"`
	State    string `json:"state"`
}

func (c *OKXClient) Instruments(ctx context.Context) ([]string, error) {
	var res okxResponse[okxInstrument]
	if err := utils.GetJSON(ctx, c.client, c.baseURL+"/api/v5/public/instruments?instType=SPOT", &res); err != nil {
		return nil, fmt.Errorf("OKXClient.Instruments: %w", err)
	}

	if res.Code != "0" {
		return nil, fmt.Errorf("OKXClient.Instruments: code %s: %s: %w", res.Code, res.Msg, eventmodels.ErrData)
	}

	var symbols []string
	for _, inst := range res.Data {
		if inst.QuoteCcy != "USDT" || (inst.State != "" && inst.State != "live") {
			continue
		}
		symbols = append(symbols, FromInstID(inst.InstID))
	}

	sort.Strings(symbols)
	return symbols, nil
}

// FetchCandles pages backwards from end and returns up to limit candles in
// ascending order.
func (c *OKXClient) FetchCandles(ctx context.Context, symbol string, start, end time.Time, limit int) ([]Candle, error) {
	var candles []Candle
	cursor := end.Add(time.Millisecond)

	for len(candles) < limit {
		pageSize := okxPageLimit
		if remaining := limit - len(candles); remaining < pageSize {
			pageSize = remaining
		}

		params := url.Values{}
		params.Set("instId", ToInstID(symbol))
		params.Set("bar", "1m")
		params.Set("after", strconv.FormatInt(cursor.UnixMilli(), 10))
		params.Set("limit", strconv.Itoa(pageSize))

		var res okxResponse[[]string]
		if err := utils.GetJSON(ctx, c.client, c.baseURL+"/api/v5/market/history-candles?"+params.Encode(), &res); err != nil {
			return nil, fmt.Errorf("OKXClient.FetchCandles: %w", err)
		}

		if res.Code != "0" {
			return nil, fmt.Errorf("OKXClient.FetchCandles: code %s: %s: %w", res.Code, res.Msg, eventmodels.ErrData)
		}

		if len(res.Data) == 0 {
			break
		}

		reachedStart := false
		for _, row := range res.Data {
			candle, err := parseCandleRow(row)
			if err != nil {
				return nil, fmt.Errorf("OKXClient.FetchCandles: %w", err)
			}

			if candle.Timestamp.Before(cursor) {
				cursor = candle.Timestamp
			}

			if candle.Timestamp.Before(start) {
				reachedStart = true
				continue
			}

			if !candle.Timestamp.After(end) {
				candles = append(candles, candle)
			}
		}

		if reachedStart || len(res.Data) < pageSize {
			break
		}
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return candles, nil
}

// PolygonHistory serves minute aggregates from polygon.io crypto tickers.
type PolygonHistory struct {
	Client *polygon.Client
}

func NewPolygonHistory(apiKey string) *PolygonHistory {
	return &PolygonHistory{
		Client: polygon.New(apiKey),
	}
}

// PolygonTicker converts "BTC/USDT" into "X:BTCUSD".
func PolygonTicker(symbol string) string {
	parts := strings.SplitN(strings.ToUpper(symbol), "/", 2)
	if len(parts) != 2 {
		return "X:" + strings.ToUpper(symbol)
	}

	quote := parts[1]
	if quote == "USDT" || quote == "USDC" {
		quote = "USD"
	}

	return "X:" + parts[0] + quote
}

func (p *PolygonHistory) FetchCandles(ctx context.Context, symbol string, start, end time.Time, limit int) ([]Candle, error) {
	params := models.ListAggsParams{
		Ticker:     PolygonTicker(symbol),
		Multiplier: 1,
		Timespan:   models.Minute,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithOrder(models.Asc).WithAdjusted(true).WithLimit(limit)

	iter := p.Client.ListAggs(ctx, params)

	var candles []Candle
	for iter.Next() {
		item := iter.Item()
		candles = append(candles, Candle{
			Timestamp: time.Time(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})

		if len(candles) >= limit {
			break
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("PolygonHistory.FetchCandles: %v: %w", err, eventmodels.ErrTransport)
	}

	return candles, nil
}
