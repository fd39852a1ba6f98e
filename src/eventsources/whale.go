package eventsources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

const (
	DefaultWhaleAlertURL = "https://api.whale-alert.io"

	// whaleDedupSize bounds the record ids remembered across polls. Window
	// bounds are inclusive upstream, so a record at the boundary comes back
	// on the next poll.
	whaleDedupSize = 4096
)

var WhaleSupportedSymbols = []string{"BTC", "ETH", "USDT", "USDC", "BNB", "ADA", "DOT", "LINK"}

type WhaleConfig struct {
	APIKey       string
	BaseURL      string
	MinValueUSD  float64
	PollInterval time.Duration
	HTTPTimeout  time.Duration
	PageLimit    int
	AddressBook  *AddressBook
}

func (c *WhaleConfig) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultWhaleAlertURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MinValueUSD <= 0 {
		c.MinValueUSD = 1_000_000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 100
	}
	if c.AddressBook == nil {
		c.AddressBook = DefaultAddressBook()
	}
}

type whaleOwner struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	OwnerType string `json:"owner_type"`
}

type whaleTransaction struct {
	Blockchain      string     `json:"blockchain"`
	Symbol          string     `json:"symbol"`
	ID              string     `json:"id"`
	TransactionType string     `json:"transaction_type"`
	Hash            string     `json:"hash"`
	From            whaleOwner `json:"from"`
	To              whaleOwner `json:"to"`
	Timestamp       int64      `json:"timestamp"`
	Amount          float64    `json:"amount"`
	AmountUSD       float64    `json:"amount_usd"`
}

// dedupKey identifies one record. A hash can carry several records with
// different endpoints.
func (tx whaleTransaction) dedupKey() string {
	if tx.ID != "" {
		return tx.ID
	}
	return strings.Join([]string{tx.Blockchain, tx.Hash, tx.From.Address, tx.To.Address, tx.Symbol}, "|")
}

type whaleResponse struct {
	Result       string             `json:"result"`
	Message      string             `json:"message"`
	Count        int                `json:"count"`
	Transactions []whaleTransaction `json:"transactions"`
}

// FlowStats summarises exchange flows for one symbol.
type FlowStats struct {
	Symbol       string  `json:"symbol"`
	Hours        int     `json:"hours"`
	Transactions int     `json:"transactions"`
	InflowUSD    float64 `json:"inflow_usd"`
	OutflowUSD   float64 `json:"outflow_usd"`
	NetFlowUSD   float64 `json:"net_flow_usd"`
	TotalUSD     float64 `json:"total_usd"`
}

// WhaleSource polls the large-transaction feed over [checkpoint, now).
type WhaleSource struct {
	*BaseSource
	cfg    WhaleConfig
	client *http.Client
	now    func() time.Time
	seen   *lru.Cache[string, struct{}]

	mu         sync.Mutex
	checkpoint time.Time
	connected  bool
}

func NewWhaleSource(name string, cfg WhaleConfig) *WhaleSource {
	cfg.setDefaults()
	seen, _ := lru.New[string, struct{}](whaleDedupSize)

	return &WhaleSource{
		BaseSource: NewBaseSource(name, eventmodels.CategoryLargeTransaction),
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		now:        time.Now,
		seen:       seen,
	}
}

func (s *WhaleSource) Connect(ctx context.Context) bool {
	logger := log.WithField("source", s.Name())

	if s.cfg.APIKey == "" {
		logger.Errorf("connect refused: missing api key: %v", eventmodels.ErrConfig)
		s.setLastError(fmt.Errorf("missing api key: %w", eventmodels.ErrConfig))
		return false
	}

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)

	var status map[string]interface{}
	if err := utils.GetJSON(ctx, s.client, s.cfg.BaseURL+"/v1/status?"+params.Encode(), &status); err != nil {
		logger.Errorf("connect failed: %v", err)
		s.setLastError(err)
		return false
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	logger.Info("connected")
	return true
}

func (s *WhaleSource) Disconnect(ctx context.Context) bool {
	s.StopStreaming()
	s.waitLoop()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	return true
}

func (s *WhaleSource) StartStreaming(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return fmt.Errorf("WhaleSource.StartStreaming: missing api key: %w", eventmodels.ErrConfig)
	}

	s.mu.Lock()
	s.checkpoint = s.now().UTC()
	s.mu.Unlock()

	return s.startLoop(ctx, s.run)
}

func (s *WhaleSource) SupportedKeys() []string {
	out := make([]string, len(WhaleSupportedSymbols))
	copy(out, WhaleSupportedSymbols)
	return out
}

func (s *WhaleSource) AddressBook() *AddressBook {
	return s.cfg.AddressBook
}

func (s *WhaleSource) Checkpoint() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.checkpoint
}

func (s *WhaleSource) setCheckpoint(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoint = t
}

func (s *WhaleSource) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				log.WithField("source", s.Name()).Errorf("poll failed, checkpoint held at %s: %v", s.Checkpoint().Format(time.RFC3339), err)
				s.setLastError(err)
				continue
			}
			s.setLastError(nil)
		}
	}
}

// pollOnce fetches [checkpoint, now). A successful response advances the
// checkpoint to now even when empty; a failure leaves it untouched.
func (s *WhaleSource) pollOnce(ctx context.Context) error {
	start := s.Checkpoint()
	end := s.now().UTC()

	txs, err := s.fetch(ctx, start, end)
	if err != nil {
		return err
	}

	emitted := 0
	for _, tx := range txs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ev, ok := s.toEvent(tx)
		if !ok {
			continue
		}
		if seen, _ := s.seen.ContainsOrAdd(tx.dedupKey(), struct{}{}); seen {
			continue
		}
		s.Notify(ctx, ev)
		emitted++
	}

	s.setCheckpoint(end)
	log.WithField("source", s.Name()).Debugf("polled %d transactions, emitted %d", len(txs), emitted)
	return nil
}

func (s *WhaleSource) fetch(ctx context.Context, start, end time.Time) ([]whaleTransaction, error) {
	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))
	params.Set("min_value", strconv.FormatInt(int64(s.cfg.MinValueUSD), 10))
	params.Set("limit", strconv.Itoa(s.cfg.PageLimit))

	var res whaleResponse
	if err := utils.GetJSON(ctx, s.client, s.cfg.BaseURL+"/v1/transactions?"+params.Encode(), &res); err != nil {
		return nil, fmt.Errorf("WhaleSource.fetch: %w", err)
	}

	if res.Result != "success" {
		return nil, fmt.Errorf("WhaleSource.fetch: result %q: %s: %w", res.Result, res.Message, eventmodels.ErrTransport)
	}

	return res.Transactions, nil
}

// toEvent drops unpriced records: coin amounts are not comparable with the
// USD floor.
func (s *WhaleSource) toEvent(tx whaleTransaction) (eventmodels.Event, bool) {
	if tx.AmountUSD <= 0 || tx.AmountUSD < s.cfg.MinValueUSD {
		return eventmodels.Event{}, false
	}

	fromExchange := s.attribute(tx.From)
	toExchange := s.attribute(tx.To)

	direction := "transfer"
	switch {
	case toExchange != "" && fromExchange == "":
		direction = "inflow"
	case fromExchange != "" && toExchange == "":
		direction = "outflow"
	}

	symbol := strings.ToUpper(tx.Symbol)
	ev := eventmodels.NewEvent(s.Name(), eventmodels.CategoryLargeTransaction, symbol, time.Unix(tx.Timestamp, 0).UTC(), map[string]interface{}{
		"hash":             tx.Hash,
		"blockchain":       tx.Blockchain,
		"symbol":           symbol,
		"amount":           tx.Amount,
		"amount_usd":       tx.AmountUSD,
		"from_address":     tx.From.Address,
		"to_address":       tx.To.Address,
		"from_exchange":    fromExchange,
		"to_exchange":      toExchange,
		"transaction_type": tx.TransactionType,
		"direction":        direction,
	})

	return ev, true
}

func (s *WhaleSource) attribute(owner whaleOwner) string {
	if exchange, ok := s.cfg.AddressBook.Lookup(owner.Address); ok {
		return exchange
	}

	if owner.OwnerType == "exchange" && owner.Owner != "" {
		return owner.Owner
	}

	return ""
}

func (s *WhaleSource) GetHistorical(ctx context.Context, key string, start, end time.Time, limit int) []eventmodels.Event {
	txs, err := s.fetch(ctx, start, end)
	if err != nil {
		log.WithField("source", s.Name()).Errorf("historical fetch failed: %v", err)
		return []eventmodels.Event{}
	}

	symbol := strings.ToUpper(key)
	events := make([]eventmodels.Event, 0, len(txs))
	for _, tx := range txs {
		if symbol != "" && strings.ToUpper(tx.Symbol) != symbol {
			continue
		}

		ev, ok := s.toEvent(tx)
		if !ok || ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}

		events = append(events, ev)
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	return events
}

// FlowStats reports exchange inflow and outflow for symbol over the last hours.
func (s *WhaleSource) FlowStats(ctx context.Context, symbol string, hours int) FlowStats {
	if hours <= 0 {
		hours = 24
	}

	end := s.now().UTC()
	events := s.GetHistorical(ctx, symbol, end.Add(-time.Duration(hours)*time.Hour), end, 0)

	stats := FlowStats{Symbol: strings.ToUpper(symbol), Hours: hours, Transactions: len(events)}
	for _, ev := range events {
		usd, _ := ev.Float("amount_usd")
		stats.TotalUSD += usd

		switch ev.Payload["direction"] {
		case "inflow":
			stats.InflowUSD += usd
		case "outflow":
			stats.OutflowUSD += usd
		}
	}

	stats.NetFlowUSD = stats.InflowUSD - stats.OutflowUSD
	return stats
}
