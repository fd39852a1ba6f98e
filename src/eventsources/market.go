package eventsources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

const (
	DefaultMarketStreamURL = "wss://ws.okx.com:8443/ws/v5/public"
	SandboxMarketStreamURL = "wss://wspap.okx.com:8443/ws/v5/public?brokerId=9999"
	DefaultMarketRestURL   = "https://www.okx.com"

	defaultHistoryLimit = 1000
)

var DefaultMarketSymbols = []string{"BTC/USDT", "ETH/USDT"}

// StreamConn is the subset of *websocket.Conn used by the market stream.
type StreamConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type StreamDialer interface {
	Dial(ctx context.Context, url string) (StreamConn, error)
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

func (d websocketDialer) Dial(ctx context.Context, url string) (StreamConn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

type MarketConfig struct {
	StreamURL            string
	RestURL              string
	Symbols              []string
	MaxReconnectAttempts int
	ReadTimeout          time.Duration
	PingInterval         time.Duration
	HTTPTimeout          time.Duration
	Backoff              Backoff
}

func (c *MarketConfig) setDefaults() {
	if c.StreamURL == "" {
		c.StreamURL = DefaultMarketStreamURL
	}
	if c.RestURL == "" {
		c.RestURL = DefaultMarketRestURL
	}
	if len(c.Symbols) == 0 {
		c.Symbols = DefaultMarketSymbols
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Backoff.Base <= 0 && c.Backoff.Max <= 0 {
		c.Backoff = DefaultBackoff()
	}
}

type MarketOption func(*MarketSource)

func WithStreamDialer(d StreamDialer) MarketOption {
	return func(s *MarketSource) {
		s.dialer = d
	}
}

func WithHistoryProvider(p HistoryProvider) MarketOption {
	return func(s *MarketSource) {
		s.history = p
	}
}

func WithInstrumentProvider(p InstrumentProvider) MarketOption {
	return func(s *MarketSource) {
		s.instruments = p
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) bool) MarketOption {
	return func(s *MarketSource) {
		s.sleep = fn
	}
}

// MarketSource streams candles and tickers over a persistent websocket and
// serves historical candles over REST.
type MarketSource struct {
	*BaseSource
	cfg         MarketConfig
	dialer      StreamDialer
	history     HistoryProvider
	instruments InstrumentProvider
	sleep       func(ctx context.Context, d time.Duration) bool

	mu            sync.Mutex
	connected     bool
	supported     []string
	keys          map[string]struct{}
	conn          StreamConn
	writeMu       sync.Mutex
	dialAttempts  int
	reconnectWait []time.Duration
}

func NewMarketSource(name string, cfg MarketConfig, opts ...MarketOption) *MarketSource {
	cfg.setDefaults()

	rest := NewOKXClient(cfg.RestURL, cfg.HTTPTimeout)
	s := &MarketSource{
		BaseSource:  NewBaseSource(name, eventmodels.CategoryMarket),
		cfg:         cfg,
		dialer:      websocketDialer{dialer: &websocket.Dialer{HandshakeTimeout: cfg.HTTPTimeout}},
		history:     rest,
		instruments: rest,
		sleep:       sleepCtx,
		keys:        make(map[string]struct{}),
	}

	for _, sym := range cfg.Symbols {
		s.keys[normalizeSymbol(sym)] = struct{}{}
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(FromInstID(symbol)))
}

func (s *MarketSource) Connect(ctx context.Context) bool {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	symbols, err := s.instruments.Instruments(ctx)
	if err != nil {
		log.WithField("source", s.Name()).Errorf("connect failed: %v", err)
		s.setLastError(err)
		return false
	}

	if len(symbols) == 0 {
		symbols = s.cfg.Symbols
	}

	s.mu.Lock()
	s.supported = symbols
	s.connected = true
	s.mu.Unlock()

	log.WithField("source", s.Name()).Infof("connected, %d instruments available", len(symbols))
	return true
}

func (s *MarketSource) Disconnect(ctx context.Context) bool {
	s.StopStreaming()
	s.closeConn()
	s.waitLoop()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	return true
}

func (s *MarketSource) StartStreaming(ctx context.Context) error {
	if len(s.SubscribedKeys()) == 0 {
		return fmt.Errorf("MarketSource.StartStreaming: no symbols configured: %w", eventmodels.ErrConfig)
	}

	return s.startLoop(ctx, s.run)
}

func (s *MarketSource) StopStreaming() {
	s.BaseSource.StopStreaming()
	s.closeConn()
}

func (s *MarketSource) SupportedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.supported) == 0 {
		out := make([]string, len(s.cfg.Symbols))
		copy(out, s.cfg.Symbols)
		return out
	}

	out := make([]string, len(s.supported))
	copy(out, s.supported)
	return out
}

func (s *MarketSource) SubscribedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *MarketSource) SubscribeKey(ctx context.Context, key string) error {
	symbol := normalizeSymbol(key)
	if !strings.Contains(symbol, "/") {
		return fmt.Errorf("MarketSource.SubscribeKey: invalid symbol %q: %w", key, eventmodels.ErrConfig)
	}

	s.mu.Lock()
	_, exists := s.keys[symbol]
	s.keys[symbol] = struct{}{}
	s.mu.Unlock()

	if exists {
		return nil
	}

	if err := s.writeRequest(newOKXRequest("subscribe", []string{symbol})); err != nil {
		// the key is kept and will be sent on the next reconnect
		log.WithField("source", s.Name()).Warnf("subscribe %s deferred: %v", symbol, err)
	}

	log.WithField("source", s.Name()).Infof("subscribed to %s", symbol)
	return nil
}

func (s *MarketSource) UnsubscribeKey(ctx context.Context, key string) error {
	symbol := normalizeSymbol(key)

	s.mu.Lock()
	_, exists := s.keys[symbol]
	delete(s.keys, symbol)
	s.mu.Unlock()

	if !exists {
		return nil
	}

	if err := s.writeRequest(newOKXRequest("unsubscribe", []string{symbol})); err != nil {
		log.WithField("source", s.Name()).Warnf("unsubscribe %s not sent: %v", symbol, err)
	}

	log.WithField("source", s.Name()).Infof("unsubscribed from %s", symbol)
	return nil
}

// GetHistorical returns candles for key within [start, end], oldest first.
func (s *MarketSource) GetHistorical(ctx context.Context, key string, start, end time.Time, limit int) []eventmodels.Event {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	symbol := normalizeSymbol(key)
	candles, err := s.history.FetchCandles(ctx, symbol, start, end, limit)
	if err != nil {
		log.WithField("source", s.Name()).Errorf("historical fetch for %s failed: %v", symbol, err)
		return []eventmodels.Event{}
	}

	events := make([]eventmodels.Event, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}

		events = append(events, c.toEvent(s.Name(), symbol))
		if len(events) >= limit {
			break
		}
	}

	return events
}

// ReconnectWaits returns the backoff waits taken so far.
func (s *MarketSource) ReconnectWaits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]time.Duration, len(s.reconnectWait))
	copy(out, s.reconnectWait)
	return out
}

// DialAttempts returns the number of stream connection attempts made.
func (s *MarketSource) DialAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dialAttempts
}

func (s *MarketSource) run(ctx context.Context) {
	logger := log.WithField("source", s.Name())
	attempts := 0

	for {
		err := s.session(ctx, &attempts)
		if ctx.Err() != nil {
			return
		}

		logger.Warnf("stream session ended: %v", err)
		s.setLastError(err)

		if attempts >= s.cfg.MaxReconnectAttempts {
			s.markFailed(fmt.Sprintf("gave up after %d reconnect attempts: %v", attempts, err))
			return
		}

		attempts++
		wait := s.cfg.Backoff.Wait(attempts)

		s.mu.Lock()
		s.reconnectWait = append(s.reconnectWait, wait)
		s.mu.Unlock()

		logger.Infof("reconnecting in %v (attempt %d/%d)", wait, attempts, s.cfg.MaxReconnectAttempts)
		if !s.sleep(ctx, wait) {
			return
		}
	}
}

// session runs one connection until it fails or ctx ends. A successful
// subscribe resets the consecutive failure counter.
func (s *MarketSource) session(ctx context.Context, attempts *int) error {
	s.mu.Lock()
	s.dialAttempts++
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HTTPTimeout)
	conn, err := s.dialer.Dial(dialCtx, s.cfg.StreamURL)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %v: %w", s.cfg.StreamURL, err, eventmodels.ErrTransport)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer s.closeConn()

	if err := s.writeRequest(newOKXRequest("subscribe", s.SubscribedKeys())); err != nil {
		return err
	}

	*attempts = 0
	s.setLastError(nil)
	log.WithField("source", s.Name()).Infof("stream connected, subscribed to %v", s.SubscribedKeys())

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %v: %w", err, eventmodels.ErrTransport)
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %v: %w", err, eventmodels.ErrTransport)
		}

		events, err := parseMarketMessage(s.Name(), msg)
		if err != nil {
			log.WithField("source", s.Name()).Warnf("dropping frame: %v", err)
			continue
		}

		for _, ev := range events {
			s.Notify(ctx, ev)
		}
	}
}

// keepAlive sends text pings and closes the connection when ctx ends so a
// blocked read returns.
func (s *MarketSource) keepAlive(ctx context.Context, conn StreamConn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			s.writeMu.Unlock()
			if err != nil {
				log.WithField("source", s.Name()).Debugf("ping failed: %v", err)
			}
		}
	}
}

func (s *MarketSource) writeRequest(req okxRequest) error {
	if len(req.Args) == 0 {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("stream not connected: %w", eventmodels.ErrTransport)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %v: %w", req.Op, err, eventmodels.ErrTransport)
	}

	return nil
}

func (s *MarketSource) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
