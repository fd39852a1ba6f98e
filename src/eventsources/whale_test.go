package eventsources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type whaleServer struct {
	mu       sync.Mutex
	status   int
	txs      []whaleTransaction
	requests []*http.Request
}

func (s *whaleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, r)
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}

	if r.URL.Path == "/v1/status" {
		w.Write([]byte(`{"result":"success"}`))
		return
	}

	txs := s.txs
	if txs == nil {
		txs = []whaleTransaction{}
	}
	json.NewEncoder(w).Encode(whaleResponse{Result: "success", Count: len(txs), Transactions: txs})
}

func (s *whaleServer) respond(status int, txs ...whaleTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.txs = txs
}

func newTestWhaleSource(t *testing.T, url string, clock *time.Time) *WhaleSource {
	src := NewWhaleSource("whale", WhaleConfig{APIKey: "key", BaseURL: url})
	src.now = func() time.Time { return *clock }
	setRunning(src.BaseSource)
	src.setCheckpoint(*clock)
	return src
}

func TestWhaleSourceCheckpoint(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("a successful empty poll advances the checkpoint", func(t *testing.T) {
		// arrange
		srv := &whaleServer{}
		server := httptest.NewServer(srv)
		defer server.Close()

		clock := t0
		src := newTestWhaleSource(t, server.URL, &clock)
		clock = t0.Add(time.Minute)

		// act
		err := src.pollOnce(context.Background())

		// assert
		require.NoError(t, err)
		assert.Equal(t, t0.Add(time.Minute), src.Checkpoint())

		q := srv.requests[0].URL.Query()
		assert.Equal(t, "key", q.Get("api_key"))
		assert.Equal(t, "1000000", q.Get("min_value"))
		assert.Equal(t, "100", q.Get("limit"))
	})

	t.Run("a failed poll holds the checkpoint", func(t *testing.T) {
		srv := &whaleServer{}
		srv.respond(http.StatusServiceUnavailable)
		server := httptest.NewServer(srv)
		defer server.Close()

		clock := t0
		src := newTestWhaleSource(t, server.URL, &clock)
		clock = t0.Add(time.Minute)

		err := src.pollOnce(context.Background())
		assert.ErrorIs(t, err, eventmodels.ErrTransport)
		assert.Equal(t, t0, src.Checkpoint())

		t.Run("and the next window starts at the held checkpoint", func(t *testing.T) {
			srv.respond(0)
			clock = t0.Add(2 * time.Minute)

			require.NoError(t, src.pollOnce(context.Background()))
			q := srv.requests[len(srv.requests)-1].URL.Query()
			assert.Equal(t, "1714550400", q.Get("start"))
			assert.Equal(t, t0.Add(2*time.Minute), src.Checkpoint())
		})
	})

	t.Run("emits attributed transactions above the floor", func(t *testing.T) {
		// arrange
		srv := &whaleServer{}
		srv.respond(0,
			whaleTransaction{
				Blockchain: "ethereum", Symbol: "eth", Hash: "0xaaa", Timestamp: t0.Unix(),
				Amount: 1000, AmountUSD: 3_000_000,
				From: whaleOwner{Address: "0x1111", OwnerType: "unknown"},
				To:   whaleOwner{Address: "0x3F5CE5FBFE3E9AF3971DD833D26BA9B5C936F0BE"},
			},
			whaleTransaction{
				Blockchain: "ethereum", Symbol: "eth", Hash: "0xbbb", Timestamp: t0.Unix(),
				Amount: 10, AmountUSD: 30_000,
			},
			whaleTransaction{
				Blockchain: "bitcoin", Symbol: "btc", Hash: "ccc", Timestamp: t0.Unix(),
				Amount: 50, AmountUSD: 2_500_000,
				From: whaleOwner{Address: "bc1q", Owner: "kraken", OwnerType: "exchange"},
				To:   whaleOwner{Address: "bc1z"},
			},
		)
		server := httptest.NewServer(srv)
		defer server.Close()

		clock := t0
		src := newTestWhaleSource(t, server.URL, &clock)
		events := collect(src)
		clock = t0.Add(time.Minute)

		// act
		require.NoError(t, src.pollOnce(context.Background()))

		// assert
		require.Len(t, *events, 2)

		inflow := (*events)[0]
		assert.Equal(t, eventmodels.CategoryLargeTransaction, inflow.Category)
		assert.Equal(t, "ETH", inflow.Key)
		assert.Equal(t, "Binance", inflow.Payload["to_exchange"])
		assert.Equal(t, "", inflow.Payload["from_exchange"])
		assert.Equal(t, "inflow", inflow.Payload["direction"])

		outflow := (*events)[1]
		assert.Equal(t, "BTC", outflow.Key)
		assert.Equal(t, "kraken", outflow.Payload["from_exchange"])
		assert.Equal(t, "outflow", outflow.Payload["direction"])
		assert.Equal(t, t0.Add(time.Minute), src.Checkpoint())
	})

	t.Run("unpriced transactions are never compared by coin amount", func(t *testing.T) {
		// arrange
		srv := &whaleServer{}
		srv.respond(0,
			whaleTransaction{Blockchain: "tron", Symbol: "trx", Hash: "t1", Timestamp: t0.Unix(), Amount: 5_000_000},
			whaleTransaction{Blockchain: "bitcoin", Symbol: "btc", Hash: "b1", Timestamp: t0.Unix(), Amount: 200},
			whaleTransaction{Blockchain: "bitcoin", Symbol: "btc", Hash: "b2", Timestamp: t0.Unix(), Amount: 200, AmountUSD: 12_000_000},
		)
		server := httptest.NewServer(srv)
		defer server.Close()

		clock := t0
		src := newTestWhaleSource(t, server.URL, &clock)
		events := collect(src)
		clock = t0.Add(time.Minute)

		// act
		require.NoError(t, src.pollOnce(context.Background()))

		// assert
		require.Len(t, *events, 1)
		assert.Equal(t, "b2", (*events)[0].Payload["hash"])
	})

	t.Run("a record on the window boundary is emitted once", func(t *testing.T) {
		// arrange
		boundary := t0.Add(time.Minute)
		srv := &whaleServer{}
		srv.respond(0, whaleTransaction{
			ID: "2315712", Blockchain: "ethereum", Symbol: "usdt", Hash: "0xedge",
			Timestamp: boundary.Unix(), Amount: 4_000_000, AmountUSD: 4_000_000,
		})
		server := httptest.NewServer(srv)
		defer server.Close()

		clock := t0
		src := newTestWhaleSource(t, server.URL, &clock)
		events := collect(src)

		// act
		clock = boundary
		require.NoError(t, src.pollOnce(context.Background()))
		clock = boundary.Add(time.Minute)
		require.NoError(t, src.pollOnce(context.Background()))

		// assert
		assert.Len(t, *events, 1)
		assert.Equal(t, boundary.Add(time.Minute), src.Checkpoint())
	})

	t.Run("records sharing a hash with different endpoints are distinct", func(t *testing.T) {
		a := whaleTransaction{Blockchain: "bitcoin", Symbol: "btc", Hash: "h", From: whaleOwner{Address: "x"}, To: whaleOwner{Address: "y"}}
		b := a
		b.To = whaleOwner{Address: "z"}

		assert.NotEqual(t, a.dedupKey(), b.dedupKey())
	})
}

func TestWhaleSourceConfig(t *testing.T) {
	t.Run("missing api key refuses to start", func(t *testing.T) {
		src := NewWhaleSource("whale", WhaleConfig{})

		assert.False(t, src.Connect(context.Background()))
		err := src.StartStreaming(context.Background())
		assert.ErrorIs(t, err, eventmodels.ErrConfig)
		assert.False(t, src.IsRunning())
	})

	t.Run("connect probes the status endpoint", func(t *testing.T) {
		srv := &whaleServer{}
		server := httptest.NewServer(srv)
		defer server.Close()

		src := NewWhaleSource("whale", WhaleConfig{APIKey: "key", BaseURL: server.URL})
		assert.True(t, src.Connect(context.Background()))
		assert.Equal(t, "/v1/status", srv.requests[0].URL.Path)
	})

	t.Run("supported keys", func(t *testing.T) {
		src := NewWhaleSource("whale", WhaleConfig{APIKey: "key"})
		assert.Equal(t, WhaleSupportedSymbols, src.SupportedKeys())
	})
}

func TestWhaleFlowStats(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	srv := &whaleServer{}
	srv.respond(0,
		whaleTransaction{Symbol: "btc", Timestamp: now.Add(-time.Hour).Unix(), AmountUSD: 5_000_000, To: whaleOwner{Address: "34xp4vrocgjym3xr7ycvpfhocnxv4twseo"}},
		whaleTransaction{Symbol: "btc", Timestamp: now.Add(-2 * time.Hour).Unix(), AmountUSD: 2_000_000, From: whaleOwner{Address: "3kzh9qayqhnfbg5jytqd5hkmrmrtnsbiu"}},
		whaleTransaction{Symbol: "eth", Timestamp: now.Add(-time.Hour).Unix(), AmountUSD: 9_000_000},
	)
	server := httptest.NewServer(srv)
	defer server.Close()

	src := NewWhaleSource("whale", WhaleConfig{APIKey: "key", BaseURL: server.URL})
	src.now = func() time.Time { return now }

	stats := src.FlowStats(context.Background(), "btc", 24)
	assert.Equal(t, 2, stats.Transactions)
	assert.Equal(t, 5_000_000.0, stats.InflowUSD)
	assert.Equal(t, 2_000_000.0, stats.OutflowUSD)
	assert.Equal(t, 3_000_000.0, stats.NetFlowUSD)
}

func TestAddressBook(t *testing.T) {
	t.Run("lookups ignore case", func(t *testing.T) {
		book := NewAddressBook(AddressEntry{Address: "0xABCdef", Exchange: "TestEx"})

		exchange, ok := book.Lookup("0xabcDEF")
		assert.True(t, ok)
		assert.Equal(t, "TestEx", exchange)

		_, ok = book.Lookup("")
		assert.False(t, ok)
	})

	t.Run("loads entries from csv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "addresses.csv")
		require.NoError(t, os.WriteFile(path, []byte("address,exchange\n0xFEED,Bitfinex\n,Empty\n0xBEEF,Gemini\n"), 0o644))

		book := NewAddressBook()
		n, err := book.LoadCSV(path)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		exchange, ok := book.Lookup("0xfeed")
		assert.True(t, ok)
		assert.Equal(t, "Bitfinex", exchange)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := NewAddressBook().LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
		assert.Error(t, err)
	})
}
