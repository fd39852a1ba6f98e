package eventsources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/utils"
)

type Feed struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords"`
}

var DefaultFeeds = []Feed{
	{
		Name:     "coindesk",
		URL:      "https://www.coindesk.com/arc/outboundfeeds/rss/",
		Keywords: []string{"bitcoin", "ethereum", "crypto", "blockchain"},
	},
	{
		Name:     "cointelegraph",
		URL:      "https://cointelegraph.com/rss",
		Keywords: []string{"bitcoin", "ethereum", "cryptocurrency", "defi"},
	},
	{
		Name:     "decrypt",
		URL:      "https://decrypt.co/feed",
		Keywords: []string{"bitcoin", "ethereum", "web3", "nft"},
	},
}

type NewsConfig struct {
	Feeds          []Feed
	PollInterval   time.Duration
	ErrorWait      time.Duration
	HTTPTimeout    time.Duration
	RelevanceFloor float64
	DedupSize      int
}

func (c *NewsConfig) setDefaults() {
	if c.Feeds == nil {
		c.Feeds = DefaultFeeds
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 300 * time.Second
	}
	if c.ErrorWait <= 0 {
		c.ErrorWait = 60 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.RelevanceFloor <= 0 {
		c.RelevanceFloor = 0.3
	}
	if c.DedupSize <= 0 {
		c.DedupSize = 2048
	}
}

// NewsSource polls RSS/Atom feeds and emits scored articles newer than each
// feed's watermark.
type NewsSource struct {
	*BaseSource
	cfg    NewsConfig
	client *http.Client
	seen   *lru.Cache[string, struct{}]

	mu        sync.Mutex
	feeds     []Feed
	watermark map[string]time.Time
	connected bool
}

func NewNewsSource(name string, cfg NewsConfig) (*NewsSource, error) {
	cfg.setDefaults()

	seen, err := lru.New[string, struct{}](cfg.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("NewNewsSource: failed to create dedup cache: %w", err)
	}

	feeds := make([]Feed, len(cfg.Feeds))
	copy(feeds, cfg.Feeds)

	return &NewsSource{
		BaseSource: NewBaseSource(name, eventmodels.CategoryNews),
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		seen:       seen,
		feeds:      feeds,
		watermark:  make(map[string]time.Time),
	}, nil
}

func (s *NewsSource) Connect(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	log.WithField("source", s.Name()).Infof("connected, %d feeds configured", len(s.feeds))
	return true
}

func (s *NewsSource) Disconnect(ctx context.Context) bool {
	s.StopStreaming()
	s.waitLoop()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	return true
}

func (s *NewsSource) StartStreaming(ctx context.Context) error {
	if len(s.Feeds()) == 0 {
		return fmt.Errorf("NewsSource.StartStreaming: no feeds configured: %w", eventmodels.ErrConfig)
	}

	return s.startLoop(ctx, s.run)
}

// GetHistorical is not supported by RSS feeds and always returns an empty slice.
func (s *NewsSource) GetHistorical(ctx context.Context, key string, start, end time.Time, limit int) []eventmodels.Event {
	return []eventmodels.Event{}
}

func (s *NewsSource) SupportedKeys() []string {
	return []string{}
}

func (s *NewsSource) Feeds() []Feed {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Feed, len(s.feeds))
	copy(out, s.feeds)
	return out
}

// AddFeed registers or replaces a feed by name.
func (s *NewsSource) AddFeed(feed Feed) error {
	if feed.Name == "" || feed.URL == "" {
		return fmt.Errorf("NewsSource.AddFeed: name and url are required: %w", eventmodels.ErrConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.feeds {
		if f.Name == feed.Name {
			s.feeds[i] = feed
			return nil
		}
	}

	s.feeds = append(s.feeds, feed)
	log.WithField("source", s.Name()).Infof("added feed %s", feed.Name)
	return nil
}

func (s *NewsSource) RemoveFeed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.feeds {
		if f.Name == name {
			s.feeds = append(s.feeds[:i], s.feeds[i+1:]...)
			delete(s.watermark, name)
			return true
		}
	}

	return false
}

func (s *NewsSource) Watermark(feed string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watermark[feed]
}

func (s *NewsSource) run(ctx context.Context) {
	for {
		wait := s.cfg.PollInterval
		if err := s.pollOnce(ctx); err != nil {
			log.WithField("source", s.Name()).Errorf("poll failed: %v", err)
			s.setLastError(err)
			wait = s.cfg.ErrorWait
		} else {
			s.setLastError(nil)
		}

		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

// pollOnce fetches every feed concurrently, then emits per feed in
// configuration order. It fails only when every feed failed.
func (s *NewsSource) pollOnce(ctx context.Context) error {
	feeds := s.Feeds()
	results := make([][]eventmodels.Event, len(feeds))
	errs := make([]error, len(feeds))

	wg := sync.WaitGroup{}
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed Feed) {
			defer wg.Done()
			results[i], errs[i] = s.fetchFeed(ctx, feed)
		}(i, feed)
	}
	wg.Wait()

	failed := 0
	for i, feed := range feeds {
		if errs[i] != nil {
			failed++
			log.WithField("source", s.Name()).Warnf("feed %s: %v", feed.Name, errs[i])
			continue
		}

		for _, ev := range results[i] {
			if ctx.Err() != nil {
				return nil
			}
			s.Notify(ctx, ev)
		}
	}

	if len(feeds) > 0 && failed == len(feeds) {
		return fmt.Errorf("all %d feeds failed: %w", failed, eventmodels.ErrTransport)
	}

	return nil
}

func (s *NewsSource) fetchFeed(ctx context.Context, feed Feed) ([]eventmodels.Event, error) {
	body, err := utils.Fetch(ctx, s.client, feed.URL)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse: %v: %w", err, eventmodels.ErrData)
	}

	last := s.Watermark(feed.Name)
	newest := last

	var events []eventmodels.Event
	for _, item := range parsed.Items {
		published := itemTime(item)
		if published == nil || !published.After(last) {
			continue
		}

		if published.After(newest) {
			newest = *published
		}

		if id := itemID(item); id != "" {
			if seen, _ := s.seen.ContainsOrAdd(id, struct{}{}); seen {
				continue
			}
		}

		ev, ok := s.toEvent(feed, item, *published)
		if !ok {
			continue
		}
		events = append(events, ev)
	}

	s.mu.Lock()
	if newest.After(s.watermark[feed.Name]) {
		s.watermark[feed.Name] = newest
	}
	s.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events, nil
}

func (s *NewsSource) toEvent(feed Feed, item *gofeed.Item, published time.Time) (eventmodels.Event, bool) {
	content := item.Description
	if content == "" {
		content = item.Content
	}

	text := item.Title + " " + content
	relevance := RelevanceScore(text, feed.Keywords)
	if relevance < s.cfg.RelevanceFloor {
		return eventmodels.Event{}, false
	}

	author := ""
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	ev := eventmodels.NewEvent(s.Name(), eventmodels.CategoryNews, feed.Name, published.UTC(), map[string]interface{}{
		"title":           strings.TrimSpace(item.Title),
		"content":         strings.TrimSpace(content),
		"url":             item.Link,
		"author":          author,
		"published_at":    published.UTC(),
		"relevance_score": relevance,
		"sentiment_score": SentimentScore(text),
		"keywords":        ExtractKeywords(text),
	})

	return ev.WithMetadata("source_name", feed.Name), true
}

func itemTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}

	return item.UpdatedParsed
}

func itemID(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}

	return item.GUID
}
