package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events on "<prefix>.<category>[.<key>]".
type NATSSink struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

func ConnectNATS(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("market-sentinel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("ConnectNATS: %v: %w", err, eventmodels.ErrTransport)
	}

	sink := NewNATSSink(nc, prefix)
	sink.conn = nc
	return sink, nil
}

func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "sentinel.events"
	}

	return &NATSSink{pub: pub, prefix: prefix}
}

func (s *NATSSink) Name() string {
	return "nats-sink"
}

// Subject returns the subject an event is published on. Key characters that
// are special to NATS are replaced with underscores.
func (s *NATSSink) Subject(ev eventmodels.Event) string {
	subject := s.prefix + "." + string(ev.Category)
	if ev.Key == "" {
		return subject
	}

	return subject + "." + subjectToken.Replace(ev.Key)
}

var subjectToken = strings.NewReplacer(".", "_", "/", "_", " ", "_", "*", "_", ">", "_")

func (s *NATSSink) HandleEvent(_ context.Context, ev eventmodels.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("NATSSink.HandleEvent: failed to marshal event: %w", err)
	}

	if err := s.pub.Publish(s.Subject(ev), data); err != nil {
		return fmt.Errorf("NATSSink.HandleEvent: %v: %w", err, eventmodels.ErrTransport)
	}

	return nil
}

func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}

	return s.conn.Drain()
}
