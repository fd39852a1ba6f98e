package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

const DefaultTimeout = 30 * time.Second

type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel
	timeout  time.Duration
	printer  *message.Printer
}

func NewDispatcher(timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := &Dispatcher{
		channels: make(map[string]Channel),
		timeout:  timeout,
		printer:  message.NewPrinter(language.English),
	}

	for _, ch := range channels {
		d.AddChannel(ch)
	}

	return d
}

func (d *Dispatcher) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.channels[ch.Name()] = ch
	log.Infof("added notification channel: %s", ch.Name())
}

func (d *Dispatcher) RemoveChannel(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, found := d.channels[name]; !found {
		return false
	}

	delete(d.channels, name)
	log.Infof("removed notification channel: %s", name)
	return true
}

func (d *Dispatcher) ListChannels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch sends n to each named channel concurrently. An empty list means
// every configured channel. Unknown channels and failed sends map to false.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, channels []string) map[string]bool {
	if len(channels) == 0 {
		channels = d.ListChannels()
	}

	results := make(map[string]bool, len(channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range channels {
		d.mu.RLock()
		ch, found := d.channels[name]
		d.mu.RUnlock()

		if !found {
			log.Warnf("unknown notification channel: %s", name)
			results[name] = false
			continue
		}

		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()

			err := d.send(ctx, ch, n)
			if err != nil {
				log.WithField("channel", name).Errorf("failed to send %q: %v", n.Title, err)
			} else {
				log.WithField("channel", name).Infof("sent %q", n.Title)
			}

			mu.Lock()
			results[name] = err == nil
			mu.Unlock()
		}(name, ch)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v: %w", r, eventmodels.ErrDelivery)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return ch.Send(ctx, n)
}

func (d *Dispatcher) SendAlert(ctx context.Context, alert *eventmodels.Alert, channels []string) map[string]bool {
	return d.Dispatch(ctx, d.AlertNotification(alert), channels)
}

func (d *Dispatcher) AlertNotification(alert *eventmodels.Alert) Notification {
	msg := d.printer.Sprintf("Alert details:\n- Name: %s\n- Severity: %s\n- Metric: %s\n- Value: %.2f\n- Threshold: %.2f\n- Triggered at: %s\n- Description: %s",
		alert.Title,
		alert.Severity,
		alert.MetricName,
		alert.MetricValue,
		alert.Threshold,
		alert.TriggeredAt.UTC().Format("2006-01-02 15:04:05"),
		alert.Message,
	)

	return Notification{
		Title:    fmt.Sprintf("🚨 %s", alert.Title),
		Message:  msg,
		Severity: alert.Severity,
		Fields: map[string]interface{}{
			"alert_id": alert.ID.String(),
		},
	}
}

// SendSystemNotification broadcasts to every configured channel.
func (d *Dispatcher) SendSystemNotification(ctx context.Context, eventType, msg string, severity eventmodels.Severity) map[string]bool {
	n := Notification{
		Title:    fmt.Sprintf("📊 System notification - %s", eventType),
		Message:  msg,
		Severity: severity,
		Fields: map[string]interface{}{
			"event_type": eventType,
		},
	}

	return d.Dispatch(ctx, n, nil)
}

// TestChannel sends a fixed test message through one channel.
func (d *Dispatcher) TestChannel(ctx context.Context, name string) (bool, error) {
	d.mu.RLock()
	ch, found := d.channels[name]
	d.mu.RUnlock()

	if !found {
		return false, fmt.Errorf("Dispatcher.TestChannel: %s: %w", name, eventmodels.ErrUnknownChannel)
	}

	if err := d.send(ctx, ch, Notification{Title: "Notification channel test", Message: "This is a test message", Severity: eventmodels.SeverityLow}); err != nil {
		return false, fmt.Errorf("Dispatcher.TestChannel: %s: %w", name, err)
	}

	return true, nil
}
