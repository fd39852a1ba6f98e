package eventsources

import (
	"context"
	"time"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

// Handler receives events from a Source. Returned errors are logged by the
// Source and never stop delivery to other handlers.
type Handler func(ctx context.Context, ev eventmodels.Event) error

// SyncHandler adapts a plain callback to a Handler.
func SyncHandler(fn func(ev eventmodels.Event)) Handler {
	return func(_ context.Context, ev eventmodels.Event) error {
		fn(ev)
		return nil
	}
}

type Source interface {
	Name() string
	Categories() []eventmodels.Category

	// Connect prepares the upstream session. It is idempotent and reports
	// transport failures as false rather than an error.
	Connect(ctx context.Context) bool
	Disconnect(ctx context.Context) bool

	// StartStreaming launches the producer loop. It returns
	// eventmodels.ErrAlreadyRunning if the loop is active and
	// eventmodels.ErrConfig if the source is missing required settings.
	StartStreaming(ctx context.Context) error

	// StopStreaming signals the producer loop to exit. No handler is invoked
	// after it returns. It must not be called from inside a Handler.
	StopStreaming()

	GetHistorical(ctx context.Context, key string, start, end time.Time, limit int) []eventmodels.Event
	SupportedKeys() []string

	Subscribe(name string, h Handler) bool
	Unsubscribe(name string) bool

	HealthCheck() eventmodels.SourceHealth
}

// KeySubscriber is implemented by sources that can add or drop stream keys
// while running.
type KeySubscriber interface {
	SubscribeKey(ctx context.Context, key string) error
	UnsubscribeKey(ctx context.Context, key string) error
	SubscribedKeys() []string
}

// ErrorReporter is implemented by sources that keep the error behind their
// last failed Connect.
type ErrorReporter interface {
	LastError() error
}
