package notifier

import (
	"context"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type Notification struct {
	Title    string
	Message  string
	Severity eventmodels.Severity
	Fields   map[string]interface{}
}

// Channel delivers a notification over one transport. A channel without
// recipients returns an error wrapping eventmodels.ErrNoRecipients without
// touching the network.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
