package eventsources

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

type stubSource struct {
	*BaseSource
	connectOK bool
	startErr  error
	started   bool
	stopped   bool
}

func newStubSource(name string, connectOK bool, startErr error) *stubSource {
	return &stubSource{
		BaseSource: NewBaseSource(name, eventmodels.CategoryMarket),
		connectOK:  connectOK,
		startErr:   startErr,
	}
}

func (s *stubSource) Connect(context.Context) bool    { return s.connectOK }
func (s *stubSource) Disconnect(context.Context) bool { s.stopped = true; return true }
func (s *stubSource) SupportedKeys() []string         { return nil }

func (s *stubSource) StartStreaming(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return s.startLoop(ctx, func(ctx context.Context) { <-ctx.Done() })
}

func (s *stubSource) GetHistorical(context.Context, string, time.Time, time.Time, int) []eventmodels.Event {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Run("rejects duplicate names", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(newStubSource("a", true, nil)))
		assert.Error(t, r.Register(newStubSource("a", true, nil)))
	})

	t.Run("one failing source does not block the others", func(t *testing.T) {
		// arrange
		r := NewRegistry()
		offline := newStubSource("offline", false, nil)
		misconfigured := newStubSource("misconfigured", true, eventmodels.ErrConfig)
		healthy := newStubSource("healthy", true, nil)
		require.NoError(t, r.Register(offline))
		require.NoError(t, r.Register(misconfigured))
		require.NoError(t, r.Register(healthy))

		// act
		failures := r.StartAll(context.Background())

		// assert
		assert.Len(t, failures, 2)
		assert.ErrorIs(t, failures["offline"], eventmodels.ErrTransport)
		assert.ErrorIs(t, failures["misconfigured"], eventmodels.ErrConfig)
		assert.True(t, healthy.started)

		health := r.HealthCheckAll()
		require.Len(t, health, 3)
		assert.Equal(t, "offline", health[0].Name)
		assert.True(t, health[2].Running)

		r.StopAll(context.Background())
		assert.False(t, healthy.IsRunning())
		assert.True(t, healthy.stopped)
	})

	t.Run("connect failures keep the source's own cause", func(t *testing.T) {
		tests := []struct {
			name      string
			cause     error
			isConfig  bool
			wantInMsg string
		}{
			{name: "config", cause: fmt.Errorf("missing api key: %w", eventmodels.ErrConfig), isConfig: true, wantInMsg: "missing api key"},
			{name: "transport", cause: fmt.Errorf("dial: %w", eventmodels.ErrTransport), wantInMsg: "dial"},
			{name: "unclassified", cause: errors.New("handshake rejected"), wantInMsg: "handshake rejected"},
			{name: "none recorded"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				// arrange
				r := NewRegistry()
				src := newStubSource("src", false, nil)
				src.setLastError(tc.cause)
				require.NoError(t, r.Register(src))

				// act
				failures := r.StartAll(context.Background())

				// assert
				err := failures["src"]
				require.Error(t, err)
				assert.Equal(t, tc.isConfig, errors.Is(err, eventmodels.ErrConfig))
				assert.Equal(t, !tc.isConfig, errors.Is(err, eventmodels.ErrTransport))
				assert.Contains(t, err.Error(), tc.wantInMsg)
			})
		}
	})

	t.Run("unregister removes the source", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(newStubSource("a", true, nil)))

		_, ok := r.Unregister("a")
		assert.True(t, ok)
		_, ok = r.Get("a")
		assert.False(t, ok)
		assert.Empty(t, r.List())
	})
}
