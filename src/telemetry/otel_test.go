package telemetry

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestShutdownChain(t *testing.T) {
	t.Run("runs every cleanup once and joins errors", func(t *testing.T) {
		// arrange
		errA := errors.New("trace exporter unreachable")
		errB := errors.New("metric exporter unreachable")
		calls := []string{}
		chain := &shutdownChain{}
		chain.add(func(context.Context) error { calls = append(calls, "a"); return errA })
		chain.add(func(context.Context) error { calls = append(calls, "b"); return nil })
		chain.add(func(context.Context) error { calls = append(calls, "c"); return errB })

		// act
		err := chain.shutdown(context.Background())
		again := chain.shutdown(context.Background())

		// assert
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
		assert.NoError(t, again)
		assert.Equal(t, []string{"a", "b", "c"}, calls)
	})
}

func TestInstallLogHook(t *testing.T) {
	t.Run("hooks info and above", func(t *testing.T) {
		logger := log.New()

		InstallLogHook(logger)

		assert.Len(t, logger.Hooks[log.InfoLevel], 1)
		assert.Len(t, logger.Hooks[log.ErrorLevel], 1)
		assert.Empty(t, logger.Hooks[log.DebugLevel])
	})
}
