package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLogrusLoggerTrace(t *testing.T) {
	sql := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("reports timing and errors to the observer", func(t *testing.T) {
		// arrange
		var gotSlow []bool
		var gotErr []error
		l := NewLogrusLogger(logrus.New(), func(_ time.Duration, slow bool, err error) {
			gotSlow = append(gotSlow, slow)
			gotErr = append(gotErr, err)
		})

		// act
		l.Trace(context.Background(), time.Now(), sql, nil)
		l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
		l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
		l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)

		// assert
		assert.Equal(t, []bool{false, true, false, false}, gotSlow)
		assert.NoError(t, gotErr[0])
		assert.Error(t, gotErr[2])
		assert.NoError(t, gotErr[3])
	})

	t.Run("silent mode still observes but writes nothing", func(t *testing.T) {
		buf := &bytes.Buffer{}
		base := logrus.New()
		base.SetOutput(buf)
		calls := 0
		l := NewLogrusLogger(base, func(time.Duration, bool, error) { calls++ }).LogMode(logger.Silent)

		l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))

		assert.Equal(t, 1, calls)
		assert.Empty(t, buf.String())
	})

	t.Run("slow statements are logged as warnings", func(t *testing.T) {
		buf := &bytes.Buffer{}
		base := logrus.New()
		base.SetOutput(buf)
		l := NewLogrusLogger(base, nil)

		l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)

		assert.Contains(t, buf.String(), "SLOW SQL")
	})
}

func TestSetup(t *testing.T) {
	t.Run("rejects unknown levels", func(t *testing.T) {
		assert.Error(t, Setup("loud", "text"))
	})

	t.Run("applies the level", func(t *testing.T) {
		defer logrus.SetLevel(logrus.InfoLevel)

		require.NoError(t, Setup("debug", "json"))
		assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
		defer logrus.SetFormatter(&logrus.TextFormatter{})
	})
}
