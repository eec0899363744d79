package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	t.Run("runs jobs", func(t *testing.T) {
		t.Parallel()
		var runs atomic.Int32
		c, err := newScheduler(context.Background(), logger.Discard(), job{
			name:     "tick",
			schedule: "@every 10ms",
			timeout:  time.Second,
			run: func(context.Context) error {
				runs.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
		c.Start()
		defer c.Stop()

		assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("logs failures", func(t *testing.T) {
		t.Parallel()
		var buf syncBuffer
		log := slog.New(slog.NewTextHandler(&buf, nil))
		c, err := newScheduler(context.Background(), log, job{
			name:     "purge",
			schedule: "@every 10ms",
			timeout:  time.Second,
			run:      func(context.Context) error { return errors.New("store unavailable") },
		})
		require.NoError(t, err)
		c.Start()
		defer c.Stop()

		assert.Eventually(t, func() bool {
			return bytes.Contains(buf.Bytes(), []byte("store unavailable"))
		}, 3*time.Second, 10*time.Millisecond)
	})

	t.Run("disabled job", func(t *testing.T) {
		t.Parallel()
		c, err := newScheduler(context.Background(), logger.Discard(), job{name: "noop", schedule: "off"})
		require.NoError(t, err)
		assert.Empty(t, c.Entries())
	})

	t.Run("bad schedule", func(t *testing.T) {
		t.Parallel()
		_, err := newScheduler(context.Background(), logger.Discard(), job{name: "broken", schedule: "every day"})
		assert.Error(t, err)
	})
}
