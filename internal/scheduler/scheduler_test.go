package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_updater/internal/domain"
)

type runnerFunc func(ctx context.Context) (*domain.RunStat, error)

func (f runnerFunc) Run(ctx context.Context) (*domain.RunStat, error) {
	return f(ctx)
}

func TestScheduler_RunsImmediatelyAndOnEveryTick(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(ctx context.Context) (*domain.RunStat, error) {
		n := calls.Add(1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		if n == 2 {
			return nil, errors.New("no sources to update")
		}
		return &domain.RunStat{SourcesTotal: 1}, nil
	})

	s := NewScheduler(runner, 20*time.Millisecond, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
