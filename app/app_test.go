package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeServer struct {
	startErr error
	stopped  bool
	mu       sync.Mutex
}

func (s *fakeServer) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var order []string
	srv := &fakeServer{}
	a := New("test", "v0", discard,
		WithServer(srv),
		WithHook(Hook{
			Name:    "pool",
			OnStart: func(context.Context) error { order = append(order, "start"); return nil },
			OnStop:  func(context.Context) error { order = append(order, "stop"); return nil },
		}),
		WithCleanup(func() { order = append(order, "cleanup-1") }),
		WithCleanup(func() { order = append(order, "cleanup-2") }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.True(t, srv.stopped)
	assert.Equal(t, []string{"start", "stop", "cleanup-2", "cleanup-1"}, order)
}

func TestRunReturnsServerError(t *testing.T) {
	boom := errors.New("listen failed")
	other := &fakeServer{}
	a := New("test", "v0", discard, WithServer(&fakeServer{startErr: boom}, other))

	err := a.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, other.stopped)
}

func TestLifecycleStopsOnlyStarted(t *testing.T) {
	var stopped []string
	lc := NewLifecycle(discard)
	lc.Append(Hook{Name: "a", OnStop: func(context.Context) error { stopped = append(stopped, "a"); return nil }})
	lc.Append(Hook{Name: "b", OnStart: func(context.Context) error { return errors.New("fail") },
		OnStop: func(context.Context) error { stopped = append(stopped, "b"); return nil }})

	require.Error(t, lc.Start(context.Background()))
	require.NoError(t, lc.Stop(context.Background()))
	assert.Equal(t, []string{"a"}, stopped)
}
