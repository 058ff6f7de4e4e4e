package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/config"
)

type fakeReminder struct {
	mu    sync.Mutex
	calls []time.Duration
	limit int
	sent  int
	err   error
	ran   chan struct{}
}

func (f *fakeReminder) RemindStale(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, olderThan)
	f.limit = limit
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- struct{}{}
	}
	return f.sent, f.err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var cfg = config.ReminderConfig{Schedule: "@every 1h", StaleAfter: 72 * time.Hour, BatchSize: 25}

func TestStart_RunsImmediately(t *testing.T) {
	rem := &fakeReminder{sent: 3, ran: make(chan struct{}, 1)}
	s := New(rem, cfg, slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-rem.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder pass did not run on start")
	}

	rem.mu.Lock()
	defer rem.mu.Unlock()
	assert.Equal(t, []time.Duration{72 * time.Hour}, rem.calls)
	assert.Equal(t, 25, rem.limit)
}

func TestStart_BadSpec(t *testing.T) {
	bad := cfg
	bad.Schedule = "every tuesday"
	s := New(&fakeReminder{}, bad, slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))
	assert.Error(t, s.Start(context.Background()))
}

func TestRunReminders_Logs(t *testing.T) {
	var logs syncBuffer
	rem := &fakeReminder{sent: 1, err: errors.New("redis down")}
	s := New(rem, cfg, slog.New(slog.NewTextHandler(&logs, nil)))

	s.runReminders(context.Background())
	assert.Contains(t, logs.String(), "reminder cycle failed")
	assert.Contains(t, logs.String(), "redis down")

	rem.err = nil
	s.runReminders(context.Background())
	assert.Contains(t, logs.String(), "reminder cycle complete")
}

func TestRunReminders_SkipsWhenCancelled(t *testing.T) {
	rem := &fakeReminder{}
	s := New(rem, cfg, slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runReminders(ctx)
	assert.Empty(t, rem.calls)
}

type blockingReminder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingReminder) RemindStale(context.Context, time.Duration, int) (int, error) {
	close(b.started)
	<-b.release
	return 0, nil
}

func TestStop_WaitsForStartupPass(t *testing.T) {
	rem := &blockingReminder{started: make(chan struct{}), release: make(chan struct{})}
	s := New(rem, cfg, slog.New(slog.NewTextHandler(&syncBuffer{}, nil)))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-rem.started:
	case <-time.After(2 * time.Second):
		t.Fatal("startup pass did not begin")
	}

	done := s.Stop().Done()
	select {
	case <-done:
		t.Fatal("Stop finished while the startup pass was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(rem.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not complete after the pass returned")
	}
}

type panickingReminder struct{}

func (panickingReminder) RemindStale(context.Context, time.Duration, int) (int, error) {
	panic("boom")
}

func TestStart_RecoversStartupPanic(t *testing.T) {
	var logs syncBuffer
	s := New(panickingReminder{}, cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-s.Stop().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not complete")
	}
	assert.Contains(t, logs.String(), "boom")
}
