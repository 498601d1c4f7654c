package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSubStore struct {
	mu     sync.Mutex
	passes []time.Time
	first  chan struct{}
	once   sync.Once

	expireN int64
	err     error
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{first: make(chan struct{})}
}

func (s *fakeSubStore) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	s.passes = append(s.passes, now)
	s.mu.Unlock()
	s.once.Do(func() { close(s.first) })
	return s.expireN, s.err
}

func (s *fakeSubStore) passTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.passes...)
}

func TestSweep_UsesInjectedClock(t *testing.T) {
	store := newFakeSubStore()
	store.expireN = 3
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	sweeper := NewExpirySweeper(store, time.Hour)
	sweeper.now = func() time.Time { return now }

	sweeper.Sweep(context.Background())

	passes := store.passTimes()
	if len(passes) != 1 {
		t.Fatalf("expected one pass, got %d", len(passes))
	}
	if !passes[0].Equal(now) {
		t.Errorf("pass cutoff = %v, want injected clock %v", passes[0], now)
	}
}

func TestSweep_ErrorDoesNotPropagate(t *testing.T) {
	store := newFakeSubStore()
	store.err = errors.New("store down")
	sweeper := NewExpirySweeper(store, time.Hour)

	// Must only log; the next pass stays scheduled.
	sweeper.Sweep(context.Background())

	if len(store.passTimes()) != 1 {
		t.Fatalf("expected the failing pass to have run")
	}
}

func TestStart_RunsImmediatePassAndStopsOnCancel(t *testing.T) {
	store := newFakeSubStore()
	sweeper := NewExpirySweeper(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Start(ctx) }()

	// The startup pass runs before the first tick.
	select {
	case <-store.first:
	case <-time.After(2 * time.Second):
		t.Fatal("startup pass never ran")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

func TestNewExpirySweeper_DefaultsInterval(t *testing.T) {
	sweeper := NewExpirySweeper(newFakeSubStore(), 0)
	if sweeper.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h default", sweeper.interval)
	}
}
