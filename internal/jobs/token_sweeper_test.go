package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDeleter counts sweep calls and returns a scripted result.
type fakeDeleter struct {
	mu      sync.Mutex
	calls   int
	deleted int64
	err     error
}

func (f *fakeDeleter) DeleteExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.deleted, f.err
}

func (f *fakeDeleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTokenSweeper_SweepsImmediatelyOnStart(t *testing.T) {
	deleter := &fakeDeleter{deleted: 3}
	sweeper := NewTokenSweeper(deleter, time.Hour)

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for deleter.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not run an initial sweep")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTokenSweeper_SweepsOnInterval(t *testing.T) {
	deleter := &fakeDeleter{}
	sweeper := NewTokenSweeper(deleter, 20*time.Millisecond)

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for deleter.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 sweeps, got %d", deleter.callCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTokenSweeper_StopHaltsSweeping(t *testing.T) {
	deleter := &fakeDeleter{}
	sweeper := NewTokenSweeper(deleter, 10*time.Millisecond)

	sweeper.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for deleter.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sweeper.Stop()
	time.Sleep(50 * time.Millisecond)
	after := deleter.callCount()
	time.Sleep(100 * time.Millisecond)

	if got := deleter.callCount(); got != after {
		t.Errorf("sweeps continued after Stop: %d -> %d", after, got)
	}
}

func TestTokenSweeper_SurvivesSweepErrors(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("db down")}
	sweeper := NewTokenSweeper(deleter, 10*time.Millisecond)

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for deleter.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper stopped after an error")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewTokenSweeper_DefaultsInterval(t *testing.T) {
	sweeper := NewTokenSweeper(&fakeDeleter{}, 0)
	if sweeper.interval != 10*time.Minute {
		t.Errorf("interval = %v, want 10m default", sweeper.interval)
	}
}
