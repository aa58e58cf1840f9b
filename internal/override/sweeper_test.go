package override

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSweeper_RunsSweeps(t *testing.T) {
	var calls atomic.Int64
	s := NewSweeper(10*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("sweep was not called within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSweeper_StartTwice(t *testing.T) {
	s := NewSweeper(10*time.Millisecond, func(context.Context) (int, error) { return 0, nil })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail while running")
	}
}

func TestSweeper_StopIdempotent(t *testing.T) {
	s := NewSweeper(10*time.Millisecond, func(context.Context) (int, error) { return 0, nil })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
	s.Stop() // no-op

	// The sweeper can be restarted after a stop.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	s.Stop()
}

func TestNewSweeper_ClampsInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second, 5 * time.Second} {
		s := NewSweeper(interval)
		if s.interval != DefaultTickInterval {
			t.Errorf("NewSweeper(%v) interval = %v, want %v", interval, s.interval, DefaultTickInterval)
		}
	}
	s := NewSweeper(250 * time.Millisecond)
	if s.interval != 250*time.Millisecond {
		t.Errorf("valid interval clamped to %v", s.interval)
	}
}
