package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestSpawnAndStopSleepProcess(t *testing.T) {
	s := New(nil)
	err := s.Spawn(context.Background(), "t1", []string{"sleep", "5"}, nil, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if !s.IsRunning("t1") {
		t.Fatal("expected t1 to be running")
	}
	if err := s.Stop("t1", time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning("t1") {
		t.Fatal("expected t1 to be stopped")
	}
}

func TestSpawnImmediateExitReportsFailure(t *testing.T) {
	s := New(nil)
	err := s.Spawn(context.Background(), "bad", []string{"false"}, nil, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected error for a process that exits immediately")
	}
}

func TestStopUnknownIDIsNoop(t *testing.T) {
	s := New(nil)
	if err := s.Stop("nonexistent", time.Second); err != nil {
		t.Fatalf("Stop on unknown id should be a no-op, got %v", err)
	}
}

func TestRingBufferCapsOutput(t *testing.T) {
	rb := newRingBuffer(8)
	rb.Write([]byte("0123456789"))
	if got := rb.String(); len(got) != 8 {
		t.Fatalf("ringBuffer len = %d, want 8", len(got))
	}
	if got := rb.String(); got != "23456789" {
		t.Fatalf("ringBuffer = %q, want 23456789", got)
	}
}
