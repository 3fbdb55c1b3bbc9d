package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyQueue(t *testing.T) {
	q := New(t.TempDir())
	got, err := q.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty queue, got %d", len(got))
	}
}

func TestPushKeepsOrder(t *testing.T) {
	q := New(t.TempDir())
	for _, key := range []string{"a", "b", "c"} {
		if err := q.Push(Command{Method: "POST", Path: "/v1/x", IdempotencyKey: key}); err != nil {
			t.Fatalf("push %s: %v", key, err)
		}
	}
	got, err := q.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 || got[0].IdempotencyKey != "a" || got[2].IdempotencyKey != "c" {
		t.Fatalf("unexpected queue: %+v", got)
	}
	if got[0].QueuedAt.IsZero() {
		t.Fatalf("queued_at not stamped")
	}
}

func TestReplayKeepsFailures(t *testing.T) {
	dir := t.TempDir()
	q := New(dir)
	body, _ := json.Marshal(map[string]any{"symbol": "BTC"})
	_ = q.Push(Command{Method: "POST", Path: "/ok", Body: body, IdempotencyKey: "1"})
	_ = q.Push(Command{Method: "POST", Path: "/fail", IdempotencyKey: "2"})
	_ = q.Push(Command{Method: "POST", Path: "/ok", IdempotencyKey: "3"})

	var seen []string
	replayed, remaining, err := q.Replay(context.Background(), func(_ context.Context, c Command) error {
		seen = append(seen, c.IdempotencyKey)
		if c.Path == "/fail" {
			return errors.New("offline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != 2 || len(remaining) != 1 || remaining[0].IdempotencyKey != "2" {
		t.Fatalf("replayed=%d remaining=%+v", replayed, remaining)
	}
	if len(seen) != 3 || seen[0] != "1" {
		t.Fatalf("unexpected send order: %v", seen)
	}

	left, _ := q.Load()
	if len(left) != 1 || left[0].Path != "/fail" {
		t.Fatalf("unexpected persisted queue: %+v", left)
	}
}

func TestReplayDrainedQueueRemovesFile(t *testing.T) {
	dir := t.TempDir()
	q := New(dir)
	_ = q.Push(Command{Method: "POST", Path: "/ok", IdempotencyKey: "1"})
	if _, _, err := q.Replay(context.Background(), func(context.Context, Command) error { return nil }); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "queue.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected queue file removed, stat err=%v", err)
	}
}

func TestReplayStopsOnCanceledContext(t *testing.T) {
	q := New(t.TempDir())
	_ = q.Push(Command{Path: "/a", IdempotencyKey: "1"})
	_ = q.Push(Command{Path: "/b", IdempotencyKey: "2"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	replayed, remaining, err := q.Replay(ctx, func(context.Context, Command) error {
		t.Fatal("send should not be called")
		return nil
	})
	if err != nil || replayed != 0 || len(remaining) != 2 {
		t.Fatalf("replayed=%d remaining=%d err=%v", replayed, len(remaining), err)
	}
}
