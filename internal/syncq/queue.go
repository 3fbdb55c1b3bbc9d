// Package syncq keeps writes that could not reach the API so they can be
// replayed later with the same idempotency keys.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

type Command struct {
	Method         string          `json:"method"`
	Path           string          `json:"path"`
	Body           json.RawMessage `json:"body,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Label          string          `json:"label,omitempty"`
	QueuedAt       time.Time       `json:"queued_at"`
}

// Queue is a JSON file of pending commands, oldest first.
type Queue struct {
	path string
}

func New(dir string) *Queue {
	return &Queue{path: filepath.Join(dir, "queue.json")}
}

func (q *Queue) Load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return []Command{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Save(commands []Command) error {
	if len(commands) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

func (q *Queue) Push(cmd Command) error {
	commands, err := q.Load()
	if err != nil {
		return err
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands = append(commands, cmd)
	return q.Save(commands)
}

// Replay sends every queued command in order. Commands whose send fails stay
// queued; replay stops early when ctx is done.
func (q *Queue) Replay(ctx context.Context, send func(context.Context, Command) error) (replayed int, remaining []Command, err error) {
	commands, err := q.Load()
	if err != nil {
		return 0, nil, err
	}
	remaining = make([]Command, 0, len(commands))
	for i, c := range commands {
		if ctx.Err() != nil {
			remaining = append(remaining, commands[i:]...)
			break
		}
		if err := send(ctx, c); err != nil {
			remaining = append(remaining, c)
			continue
		}
		replayed++
	}
	if err := q.Save(remaining); err != nil {
		return replayed, remaining, err
	}
	return replayed, remaining, nil
}
