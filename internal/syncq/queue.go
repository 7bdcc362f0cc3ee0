package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// Command is a write that could not reach the server. IdempotencyKey is
// sent again on replay so the server applies it at most once.
type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".sq")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

type Sender interface {
	Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error)
}

type Outcome struct {
	Replayed  int
	Rejected  []Rejection
	Remaining []Command
}

type Rejection struct {
	Command Command
	Err     error
}

// Replay sends queued commands in order. A command the server rejects is
// dropped. The first transport failure stops the replay and keeps that
// command and everything after it, since rounds must arrive in order.
func Replay(ctx context.Context, s Sender, commands []Command, permanent func(error) bool) Outcome {
	out := Outcome{Remaining: []Command{}}
	for i, cmd := range commands {
		_, err := s.Do(ctx, cmd.Method, cmd.Path, cmd.Body, cmd.IdempotencyKey)
		switch {
		case err == nil:
			out.Replayed++
		case permanent(err):
			out.Rejected = append(out.Rejected, Rejection{Command: cmd, Err: err})
		default:
			out.Remaining = append(out.Remaining, commands[i:]...)
			return out
		}
	}
	return out
}
