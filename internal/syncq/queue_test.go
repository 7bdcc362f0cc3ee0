package syncq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected")

type fakeSender struct {
	fail map[string]error
	sent []string
}

func (f *fakeSender) Do(_ context.Context, _, path string, _ map[string]any, idem string) (map[string]any, error) {
	f.sent = append(f.sent, idem)
	return map[string]any{"ok": true}, f.fail[idem]
}

func isRejected(err error) bool {
	return errors.Is(err, errRejected)
}

func TestQueueRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	queue, err := Load()
	require.NoError(t, err)
	assert.Empty(t, queue)

	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/games/g/rounds", IdempotencyKey: "a"}))
	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/games/g/rounds", IdempotencyKey: "b",
		Body: map[string]any{"intents": []any{}}}))

	queue, err = Load()
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "a", queue[0].IdempotencyKey)
	assert.Contains(t, queue[1].Body, "intents")

	require.NoError(t, Save(nil))
	queue, err = Load()
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestReplayAllSucceed(t *testing.T) {
	s := &fakeSender{}
	out := Replay(context.Background(), s, []Command{{IdempotencyKey: "a"}, {IdempotencyKey: "b"}}, isRejected)
	assert.Equal(t, 2, out.Replayed)
	assert.Empty(t, out.Remaining)
	assert.Empty(t, out.Rejected)
	assert.Equal(t, []string{"a", "b"}, s.sent)
}

func TestReplayDropsRejected(t *testing.T) {
	s := &fakeSender{fail: map[string]error{"b": errRejected}}
	out := Replay(context.Background(), s, []Command{{IdempotencyKey: "a"}, {IdempotencyKey: "b"}, {IdempotencyKey: "c"}}, isRejected)
	assert.Equal(t, 2, out.Replayed)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "b", out.Rejected[0].Command.IdempotencyKey)
	assert.Empty(t, out.Remaining)
}

func TestReplayStopsOnTransportFailure(t *testing.T) {
	s := &fakeSender{fail: map[string]error{"b": errors.New("connection refused")}}
	out := Replay(context.Background(), s, []Command{{IdempotencyKey: "a"}, {IdempotencyKey: "b"}, {IdempotencyKey: "c"}}, isRejected)
	assert.Equal(t, 1, out.Replayed)
	require.Len(t, out.Remaining, 2)
	assert.Equal(t, "b", out.Remaining[0].IdempotencyKey)
	assert.Equal(t, []string{"a", "b"}, s.sent, "nothing is sent after a transport failure")
}
