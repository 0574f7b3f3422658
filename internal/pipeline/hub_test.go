package pipeline

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/telemetry"
	"github.com/calcutta/console/internal/upstream"
)

type sourceFunc func(ctx context.Context, token, runID string) (*models.PipelineStatus, error)

func (f sourceFunc) PipelineStatus(ctx context.Context, token, runID string) (*models.PipelineStatus, error) {
	return f(ctx, token, runID)
}

func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	timeout := time.After(2 * time.Second)
	for {
		select {
		case payload, ok := <-c.Send:
			if !ok {
				return out
			}
			var m Message
			require.NoError(t, json.Unmarshal(payload, &m))
			out = append(out, m)
		case <-timeout:
			t.Fatal("subscriber was never closed")
		}
	}
}

func TestHubStopsOnMissingRun(t *testing.T) {
	src := sourceFunc(func(context.Context, string, string) (*models.PipelineStatus, error) {
		return nil, &upstream.APIError{Status: 404, Message: "no such run"}
	})
	hub := NewHub(src, time.Millisecond, logger.Nop(), telemetry.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := NewClient(hub, nil, "run-x", 1, "tok")
	hub.Register <- c

	msgs := drain(t, c)
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0].Type)
	assert.Equal(t, 0, hub.Subscribers("run-x"))
}

func TestHubSharesOnePollerPerRun(t *testing.T) {
	var calls atomic.Int32
	var firstToken atomic.Value
	src := sourceFunc(func(_ context.Context, token, runID string) (*models.PipelineStatus, error) {
		calls.Add(1)
		firstToken.CompareAndSwap(nil, token)
		return &models.PipelineStatus{RunID: runID, Status: models.PipelineRunning, Progress: float64(calls.Load())}, nil
	})
	hub := NewHub(src, 20*time.Millisecond, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := NewClient(hub, nil, "run-1", 1, "tok-a")
	b := NewClient(hub, nil, "run-1", 2, "tok-b")
	hub.Register <- a
	hub.Register <- b

	require.Eventually(t, func() bool { return len(b.Send) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, hub.Subscribers("run-1"))
	assert.Equal(t, "tok-a", firstToken.Load())

	hub.Unregister <- a
	hub.Unregister <- b
	require.Eventually(t, func() bool { return hub.Subscribers("run-1") == 0 }, time.Second, time.Millisecond)

	settled := calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), settled+1, "poller stops once the last subscriber leaves")
}

func TestHubShutdownClosesSubscribers(t *testing.T) {
	src := sourceFunc(func(_ context.Context, _, runID string) (*models.PipelineStatus, error) {
		return &models.PipelineStatus{RunID: runID, Status: models.PipelineQueued}, nil
	})
	hub := NewHub(src, time.Hour, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := NewClient(hub, nil, "run-2", 1, "tok")
	hub.Register <- c
	cancel()

	msgs := drain(t, c)
	assert.LessOrEqual(t, len(msgs), 1)
}

func TestJoinSendsSnapshotToLateSubscriber(t *testing.T) {
	src := sourceFunc(func(_ context.Context, _, runID string) (*models.PipelineStatus, error) {
		return &models.PipelineStatus{RunID: runID, Status: models.PipelineRunning, Stage: "simulate"}, nil
	})
	hub := NewHub(src, 10*time.Millisecond, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	join := func(userID int64, token string) *Client {
		snap, err := hub.Snapshot(ctx, token, "run-4")
		require.NoError(t, err)
		c := NewClient(hub, nil, "run-4", userID, token)
		require.NoError(t, hub.Join(c, snap))
		return c
	}

	first := join(1, "tok-a")
	time.Sleep(50 * time.Millisecond)
	late := join(2, "tok-b")
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, first.Send, 1, "an unchanged status is not re-sent")
	require.Len(t, late.Send, 1)
	var msg Message
	require.NoError(t, json.Unmarshal(<-late.Send, &msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "simulate", msg.Status.Stage)
}

func TestJoinTerminalRunClosesQueue(t *testing.T) {
	hub := NewHub(nil, time.Hour, logger.Nop(), nil)
	c := NewClient(hub, nil, "run-5", 1, "tok")

	require.NoError(t, hub.Join(c, &models.PipelineStatus{RunID: "run-5", Status: models.PipelineSucceeded}))
	msgs := drain(t, c)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.PipelineSucceeded, msgs[0].Status.Status)
	assert.Equal(t, 0, hub.Subscribers("run-5"))
}

func TestJoinAfterShutdown(t *testing.T) {
	hub := NewHub(nil, time.Hour, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	<-hub.Done()
	err := hub.Join(NewClient(hub, nil, "run-6", 1, "tok"), nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHubDropsRejectedTokenAndKeepsPolling(t *testing.T) {
	var rejectA atomic.Bool
	var sawB atomic.Bool
	src := sourceFunc(func(_ context.Context, token, runID string) (*models.PipelineStatus, error) {
		if token == "tok-a" && rejectA.Load() {
			return nil, &upstream.APIError{Status: 401, Message: "expired"}
		}
		if token == "tok-b" {
			sawB.Store(true)
		}
		return &models.PipelineStatus{RunID: runID, Status: models.PipelineRunning}, nil
	})
	hub := NewHub(src, 5*time.Millisecond, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := NewClient(hub, nil, "run-7", 1, "tok-a")
	b := NewClient(hub, nil, "run-7", 2, "tok-b")
	hub.Register <- a
	hub.Register <- b
	require.Eventually(t, func() bool { return len(b.Send) > 0 }, time.Second, time.Millisecond)

	rejectA.Store(true)
	msgs := drain(t, a)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "error", msgs[len(msgs)-1].Type)

	require.Eventually(t, sawB.Load, time.Second, time.Millisecond)
	assert.Equal(t, 1, hub.Subscribers("run-7"))
}

func TestHubMovesToRemainingTokenWhenOwnerLeaves(t *testing.T) {
	var last atomic.Value
	src := sourceFunc(func(_ context.Context, token, runID string) (*models.PipelineStatus, error) {
		last.Store(token)
		return &models.PipelineStatus{RunID: runID, Status: models.PipelineRunning}, nil
	})
	hub := NewHub(src, 5*time.Millisecond, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := NewClient(hub, nil, "run-8", 1, "tok-a")
	b := NewClient(hub, nil, "run-8", 2, "tok-b")
	hub.Register <- a
	hub.Register <- b
	require.Eventually(t, func() bool { return last.Load() == "tok-a" }, time.Second, time.Millisecond)

	hub.Unregister <- a
	require.Eventually(t, func() bool { return last.Load() == "tok-b" }, time.Second, time.Millisecond)
	assert.Equal(t, 1, hub.Subscribers("run-8"))
}

func TestHubLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := sourceFunc(func(_ context.Context, _, runID string) (*models.PipelineStatus, error) {
		return &models.PipelineStatus{RunID: runID, Status: models.PipelineRunning}, nil
	})
	hub := NewHub(src, 5*time.Millisecond, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := NewClient(hub, nil, "run-3", 1, "tok")
	hub.Register <- c
	require.Eventually(t, func() bool { return len(c.Send) > 0 }, time.Second, time.Millisecond)

	cancel()
	<-hub.done
}

func TestChanged(t *testing.T) {
	a := models.PipelineStatus{Status: models.PipelineRunning, Progress: 0.1}
	assert.False(t, changed(a, a))
	b := a
	b.Progress = 0.2
	assert.True(t, changed(a, b))
}
