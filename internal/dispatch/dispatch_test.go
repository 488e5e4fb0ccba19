package dispatch

import (
	"context"
	"errors"
	"testing"
)

type capturePublisher struct {
	stream   string
	taskType string
	payload  interface{}
	err      error
	calls    int
}

func (c *capturePublisher) PublishRaw(_ context.Context, stream, taskType string, payload interface{}) (string, error) {
	c.calls++
	c.stream = stream
	c.taskType = taskType
	c.payload = payload
	return "1-0", c.err
}

func TestEnqueuePublishes(t *testing.T) {
	pub := &capturePublisher{}
	d := New(pub, "guchi:tasks", nil)

	d.Enqueue(context.Background(), TaskGraphRefresh, GraphRefreshPayload{UserID: "user-1"})

	if pub.calls != 1 {
		t.Fatalf("expected one publish, got %d", pub.calls)
	}
	if pub.stream != "guchi:tasks" || pub.taskType != TaskGraphRefresh {
		t.Fatalf("unexpected publish: stream=%s type=%s", pub.stream, pub.taskType)
	}
}

func TestEnqueueNilDispatcherNoPanic(t *testing.T) {
	var d *Dispatcher
	d.Enqueue(context.Background(), TaskQuestionPrefetch, PrefetchPayload{SessionID: "s", NextTurn: 2})
}

func TestEnqueueSwallowsPublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("redis down")}
	d := New(pub, "guchi:tasks", nil)

	// fire-and-forget: a failing queue never propagates to the caller
	d.Enqueue(context.Background(), TaskAdviceRequest, AdvicePayload{RequestID: "r"})
	if pub.calls != 1 {
		t.Fatalf("expected publish attempt, got %d", pub.calls)
	}
}
