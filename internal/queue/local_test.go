package queue

import (
	"context"
	"errors"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

func queueTestLogger() *log.Logger {
	return log.New(os.Stdout, "[voxdoc-test] ", log.LstdFlags)
}

func TestLocalQueueDeliversMessages(t *testing.T) {
	q := NewLocalQueue(8, 3, queueTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.QueueMessage, 1)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			received <- message
			return nil
		})
	}()

	message := domain.QueueMessage{JobID: "job-a", Output: domain.OutputAudio, Speed: 1.5}
	if err := q.Enqueue(ctx, message); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case got := <-received:
		if got.JobID != "job-a" || got.Output != domain.OutputAudio || got.Speed != 1.5 {
			t.Fatalf("unexpected message: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected message delivery")
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	q := NewLocalQueue(8, 2, queueTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int32
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, _ domain.QueueMessage) error {
			if atomic.AddInt32(&attempts, 1) == 2 {
				close(done)
			}
			return errors.New("handler failed")
		})
	}()

	if err := q.Enqueue(ctx, domain.QueueMessage{JobID: "job-b"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected 2 attempts before dead-lettering, got %d", atomic.LoadInt32(&attempts))
	}

	deadline := time.Now().Add(2 * time.Second)
	for q.DLQSize() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected message in DLQ")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := q.DLQSize(); got != 1 {
		t.Fatalf("expected 1 dead-lettered message, got %d", got)
	}
}

func TestLocalQueueEnqueueHonorsContext(t *testing.T) {
	q := NewLocalQueue(1, 3, queueTestLogger())
	ctx := context.Background()

	if err := q.Enqueue(ctx, domain.QueueMessage{JobID: "fills-buffer"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	blocked, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(blocked, domain.QueueMessage{JobID: "job-c"}); err == nil {
		t.Fatalf("expected enqueue to fail on full buffer with expired context")
	}
}
