package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[voxdoc-test] ", log.LstdFlags)
}

func TestDispatcherOrdersResultsByChunkIndex(t *testing.T) {
	chunks := make([]domain.Chunk, 12)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}

	dispatcher := NewDispatcher(4, testLogger())
	result := dispatcher.Run(context.Background(), chunks, func(_ context.Context, chunk domain.Chunk) (domain.Chunk, error) {
		// Random completion order must not leak into the output order.
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		chunk.AudioPath = fmt.Sprintf("/tmp/chunk_%04d.mp3", chunk.Index)
		return chunk, nil
	}, nil)

	if result.Dropped != 0 {
		t.Fatalf("expected no dropped chunks, got %d", result.Dropped)
	}
	if len(result.Chunks) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(result.Chunks))
	}
	for i, chunk := range result.Chunks {
		if chunk.Index != i {
			t.Fatalf("expected chunk index %d at position %d, got %d", i, i, chunk.Index)
		}
		if chunk.AudioPath == "" {
			t.Fatalf("expected audio path set for chunk %d", i)
		}
	}
}

func TestDispatcherDropsFailedChunksAndKeepsOrder(t *testing.T) {
	chunks := make([]domain.Chunk, 5)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}

	dispatcher := NewDispatcher(3, testLogger())
	result := dispatcher.Run(context.Background(), chunks, func(_ context.Context, chunk domain.Chunk) (domain.Chunk, error) {
		if chunk.Index == 2 {
			return domain.Chunk{}, errors.New("synthesis failed")
		}
		return chunk, nil
	}, nil)

	if result.Dropped != 1 {
		t.Fatalf("expected 1 dropped chunk, got %d", result.Dropped)
	}
	want := []int{0, 1, 3, 4}
	if len(result.Chunks) != len(want) {
		t.Fatalf("expected %d surviving chunks, got %d", len(want), len(result.Chunks))
	}
	for i, chunk := range result.Chunks {
		if chunk.Index != want[i] {
			t.Fatalf("expected index %d at position %d, got %d", want[i], i, chunk.Index)
		}
	}
}

func TestDispatcherSkipsEmptyChunksAndReportsProgress(t *testing.T) {
	chunks := []domain.Chunk{
		{Index: 0, Text: "first"},
		{Index: 1, Text: ""},
		{Index: 2, Text: "third"},
	}

	var maxDone int32
	dispatcher := NewDispatcher(2, testLogger())
	result := dispatcher.Run(context.Background(), chunks, func(_ context.Context, chunk domain.Chunk) (domain.Chunk, error) {
		return chunk, nil
	}, func(completed int) {
		for {
			current := atomic.LoadInt32(&maxDone)
			if int32(completed) <= current || atomic.CompareAndSwapInt32(&maxDone, current, int32(completed)) {
				return
			}
		}
	})

	if len(result.Chunks) != 2 {
		t.Fatalf("expected empty chunk skipped, got %d results", len(result.Chunks))
	}
	if got := atomic.LoadInt32(&maxDone); got != 2 {
		t.Fatalf("expected progress callback to reach 2, got %d", got)
	}
}

func TestDispatcherAllFailuresYieldEmptyResult(t *testing.T) {
	chunks := []domain.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}}

	dispatcher := NewDispatcher(2, testLogger())
	result := dispatcher.Run(context.Background(), chunks, func(_ context.Context, _ domain.Chunk) (domain.Chunk, error) {
		return domain.Chunk{}, errors.New("always fails")
	}, nil)

	if len(result.Chunks) != 0 {
		t.Fatalf("expected no surviving chunks, got %d", len(result.Chunks))
	}
	if result.Dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", result.Dropped)
	}
}

func TestDispatcherStopsSubmittingOnCancelledContext(t *testing.T) {
	chunks := make([]domain.Chunk, 16)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Text: fmt.Sprintf("chunk %d", i)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	dispatcher := NewDispatcher(4, testLogger())
	result := dispatcher.Run(ctx, chunks, func(_ context.Context, chunk domain.Chunk) (domain.Chunk, error) {
		atomic.AddInt32(&calls, 1)
		return chunk, nil
	}, nil)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no chunks submitted after cancellation, got %d", got)
	}
	if len(result.Chunks) != 0 {
		t.Fatalf("expected empty result, got %d chunks", len(result.Chunks))
	}
}
