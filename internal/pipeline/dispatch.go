package pipeline

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// ErrNoAudioProduced indicates every chunk failed synthesis. Fatal when the
// job requested audio output.
var ErrNoAudioProduced = errors.New("no audio produced for any chunk")

// ChunkTask produces the audio artifact for one chunk. Implementations must
// be safe for concurrent use.
type ChunkTask func(ctx context.Context, chunk domain.Chunk) (domain.Chunk, error)

// DispatchResult carries the ordered successful chunks plus how many were
// dropped after exhausting their own retries.
type DispatchResult struct {
	Chunks  []domain.Chunk
	Dropped int
}

// Dispatcher fans chunk synthesis out over a bounded worker pool and fans
// the results back in ordered by chunk index. Completion order is
// non-deterministic; output order never is.
type Dispatcher struct {
	width  int
	logger *log.Logger
}

func NewDispatcher(width int, logger *log.Logger) *Dispatcher {
	if width <= 0 {
		width = 8
	}
	if cpus := runtime.NumCPU(); cpus < width {
		width = cpus
	}
	return &Dispatcher{width: width, logger: logger}
}

// Run executes the task for every non-empty chunk. Failed chunks are logged
// and excluded from the final ordered list; the caller decides whether an
// empty result is fatal.
func (d *Dispatcher) Run(ctx context.Context, chunks []domain.Chunk, task ChunkTask, onDone func(completed int)) DispatchResult {
	pending := make(chan domain.Chunk)
	results := make(chan domain.Chunk, len(chunks))

	var (
		wg        sync.WaitGroup
		droppedMu sync.Mutex
		dropped   int
		completed int
	)

	for i := 0; i < d.width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range pending {
				processed, err := task(ctx, chunk)
				droppedMu.Lock()
				completed++
				done := completed
				if err != nil {
					dropped++
				}
				droppedMu.Unlock()

				if err != nil {
					if d.logger != nil {
						d.logger.Printf("chunk %d dropped: %v", chunk.Index, err)
					}
				} else {
					results <- processed
				}
				if onDone != nil {
					onDone(done)
				}
			}
		}()
	}

	submitted := 0
submit:
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		if chunk.Text == "" {
			continue
		}
		select {
		case <-ctx.Done():
			break submit
		case pending <- chunk:
			submitted++
		}
	}
	close(pending)
	wg.Wait()
	close(results)

	ordered := make([]domain.Chunk, 0, submitted)
	for chunk := range results {
		ordered = append(ordered, chunk)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	return DispatchResult{Chunks: ordered, Dropped: dropped}
}
