// Package worker runs the conversion pipeline: it consumes queued jobs and
// drives each one through extraction, translation, synthesis, assembly and
// rendering to a terminal state.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxdoc/voxdoc-back/internal/domain"
	"github.com/voxdoc/voxdoc-back/internal/pipeline"
	"github.com/voxdoc/voxdoc-back/internal/progress"
	"github.com/voxdoc/voxdoc-back/internal/queue"
)

// Pipeline collaborator contracts, satisfied by the internal/pipeline
// implementations and by test fakes.
type (
	Extractor interface {
		Pages(ctx context.Context, inputPath string) ([]string, error)
	}
	Translator interface {
		TranslateChunk(ctx context.Context, text, targetLang string) (string, error)
		TranslateDocument(ctx context.Context, text, targetLang string) (string, error)
	}
	Synthesizer interface {
		SynthesizeChunk(ctx context.Context, chunkIndex int, text, targetLang string, speed float64, scratchDir string) (string, error)
	}
	Assembler interface {
		Concat(ctx context.Context, segmentPaths []string, outputPath string) error
	}
	Renderer interface {
		Render(text, targetLang, outputPath string) error
	}
	Publisher interface {
		Publish(ctx context.Context, localPath, jobID string, kind domain.ArtifactKind) (domain.Artifact, error)
	}
)

type Dependencies struct {
	Consumer    queue.Consumer
	Store       progress.Store
	Outputs     Publisher
	Extractor   Extractor
	Chunker     *pipeline.Chunker
	Translator  Translator
	Synthesizer Synthesizer
	Dispatcher  *pipeline.Dispatcher
	Assembler   Assembler
	Renderer    Renderer
	OutputDir   string
	Logger      *log.Logger
}

// Processor consumes queue jobs and persists every stage transition.
type Processor struct {
	consumer    queue.Consumer
	store       progress.Store
	outputs     Publisher
	extractor   Extractor
	chunker     *pipeline.Chunker
	translator  Translator
	synthesizer Synthesizer
	dispatcher  *pipeline.Dispatcher
	assembler   Assembler
	renderer    Renderer
	outputDir   string
	logger      *log.Logger
}

func NewProcessor(deps Dependencies) *Processor {
	return &Processor{
		consumer:    deps.Consumer,
		store:       deps.Store,
		outputs:     deps.Outputs,
		extractor:   deps.Extractor,
		chunker:     deps.Chunker,
		translator:  deps.Translator,
		synthesizer: deps.Synthesizer,
		dispatcher:  deps.Dispatcher,
		assembler:   deps.Assembler,
		renderer:    deps.Renderer,
		outputDir:   deps.OutputDir,
		logger:      deps.Logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.ProcessMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// ProcessMessage runs one job to a terminal state. A non-nil return means
// the terminal state could not even be recorded, which is the only case the
// queue should redeliver; pipeline failures end as a readable error state.
func (p *Processor) ProcessMessage(ctx context.Context, message domain.QueueMessage) error {
	scratchDir := filepath.Join(os.TempDir(), "voxdoc-"+message.JobID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return p.fail(ctx, message.JobID, fmt.Errorf("create scratch dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil && p.logger != nil {
			p.logger.Printf("scratch cleanup failed job_id=%s: %v", message.JobID, err)
		}
	}()

	if err := p.run(ctx, message, scratchDir); err != nil {
		return p.fail(ctx, message.JobID, err)
	}
	return nil
}

func (p *Processor) run(ctx context.Context, message domain.QueueMessage, scratchDir string) error {
	jobID := message.JobID

	p.transition(ctx, jobID, domain.JobStatusExtracting, 5, "extracting text from document")
	pages, err := p.extractor.Pages(ctx, message.UploadPath)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	chunks, err := p.chunker.Split(pages)
	if err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Printf("job extracted job_id=%s pages=%d chunks=%d", jobID, len(pages), len(chunks))
	}

	artifacts := make(map[domain.ArtifactKind]domain.Artifact)
	warnings := make([]string, 0, 2)

	if message.Output.WantsAudio() {
		audioArtifact, audioWarnings, audioErr := p.runAudioBranch(ctx, message, chunks, scratchDir)
		if audioErr != nil {
			// Audio is the primary product: its failure fails the whole job.
			return audioErr
		}
		artifacts[domain.ArtifactAudio] = audioArtifact
		warnings = append(warnings, audioWarnings...)
	}

	if message.Output.WantsDocument() {
		documentArtifact, documentWarnings, documentErr := p.runDocumentBranch(ctx, message, chunks)
		if documentErr != nil {
			if message.Output == domain.OutputDocument {
				return documentErr
			}
			// Combined request with audio already produced: degrade to a
			// warning terminal state and keep the audio fetchable.
			if p.logger != nil {
				p.logger.Printf("document branch failed job_id=%s, completing with warning: %v", jobID, documentErr)
			}
			warnings = append(warnings, fmt.Sprintf("document rendering failed: %v", documentErr))
			p.finish(ctx, jobID, domain.JobStatusWarning, artifacts, warnings)
			return nil
		}
		artifacts[domain.ArtifactDocument] = documentArtifact
		warnings = append(warnings, documentWarnings...)
	}

	// Chunk-level fallbacks alone do not warrant the warning terminal state;
	// that is reserved for a missing secondary artifact.
	p.finish(ctx, jobID, domain.JobStatusCompleted, artifacts, warnings)
	return nil
}

func (p *Processor) runAudioBranch(
	ctx context.Context,
	message domain.QueueMessage,
	chunks []domain.Chunk,
	scratchDir string,
) (domain.Artifact, []string, error) {
	jobID := message.JobID
	total := len(chunks)
	warnings := make([]string, 0)

	p.transition(ctx, jobID, domain.JobStatusSynthesizing, 10, fmt.Sprintf("processing %d chunks", total))

	result := p.dispatcher.Run(ctx, chunks, func(taskCtx context.Context, chunk domain.Chunk) (domain.Chunk, error) {
		translated, translateErr := p.translator.TranslateChunk(taskCtx, chunk.Text, message.TargetLang)
		if translateErr != nil || strings.TrimSpace(translated) == "" {
			// Translation failure is never fatal: fall back to the source text.
			translated = chunk.Text
			warning := fmt.Sprintf("using original text for chunk %d (translation failed)", chunk.Index+1)
			p.note(ctx, jobID, warning)
		}
		chunk.Translated = translated

		audioPath, synthErr := p.synthesizer.SynthesizeChunk(
			taskCtx, chunk.Index, chunk.Translated, message.TargetLang, message.Speed, scratchDir)
		if synthErr != nil {
			return chunk, synthErr
		}
		chunk.AudioPath = audioPath
		return chunk, nil
	}, func(completed int) {
		percent := 10 + completed*70/total
		message := fmt.Sprintf("processing chunk %d of %d", completed, total)
		if completed == total {
			message = fmt.Sprintf("processing last chunk of %d", total)
		}
		p.transition(ctx, jobID, domain.JobStatusSynthesizing, percent, message)
	})

	if result.Dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("skipped audio for %d of %d chunks", result.Dropped, total))
	}
	if len(result.Chunks) == 0 {
		return domain.Artifact{}, warnings, pipeline.ErrNoAudioProduced
	}

	p.transition(ctx, jobID, domain.JobStatusAssembling, 85, "finalizing audio")
	segmentPaths := make([]string, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		segmentPaths = append(segmentPaths, chunk.AudioPath)
	}

	outputPath := filepath.Join(p.outputDir, jobID+"_audio.mp3")
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return domain.Artifact{}, warnings, fmt.Errorf("create output dir: %w", err)
	}
	if err := p.assembler.Concat(ctx, segmentPaths, outputPath); err != nil {
		return domain.Artifact{}, warnings, err
	}

	artifact, err := p.outputs.Publish(ctx, outputPath, jobID, domain.ArtifactAudio)
	if err != nil {
		return domain.Artifact{}, warnings, err
	}
	return artifact, warnings, nil
}

func (p *Processor) runDocumentBranch(
	ctx context.Context,
	message domain.QueueMessage,
	chunks []domain.Chunk,
) (domain.Artifact, []string, error) {
	jobID := message.JobID
	warnings := make([]string, 0)

	p.transition(ctx, jobID, domain.JobStatusTranslating, 90, "translating document text")

	var source strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			source.WriteString("\n\n")
		}
		source.WriteString(chunk.Text)
	}

	translated, err := p.translator.TranslateDocument(ctx, source.String(), message.TargetLang)
	if err != nil || strings.TrimSpace(translated) == "" {
		translated = source.String()
		warning := "using original text for document (translation failed)"
		warnings = append(warnings, warning)
		p.note(ctx, jobID, warning)
	}

	p.transition(ctx, jobID, domain.JobStatusRendering, 95, "rendering translated document")
	outputPath := filepath.Join(p.outputDir, jobID+"_document.pdf")
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return domain.Artifact{}, warnings, fmt.Errorf("create output dir: %w", err)
	}
	if err := p.renderer.Render(translated, message.TargetLang, outputPath); err != nil {
		return domain.Artifact{}, warnings, err
	}

	artifact, publishErr := p.outputs.Publish(ctx, outputPath, jobID, domain.ArtifactDocument)
	if publishErr != nil {
		return domain.Artifact{}, warnings, publishErr
	}
	return artifact, warnings, nil
}

// transition records a stage change; failures are logged, not propagated,
// so a flaky progress backend cannot abort a running job mid-pipeline.
func (p *Processor) transition(ctx context.Context, jobID string, status domain.JobStatus, percent int, message string) {
	err := p.store.Update(ctx, jobID, domain.StateUpdate{
		Status:   &status,
		Progress: &percent,
		Message:  &message,
	})
	if err != nil && p.logger != nil {
		p.logger.Printf("progress update failed job_id=%s status=%s: %v", jobID, status, err)
	}
}

func (p *Processor) note(ctx context.Context, jobID, message string) {
	warning := "warning: " + message
	err := p.store.Update(ctx, jobID, domain.StateUpdate{Message: &warning})
	if err != nil && p.logger != nil {
		p.logger.Printf("progress note failed job_id=%s: %v", jobID, err)
	}
}

func (p *Processor) finish(
	ctx context.Context,
	jobID string,
	status domain.JobStatus,
	artifacts map[domain.ArtifactKind]domain.Artifact,
	warnings []string,
) {
	percent := 100
	message := "conversion completed"
	if len(warnings) > 0 {
		message = "conversion completed: " + strings.Join(warnings, "; ")
	}
	err := p.store.Update(ctx, jobID, domain.StateUpdate{
		Status:    &status,
		Progress:  &percent,
		Message:   &message,
		Artifacts: artifacts,
	})
	if err != nil && p.logger != nil {
		p.logger.Printf("terminal update failed job_id=%s status=%s: %v", jobID, status, err)
	}
	if p.logger != nil {
		p.logger.Printf("job finished job_id=%s status=%s artifacts=%d", jobID, status, len(artifacts))
	}
}

// fail writes the terminal error state. The job must never be left silently
// stuck in a non-terminal state, so recording failure is itself retried via
// the queue when it cannot be persisted anywhere.
func (p *Processor) fail(ctx context.Context, jobID string, cause error) error {
	if p.logger != nil {
		p.logger.Printf("job failed job_id=%s: %v", jobID, cause)
	}
	status := domain.JobStatusError
	errText := cause.Error()
	if updateErr := p.store.Update(ctx, jobID, domain.StateUpdate{
		Status: &status,
		Error:  &errText,
	}); updateErr != nil {
		return fmt.Errorf("record job failure (%v): %w", cause, updateErr)
	}
	return nil
}
