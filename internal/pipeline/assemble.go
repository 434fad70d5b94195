package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrAssemblyFailed indicates the final audio file could not be produced.
// Fatal for the audio branch.
var ErrAssemblyFailed = errors.New("audio assembly failed")

type AssemblerConfig struct {
	// MemLimitBytes is the total-segment-size threshold above which the
	// assembler switches to batched intermediates plus a stream-level
	// ffmpeg concat, to bound peak memory.
	MemLimitBytes int64
	BatchSize     int
	FfmpegPath    string
}

// Assembler concatenates ordered audio segments into one output file.
type Assembler struct {
	memLimitBytes int64
	batchSize     int
	ffmpegPath    string
}

func NewAssembler(config AssemblerConfig) *Assembler {
	if config.MemLimitBytes <= 0 {
		config.MemLimitBytes = 32 << 20
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if strings.TrimSpace(config.FfmpegPath) == "" {
		config.FfmpegPath = "ffmpeg"
	}
	return &Assembler{
		memLimitBytes: config.MemLimitBytes,
		batchSize:     config.BatchSize,
		ffmpegPath:    config.FfmpegPath,
	}
}

// Concat writes the segments, in the given order, to outputPath. The order
// of segmentPaths is the canonical chunk order and is preserved exactly.
func (a *Assembler) Concat(ctx context.Context, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("%w: no segments", ErrAssemblyFailed)
	}

	var total int64
	for _, path := range segmentPaths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: stat segment %s: %v", ErrAssemblyFailed, path, err)
		}
		total += info.Size()
	}

	var err error
	if total <= a.memLimitBytes {
		err = a.concatInMemory(segmentPaths, outputPath)
	} else {
		err = a.concatBatched(ctx, segmentPaths, outputPath)
	}
	if err != nil {
		return err
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf("%w: output missing or empty", ErrAssemblyFailed)
	}
	return nil
}

// concatInMemory loads every segment and appends the raw MP3 streams. MP3
// frames are self-delimiting, so byte-level append is a valid concatenation.
func (a *Assembler) concatInMemory(segmentPaths []string, outputPath string) error {
	var combined bytes.Buffer
	for _, path := range segmentPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: read segment %s: %v", ErrAssemblyFailed, path, err)
		}
		combined.Write(data)
	}
	if err := os.WriteFile(outputPath, combined.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: write output: %v", ErrAssemblyFailed, err)
	}
	return nil
}

// concatBatched merges fixed-size batches of segments into intermediate
// files, then has ffmpeg concatenate the intermediates at stream level
// without re-encoding.
func (a *Assembler) concatBatched(ctx context.Context, segmentPaths []string, outputPath string) error {
	workDir, err := os.MkdirTemp(filepath.Dir(outputPath), "assemble-")
	if err != nil {
		return fmt.Errorf("%w: create work dir: %v", ErrAssemblyFailed, err)
	}
	defer os.RemoveAll(workDir)

	intermediates := make([]string, 0, len(segmentPaths)/a.batchSize+1)
	for start := 0; start < len(segmentPaths); start += a.batchSize {
		end := start + a.batchSize
		if end > len(segmentPaths) {
			end = len(segmentPaths)
		}
		batchPath := filepath.Join(workDir, fmt.Sprintf("batch_%04d.mp3", len(intermediates)))
		if err := appendSegments(segmentPaths[start:end], batchPath); err != nil {
			return err
		}
		intermediates = append(intermediates, batchPath)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	var list strings.Builder
	for _, path := range intermediates {
		fmt.Fprintf(&list, "file '%s'\n", path)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write concat list: %v", ErrAssemblyFailed, err)
	}

	cmd := exec.CommandContext(ctx, a.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 300 {
			detail = detail[len(detail)-300:]
		}
		return fmt.Errorf("%w: ffmpeg concat: %v: %s", ErrAssemblyFailed, err, detail)
	}
	return nil
}

// appendSegments streams segments into batchPath one at a time so only a
// single segment is held in memory.
func appendSegments(segmentPaths []string, batchPath string) error {
	output, err := os.Create(batchPath)
	if err != nil {
		return fmt.Errorf("%w: create batch file: %v", ErrAssemblyFailed, err)
	}
	defer output.Close()

	for _, path := range segmentPaths {
		segment, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: open segment %s: %v", ErrAssemblyFailed, path, err)
		}
		_, copyErr := io.Copy(output, segment)
		segment.Close()
		if copyErr != nil {
			return fmt.Errorf("%w: append segment %s: %v", ErrAssemblyFailed, path, copyErr)
		}
	}
	return nil
}
