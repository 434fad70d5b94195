package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrSynthesisUnavailable indicates the synthesizer has no endpoint configured.
var ErrSynthesisUnavailable = errors.New("synthesis service not configured")

// VoiceSettings maps a target language code to the voice and accent sent to
// the synthesis service.
type VoiceSettings struct {
	Language string
	Accent   string
}

var voiceMap = map[string]VoiceSettings{
	"en":    {Language: "en", Accent: "com"},
	"en-uk": {Language: "en", Accent: "co.uk"},
	"pt":    {Language: "pt", Accent: "com.br"},
	"es":    {Language: "es", Accent: "com"},
	"fr":    {Language: "fr", Accent: "fr"},
	"de":    {Language: "de", Accent: "de"},
	"it":    {Language: "it", Accent: "it"},
	"zh-CN": {Language: "zh-CN", Accent: "com"},
	"ja":    {Language: "ja", Accent: "co.jp"},
	"ru":    {Language: "ru", Accent: "ru"},
}

// VoiceFor resolves the synthesis voice for a target language, defaulting to
// English when the language has no mapping.
func VoiceFor(targetLang string) VoiceSettings {
	if settings, ok := voiceMap[targetLang]; ok {
		return settings
	}
	return VoiceSettings{Language: "en", Accent: "com"}
}

type SynthesizerConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	FfmpegPath   string
	Pacer        *Pacer
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// Synthesizer generates one audio file per chunk through a remote TTS HTTP
// API, with bounded retries and an optional ffmpeg playback-speed transform.
type Synthesizer struct {
	baseURL      string
	apiKey       string
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	ffmpegPath   string
	pacer        *Pacer
	httpClient   *http.Client
	logger       *log.Logger
}

func NewSynthesizer(config SynthesizerConfig) *Synthesizer {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}
	if strings.TrimSpace(config.FfmpegPath) == "" {
		config.FfmpegPath = "ffmpeg"
	}
	if config.Pacer == nil {
		config.Pacer = NewPacer(1)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Synthesizer{
		baseURL:      strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		apiKey:       strings.TrimSpace(config.APIKey),
		timeout:      config.Timeout,
		maxRetries:   config.MaxRetries,
		retryBackoff: config.RetryBackoff,
		ffmpegPath:   config.FfmpegPath,
		pacer:        config.Pacer,
		httpClient:   config.HTTPClient,
		logger:       config.Logger,
	}
}

func (s *Synthesizer) Available() bool {
	return s.baseURL != ""
}

// SynthesizeChunk converts one translated chunk to an MP3 file inside the
// job's scratch directory and returns its path. Retries are bounded with a
// fixed backoff; a speed-transform failure degrades to the untransformed
// audio rather than dropping the chunk.
func (s *Synthesizer) SynthesizeChunk(
	ctx context.Context,
	chunkIndex int,
	text string,
	targetLang string,
	speed float64,
	scratchDir string,
) (string, error) {
	if !s.Available() {
		return "", ErrSynthesisUnavailable
	}

	var (
		audio   []byte
		lastErr error
	)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := s.pacer.Wait(ctx); err != nil {
			return "", err
		}
		audio, lastErr = CallWithTimeout(ctx, s.timeout, func(callCtx context.Context) ([]byte, error) {
			return s.callSynthesisAPI(callCtx, text, targetLang)
		})
		if lastErr == nil {
			break
		}
		if attempt == s.maxRetries-1 {
			break
		}
		timer := time.NewTimer(s.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("synthesize chunk %d after %d attempts: %w", chunkIndex, s.maxRetries, lastErr)
	}

	outputPath := filepath.Join(scratchDir, fmt.Sprintf("chunk_%04d.mp3", chunkIndex))
	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		return "", fmt.Errorf("write chunk audio: %w", err)
	}

	if speed != 1.0 {
		transformed, err := s.applySpeed(ctx, outputPath, speed)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("speed transform failed chunk=%d speed=%.2f, keeping original audio: %v", chunkIndex, speed, err)
			}
			return outputPath, nil
		}
		return transformed, nil
	}
	return outputPath, nil
}

func (s *Synthesizer) callSynthesisAPI(ctx context.Context, text, targetLang string) ([]byte, error) {
	voice := VoiceFor(targetLang)
	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"language": voice.Language,
		"accent":   voice.Accent,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create synthesis request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "audio/mpeg")
	if s.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: transport: %v", ErrRemoteService, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRemoteService, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 300 {
			message = message[:300]
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemoteService, response.StatusCode, message)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrRemoteService)
	}
	return body, nil
}

// applySpeed reprocesses the generated audio through ffmpeg's atempo filter.
func (s *Synthesizer) applySpeed(ctx context.Context, inputPath string, speed float64) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, ".mp3") + "_spd.mp3"

	// atempo only accepts factors in [0.5, 2.0].
	if speed < 0.5 {
		speed = 0.5
	}
	if speed > 2.0 {
		speed = 2.0
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-filter:a", fmt.Sprintf("atempo=%.2f", speed),
		"-vn",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 300 {
			detail = detail[len(detail)-300:]
		}
		return "", fmt.Errorf("ffmpeg atempo: %w: %s", err, detail)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("ffmpeg atempo produced no output")
	}

	if err := os.Remove(inputPath); err != nil && s.logger != nil {
		s.logger.Printf("failed removing pre-transform audio %s: %v", inputPath, err)
	}
	return outputPath, nil
}
