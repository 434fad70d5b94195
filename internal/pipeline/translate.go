package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTranslateUnavailable indicates the translator has no endpoint configured.
var ErrTranslateUnavailable = errors.New("translation service not configured")

type TranslatorConfig struct {
	BaseURL      string
	APIKey       string
	ChunkTimeout time.Duration
	DocTimeout   time.Duration
	Pacer        *Pacer
	HTTPClient   *http.Client
}

// Translator calls a LibreTranslate-compatible HTTP API. Every request goes
// through the shared pacer and a hard wall-clock timeout; failures never
// surface raw third-party errors, only ErrCallTimeout or ErrRemoteService.
type Translator struct {
	baseURL      string
	apiKey       string
	chunkTimeout time.Duration
	docTimeout   time.Duration
	pacer        *Pacer
	httpClient   *http.Client
}

func NewTranslator(config TranslatorConfig) *Translator {
	if config.ChunkTimeout <= 0 {
		config.ChunkTimeout = 15 * time.Second
	}
	if config.DocTimeout <= 0 {
		config.DocTimeout = 60 * time.Second
	}
	if config.Pacer == nil {
		config.Pacer = NewPacer(1)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Translator{
		baseURL:      strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		apiKey:       strings.TrimSpace(config.APIKey),
		chunkTimeout: config.ChunkTimeout,
		docTimeout:   config.DocTimeout,
		pacer:        config.Pacer,
		httpClient:   config.HTTPClient,
	}
}

func (t *Translator) Available() bool {
	return t.baseURL != ""
}

// TranslateChunk translates one chunk ahead of synthesis under the short
// per-chunk timeout.
func (t *Translator) TranslateChunk(ctx context.Context, text, targetLang string) (string, error) {
	return t.translate(ctx, text, targetLang, t.chunkTimeout)
}

// TranslateDocument translates the whole extracted text ahead of document
// rendering. The payload is larger, so the timeout is too.
func (t *Translator) TranslateDocument(ctx context.Context, text, targetLang string) (string, error) {
	return t.translate(ctx, text, targetLang, t.docTimeout)
}

func (t *Translator) translate(ctx context.Context, text, targetLang string, timeout time.Duration) (string, error) {
	if !t.Available() {
		return "", ErrTranslateUnavailable
	}
	if err := t.pacer.Wait(ctx); err != nil {
		return "", err
	}
	return CallWithTimeout(ctx, timeout, func(callCtx context.Context) (string, error) {
		return t.callTranslateAPI(callCtx, text, targetLang)
	})
}

func (t *Translator) callTranslateAPI(ctx context.Context, text, targetLang string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"q":       text,
		"source":  "auto",
		"target":  targetLang,
		"format":  "text",
		"api_key": t.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create translate request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := t.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: transport: %v", ErrRemoteService, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrRemoteService, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 300 {
			message = message[:300]
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrRemoteService, response.StatusCode, message)
	}

	var decoded struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRemoteService, err)
	}
	if strings.TrimSpace(decoded.TranslatedText) == "" {
		return "", fmt.Errorf("%w: empty translation", ErrRemoteService)
	}
	return decoded.TranslatedText, nil
}
