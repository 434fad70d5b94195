package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTranslateChunkSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var payload struct {
			Q      string `json:"q"`
			Source string `json:"source"`
			Target string `json:"target"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload.Source != "auto" || payload.Target != "pt" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unexpected payload"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translatedText":"ola mundo"}`))
	}))
	defer server.Close()

	translator := NewTranslator(TranslatorConfig{
		BaseURL:      server.URL,
		ChunkTimeout: 2 * time.Second,
		Pacer:        NewPacer(1000),
	})

	got, err := translator.TranslateChunk(context.Background(), "hello world", "pt")
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if got != "ola mundo" {
		t.Fatalf("expected translated text, got %q", got)
	}
}

func TestTranslateChunkNormalizesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	translator := NewTranslator(TranslatorConfig{
		BaseURL:      server.URL,
		ChunkTimeout: 2 * time.Second,
		Pacer:        NewPacer(1000),
	})

	_, err := translator.TranslateChunk(context.Background(), "hello", "pt")
	if !errors.Is(err, ErrRemoteService) {
		t.Fatalf("expected ErrRemoteService, got %v", err)
	}
}

func TestTranslateChunkTimesOutOnSlowServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		_, _ = w.Write([]byte(`{"translatedText":"too late"}`))
	}))
	defer server.Close()

	translator := NewTranslator(TranslatorConfig{
		BaseURL:      server.URL,
		ChunkTimeout: 50 * time.Millisecond,
		Pacer:        NewPacer(1000),
	})

	_, err := translator.TranslateChunk(context.Background(), "hello", "pt")
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
}

func TestTranslateDocumentUsesLongerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(80 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translatedText":"documento completo"}`))
	}))
	defer server.Close()

	translator := NewTranslator(TranslatorConfig{
		BaseURL:      server.URL,
		ChunkTimeout: 20 * time.Millisecond,
		DocTimeout:   2 * time.Second,
		Pacer:        NewPacer(1000),
	})

	if _, err := translator.TranslateChunk(context.Background(), "x", "pt"); !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected chunk timeout on slow server, got %v", err)
	}
	got, err := translator.TranslateDocument(context.Background(), "x", "pt")
	if err != nil {
		t.Fatalf("expected document translate to outlast the delay, got err=%v", err)
	}
	if got != "documento completo" {
		t.Fatalf("unexpected document translation: %q", got)
	}
}

func TestTranslateUnavailableWithoutBaseURL(t *testing.T) {
	translator := NewTranslator(TranslatorConfig{})
	_, err := translator.TranslateChunk(context.Background(), "hello", "pt")
	if !errors.Is(err, ErrTranslateUnavailable) {
		t.Fatalf("expected ErrTranslateUnavailable, got %v", err)
	}
}

func TestTranslateRejectsEmptyTranslation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translatedText":"   "}`))
	}))
	defer server.Close()

	translator := NewTranslator(TranslatorConfig{
		BaseURL:      server.URL,
		ChunkTimeout: 2 * time.Second,
		Pacer:        NewPacer(1000),
	})

	_, err := translator.TranslateChunk(context.Background(), "hello", "pt")
	if !errors.Is(err, ErrRemoteService) {
		t.Fatalf("expected ErrRemoteService for blank translation, got %v", err)
	}
}
