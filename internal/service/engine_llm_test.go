package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
)

func llmEngineWithServer(t *testing.T, api *fakeDocumentAPI, writeBack bool, handler http.HandlerFunc) *LLMEngine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	llm := NewLLMService(&LLMConfig{
		BaseURL:      srv.URL,
		APIKey:       "k",
		Model:        "m",
		Mode:         LLMModeChat,
		Timeout:      5 * time.Second,
		RetryCount:   0,
		RetryBackoff: time.Millisecond,
	})
	return NewLLMEngine(api, llm, writeBack, testLogger())
}

func TestLLMEngineWithoutWriteBack(t *testing.T) {
	api := newFakeDocumentAPI()
	api.original = []byte("%PDF-1.4 fake")

	eng := llmEngineWithServer(t, api, false, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ocr result text"}}]}`))
	})

	snap := &domain.DocumentSnapshot{ID: 9, OriginalFilename: "x.pdf", ArchiveFilename: "arch.pdf"}
	res, err := eng.Execute(context.Background(), snap)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if res.Text != "ocr result text" {
		t.Errorf("text = %q", res.Text)
	}
	if res.ContentLength != int64(len("ocr result text")) {
		t.Errorf("content length = %d", res.ContentLength)
	}
	// The remote is untouched without write-back.
	if res.ArchiveFilename != "arch.pdf" {
		t.Errorf("archive = %q", res.ArchiveFilename)
	}
	if len(api.updated) != 0 {
		t.Error("content was written back despite write-back being off")
	}
}

func TestLLMEngineWithWriteBack(t *testing.T) {
	api := newFakeDocumentAPI()
	api.original = []byte("%PDF-1.4 fake")
	api.docs = map[int64][]*paperless.Document{
		9: {{ID: 9, ContentLength: 500, ArchiveFilename: "arch.pdf"}},
	}

	eng := llmEngineWithServer(t, api, true, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"written back"}}]}`))
	})

	res, err := eng.Execute(context.Background(), &domain.DocumentSnapshot{ID: 9, OriginalFilename: "x.pdf"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if api.updated[9] != "written back" {
		t.Errorf("written content = %q", api.updated[9])
	}
	// After-state comes from a fresh remote read.
	if res.ContentLength != 500 {
		t.Errorf("content length = %d, want 500", res.ContentLength)
	}
}

func TestLLMEngineExtractionFailureCarriesAttempts(t *testing.T) {
	api := newFakeDocumentAPI()
	api.original = []byte("%PDF-1.4 fake")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	llm := NewLLMService(&LLMConfig{
		BaseURL:      srv.URL,
		APIKey:       "k",
		Model:        "m",
		Mode:         LLMModeChat,
		Timeout:      time.Second,
		RetryCount:   2,
		RetryBackoff: time.Millisecond,
	})
	eng := NewLLMEngine(api, llm, false, testLogger())

	res, err := eng.Execute(context.Background(), &domain.DocumentSnapshot{ID: 9, OriginalFilename: "x.pdf"})
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
	if res == nil || res.Attempts != 2 {
		t.Fatalf("partial result = %+v, want attempts 2", res)
	}
}

func TestLLMEngineDownloadFailure(t *testing.T) {
	api := newFakeDocumentAPI()
	api.downloadErr = domain.ErrAuthFailure

	eng := llmEngineWithServer(t, api, false, func(w http.ResponseWriter, r *http.Request) {
		t.Error("llm endpoint should not be reached when the download fails")
	})

	_, err := eng.Execute(context.Background(), &domain.DocumentSnapshot{ID: 9})
	if !errors.Is(err, domain.ErrAuthFailure) {
		t.Fatalf("err = %v, want ErrAuthFailure", err)
	}
}
