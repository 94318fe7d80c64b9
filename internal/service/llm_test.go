package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
)

func newLLMTestService(url string, retries int) *LLMService {
	return NewLLMService(&LLMConfig{
		BaseURL:      url,
		APIKey:       "test-key",
		Model:        "test-model",
		Mode:         LLMModeChat,
		Timeout:      5 * time.Second,
		RetryCount:   retries,
		RetryBackoff: time.Millisecond,
	})
}

func TestExtractPDFTextRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered text"}}]}`))
	}))
	defer srv.Close()

	svc := newLLMTestService(srv.URL, 2)
	text, attempts, err := svc.ExtractPDFText(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
	if err != nil {
		t.Fatalf("ExtractPDFText() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if text != "recovered text" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractPDFTextExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := newLLMTestService(srv.URL, 2)
	_, attempts, err := svc.ExtractPDFText(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestExtractPDFTextTimeoutBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// Drain the body so the server can detect the client disconnect;
		// with unread body bytes buffered, r.Context() is never canceled.
		io.Copy(io.Discard, r.Body)
		// Hold the request open until the client gives up.
		<-r.Context().Done()
	}))
	defer srv.Close()

	svc := NewLLMService(&LLMConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Model:        "test-model",
		Mode:         LLMModeChat,
		Timeout:      100 * time.Millisecond,
		RetryCount:   2,
		RetryBackoff: time.Millisecond,
	})

	_, attempts, err := svc.ExtractPDFText(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want exactly the configured budget of 2", attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestExtractPDFTextAuthFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := newLLMTestService(srv.URL, 5)
	_, attempts, err := svc.ExtractPDFText(context.Background(), []byte("%PDF-1.4"), "doc.pdf")
	if !errors.Is(err, domain.ErrAuthFailure) {
		t.Fatalf("err = %v, want ErrAuthFailure", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestExtractLLMText(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "direct output_text",
			body: `{"output_text":"  hello  "}`,
			want: "hello",
		},
		{
			name: "responses output list",
			body: `{"output":[{"content":[{"text":"part one"},{"text":"part two"}]}]}`,
			want: "part one\n\npart two",
		},
		{
			name: "chat completions choices",
			body: `{"choices":[{"message":{"content":"chat text"}}]}`,
			want: "chat text",
		},
		{
			name:    "empty payload",
			body:    `{}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<html>nope</html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractLLMText([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrSchemaMismatch) {
					t.Fatalf("err = %v, want ErrSchemaMismatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractLLMText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}
