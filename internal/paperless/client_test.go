package paperless

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
)

func newTestClient(url string) *Client {
	return New(&Config{
		BaseURL:  url,
		Token:    "secret",
		PageSize: 2,
		Timeout:  5 * time.Second,
	})
}

func TestNormalizeTokenHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123", "Token abc123"},
		{"Token abc123", "Token abc123"},
		{"token abc123", "token abc123"},
		{"Bearer abc123", "Bearer abc123"},
		{"  abc123  ", "Token abc123"},
	}
	for _, tt := range tests {
		if got := normalizeTokenHeader(tt.in); got != tt.want {
			t.Errorf("normalizeTokenHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListDocumentsPagePagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q", got)
		}
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			w.Write([]byte(`{"count":3,"next":"http://x/api/documents/?page=2","results":[
				{"id":1,"title":"a","content":"aa"},
				{"id":2,"title":"b","content":"bb"}
			]}`))
		default:
			w.Write([]byte(`{"count":3,"next":null,"results":[{"id":3,"title":"c","content":"cc"}]}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	docs, hasNext, err := c.ListDocumentsPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("page 1 error = %v", err)
	}
	if len(docs) != 2 || !hasNext {
		t.Errorf("page 1: docs=%d hasNext=%v", len(docs), hasNext)
	}

	docs, hasNext, err = c.ListDocumentsPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("page 2 error = %v", err)
	}
	if len(docs) != 1 || hasNext {
		t.Errorf("page 2: docs=%d hasNext=%v", len(docs), hasNext)
	}
	if docs[0].ID != 3 || docs[0].ContentLength != 2 {
		t.Errorf("doc = %+v", docs[0])
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthFailure},
		{"forbidden", http.StatusForbidden, domain.ErrAuthFailure},
		{"server error", http.StatusInternalServerError, domain.ErrRemoteUnavailable},
		{"not found", http.StatusNotFound, domain.ErrRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.GetDocument(context.Background(), 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalizeDocumentAliases(t *testing.T) {
	raw := []byte(`{
		"id": 12,
		"title": "Old Server Doc",
		"original_file_name": "orig.pdf",
		"archived_file_name": "arch.pdf",
		"pages": 4,
		"text": "legacy content field",
		"updated": "2026-01-15T08:30:00Z",
		"tags": ["alpha", 7]
	}`)

	doc, err := normalizeDocument(raw)
	if err != nil {
		t.Fatalf("normalizeDocument() error = %v", err)
	}

	if doc.OriginalFilename != "orig.pdf" {
		t.Errorf("original filename = %q", doc.OriginalFilename)
	}
	if doc.ArchiveFilename != "arch.pdf" {
		t.Errorf("archive filename = %q", doc.ArchiveFilename)
	}
	if doc.PageCount == nil || *doc.PageCount != 4 {
		t.Errorf("page count = %v", doc.PageCount)
	}
	if doc.Content != "legacy content field" {
		t.Errorf("content = %q", doc.Content)
	}
	if doc.ContentLength != int64(len("legacy content field")) {
		t.Errorf("content length = %d", doc.ContentLength)
	}
	if doc.ModifiedAt.IsZero() {
		t.Error("modified timestamp not parsed")
	}
	if want := []string{"alpha", "7"}; !reflect.DeepEqual(doc.Tags, want) {
		t.Errorf("tags = %v, want %v", doc.Tags, want)
	}
}

func TestNormalizeDocumentMissingID(t *testing.T) {
	if _, err := normalizeDocument([]byte(`{"title":"no id"}`)); err == nil {
		t.Fatal("expected an error for a payload without an id")
	}
}

func TestExtractTaskIDs(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{
			name:    "bare uuid string",
			payload: `"d6a8e9a0-1111-4222-8333-444455556666"`,
			want:    []string{"d6a8e9a0-1111-4222-8333-444455556666"},
		},
		{
			name:    "list of uuids with duplicates",
			payload: `["d6a8e9a0-1111-4222-8333-444455556666","d6a8e9a0-1111-4222-8333-444455556666"]`,
			want:    []string{"d6a8e9a0-1111-4222-8333-444455556666"},
		},
		{
			name:    "nested task_ids key",
			payload: `{"result":"OK","task_ids":["aaaaaaaa-bbbb-4ccc-8ddd-eeeeffff0000"]}`,
			want:    []string{"aaaaaaaa-bbbb-4ccc-8ddd-eeeeffff0000"},
		},
		{
			name:    "non-uuid strings ignored",
			payload: `{"result":"OK","id":17}`,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload interface{}
			if err := json.Unmarshal([]byte(tt.payload), &payload); err != nil {
				t.Fatalf("bad test payload: %v", err)
			}
			got := extractTaskIDs(payload)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractTaskIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyTaskState(t *testing.T) {
	tests := []struct {
		raw  string
		want TaskState
	}{
		{"SUCCESS", TaskStateSuccess},
		{"succeeded", TaskStateSuccess},
		{"DONE", TaskStateSuccess},
		{"FAILURE", TaskStateFailure},
		{"revoked", TaskStateFailure},
		{"STARTED", TaskStatePending},
		{"", TaskStatePending},
	}
	for _, tt := range tests {
		if got := classifyTaskState(tt.raw); got != tt.want {
			t.Errorf("classifyTaskState(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestTaskStatusParsesResultsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("task_id"); got != "abc" {
			t.Errorf("task_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"id":"abc","status":"FAILURE","result":"ocr crashed"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	state, detail, err := c.TaskStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("TaskStatus() error = %v", err)
	}
	if state != TaskStateFailure {
		t.Errorf("state = %q, want failure", state)
	}
	if detail != "result=ocr crashed" {
		t.Errorf("detail = %q", detail)
	}
}

func TestReprocessSendsBulkEdit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body["method"] != "reprocess" {
			t.Errorf("method = %v", body["method"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"OK","task_id":"aaaaaaaa-bbbb-4ccc-8ddd-eeeeffff0000"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ids, err := c.Reprocess(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if want := []string{"aaaaaaaa-bbbb-4ccc-8ddd-eeeeffff0000"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("task ids = %v, want %v", ids, want)
	}
}
