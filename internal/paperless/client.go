package paperless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mfriedrich/ocrtrack/internal/domain"
)

// Config holds the connection settings for the document management API.
type Config struct {
	BaseURL  string
	Token    string
	PageSize int
	Timeout  time.Duration
}

// Client talks to a Paperless-ngx style document management API.
type Client struct {
	client   *resty.Client
	baseURL  string
	pageSize int
}

// TaskState is the classified state of a server-side processing task.
type TaskState string

const (
	TaskStatePending TaskState = "pending"
	TaskStateSuccess TaskState = "success"
	TaskStateFailure TaskState = "failure"
)

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// New creates a new Client.
// Parameters:
//   - cfg: connection settings including base URL and API token.
// Returns:
//   - *Client: initialized client.
func New(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", normalizeTokenHeader(cfg.Token))
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	return &Client{
		client:   client,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		pageSize: pageSize,
	}
}

// normalizeTokenHeader prefixes bare tokens with the "Token " scheme.
// Tokens already carrying a Token or Bearer scheme pass through unchanged.
func normalizeTokenHeader(token string) string {
	token = strings.TrimSpace(token)
	lower := strings.ToLower(token)
	if strings.HasPrefix(lower, "token ") || strings.HasPrefix(lower, "bearer ") {
		return token
	}
	return "Token " + token
}

// Document is the normalized view of one remote document payload.
type Document struct {
	ID               int64
	Title            string
	MimeType         string
	OriginalFilename string
	ArchiveFilename  string
	PageCount        *int
	ContentLength    int64
	Content          string
	ModifiedAt       time.Time
	Tags             []string
}

type listResponse struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// ListDocumentsPage fetches one page of the document listing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - page: 1-based page number.
// Returns:
//   - []Document: normalized documents on the page.
//   - bool: true when more pages follow.
//   - error: non-nil on transport, auth, or payload-shape failure.
func (c *Client) ListDocumentsPage(ctx context.Context, page int) ([]Document, bool, error) {
	var out listResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":      strconv.Itoa(page),
			"page_size": strconv.Itoa(c.pageSize),
		}).
		SetResult(&out).
		Get(c.baseURL + "/api/documents/")
	if err := c.checkResponse(resp, err, "list documents"); err != nil {
		return nil, false, err
	}

	docs := make([]Document, 0, len(out.Results))
	for _, raw := range out.Results {
		doc, err := normalizeDocument(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrSchemaMismatch, err)
		}
		docs = append(docs, doc)
	}
	return docs, out.Next != nil && *out.Next != "", nil
}

// GetDocument fetches and normalizes a single document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: remote document ID.
// Returns:
//   - *Document: normalized document.
//   - error: non-nil on transport, auth, or payload-shape failure.
func (c *Client) GetDocument(ctx context.Context, id int64) (*Document, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id))
	if err := c.checkResponse(resp, err, fmt.Sprintf("get document %d", id)); err != nil {
		return nil, err
	}
	doc, err := normalizeDocument(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: document %d: %v", domain.ErrSchemaMismatch, id, err)
	}
	return &doc, nil
}

// DownloadOriginal fetches the original file bytes for a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: remote document ID.
// Returns:
//   - []byte: raw file bytes.
//   - string: content type reported by the server.
//   - error: non-nil on transport or auth failure.
func (c *Client) DownloadOriginal(ctx context.Context, id int64) ([]byte, string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/api/documents/%d/download/?original=true", c.baseURL, id))
	if err := c.checkResponse(resp, err, fmt.Sprintf("download document %d", id)); err != nil {
		return nil, "", err
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// UpdateContent patches the document's OCR text content.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: remote document ID.
//   - content: replacement text content.
// Returns:
//   - error: non-nil on transport or auth failure.
func (c *Client) UpdateContent(ctx context.Context, id int64, content string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": content}).
		Patch(fmt.Sprintf("%s/api/documents/%d/", c.baseURL, id))
	return c.checkResponse(resp, err, fmt.Sprintf("update content of document %d", id))
}

// Reprocess asks the server to re-run its OCR pipeline for the documents.
// Some server versions answer with task IDs, others accept with a bare
// result string; the returned slice is empty in the latter case.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: remote document IDs to reprocess.
// Returns:
//   - []string: deduplicated task IDs found in the response, if any.
//   - error: non-nil on transport, auth, or payload-shape failure.
func (c *Client) Reprocess(ctx context.Context, ids []int64) ([]string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"documents": ids,
			"method":    "reprocess",
		}).
		Post(c.baseURL + "/api/documents/bulk_edit/")
	if err := c.checkResponse(resp, err, "bulk reprocess"); err != nil {
		return nil, err
	}

	var payload interface{}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("%w: bulk reprocess response: %v", domain.ErrSchemaMismatch, err)
	}
	return extractTaskIDs(payload), nil
}

// TaskStatus fetches the state of a server-side task.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - taskID: task ID returned by Reprocess.
// Returns:
//   - TaskState: classified task state.
//   - string: server-provided detail, if any.
//   - error: non-nil on transport, auth, or payload-shape failure.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (TaskState, string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.baseURL + "/api/tasks/?task_id=" + url.QueryEscape(taskID))
	if err := c.checkResponse(resp, err, "task status"); err != nil {
		return TaskStatePending, "", err
	}

	var payload interface{}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return TaskStatePending, "", fmt.Errorf("%w: task status response: %v", domain.ErrSchemaMismatch, err)
	}
	state, detail := taskStateFromPayload(payload)
	return classifyTaskState(state), detail, nil
}

// checkResponse maps transport and HTTP errors onto the shared error kinds.
func (c *Client) checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrRemoteUnavailable, op, err)
	}
	code := resp.StatusCode()
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%w: %s: HTTP %d", domain.ErrAuthFailure, op, code)
	case code >= 500:
		return fmt.Errorf("%w: %s: HTTP %d", domain.ErrRemoteUnavailable, op, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: %s: HTTP %d: %s", domain.ErrRemoteUnavailable, op, code, truncate(string(resp.Body()), 200))
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeDocument maps one raw document payload onto the normalized view.
// Older and newer server versions disagree on several field names, so each
// field is resolved through its known aliases.
func normalizeDocument(raw []byte) (Document, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return Document{}, err
	}

	id, ok := asInt64(m["id"])
	if !ok {
		return Document{}, errors.New("document payload missing 'id'")
	}

	doc := Document{
		ID:               id,
		Title:            asString(firstPresent(m, "title")),
		MimeType:         asString(firstPresent(m, "mime_type")),
		OriginalFilename: asString(firstPresent(m, "original_filename", "original_file_name", "original_file", "filename")),
		ArchiveFilename:  asString(firstPresent(m, "archive_filename", "archived_file_name", "archive_file_name", "archive_file")),
		Content:          asString(firstPresent(m, "content", "text")),
	}

	if v, ok := asInt64(firstPresent(m, "content_length")); ok {
		doc.ContentLength = v
	} else {
		doc.ContentLength = int64(len(doc.Content))
	}

	if v, ok := asInt64(firstPresent(m, "page_count", "pages")); ok {
		pages := int(v)
		doc.PageCount = &pages
	}

	if modified := asString(firstPresent(m, "modified", "updated", "created")); modified != "" {
		if ts, err := parseTimestamp(modified); err == nil {
			doc.ModifiedAt = ts
		}
	}

	if tags, ok := firstPresent(m, "tags").([]interface{}); ok {
		for _, t := range tags {
			switch v := t.(type) {
			case string:
				doc.Tags = append(doc.Tags, v)
			case float64:
				doc.Tags = append(doc.Tags, strconv.FormatInt(int64(v), 10))
			}
		}
	}

	return doc, nil
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// extractTaskIDs collects UUID-shaped strings from likely task-ID positions
// in the response payload, deduplicated in discovery order.
func extractTaskIDs(payload interface{}) []string {
	var dedup []string
	seen := make(map[string]bool)
	for _, id := range iterPossibleTaskIDs(payload) {
		if seen[id] {
			continue
		}
		seen[id] = true
		dedup = append(dedup, id)
	}
	return dedup
}

func iterPossibleTaskIDs(obj interface{}) []string {
	var found []string
	switch v := obj.(type) {
	case string:
		if uuidRe.MatchString(strings.TrimSpace(v)) {
			found = append(found, strings.TrimSpace(v))
		}
	case []interface{}:
		for _, item := range v {
			found = append(found, iterPossibleTaskIDs(item)...)
		}
	case map[string]interface{}:
		for _, key := range []string{"task_id", "task_ids", "id", "task", "uuid"} {
			if val, ok := v[key]; ok {
				found = append(found, iterPossibleTaskIDs(val)...)
			}
		}
		for _, val := range v {
			found = append(found, iterPossibleTaskIDs(val)...)
		}
	}
	return found
}

// taskStateFromPayload digs the task object out of the various shapes the
// tasks endpoint can answer with.
func taskStateFromPayload(payload interface{}) (string, string) {
	var taskObj map[string]interface{}

	switch v := payload.(type) {
	case map[string]interface{}:
		if results, ok := v["results"].([]interface{}); ok && len(results) > 0 {
			taskObj, _ = results[0].(map[string]interface{})
		} else if _, hasID := v["id"]; hasID {
			if _, hasStatus := v["status"]; hasStatus {
				taskObj = v
			}
		}
	case []interface{}:
		if len(v) > 0 {
			taskObj, _ = v[0].(map[string]interface{})
		}
	}

	if taskObj == nil {
		return "PENDING", "Task metadata not available yet"
	}

	state := "PENDING"
	for _, key := range []string{"status", "state", "task_status"} {
		if s, ok := taskObj[key].(string); ok && strings.TrimSpace(s) != "" {
			state = strings.ToUpper(strings.TrimSpace(s))
			break
		}
	}

	var detailParts []string
	for _, key := range []string{"result", "message", "traceback"} {
		if s, ok := taskObj[key].(string); ok && strings.TrimSpace(s) != "" {
			detailParts = append(detailParts, key+"="+strings.TrimSpace(s))
		}
	}
	return state, strings.Join(detailParts, " | ")
}

func classifyTaskState(rawState string) TaskState {
	switch strings.ToUpper(rawState) {
	case "SUCCESS", "SUCCEEDED", "DONE", "COMPLETED", "COMPLETE", "FINISHED":
		return TaskStateSuccess
	case "FAILURE", "FAILED", "ERROR", "REVOKED", "CANCELED", "CANCELLED":
		return TaskStateFailure
	default:
		return TaskStatePending
	}
}
