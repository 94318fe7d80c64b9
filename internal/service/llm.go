package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/prompts"
)

// LLM request modes. The responses API carries the PDF as a typed input
// file; chat completions embeds the data URL in the user message.
const (
	LLMModeChat      = "chat_completions"
	LLMModeResponses = "responses"
)

// LLMService extracts document text through an OpenAI-compatible endpoint.
type LLMService struct {
	client  *resty.Client
	baseURL string
	model   string
	mode    string
	policy  RetryPolicy
}

// LLMConfig holds configuration for the LLM OCR service.
type LLMConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Mode         string
	Timeout      time.Duration
	RetryCount   int // total attempt budget, minimum 1
	RetryBackoff time.Duration
}

// NewLLMService creates a new LLM OCR service.
// Parameters:
//   - cfg: endpoint configuration including model, mode, and retry policy.
// Returns:
//   - *LLMService: initialized client wrapper.
func NewLLMService(cfg *LLMConfig) *LLMService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	mode := cfg.Mode
	if mode != LLMModeResponses {
		mode = LLMModeChat
	}

	// RetryCount caps total attempts: retry_count=2 means at most one retry.
	attempts := cfg.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	return &LLMService{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		mode:    mode,
		policy: RetryPolicy{
			MaxRetries: attempts - 1,
			Backoff:    cfg.RetryBackoff,
		},
	}
}

// GetModel returns the model name being used.
// Parameters: none.
// Returns:
//   - string: model identifier.
func (s *LLMService) GetModel() string {
	return s.model
}

// Chat completions request structures
type llmChatRequest struct {
	Model       string           `json:"model"`
	Messages    []llmChatMessage `json:"messages"`
	Temperature float64          `json:"temperature"`
}

type llmChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Responses API request structures
type llmResponsesRequest struct {
	Model string              `json:"model"`
	Input []llmResponsesInput `json:"input"`
}

type llmResponsesInput struct {
	Role    string               `json:"role"`
	Content []llmResponsesInputC `json:"content"`
}

type llmResponsesInputC struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

// ExtractPDFText sends a PDF to the endpoint and returns the extracted text.
// Transient failures (HTTP 5xx, network errors, timeouts) are retried with
// linear backoff; client errors are not.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - pdfData: raw PDF bytes.
//   - filename: original filename, forwarded as a hint to the model.
// Returns:
//   - string: extracted text.
//   - int: number of attempts made.
//   - error: non-nil if the request ultimately fails.
func (s *LLMService) ExtractPDFText(ctx context.Context, pdfData []byte, filename string) (string, int, error) {
	encodedPDF := base64.StdEncoding.EncodeToString(pdfData)
	fileDataURL := "data:application/pdf;base64," + encodedPDF

	var url string
	var body interface{}
	if s.mode == LLMModeResponses {
		url = s.baseURL + "/responses"
		body = llmResponsesRequest{
			Model: s.model,
			Input: []llmResponsesInput{
				{
					Role: "user",
					Content: []llmResponsesInputC{
						{Type: "input_text", Text: prompts.OCRUserPrompt},
						{Type: "input_file", Filename: filename, FileData: fileDataURL},
					},
				},
			},
		}
	} else {
		url = s.baseURL + "/chat/completions"
		body = llmChatRequest{
			Model: s.model,
			Messages: []llmChatMessage{
				{Role: "system", Content: prompts.OCRSystemPrompt},
				{
					Role: "user",
					Content: fmt.Sprintf("%s\n\nFilename: %s\nPDF base64 data URL:\n%s",
						prompts.OCRUserPrompt, filename, fileDataURL),
				},
			},
			Temperature: 0,
		}
	}

	var text string
	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(body).
			Post(url)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
				return fmt.Errorf("%w: llm request: %v", domain.ErrTimeout, err)
			}
			return fmt.Errorf("%w: llm request: %v", domain.ErrRemoteUnavailable, err)
		}

		code := resp.StatusCode()
		switch {
		case code == 401 || code == 403:
			return fmt.Errorf("%w: llm request: HTTP %d", domain.ErrAuthFailure, code)
		case code >= 500:
			return fmt.Errorf("%w: llm request: HTTP %d: %s", domain.ErrRemoteUnavailable, code, truncateBody(resp.Body()))
		case code < 200 || code >= 300:
			return fmt.Errorf("llm request: HTTP %d: %s", code, truncateBody(resp.Body()))
		}

		extracted, err := extractLLMText(resp.Body())
		if err != nil {
			return err
		}
		text = extracted
		return nil
	}, llmRetryable)

	if err != nil {
		return "", attempts, err
	}
	return text, attempts, nil
}

// llmRetryable reports whether a request error is worth another attempt.
// Server-side failures, network errors, and timeouts are; everything the
// client did wrong is not.
func llmRetryable(err error) bool {
	return errors.Is(err, domain.ErrRemoteUnavailable) || errors.Is(err, domain.ErrTimeout)
}

func isTimeoutErr(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncateBody(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// extractLLMText pulls the text out of the known response shapes: a direct
// output_text field, the responses API output list, or the chat completions
// choices list.
func extractLLMText(body []byte) (string, error) {
	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: llm response: %v", domain.ErrSchemaMismatch, err)
	}

	if strings.TrimSpace(payload.OutputText) != "" {
		return strings.TrimSpace(payload.OutputText), nil
	}

	var texts []string
	for _, item := range payload.Output {
		for _, content := range item.Content {
			if strings.TrimSpace(content.Text) != "" {
				texts = append(texts, strings.TrimSpace(content.Text))
			}
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n\n"), nil
	}

	if len(payload.Choices) > 0 && strings.TrimSpace(payload.Choices[0].Message.Content) != "" {
		return strings.TrimSpace(payload.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("%w: could not extract OCR text from llm response", domain.ErrSchemaMismatch)
}
