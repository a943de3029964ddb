// Package convert turns uploaded documents and web pages into Markdown by
// calling a docling-serve instance.
package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fkaule/docpilot/internal/config"
)

// Sentinel errors for conversion.
var (
	// ErrDisabled indicates no conversion service is configured. Ingestion
	// of raw text and Q&A sources still works without one.
	ErrDisabled = errors.New("conversion service not configured")

	// ErrConversionFailed indicates the service reported a failed task.
	ErrConversionFailed = errors.New("conversion failed")
)

// Client is an async docling-serve client: submit, poll, fetch result.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// NewClient creates a conversion client. An empty base URL yields a disabled
// client whose methods return ErrDisabled.
func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      cfg.DoclingBaseURL,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: cfg.ConvertPollInterval,
		timeout:      cfg.ConvertTimeout,
		logger:       logger,
	}
}

// Enabled reports whether a conversion service is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

type convertSource struct {
	Kind         string `json:"kind"`
	Base64String string `json:"base64_string,omitempty"`
	Filename     string `json:"filename,omitempty"`
	URL          string `json:"url,omitempty"`
}

type convertRequest struct {
	Options convertOptions  `json:"options"`
	Sources []convertSource `json:"sources"`
}

type convertOptions struct {
	ToFormats       []string `json:"to_formats"`
	ImageExportMode string   `json:"image_export_mode"`
	TableMode       string   `json:"table_mode"`
}

type taskResponse struct {
	TaskID     string `json:"task_id"`
	TaskStatus string `json:"task_status"`
}

type resultResponse struct {
	Document struct {
		MDContent string `json:"md_content"`
	} `json:"document"`
}

// ConvertFile converts an uploaded file to Markdown. The file bytes travel
// base64-encoded in the submit request.
func (c *Client) ConvertFile(ctx context.Context, filename string, data []byte) (string, error) {
	return c.convert(ctx, convertSource{
		Kind:         "file",
		Base64String: base64.StdEncoding.EncodeToString(data),
		Filename:     filename,
	})
}

// ConvertURL converts a web page to Markdown. Fetching happens server-side.
func (c *Client) ConvertURL(ctx context.Context, url string) (string, error) {
	return c.convert(ctx, convertSource{Kind: "http", URL: url})
}

func (c *Client) convert(ctx context.Context, source convertSource) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	// Hard deadline over submit + poll + result.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	taskID, err := c.submit(ctx, source)
	if err != nil {
		return "", err
	}
	c.logger.Debug("conversion task submitted", "task_id", taskID, "kind", source.Kind)

	if err := c.waitForTask(ctx, taskID); err != nil {
		return "", err
	}

	return c.fetchResult(ctx, taskID)
}

func (c *Client) submit(ctx context.Context, source convertSource) (string, error) {
	payload := convertRequest{
		Options: convertOptions{
			ToFormats:       []string{"md"},
			ImageExportMode: "placeholder",
			TableMode:       "accurate",
		},
		Sources: []convertSource{source},
	}

	var task taskResponse
	if err := c.postJSON(ctx, "/v1/convert/source/async", payload, &task); err != nil {
		return "", fmt.Errorf("submit conversion: %w", err)
	}
	if task.TaskID == "" {
		return "", fmt.Errorf("submit conversion: no task id returned")
	}
	return task.TaskID, nil
}

// waitForTask polls the task status with exponential backoff until the task
// succeeds, fails, or the deadline expires.
func (c *Client) waitForTask(ctx context.Context, taskID string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = 10 * c.pollInterval
	policy.MaxElapsedTime = 0 // the context carries the deadline

	operation := func() error {
		var task taskResponse
		if err := c.getJSON(ctx, "/v1/status/poll/"+taskID, &task); err != nil {
			return err
		}

		switch task.TaskStatus {
		case "success":
			return nil
		case "failure":
			return backoff.Permanent(fmt.Errorf("%w: task %s", ErrConversionFailed, taskID))
		default:
			return fmt.Errorf("task %s still %s", taskID, task.TaskStatus)
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("wait for conversion: %w", err)
	}
	return nil
}

func (c *Client) fetchResult(ctx context.Context, taskID string) (string, error) {
	var result resultResponse
	if err := c.getJSON(ctx, "/v1/result/"+taskID, &result); err != nil {
		return "", fmt.Errorf("fetch conversion result: %w", err)
	}
	return result.Document.MDContent, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
