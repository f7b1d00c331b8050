// Package provider wraps the third-party generation task API: create a task,
// query its status, normalize its loosely-versioned response shapes.
package provider

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

	"github.com/rs/zerolog"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("provider: api key is required")

// Function modes understood by the task API. Text, image and frame-pair
// generations all ride the first/last-frames mode; only multi-reference uses
// its own.
const (
	FunctionFirstLastFrames = "first_last_frames"
	FunctionOmniReference   = "omni_reference"
)

// TaskState is the provider-reported lifecycle state, normalized.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// TaskSpec is the inner parameter block for task creation.
type TaskSpec struct {
	Prompt      string
	Model       string
	Ratio       string
	DurationSec int
	Mode        domain.Mode
	FilePaths   []string
	ImageFiles  []string
	VideoFiles  []string
}

// TaskStatus is the normalized result of a status query or webhook payload.
type TaskStatus struct {
	State      TaskState
	ResultURL  string
	ErrMessage string
}

// Options configures the task API client.
type Options struct {
	APIKey         string
	BaseURL        string
	WrapperModel   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the generation task API.
type Client struct {
	apiKey       string
	baseURL      string
	wrapperModel string
	httpClient   *http.Client
	logger       *infra.Logger
}

type createRequest struct {
	Model   string         `json:"model"`
	Params  map[string]any `json:"params"`
	Channel any            `json:"channel"`
}

type createResponse struct {
	TaskID string `json:"task_id"`
	Data   struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
	Message string `json:"message"`
}

type queryRequest struct {
	TaskID string `json:"task_id"`
}

// queryResponse mirrors the provider's status payload. The result artifact
// location is not fixed across provider versions; Output stays raw and goes
// through ExtractResultURL.
type queryResponse struct {
	Data struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
		Error  any             `json:"error"`
	} `json:"data"`
	Message string `json:"message"`
}

// resultOutput digs the output map out of a result payload. Newer provider
// versions nest it under result.output; older ones put it directly in result.
func resultOutput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var nested struct {
		Output map[string]any `json:"output"`
	}
	if json.Unmarshal(raw, &nested) == nil && len(nested.Output) > 0 {
		return nested.Output
	}
	var direct map[string]any
	if json.Unmarshal(raw, &direct) == nil {
		return direct
	}
	return nil
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.xskill.ai"
	}
	wrapper := strings.TrimSpace(opts.WrapperModel)
	if wrapper == "" {
		wrapper = "st-ai/super-seed2"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		wrapperModel: wrapper,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// CreateTask submits a generation task and returns the provider's task id.
func (c *Client) CreateTask(ctx context.Context, spec TaskSpec) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	params := map[string]any{
		"model":    spec.Model,
		"prompt":   spec.Prompt,
		"ratio":    spec.Ratio,
		"duration": spec.DurationSec,
	}
	if spec.Mode == domain.ModeMultiReference {
		params["functionMode"] = FunctionOmniReference
		if len(spec.ImageFiles) > 0 {
			params["image_files"] = spec.ImageFiles
		}
		if len(spec.VideoFiles) > 0 {
			params["video_files"] = spec.VideoFiles
		}
	} else {
		params["functionMode"] = FunctionFirstLastFrames
		if len(spec.FilePaths) > 0 {
			params["filePaths"] = spec.FilePaths
		}
	}

	payload := createRequest{Model: c.wrapperModel, Params: params, Channel: nil}
	var resp createResponse
	status, err := c.post(ctx, "/api/v3/tasks/create", payload, &resp)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &domain.ProviderError{
			StatusCode:  status,
			Message:     resp.Message,
			RateLimited: status == http.StatusTooManyRequests,
		}
	}
	taskID := resp.Data.TaskID
	if taskID == "" {
		taskID = resp.TaskID
	}
	if taskID == "" {
		return "", &domain.ProviderError{StatusCode: status, Message: "no task id in create response"}
	}
	return taskID, nil
}

// QueryTask fetches the current status of a task and normalizes it.
func (c *Client) QueryTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("provider: task id is required")
	}

	var resp queryResponse
	status, err := c.post(ctx, "/api/v3/tasks/query", queryRequest{TaskID: taskID}, &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &domain.ProviderError{
			StatusCode:  status,
			Message:     resp.Message,
			RateLimited: status == http.StatusTooManyRequests,
		}
	}

	return StatusFrom(resp.Data.Status, resp.Data.Result, resp.Data.Error), nil
}

// StatusFrom normalizes a raw status/result/error triple. Both the query
// endpoint and webhook callbacks report this shape.
func StatusFrom(status string, result json.RawMessage, errField any) *TaskStatus {
	out := &TaskStatus{State: NormalizeState(status)}
	if out.State == TaskCompleted {
		if url, ok := ExtractResultURL(resultOutput(result)); ok {
			out.ResultURL = url
		}
	}
	if out.State == TaskFailed {
		out.ErrMessage = ErrorMessage(errField)
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, payload any, into any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("provider: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("provider: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("provider: read response: %w", err)
	}
	if len(data) > 0 {
		// Error bodies still carry a message field worth surfacing; a decode
		// failure on them is not fatal.
		if err := json.Unmarshal(data, into); err != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("provider: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// NormalizeState folds the provider's status vocabulary into the three states
// the reconciler understands. Unknown statuses count as pending.
func NormalizeState(status string) TaskState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "success", "succeeded":
		return TaskCompleted
	case "failed", "error":
		return TaskFailed
	default:
		return TaskPending
	}
}

// ErrorMessage flattens the provider's error field, which may be a plain
// string or a structured object.
func ErrorMessage(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprintf("%v", e)
		}
		return string(data)
	}
}
