// Package edison is a client for the Edison task-execution platform. A Client
// is bound to one caller's API key and owns all transport concerns: request
// encoding, authentication headers and the polling cadence used to wait for
// task completion.
package edison

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/edison-gateway/internal/metrics"
)

const (
	createPath   = "/v0.1/crows"
	taskPath     = "/v0.1/trajectories/"
	maxErrorBody = 4 << 10
	tracerName   = "github.com/JakeFAU/edison-gateway/internal/edison"
)

// Config controls how clients reach the platform.
type Config struct {
	BaseURL      string
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	UserAgent    string
	// HTTPClient overrides the transport. When nil a client with HTTPTimeout
	// is created.
	HTTPClient     *http.Client
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

// Client talks to the platform on behalf of a single API key.
type Client struct {
	base         *url.URL
	token        string
	userAgent    string
	pollInterval time.Duration
	http         *http.Client
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewClient binds cfg to token. It fails when the token is empty or the base
// URL is not absolute.
func NewClient(cfg Config, token string) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse edison base url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("edison base url %q is not absolute", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Client{
		base:         base,
		token:        token,
		userAgent:    cfg.UserAgent,
		pollInterval: poll,
		http:         httpClient,
		logger:       logger,
		tracer:       tp.Tracer(tracerName),
	}, nil
}

// CreateTask submits payload and returns the platform's task ID without
// waiting for the task to run.
func (c *Client) CreateTask(ctx context.Context, payload TaskPayload) (string, error) {
	ctx, span := c.tracer.Start(ctx, "edison.CreateTask", trace.WithAttributes(
		attribute.String("edison.job_name", string(payload.Name)),
	))
	defer span.End()

	start := time.Now()
	id, err := c.createTask(ctx, payload)
	metrics.ObserveRemoteCall("create_task", err, time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("edison.task_id", id))
	c.logger.Debug("task created", zap.String("task_id", id), zap.String("job", string(payload.Name)))
	return id, nil
}

// GetTask fetches the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	ctx, span := c.tracer.Start(ctx, "edison.GetTask", trace.WithAttributes(
		attribute.String("edison.task_id", taskID),
	))
	defer span.End()

	start := time.Now()
	task, err := c.getTask(ctx, taskID)
	metrics.ObserveRemoteCall("get_task", err, time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		return Task{}, err
	}
	span.SetAttributes(attribute.String("edison.status", task.Status))
	return task, nil
}

// RunUntilDone submits payload and polls until the task reaches a terminal
// status. A task that ends in anything but success yields *TaskFailedError.
func (c *Client) RunUntilDone(ctx context.Context, payload TaskPayload) (Task, error) {
	ctx, span := c.tracer.Start(ctx, "edison.RunUntilDone", trace.WithAttributes(
		attribute.String("edison.job_name", string(payload.Name)),
	))
	defer span.End()

	id, err := c.CreateTask(ctx, payload)
	if err != nil {
		recordSpanError(span, err)
		return Task{}, err
	}
	task, err := c.waitForTask(ctx, id)
	if err != nil {
		recordSpanError(span, err)
		return Task{}, err
	}
	return task, nil
}

// RunUntilDoneBatch submits every payload in order, then waits for each task
// in the same order. Results line up with payloads. The first error aborts
// the batch.
func (c *Client) RunUntilDoneBatch(ctx context.Context, payloads []TaskPayload) ([]Task, error) {
	ctx, span := c.tracer.Start(ctx, "edison.RunUntilDoneBatch", trace.WithAttributes(
		attribute.Int("edison.batch_size", len(payloads)),
	))
	defer span.End()

	ids := make([]string, 0, len(payloads))
	for i, payload := range payloads {
		id, err := c.CreateTask(ctx, payload)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("create task %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		task, err := c.waitForTask(ctx, id)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// waitForTask polls at most once per poll interval. The first poll happens
// immediately.
func (c *Client) waitForTask(ctx context.Context, taskID string) (Task, error) {
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return Task{}, fmt.Errorf("wait for task %s: %w", taskID, err)
		}
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if task.ID == "" {
			task.ID = taskID
		}
		c.logger.Debug("polled task",
			zap.String("task_id", taskID),
			zap.String("status", task.Status),
			zap.Int("attempt", attempt),
		)
		if !task.Terminal() {
			continue
		}
		if !task.Succeeded() {
			msg := ""
			if task.Error != nil {
				msg = *task.Error
			}
			return task, &TaskFailedError{TaskID: taskID, Status: task.Status, Message: msg}
		}
		return task, nil
	}
}

func (c *Client) createTask(ctx context.Context, payload TaskPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode task payload: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, createPath, body)
	if err != nil {
		return "", err
	}
	return parseTaskID(raw)
}

func (c *Client) getTask(ctx context.Context, taskID string) (Task, error) {
	raw, err := c.do(ctx, http.MethodGet, taskPath+url.PathEscape(taskID), nil)
	if err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return task, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	endpoint := c.base.JoinPath(path)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body failed", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best-effort detail
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}

// parseTaskID accepts either a bare JSON string or an object carrying the ID.
func parseTaskID(raw []byte) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		TrajectoryID string `json:"trajectory_id"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode task id: %w", err)
	}
	switch {
	case obj.TrajectoryID != "":
		return obj.TrajectoryID, nil
	case obj.ID != "":
		return obj.ID, nil
	default:
		return "", fmt.Errorf("decode task id: response carried no id")
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
