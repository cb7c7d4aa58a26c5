package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"

	"github.com/JakeFAU/edison-gateway/internal/edison"
	"github.com/JakeFAU/edison-gateway/internal/jobs"
)

const (
	maxBodyBytes = 1 << 20
	// continuedJobIDKey links a continuation task to its predecessor.
	continuedJobIDKey = "continued_job_id"

	statusCompleted = "completed"
	statusStarted   = "started"
	statusUnknown   = "unknown"
)

// TaskRequest asks for one task of a given job type.
type TaskRequest struct {
	Name          jobs.JobType   `json:"name"`
	Query         string         `json:"query"`
	RuntimeConfig map[string]any `json:"runtime_config,omitempty"`
}

// MultipleTasksRequest submits several tasks; results keep this order.
type MultipleTasksRequest struct {
	Tasks []TaskRequest `json:"tasks"`
}

// TaskResponse carries exactly one of a started task ID or a completed answer.
type TaskResponse struct {
	TaskID *string `json:"task_id"`
	Answer *string `json:"answer"`
	Status *string `json:"status"`
	Error  *string `json:"error"`
}

// TaskStatusResponse reports the remote state of a task.
type TaskStatusResponse struct {
	TaskID string  `json:"task_id"`
	Status string  `json:"status"`
	Answer *string `json:"answer"`
	Error  *string `json:"error"`
}

type healthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	ClientConfigured bool   `json:"client_configured"`
	Error            string `json:"error,omitempty"`
}

type jobCatalogResponse struct {
	Jobs []jobs.Info `json:"jobs"`
}

func startedResponse(taskID string) TaskResponse {
	return TaskResponse{TaskID: &taskID, Status: ptr(statusStarted)}
}

func completedResponse(task edison.Task) TaskResponse {
	return TaskResponse{Answer: task.AnswerText(), Status: ptr(statusCompleted)}
}

func statusResponse(taskID string, task edison.Task) TaskStatusResponse {
	status := task.Status
	if status == "" {
		status = statusUnknown
	}
	return TaskStatusResponse{
		TaskID: taskID,
		Status: status,
		Answer: task.AnswerText(),
		Error:  task.Error,
	}
}

// payload builds the outbound task. An empty runtime config is omitted.
func (t TaskRequest) payload() edison.TaskPayload {
	p := edison.TaskPayload{
		Name:  t.Name.EdisonName(),
		Query: t.Query,
	}
	if len(t.RuntimeConfig) > 0 {
		p.RuntimeConfig = maps.Clone(t.RuntimeConfig)
	}
	return p
}

// continuationPayload injects continued_job_id and then applies the caller's
// runtime config on top, so caller keys win. Only top-level keys are merged.
func (t TaskRequest) continuationPayload(continuedJobID string) edison.TaskPayload {
	p := edison.TaskPayload{
		Name:          t.Name.EdisonName(),
		Query:         t.Query,
		RuntimeConfig: map[string]any{continuedJobIDKey: continuedJobID},
	}
	maps.Copy(p.RuntimeConfig, t.RuntimeConfig)
	return p
}

// taskRequestJSON mirrors TaskRequest with pointers so absent fields can be
// told apart from empty ones.
type taskRequestJSON struct {
	Name          *jobs.JobType  `json:"name"`
	Query         *string        `json:"query"`
	RuntimeConfig map[string]any `json:"runtime_config"`
}

func (j taskRequestJSON) validate(path string) (TaskRequest, error) {
	if j.Name == nil {
		return TaskRequest{}, invalid(path + "name: field required")
	}
	if j.Query == nil {
		return TaskRequest{}, invalid(path + "query: field required")
	}
	return TaskRequest{Name: *j.Name, Query: *j.Query, RuntimeConfig: j.RuntimeConfig}, nil
}

func decodeTaskRequest(r *http.Request) (TaskRequest, error) {
	var raw taskRequestJSON
	if err := decodeBody(r, &raw); err != nil {
		return TaskRequest{}, err
	}
	return raw.validate("")
}

func decodeMultipleTasksRequest(r *http.Request) (MultipleTasksRequest, error) {
	var raw struct {
		Tasks *[]taskRequestJSON `json:"tasks"`
	}
	if err := decodeBody(r, &raw); err != nil {
		return MultipleTasksRequest{}, err
	}
	if raw.Tasks == nil {
		return MultipleTasksRequest{}, invalid("tasks: field required")
	}
	out := MultipleTasksRequest{Tasks: make([]TaskRequest, 0, len(*raw.Tasks))}
	for i, item := range *raw.Tasks {
		task, err := item.validate(fmt.Sprintf("tasks[%d].", i))
		if err != nil {
			return MultipleTasksRequest{}, err
		}
		out.Tasks = append(out.Tasks, task)
	}
	return out, nil
}

// decodeBody reads one JSON document into dst. Numbers are kept as
// json.Number so runtime config values are forwarded without float rounding.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var (
			jobErr   *jobs.InvalidJobTypeError
			maxErr   *http.MaxBytesError
			typeErr  *json.UnmarshalTypeError
			syntaxEr *json.SyntaxError
		)
		switch {
		case errors.Is(err, io.EOF):
			return invalid("request body is required")
		case errors.As(err, &jobErr):
			return invalid("name: " + jobErr.Error())
		case errors.As(err, &maxErr):
			return invalid(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.As(err, &typeErr):
			return invalid(fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type))
		case errors.As(err, &syntaxEr):
			return invalid("invalid JSON")
		default:
			return invalid("invalid JSON")
		}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
