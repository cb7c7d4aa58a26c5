package edison

import (
	"errors"
	"fmt"
	"strings"
)

// JobName is the Edison platform's identifier for a kind of task.
type JobName string

// Job names understood by the Edison platform.
const (
	JobLiterature JobName = "job-futurehouse-paperqa3"
	JobAnalysis   JobName = "job-futurehouse-data-analysis-crow-high"
	JobPrecedent  JobName = "job-futurehouse-paperqa3-precedent"
	JobMolecules  JobName = "job-futurehouse-phoenix"
	JobDummy      JobName = "job-futurehouse-dummy-env"
)

// Status values reported by the platform for a task.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in progress"
	StatusSuccess    = "success"
	StatusFail       = "fail"
	StatusCancelled  = "cancelled"
	StatusTruncated  = "truncated"
)

// TaskPayload is the body submitted to create a task.
type TaskPayload struct {
	Name          JobName        `json:"name"`
	Query         string         `json:"query"`
	RuntimeConfig map[string]any `json:"runtime_config,omitempty"`
}

// Task is the platform's view of a submitted task. Pointer fields are nil
// when the platform omitted them.
type Task struct {
	ID              string  `json:"id,omitempty"`
	Status          string  `json:"status,omitempty"`
	Answer          *string `json:"answer,omitempty"`
	FormattedAnswer *string `json:"formatted_answer,omitempty"`
	Error           *string `json:"error,omitempty"`
}

// Terminal reports whether the platform will not change the task further.
func (t Task) Terminal() bool {
	switch strings.ToLower(t.Status) {
	case StatusSuccess, StatusFail, StatusCancelled, StatusTruncated:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the task finished successfully.
func (t Task) Succeeded() bool {
	return strings.EqualFold(t.Status, StatusSuccess)
}

// AnswerText prefers the plain answer and falls back to the formatted one.
func (t Task) AnswerText() *string {
	if t.Answer != nil {
		return t.Answer
	}
	return t.FormattedAnswer
}

// ErrInvalidToken is returned by NewClient for an empty API key.
var ErrInvalidToken = errors.New("edison: api key is required")

// StatusError is returned when the platform answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("edison returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("edison returned HTTP %d: %s", e.Code, e.Body)
}

// TaskFailedError is returned by the run-until-done operations when a task
// reaches a terminal status other than success.
type TaskFailedError struct {
	TaskID  string
	Status  string
	Message string
}

func (e *TaskFailedError) Error() string {
	msg := fmt.Sprintf("task %s finished with status %q", e.TaskID, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}
