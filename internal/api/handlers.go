package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/edison-gateway/internal/auth"
	"github.com/JakeFAU/edison-gateway/internal/edison"
	"github.com/JakeFAU/edison-gateway/internal/jobs"
	"github.com/JakeFAU/edison-gateway/internal/logging"
	"github.com/JakeFAU/edison-gateway/internal/metrics"
)

// TaskClient is the remote task-execution capability handlers depend on.
// *edison.Client satisfies it.
type TaskClient interface {
	CreateTask(ctx context.Context, payload edison.TaskPayload) (string, error)
	RunUntilDone(ctx context.Context, payload edison.TaskPayload) (edison.Task, error)
	RunUntilDoneBatch(ctx context.Context, payloads []edison.TaskPayload) ([]edison.Task, error)
	GetTask(ctx context.Context, taskID string) (edison.Task, error)
}

// ClientFactory builds a TaskClient bound to one caller's token. It is
// called once per request.
type ClientFactory func(token string) (TaskClient, error)

// edisonHealth reports whether a client can be built from the caller's
// token. Extraction failures answer 401 with a structured body rather than
// a bare detail.
func (s *Server) edisonHealth(w http.ResponseWriter, r *http.Request) error {
	token, err := auth.FromRequest(r)
	if err != nil {
		metrics.ObserveAuthFailure(authReason(err))
		w.Header().Set("WWW-Authenticate", auth.Scheme)
		writeJSON(w, http.StatusUnauthorized, healthResponse{
			Status:           "error",
			Service:          "edison",
			ClientConfigured: false,
			Error:            err.Error(),
		})
		return nil
	}
	if _, err := s.newClient(token); err != nil {
		return failed(opHealth, err)
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "connected",
		Service:          "edison",
		ClientConfigured: true,
	})
	return nil
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) error {
	client, req, err := s.prepareTask(r, opRunSync)
	if err != nil {
		return err
	}
	task, err := client.RunUntilDone(r.Context(), req.payload())
	if err != nil {
		return failed(opRunSync, err)
	}
	writeJSON(w, http.StatusOK, completedResponse(task))
	return nil
}

func (s *Server) runSyncMultiple(w http.ResponseWriter, r *http.Request) error {
	token, err := auth.FromRequest(r)
	if err != nil {
		return err
	}
	req, err := decodeMultipleTasksRequest(r)
	if err != nil {
		return err
	}
	client, err := s.newClient(token)
	if err != nil {
		return failed(opRunSyncMultiple, err)
	}
	payloads := make([]edison.TaskPayload, 0, len(req.Tasks))
	for _, task := range req.Tasks {
		payloads = append(payloads, task.payload())
	}
	tasks, err := client.RunUntilDoneBatch(r.Context(), payloads)
	if err != nil {
		return failed(opRunSyncMultiple, err)
	}
	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, completedResponse(task))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) runAsync(w http.ResponseWriter, r *http.Request) error {
	client, req, err := s.prepareTask(r, opRunAsync)
	if err != nil {
		return err
	}
	taskID, err := client.CreateTask(r.Context(), req.payload())
	if err != nil {
		return failed(opRunAsync, err)
	}
	writeJSON(w, http.StatusOK, startedResponse(taskID))
	return nil
}

// runAsyncMultiple submits tasks one at a time, in order. The first failure
// aborts the request; tasks already created are not reported.
func (s *Server) runAsyncMultiple(w http.ResponseWriter, r *http.Request) error {
	token, err := auth.FromRequest(r)
	if err != nil {
		return err
	}
	req, err := decodeMultipleTasksRequest(r)
	if err != nil {
		return err
	}
	client, err := s.newClient(token)
	if err != nil {
		return failed(opRunAsyncMultiple, err)
	}
	out := make([]TaskResponse, 0, len(req.Tasks))
	for i, task := range req.Tasks {
		taskID, err := client.CreateTask(r.Context(), task.payload())
		if err != nil {
			logging.FromContext(r.Context(), s.logger).Warn("batch submission aborted",
				zap.Int("index", i),
				zap.Int("submitted", len(out)),
			)
			return failed(opRunAsyncMultiple, err)
		}
		out = append(out, startedResponse(taskID))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request) error {
	token, err := auth.FromRequest(r)
	if err != nil {
		return err
	}
	taskID := chi.URLParam(r, "task_id")
	client, err := s.newClient(token)
	if err != nil {
		return failed(opTaskStatus, err)
	}
	task, err := client.GetTask(r.Context(), taskID)
	if err != nil {
		return failed(opTaskStatus, err)
	}
	writeJSON(w, http.StatusOK, statusResponse(taskID, task))
	return nil
}

func (s *Server) runContinuationSync(w http.ResponseWriter, r *http.Request) error {
	client, payload, err := s.prepareContinuation(r, opContinuationSync)
	if err != nil {
		return err
	}
	task, err := client.RunUntilDone(r.Context(), payload)
	if err != nil {
		return failed(opContinuationSync, err)
	}
	writeJSON(w, http.StatusOK, completedResponse(task))
	return nil
}

func (s *Server) runContinuationAsync(w http.ResponseWriter, r *http.Request) error {
	client, payload, err := s.prepareContinuation(r, opContinuationAsync)
	if err != nil {
		return err
	}
	taskID, err := client.CreateTask(r.Context(), payload)
	if err != nil {
		return failed(opContinuationAsync, err)
	}
	writeJSON(w, http.StatusOK, startedResponse(taskID))
	return nil
}

func (s *Server) listAvailableJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jobCatalogResponse{Jobs: jobs.Catalog()})
}

// prepareTask resolves the token, decodes a single TaskRequest and builds the
// request-scoped client, in that order.
func (s *Server) prepareTask(r *http.Request, op operation) (TaskClient, TaskRequest, error) {
	token, err := auth.FromRequest(r)
	if err != nil {
		return nil, TaskRequest{}, err
	}
	req, err := decodeTaskRequest(r)
	if err != nil {
		return nil, TaskRequest{}, err
	}
	client, err := s.newClient(token)
	if err != nil {
		return nil, TaskRequest{}, failed(op, err)
	}
	return client, req, nil
}

// prepareContinuation is prepareTask for continuation endpoints: the
// continued_job_id query parameter is required and merged into the payload.
func (s *Server) prepareContinuation(r *http.Request, op operation) (TaskClient, edison.TaskPayload, error) {
	token, err := auth.FromRequest(r)
	if err != nil {
		return nil, edison.TaskPayload{}, err
	}
	req, err := decodeTaskRequest(r)
	if err != nil {
		return nil, edison.TaskPayload{}, err
	}
	continuedJobID, err := continuedJobIDParam(r)
	if err != nil {
		return nil, edison.TaskPayload{}, err
	}
	client, err := s.newClient(token)
	if err != nil {
		return nil, edison.TaskPayload{}, failed(op, err)
	}
	return client, req.continuationPayload(continuedJobID), nil
}

func continuedJobIDParam(r *http.Request) (string, error) {
	values, ok := r.URL.Query()[continuedJobIDKey]
	if !ok || len(values) == 0 {
		return "", invalid(continuedJobIDKey + ": field required")
	}
	return values[0], nil
}
