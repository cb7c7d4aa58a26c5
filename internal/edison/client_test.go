package edison

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakePlatform is an in-memory stand-in for the Edison REST API. Each created
// task reports "in progress" for pollsBeforeDone polls and then finishes with
// finalStatus.
type fakePlatform struct {
	mu              sync.Mutex
	created         []TaskPayload
	polls           map[string]int
	tokens          []string
	pollsBeforeDone int
	finalStatus     string
	createStatus    int
	createBody      string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{polls: make(map[string]int), finalStatus: StatusSuccess}
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == createPath:
		if f.createStatus != 0 {
			w.WriteHeader(f.createStatus)
			_, _ = w.Write([]byte(f.createBody))
			return
		}
		var payload TaskPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.created = append(f.created, payload)
		id := fmt.Sprintf("task-%d", len(f.created))
		_ = json.NewEncoder(w).Encode(map[string]string{"trajectory_id": id})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, taskPath):
		id := strings.TrimPrefix(r.URL.Path, taskPath)
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"not found"}`))
			return
		}
		f.polls[id]++
		resp := map[string]any{"id": id, "status": StatusInProgress}
		if f.polls[id] > f.pollsBeforeDone {
			resp["status"] = f.finalStatus
			switch f.finalStatus {
			case StatusSuccess:
				resp["answer"] = "answer for " + id
			default:
				resp["error"] = "remote exploded"
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, platform http.Handler, opts ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)
	cfg := Config{
		BaseURL:      srv.URL,
		PollInterval: time.Millisecond,
		HTTPTimeout:  5 * time.Second,
		UserAgent:    "edison-gateway-test",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := NewClient(cfg, "secret-token")
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{BaseURL: "https://edison.example"}, "")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewClient(Config{BaseURL: "edison.example"}, "tok")
	require.ErrorContains(t, err, "not absolute")

	client, err := NewClient(Config{BaseURL: "https://edison.example"}, "tok")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, client.pollInterval)
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	client := newTestClient(t, platform)

	id, err := client.CreateTask(context.Background(), TaskPayload{
		Name:          JobDummy,
		Query:         "hello",
		RuntimeConfig: map[string]any{"continued_job_id": "J1"},
	})
	require.NoError(t, err)
	require.Equal(t, "task-1", id)

	platform.mu.Lock()
	defer platform.mu.Unlock()
	require.Len(t, platform.created, 1)
	require.Equal(t, JobDummy, platform.created[0].Name)
	require.Equal(t, "J1", platform.created[0].RuntimeConfig["continued_job_id"])
	require.Equal(t, []string{"Bearer secret-token"}, platform.tokens)
}

func TestCreateTaskStatusError(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.createStatus = http.StatusUnauthorized
	platform.createBody = `{"detail":"bad key"}`
	client := newTestClient(t, platform)

	_, err := client.CreateTask(context.Background(), TaskPayload{Name: JobDummy, Query: "q"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)
	require.Contains(t, err.Error(), "bad key")
}

func TestGetTaskNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, newFakePlatform())

	_, err := client.GetTask(context.Background(), "missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestRunUntilDonePollsToCompletion(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.pollsBeforeDone = 2
	client := newTestClient(t, platform)

	task, err := client.RunUntilDone(context.Background(), TaskPayload{Name: JobDummy, Query: "q"})
	require.NoError(t, err)
	require.True(t, task.Succeeded())
	require.NotNil(t, task.AnswerText())
	require.Equal(t, "answer for task-1", *task.AnswerText())

	platform.mu.Lock()
	defer platform.mu.Unlock()
	require.Equal(t, 3, platform.polls["task-1"])
}

func TestRunUntilDoneFailedTask(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.finalStatus = StatusFail
	client := newTestClient(t, platform)

	_, err := client.RunUntilDone(context.Background(), TaskPayload{Name: JobDummy, Query: "q"})
	var failed *TaskFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "task-1", failed.TaskID)
	require.Equal(t, StatusFail, failed.Status)
	require.Contains(t, err.Error(), "remote exploded")
}

func TestRunUntilDoneHonoursContext(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.pollsBeforeDone = 1 << 30
	client := newTestClient(t, platform)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.RunUntilDone(ctx, TaskPayload{Name: JobDummy, Query: "q"})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"))
}

func TestRunUntilDoneBatchPreservesOrder(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.pollsBeforeDone = 1
	client := newTestClient(t, platform)

	tasks, err := client.RunUntilDoneBatch(context.Background(), []TaskPayload{
		{Name: JobLiterature, Query: "first"},
		{Name: JobDummy, Query: "second"},
		{Name: JobMolecules, Query: "third"},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, task := range tasks {
		require.Equal(t, fmt.Sprintf("task-%d", i+1), task.ID)
		require.Equal(t, fmt.Sprintf("answer for task-%d", i+1), *task.AnswerText())
	}

	platform.mu.Lock()
	defer platform.mu.Unlock()
	require.Equal(t, "first", platform.created[0].Query)
	require.Equal(t, "third", platform.created[2].Query)
}

func TestRunUntilDoneBatchAbortsOnCreateFailure(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform()
	platform.createStatus = http.StatusInternalServerError
	client := newTestClient(t, platform)

	tasks, err := client.RunUntilDoneBatch(context.Background(), []TaskPayload{{Name: JobDummy, Query: "q"}})
	require.Nil(t, tasks)
	require.ErrorContains(t, err, "create task 0")
}

func TestClientRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	client := newTestClient(t, newFakePlatform(), func(cfg *Config) {
		cfg.TracerProvider = tp
	})

	_, err := client.RunUntilDone(context.Background(), TaskPayload{Name: JobDummy, Query: "q"})
	require.NoError(t, err)

	names := make(map[string]int)
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	require.Equal(t, 1, names["edison.RunUntilDone"])
	require.Equal(t, 1, names["edison.CreateTask"])
	require.GreaterOrEqual(t, names["edison.GetTask"], 1)
}

func TestParseTaskID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare string", raw: `"abc"`, want: "abc"},
		{name: "trajectory id", raw: `{"trajectory_id":"t1"}`, want: "t1"},
		{name: "id", raw: `{"id":"i1"}`, want: "i1"},
		{name: "empty object", raw: `{}`, wantErr: true},
		{name: "garbage", raw: `nope`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseTaskID([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTaskHelpers(t *testing.T) {
	t.Parallel()

	formatted := "formatted"
	task := Task{Status: "SUCCESS", FormattedAnswer: &formatted}
	require.True(t, task.Terminal())
	require.True(t, task.Succeeded())
	require.Equal(t, "formatted", *task.AnswerText())

	require.False(t, Task{Status: StatusQueued}.Terminal())
	require.True(t, Task{Status: StatusTruncated}.Terminal())
	require.Nil(t, Task{}.AnswerText())
}
