package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/edison-gateway/internal/auth"
	"github.com/JakeFAU/edison-gateway/internal/logging"
	"github.com/JakeFAU/edison-gateway/internal/metrics"
)

// operation names the endpoint a remote failure came from. It selects the
// detail prefix and, for health checks, the status code.
type operation int

const (
	opRunSync operation = iota
	opRunSyncMultiple
	opRunAsync
	opRunAsyncMultiple
	opTaskStatus
	opContinuationSync
	opContinuationAsync
	opHealth
)

func (o operation) prefix() string {
	switch o {
	case opRunSync:
		return "Task execution failed"
	case opRunSyncMultiple:
		return "Tasks execution failed"
	case opRunAsync:
		return "Task creation failed"
	case opRunAsyncMultiple:
		return "Tasks creation failed"
	case opTaskStatus:
		return "Failed to get task status"
	case opContinuationSync:
		return "Continuation task failed"
	case opContinuationAsync:
		return "Continuation task creation failed"
	case opHealth:
		return "Edison service unavailable"
	}
	return "Request failed"
}

func (o operation) status() int {
	if o == opHealth {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// operationError wraps any failure raised while building or calling the
// remote client.
type operationError struct {
	op  operation
	err error
}

func (e *operationError) Error() string {
	return e.op.prefix() + ": " + e.err.Error()
}

func (e *operationError) Unwrap() error {
	return e.err
}

func failed(op operation, err error) error {
	return &operationError{op: op, err: err}
}

// validationError reports a request that does not match its schema.
type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}

func invalid(msg string) error {
	return &validationError{msg: msg}
}

// handlerFunc is an HTTP handler that reports failure by returning an error
// instead of writing it.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts h to http.HandlerFunc, translating returned errors into
// responses in one place.
func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeFailure(w, r, err)
		}
	}
}

// writeFailure maps an error kind onto a status code and a {"detail": ...}
// body.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context(), s.logger)

	var (
		opErr  *operationError
		valErr *validationError
	)
	switch {
	case auth.IsAuthError(err):
		metrics.ObserveAuthFailure(authReason(err))
		w.Header().Set("WWW-Authenticate", auth.Scheme)
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &valErr):
		writeError(w, http.StatusUnprocessableEntity, valErr.Error())
	case errors.As(err, &opErr):
		logger.Error("edison request failed", zap.String("operation", opErr.op.prefix()), zap.Error(opErr.err))
		writeError(w, opErr.op.status(), opErr.Error())
	default:
		logger.Error("unhandled request error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func authReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, auth.ErrInvalidScheme):
		return "invalid_scheme"
	default:
		return "empty_token"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
