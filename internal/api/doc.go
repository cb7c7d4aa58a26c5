// Package api hosts the HTTP server, middleware, and handlers of the gateway.
// Notable routes:
//   - GET / and GET /health for unauthenticated liveness.
//   - GET /metrics for Prometheus scraping.
//   - POST {base}/edison/run/... to run tasks on the Edison platform, either
//     waiting for the answer (sync) or returning a task ID (async).
//   - GET {base}/edison/task/{task_id}/status to poll an async task.
//   - GET {base}/edison/jobs/available for the job catalog.
//
// Every /edison route except the catalog requires "Authorization: Bearer
// <token>". The token is forwarded to Edison untouched.
package api
