// Package api hosts the HTTP status server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live phase, page and record count of this process.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/stages for
//     persisted progress via the RunRepository interface.
package api
