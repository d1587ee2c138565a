package queue

import "time"

// WorkerHealth is a point-in-time snapshot of one Worker's activity,
// surfaced on the HTTP admin surface's readiness/health endpoints.
type WorkerHealth struct {
	ID            string    `json:"id"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	JobsFailed    int       `json:"jobs_failed"`
	LastActivity  time.Time `json:"last_activity"`
}
