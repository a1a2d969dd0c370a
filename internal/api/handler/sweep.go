package handler

import (
	"net/http"

	"github.com/centaurhq/centaur/internal/api/response"
	"github.com/centaurhq/centaur/internal/sweeper"
)

// NewTriggerSweepHandler returns the handler for POST /api/v1/admin/sweep.
// It enqueues one retention sweep pass; the pass chains further passes
// itself if there is more work than one batch.
func NewTriggerSweepHandler(sched sweeper.Scheduler, queueName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched.Schedule(0)
		response.Accepted(w, map[string]string{
			"status": "queued",
			"queue":  queueName,
		})
	}
}
