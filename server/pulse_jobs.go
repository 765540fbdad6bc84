package server

import (
	"net/http"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/async"
)

type listJobsResponse struct {
	Jobs  []*async.Job      `json:"jobs"`
	Count int               `json:"count"`
	Stats *async.QueueStats `json:"stats,omitempty"`
}

// HandleListJobs lists jobs filtered by ?status, ?schedule_id, ?owner_id and ?limit
func (s *CadenceServer) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeStoreError(w, s.logger, err, "invalid query")
		return
	}

	filter := async.ListFilter{
		ScheduleID: q.Get("schedule_id"),
		OwnerID:    q.Get("owner_id"),
		Limit:      limit,
	}
	if status := q.Get("status"); status != "" {
		if !async.IsValidStatus(status) {
			writeStoreError(w, s.logger, errors.NewInvalidRequestError("unknown status %q", status), "invalid query")
			return
		}
		filter.Status = async.JobStatus(status)
	}

	jobs, err := s.queue.ListJobs(r.Context(), filter)
	if err != nil {
		writeStoreError(w, s.logger, err, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*async.Job{}
	}

	resp := listJobsResponse{Jobs: jobs, Count: len(jobs)}
	if stats, err := s.queue.GetStats(r.Context()); err == nil {
		resp.Stats = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetJob returns one job with its progress and warnings
func (s *CadenceServer) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, s.logger, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
