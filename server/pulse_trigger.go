package server

import (
	"net/http"

	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/schedule"
)

// tickResponse always carries the report, even when the tick aborted
type tickResponse struct {
	Report *schedule.TickReport `json:"report"`
	Error  string               `json:"error,omitempty"`
}

type drainResponse struct {
	Report *async.DrainReport `json:"report"`
	Error  string             `json:"error,omitempty"`
}

// HandleTick runs one scheduler pass: POST /api/pulse/tick
func (s *CadenceServer) HandleTick(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	log := logger.AddPulseSymbol(logger.FromContext(r.Context(), s.logger))

	report, err := s.driver.RunTick(r.Context(), now)
	if report == nil {
		report = &schedule.TickReport{At: now}
	}
	if err != nil {
		log.Errorw("Triggered tick failed", logger.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, tickResponse{Report: report, Error: err.Error()})
		return
	}

	log.Infow("Triggered tick finished",
		"processed", report.SchedulesProcessed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"jobs_queued", report.JobsQueued,
	)
	writeJSON(w, http.StatusOK, tickResponse{Report: report})
}

// HandleDrain processes up to ?limit=N pending jobs: POST /api/pulse/drain
func (s *CadenceServer) HandleDrain(w http.ResponseWriter, r *http.Request) {
	fallback := 5
	if s.cfg != nil && s.cfg.Pulse.DrainLimit > 0 {
		fallback = s.cfg.Pulse.DrainLimit
	}
	limit, err := queryInt(r, "limit", fallback)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, drainResponse{Report: &async.DrainReport{}, Error: err.Error()})
		return
	}

	log := logger.AddPulseSymbol(logger.FromContext(r.Context(), s.logger))
	report, err := s.drainer.Drain(r.Context(), limit)
	if report == nil {
		report = &async.DrainReport{}
	}
	if err != nil {
		log.Errorw("Triggered drain failed", logger.FieldError, err, "limit", limit)
		writeJSON(w, http.StatusInternalServerError, drainResponse{Report: report, Error: err.Error()})
		return
	}

	log.Infow("Triggered drain finished",
		"limit", limit,
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	writeJSON(w, http.StatusOK, drainResponse{Report: report})
}
