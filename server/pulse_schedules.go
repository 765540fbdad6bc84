package server

import (
	"net/http"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/schedule"
)

// createScheduleRequest defaults is_active to true
type createScheduleRequest struct {
	ID        string                    `json:"id,omitempty"`
	OwnerID   string                    `json:"owner_id"`
	TargetID  string                    `json:"target_id,omitempty"`
	Kind      schedule.Kind             `json:"kind"`
	IsActive  *bool                     `json:"is_active,omitempty"`
	Frequency schedule.Frequency        `json:"frequency"`
	Params    schedule.GenerationParams `json:"params"`
}

// updateScheduleRequest is the PATCH body; only pause/resume is mutable
type updateScheduleRequest struct {
	IsActive *bool `json:"is_active"`
}

type listSchedulesResponse struct {
	Schedules []*schedule.Schedule `json:"schedules"`
	Count     int                  `json:"count"`
}

// HandleListSchedules lists schedules, optionally for ?owner_id=
func (s *CadenceServer) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	scheds, err := s.schedules.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		writeStoreError(w, s.logger, err, "failed to list schedules")
		return
	}
	if scheds == nil {
		scheds = []*schedule.Schedule{}
	}
	writeJSON(w, http.StatusOK, listSchedulesResponse{Schedules: scheds, Count: len(scheds)})
}

// HandleCreateSchedule creates a schedule from a JSON body
func (s *CadenceServer) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	sched := schedule.Schedule{
		ID:        req.ID,
		OwnerID:   req.OwnerID,
		TargetID:  req.TargetID,
		Kind:      req.Kind,
		IsActive:  req.IsActive == nil || *req.IsActive,
		Frequency: req.Frequency,
		Params:    req.Params,
	}

	if err := s.schedules.Create(r.Context(), &sched, s.clock.Now()); err != nil {
		writeStoreError(w, s.logger, err, "failed to create schedule")
		return
	}

	logger.AddScheduleSymbol(s.logger).Infow("Schedule created",
		logger.FieldScheduleID, sched.ID,
		logger.FieldOwnerID, sched.OwnerID,
		"kind", sched.Kind,
		"frequency", sched.Frequency.String(),
	)
	writeJSON(w, http.StatusCreated, &sched)
}

// HandleGetSchedule returns one schedule
func (s *CadenceServer) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, s.logger, err, "failed to get schedule")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// HandleUpdateSchedule pauses or resumes a schedule
func (s *CadenceServer) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.IsActive == nil {
		writeStoreError(w, s.logger, errors.NewInvalidRequestError("is_active is required"), "failed to update schedule")
		return
	}

	id := r.PathValue("id")
	sched, err := s.schedules.SetActive(r.Context(), id, *req.IsActive, s.clock.Now())
	if err != nil {
		writeStoreError(w, s.logger, err, "failed to update schedule")
		return
	}

	action := "paused"
	if sched.IsActive {
		action = "resumed"
	}
	logger.AddScheduleSymbol(s.logger).Infow("Schedule "+action, logger.FieldScheduleID, shortID(id))
	writeJSON(w, http.StatusOK, sched)
}

// HandleDeleteSchedule removes a schedule and its history
func (s *CadenceServer) HandleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.schedules.Delete(r.Context(), id); err != nil {
		writeStoreError(w, s.logger, err, "failed to delete schedule")
		return
	}
	logger.AddScheduleSymbol(s.logger).Infow("Schedule deleted", logger.FieldScheduleID, shortID(id))
	w.WriteHeader(http.StatusNoContent)
}

// HandleScheduleExecutions lists run history, newest first
func (s *CadenceServer) HandleScheduleExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeStoreError(w, s.logger, err, "invalid query")
		return
	}
	id := r.PathValue("id")
	if _, err := s.schedules.Get(r.Context(), id); err != nil {
		writeStoreError(w, s.logger, err, "failed to get schedule")
		return
	}

	execs, err := s.executions.List(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, s.logger, err, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []*schedule.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": execs,
		"count":      len(execs),
	})
}
