package server

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cadence/logger"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *CadenceServer) setupHTTPRoutes() {
	// Cron triggers, GET or POST
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		s.mux.HandleFunc(method+" /api/pulse/tick", s.middleware(s.requireCronSecret(s.HandleTick)))
		s.mux.HandleFunc(method+" /api/pulse/drain", s.middleware(s.requireCronSecret(s.HandleDrain)))
	}

	s.mux.HandleFunc("GET /api/pulse/schedules", s.middleware(s.HandleListSchedules))
	s.mux.HandleFunc("POST /api/pulse/schedules", s.middleware(s.requireCronSecret(s.HandleCreateSchedule)))
	s.mux.HandleFunc("GET /api/pulse/schedules/{id}", s.middleware(s.HandleGetSchedule))
	s.mux.HandleFunc("PATCH /api/pulse/schedules/{id}", s.middleware(s.requireCronSecret(s.HandleUpdateSchedule)))
	s.mux.HandleFunc("DELETE /api/pulse/schedules/{id}", s.middleware(s.requireCronSecret(s.HandleDeleteSchedule)))
	s.mux.HandleFunc("GET /api/pulse/schedules/{id}/executions", s.middleware(s.HandleScheduleExecutions))

	s.mux.HandleFunc("GET /api/pulse/jobs", s.middleware(s.HandleListJobs))
	s.mux.HandleFunc("GET /api/pulse/jobs/{id}", s.middleware(s.HandleGetJob))

	// Preflights answer here; method-scoped routes would otherwise 405 them
	s.mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(http.NotFound))
	s.mux.HandleFunc("OPTIONS /ws/", s.corsMiddleware(http.NotFound))

	s.mux.HandleFunc("GET /ws/jobs", s.corsMiddleware(s.HandleJobStream))
	s.mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// middleware is the standard chain for API routes
func (s *CadenceServer) middleware(next http.HandlerFunc) http.HandlerFunc {
	return s.corsMiddleware(s.requestLogger(next))
}

// corsMiddleware adds CORS headers for origins listed in server.allowed_origins
func (s *CadenceServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *CadenceServer) originAllowed(origin string) bool {
	if s.cfg == nil {
		return false
	}
	return slices.Contains(s.cfg.Server.AllowedOrigins, "*") || slices.Contains(s.cfg.Server.AllowedOrigins, origin)
}

// requestLogger tags the request context with an id and logs the outcome
func (s *CadenceServer) requestLogger(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRequestID(r.Context(), uuid.NewString())
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r.WithContext(ctx))

		logger.FromContext(ctx, s.logger).Debugw("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}
}

// requireCronSecret enforces the bearer token when server.cron_secret is set
func (s *CadenceServer) requireCronSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := ""
		if s.cfg != nil {
			secret = s.cfg.Server.CronSecret
		}
		if secret == "" {
			next(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			s.logger.Warnw("Rejected unauthenticated trigger", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
