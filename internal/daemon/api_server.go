package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"reelstream/internal/api"
	"reelstream/internal/buffer"
	"reelstream/internal/config"
	"reelstream/internal/logging"
	"reelstream/internal/metrics"
	"reelstream/internal/queue"
)

// APIServer serves the read-mostly HTTP surface: queue views, scan tasks,
// streaming session buffer state, and Prometheus metrics. Control verbs
// stay on the IPC socket.
type APIServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// NewAPIServer builds the HTTP server for the configured bind address.
// Returns nil when no address is configured.
func NewAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*APIServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &APIServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", srv.handleQueueList).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", srv.handleQueueAdd).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/stats", srv.handleQueueStats).Methods(http.MethodGet)
	router.HandleFunc("/api/queue/{id:[0-9]+}", srv.handleQueueItem).Methods(http.MethodGet)
	router.HandleFunc("/api/scans", srv.handleScanStart).Methods(http.MethodPost)
	router.HandleFunc("/api/scans", srv.handleScanList).Methods(http.MethodGet)
	router.HandleFunc("/api/scans/{id}", srv.handleScanStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions", srv.handleSessionList).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{key}/buffer", srv.handleBufferStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{key}/metrics", srv.handleSessionMetrics).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{key}", srv.handleSessionDispose).Methods(http.MethodDelete)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Start begins serving until the context is canceled.
func (s *APIServer) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr reports the bound listen address, empty before Start.
func (s *APIServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *APIServer) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	scheduler := api.FromSchedulerStats(status.Scheduler)
	payload := struct {
		Running        bool               `json:"running"`
		PID            int                `json:"pid"`
		QueueDBPath    string             `json:"queueDbPath"`
		CatalogDBPath  string             `json:"catalogDbPath"`
		Scheduler      api.SchedulerStats `json:"scheduler"`
		BufferSessions int                `json:"bufferSessions"`
	}{
		Running:        status.Running,
		PID:            status.PID,
		QueueDBPath:    status.QueueDBPath,
		CatalogDBPath:  status.CatalogDBPath,
		Scheduler:      scheduler,
		BufferSessions: status.BufferSessions,
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *APIServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		parsed, ok := queue.ParseStatus(value)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.daemon.ListQueue(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: api.FromJobs(jobs)})
}

func (s *APIServer) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	priority, ok := queue.ParsePriority(req.Priority)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown priority %q", req.Priority))
		return
	}
	job, added, err := s.daemon.AddFile(r.Context(), req.Path, priority)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, struct {
		Item  api.QueueItem `json:"item"`
		Added bool          `json:"added"`
	}{Item: api.FromJob(job), Added: added})
}

func (s *APIServer) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.SchedulerStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	scheduler := api.FromSchedulerStats(stats)
	s.writeJSON(w, http.StatusOK, api.QueueStatsResponse{
		Counts:    scheduler.StatusCounts,
		Scheduler: &scheduler,
	})
}

func (s *APIServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.daemon.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Item api.QueueItem `json:"item"`
	}{Item: api.FromJob(job)})
}

func (s *APIServer) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := s.daemon.StartScan(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, struct {
		Task api.ScanTask `json:"task"`
	}{Task: api.FromScanTask(task)})
}

func (s *APIServer) handleScanList(w http.ResponseWriter, _ *http.Request) {
	tasks := s.daemon.ScanTasks()
	out := make([]api.ScanTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, api.FromScanTask(task))
	}
	s.writeJSON(w, http.StatusOK, struct {
		Tasks []api.ScanTask `json:"tasks"`
	}{Tasks: out})
}

func (s *APIServer) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.daemon.ScanStatus(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "scan task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Task api.ScanTask `json:"task"`
	}{Task: api.FromScanTask(task)})
}

func (s *APIServer) handleSessionList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, struct {
		Keys []string `json:"keys"`
	}{Keys: s.daemon.BufferSessions()})
}

func (s *APIServer) handleBufferStatus(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	report, found := s.daemon.BufferStatus(key)
	if !found {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	metrics.BufferStrategyEvaluations.WithLabelValues(string(report.Strategy.Tier)).Inc()
	if report.IsCritical {
		metrics.BufferCriticalTotal.Inc()
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *APIServer) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req struct {
		SpeedMultiplier   float64 `json:"speedMultiplier"`
		FPS               float64 `json:"fps"`
		SegmentsGenerated int     `json:"segmentsGenerated"`
		SegmentsConsumed  int     `json:"segmentsConsumed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	controller := s.daemon.BufferSession(key)
	controller.Record(buffer.MetricSample{
		SpeedMultiplier:   req.SpeedMultiplier,
		FPS:               req.FPS,
		SegmentsGenerated: req.SegmentsGenerated,
		SegmentsConsumed:  req.SegmentsConsumed,
		Timestamp:         time.Now(),
	})
	report := controller.Report()
	metrics.BufferStrategyEvaluations.WithLabelValues(string(report.Strategy.Tier)).Inc()
	if report.IsCritical {
		metrics.BufferCriticalTotal.Inc()
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *APIServer) handleSessionDispose(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !s.daemon.DisposeBufferSession(key) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"disposed": true})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *APIServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.WithComponent(s.logger, "api-server")
	}
	return logging.NewNop()
}
