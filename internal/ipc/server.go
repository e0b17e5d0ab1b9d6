package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"reelstream/internal/api"
	"reelstream/internal/daemon"
	"reelstream/internal/logging"
	"reelstream/internal/logs"
	"reelstream/internal/queue"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Reelstream", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun reelstream stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) actionResult(message string) api.ActionResult {
	result := api.ActionResult{Success: true, Message: message}
	stats, err := s.daemon.SchedulerStats(s.ctx)
	if err != nil {
		s.log().Warn("failed to collect scheduler stats", logging.Error(err))
		return result
	}
	snapshot := api.FromSchedulerStats(stats)
	result.Snapshot = &snapshot
	return result
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	s.log().Debug("scheduler pause requested")
	s.daemon.PauseScheduler()
	resp.Result = s.actionResult("scheduler paused")
	s.log().Info("scheduler paused via IPC",
		logging.String(logging.FieldEventType, "scheduler_pause"))
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	s.log().Debug("scheduler resume requested")
	s.daemon.ResumeScheduler()
	resp.Result = s.actionResult("scheduler resumed")
	s.log().Info("scheduler resumed via IPC",
		logging.String(logging.FieldEventType, "scheduler_resume"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.QueueDBPath = status.QueueDBPath
	resp.CatalogDBPath = status.CatalogDBPath
	resp.LockPath = status.LockPath
	resp.LogPath = status.LogPath
	resp.Scheduler = api.FromSchedulerStats(status.Scheduler)
	resp.BufferSessions = status.BufferSessions
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.daemon.ListQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		resp.Items = append(resp.Items, api.FromJob(job))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid job id %d", req.ID)
	}
	job, err := s.daemon.GetJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %d not found", req.ID)
	}
	resp.Item = api.FromJob(job)
	return nil
}

func (s *service) QueueAdd(req QueueAddRequest, resp *QueueAddResponse) error {
	priority, ok := queue.ParsePriority(req.Priority)
	if !ok {
		return fmt.Errorf("unknown priority %q", req.Priority)
	}
	job, added, err := s.daemon.AddFile(s.ctx, req.Path, priority)
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	resp.Added = added
	return nil
}

func (s *service) QueueScan(req QueueScanRequest, resp *QueueScanResponse) error {
	s.log().Debug("library scan requested", logging.String("mode", req.Mode))
	task, err := s.daemon.StartScan(req.Mode)
	if err != nil {
		return err
	}
	resp.Task = api.FromScanTask(task)
	s.log().Info("library scan started",
		logging.String(logging.FieldEventType, "scan_start"),
		logging.String("scan_id", task.ID))
	return nil
}

func (s *service) ScanStatus(req ScanStatusRequest, resp *ScanStatusResponse) error {
	if req.ID != "" {
		task, ok := s.daemon.ScanStatus(req.ID)
		if !ok {
			return fmt.Errorf("scan task %q not found", req.ID)
		}
		resp.Tasks = []ScanTask{api.FromScanTask(task)}
		return nil
	}
	tasks := s.daemon.ScanTasks()
	resp.Tasks = make([]ScanTask, 0, len(tasks))
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, api.FromScanTask(task))
	}
	return nil
}

func (s *service) QueueMove(req QueueMoveRequest, resp *QueueMoveResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid job id %d", req.ID)
	}
	moved, err := s.daemon.MoveJob(s.ctx, req.ID, req.Direction)
	if err != nil {
		return err
	}
	resp.Moved = moved
	return nil
}

func (s *service) QueueReorder(req QueueReorderRequest, resp *QueueReorderResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue reorder requires at least one id")
	}
	applied, err := s.daemon.ReorderJobs(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Applied = applied
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue remove requires at least one id")
	}
	removed, err := s.daemon.RemoveJobs(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue jobs removed",
		logging.String(logging.FieldEventType, "queue_remove"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueRemoveDuplicates(_ QueueRemoveDuplicatesRequest, resp *QueueRemoveDuplicatesResponse) error {
	removed, err := s.daemon.RemoveDuplicates(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("duplicate queue jobs removed",
		logging.String(logging.FieldEventType, "queue_remove_duplicates"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueCancel(req QueueCancelRequest, resp *QueueCancelResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid job id %d", req.ID)
	}
	canceled, err := s.daemon.CancelJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Canceled = canceled
	if canceled {
		s.log().Info("job canceled",
			logging.String(logging.FieldEventType, "job_cancel"),
			logging.Int64(logging.FieldJobID, req.ID))
	}
	return nil
}

func (s *service) QueueReset(req QueueResetRequest, resp *QueueResetResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid job id %d", req.ID)
	}
	reset, err := s.daemon.ResetJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Reset = reset
	if reset {
		s.log().Info("job requeued",
			logging.String(logging.FieldEventType, "job_reset"),
			logging.Int64(logging.FieldJobID, req.ID))
	}
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClearCompleted(_ QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueClearFailed(_ QueueClearFailedRequest, resp *QueueClearFailedResponse) error {
	removed, err := s.daemon.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Cleanup(req CleanupRequest, resp *CleanupResponse) error {
	outputDir, err := s.daemon.CleanupTranscoded(req.Path)
	if err != nil {
		return err
	}
	resp.OutputDir = outputDir
	s.log().Info("transcoded artifacts removed",
		logging.String(logging.FieldEventType, "cleanup"),
		logging.String("output_dir", outputDir))
	return nil
}

func (s *service) BufferStatus(req BufferStatusRequest, resp *BufferStatusResponse) error {
	if req.SessionKey == "" {
		return errors.New("buffer status requires a session key")
	}
	report, found := s.daemon.BufferStatus(req.SessionKey)
	resp.Found = found
	resp.Report = report
	return nil
}

func (s *service) BufferSessions(_ BufferSessionsRequest, resp *BufferSessionsResponse) error {
	resp.Keys = s.daemon.BufferSessions()
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Queued = health.Queued
	resp.Running = health.Running
	resp.Completed = health.Completed
	resp.Failed = health.Failed
	resp.Canceled = health.Canceled
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalJobs = health.TotalJobs
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
