// Package agent supervises doctor-agent worker processes. Each visit in
// progress owns at most one worker; the registry is in-memory, so workers
// do not survive an engine restart and are respawned on the next start.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/config"
)

var commandContext = exec.CommandContext

// readyLine is printed by the worker on stdout once it has joined the
// room and is able to converse. The supervisor blocks the visit start on
// it, bounded by the startup timeout.
const readyLine = "AGENT_READY"

// Supervisor manages doctor-agent worker processes, one per visit.
type Supervisor interface {
	// Start launches a worker for the visit. It returns ErrConflict if a
	// worker is already registered for the visit, and a timeout error if
	// the worker does not report ready in time.
	Start(ctx context.Context, visitID uuid.UUID, roomName, joinToken string) error
	// Stop terminates the visit's worker if one is running. Stopping a
	// visit with no worker is not an error.
	Stop(visitID uuid.UUID) error
	// Running reports whether a worker is registered for the visit.
	Running(visitID uuid.UUID) bool
	// List returns a snapshot of the running workers.
	List() []Handle
	// StopAll terminates every running worker, used during shutdown.
	StopAll()
}

// Handle describes one running worker.
type Handle struct {
	VisitID   uuid.UUID `json:"visit_id"`
	RoomName  string    `json:"room_name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// worker tracks one running agent process.
type worker struct {
	visitID   uuid.UUID
	roomName  string
	startedAt time.Time
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	done      chan struct{}
}

// supervisor implements Supervisor over os/exec.
type supervisor struct {
	cfg    *config.AgentConfig
	token  string
	logger *zap.Logger

	mu      sync.Mutex
	workers map[uuid.UUID]*worker
}

// NewSupervisor creates a process supervisor for doctor-agent workers.
// serviceToken is passed to workers so they can call back into the
// engine's internal endpoints.
func NewSupervisor(cfg *config.AgentConfig, serviceToken string, logger *zap.Logger) Supervisor {
	return &supervisor{
		cfg:     cfg,
		token:   serviceToken,
		logger:  logger.Named("agent-supervisor"),
		workers: make(map[uuid.UUID]*worker),
	}
}

func (s *supervisor) Start(ctx context.Context, visitID uuid.UUID, roomName, joinToken string) error {
	s.mu.Lock()
	if _, exists := s.workers[visitID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("agent already running for visit %s: %w", visitID, apperrors.ErrConflict)
	}
	// Reserve the slot before the slow spawn so concurrent starts for the
	// same visit fail fast.
	w := &worker{visitID: visitID, roomName: roomName, startedAt: time.Now(), done: make(chan struct{})}
	s.workers[visitID] = w
	s.mu.Unlock()

	if err := s.spawn(ctx, w, roomName, joinToken); err != nil {
		s.deregister(visitID)
		return err
	}

	return nil
}

func (s *supervisor) spawn(ctx context.Context, w *worker, roomName, joinToken string) error {
	// The process context is detached from the request context: the
	// worker outlives the HTTP request that started the visit.
	procCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	cmd := commandContext(procCtx, s.cfg.Binary) //nolint:gosec
	cmd.Env = append(os.Environ(),
		"AGENT_VISIT_ID="+w.visitID.String(),
		"AGENT_ROOM_NAME="+roomName,
		"AGENT_JOIN_TOKEN="+joinToken,
		"AGENT_ENGINE_URL="+s.cfg.EngineURL,
		"AGENT_SERVICE_TOKEN="+s.token,
	)

	// A concurrent Stop may already hold this worker's handle and block
	// on done; every path that never reaches the monitor goroutine must
	// close it.
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		close(w.done)
		return fmt.Errorf("failed to open agent stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		close(w.done)
		return fmt.Errorf("failed to open agent stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		close(w.done)
		return fmt.Errorf("failed to start agent process: %w", err)
	}
	w.cmd = cmd

	logger := s.logger.With(
		zap.String("visit_id", w.visitID.String()),
		zap.Int("pid", cmd.Process.Pid))
	logger.Info("Agent process started", zap.String("room", roomName))

	ready := make(chan struct{})
	go s.drainStdout(logger, stdout, ready)
	go s.drainStderr(logger, stderr)
	go s.monitor(logger, w)

	select {
	case <-ready:
		logger.Info("Agent reported ready")
		return nil
	case <-w.done:
		return fmt.Errorf("agent process exited before reporting ready")
	case <-time.After(s.cfg.StartupTimeout):
		cancel()
		return fmt.Errorf("agent did not report ready within %s", s.cfg.StartupTimeout)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// drainStdout forwards worker stdout to the log and closes ready when the
// readiness line appears.
func (s *supervisor) drainStdout(logger *zap.Logger, r io.Reader, ready chan<- struct{}) {
	var signalled bool
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !signalled && strings.TrimSpace(line) == readyLine {
			signalled = true
			close(ready)
			continue
		}
		logger.Debug("agent stdout", zap.String("line", line))
	}
}

func (s *supervisor) drainStderr(logger *zap.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Warn("agent stderr", zap.String("line", scanner.Text()))
	}
}

// monitor waits for the process to exit and deregisters the worker, so a
// crashed agent frees its visit slot.
func (s *supervisor) monitor(logger *zap.Logger, w *worker) {
	err := w.cmd.Wait()
	close(w.done)
	if err != nil {
		logger.Warn("Agent process exited", zap.Error(err))
	} else {
		logger.Info("Agent process exited")
	}
	s.deregister(w.visitID)
}

func (s *supervisor) deregister(visitID uuid.UUID) {
	s.mu.Lock()
	delete(s.workers, visitID)
	s.mu.Unlock()
}

func (s *supervisor) Stop(visitID uuid.UUID) error {
	s.mu.Lock()
	w, exists := s.workers[visitID]
	s.mu.Unlock()

	if !exists {
		return nil
	}

	// SIGTERM first so the worker can say goodbye and flush its last
	// transcript turn; the context cancel escalates to SIGKILL.
	if w.cmd != nil && w.cmd.Process != nil {
		if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.logger.Warn("Failed to signal agent process",
				zap.String("visit_id", visitID.String()), zap.Error(err))
		}
	}

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Agent did not exit after signal, killing",
			zap.String("visit_id", visitID.String()))
		if w.cancel != nil {
			w.cancel()
		}
		<-w.done
	}

	return nil
}

func (s *supervisor) Running(visitID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.workers[visitID]
	return exists
}

func (s *supervisor) List() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]Handle, 0, len(s.workers))
	for _, w := range s.workers {
		h := Handle{VisitID: w.visitID, RoomName: w.roomName, StartedAt: w.startedAt}
		if w.cmd != nil && w.cmd.Process != nil {
			h.PID = w.cmd.Process.Pid
		}
		handles = append(handles, h)
	}
	return handles
}

func (s *supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Stop(id)
	}
}

var _ Supervisor = (*supervisor)(nil)
