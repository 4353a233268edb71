package services

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/metrics"
	"github.com/coah80/vidfix/internal/util"
)

// Scheduler deletes artifacts after a delay. Every Schedule call arms its own
// one-shot timer; nothing waits on it and a failed deletion is only logged.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	nextID  uint64
	stopped bool
	logger  zerolog.Logger
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		timers: make(map[uint64]*time.Timer),
		logger: xlog.WithComponent("cleanup"),
	}
}

// Schedule removes path after delay, provided it is still inside root at that
// point. kind labels the artifact in logs and metrics ("input", "output").
func (s *Scheduler) Schedule(kind, root, path string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Debug().Str("kind", kind).Str(xlog.FieldPath, path).Msg("scheduler stopped, not scheduling")
		return
	}

	id := s.nextID
	s.nextID++
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id, kind, root, path) })
	metrics.PendingCleanups.Set(float64(len(s.timers)))

	s.logger.Debug().
		Str("kind", kind).
		Str(xlog.FieldPath, path).
		Dur(xlog.FieldDelay, delay).
		Msg("cleanup scheduled")
}

func (s *Scheduler) fire(id uint64, kind, root, path string) {
	s.mu.Lock()
	if _, ok := s.timers[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	metrics.PendingCleanups.Set(float64(len(s.timers)))
	s.mu.Unlock()

	if err := util.RemoveArtifact(root, path); err != nil {
		metrics.CleanupTotal.WithLabelValues(kind, "error").Inc()
		s.logger.Error().Err(err).Str("kind", kind).Str(xlog.FieldPath, path).Msg("error removing file")
		return
	}
	metrics.CleanupTotal.WithLabelValues(kind, "ok").Inc()
	s.logger.Info().Str("kind", kind).Str(xlog.FieldPath, path).Msg("removed file")
}

// Pending reports how many deletions are still armed.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every pending deletion. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	metrics.PendingCleanups.Set(0)
}
