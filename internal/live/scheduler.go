// Package live implements the live scheduler (§4.9): a periodic timer that
// enqueues a sync task on each firing, plus the pause/resume/cancel state
// machine and an fsnotify-driven eager trigger for local writes. The timer
// loop follows the teacher's cmd/bd/daemon_watcher.go debounce-and-trigger
// shape, generalized from JSONL-file watching to "enqueue a sync task".
package live

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/taskqueue"
)

// State is the scheduler's current lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// ResumeOptions carries an optional new interval for Resume (§4.9).
type ResumeOptions struct {
	Interval time.Duration
}

// SyncFunc enqueues one sync task; the scheduler does not know how a sync
// is performed, only when to ask for one.
type SyncFunc func() error

// Scheduler owns a periodic timer scoped to one sync binding.
type Scheduler struct {
	mu            sync.Mutex
	state         State
	interval      time.Duration
	retryInterval time.Duration
	minInterval   time.Duration
	sync          SyncFunc
	log           zerolog.Logger

	timer  *time.Timer
	cancel context.CancelFunc
}

// New creates a stopped Scheduler. Start arms it.
func New(interval, retryInterval, minInterval time.Duration, sync SyncFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		state:         StateStopped,
		interval:      interval,
		retryInterval: retryInterval,
		minInterval:   minInterval,
		sync:          sync,
		log:           log,
	}
}

// Start transitions stopped -> running and arms the first firing. It has
// no effect on a scheduler that was started before, including one that
// was canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped || s.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateRunning
	s.armLocked(runCtx)
	return nil
}

func (s *Scheduler) armLocked(ctx context.Context) {
	s.timer = time.AfterFunc(s.interval, func() { s.fire(ctx) })
}

func (s *Scheduler) fire(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	interval := s.interval
	s.mu.Unlock()

	if err := s.sync(); err != nil {
		s.log.Warn().Err(err).Msg("live sync enqueue failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.timer = time.AfterFunc(interval, func() { s.fire(ctx) })
	}
}

// Pause stops future firings. Returns true if a transition from running
// occurred, false if already paused or stopped (§4.9).
func (s *Scheduler) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StatePaused
	return true
}

// Resume re-arms a paused scheduler, optionally adopting a new interval
// subject to the §4.9 constraints (> retryInterval, >= minimum).
func (s *Scheduler) Resume(opts ResumeOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return nil
	}
	if opts.Interval > 0 {
		if opts.Interval < s.minInterval {
			return ddberrors.New(ddberrors.KindIntervalTooSmall, "resume interval below system minimum")
		}
		if opts.Interval <= s.retryInterval {
			return ddberrors.New(ddberrors.KindSyncIntervalLessThanOrEqualToRetryInterval, "resume interval must exceed retryInterval")
		}
		s.interval = opts.Interval
	}
	s.state = StateRunning
	// The timer callback only checks s.state and calls s.sync(); it does
	// not need the original Start context once armed, so re-arming after
	// a pause uses a fresh background context. Cancel() still stops the
	// timer directly.
	s.armLocked(context.Background())
	return nil
}

// Cancel is a permanent stop for this binding.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.state = StateStopped
}

// State reports the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnqueueSync adapts a *taskqueue.Queue into a SyncFunc: firing enqueues a
// sync task, relying on the queue's own coalescing (§4.6) to collapse a
// firing that arrives while a sync is already pending.
func EnqueueSync(q *taskqueue.Queue, run taskqueue.Func) SyncFunc {
	return func() error {
		_, _, err := q.Enqueue(taskqueue.KindSync, run)
		return err
	}
}
