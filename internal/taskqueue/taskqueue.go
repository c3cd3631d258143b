// Package taskqueue implements the single-writer serial executor bound to
// one database instance (§4.6): an ordered deque, a currently-running
// slot, and a cancel flag per task, exactly as the specification's §9
// design note prescribes. Sync and push requests coalesce; a close
// request drains and cancels everything still pending.
package taskqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/logging"
)

// Kind tags the category of work a Task performs.
type Kind string

const (
	KindPut      Kind = "put"
	KindDelete   Kind = "delete"
	KindPush     Kind = "push"
	KindSync     Kind = "sync"
	KindInternal Kind = "internal"
)

// EventType tags one lifecycle notification emitted for a task.
type EventType string

const (
	EventStart    EventType = "start"
	EventChange   EventType = "change"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventCanceled EventType = "canceled"
)

// Event is delivered to every queue listener for each task transition.
type Event struct {
	TaskID string
	Kind   Kind
	Type   EventType
	Result any
	Err    error
}

// Listener receives queue events. Implementations must not block.
type Listener func(Event)

// Func is the unit of work a task performs. It must poll ctx at every
// suspension point (§4.6, §5) and return promptly once ctx is Done.
type Func func(ctx context.Context) (any, error)

// Outcome is what a caller receives on a task's result channel.
type Outcome struct {
	Result   any
	Err      error
	Canceled bool
}

// Task is one entry in the queue. cancel is nil until the task starts
// running; a task canceled while still pending simply never runs.
type Task struct {
	ID      string
	Kind    Kind
	Fn      Func
	cancel  context.CancelFunc
	outcome chan Outcome
}

// Stats is the read-only view of accumulated counters (§4.6).
type Stats struct {
	Enqueued map[Kind]int
	Canceled int
}

// Queue is a single-writer serial executor for one database.
type Queue struct {
	mu        sync.Mutex
	pending   []*Task
	running   *Task
	closing   bool
	listeners []Listener
	stats     Stats
	wake      chan struct{}
	log       zerolog.Logger
	loopDone  chan struct{}
}

// New creates a Queue and starts its background run loop. Canceling ctx is
// equivalent to a forced Close.
func New(ctx context.Context, log zerolog.Logger) *Queue {
	q := &Queue{
		wake:     make(chan struct{}, 1),
		stats:    Stats{Enqueued: map[Kind]int{}},
		log:      log,
		loopDone: make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// OnEvent registers a listener for every task's lifecycle events.
func (q *Queue) OnEvent(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Stats returns a snapshot of accumulated counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := Stats{Enqueued: map[Kind]int{}, Canceled: q.stats.Canceled}
	for k, v := range q.stats.Enqueued {
		out.Enqueued[k] = v
	}
	return out
}

// Enqueue adds a task to the back of the queue, coalescing consecutive
// sync/push requests per §4.6: if a task of the same kind is already
// pending (not running), the new one is dropped and reported canceled
// immediately rather than queued twice. The returned channel receives
// exactly one Outcome.
func (q *Queue) Enqueue(kind Kind, fn Func) (string, <-chan Outcome, error) {
	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		return "", nil, ddberrors.New(ddberrors.KindDatabaseClosing, "task queue is closing")
	}

	id := uuid.NewString()
	task := &Task{ID: id, Kind: kind, Fn: fn, outcome: make(chan Outcome, 1)}

	if (kind == KindSync || kind == KindPush) && q.hasPendingOfKindLocked(kind) {
		q.stats.Canceled++
		q.mu.Unlock()
		q.emit(Event{TaskID: id, Kind: kind, Type: EventCanceled})
		task.outcome <- Outcome{Canceled: true}
		return id, task.outcome, nil
	}

	q.stats.Enqueued[kind]++
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return id, task.outcome, nil
}

func (q *Queue) hasPendingOfKindLocked(kind Kind) bool {
	for _, t := range q.pending {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// Close cancels the currently running task (if any), drains and cancels
// every pending task, and fails subsequent Enqueue calls with
// DatabaseClosing. It blocks until the run loop has exited.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closing = true
	pending := q.pending
	q.pending = nil
	running := q.running
	q.mu.Unlock()

	for _, t := range pending {
		q.cancelPending(t)
	}
	if running != nil {
		running.cancel()
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.loopDone
}

func (q *Queue) cancelPending(t *Task) {
	q.mu.Lock()
	q.stats.Canceled++
	q.mu.Unlock()
	q.emit(Event{TaskID: t.ID, Kind: t.Kind, Type: EventCanceled})
	t.outcome <- Outcome{Canceled: true}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.loopDone)
	for {
		q.mu.Lock()
		if q.closing && len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.closing = true
				q.mu.Unlock()
				continue
			case <-q.wake:
				continue
			}
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.running = task
		q.mu.Unlock()

		q.runOne(ctx, task)

		q.mu.Lock()
		q.running = nil
		q.mu.Unlock()
	}
}

type taskIDKey struct{}

// TaskIDFromContext returns the running task's identifier, for a Func body
// that needs to tag its own sub-events (e.g. the sync engine's per-run
// events) with the same ID the queue uses for start/complete/error.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey{}).(string)
	return id, ok
}

func (q *Queue) runOne(parent context.Context, task *Task) {
	taskCtx, cancel := context.WithCancel(parent)
	taskCtx = context.WithValue(taskCtx, taskIDKey{}, task.ID)
	task.cancel = cancel
	defer cancel()

	log := logging.WithTask(q.log, task.ID, string(task.Kind))
	log.Debug().Msg("task start")
	q.emit(Event{TaskID: task.ID, Kind: task.Kind, Type: EventStart})

	result, err := task.Fn(taskCtx)

	switch {
	case err != nil && taskCtx.Err() != nil:
		log.Debug().Msg("task canceled")
		q.emit(Event{TaskID: task.ID, Kind: task.Kind, Type: EventCanceled})
		task.outcome <- Outcome{Canceled: true, Err: err}
	case err != nil:
		log.Error().Err(err).Msg("task error")
		q.emit(Event{TaskID: task.ID, Kind: task.Kind, Type: EventError, Err: err})
		task.outcome <- Outcome{Err: err}
	default:
		log.Debug().Msg("task complete")
		q.emit(Event{TaskID: task.ID, Kind: task.Kind, Type: EventComplete, Result: result})
		task.outcome <- Outcome{Result: result}
	}
}

func (q *Queue) emit(e Event) {
	q.mu.Lock()
	listeners := append([]Listener(nil), q.listeners...)
	q.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}
