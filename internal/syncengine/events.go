package syncengine

import (
	"time"

	"github.com/gitddb/gitddb/internal/docmodel"
)

// EventKind tags one lifecycle notification a sync run emits (§6).
type EventKind string

const (
	EventStart        EventKind = "start"
	EventChange       EventKind = "change"
	EventLocalChange  EventKind = "localChange"
	EventRemoteChange EventKind = "remoteChange"
	EventCombine      EventKind = "combine"
	EventComplete     EventKind = "complete"
	EventError        EventKind = "error"
	EventCanceled     EventKind = "canceled"
	EventPaused       EventKind = "paused"
	EventActive       EventKind = "active"
)

// Event is the task-metadata envelope every sync notification carries
// (§6: "{taskId, timestamp, kind}").
type Event struct {
	TaskID        string
	Timestamp     time.Time
	Kind          EventKind
	Result        *docmodel.SyncResult
	LocalChanges  []docmodel.ChangedFile
	RemoteChanges []docmodel.ChangedFile
	Duplicates    []docmodel.DuplicatedFile
	Err           error
}

// Emitter receives Events. Implementations must not block.
type Emitter func(Event)

func (e *Engine) emit(taskID string, kind EventKind, fn func(*Event)) {
	if e.emitter == nil {
		return
	}
	ev := Event{TaskID: taskID, Timestamp: time.Now(), Kind: kind}
	if fn != nil {
		fn(&ev)
	}
	e.emitter(ev)
}
