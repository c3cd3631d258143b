// Package ddberrors defines the closed error taxonomy shared by every gitddb
// component: lifecycle, input validation, sync configuration, and sync
// execution errors. Callers match on Kind, not on message text.
package ddberrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories named in the specification.
// The set is closed; do not add values without updating the taxonomy.
type Kind string

const (
	// Lifecycle
	KindDatabaseClosing   Kind = "DatabaseClosing"
	KindRepositoryNotOpen Kind = "RepositoryNotOpen"

	// Input
	KindUndefinedDocumentId  Kind = "UndefinedDocumentId"
	KindInvalidIdCharacter   Kind = "InvalidIdCharacter"
	KindInvalidJsonObject    Kind = "InvalidJsonObject"
	KindInvalidFileOidFormat Kind = "InvalidFileOidFormat"

	// Sync configuration
	KindUndefinedRemoteURL                      Kind = "UndefinedRemoteURL"
	KindHttpProtocolRequired                    Kind = "HttpProtocolRequired"
	KindUndefinedAccessToken                    Kind = "UndefinedAccessToken"
	KindInvalidRepositoryURL                    Kind = "InvalidRepositoryURL"
	KindIntervalTooSmall                        Kind = "IntervalTooSmall"
	KindSyncIntervalLessThanOrEqualToRetryInterval Kind = "SyncIntervalLessThanOrEqualToRetryInterval"
	KindPushNotAllowed                          Kind = "PushNotAllowed"
	KindUndefinedSync                           Kind = "UndefinedSync"

	// Sync execution
	KindRemoteRepositoryConnect Kind = "RemoteRepositoryConnect"
	KindCannotConnect           Kind = "CannotConnect"
	KindCannotGetEntry          Kind = "CannotGetEntry"
	KindUnfetchedCommitExists   Kind = "UnfetchedCommitExists"
	KindNoMergeBaseFound        Kind = "NoMergeBaseFound"
	KindInvalidConflictState    Kind = "InvalidConflictState"
	KindSyncWorkerFetch         Kind = "SyncWorkerFetch"
	KindPushWorker              Kind = "PushWorker"
)

// Error is a tagged error: a Kind plus a human-readable message and an
// optional wrapped cause. It durably preserves the original error for
// errors.Is/As while exposing the Kind for callers that branch on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, ddberrors.New(ddberrors.KindNoMergeBaseFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New creates an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that wraps cause, preserving it for errors.Is/As
// traversal of the underlying library or transport error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of reports whether err (or something it wraps) carries the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
