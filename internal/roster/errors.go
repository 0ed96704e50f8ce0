package roster

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive  = errors.New("roster already active")
	ErrNotLive        = errors.New("roster is not live")
	ErrRecordNotFound = errors.New("record not in roster")
)

// SyncError means activation failed before the roster went live
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("roster sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// UpdateFailedError means the remote store rejected a mark-found after the
// optimistic change was shown
type UpdateFailedError struct {
	ID  string
	Err error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("mark found %s: %v", e.ID, e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}
