package comic

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
)

// ErrPolicyDenied is reported when a future day is requested without permission.
// It is a designed absence, not a failure.
var ErrPolicyDenied = errors.New("access to future day denied")

// ErrBeforeFirstDate is reported for days earlier than the first published day.
var ErrBeforeFirstDate = errors.New("day precedes first published date")

// StorageReadError means a durable entry exists but could not be read or decoded.
// Callers treat it as absent and re-fetch.
type StorageReadError struct {
	Key datekey.Key
	Err error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("storage read failed for %s: %v", e.Key, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// StorageWriteError means a blob could not be persisted. The memory tier still
// serves it for the rest of the session.
type StorageWriteError struct {
	Key datekey.Key
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write failed for %s: %v", e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// NetworkError covers every way a single fetch attempt can fail: connection
// errors, non-success responses and bodies that are not images.
type NetworkError struct {
	Key        datekey.Key
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s from %s failed (HTTP %d): %v", e.Key, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s from %s failed: %v", e.Key, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
