package types

import (
	"errors"
	"fmt"
)

// Status codes the remote service uses that callers must special-case.
const (
	CodeNotFound         = 404
	CodePasswordRequired = 440
)

// ErrNetworkUnavailable is returned when an operation needing the remote
// service is attempted while offline. No request has been sent.
var ErrNetworkUnavailable = errors.New("network unavailable")

// ErrCancelled is returned when the caller aborts a transfer through its
// progress sink or context. Partial local files have been discarded.
var ErrCancelled = errors.New("operation cancelled")

// RemoteError is a failure reported by the remote service.
type RemoteError struct {
	Code    int
	Message string
}

func NewRemoteError(code int, message string) RemoteError {
	return RemoteError{Code: code, Message: message}
}

func (e RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error %d", e.Code)
	}
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// IsPasswordRequired reports whether err is a RemoteError asking for the
// repository password.
func IsPasswordRequired(err error) bool {
	return hasCode(err, CodePasswordRequired)
}

// IsNotFound reports whether err is a RemoteError for a path that no longer
// exists on the server.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func hasCode(err error, code int) bool {
	var remoteErr RemoteError
	return errors.As(err, &remoteErr) && remoteErr.Code == code
}

// StorageError indicates local directory, file or index I/O failed.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func NewStorageError(op, path string, err error) StorageError {
	return StorageError{Op: op, Path: path, Err: err}
}

func (e StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage: %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %q: %s", e.Op, e.Path, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// ParseError indicates a payload could not be decoded. Reading a malformed
// cache entry is treated as a miss; a malformed server response surfaces as
// this error.
type ParseError struct {
	What string
	Err  error
}

func NewParseError(what string, err error) ParseError {
	return ParseError{What: what, Err: err}
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %s", e.What, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}
