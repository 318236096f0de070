// Package cmdutil provides utility functions specifically for the mirror CLI.
package cmdutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/storacha/mirror/pkg/types"
)

// ParseSize parses a data size string with optional suffix (B, K, M, G).
// Accepts formats like: "1024", "512B", "100K", "50M", "2G". Digits with no
// suffix are interpreted as bytes. Returns the size in bytes.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("data size cannot be empty")
	}

	var multiplier uint64 = 1
	numStr := s[:len(s)-1]
	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
	case "K":
		multiplier = 1 << 10
	case "M":
		multiplier = 1 << 20
	case "G":
		multiplier = 1 << 30
	default:
		numStr = s
	}

	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid data size %q: %w", s, err)
	}
	return num * multiplier, nil
}

func NewHandledCliError(err error) HandledCliError {
	return HandledCliError{err}
}

// HandledCliError is an error which has already been presented to the user. If
// a HandledCliError is returned from a command, the process should exit with
// a non-zero exit code, but no further error message should be printed.
type HandledCliError struct {
	error
}

func (e HandledCliError) Unwrap() error {
	return e.error
}

// TranslateError translates a technical error into a more user-friendly one.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	// If it's already a handled error, don't translate it again.
	var handled HandledCliError
	if errors.As(err, &handled) {
		return err
	}

	var remoteErr types.RemoteError
	switch {
	case errors.Is(err, types.ErrNetworkUnavailable):
		return NewHandledCliError(errors.New("server unreachable: check your connection or try again with --retries"))
	case errors.Is(err, types.ErrCancelled):
		return NewHandledCliError(errors.New("cancelled"))
	case types.IsPasswordRequired(err):
		return NewHandledCliError(errors.New("library is encrypted: run `mirror password <repo-id>` first"))
	case types.IsNotFound(err):
		return NewHandledCliError(errors.New("not found on the server"))
	case errors.As(err, &remoteErr) && (remoteErr.Code == 401 || remoteErr.Code == 403):
		return NewHandledCliError(errors.New("access denied: check account.token"))
	}

	return err
}
