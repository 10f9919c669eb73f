package rl

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrInterrupted is returned when a line read was abandoned because
	// of a signal.
	ErrInterrupted = errors.New("readline: interrupted")

	// ErrHostException wraps the pending host exception when a read fails
	// because of it. It must reach the host's exception mechanism instead
	// of being taken as end of file.
	ErrHostException = errors.New("readline: host exception")

	ErrAlreadyWrapped = errors.New("readline: streams already wrapped")
	ErrNotWrapped     = errors.New("readline: streams not wrapped")
	ErrTooDeep        = errors.New("readline: nesting too deep")
)

// FileErrorKind classifies a failed file operation.
type FileErrorKind int

const (
	Unclassified FileErrorKind = iota
	PermissionDenied
	NotFound
)

func (k FileErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case NotFound:
		return "no such file"
	}
	return "failed"
}

// FileError reports a failed init-file or history operation on Path.
type FileError struct {
	Op   string
	Path string
	Kind FileErrorKind
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *FileError) Unwrap() error { return e.Err }

func (e *FileError) Is(target error) bool {
	switch target {
	case fs.ErrPermission:
		return e.Kind == PermissionDenied
	case fs.ErrNotExist:
		return e.Kind == NotFound
	}
	return false
}

func fileError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	kind := Unclassified
	switch {
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		kind = NotFound
	}
	return &FileError{Op: op, Path: path, Kind: kind, Err: err}
}

func hostError(exc error) error {
	return fmt.Errorf("%w: %w", ErrHostException, exc)
}
