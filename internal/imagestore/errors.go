package imagestore

import (
	"errors"
	"fmt"
)

// ErrStorage matches every *StorageError with errors.Is.
var ErrStorage = errors.New("storage error")

// StorageError describes a failed load or save of a named dataset.
type StorageError struct {
	Op   string // "load" or "save"
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("imagestore: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match so callers need not know the cause.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
