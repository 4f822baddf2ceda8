// Package apperr holds the error kinds shared across layers.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrStorageWrite  = errors.New("storage write failed")
	ErrImportFormat  = errors.New("invalid import file")

	ErrConfirmationRequired = errors.New("confirmation required")
)

// ValidationError carries per-field messages for a rejected edit.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageWriteError reports a failed write to one store key.
type StorageWriteError struct {
	Key string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write %q: %v", e.Key, e.Err)
}

// Is matches ErrStorageWrite.
func (e *StorageWriteError) Is(target error) bool { return target == ErrStorageWrite }

func (e *StorageWriteError) Unwrap() error { return e.Err }

// ImportFormatError reports why an import blob was rejected.
type ImportFormatError struct {
	Reason string
}

func (e *ImportFormatError) Error() string {
	return "invalid import file: " + e.Reason
}

func (e *ImportFormatError) Unwrap() error { return ErrImportFormat }
