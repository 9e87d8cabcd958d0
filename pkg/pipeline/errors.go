package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every pipeline failure wraps exactly one of these.
var (
	// ErrArchiveFormat is returned when the archive bytes cannot be decoded
	ErrArchiveFormat = errors.New("archive format error")

	// ErrValidation is returned for a missing metadata script, an archive
	// without classified assets, or a catalog entry without a name
	ErrValidation = errors.New("validation error")

	// ErrMetadataEval is returned when the metadata script throws or yields
	// something other than a sequence of records
	ErrMetadataEval = errors.New("metadata evaluation error")

	// ErrAllocationFetch is returned when the high-water-mark scan fails
	ErrAllocationFetch = errors.New("allocation fetch error")

	// ErrUpload is returned when an asset upload fails
	ErrUpload = errors.New("upload error")

	// ErrRecordWrite is returned when a catalog record cannot be written
	ErrRecordWrite = errors.New("record write error")
)

// Stage names one step of the per-invocation state machine
type Stage string

const (
	StageReceived   Stage = "received"
	StageUnpacked   Stage = "unpacked"
	StageEvaluated  Stage = "evaluated"
	StageClassified Stage = "classified"
	StageAllocated  Stage = "allocated"
	StagePersisting Stage = "persisting"
	StageCompleted  Stage = "completed"
)

// StageError records the stage an invocation failed in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps err with the stage it happened in
func Fail(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Kind returns the error kind label for err, or "unknown". Cancellation
// and deadline errors are labelled "cancelled" whatever stage they hit.
func Kind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrArchiveFormat):
		return "archive_format"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrMetadataEval):
		return "metadata_eval"
	case errors.Is(err, ErrAllocationFetch):
		return "allocation_fetch"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrRecordWrite):
		return "record_write"
	default:
		return "unknown"
	}
}
