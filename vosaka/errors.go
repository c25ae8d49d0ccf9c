package vosaka

import (
	"errors"

	"github.com/VennDev/VOsaka/internal/errtag"
)

// Error taxonomy for the scheduler: sentinel classes a caller can match on
// with errors.Is, plus a not-found sentinel.
//
// The four taxonomy sentinels and ErrAlreadyRunning live in internal/errtag
// rather than being declared here directly, so that vresult (which vosaka
// itself imports) can classify a ResultHandle.Expect failure as ErrRuntime
// without importing vosaka back.
var (
	ErrInvalidArgument   = errtag.ErrInvalidArgument
	ErrTimeout           = errtag.ErrTimeout
	ErrRuntime           = errtag.ErrRuntime
	ErrResourceExhausted = errtag.ErrResourceExhausted
	ErrAlreadyRunning    = errtag.ErrAlreadyRunning

	// ErrTaskNotFound is returned by Describe for an unknown task id, and
	// by ResultHandle.Run, ResultHandle.Wait (as the Result's error) and
	// Yielder.Await when the awaited task's record is gone, as after
	// Cleanup. It has no errtag counterpart.
	ErrTaskNotFound = errors.New("vosaka: task not found")
)
