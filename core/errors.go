package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDescriptor marks caller-supplied buffer metadata that is
	// rejected before any backend call is made.
	ErrInvalidDescriptor = errors.New("invalid buffer descriptor")
	// ErrNotSupported is the recoverable "device cannot import this"
	// outcome. Hosts are expected to check for it and fall back.
	ErrNotSupported = errors.New("external buffer import not supported")
	// ErrDeviceLost is fatal for every session on the device.
	ErrDeviceLost = errors.New("graphics device lost")
	// ErrSessionDestroyed is returned when a destroyed session is used.
	ErrSessionDestroyed = errors.New("import session destroyed")
	// ErrSessionNotReady is returned when a session that never reached
	// Ready is used.
	ErrSessionNotReady = errors.New("import session not ready")
)

// ImportStep identifies which backend call of the import sequence failed.
type ImportStep int

const (
	StepMemoryImport ImportStep = iota
	StepImageCreation
	StepBind
	StepViewCreation
)

func (s ImportStep) String() string {
	switch s {
	case StepMemoryImport:
		return "memory import"
	case StepImageCreation:
		return "image creation"
	case StepBind:
		return "memory bind"
	case StepViewCreation:
		return "view creation"
	}
	return "unknown step"
}

// ImportError wraps a backend failure with the step it happened in, so a
// host can tell a rejected handle apart from a device-state problem. By the
// time one is returned all partially created backend objects are gone.
type ImportError struct {
	Step ImportStep
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed during %s: %v", e.Step, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func NewImportError(step ImportStep, err error) *ImportError {
	return &ImportError{Step: step, Err: err}
}

// IsHandleRejected reports whether err is an import failure caused by the
// driver refusing the foreign handle.
func IsHandleRejected(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie) && ie.Step == StepMemoryImport
}
