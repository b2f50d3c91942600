package replen

import "errors"

var (
	ErrTaskNotFound      = errors.New("replenishment task not found")
	ErrTaskNotExecutable = errors.New("replenishment task is not in an executable state")
	ErrTaskTerminal      = errors.New("replenishment task is already completed or cancelled")
	ErrTaskHasNoSource   = errors.New("replenishment task has no source location")
	ErrNotPickFace       = errors.New("location is not a pick face")
)
