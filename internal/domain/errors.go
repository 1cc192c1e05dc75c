package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidSignal        = errors.New("invalid signal")
	ErrPresetNotFound       = errors.New("preset not found")
	ErrInvalidPreset        = errors.New("invalid preset")
	ErrSimulationOnly       = errors.New("not available in production mode")
	ErrExecutionUnavailable = errors.New("trade execution is not available over the terminal protocol")
)
