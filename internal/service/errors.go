package service

import "errors"

var (
	// ErrInvalidTransition is returned when a queue row is not in the state an action requires
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownEntity is returned for entity names outside the sync registry
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidInput wraps request values that cannot be parsed
	ErrInvalidInput = errors.New("invalid input")
	// ErrAnalyzerUnavailable is returned when no receipt analyzer is configured
	ErrAnalyzerUnavailable = errors.New("receipt analyzer is not configured")
)
