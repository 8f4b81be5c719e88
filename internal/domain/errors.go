package domain

import "errors"

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed input
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmergencyStop is returned while the kill switch is active
	ErrEmergencyStop = errors.New("emergency stop activated")

	// ErrDatabaseConnection is returned when the durable store is unreachable
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrLeaseHeld is returned when another worker owns the agent's cycle lease
	ErrLeaseHeld = errors.New("cycle lease held by another worker")
)
