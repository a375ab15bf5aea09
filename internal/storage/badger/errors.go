package badger

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a status guard rejects a transition,
	// e.g. opening an attempt on a job that is not queued
	ErrConflict = errors.New("status conflict")

	// ErrDuplicate is returned when a unique constraint rejects an insert
	ErrDuplicate = errors.New("duplicate record")
)
