package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID
func NewJobID() string {
	return uuid.New().String()
}

// NewBundleID generates a unique preview bundle ID
func NewBundleID() string {
	return uuid.New().String()
}

// IsValidUUID reports whether s parses as a UUID.
// Used to gate bundle ids on the preview path.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
