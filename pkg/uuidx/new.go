package uuidx

import "github.com/google/uuid"

// New returns a freshly generated v7 UUID. Version 7 keeps identifiers
// time-ordered, so message and call ids sort by creation time.
// It panics if the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a freshly generated v7 UUID in canonical string form.
func NewString() string {
	return New().String()
}
