package ids

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a time-ordered identifier for sessions, browser keys and events.
func New() string {
	return ksuid.New().String()
}

// NewUUID returns an identifier for rows keyed by uuid columns.
func NewUUID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a uuid.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
