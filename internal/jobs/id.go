package jobs

import (
	"github.com/google/uuid"
)

// RunPrefix prefixes every run ID.
const RunPrefix = "run-"

// GenerateID creates a new random job ID with the given prefix.
// The prefix should include a trailing dash, e.g. "run-".
func GenerateID(prefix string) string {
	return prefix + uuid.NewString()
}

// ValidID reports whether id is prefix followed by a UUID.
func ValidID(id, prefix string) bool {
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return false
	}
	_, err := uuid.Parse(id[len(prefix):])
	return err == nil
}
