package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-char hex id, used for request ids.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
