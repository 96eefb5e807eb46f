package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as "zr-3f2c...".
func New(prefix string) string {
	id := uuid.NewString()
	if strings.TrimSpace(prefix) == "" {
		return id
	}
	return prefix + "-" + id
}
