package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewPrefixesUUID(t *testing.T) {
	id := New("audit")
	require.True(t, strings.HasPrefix(id, "audit-"))
	_, err := uuid.Parse(strings.TrimPrefix(id, "audit-"))
	require.NoError(t, err)
	require.NotEqual(t, id, New("audit"))
}
