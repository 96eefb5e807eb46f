package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassifyDetectsSessionExpiry(t *testing.T) {
	cases := []error{
		errors.New("JWT expired"),
		errors.New("session expired, refresh required"),
		errors.New("Invalid session token"),
		errors.New("user is not authenticated"),
		errors.New("401 Unauthorized"),
		&pgconn.PgError{Code: "28P01", Message: "bad password"},
		fmt.Errorf("query: %w", &pgconn.PgError{Code: "28000"}),
	}
	for _, in := range cases {
		err := Classify(in)
		require.ErrorIs(t, err, ErrSessionExpired, in.Error())
		require.True(t, IsTerminal(err))
	}
}

func TestClassifyLeavesOtherErrors(t *testing.T) {
	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	require.Same(t, syntax, Classify(syntax))
	require.Nil(t, Classify(nil))
	require.False(t, IsTerminal(Classify(errors.New("connection reset by peer"))))

	idle := &pgconn.PgError{Code: "25P03", Message: "terminating connection due to idle-in-transaction session timeout"}
	require.NotErrorIs(t, Classify(idle), ErrSessionExpired)
	require.False(t, IsTerminal(Classify(idle)))
	require.True(t, IsTerminal(Classify(context.Canceled)))
}
