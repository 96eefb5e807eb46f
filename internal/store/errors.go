package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var sessionPhrases = []string{
	"jwt expired",
	"session expired",
	"invalid session",
	"not authenticated",
	"unauthorized",
	"authentication failed",
	"password authentication",
}

// Classify maps backend authentication failures onto ErrSessionExpired.
// Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrSessionExpired) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28") {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range sessionPhrases {
		if strings.Contains(msg, phrase) {
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
	}
	return err
}

// IsTerminal reports whether err must stop a query cascade.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
