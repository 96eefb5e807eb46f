// Package ledger remembers which business days already have a Z-Reading so
// a terminal is closed at most once per day.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Key identifies one closing: store, terminal and business date.
type Key struct {
	StoreID    string
	TerminalID string
	Date       string
}

func (k Key) String() string {
	terminal := k.TerminalID
	if strings.TrimSpace(terminal) == "" {
		terminal = "all"
	}
	return fmt.Sprintf("zreading:%s:%s:%s", k.StoreID, terminal, k.Date)
}

// ZReadingLedger records Z-Reading generations. Reserve reports false when
// the key is already taken.
type ZReadingLedger interface {
	Reserve(ctx context.Context, key Key, readingID string, ttl time.Duration) (bool, error)
	Lookup(ctx context.Context, key Key) (string, bool, error)
	Release(ctx context.Context, key Key) error
}

type entry struct {
	readingID string
	expiresAt time.Time
}

type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]entry), now: time.Now}
}

func (l *MemoryLedger) Reserve(_ context.Context, key Key, readingID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key.String()
	if e, ok := l.entries[k]; ok && l.now().Before(e.expiresAt) {
		return false, nil
	}
	l.entries[k] = entry{readingID: readingID, expiresAt: l.now().Add(ttl)}
	return true, nil
}

func (l *MemoryLedger) Lookup(_ context.Context, key Key) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key.String()]
	if !ok || !l.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.readingID, true, nil
}

func (l *MemoryLedger) Release(_ context.Context, key Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key.String())
	return nil
}
