package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

// Ledger is an in-memory notice.Store for development and tests.
type Ledger struct {
	mu      sync.RWMutex
	records map[notice.Reference]time.Time
	now     func() time.Time
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[notice.Reference]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Has reports whether ref was recorded.
func (l *Ledger) Has(_ context.Context, ref notice.Reference) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[ref]
	return ok, nil
}

// Record inserts ref unless present.
func (l *Ledger) Record(_ context.Context, ref notice.Reference) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[ref]; ok {
		return notice.ErrDuplicate
	}
	l.records[ref] = l.now()
	return nil
}

// Release removes ref.
func (l *Ledger) Release(_ context.Context, ref notice.Reference) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, ref)
	return nil
}

// PurgeAll removes every record.
func (l *Ledger) PurgeAll(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[notice.Reference]time.Time)
	return nil
}

// Records returns a snapshot of the recorded pairs.
func (l *Ledger) Records() []notice.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]notice.Record, 0, len(l.records))
	for ref, at := range l.records {
		out = append(out, notice.Record{Reference: ref, RecordedAt: at})
	}
	return out
}

// Ping always succeeds.
func (l *Ledger) Ping(context.Context) error { return nil }

// Close is a no-op.
func (l *Ledger) Close() error { return nil }
