package notice

import (
	"context"
	"time"
)

// Store persists processed reference pairs.
type Store interface {
	// Has reports whether the pair has already been recorded.
	Has(ctx context.Context, ref Reference) (bool, error)
	// Record inserts the pair if absent. It returns ErrDuplicate when another
	// caller recorded it first.
	Record(ctx context.Context, ref Reference) error
	// Release removes a single pair, used when a forward fails after Record.
	Release(ctx context.Context, ref Reference) error
	// PurgeAll clears every recorded pair.
	PurgeAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Parser turns the portal's response markup into a Result. Implementations
// return ErrInvalidCredentials (possibly wrapped) when the portal reports no
// notice for the identifiers.
type Parser interface {
	Parse(html string, year int) (Result, error)
}

// Retriever runs one full automation session for a reference pair.
type Retriever interface {
	Retrieve(ctx context.Context, formURL string, ref Reference) (Result, error)
}

// ForwardTarget addresses a forward on the intake service.
type ForwardTarget struct {
	Token       string
	FormID      string
	RecipientID string
}

// Forwarder delivers a finalized result to the intake service.
type Forwarder interface {
	Forward(ctx context.Context, target ForwardTarget, ref Reference, result Result) error
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes registration events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
