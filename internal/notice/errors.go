package notice

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. The set is closed; callers branch on it
// instead of matching error strings.
type Kind uint8

// Failure kinds surfaced by the pipeline.
const (
	KindUnknown Kind = iota
	KindValidation
	KindDuplicate
	KindNotFound
	KindRetrieval
	KindForward
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindRetrieval:
		return "retrieval"
	case KindForward:
		return "forward"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

var (
	// ErrDuplicate is returned by stores when the reference pair already exists.
	ErrDuplicate = errors.New("reference already processed")
	// ErrInvalidCredentials is returned by parsers when the portal reports no
	// notice for the supplied identifiers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	errMissingBoth      = errors.New("fiscal id and notice reference are required")
	errMissingFiscalID  = errors.New("fiscal id is required")
	errMissingNoticeRef = errors.New("notice reference is required")
)

// Error carries a Kind alongside the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf wraps a formatted error under the given kind.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain. Bare sentinels
// map to their natural kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind
	}
	switch {
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrInvalidCredentials):
		return KindNotFound
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
