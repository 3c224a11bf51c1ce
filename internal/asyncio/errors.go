package asyncio

import "errors"

// Kind classifies an Error returned by the asyncio package.
type Kind int

const (
	// KindBadHandle means the supplied identifier does not name an EventSet.
	KindBadHandle Kind = iota
	// KindBadValue means a required argument was invalid (nil out-pointer,
	// zero-length buffer, max <= 0, and similar usage errors).
	KindBadValue
	// KindAlloc means an allocation failed (record, list node, or copy).
	KindAlloc
	// KindBusy means Close was called while the active list was non-empty.
	KindBusy
	// KindCantWait means the Runtime reported a structural error, not a
	// per-operation failure.
	KindCantWait
	// KindCantGet means diagnostics extraction failed for one or more records.
	KindCantGet
	// KindCantRegister means the handle registry refused the new EventSet.
	KindCantRegister
)

func (k Kind) String() string {
	switch k {
	case KindBadHandle:
		return "BAD_HANDLE"
	case KindBadValue:
		return "BAD_VALUE"
	case KindAlloc:
		return "ALLOC"
	case KindBusy:
		return "BUSY"
	case KindCantWait:
		return "CANT_WAIT"
	case KindCantGet:
		return "CANT_GET"
	case KindCantRegister:
		return "CANT_REGISTER"
	default:
		return "UNKNOWN"
	}
}

// Error is the error type returned by every exported asyncio operation.
// Use errors.Is against the sentinel Err* values, or inspect Kind directly.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "asyncio: " + e.Kind.String()
	}

	return "asyncio: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors. Wrap one of these in an *Error via newError, or compare
// with errors.Is against the returned *Error.
var (
	ErrBadHandle    = errors.New("asyncio: not an event set")
	ErrBadValue     = errors.New("asyncio: invalid argument")
	ErrAlloc        = errors.New("asyncio: allocation failed")
	ErrBusy         = errors.New("asyncio: event set has in-progress operations")
	ErrCantWait     = errors.New("asyncio: runtime reported a structural error")
	ErrCantGet      = errors.New("asyncio: diagnostics extraction failed")
	ErrCantRegister = errors.New("asyncio: handle registry refused registration")
)

func kindSentinel(k Kind) error {
	switch k {
	case KindBadHandle:
		return ErrBadHandle
	case KindBadValue:
		return ErrBadValue
	case KindAlloc:
		return ErrAlloc
	case KindBusy:
		return ErrBusy
	case KindCantWait:
		return ErrCantWait
	case KindCantGet:
		return ErrCantGet
	case KindCantRegister:
		return ErrCantRegister
	default:
		return nil
	}
}

// newError wraps cause (may be nil) in an *Error of the given Kind, using the
// matching sentinel as the Unwrap target when cause is nil.
func newError(k Kind, cause error) *Error {
	if cause == nil {
		cause = kindSentinel(k)
	}

	return &Error{Kind: k, Err: cause}
}
