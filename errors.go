package ioprof

import "golang.org/x/xerrors"

// Kind identifies one of the error taxonomies the engine and its
// surrounding CLI can raise. It is not a type switch target — use Is to
// test whether an error carries a given Kind.
type Kind int

const (
	// KindGeometryInvalid means the device-geometry text was unparseable
	// or missing a required field.
	KindGeometryInvalid Kind = iota
	// KindInputCorrupt means the input archive was missing a required
	// member, or a member was unreadable once decompressed.
	KindInputCorrupt
	// KindParseError means a worker hit an unrecoverable I/O failure while
	// reading a shard, as distinct from a malformed line (which is
	// skipped, not an error).
	KindParseError
	// KindPrereqMissing means an external tool required by trace mode was
	// not found.
	KindPrereqMissing
	// KindValidationError means CLI arguments were inconsistent.
	KindValidationError
)

func (k Kind) String() string {
	switch k {
	case KindGeometryInvalid:
		return "GeometryInvalid"
	case KindInputCorrupt:
		return "InputCorrupt"
	case KindParseError:
		return "ParseError"
	case KindPrereqMissing:
		return "PrereqMissing"
	case KindValidationError:
		return "ValidationError"
	default:
		return "UnknownError"
	}
}

// Error is the common error shape used across the engine: every fatal
// error carries one of the five taxonomy kinds from spec §7 plus the
// wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap constructs an *Error of the given kind wrapping err. Returns nil if
// err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: xerrors.Errorf("%w", err)}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
