package fault

import "errors"

// Error kinds shared by every bounded context. Domain sentinels are built
// with New so callers can match either the sentinel or its kind.
var (
	// ErrValidation is the kind for rejected input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is the kind for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrConflict is the kind for requests that race with current state.
	ErrConflict = errors.New("conflict")
	// ErrPrecondition is the kind for domain preconditions that do not hold.
	ErrPrecondition = errors.New("precondition failed")
	// ErrStorage is the kind for persistence failures.
	ErrStorage = errors.New("storage error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

// New returns a sentinel error classified under kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Validation builds an ad-hoc validation error.
func Validation(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

// StorageError wraps an unclassified persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Op == "" {
		return "storage: " + e.Err.Error()
	}
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError unless it already carries a kind.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Classified reports whether err matches one of the known kinds.
func Classified(err error) bool {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrPrecondition, ErrStorage} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
