package ncr

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrPermission        = errors.New("permission denied")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPrecondition      = errors.New("precondition failed")
	ErrExpired           = errors.New("expired")
	ErrConflict          = errors.New("concurrent update conflict")
)

// Kind names returned to callers alongside the error message.
const (
	KindValidation        = "ValidationError"
	KindNotFound          = "NotFoundError"
	KindPermission        = "PermissionError"
	KindInvalidTransition = "InvalidTransitionError"
	KindPrecondition      = "PreconditionError"
	KindExpired           = "ExpiredError"
	KindConflict          = "ConflictError"
	KindInternal          = "InternalError"
)

var kindTable = []struct {
	err  error
	kind string
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrPermission, KindPermission},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrPrecondition, KindPrecondition},
	{ErrExpired, KindExpired},
	{ErrConflict, KindConflict},
}

// KindOf maps err to its public kind. Anything outside the domain set is
// reported as InternalError.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, item := range kindTable {
		if errors.Is(err, item.err) {
			return item.kind
		}
	}
	return KindInternal
}

// IsRecoverable reports whether err is one of the typed domain errors.
func IsRecoverable(err error) bool {
	kind := KindOf(err)
	return kind != "" && kind != KindInternal
}
