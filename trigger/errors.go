package trigger

import "errors"

var (
	// ErrInvalidPattern is returned when a pattern does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrDuplicateName is returned when a guild already has a trigger
	// with the requested name.
	ErrDuplicateName = errors.New("trigger name already in use")
	// ErrNotFound is returned when a named trigger does not exist.
	ErrNotFound = errors.New("trigger not found")
	// ErrEvaluationTimeout is returned when a pattern does not finish
	// within the evaluation budget. Callers treat it as no match.
	ErrEvaluationTimeout = errors.New("pattern evaluation timed out")
	// ErrPermissionDenied is returned when a hierarchy or host permission
	// check prevents an action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrMissingTarget is returned when a referenced command, channel or
	// role no longer exists.
	ErrMissingTarget = errors.New("missing target")
	// ErrStorageUnavailable is returned when the persistence layer fails.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
