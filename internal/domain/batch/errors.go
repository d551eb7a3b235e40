package batch

import "errors"

var (
	// ErrNotFound means no document exists for the batch ID.
	ErrNotFound = errors.New("batch execution not found")
	// ErrStoreUnavailable wraps every transport or server failure of the primary store.
	ErrStoreUnavailable = errors.New("batch state store unavailable")
	ErrInvalidStatus    = errors.New("invalid job status")
	ErrInvalidArgument  = errors.New("invalid argument")
)
