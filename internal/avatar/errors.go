package avatar

import "errors"

// Error taxonomy shared by every storage layer. Callers match with
// [errors.Is]; concrete errors wrap one of these sentinels.
var (
	// ErrInvalidArgument reports a rejected input such as a blank name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIndexOutOfRange reports a reorder index outside the voice list.
	// Errors carrying it also match ErrInvalidArgument.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNotFound reports an unknown avatar or voice id.
	ErrNotFound = errors.New("not found")

	// ErrPersistence reports a failed metadata store read or write.
	ErrPersistence = errors.New("persistence failure")

	// ErrBlob reports a blob store failure. It is advisory: it is logged and
	// counted during cleanup and never returned from a metadata mutation.
	ErrBlob = errors.New("blob failure")

	// ErrDecode reports a stored document that could not be parsed.
	ErrDecode = errors.New("decode failure")

	// ErrNotReady is returned by mutations before the collection has been
	// loaded successfully, so an unread durable record is never overwritten.
	ErrNotReady = errors.New("collection not loaded")

	// ErrDeleteInProgress is returned when a destructive operation is
	// requested while another one is still persisting.
	ErrDeleteInProgress = errors.New("delete already in progress")
)
