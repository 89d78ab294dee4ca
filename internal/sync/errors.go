package sync

import "errors"

var (
	// ErrNotConnected means the local account has no remote credentials.
	// It is returned before any network call.
	ErrNotConnected = errors.New("account not connected to a remote server")

	// ErrAccountNotFound means the local account id does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrPostNotFound means the local post id does not exist.
	ErrPostNotFound = errors.New("post not found")

	// ErrNotFederated means a local row has no remote counterpart to act on.
	ErrNotFederated = errors.New("no remote counterpart")

	// ErrAlreadyLinked means another local account already owns the remote id.
	ErrAlreadyLinked = errors.New("remote account already linked to another local account")

	// ErrCyclicReference means an object was reached again while it was still
	// being resolved.
	ErrCyclicReference = errors.New("cyclic reference")

	// ErrInvalidRemote means a remote object lacks the fields needed to
	// correlate it.
	ErrInvalidRemote = errors.New("invalid remote object")

	// ErrUnknownTimeline means the requested timeline is not supported.
	ErrUnknownTimeline = errors.New("unknown timeline")
)
