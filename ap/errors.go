package ap

import "github.com/pkg/errors"

// Error taxonomy of the delete path. Not-found is deliberately absent from
// outcome mapping: an unknown or already-deleted object is a successful
// no-op so redelivered activities stay idempotent.
var (
	// ErrObjectNotFound marks an object reference that resolves to nothing.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUnauthorized marks an actor without rights over the resolved
	// target. No mutation happens and retrying cannot help.
	ErrUnauthorized = errors.New("actor does not own the target object")

	// ErrPersistence marks a storage failure. The whole activity failed and
	// is safe to redeliver from the start.
	ErrPersistence = errors.New("persistence failure")

	// ErrDeliverySubmission marks a failed handoff of a delivery task. The
	// deletion itself is already applied and is not rolled back.
	ErrDeliverySubmission = errors.New("delivery submission failure")

	// ErrGone marks an object that existed but has been discarded.
	ErrGone = errors.New("object is gone")
)
