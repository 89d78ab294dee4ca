package sync

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind names a sync pass.
type Kind string

const (
	KindProfile       Kind = "profile"
	KindTimeline      Kind = "timeline"
	KindNotifications Kind = "notifications"
)

// ItemResult is the outcome of importing one remote object.
type ItemResult struct {
	RemoteID string
	LocalID  uuid.UUID

	// Skipped is set when the object was already present and nothing was
	// written (notifications only; statuses report their existing id).
	Skipped bool

	Err error
}

// Report summarises one sync pass. Processed counts successful items,
// Failed counts items whose import was rolled back.
type Report struct {
	Kind      Kind
	Processed int
	Failed    int
	Items     []ItemResult

	// NextMaxID continues paging towards older items. Empty when the
	// server advertised no further page.
	NextMaxID string
}

func (r *Report) record(res ItemResult) {
	if res.Err != nil {
		r.Failed++
	} else {
		r.Processed++
	}
	r.Items = append(r.Items, res)
}

// Err joins the per-item errors, or returns nil when every item succeeded.
func (r Report) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Kind, it.RemoteID, it.Err))
		}
	}
	return errors.Join(errs...)
}
