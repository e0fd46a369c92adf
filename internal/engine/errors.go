package engine

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/crosspost/internal/models"
)

var (
	ErrNoTargets = errors.New("post has no target platforms")
	// ErrClaimLost means the final write of a dispatch round found the post
	// changed underneath it, typically because a stale reclaim took it over.
	ErrClaimLost = errors.New("dispatch claim was lost")
)

// TransitionError reports a lifecycle move that the state machine forbids.
type TransitionError struct {
	From models.PostStatus
	To   models.PostStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move post from %s to %s", e.From, e.To)
}
