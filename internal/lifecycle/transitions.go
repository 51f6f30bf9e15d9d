// Package lifecycle owns the post state machine. Every status write goes
// through Manager, which checks the transition table and then writes with a
// conditional update so concurrent writers cannot both win.
package lifecycle

import (
	"fmt"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/pkg/apperror"
)

// statusNew is the "from" state of a post that does not exist yet.
const statusNew models.Status = ""

var validTransitions = map[models.Status]map[models.Status]bool{
	statusNew:                  {models.PostStatusDraft: true, models.PostStatusQueued: true, models.PostStatusScheduled: true},
	models.PostStatusDraft:     {models.PostStatusQueued: true, models.PostStatusScheduled: true},
	models.PostStatusScheduled: {models.PostStatusQueued: true},
	models.PostStatusQueued:    {models.PostStatusPosted: true, models.PostStatusFailed: true},
	models.PostStatusFailed:    {models.PostStatusQueued: true, models.PostStatusScheduled: true},
	models.PostStatusPosted:    {},
}

var (
	ErrInvalidTransition = apperror.New(apperror.ErrConflict, "invalid_transition", "status transition not allowed")
	ErrConcurrentUpdate  = apperror.New(apperror.ErrConflict, "concurrent_update", "post was changed by another operation")

	ErrEmptyContent    = apperror.New(apperror.ErrValidation, "empty_content", "content must not be empty")
	ErrUnknownProvider = apperror.New(apperror.ErrValidation, "unknown_provider", "unknown provider")
	ErrScheduleInPast  = apperror.New(apperror.ErrValidation, "schedule_in_past", "scheduled time must be in the future")
	ErrMissingSchedule = apperror.New(apperror.ErrValidation, "missing_schedule", "scheduled time is required")
)

// TransitionError describes a rejected transition. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From models.Status
	To   models.Status
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "(new)"
	}
	return fmt.Sprintf("cannot move post from %s to %s", from, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CanTransition reports whether from → to is in the transition table.
// An empty from means creation.
func CanTransition(from, to models.Status) bool {
	targets, ok := validTransitions[from]
	return ok && targets[to]
}

func checkTransition(from, to models.Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
