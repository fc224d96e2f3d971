package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition  = errors.New("transition is not allowed from current status")
	ErrTerminal           = errors.New("session is in a terminal state")
	ErrNotParticipant     = errors.New("user is not a participant of this session")
	ErrForbidden          = errors.New("action is not allowed for this role")
	ErrOutsideStartWindow = errors.New("session can only be started within 15 minutes of the scheduled time")
	ErrScheduleInPast     = errors.New("scheduled time must be in the future")
	ErrReviewExists       = errors.New("session already has a review")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrUnknownAction      = errors.New("unknown action")
)

// TransitionError результат неудачного действия над занятием.
// Retryable означает, что состояние не изменилось и запрос можно повторить.
type TransitionError struct {
	Action    Action
	Err       error
	Retryable bool
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s session: %v", e.Action, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsRetryable проверяет, можно ли повторить действие
func IsRetryable(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
