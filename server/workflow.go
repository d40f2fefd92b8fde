package server

import (
	"fmt"

	"covault/models"
)

// allowedTransitions defines the monotonic request lifecycle. EXPIRED is
// reachable only from PENDING so an external sweep can retire stale requests;
// nothing here drives it.
var allowedTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusPending: {models.StatusSigned, models.StatusExpired},
	models.StatusSigned:  {models.StatusCompleted},
}

// ValidateTransition ensures the transition follows the defined state machine.
// Staying in the current state is always permitted.
func ValidateTransition(current, next models.RequestStatus) error {
	if current == next {
		return nil
	}
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("%w: no transitions allowed from %s", ErrInvalidTransition, current)
	}
	for _, state := range allowed {
		if state == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
}
