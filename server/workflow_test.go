package server

import (
	"errors"
	"testing"

	"covault/models"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		name    string
		current models.RequestStatus
		next    models.RequestStatus
		wantErr bool
	}{
		{"pending to signed", models.StatusPending, models.StatusSigned, false},
		{"pending to expired", models.StatusPending, models.StatusExpired, false},
		{"signed to completed", models.StatusSigned, models.StatusCompleted, false},
		{"same state", models.StatusSigned, models.StatusSigned, false},
		{"pending to completed", models.StatusPending, models.StatusCompleted, true},
		{"signed to pending", models.StatusSigned, models.StatusPending, true},
		{"signed to expired", models.StatusSigned, models.StatusExpired, true},
		{"completed is terminal", models.StatusCompleted, models.StatusSigned, true},
		{"expired is terminal", models.StatusExpired, models.StatusPending, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTransition(tc.current, tc.next)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
