// Package timelock computes the release timestamp for signed PSBTs. The
// unlock time is fixed once at request creation from a snapshot of the
// service's configured delay; later edits to the service never move it.
package timelock

import "time"

// UnlockTime returns the earliest instant a signed PSBT may be released to
// the client. Negative delays clamp to zero so the result is never before
// createdAt.
func UnlockTime(createdAt time.Time, minDelayHours int) time.Time {
	if minDelayHours < 0 {
		minDelayHours = 0
	}
	return createdAt.Add(time.Duration(minDelayHours) * time.Hour)
}

// Elapsed reports whether the stored unlock time has passed at the supplied
// instant. Exactly at the boundary counts as elapsed.
func Elapsed(now, unlocksAt time.Time) bool {
	return !now.Before(unlocksAt)
}
