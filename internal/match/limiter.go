package match

import (
	"time"

	"github.com/mealmatch/backend/internal/users"
)

// acceptLimiter bounds how often a non-premium user may accept a match: one
// acceptance per rolling window, measured from the profile's LastAcceptedAt.
// The engine consults and advances it with the profile row locked, inside the
// same transaction as the rest of the accept transition, so concurrent
// accepts cannot both pass the check.
type acceptLimiter struct {
	window time.Duration
}

func (l acceptLimiter) allow(profile users.Profile, now time.Time) bool {
	if profile.IsPremium {
		return true
	}
	if profile.LastAcceptedAt == nil {
		return true
	}
	return now.Sub(*profile.LastAcceptedAt) >= l.window
}
