package drip

import (
	"time"

	"github.com/ketowell/waitlist-manager/internal/entity"
)

const day = 24 * time.Hour

// Cutoff returns the latest confirmation time that makes a member due for
// emailType at now. It returns the zero time for non drip types.
func Cutoff(emailType entity.EmailType, now time.Time) time.Time {
	n, ok := emailType.DayOffset()
	if !ok {
		return time.Time{}
	}
	return now.Add(-time.Duration(n) * day)
}

// IsEligible reports whether member is due for emailType at now: the member is
// confirmed, the confirmation is at least the type's day offset old and the
// email has not been sent yet.
func IsEligible(member *entity.WaitlistMember, emailType entity.EmailType, now time.Time, alreadySent bool) bool {
	if alreadySent || !emailType.IsDrip() || !member.Confirmed() {
		return false
	}
	return !member.ConfirmedAt.Time.After(Cutoff(emailType, now))
}

// Suppressed reports whether a member's send history rules out another send of
// emailType. It mirrors the exclusions of the store eligibility query: a sent
// or unknown outcome for the type, an attempt of the type without outcome, or
// an undeliverable address for any type.
func Suppressed(history []entity.EmailSendRecord, emailType entity.EmailType) bool {
	closed := make(map[string]bool, len(history))
	for _, r := range history {
		if r.Status != entity.EmailSendAttempting {
			closed[r.AttemptId] = true
		}
	}

	for _, r := range history {
		if r.Status == entity.EmailSendBounced ||
			(r.ErrorKind.Valid && entity.FailureKind(r.ErrorKind.String) == entity.FailureInvalidRecipient) {
			return true
		}
		if r.EmailType != emailType {
			continue
		}
		switch r.Status {
		case entity.EmailSendSent, entity.EmailSendUnknown:
			return true
		case entity.EmailSendAttempting:
			if !closed[r.AttemptId] {
				return true
			}
		}
	}
	return false
}
