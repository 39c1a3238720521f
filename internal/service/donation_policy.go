package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/lifedrop/lifedrop-api/internal/models"
)

// DefaultAnnualLimit caps approved/used donations per donor per calendar year.
const DefaultAnnualLimit = 4

// LimitDecision is the outcome of the annual limit policy.
type LimitDecision struct {
	Allowed bool `json:"allowed"`
	// Count is the number of donations already counting toward the limit.
	Count int `json:"count"`
	// RetryAfter is how long until the donor becomes eligible again. Zero
	// when Allowed.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Message is a user-facing explanation including the countdown.
	Message string `json:"message,omitempty"`
}

// CountsTowardLimit is the canonical predicate deciding whether a donation
// consumes annual capacity: approved or already used, dated in the given
// calendar year. Every limit check in the codebase goes through this.
func CountsTowardLimit(d models.Donation, year int) bool {
	if d.Status != models.DonationStatusApproved && d.Status != models.DonationStatusUsed {
		return false
	}
	return d.Date.UTC().Year() == year
}

// AvailableStreaks returns the donor's booking eligibility: the count of
// donations still in APPROVED. USED donations have been consumed and do not
// count.
func AvailableStreaks(donations []models.Donation) int {
	streaks := 0
	for _, d := range donations {
		if d.Status == models.DonationStatusApproved {
			streaks++
		}
	}
	return streaks
}

// CanAcceptDonation evaluates the annual limit for a candidate donation date
// against the donor's existing donations. The candidate itself must not be in
// the provided slice. The same function serves the advisory submission check
// and the authoritative approval check; only the inputs differ.
func CanAcceptDonation(now, candidateDate time.Time, donations []models.Donation, limit int) LimitDecision {
	year := candidateDate.UTC().Year()

	count := 0
	for _, d := range donations {
		if CountsTowardLimit(d, year) {
			count++
		}
	}

	return EvaluateAnnualLimit(now, year, count, limit)
}

// EvaluateAnnualLimit turns an already-computed annual count into a decision.
// The approval path uses it with a count taken inside the database, so the
// decision reflects committed state rather than a cached read.
func EvaluateAnnualLimit(now time.Time, year, count, limit int) LimitDecision {
	if limit <= 0 {
		limit = DefaultAnnualLimit
	}

	if count < limit {
		return LimitDecision{Allowed: true, Count: count}
	}

	nextEligible := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	retryAfter := nextEligible.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return LimitDecision{
		Allowed:    false,
		Count:      count,
		RetryAfter: retryAfter,
		Message: fmt.Sprintf("annual donation limit of %d reached; you can donate again on January 1st, %d (in %s)",
			limit, year+1, FormatCountdown(now, nextEligible)),
	}
}

// FormatCountdown renders the time until the given instant as the largest
// non-zero units of months, days, hours and minutes. When everything rounds
// to zero it reports "less than a minute".
func FormatCountdown(now, until time.Time) string {
	if !until.After(now) {
		return "less than a minute"
	}

	months := 0
	cursor := now
	for {
		next := cursor.AddDate(0, 1, 0)
		if next.After(until) {
			break
		}
		cursor = next
		months++
	}

	remaining := until.Sub(cursor)
	days := int(remaining / (24 * time.Hour))
	remaining -= time.Duration(days) * 24 * time.Hour
	hours := int(remaining / time.Hour)
	remaining -= time.Duration(hours) * time.Hour
	minutes := int(remaining / time.Minute)

	parts := make([]string, 0, 4)
	if months > 0 {
		parts = append(parts, plural(months, "month"))
	}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}

	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
