package domain

import (
	"math"
	"time"
)

const (
	// Day is the unit all lifecycle arithmetic is expressed in.
	Day = 24 * time.Hour

	// RedemptionGraceDays is how long a domain stays recoverable after its
	// nominal expiry date.
	RedemptionGraceDays = 28

	// RefreshHorizon selects domains for re-query when they expire within it.
	RefreshHorizon = 90 * Day

	// WarningWindowDays triggers the early warning when days-to-deadline equals it.
	WarningWindowDays = 30

	// FinalWarningDays triggers the final warnings while days-to-deadline is below it.
	FinalWarningDays = 5
)

// DaysUntil returns ceil((t - now) / 1 day).
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(float64(t.Sub(now)) / float64(Day)))
}

// DaysToDeadline returns the days left before the domain leaves its
// redemption window: DaysUntil(expiry) plus the grace period.
func DaysToDeadline(expiry, now time.Time) int {
	return DaysUntil(expiry, now) + RedemptionGraceDays
}

// ShouldNotify reports whether subscribers are warned at daysToDeadline.
func ShouldNotify(daysToDeadline int) bool {
	return daysToDeadline == WarningWindowDays || daysToDeadline < FinalWarningDays
}

// NotifyHorizon is the latest expiry, relative to now, for which ShouldNotify
// can hold: ceil(x)+grace == 30 requires x <= 2 days and the final window lies
// further in the past.
const NotifyHorizon = (WarningWindowDays - RedemptionGraceDays) * Day
