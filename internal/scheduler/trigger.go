package scheduler

import "time"

// Trigger computes fire times. Next must be pure: for the same input it
// always returns the same strictly later instant, in UTC.
type Trigger interface {
	Next(after time.Time) time.Time
}

// IntervalTrigger fires at a fixed period after the previous fire.
type IntervalTrigger struct {
	Every time.Duration
}

func (t IntervalTrigger) Next(after time.Time) time.Time {
	return after.UTC().Add(t.Every)
}

// CronTrigger fires on wall-clock boundaries. Second and Minute select
// the fire instant within the minute/hour; -1 means "every". A trigger
// with Second=5, Minute=-1 fires at second 5 of every minute.
type CronTrigger struct {
	Second int
	Minute int
}

func (t CronTrigger) Next(after time.Time) time.Time {
	after = after.UTC()

	if t.Minute < 0 {
		sec := t.Second
		if sec < 0 {
			// every second
			return after.Truncate(time.Second).Add(time.Second)
		}
		next := after.Truncate(time.Minute).Add(time.Duration(sec) * time.Second)
		if !next.After(after) {
			next = next.Add(time.Minute)
		}
		return next
	}

	sec := t.Second
	if sec < 0 {
		sec = 0
	}
	next := after.Truncate(time.Hour).
		Add(time.Duration(t.Minute)*time.Minute + time.Duration(sec)*time.Second)
	if !next.After(after) {
		next = next.Add(time.Hour)
	}
	return next
}
