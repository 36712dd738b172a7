package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalTriggerNext(t *testing.T) {
	tr := IntervalTrigger{Every: 30 * time.Second}
	after := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	next := tr.Next(after)
	assert.Equal(t, after.Add(30*time.Second), next)

	// Pure: same input, same output.
	assert.Equal(t, next, tr.Next(after))
}

func TestCronTriggerEveryMinute(t *testing.T) {
	tr := CronTrigger{Second: 5, Minute: -1}

	cases := []struct {
		after, want time.Time
	}{
		{
			time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
		},
		{
			// exactly on the fire instant: strictly after
			time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
			time.Date(2025, 6, 1, 12, 1, 5, 0, time.UTC),
		},
		{
			time.Date(2025, 6, 1, 12, 0, 42, 0, time.UTC),
			time.Date(2025, 6, 1, 12, 1, 5, 0, time.UTC),
		},
		{
			// hour rollover
			time.Date(2025, 6, 1, 12, 59, 30, 0, time.UTC),
			time.Date(2025, 6, 1, 13, 0, 5, 0, time.UTC),
		},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, tr.Next(c.after), "after %s", c.after)
	}
}

func TestCronTriggerHourly(t *testing.T) {
	tr := CronTrigger{Second: 0, Minute: 30}

	after := time.Date(2025, 6, 1, 12, 31, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 30, 0, 0, time.UTC), tr.Next(after))

	after = time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), tr.Next(after))
}

func TestCronTriggerConvertsToUTC(t *testing.T) {
	tr := CronTrigger{Second: 5, Minute: -1}
	loc := time.FixedZone("UTC+7", 7*3600)
	after := time.Date(2025, 6, 1, 19, 0, 0, 0, loc) // 12:00:00 UTC

	next := tr.Next(after)
	assert.Equal(t, time.UTC, next.Location())
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC), next)
}
