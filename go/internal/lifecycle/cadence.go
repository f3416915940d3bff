package lifecycle

import "time"

// NextAligned returns the first refresh instant strictly after the given time.
// Refreshes fire at second zero of every minute that is a multiple of the
// interval within each UTC hour, matching the cron expression "0 */N * * * *".
// Intervals of an hour or more fire at minute zero only.
func NextAligned(after time.Time, interval time.Duration) time.Time {
	step := int(interval / time.Minute)
	if step < 1 {
		step = 1
	}

	after = after.UTC()
	hour := after.Truncate(time.Hour)
	for m := 0; m < 60; m += step {
		candidate := hour.Add(time.Duration(m) * time.Minute)
		if candidate.After(after) {
			return candidate
		}
	}
	return hour.Add(time.Hour)
}
