package bitrix

import "time"

// AddWorkdays steps forward one day at a time, counting only Monday to Friday,
// until n workdays have passed. The clock time and location of start are kept.
func AddWorkdays(start time.Time, n int) time.Time {
	d := start
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			added++
		}
	}
	return d
}
