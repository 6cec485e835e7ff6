package schedule

import "time"

// Ticks follow the local wall clock. A wall time repeated by a backward
// offset change fires once, at its first occurrence. A wall time skipped by
// a forward change fires at the first instant after the gap.

// repeatedWall reports whether t's wall-clock reading already occurred
// under the offset in force before t's zone began.
func repeatedWall(t time.Time) bool {
	start, _ := t.ZoneBounds()
	if start.IsZero() {
		return false
	}
	_, before := start.Add(-time.Nanosecond).Zone()
	_, after := t.Zone()
	return before > after && t.Sub(start) < time.Duration(before-after)*time.Second
}

// skippedWall returns the forward offset changes in (lo, hi] whose gap
// holds a wall-clock time the schedule matches.
func (d *Definition) skippedWall(lo, hi time.Time) []time.Time {
	var out []time.Time
	for cur := lo; ; {
		_, end := cur.ZoneBounds()
		if end.IsZero() || end.After(hi) {
			return out
		}
		_, before := cur.Zone()
		_, after := end.Zone()
		if after > before {
			gap := time.Duration(after-before) * time.Second
			m := d.schedule.Next(end.Add(-time.Nanosecond).In(time.FixedZone("", before)))
			if !m.IsZero() && m.Before(end.Add(gap)) {
				out = append(out, end)
			}
		}
		cur = end
	}
}
