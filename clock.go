package incppect

import "time"

// processStart anchors nowMs to a monotonic clock rather than wall
// time, so the freshness predicate in the snapshot pipeline stays
// correct across wall-clock adjustments (NTP step, DST, etc).
var processStart = time.Now()

// nowMs counts from 1, not 0, so a real timestamp never equals the
// request timing markers -1 ("never") and 0 ("pushed once, quiet until
// re-requested").
func nowMs() int64 {
	return time.Since(processStart).Milliseconds() + 1
}
