package incppect

// defaultMinUpdateMs is the minimum interval between two successful
// updates of a request, absent any host override.
const defaultMinUpdateMs int64 = 16

// request is a client's active subscription binding a getter and its
// indices to a timing policy. It is owned by exactly one clientState
// and keyed by a client-chosen 32-bit request id within that client's
// requests map.
type request struct {
	getterID int32
	idxs     []int32

	tLastUpdatedMs        int64 // -1 means never
	tLastRequestedMs      int64 // -1 means never
	tMinUpdateMs          int64
	tLastRequestTimeoutMs int64

	// prevData holds the bytes sent on the previous update, padded to a
	// 4-byte boundary. Its length is the padded size of the last update,
	// or 0 if there has never been one.
	prevData []byte
	// diffData is scratch space reused across ticks for the per-request
	// XOR/run-length diff, to avoid allocating on every tick.
	diffData []byte
}

func newRequest(getterID int32, idxs []int32, timeoutMs int64) *request {
	return &request{
		getterID:              getterID,
		idxs:                  idxs,
		tLastUpdatedMs:        -1,
		tLastRequestedMs:      -1,
		tMinUpdateMs:          defaultMinUpdateMs,
		tLastRequestTimeoutMs: timeoutMs,
	}
}

// shouldUpdate implements the freshness predicate from the snapshot
// pipeline:
//
//	update_now <=> ((timeout < 0 && lastRequested > 0) ||
//	                (now - lastRequested < timeout)) &&
//	               (now - lastUpdated > minUpdate)
//
// A request that has never been polled (lastRequested == -1) is never
// active. The window comparison alone would not guarantee that here:
// now counts milliseconds from process start, not from the epoch, so
// early in the process's life now-(-1) can be smaller than the
// timeout.
func (r *request) shouldUpdate(now int64) bool {
	active := (r.tLastRequestTimeoutMs < 0 && r.tLastRequestedMs > 0) ||
		(r.tLastRequestedMs >= 0 && now-r.tLastRequestedMs < r.tLastRequestTimeoutMs)
	if !active {
		return false
	}
	return now-r.tLastUpdatedMs > r.tMinUpdateMs
}

// refresh marks the request as polled/active as of now, using timeout
// as the new activity window. This is the shared logic behind both the
// Poll (type 2) and Refresh (type 3) messages.
func (r *request) refresh(now int64, timeout int64) {
	r.tLastRequestedMs = now
	r.tLastRequestTimeoutMs = timeout
}
