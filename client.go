package incppect

import "sort"

// clientState holds everything the server tracks for one connection.
// It is created on connect and destroyed on disconnect; all mutation
// happens on the server's single event-loop goroutine.
type clientState struct {
	id int32

	tConnectedMs int64
	ipAddress    [4]byte

	requests     map[int32]*request
	lastRequests map[int32]bool

	// cur, prev, diff are the per-tick whole-message scratch buffers,
	// reused across ticks to amortize allocation.
	cur  []byte
	prev []byte
	diff []byte

	transport Transport
}

func newClientState(id int32, ip [4]byte, now int64, t Transport) *clientState {
	return &clientState{
		id:           id,
		tConnectedMs: now,
		ipAddress:    ip,
		requests:     map[int32]*request{},
		lastRequests: map[int32]bool{},
		transport:    t,
	}
}

// sortedRequestIDs returns the client's current request ids in
// ascending order, the tick-order invariant the snapshot pipeline
// depends on (Go maps do not themselves provide a stable iteration
// order).
func (c *clientState) sortedRequestIDs() []int32 {
	ids := make([]int32, 0, len(c.requests))
	for id := range c.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
