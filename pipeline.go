package incppect

import "github.com/ggerganov/incppect/internal/diffcodec"

const (
	// fullHeaderSize is the 4-byte message-type header every outbound
	// frame starts with.
	fullHeaderSize = 4
	// messageDiffMinBytes is the size threshold at or below which neither
	// a per-request nor a whole-message diff is attempted, even if the
	// lengths match. Small payloads aren't worth the run-length
	// overhead.
	messageDiffMinBytes = 256
	// compressionThresholdBytes is the size above which an outbound
	// frame is flagged for compression. nhooyr.io/websocket only
	// negotiates permessage-deflate per connection (via
	// CompressionContextTakeover at Accept time), not per message, so
	// this threshold is currently informational (logged, not acted
	// on) and kept for a transport that does support a per-message
	// hint.
	compressionThresholdBytes = 64
)

// tick iterates every connected client in insertion order and, for
// each one not currently backed up, runs the per-request and
// message-level snapshot passes. A client with a non-zero
// BufferedAmount is skipped entirely this tick; no request state
// advances for it, so the next tick will try again from the same
// state.
func (s *Server) tick() {
	for _, id := range s.clientOrder {
		c := s.clients[id]
		if c.transport.BufferedAmount() > 0 {
			continue
		}
		s.tickClient(c)
	}
}

func (s *Server) tickClient(c *clientState) {
	now := nowMs()

	cur := append(c.cur[:0], 0, 0, 0, 0) // type 0 (full message) header

	for _, reqID := range c.sortedRequestIDs() {
		req := c.requests[reqID]
		if !req.shouldUpdate(now) {
			continue
		}
		if req.tLastRequestTimeoutMs < 0 {
			req.tLastRequestedMs = 0
		}

		getter := s.registry.Getter(req.getterID)
		data, err := getter(req.idxs)
		if err != nil {
			s.logger.Warnw("getter failed, skipping this request for the tick", "RequestID", reqID, "Error", err)
			continue
		}
		req.tLastUpdatedMs = now

		padding := (4 - (len(data) % 4)) % 4
		paddedSize := len(data) + padding

		reqType := int32(0)
		if len(req.prevData) == paddedSize && len(data) > messageDiffMinBytes {
			reqType = 1
		}

		cur = appendInt32(cur, reqID)
		cur = appendInt32(cur, reqType)

		if reqType == 0 {
			cur = appendInt32(cur, int32(paddedSize))
			cur = append(cur, data...)
			for i := 0; i < padding; i++ {
				cur = append(cur, 0)
			}
		} else {
			padded := padTo(data, paddedSize)
			req.diffData = diffcodec.AppendEncode(req.diffData[:0], req.prevData, padded)
			cur = appendInt32(cur, int32(len(req.diffData)))
			cur = append(cur, req.diffData...)
		}

		req.prevData = growAndCopy(req.prevData, data, paddedSize)
	}

	c.cur = cur

	if len(cur) <= fullHeaderSize {
		return
	}

	var payload []byte
	if len(cur) == len(c.prev) && len(cur) > messageDiffMinBytes {
		diff := appendUint32(c.diff[:0], 1)
		diff = diffcodec.AppendEncode(diff, c.prev[fullHeaderSize:], cur[fullHeaderSize:])
		c.diff = diff
		payload = diff
	} else {
		payload = cur
	}

	if len(payload) > s.params.MaxPayloadBytes {
		s.logger.Warnw("outbound payload exceeds MaxPayloadBytes", "ClientID", c.id, "Size", len(payload), "Max", s.params.MaxPayloadBytes)
	}
	if len(payload) > compressionThresholdBytes {
		s.logger.Debugw("payload eligible for compression", "ClientID", c.id, "Size", len(payload))
	}

	if !c.transport.SendBinary(payload) {
		s.logger.Warnw("backpressure: send rejected, continuing to next client", "ClientID", c.id)
	}

	// tx_total measures the logical payload volume (the pre-diff cur
	// size), not the bytes actually put on the wire.
	s.txTotal += int64(len(cur))

	c.prev = growAndCopy(c.prev, cur, len(cur))
}

func padTo(data []byte, size int) []byte {
	if len(data) == size {
		return data
	}
	padded := make([]byte, size)
	copy(padded, data)
	return padded
}

func growAndCopy(dst, data []byte, size int) []byte {
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}
	copy(dst, data)
	for i := len(data); i < size; i++ {
		dst[i] = 0
	}
	return dst
}

func appendInt32(b []byte, v int32) []byte {
	return appendUint32(b, uint32(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
