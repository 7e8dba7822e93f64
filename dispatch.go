package incppect

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// onConnect allocates a clientState for a newly accepted transport and
// emits a Connect event. It is always run on the event-loop goroutine.
func (s *Server) onConnect(t Transport, ip [4]byte) {
	s.nextClientID++
	id := s.nextClientID

	c := newClientState(id, ip, nowMs(), t)
	s.clients[id] = c
	s.clientOrder = append(s.clientOrder, id)
	s.transportToClient[t] = c

	s.logger.Debugw("client connected", "ClientID", id)
	if s.handler != nil {
		s.handler(id, EventConnect, ip[:])
	}
}

// onClose tears down the clientState for a transport that has gone
// away and emits a Disconnect event.
func (s *Server) onClose(t Transport) {
	c, ok := s.transportToClient[t]
	if !ok {
		return
	}
	delete(s.transportToClient, t)
	delete(s.clients, c.id)
	for i, id := range s.clientOrder {
		if id == c.id {
			s.clientOrder = append(s.clientOrder[:i], s.clientOrder[i+1:]...)
			break
		}
	}

	s.logger.Debugw("client disconnected", "ClientID", c.id)
	if s.handler != nil {
		s.handler(c.id, EventDisconnect, nil)
	}
}

// onMessage decodes the 4-byte message type and routes to the
// appropriate handler. It always increments rxTotal, even for messages
// it goes on to drop, since rxTotal measures raw bytes received.
func (s *Server) onMessage(t Transport, msg []byte) {
	s.rxTotal += int64(len(msg))

	if len(msg) < 4 {
		return
	}

	c, ok := s.transportToClient[t]
	if !ok {
		return
	}

	msgType := binary.LittleEndian.Uint32(msg[0:4])
	body := msg[4:]

	scheduleTick := true
	switch msgType {
	case 1:
		s.handleSubscribe(c, body)
	case 2:
		s.handlePoll(c, body)
	case 3:
		s.handleRefresh(c)
	case 4:
		scheduleTick = false
		s.handleCustom(c, body)
	default:
		s.logger.Debugf("unknown message type %d from client %d", msgType, c.id)
	}

	if scheduleTick {
		s.enqueue(s.tick)
	}
}

// handleSubscribe parses a type-1 body: repeated whitespace-separated
// groups of "path requestID nIdxs i0 ... i_{n-1}". Parsing stops at the
// first incomplete group; any complete groups already seen take
// effect. Unknown paths are silently skipped.
func (s *Server) handleSubscribe(c *clientState, body []byte) {
	fields := strings.Fields(string(body))
	i := 0
	for i < len(fields) {
		path := fields[i]
		i++

		requestID, i2, ok := readInt32(fields, i)
		if !ok {
			return
		}
		i = i2

		nIdxs, i3, ok := readInt32(fields, i)
		if !ok {
			return
		}
		i = i3

		idxs := make([]int32, 0, nIdxs)
		complete := true
		for k := int32(0); k < nIdxs; k++ {
			idx, iNext, ok := readInt32(fields, i)
			if !ok {
				complete = false
				break
			}
			i = iNext
			if idx == -1 {
				idx = c.id
			}
			idxs = append(idxs, idx)
		}
		if !complete {
			return
		}

		getterID, found := s.registry.Lookup(path)
		if !found {
			s.logger.Debugf("incppect: missing path %q", path)
			continue
		}

		s.logger.Debugw("subscribe", "RequestID", requestID, "Path", path, "NIdxs", nIdxs)
		c.requests[requestID] = newRequest(getterID, idxs, s.params.TLastRequestTimeoutMs)
	}
}

func readInt32(fields []string, i int) (int32, int, bool) {
	if i >= len(fields) {
		return 0, i, false
	}
	v, err := strconv.ParseInt(fields[i], 10, 32)
	if err != nil {
		return 0, i, false
	}
	return int32(v), i + 1, true
}

// handlePoll parses a type-2 body: a packed array of int32 request
// ids. The body length must be a multiple of 4 bytes; any other length
// is rejected wholesale with no mutation to lastRequests.
func (s *Server) handlePoll(c *clientState, body []byte) {
	if len(body)%4 != 0 {
		s.logger.Debugf("incppect: malformed poll body, length %d", len(body))
		return
	}

	now := nowMs()
	n := len(body) / 4
	lastRequests := make(map[int32]bool, n)
	for i := 0; i < n; i++ {
		id := int32(binary.LittleEndian.Uint32(body[i*4 : i*4+4]))
		req, ok := c.requests[id]
		if !ok {
			continue
		}
		lastRequests[id] = true
		req.refresh(now, s.params.TLastRequestTimeoutMs)
	}
	c.lastRequests = lastRequests
}

// handleRefresh re-stamps every request currently in lastRequests, the
// type-3 "I'm still here" message with no body.
func (s *Server) handleRefresh(c *clientState) {
	now := nowMs()
	for id := range c.lastRequests {
		if req, ok := c.requests[id]; ok {
			req.refresh(now, s.params.TLastRequestTimeoutMs)
		}
	}
}

// handleCustom delivers a type-4 body to the host handler verbatim.
func (s *Server) handleCustom(c *clientState, body []byte) {
	if s.handler != nil {
		s.handler(c.id, EventCustom, body)
	}
}
