package incppect

import (
	"encoding/binary"
	"fmt"
)

// registerTelemetry installs the four always-available getters.
// tx_total and rx_total are int64 counters; a client script must
// decode their views as 8-byte little-endian int64, not IEEE754
// double.
func registerTelemetry(s *Server) {
	s.registry.Var("incppect.nclients", func(idxs []int32) ([]byte, error) {
		return int64View(int64(len(s.clientOrder))), nil
	})
	s.registry.Var("incppect.tx_total", func(idxs []int32) ([]byte, error) {
		return int64View(s.txTotal), nil
	})
	s.registry.Var("incppect.rx_total", func(idxs []int32) ([]byte, error) {
		return int64View(s.rxTotal), nil
	})
	s.registry.Var("incppect.ip_address[%d]", func(idxs []int32) ([]byte, error) {
		if len(idxs) != 1 {
			return nil, fmt.Errorf("incppect.ip_address[%%d]: expected 1 index, got %d", len(idxs))
		}
		n := int(idxs[0])
		if n < 0 || n >= len(s.clientOrder) {
			return nil, fmt.Errorf("incppect.ip_address[%%d]: index %d out of range [0, %d)", n, len(s.clientOrder))
		}
		c := s.clients[s.clientOrder[n]]
		ip := c.ipAddress
		return ip[:], nil
	})
}

func int64View(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}
