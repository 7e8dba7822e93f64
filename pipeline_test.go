package incppect

import (
	"encoding/binary"
	"testing"

	"github.com/ggerganov/incppect/internal/diffcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every frame the pipeline hands it and lets a
// test dial in backpressure or outright rejection.
type fakeTransport struct {
	sent     [][]byte
	buffered int
	reject   bool
}

func (f *fakeTransport) SendBinary(b []byte) bool {
	if f.reject {
		return false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return true
}

func (f *fakeTransport) BufferedAmount() int { return f.buffered }

func (f *fakeTransport) Defer(fn func()) { fn() }

func connectTestClient(s *Server, t *fakeTransport) *clientState {
	s.onConnect(t, [4]byte{127, 0, 0, 1})
	return s.transportToClient[t]
}

// markWanted puts the request into the state a Poll would: recently
// requested, wide activity window, never updated, so the next tick
// must update it.
func markWanted(req *request) {
	req.tLastRequestedMs = nowMs()
	req.tLastRequestTimeoutMs = 1 << 30
	req.tLastUpdatedMs = -(1 << 30)
}

func TestTickCounterScenario(t *testing.T) {
	s := newTestServer()
	value := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	s.Var("counter", func(idxs []int32) ([]byte, error) { return value, nil })

	ft := &fakeTransport{}
	c := connectTestClient(s, ft)

	s.handleSubscribe(c, []byte("counter 7 0"))
	s.handlePoll(c, packPollBody(7))
	c.requests[7].tLastUpdatedMs = -(1 << 30)

	s.tick()

	require.Len(t, ft.sent, 1)
	want := []byte{
		0, 0, 0, 0, // msgType 0: full message
		7, 0, 0, 0, // requestId
		0, 0, 0, 0, // reqType 0: full data
		4, 0, 0, 0, // padded size
		0xDE, 0xAD, 0xBE, 0xEF,
	}
	assert.Equal(t, want, ft.sent[0])
}

func TestTickBlobSecondUpdateIsPerRequestDiff(t *testing.T) {
	s := newTestServer()
	blob := make([]byte, 1024)
	for i := range blob {
		blob[i] = byte(i)
	}
	s.Var("blob", func(idxs []int32) ([]byte, error) { return blob, nil })

	ft := &fakeTransport{}
	c := connectTestClient(s, ft)

	s.handleSubscribe(c, []byte("blob 3 0"))
	s.handlePoll(c, packPollBody(3))
	markWanted(c.requests[3])

	s.tick()
	require.Len(t, ft.sent, 1)
	first := ft.sent[0]
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(first[8:12]), "first update is a full send")
	assert.Equal(t, blob, first[16:16+1024])

	// flip two consecutive words by the same delta, then force a
	// second update
	prevBlob := make([]byte, len(blob))
	copy(prevBlob, blob)
	for i := 100; i < 108; i++ {
		blob[i] ^= 0x55
	}
	markWanted(c.requests[3])

	s.tick()
	require.Len(t, ft.sent, 2)
	second := ft.sent[1]

	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(second[0:4]), "frame itself is full: its length changed vs the first")
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(second[4:8]))
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(second[8:12]), "second update is a per-request diff")

	diffSize := binary.LittleEndian.Uint32(second[12:16])
	diff := second[16 : 16+diffSize]

	// run structure: unchanged run, one run of exactly two changed
	// words, trailing unchanged run
	require.Equal(t, uint32(24), diffSize)
	assert.Equal(t, uint32(25), binary.LittleEndian.Uint32(diff[0:4]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(diff[4:8]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(diff[8:12]))
	assert.Equal(t, uint32(0x55555555), binary.LittleEndian.Uint32(diff[12:16]))

	assert.Equal(t, blob, diffcodec.Decode(prevBlob, diff))
}

func TestTickNoRequestsSendsNothing(t *testing.T) {
	s := newTestServer()
	ft := &fakeTransport{}
	c := connectTestClient(s, ft)

	s.handleSubscribe(c, []byte("nosuch 9 0"))
	s.handlePoll(c, packPollBody(9))

	s.tick()

	assert.Empty(t, ft.sent)
	assert.Zero(t, s.txTotal)
	assert.Empty(t, c.prev)
}

func TestTickBackpressureGateSkipsClient(t *testing.T) {
	s := newTestServer()
	s.Var("v", func(idxs []int32) ([]byte, error) { return []byte{1, 2, 3, 4}, nil })

	ft := &fakeTransport{buffered: 128}
	c := connectTestClient(s, ft)
	s.handleSubscribe(c, []byte("v 1 0"))
	s.handlePoll(c, packPollBody(1))
	markWanted(c.requests[1])

	s.tick()

	assert.Empty(t, ft.sent)
	assert.Empty(t, c.requests[1].prevData, "no request state advances for a backed-up client")
	assert.Equal(t, int64(-(1<<30)), c.requests[1].tLastUpdatedMs)

	// the same tick still serves other clients
	ft2 := &fakeTransport{}
	c2 := connectTestClient(s, ft2)
	s.handleSubscribe(c2, []byte("v 1 0"))
	s.handlePoll(c2, packPollBody(1))
	markWanted(c2.requests[1])

	s.tick()
	assert.Empty(t, ft.sent)
	assert.Len(t, ft2.sent, 1)
}

func TestTickActivityGating(t *testing.T) {
	s := newTestServer()
	calls := 0
	s.Var("v", func(idxs []int32) ([]byte, error) {
		calls++
		return []byte{1, 2, 3, 4}, nil
	})

	ft := &fakeTransport{}
	c := connectTestClient(s, ft)
	s.handleSubscribe(c, []byte("v 1 0"))

	// never polled: not wanted, not updated
	s.tick()
	assert.Zero(t, calls)

	// polled, inside the activity window
	s.handlePoll(c, packPollBody(1))
	markWanted(c.requests[1])
	s.tick()
	assert.Equal(t, 1, calls)

	// activity window elapsed: request stays installed but stops
	// updating
	req := c.requests[1]
	req.tLastRequestedMs = nowMs() - 100
	req.tLastRequestTimeoutMs = 50
	req.tLastUpdatedMs = -(1 << 30)
	s.tick()
	assert.Equal(t, 1, calls)
	_, stillThere := c.requests[1]
	assert.True(t, stillThere)
}

func TestTickNegativeTimeoutIsOneShot(t *testing.T) {
	s := newTestServer()
	calls := 0
	s.Var("v", func(idxs []int32) ([]byte, error) {
		calls++
		return []byte{1, 2, 3, 4}, nil
	})

	ft := &fakeTransport{}
	c := connectTestClient(s, ft)
	s.handleSubscribe(c, []byte("v 1 0"))

	req := c.requests[1]
	req.tLastRequestTimeoutMs = -1
	req.tLastRequestedMs = nowMs()
	req.tLastUpdatedMs = -(1 << 30)

	s.tick()
	assert.Equal(t, 1, calls)
	assert.Zero(t, req.tLastRequestedMs, "one-shot: quiet until re-requested")

	req.tLastUpdatedMs = -(1 << 30)
	s.tick()
	assert.Equal(t, 1, calls, "no second update without a new poll")
}

func TestTickMessageLevelDiff(t *testing.T) {
	s := newTestServer()
	// 248 data bytes: small enough to dodge the per-request diff, big
	// enough that the whole message (264 bytes) crosses the
	// message-diff threshold
	data := make([]byte, 248)
	s.Var("v", func(idxs []int32) ([]byte, error) { return data, nil })

	ft := &fakeTransport{}
	c := connectTestClient(s, ft)
	s.handleSubscribe(c, []byte("v 1 0"))
	s.handlePoll(c, packPollBody(1))
	markWanted(c.requests[1])

	s.tick()
	require.Len(t, ft.sent, 1)
	first := ft.sent[0]
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(first[0:4]))
	require.Len(t, first, 264)

	data[0] = 0xFF
	markWanted(c.requests[1])

	s.tick()
	require.Len(t, ft.sent, 2)
	second := ft.sent[1]
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(second[0:4]), "equal-length follow-up goes out as a message diff")

	reconstructed := diffcodec.Decode(first[4:], second[4:])
	assert.Equal(t, c.cur[4:], reconstructed)

	// tx_total counts the logical payload, not the diff actually sent
	assert.Equal(t, int64(2*264), s.txTotal)
}

func TestTickSendRejectedStillAdvancesState(t *testing.T) {
	s := newTestServer()
	s.Var("v", func(idxs []int32) ([]byte, error) { return []byte{1, 2, 3, 4}, nil })

	ft := &fakeTransport{reject: true}
	c := connectTestClient(s, ft)
	s.handleSubscribe(c, []byte("v 1 0"))
	s.handlePoll(c, packPollBody(1))
	markWanted(c.requests[1])

	s.tick()

	// no rollback on rejection: the backpressure gate handles the next
	// tick instead
	assert.Empty(t, ft.sent)
	assert.Len(t, c.requests[1].prevData, 4)
	assert.Equal(t, int64(20), s.txTotal)
}

func TestTelemetryNClientsTracksDisconnect(t *testing.T) {
	s := newTestServer()

	ft1 := &fakeTransport{}
	ft2 := &fakeTransport{}
	connectTestClient(s, ft1)
	connectTestClient(s, ft2)

	id, ok := s.registry.Lookup("incppect.nclients")
	require.True(t, ok)

	b, err := s.registry.Getter(id)(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), int64(binary.LittleEndian.Uint64(b)))

	s.onClose(ft1)

	b, err = s.registry.Getter(id)(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), int64(binary.LittleEndian.Uint64(b)))
}

func TestTelemetryIPAddress(t *testing.T) {
	s := newTestServer()

	ft := &fakeTransport{}
	s.onConnect(ft, [4]byte{192, 168, 1, 7})

	id, ok := s.registry.Lookup("incppect.ip_address[%d]")
	require.True(t, ok)

	b, err := s.registry.Getter(id)([]int32{0})
	require.NoError(t, err)
	assert.Equal(t, []byte{192, 168, 1, 7}, b)

	_, err = s.registry.Getter(id)([]int32{5})
	assert.Error(t, err)
}

func TestOnMessageCustomSchedulesNoTick(t *testing.T) {
	s := newTestServer()
	var got []byte
	s.handler = func(clientID int32, event EventType, data []byte) {
		if event == EventCustom {
			got = data
		}
	}

	ft := &fakeTransport{}
	connectTestClient(s, ft)

	msg := append([]byte{4, 0, 0, 0}, []byte("ping")...)
	s.onMessage(ft, msg)

	assert.Equal(t, "ping", string(got))
	assert.Zero(t, len(s.loopCh), "type 4 must not schedule a tick")

	s.onMessage(ft, []byte{3, 0, 0, 0})
	assert.Equal(t, 1, len(s.loopCh), "type 3 does schedule one")
}
