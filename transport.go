package incppect

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Transport is the boundary the core requires from whatever carries
// bytes to and from a client. The included WebSocket adapter
// (wsTransport) is the only implementation shipped here, but the core
// never imports nhooyr.io/websocket outside of this file and server.go,
// so a different carrier could be swapped in.
//
// A Transport is identified by its own pointer identity (it is used as
// a map key internally) rather than by an explicit ID method; the
// per-connection identifier the core needs is satisfied by Go
// interface value comparison on the concrete *wsTransport pointer.
type Transport interface {
	// SendBinary enqueues b for sending and reports whether it was
	// accepted. A false return means the transport is backed up and the
	// bytes were dropped; the caller does not retry.
	SendBinary(b []byte) bool

	// BufferedAmount reports the number of bytes currently queued but
	// not yet written to the underlying connection.
	BufferedAmount() int

	// Defer schedules f to run on the server's single event-loop
	// goroutine, the same goroutine that runs every tick and dispatches
	// every inbound message.
	Defer(f func())
}

// writeQueueCapacity bounds how many outbound frames may be queued per
// connection before SendBinary starts reporting rejection. A tick only
// ever enqueues one frame per client, so this mostly guards against a
// client that never drains its read-side backpressure.
const writeQueueCapacity = 64

// wsTransport adapts one WebSocket connection to the Transport
// interface: a dedicated reader goroutine and a dedicated writer
// goroutine, both decoupled from the shared event loop.
type wsTransport struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	enqueue func(func())

	writeCh       chan []byte
	bufferedBytes atomic.Int64

	// idleTimeout bounds how long a read may sit with no inbound
	// traffic before the connection is torn down; zero disables it.
	idleTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSTransport(ctx context.Context, conn *websocket.Conn, log *zap.SugaredLogger, enqueue func(func()), idleTimeout time.Duration) *wsTransport {
	ctx, cancel := context.WithCancel(ctx)
	t := &wsTransport{
		conn:        conn,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
		enqueue:     enqueue,
		writeCh:     make(chan []byte, writeQueueCapacity),
		idleTimeout: idleTimeout,
		closed:      make(chan struct{}),
	}
	return t
}

func (t *wsTransport) SendBinary(b []byte) bool {
	select {
	case <-t.closed:
		return false
	default:
	}
	select {
	case t.writeCh <- b:
		t.bufferedBytes.Add(int64(len(b)))
		return true
	default:
		return false
	}
}

func (t *wsTransport) BufferedAmount() int {
	return int(t.bufferedBytes.Load())
}

func (t *wsTransport) Defer(f func()) {
	t.enqueue(f)
}

// runWriter drains writeCh and performs the actual WebSocket writes. It
// runs on its own goroutine so a slow client never blocks the shared
// event loop.
func (t *wsTransport) runWriter() {
	for {
		select {
		case b := <-t.writeCh:
			err := t.conn.Write(t.ctx, websocket.MessageBinary, b)
			t.bufferedBytes.Add(-int64(len(b)))
			if err != nil {
				t.log.Debugf("write error: %s", err)
				return
			}
		case <-t.closed:
			return
		}
	}
}

// runReader drains inbound binary frames and defers their handling
// onto the shared event loop via onMessage, until the connection is
// closed, at which point it defers onClose.
func (t *wsTransport) runReader(onMessage func(Transport, []byte), onClose func(Transport)) {
	defer t.close()
	for {
		readCtx := t.ctx
		var cancel context.CancelFunc
		if t.idleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(t.ctx, t.idleTimeout)
		}
		msgType, b, err := t.conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			t.log.Debugf("read error: %s", err)
			t.enqueue(func() { onClose(t) })
			return
		}
		if msgType != websocket.MessageBinary {
			continue
		}
		msg := b
		t.enqueue(func() { onMessage(t, msg) })
	}
}

// close tears the connection down. writeCh is deliberately left open:
// SendBinary may still race a dying connection from the event loop,
// and a send would panic on a closed channel. The closed signal is
// what stops the writer.
func (t *wsTransport) close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.cancel()
	})
}
