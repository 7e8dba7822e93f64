// Command incppect-verify is a minimal WebSocket client that dials a
// running incppect server, subscribes to one path, polls once, and
// prints the received payload. It is a manual integration-test
// companion to the package's go test suite and is not itself run by
// go test.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"time"

	"nhooyr.io/websocket"
)

func main() {
	addr := flag.String("addr", "ws://127.0.0.1:3000/incppect", "WebSocket URL of the incppect server")
	path := flag.String("path", "counter", "registered path to subscribe to")
	requestID := flag.Int("request-id", 1, "client-chosen request id")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		log.Fatalf("dial: %s", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	subscribe := fmt.Sprintf("%s %d 0", *path, *requestID)
	body := make([]byte, 4+len(subscribe))
	binary.LittleEndian.PutUint32(body[0:4], 1)
	copy(body[4:], subscribe)
	if err := conn.Write(ctx, websocket.MessageBinary, body); err != nil {
		log.Fatalf("subscribe write: %s", err)
	}

	poll := make([]byte, 8)
	binary.LittleEndian.PutUint32(poll[0:4], 2)
	binary.LittleEndian.PutUint32(poll[4:8], uint32(*requestID))
	if err := conn.Write(ctx, websocket.MessageBinary, poll); err != nil {
		log.Fatalf("poll write: %s", err)
	}

	_, msg, err := conn.Read(ctx)
	if err != nil {
		log.Fatalf("read: %s", err)
	}

	fmt.Printf("received %d bytes: %x\n", len(msg), msg)
}
