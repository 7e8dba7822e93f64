package incppect

// EventType identifies which lifecycle event a Handler is being told
// about.
type EventType uint8

const (
	EventConnect EventType = iota
	EventDisconnect
	EventCustom
)

func (e EventType) String() string {
	switch e {
	case EventConnect:
		return "Connect"
	case EventDisconnect:
		return "Disconnect"
	case EventCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// Handler receives Connect/Disconnect/Custom events. It is called
// synchronously on the server's event-loop goroutine, so it must not
// block or call back into the Server in a way that would deadlock on
// that same goroutine (e.g. Server.Var is safe; anything that waits on
// a future tick is not).
//
// For EventConnect, data is the client's 4-byte IPv4 address tail. For
// EventDisconnect, data is empty. For EventCustom, data is the opaque
// body of the type-4 message.
type Handler func(clientID int32, event EventType, data []byte)
