package incppect

// Parameters configures a Server. The zero value is not usable directly;
// construct one with DefaultParameters and override individual fields.
type Parameters struct {
	// PortListen is the TCP port the HTTP/WebSocket listener binds to.
	PortListen int

	// MaxPayloadBytes is a soft limit: an outbound frame larger than this
	// is still sent, but logged as a warning.
	MaxPayloadBytes int

	// TLastRequestTimeoutMs is the default activity window installed on a
	// request by a Poll (type 2) or Refresh (type 3) message.
	TLastRequestTimeoutMs int64

	// TIdleTimeoutS is the WebSocket idle timeout advertised to the
	// transport; the core does not enforce it itself.
	TIdleTimeoutS int

	// HTTPRoot is the filesystem directory Resources are served from.
	HTTPRoot string

	// Resources lists URL paths (relative to "/") that should be served
	// as static files from HTTPRoot, or from an in-memory override
	// registered with Server.SetResource.
	Resources []string

	// SSLKey and SSLCert are PEM file paths. When both are non-empty the
	// listener is wrapped in TLS. SSL is a construction-time choice, not
	// renegotiated later.
	SSLKey  string
	SSLCert string

	// PrintDebug requests verbose per-message tracing of subscribes,
	// polls, and ticks. That tracing is logged at debug level through the
	// logger installed with WithLogger; PrintDebug does not lower that
	// logger's level, so the tracing appears only when the logger already
	// has debug level enabled.
	PrintDebug bool
}

// DefaultParameters returns the default configuration.
func DefaultParameters() Parameters {
	return Parameters{
		PortListen:            3000,
		MaxPayloadBytes:       262144,
		TLastRequestTimeoutMs: 3000,
		TIdleTimeoutS:         120,
		HTTPRoot:              ".",
		Resources:             nil,
	}
}
