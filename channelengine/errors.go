package channelengine

import "errors"

// The engine's sentinel errors. Only ErrClosed and ErrNoCallback are
// returned to a caller (spec §7); protocol-internal hiccups (incomplete or
// malformed frames, duplicate seqnos, late ACKs, give-up) are handled in
// place and never returned.
var (
	// ErrClosed is returned by Send when the engine has already been closed.
	ErrClosed = errors.New("channelengine: send after close")

	// ErrNoCallback is returned by ProcessTransportEvent when a reliable or
	// unreliable frame arrives before a receive callback has been set.
	ErrNoCallback = errors.New("channelengine: receive callback not set")

	// ErrMalformedHeader is recorded (never propagated) when a decoded
	// frame's header cannot be trusted; see Framer.decode_one.
	ErrMalformedHeader = errors.New("channelengine: malformed frame header")
)
