// Package channelengine implements a reliability-and-ordering layer over a
// secure datagram transport (a QUIC connection exposing both an ordered
// stream and unreliable datagrams). It multiplexes a reliable channel
// (sliding-window retransmission, cumulative ACK, bounded give-up) and an
// unreliable channel (sequenced, best-effort, no retransmission) over a
// single underlying connection.
//
// The Engine is symmetric: the same object sends and receives for both
// channels, on each peer.
package channelengine

import "time"

// Channel identifies which logical channel a frame belongs to.
type Channel uint8

const (
	Reliable Channel = iota
	Unreliable
)

func (c Channel) String() string {
	if c == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// Flags bit layout within the 1-byte header flags field.
const (
	flagUnreliable byte = 1 << 0
	flagAck        byte = 1 << 1
)

// EventKind distinguishes the two transport event sources the engine
// consumes: ordered stream reads and individual datagrams.
type EventKind uint8

const (
	EventStreamData EventKind = iota
	EventDatagram
)

// Config holds the tunables of §5; zero values are replaced by defaults in
// NewEngine.
type Config struct {
	WindowSize          int
	RetransmitInterval  time.Duration
	GiveUpThreshold     time.Duration
	RetransmitSweep     time.Duration
	WindowPollInterval  time.Duration
}

// DefaultConfig returns the timeouts specified in spec §5.
func DefaultConfig() Config {
	return Config{
		WindowSize:         5,
		RetransmitInterval: 100 * time.Millisecond,
		GiveUpThreshold:    500 * time.Millisecond,
		RetransmitSweep:    100 * time.Millisecond,
		WindowPollInterval: 50 * time.Millisecond,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.RetransmitInterval <= 0 {
		c.RetransmitInterval = d.RetransmitInterval
	}
	if c.GiveUpThreshold <= 0 {
		c.GiveUpThreshold = d.GiveUpThreshold
	}
	if c.RetransmitSweep <= 0 {
		c.RetransmitSweep = d.RetransmitSweep
	}
	if c.WindowPollInterval <= 0 {
		c.WindowPollInterval = d.WindowPollInterval
	}
}

// ReceiveCallback is invoked for every frame the engine delivers to the
// application: reliable frames in strictly increasing seqno order (with
// skipped gaps never re-delivered), unreliable frames as soon as decoded.
type ReceiveCallback func(seqno uint16, channel Channel, payload []byte, senderTsMs uint32)

// Transport is the external collaborator contract of spec §6: the engine
// never dials, listens, or manages a QUIC handshake itself, it only pushes
// already-framed bytes through these two primitives.
type Transport interface {
	// SendStreamBytes writes framed bytes on the reliable stream (stream 0).
	SendStreamBytes(b []byte) error
	// SendDatagram best-effort sends a single framed datagram.
	SendDatagram(b []byte) error
	// Flush forces any buffered stream writes out after a send.
	Flush() error
}
