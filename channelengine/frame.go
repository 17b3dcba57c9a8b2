package channelengine

import "encoding/binary"

// HeaderSize is the fixed 9-byte header of spec §3: flags(1) seqno(2)
// timestamp(4) payload_len(2).
const HeaderSize = 9

// MaxPayloadLen is the largest payload the 2-byte payload_len field can
// carry (spec invariant 5).
const MaxPayloadLen = 0xFFFF

// Frame is a decoded wire frame. Payload is opaque — callers must not
// assume UTF-8 (spec §9).
type Frame struct {
	Flags       byte
	Seqno       uint16
	TimestampMs uint32
	Payload     []byte
}

// Channel reports which logical channel this frame belongs to.
func (f Frame) Channel() Channel {
	if f.Flags&flagUnreliable != 0 {
		return Unreliable
	}
	return Reliable
}

// IsAck reports whether the ACK bit is set. ACK frames carry no payload;
// their Seqno field is reused to carry the cumulative ack_seqno.
func (f Frame) IsAck() bool {
	return f.Flags&flagAck != 0
}

// encodeFrame produces a single on-wire frame: 9-byte header followed by
// payload. tsLow32 is the low 32 bits of the sender's wall-clock
// milliseconds-since-epoch.
func encodeFrame(flags byte, seqno uint16, tsLow32 uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = flags
	binary.BigEndian.PutUint16(buf[1:3], seqno)
	binary.BigEndian.PutUint32(buf[3:7], tsLow32)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// decodeHeader reads the fixed fields out of a buffer known to hold at
// least HeaderSize bytes.
func decodeHeader(buf []byte) (flags byte, seqno uint16, ts uint32, payloadLen uint16) {
	flags = buf[0]
	seqno = binary.BigEndian.Uint16(buf[1:3])
	ts = binary.BigEndian.Uint32(buf[3:7])
	payloadLen = binary.BigEndian.Uint16(buf[7:9])
	return
}

// decodeStream scans buf from offset 0, peeling off complete frames. It
// stops at the first incomplete frame (fewer than HeaderSize bytes left, or
// the header is present but the payload hasn't fully arrived yet) and
// returns the unconsumed suffix as remainder — this is not an error, the
// remainder is simply re-joined with the next transport read.
func decodeStream(buf []byte) (frames []Frame, remainder []byte) {
	off := 0
	for {
		if len(buf)-off < HeaderSize {
			break
		}
		flags, seqno, ts, payloadLen := decodeHeader(buf[off:])
		total := HeaderSize + int(payloadLen)
		if len(buf)-off < total {
			break
		}
		payload := make([]byte, payloadLen)
		copy(payload, buf[off+HeaderSize:off+total])
		frames = append(frames, Frame{Flags: flags, Seqno: seqno, TimestampMs: ts, Payload: payload})
		off += total
	}
	return frames, buf[off:]
}

// decodeOne decodes a single frame from a buffer that is known to carry
// exactly one frame (a datagram read, which preserves message boundaries).
func decodeOne(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrMalformedHeader
	}
	flags, seqno, ts, payloadLen := decodeHeader(buf)
	if len(buf) < HeaderSize+int(payloadLen) {
		return Frame{}, ErrMalformedHeader
	}
	payload := make([]byte, payloadLen)
	copy(payload, buf[HeaderSize:HeaderSize+int(payloadLen)])
	return Frame{Flags: flags, Seqno: seqno, TimestampMs: ts, Payload: payload}, nil
}
