package channelengine

import (
	"time"

	"go.uber.org/zap"
)

// ProcessTransportEvent is the integrator hook of spec §6: the collaborator
// hands it raw bytes read from the transport, tagged with their source.
// Stream bytes may contain zero, one, or several coalesced frames plus a
// trailing incomplete one; datagrams carry exactly one frame.
func (e *Engine) ProcessTransportEvent(kind EventKind, data []byte) error {
	e.mu.Lock()

	now := e.now()
	var frames []Frame
	var newStreamBuf []byte

	switch kind {
	case EventStreamData:
		joined := append(append([]byte(nil), e.streamBuf...), data...)
		frames, newStreamBuf = decodeStream(joined)
	case EventDatagram:
		f, err := decodeOne(data)
		if err != nil {
			e.log.Warn("dropping malformed datagram", zap.Error(err))
			e.mu.Unlock()
			return nil
		}
		frames = []Frame{f}
	}

	// Fail fast on misuse without mutating any state: a data frame arrived
	// but no one has registered where to deliver it (spec §7).
	if e.callback == nil {
		for _, f := range frames {
			if !f.IsAck() {
				e.mu.Unlock()
				return ErrNoCallback
			}
		}
	}

	if kind == EventStreamData {
		e.streamBuf = newStreamBuf
	}

	for _, f := range frames {
		e.dispatchFrame(f, now)
	}

	pending := e.pendingAcks
	e.pendingAcks = nil
	e.mu.Unlock()

	for _, ack := range pending {
		if err := e.transport.SendStreamBytes(ack); err != nil {
			return err
		}
		if err := e.transport.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// dispatchFrame classifies one decoded frame and routes it to the ACK
// consumer, the reliable reorder buffer, or the unreliable fast path.
// Caller holds e.mu.
func (e *Engine) dispatchFrame(f Frame, now time.Time) {
	if f.IsAck() {
		e.consumeAck(f.Seqno)
		return
	}
	switch f.Channel() {
	case Reliable:
		e.handleReliableFrame(f, now)
	case Unreliable:
		e.handleUnreliableFrame(f, now)
	}
}

// handleUnreliableFrame implements spec §4.6: decode, record metrics, call
// back immediately. No buffering, no ACK. Caller holds e.mu.
func (e *Engine) handleUnreliableFrame(f Frame, now time.Time) {
	senderTime := reconstructSenderTime(now, f.TimestampMs)
	e.metrics.forChannel(Unreliable).recordReceive(f.Seqno, len(f.Payload), senderTime, now)
	if e.callback != nil {
		e.callback(f.Seqno, Unreliable, f.Payload, f.TimestampMs)
	}
}
