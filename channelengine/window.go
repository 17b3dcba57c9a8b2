package channelengine

import (
	"context"
	"time"
)

// inWindow reports whether seqno next is below base+size, using int
// arithmetic so the comparison is exact near the uint16 boundary. It does
// not check the lower bound next >= base.
func inWindow(next, base uint16, size int) bool {
	return int(next) < int(base)+size
}

// Send dispatches payload over the channel selected by reliable. Reliable
// sends suspend until the sliding window has room (spec §4.2): the seqno is
// assigned only after the wait succeeds, so an aborted wait never burns a
// seqno and leaves a gap.
func (e *Engine) Send(ctx context.Context, payload []byte, reliable bool) error {
	if reliable {
		return e.sendReliable(ctx, payload)
	}
	return e.sendUnreliable(payload)
}

func (e *Engine) sendReliable(ctx context.Context, payload []byte) error {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		if inWindow(e.nextSeqno, e.base, e.cfg.WindowSize) {
			seqno := e.nextSeqno
			e.nextSeqno++

			now := e.now()
			tsLow := uint32(now.UnixMilli())
			frame := encodeFrame(0, seqno, tsLow, payload)
			e.inflight[seqno] = &inFlightRecord{
				frame:      frame,
				firstSent:  now,
				lastSent:   now,
				payloadLen: len(payload),
			}
			e.mu.Unlock()

			if err := e.transport.SendStreamBytes(frame); err != nil {
				return err
			}
			return e.transport.Flush()
		}
		signal := e.windowSignal
		e.mu.Unlock()

		select {
		case <-signal:
		case <-time.After(e.cfg.WindowPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) sendUnreliable(payload []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	seqno := e.nextSeqnoUnreliable
	e.nextSeqnoUnreliable++
	now := e.now()
	tsLow := uint32(now.UnixMilli())
	frame := encodeFrame(flagUnreliable, seqno, tsLow, payload)
	e.mu.Unlock()

	if err := e.transport.SendDatagram(frame); err != nil {
		return err
	}
	return e.transport.Flush()
}

// consumeAck applies a cumulative ACK (spec §4.5). Caller holds e.mu.
func (e *Engine) consumeAck(ackSeqno uint16) {
	if ackSeqno < e.base {
		return // late/duplicate ACK, no-op
	}
	limit := int(ackSeqno)
	if int(e.nextSeqno)-1 < limit {
		limit = int(e.nextSeqno) - 1
	}
	now := e.now()
	for s := int(e.base); s <= limit; s++ {
		seqno := uint16(s)
		if rec, ok := e.inflight[seqno]; ok {
			_ = now.Sub(rec.firstSent) // RTT sample point; no sender-side RTT report field is specified
			delete(e.inflight, seqno)
		}
		e.resolved[seqno] = struct{}{}
	}
	if ackSeqno+1 > e.base {
		e.base = ackSeqno + 1
	}
	// base may now sit exactly on a seqno a prior retransmit sweep already
	// gave up on (resolved out of order, before this ACK resolved an
	// earlier one) — advance over it too, or the seat is lost forever.
	e.advanceBaseOverGiveUps()
	e.pruneResolved()
	e.signalWindow()
}

// pruneResolved drops resolved-seqno tracking below base: once base has
// passed a seqno it can never be consulted again. Caller holds e.mu.
func (e *Engine) pruneResolved() {
	for s := range e.resolved {
		if s < e.base {
			delete(e.resolved, s)
		}
	}
}
