package channelengine

import (
	"strconv"
	"time"
)

// handleReliableFrame implements spec §4.4: buffer out-of-order arrivals,
// skip seats that stay empty past the give-up threshold, flush whatever is
// now contiguous, and emit a cumulative ACK. Caller holds e.mu.
func (e *Engine) handleReliableFrame(f Frame, now time.Time) {
	e.arrivalTimes[f.Seqno] = now

	if f.Seqno >= e.nextExpected {
		if _, dup := e.reorderBuf[f.Seqno]; !dup {
			e.reorderBuf[f.Seqno] = f
		}
	}
	// f.Seqno < nextExpected: already delivered, duplicate — dropped silently.

	e.skipMissing(now)

	for {
		pending, ok := e.reorderBuf[e.nextExpected]
		if !ok {
			break
		}
		delete(e.reorderBuf, e.nextExpected)
		delete(e.arrivalTimes, e.nextExpected)

		senderTime := reconstructSenderTime(now, pending.TimestampMs)
		e.metrics.forChannel(Reliable).recordReceive(pending.Seqno, len(pending.Payload), senderTime, now)

		if e.callback != nil {
			e.callback(pending.Seqno, Reliable, pending.Payload, pending.TimestampMs)
		}
		e.nextExpected++
	}

	e.emitAck()
}

// skipMissing scans [nextExpected, maxArrived] (a snapshot of nextExpected
// taken at call start, matching the source's range-computed-once
// semantics) for seats that have been missing longer than the give-up
// threshold, and advances nextExpected past a seat exactly when it is the
// current cursor position. Caller holds e.mu.
func (e *Engine) skipMissing(now time.Time) {
	if len(e.reorderBuf) == 0 {
		return
	}
	var maxArrived uint16
	for s := range e.reorderBuf {
		if s > maxArrived {
			maxArrived = s
		}
	}

	start := e.nextExpected
	for s := start; s <= maxArrived; s++ {
		key := strconv.Itoa(int(s))
		if _, arrived := e.reorderBuf[s]; arrived {
			e.missingFirstSeen.Delete(key)
			continue
		}
		cached, known := e.missingFirstSeen.Get(key)
		if !known {
			e.missingFirstSeen.Set(key, now, 2*e.cfg.GiveUpThreshold)
			continue
		}
		firstSeen := cached.(time.Time)
		if now.Sub(firstSeen) > e.cfg.GiveUpThreshold {
			e.missingFirstSeen.Delete(key)
			if s == e.nextExpected {
				e.nextExpected++
			}
		}
	}
}

// emitAck sends a cumulative ACK carrying nextExpected-1, per spec §4.4
// step 5 (emitted on every reliable reception, including out-of-order
// ones — a duplicate ACK on out-of-order arrival is intentional). Caller
// holds e.mu.
func (e *Engine) emitAck() {
	if e.nextExpected <= 1 {
		return // nothing positive to acknowledge yet
	}
	ackSeqno := e.nextExpected - 1
	frame := encodeFrame(flagAck, ackSeqno, uint32(e.now().UnixMilli()), nil)

	// Queued rather than sent here: state mutation stays under e.mu, the
	// transport write happens in ProcessTransportEvent after it unlocks.
	e.pendingAcks = append(e.pendingAcks, frame)
}
