package channelengine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startRetransmitTask launches the background sweep of spec §4.3. It is
// started implicitly by NewEngine; Close cancels it.
func (e *Engine) startRetransmitTask() {
	ctx, cancel := context.WithCancel(context.Background())
	e.retransmitCancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.RetransmitSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.retransmitSweep()
			}
		}
	}()
}

// retransmitSweep re-sends any unacknowledged in-flight packet whose
// retransmit interval has elapsed, and declares give-up on any packet
// whose first-send is older than the give-up threshold.
func (e *Engine) retransmitSweep() {
	e.mu.Lock()

	now := e.now()
	var toResend [][]byte
	var advanced bool

	for s := int(e.base); s < int(e.nextSeqno); s++ {
		seqno := uint16(s)
		rec, ok := e.inflight[seqno]
		if !ok {
			continue // already acknowledged or given up
		}
		if now.Sub(rec.firstSent) > e.cfg.GiveUpThreshold {
			delete(e.inflight, seqno)
			e.resolved[seqno] = struct{}{}
			e.metrics.forChannel(Reliable).recordGiveUp()
			e.log.Warn("reliable packet given up", zap.Uint16("seqno", seqno))
			advanced = true
			continue
		}
		if now.Sub(rec.lastSent) >= e.cfg.RetransmitInterval {
			rec.lastSent = now
			rec.retransmits++
			toResend = append(toResend, rec.frame)
		}
	}

	if advanced {
		e.advanceBaseOverGiveUps()
		e.pruneResolved()
		e.signalWindow()
	}

	e.mu.Unlock()

	for _, frame := range toResend {
		if err := e.transport.SendStreamBytes(frame); err != nil {
			e.log.Warn("retransmit failed", zap.Error(err))
			continue
		}
		_ = e.transport.Flush()
	}
}

// advanceBaseOverGiveUps moves base forward across any contiguous run of
// seqnos already marked resolved, so a permanent give-up never starves
// subsequent sends (spec §4.3 rationale). Caller holds e.mu.
func (e *Engine) advanceBaseOverGiveUps() {
	for {
		if _, ok := e.resolved[e.base]; !ok {
			return
		}
		if int(e.base) >= int(e.nextSeqno) {
			return
		}
		e.base++
	}
}
