package channelengine

import "time"

// channelMetrics accumulates the per-channel counters and latency/jitter
// samples of spec §4.7. now() is injected so tests can drive it
// deterministically.
type channelMetrics struct {
	packetsReceived uint64
	bytesReceived   uint64

	latencySamples []float64 // seconds
	jitter         float64
	lastTransit    *float64

	maxSeqno uint16
	observed map[uint16]struct{}

	giveUps uint64 // sender-side reliable-channel losses recorded on give-up (§4.3)
}

func newChannelMetrics() *channelMetrics {
	return &channelMetrics{observed: make(map[uint16]struct{})}
}

// recordReceive records a reception and, for latency/jitter, the transit
// time against the reconstructed sender timestamp.
func (m *channelMetrics) recordReceive(seqno uint16, payloadLen int, senderTime time.Time, now time.Time) {
	m.packetsReceived++
	m.bytesReceived += uint64(payloadLen)

	if seqno > m.maxSeqno {
		m.maxSeqno = seqno
	}
	m.observed[seqno] = struct{}{}

	transit := now.Sub(senderTime).Seconds()
	m.latencySamples = append(m.latencySamples, transit)

	if m.lastTransit != nil {
		d := transit - *m.lastTransit
		if d < 0 {
			d = -d
		}
		m.jitter += (d - m.jitter) / 16.0
	}
	lt := transit
	m.lastTransit = &lt
}

func (m *channelMetrics) recordGiveUp() {
	m.giveUps++
}

func (m *channelMetrics) avgLatencySeconds() float64 {
	if len(m.latencySamples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range m.latencySamples {
		sum += s
	}
	return sum / float64(len(m.latencySamples))
}

// Metrics is the full recorder, one instance per Engine, tracking both
// channels plus a shared start time for duration/throughput derivation.
type Metrics struct {
	startTime  time.Time
	reliable   *channelMetrics
	unreliable *channelMetrics
}

func newMetrics(now time.Time) *Metrics {
	return &Metrics{
		startTime:  now,
		reliable:   newChannelMetrics(),
		unreliable: newChannelMetrics(),
	}
}

func (m *Metrics) forChannel(c Channel) *channelMetrics {
	if c == Unreliable {
		return m.unreliable
	}
	return m.reliable
}

// ChannelReport is the derived, on-demand view of one channel's metrics,
// named exactly per spec §6's persisted-output field list.
type ChannelReport struct {
	PacketsExpected  uint64  `json:"packets_expected"`
	PacketsReceived  uint64  `json:"packets_received"`
	PacketsLost      uint64  `json:"packets_lost"`
	RecvThroughputBps float64 `json:"recv_throughput_bps"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	JitterMs         float64 `json:"jitter_ms"`
	DeliveryRatioPct float64 `json:"delivery_ratio_pct"`
	LossRatioPct     float64 `json:"loss_ratio_pct"`
}

// OverallReport is the channel-agnostic summary.
type OverallReport struct {
	PacketsReceived   uint64  `json:"packets_received"`
	RecvThroughputBps float64 `json:"recv_throughput_bps"`
}

// Report is the full structured record returned by GetMetricsReport and,
// optionally, persisted to disk by the report package.
type Report struct {
	Label      string        `json:"label"`
	Duration   float64       `json:"duration"`
	Overall    OverallReport `json:"overall"`
	Reliable   ChannelReport `json:"reliable"`
	Unreliable ChannelReport `json:"unreliable"`
}

func deriveChannelReport(m *channelMetrics, duration float64) ChannelReport {
	expected := uint64(m.maxSeqno)
	observedCount := uint64(len(m.observed))

	var recvBps float64
	if duration > 0 {
		recvBps = float64(m.bytesReceived) / duration
	}

	var deliveryRatio, lossRatio float64
	var lost uint64
	if expected > 0 {
		if observedCount <= expected {
			lost = expected - observedCount
		}
		deliveryRatio = float64(observedCount) / float64(expected) * 100.0
		lossRatio = float64(lost) / float64(expected) * 100.0
	}

	return ChannelReport{
		PacketsExpected:   expected,
		PacketsReceived:   m.packetsReceived,
		PacketsLost:       lost,
		RecvThroughputBps: recvBps,
		AvgLatencyMs:      m.avgLatencySeconds() * 1000.0,
		JitterMs:          m.jitter * 1000.0,
		DeliveryRatioPct:  deliveryRatio,
		LossRatioPct:      lossRatio,
	}
}

// report derives a Report as of now. Caller holds the engine lock.
func (m *Metrics) report(label string, now time.Time) Report {
	duration := now.Sub(m.startTime).Seconds()
	reliable := deriveChannelReport(m.reliable, duration)
	unreliable := deriveChannelReport(m.unreliable, duration)

	return Report{
		Label:    label,
		Duration: duration,
		Overall: OverallReport{
			PacketsReceived:   m.reliable.packetsReceived + m.unreliable.packetsReceived,
			RecvThroughputBps: reliable.RecvThroughputBps + unreliable.RecvThroughputBps,
		},
		Reliable:   reliable,
		Unreliable: unreliable,
	}
}

// reconstructSenderTime recovers a full timestamp from the wire's
// low-32-bit millisecond value, per spec §4.7: try the current epoch, one
// epoch back, and one epoch forward, keeping whichever candidate is
// closest to now. Handles wraparound and mild clock skew, not arbitrary
// drift (spec §9).
func reconstructSenderTime(now time.Time, wireLow32 uint32) time.Time {
	const epoch32 = int64(1) << 32
	nowMs := now.UnixMilli()
	base := nowMs &^ (epoch32 - 1)

	candidates := [3]int64{
		base + int64(wireLow32),
		base - epoch32 + int64(wireLow32),
		base + epoch32 + int64(wireLow32),
	}

	best := candidates[0]
	bestDiff := absDiff(nowMs, best)
	for _, c := range candidates[1:] {
		if d := absDiff(nowMs, c); d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return time.UnixMilli(best)
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
