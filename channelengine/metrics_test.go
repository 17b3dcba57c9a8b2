package channelengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconstructSenderTime_SameEpoch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sent := now.Add(-20 * time.Millisecond)
	wire := uint32(sent.UnixMilli())

	got := reconstructSenderTime(now, wire)
	assert.WithinDuration(t, sent, got, time.Millisecond)
}

func TestReconstructSenderTime_HandlesWraparound(t *testing.T) {
	// Pick a "now" whose low 32 bits are close to the top, and a sender
	// timestamp just past the wrap, so the naive same-epoch candidate
	// would be very wrong.
	epoch32 := int64(1) << 32
	nowMs := epoch32 - 5 // ms value whose top bits are all set just before rollover
	now := time.UnixMilli(nowMs)
	sentMs := nowMs + 10 // past the wrap from the sender's perspective
	wire := uint32(sentMs)

	got := reconstructSenderTime(now, wire)
	assert.Equal(t, sentMs, got.UnixMilli())
}

func TestChannelMetrics_JitterAccumulates(t *testing.T) {
	m := newChannelMetrics()
	base := time.Unix(1000, 0)

	m.recordReceive(1, 10, base, base.Add(10*time.Millisecond))
	assert.Zero(t, m.jitter) // no jitter sample on the first reception

	m.recordReceive(2, 10, base, base.Add(40*time.Millisecond))
	assert.NotZero(t, m.jitter)
}

func TestDeriveChannelReport_Basics(t *testing.T) {
	m := newChannelMetrics()
	base := time.Unix(2000, 0)
	m.recordReceive(1, 100, base, base)
	m.recordReceive(3, 100, base, base) // seqno 2 never observed

	rep := deriveChannelReport(m, 10.0)
	assert.EqualValues(t, 3, rep.PacketsExpected)
	assert.EqualValues(t, 2, rep.PacketsReceived)
	assert.EqualValues(t, 1, rep.PacketsLost)
	assert.InDelta(t, 66.67, rep.DeliveryRatioPct, 0.1)
	assert.InDelta(t, 33.33, rep.LossRatioPct, 0.1)
}

func TestDeriveChannelReport_ZeroExpectedReportsZeroRatios(t *testing.T) {
	m := newChannelMetrics()
	rep := deriveChannelReport(m, 1.0)
	assert.Zero(t, rep.DeliveryRatioPct)
	assert.Zero(t, rep.LossRatioPct)
	assert.Zero(t, rep.PacketsExpected)
}
