package channelengine

import (
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport collaborator recording everything
// written to it, for assertions without a real QUIC connection.
type fakeTransport struct {
	mu          sync.Mutex
	streamOut   [][]byte
	datagramOut [][]byte
	flushes     int
}

func (f *fakeTransport) SendStreamBytes(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.streamOut = append(f.streamOut, cp)
	return nil
}

func (f *fakeTransport) SendDatagram(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.datagramOut = append(f.datagramOut, cp)
	return nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeTransport) streamFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Frame
	for _, b := range f.streamOut {
		fr, err := decodeOne(b)
		if err == nil {
			out = append(out, fr)
		}
	}
	return out
}

// manualClock is a test clock advanced explicitly by each test, so give-up
// thresholds and retransmit intervals never race against wall-clock time.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(cfg Config, clock *manualClock) (*Engine, *fakeTransport) {
	tr := &fakeTransport{}
	e := NewEngine(tr, WithConfig(cfg), withClock(clock.now))
	return e, tr
}

func testConfig() Config {
	return Config{
		WindowSize:         5,
		RetransmitInterval: 100 * time.Millisecond,
		GiveUpThreshold:    500 * time.Millisecond,
		RetransmitSweep:    time.Hour, // swept manually in tests, not by the ticker
		WindowPollInterval: 10 * time.Millisecond,
	}
}
