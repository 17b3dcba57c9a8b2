package channelengine

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// inFlightRecord is the send-side bookkeeping for one reliable packet that
// has been dispatched but not yet cumulatively acknowledged (spec §3).
type inFlightRecord struct {
	frame       []byte // encoded bytes, bit-identical on retransmission
	firstSent   time.Time
	lastSent    time.Time
	retransmits int
	payloadLen  int
}

// Engine is the Channel Engine of spec §2: one instance per connection,
// symmetric (sends and receives for both channels). All of its sub-module
// state (sender window, reorder buffer, ACK bookkeeping, metrics) lives
// behind a single mutex, per the single-exclusive-access-boundary
// concurrency model of spec §9 — the send path, the receive path, and the
// retransmit sweep never mutate it concurrently.
type Engine struct {
	cfg       Config
	transport Transport
	log       *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool

	// sender window state (§3, §4.2)
	base                uint16
	nextSeqno           uint16
	nextSeqnoUnreliable uint16
	inflight            map[uint16]*inFlightRecord
	resolved            map[uint16]struct{} // acked-or-given-up, used only to advance base over give-up gaps
	windowSignal        chan struct{}       // closed and replaced whenever base/nextSeqno may have changed

	// receiver state, reliable channel (§3, §4.4)
	nextExpected uint16
	reorderBuf   map[uint16]Frame
	arrivalTimes map[uint16]time.Time

	// missingFirstSeen tracks, per absent seqno, the moment it first went
	// missing — a go-cache instance rather than a plain map so that a seat
	// nobody ever explicitly clears (because its packet finally arrived on
	// some later call) still expires on its own instead of leaking forever
	// under pathological loss patterns. TTL is set per entry to twice the
	// give-up threshold at insertion time, so an entry is still present when
	// a later sighting past the threshold checks it.
	missingFirstSeen *gocache.Cache
	pendingAcks      [][]byte // ACK frames queued while e.mu is held, flushed by the caller after unlock

	// stream reassembly: bytes read off the transport that didn't yet form
	// a complete frame (spec §4.1 decode_stream contract).
	streamBuf []byte

	metrics *Metrics

	callback ReceiveCallback

	retransmitCancel context.CancelFunc
	wg               sync.WaitGroup
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithConfig overrides the default timeouts of spec §5.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger attaches a zap logger; a no-op logger is used otherwise.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// withClock overrides the engine's notion of "now" for deterministic
// tests. Unexported: not part of the public API.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs a Channel Engine over the given transport
// collaborator and starts its retransmit task, per spec §6's "implicit on
// construction".
func NewEngine(transport Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:       DefaultConfig(),
		transport: transport,
		log:       zap.NewNop(),
		now:       time.Now,

		base:                1,
		nextSeqno:           1,
		nextSeqnoUnreliable: 1,
		inflight:            make(map[uint16]*inFlightRecord),
		resolved:            make(map[uint16]struct{}),
		windowSignal:        make(chan struct{}),

		nextExpected: 1,
		reorderBuf:   make(map[uint16]Frame),
		arrivalTimes: make(map[uint16]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.applyDefaults()
	e.missingFirstSeen = gocache.New(e.cfg.GiveUpThreshold, 2*e.cfg.GiveUpThreshold)
	e.metrics = newMetrics(e.now())

	e.startRetransmitTask()
	return e
}

// SetReceiveCallback registers the function invoked for every delivered
// frame (spec §6).
func (e *Engine) SetReceiveCallback(fn ReceiveCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = fn
}

// Close stops the retransmit task and drops all in-flight state without
// emitting anything further (spec §5, "Cancellation and shutdown"). The
// transport connection's own close is the caller's responsibility.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.inflight = make(map[uint16]*inFlightRecord)
	cancel := e.retransmitCancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	return nil
}

// GetMetricsReport derives the structured performance report of spec §4.7
// as of the current time.
func (e *Engine) GetMetricsReport(label string) Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics.report(label, e.now())
}

// signalWindow wakes any goroutine blocked in Send waiting for the window
// to free up. Must be called with e.mu held.
func (e *Engine) signalWindow() {
	close(e.windowSignal)
	e.windowSignal = make(chan struct{})
}
