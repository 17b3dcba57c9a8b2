// Package transport is the QUIC collaborator of spec §6: it owns the
// handshake, the listener/dialer, and the raw stream/datagram plumbing,
// and exposes exactly the two-primitive contract the Channel Engine core
// consumes (send_stream_bytes, send_datagram) plus an event pump that
// feeds channelengine.Engine.ProcessTransportEvent. None of the
// reliability, ordering, or metrics logic lives here.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"channelengine/channelengine"
)

// quicConfig enables the datagram extension the unreliable channel needs;
// everything else (congestion control, flow control, handshake) is
// delegated to quic-go per spec §1's non-goals.
func quicConfig() *quic.Config {
	return &quic.Config{EnableDatagrams: true}
}

// Endpoint wraps one established QUIC connection's stream 0 and its
// datagram path behind channelengine.Transport, and pumps inbound bytes
// into an Engine.
type Endpoint struct {
	conn   quic.Connection
	stream quic.Stream
	log    *zap.Logger
}

// Dial connects to addr as the sender side and opens stream 0.
func Dial(ctx context.Context, addr string, log *zap.Logger) (*Endpoint, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // PKI verification is a collaborator concern, not core (spec §1)
		NextProtos:         []string{"channelengine"},
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	return &Endpoint{conn: conn, stream: stream, log: log}, nil
}

// Listener accepts receiver-side connections.
type Listener struct {
	ql  *quic.Listener
	log *zap.Logger
}

// Listen binds addr as the receiver side. certFile/keyFile are loaded the
// way off-the-shelf PKI tooling loads a server certificate; see tls.go for
// the self-signed fallback used when they're empty (test harnesses).
func Listen(addr, certFile, keyFile string, log *zap.Logger) (*Listener, error) {
	tlsConf, err := serverTLSConfig(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ql: ql, log: log}, nil
}

// Accept blocks for the next incoming connection and opens its first
// stream as the reliable channel.
func (l *Listener) Accept(ctx context.Context) (*Endpoint, error) {
	conn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept stream: %w", err)
	}
	return &Endpoint{conn: conn, stream: stream, log: l.log}, nil
}

// Close shuts down the listener.
func (l *Listener) Close() error {
	return l.ql.Close()
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ql.Addr()
}

// SendStreamBytes implements channelengine.Transport.
func (e *Endpoint) SendStreamBytes(b []byte) error {
	_, err := e.stream.Write(b)
	return err
}

// SendDatagram implements channelengine.Transport.
func (e *Endpoint) SendDatagram(b []byte) error {
	return e.conn.SendDatagram(b)
}

// Flush implements channelengine.Transport. quic-go's Stream.Write already
// flushes each call onto the wire; nothing is buffered here for stream 0.
func (e *Endpoint) Flush() error {
	return nil
}

// Close closes the underlying connection.
func (e *Endpoint) Close() error {
	return e.conn.CloseWithError(0, "closed")
}

// Pump reads stream bytes and datagrams until the connection closes or ctx
// is cancelled, feeding each event into engine. This is the "integrator"
// of spec §6 — the glue between the transport's read primitives and the
// engine's ProcessTransportEvent hook.
func (e *Endpoint) Pump(ctx context.Context, engine *channelengine.Engine) error {
	errCh := make(chan error, 2)

	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := e.stream.Read(buf)
			if n > 0 {
				if perr := engine.ProcessTransportEvent(channelengine.EventStreamData, buf[:n]); perr != nil {
					e.log.Warn("stream event processing failed", zap.Error(perr))
				}
			}
			if err != nil {
				if err != io.EOF {
					errCh <- fmt.Errorf("transport: stream read: %w", err)
				} else {
					errCh <- nil
				}
				return
			}
		}
	}()

	go func() {
		for {
			data, err := e.conn.ReceiveDatagram(ctx)
			if err != nil {
				errCh <- fmt.Errorf("transport: datagram read: %w", err)
				return
			}
			if perr := engine.ProcessTransportEvent(channelengine.EventDatagram, data); perr != nil {
				e.log.Warn("datagram event processing failed", zap.Error(perr))
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
