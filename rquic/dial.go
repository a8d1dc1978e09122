package rquic

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the application protocol negotiated on gossip connections.
const ALPN = "regka/1"

// DefaultConfig returns the QUIC configuration used for gossip connections.
// Peers only ever open unidirectional streams.
func DefaultConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,

		MaxIncomingStreams:    -1,
		MaxIncomingUniStreams: 64,
	}
}

// Listen starts a QUIC listener on addr.
// The ALPN protocol is added to a clone of tlsConf.
// A nil cfg uses [DefaultConfig].
func Listen(addr string, tlsConf *tls.Config, cfg *quic.Config) (*quic.Listener, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ql, err := quic.ListenAddr(addr, withALPN(tlsConf), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", addr, err)
	}
	return ql, nil
}

// Accept waits for the next inbound connection on ql.
func Accept(ctx context.Context, ql *quic.Listener) (Conn, error) {
	qc, err := ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return WrapConn(qc), nil
}

// Dial opens a QUIC connection to addr.
// The ALPN protocol is added to a clone of tlsConf.
// A nil cfg uses [DefaultConfig].
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, cfg *quic.Config) (Conn, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	qc, err := quic.DialAddr(ctx, addr, withALPN(tlsConf), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", addr, err)
	}
	return WrapConn(qc), nil
}

func withALPN(tlsConf *tls.Config) *tls.Config {
	c := tlsConf.Clone()
	c.NextProtos = []string{ALPN}
	return c
}
