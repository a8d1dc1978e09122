package rquictest

import (
	"context"
	"testing"

	"github.com/gordian-engine/regka/internal/rktest"
	"github.com/gordian-engine/regka/rquic"
	"github.com/stretchr/testify/require"
)

// Loopback starts a QUIC listener on 127.0.0.1,
// dials it, and returns both ends of the resulting connection.
// The listener and connections are closed during test cleanup.
func Loopback(t *testing.T, ctx context.Context) (dialed, accepted rquic.Conn) {
	t.Helper()

	serverConf, clientConf := TLSConfigs(t)

	ql, err := rquic.Listen("127.0.0.1:0", serverConf, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ql.Close() })

	acceptedCh := make(chan rquic.Conn, 1)
	go func() {
		c, err := rquic.Accept(ctx, ql)
		if err != nil {
			t.Error(err)
			acceptedCh <- nil
			return
		}
		acceptedCh <- c
	}()

	dialed, err = rquic.Dial(ctx, ql.Addr().String(), clientConf, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dialed.CloseWithError(rquic.ConnCodeDone, "") })

	accepted = rktest.ReceiveSoon(t, acceptedCh)
	require.NotNil(t, accepted)
	t.Cleanup(func() { _ = accepted.CloseWithError(rquic.ConnCodeDone, "") })

	return dialed, accepted
}
