// Package rquictest contains fixtures for exercising the rquic interfaces
// without the full QUIC stack, as well as a loopback QUIC helper
// for tests that do want real connections.
package rquictest

import (
	"net"
	"sync"
	"time"

	"github.com/gordian-engine/regka/rquic"
)

// PipeSendStream is the write half of [Pipe].
type PipeSendStream struct {
	c net.Conn
}

var _ rquic.SendStream = (*PipeSendStream)(nil)

// PipeReceiveStream is the read half of [Pipe].
type PipeReceiveStream struct {
	c net.Conn

	mu       sync.Mutex
	canceled bool
	code     rquic.StreamErrorCode
}

var _ rquic.ReceiveStream = (*PipeReceiveStream)(nil)

// Pipe returns a connected in-memory stream pair.
// Like [net.Pipe], writes block until the other side reads,
// so senders and receivers must run on separate goroutines.
// Read and write deadlines are honored.
func Pipe() (*PipeSendStream, *PipeReceiveStream) {
	a, b := net.Pipe()
	return &PipeSendStream{c: a}, &PipeReceiveStream{c: b}
}

func (s *PipeSendStream) Write(p []byte) (int, error) { return s.c.Write(p) }

// CancelWrite closes the pipe; the code is not transmitted.
func (s *PipeSendStream) CancelWrite(rquic.StreamErrorCode) { _ = s.c.Close() }

func (s *PipeSendStream) Close() error { return s.c.Close() }

func (s *PipeSendStream) SetWriteDeadline(t time.Time) error {
	return s.c.SetWriteDeadline(t)
}

func (s *PipeReceiveStream) Read(p []byte) (int, error) { return s.c.Read(p) }

// CancelRead closes the pipe.
// The code is not transmitted, but it is reported by [*PipeReceiveStream.CanceledWith].
func (s *PipeReceiveStream) CancelRead(code rquic.StreamErrorCode) {
	s.mu.Lock()
	if !s.canceled {
		s.canceled = true
		s.code = code
	}
	s.mu.Unlock()

	_ = s.c.Close()
}

// CanceledWith returns the code from the first CancelRead call,
// and whether CancelRead has been called at all.
func (s *PipeReceiveStream) CanceledWith() (rquic.StreamErrorCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.canceled
}

func (s *PipeReceiveStream) SetReadDeadline(t time.Time) error {
	return s.c.SetReadDeadline(t)
}
