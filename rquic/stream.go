package rquic

import (
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// StreamErrorCode is used for
// [ReceiveStream.CancelRead] and [SendStream.CancelWrite],
// to inform the peer of why the stream is canceled.
type StreamErrorCode uint64

const (
	// StreamCodeInvalidMessage is sent when a received message
	// fails to decode or validate.
	StreamCodeInvalidMessage StreamErrorCode = 0x10

	// StreamCodeShuttingDown is sent when a stream is abandoned
	// because the local participant is stopping.
	StreamCodeShuttingDown StreamErrorCode = 0x11
)

// ReceiveStream is the read side of a unidirectional stream.
type ReceiveStream interface {
	Read([]byte) (int, error)
	CancelRead(StreamErrorCode)

	SetReadDeadline(time.Time) error
}

// WrapReceiveStream wraps s into a ReceiveStreamAdapter,
// satisfying the [ReceiveStream] interface.
func WrapReceiveStream(s quic.ReceiveStream) ReceiveStreamAdapter {
	return ReceiveStreamAdapter{s: s}
}

// ReceiveStreamAdapter wraps a [quic.ReceiveStream]
// to satisfy the [ReceiveStream] interface.
// Use [WrapReceiveStream] to create an instance.
type ReceiveStreamAdapter struct {
	s quic.ReceiveStream
}

var _ ReceiveStream = ReceiveStreamAdapter{}

func (a ReceiveStreamAdapter) Read(p []byte) (int, error) {
	return a.s.Read(p)
}

func (a ReceiveStreamAdapter) CancelRead(code StreamErrorCode) {
	checkCode(code)
	a.s.CancelRead(quic.StreamErrorCode(code))
}

func (a ReceiveStreamAdapter) SetReadDeadline(t time.Time) error {
	return a.s.SetReadDeadline(t)
}

// SendStream is the write side of a unidirectional stream.
type SendStream interface {
	Write([]byte) (int, error)
	CancelWrite(StreamErrorCode)

	Close() error

	SetWriteDeadline(t time.Time) error
}

// WrapSendStream wraps s into a SendStreamAdapter,
// satisfying the [SendStream] interface.
func WrapSendStream(s quic.SendStream) SendStreamAdapter {
	return SendStreamAdapter{s: s}
}

// SendStreamAdapter wraps a [quic.SendStream]
// to satisfy the [SendStream] interface.
// Use [WrapSendStream] to create an instance.
type SendStreamAdapter struct {
	s quic.SendStream
}

var _ SendStream = SendStreamAdapter{}

func (a SendStreamAdapter) Write(p []byte) (int, error) {
	return a.s.Write(p)
}

func (a SendStreamAdapter) CancelWrite(code StreamErrorCode) {
	checkCode(code)
	a.s.CancelWrite(quic.StreamErrorCode(code))
}

func (a SendStreamAdapter) Close() error {
	return a.s.Close()
}

func (a SendStreamAdapter) SetWriteDeadline(t time.Time) error {
	return a.s.SetWriteDeadline(t)
}

// QUIC varints carry at most 62 bits.
func checkCode[T ~uint64](code T) {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: error code must fit in 62 bits (got 0x%x)", uint64(code),
		))
	}
}
