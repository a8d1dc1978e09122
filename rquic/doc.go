// Package rquic narrows the quic-go connection and stream types
// to the subset used for gossiping key agreement messages.
//
// Gossip contacts are one-shot: the sender opens a unidirectional stream,
// writes one message, and closes the stream.
// Working against the [Conn], [SendStream], and [ReceiveStream] interfaces
// lets the codecs be tested over in-memory pipes
// (see the rquictest package) as well as over real QUIC connections.
package rquic
