// Package rkmsg defines the gossip message exchanged between participants
// and its text and stream encodings.
//
// A [Message] carries the sender's ID,
// the contributions the sender is forwarding,
// and the sender's full knowledge matrix snapshot.
package rkmsg
