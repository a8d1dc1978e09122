// Package regka contains the gossip convergence engine
// for regional group key agreement.
//
// Every one of N participants originates one opaque key contribution.
// Participants exchange [rkmsg.Message] values over an unreliable network
// until each of them holds all N contributions.
//
// A [Participant] combines two structures:
// an [aggtree.Tree], which detects that all contributions are held,
// and a [kmatrix.Matrix], which records who is believed to hold what
// and decides which contributions are worth forwarding to each neighbor.
//
// The transport is left to the caller.
// The rkmsg package encodes messages over the stream interfaces in rquic,
// which in turn wrap quic-go.
package regka
