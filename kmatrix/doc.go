// Package kmatrix contains the knowledge matrix,
// the "who knows what" view that a participant uses
// to decide which key contributions to forward to which neighbor.
//
// Cell (i, j) is set when participant i is believed
// to hold participant j's contribution.
// The local participant's own row is first-hand knowledge;
// every other row is second-hand belief learned from peers' snapshots.
// Belief is only ever added, never retracted.
//
// Forwarding decisions are randomized.
// Two heuristics drive them:
// the complement rate, which measures how far ahead of a neighbor
// the local participant is; and the forwarding degree,
// which measures how saturated the network is with one contribution.
package kmatrix
