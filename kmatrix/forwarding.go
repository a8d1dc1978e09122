package kmatrix

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/contrib"
)

// ComplementRate returns the fraction of the union of what
// the local participant and the neighbor hold,
// that only the local participant holds.
//
// The union always includes the local participant's own contribution,
// so the denominator is never zero.
func (m *Matrix) ComplementRate(neighbor uint32) (float64, error) {
	if err := contrib.CheckID(neighbor, uint32(m.n)); err != nil {
		return 0, err
	}
	return m.complementRate(neighbor), nil
}

func (m *Matrix) complementRate(neighbor uint32) float64 {
	self := m.rows[m.self]
	nb := m.rows[neighbor]

	union := self.UnionCardinality(nb)
	if union == 0 {
		// Only reachable if a deserialized view cleared the diagonal.
		return 0
	}
	return float64(self.DifferenceCardinality(nb)) / float64(union)
}

// ForwardingDegree returns the believed fraction of participants
// that already hold contributor's contribution.
func (m *Matrix) ForwardingDegree(contributor uint32) (float64, error) {
	if err := contrib.CheckID(contributor, uint32(m.n)); err != nil {
		return 0, err
	}
	return m.forwardingDegree(uint(contributor)), nil
}

func (m *Matrix) forwardingDegree(contributor uint) float64 {
	var holders uint
	for _, row := range m.rows {
		if row.Test(contributor) {
			holders++
		}
	}
	return float64(holders) / float64(m.n)
}

// ForwardingContributions decides which contributions
// to forward to the given neighbor on this contact.
// The result has one bit per participant.
//
// Once the local participant holds everything, every bit is set.
// Otherwise, one random draw gates the whole contact:
// nothing is forwarded unless the complement rate exceeds the draw.
// If the gate opens, each contribution the local participant holds
// and the neighbor is believed to lack is forwarded
// when its forwarding degree is below a fresh random draw,
// so widely disseminated contributions are forwarded less often.
//
// Every set bit is a contribution the local participant holds.
func (m *Matrix) ForwardingContributions(neighbor uint32) (*bitset.BitSet, error) {
	if err := contrib.CheckID(neighbor, uint32(m.n)); err != nil {
		return nil, err
	}

	if m.SelfIsFull() {
		return contrib.Full(m.n), nil
	}

	out := bitset.MustNew(m.n)
	if m.complementRate(neighbor) <= m.rng.Float64() {
		return out, nil
	}

	self := m.rows[m.self]
	nb := m.rows[neighbor]
	for u, ok := self.NextSet(0); ok; u, ok = self.NextSet(u + 1) {
		if nb.Test(u) {
			continue
		}
		if m.forwardingDegree(u) < m.rng.Float64() {
			out.Set(u)
		}
	}
	return out, nil
}
