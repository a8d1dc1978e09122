package kmatrix

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/contrib"
)

// Matrix is the knowledge matrix for a single participant.
//
// Create instances with [New].
// A Matrix is not safe for concurrent use,
// and neither is the random source it was created with.
type Matrix struct {
	// One row per observer, each of length n.
	rows []*bitset.BitSet

	n    uint
	self uint32

	rng *rand.Rand
}

// New returns a matrix for n participants,
// with only the diagonal set.
//
// The rng is used for every forwarding decision;
// it must not be nil.
func New(n, self uint32, rng *rand.Rand) (*Matrix, error) {
	if rng == nil {
		panic(errors.New("BUG: rng must not be nil"))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: participant count must be at least 1", contrib.ErrInvalidSize)
	}
	if err := contrib.CheckID(self, n); err != nil {
		return nil, err
	}

	m := newEmpty(uint(n), self, rng)
	for i, row := range m.rows {
		row.Set(uint(i))
	}
	return m, nil
}

func newEmpty(n uint, self uint32, rng *rand.Rand) *Matrix {
	rows := make([]*bitset.BitSet, n)
	for i := range rows {
		rows[i] = bitset.MustNew(n)
	}
	return &Matrix{
		rows: rows,
		n:    n,
		self: self,
		rng:  rng,
	}
}

// ParticipantCount returns the matrix dimension.
func (m *Matrix) ParticipantCount() uint32 { return uint32(m.n) }

// SelfID returns the local participant ID given to [New].
func (m *Matrix) SelfID() uint32 { return m.self }

// HasKeyContribution reports whether observer is believed
// to hold contributor's contribution.
// Out of range IDs report false.
func (m *Matrix) HasKeyContribution(observer, contributor uint32) bool {
	if uint(observer) >= m.n {
		return false
	}
	return m.rows[observer].Test(uint(contributor))
}

// ReceiveKeyContribution records that the local participant
// now holds contributor's contribution.
// It reports whether the contribution was new.
func (m *Matrix) ReceiveKeyContribution(contributor uint32) (bool, error) {
	if err := contrib.CheckID(contributor, uint32(m.n)); err != nil {
		return false, err
	}

	row := m.rows[m.self]
	if row.Test(uint(contributor)) {
		return false, nil
	}
	row.Set(uint(contributor))
	return true, nil
}

// ReceiveContributions calls [*Matrix.ReceiveKeyContribution]
// for every bit set in bs, returning the number of new contributions.
// The bitset must have one bit per participant.
func (m *Matrix) ReceiveContributions(bs *bitset.BitSet) (uint, error) {
	if err := contrib.CheckLen(bs, m.n); err != nil {
		return 0, err
	}

	row := m.rows[m.self]
	before := row.Count()
	row.InPlaceUnion(bs)
	return row.Count() - before, nil
}

// MergeMatrix sets every cell that is set in other.
//
// If other has a different participant count,
// MergeMatrix returns [contrib.ErrSizeMismatch] and merges nothing.
func (m *Matrix) MergeMatrix(other *Matrix) error {
	if other.n != m.n {
		return fmt.Errorf(
			"%w: merging matrix of %d participants into matrix of %d",
			contrib.ErrSizeMismatch, other.n, m.n,
		)
	}

	for i, row := range m.rows {
		row.InPlaceUnion(other.rows[i])
	}
	return nil
}

// MergeSnapshot is [*Matrix.MergeMatrix] for the row-major form
// returned by [*Matrix.Snapshot].
// The snapshot must have exactly n*n bits,
// or else MergeSnapshot returns [contrib.ErrInvalidArgument].
func (m *Matrix) MergeSnapshot(snap *bitset.BitSet) error {
	if err := contrib.CheckLen(snap, m.n*m.n); err != nil {
		return err
	}

	for u, ok := snap.NextSet(0); ok; u, ok = snap.NextSet(u + 1) {
		m.rows[u/m.n].Set(u % m.n)
	}
	return nil
}

// IsFull reports whether every cell is set:
// every participant is believed to hold every contribution.
func (m *Matrix) IsFull() bool {
	for _, row := range m.rows {
		if row.Count() != m.n {
			return false
		}
	}
	return true
}

// SelfIsFull reports whether the local participant
// holds every contribution.
func (m *Matrix) SelfIsFull() bool {
	return m.rows[m.self].Count() == m.n
}

// KnownBy returns a copy of the given observer's row.
func (m *Matrix) KnownBy(observer uint32) (*bitset.BitSet, error) {
	if err := contrib.CheckID(observer, uint32(m.n)); err != nil {
		return nil, err
	}
	return m.rows[observer].Clone(), nil
}

// Snapshot returns the matrix as a single row-major bitset of n*n bits.
func (m *Matrix) Snapshot() *bitset.BitSet {
	out := bitset.MustNew(m.n * m.n)
	for i, row := range m.rows {
		base := uint(i) * m.n
		for u, ok := row.NextSet(0); ok; u, ok = row.NextSet(u + 1) {
			out.Set(base + u)
		}
	}
	return out
}

// Serialize returns the row-major '0'/'1' form of the matrix,
// with exactly n*n characters.
func (m *Matrix) Serialize() string {
	return contrib.Format(m.Snapshot())
}

// ParseSnapshot returns a new matrix built from the output of
// [*Matrix.Serialize], sharing m's dimension, local ID, and random source.
// The receiver is not modified.
//
// The input must have exactly n*n characters, each '0' or '1';
// otherwise ParseSnapshot returns [contrib.ErrInvalidArgument].
func (m *Matrix) ParseSnapshot(s string) (*Matrix, error) {
	snap, err := contrib.ParseN(s, m.n*m.n)
	if err != nil {
		return nil, err
	}

	out := newEmpty(m.n, m.self, m.rng)
	// Cannot fail, the length was already checked.
	_ = out.MergeSnapshot(snap)
	return out, nil
}

// Clone returns an independent copy of m
// that shares m's random source.
func (m *Matrix) Clone() *Matrix {
	c := newEmpty(m.n, m.self, m.rng)
	for i, row := range m.rows {
		row.Copy(c.rows[i])
	}
	return c
}
