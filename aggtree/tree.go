package aggtree

import (
	"fmt"
	"math/bits"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/contrib"
)

// Tree is the aggregation tree for a single participant.
//
// The zero value is not usable; create instances with [New].
// A Tree is not safe for concurrent use.
type Tree struct {
	// One bit per tree node, in heap order.
	// Sized once in New and never resized.
	owned *bitset.BitSet

	// Real leaf count, i.e. the number of participants.
	n uint

	// Power of two leaf count.
	capacity uint

	self uint32
}

// New returns a tree for n participants,
// where the local participant's own contribution is already owned.
//
// New returns [contrib.ErrInvalidSize] if n is zero,
// and [contrib.ErrOutOfRange] if self is not less than n.
func New(n, self uint32) (*Tree, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: participant count must be at least 1", contrib.ErrInvalidSize)
	}
	if err := contrib.CheckID(self, n); err != nil {
		return nil, err
	}

	capacity := uint(1) << bits.Len32(n-1)
	t := &Tree{
		owned: bitset.MustNew(2*capacity - 1),

		n:        uint(n),
		capacity: capacity,

		self: self,
	}

	// Padding leaves are permanently owned.
	// The range is fresh, so flipping it sets it.
	if t.n < capacity {
		t.owned.FlipRange(t.leafIndex(t.n), 2*capacity-1)
	}
	t.normalize()

	t.addLeaf(uint(self))

	return t, nil
}

// leafIndex returns the node index for contribution i.
func (t *Tree) leafIndex(i uint) uint {
	return t.capacity - 1 + i
}

// firstLeaf is the node index of the first leaf.
func (t *Tree) firstLeaf() uint {
	return t.capacity - 1
}

// addLeaf marks contribution i owned and walks up the ancestors,
// stopping at the first ancestor that is owned
// or whose other child is not yet owned.
// It reports whether the leaf was newly owned.
func (t *Tree) addLeaf(i uint) bool {
	idx := t.leafIndex(i)
	if t.owned.Test(idx) {
		return false
	}
	t.owned.Set(idx)

	for idx > 0 {
		parent := (idx - 1) / 2
		if t.owned.Test(parent) {
			break
		}

		sibling := idx + 1
		if idx%2 == 0 {
			// Even indices are right children.
			sibling = idx - 1
		}
		if !t.owned.Test(sibling) {
			break
		}

		t.owned.Set(parent)
		idx = parent
	}

	return true
}

// bubbleUp is the single fix-up pass after any number of new leaves.
// It is seeded with the parents of every owned leaf,
// and processes candidates from the highest index downward.
// Parents always have a lower index than their children,
// so one downward sweep reaches the fixed point.
func (t *Tree) bubbleUp() {
	if t.capacity == 1 {
		// Single node: the leaf is the root.
		return
	}

	// Only internal nodes are ever pending.
	pending := bitset.MustNew(t.capacity - 1)
	for u, ok := t.owned.NextSet(t.firstLeaf()); ok; u, ok = t.owned.NextSet(u + 1) {
		pending.Set((u - 1) / 2)
	}

	idx, ok := pending.PreviousSet(t.capacity - 2)
	for ok {
		if !t.owned.Test(idx) && t.owned.Test(2*idx+1) && t.owned.Test(2*idx+2) {
			t.owned.Set(idx)
			if idx > 0 {
				pending.Set((idx - 1) / 2)
			}
		}

		if idx == 0 {
			break
		}
		idx, ok = pending.PreviousSet(idx - 1)
	}
}

// normalize sets every internal node whose children are both owned,
// sweeping all internal nodes bottom-up.
// Unlike bubbleUp, it does not rely on owned nodes
// only appearing as a result of owned leaves.
func (t *Tree) normalize() {
	for idx := int(t.capacity) - 2; idx >= 0; idx-- {
		u := uint(idx)
		if t.owned.Test(2*u+1) && t.owned.Test(2*u+2) {
			t.owned.Set(u)
		}
	}
}

// AddContribution marks the given contributor's leaf as owned,
// updating ancestors as needed.
// It reports whether the contribution was new;
// adding an already owned contribution is a no-op.
func (t *Tree) AddContribution(id uint32) (bool, error) {
	if err := contrib.CheckID(id, uint32(t.n)); err != nil {
		return false, err
	}
	return t.addLeaf(uint(id)), nil
}

// AddContributions marks every contribution set in bs as owned,
// then performs one bubble-up pass if any leaf was new.
// It returns the number of newly owned contributions.
//
// If bs does not have exactly one bit per participant,
// AddContributions returns [contrib.ErrInvalidArgument]
// and the tree is unmodified.
func (t *Tree) AddContributions(bs *bitset.BitSet) (uint, error) {
	if err := contrib.CheckLen(bs, t.n); err != nil {
		return 0, err
	}

	var added uint
	for u, ok := bs.NextSet(0); ok; u, ok = bs.NextSet(u + 1) {
		idx := t.leafIndex(u)
		if !t.owned.Test(idx) {
			t.owned.Set(idx)
			added++
		}
	}

	if added > 0 {
		t.bubbleUp()
	}
	return added, nil
}

// AddContributionString is [*Tree.AddContributions]
// for the '0'/'1' string form of a contribution set.
func (t *Tree) AddContributionString(s string) (uint, error) {
	bs, err := contrib.ParseN(s, t.n)
	if err != nil {
		return 0, err
	}
	return t.AddContributions(bs)
}

// HasContribution reports whether the given contributor's
// contribution is known locally.
func (t *Tree) HasContribution(id uint32) (bool, error) {
	if err := contrib.CheckID(id, uint32(t.n)); err != nil {
		return false, err
	}
	return t.owned.Test(t.leafIndex(uint(id))), nil
}

// HasCompleteKey reports whether every contribution is known,
// which is exactly when the root is owned.
func (t *Tree) HasCompleteKey() bool {
	return t.owned.Test(0)
}

// ContributionCount returns the number of owned real leaves.
// Padding leaves are not counted.
func (t *Tree) ContributionCount() uint {
	end := t.leafIndex(t.n)
	var c uint
	for u, ok := t.owned.NextSet(t.firstLeaf()); ok && u < end; u, ok = t.owned.NextSet(u + 1) {
		c++
	}
	return c
}

// Contributions returns a new bitset, one bit per participant,
// set for every owned contribution.
func (t *Tree) Contributions() *bitset.BitSet {
	out := bitset.MustNew(t.n)
	first := t.firstLeaf()
	end := t.leafIndex(t.n)
	for u, ok := t.owned.NextSet(first); ok && u < end; u, ok = t.owned.NextSet(u + 1) {
		out.Set(u - first)
	}
	return out
}

// OwnedNodes returns the indices of every owned node, in ascending order.
// This includes padding leaves and their aggregates.
func (t *Tree) OwnedNodes() []uint {
	out := make([]uint, 0, t.owned.Count())
	for u, ok := t.owned.NextSet(0); ok; u, ok = t.owned.NextSet(u + 1) {
		out = append(out, u)
	}
	return out
}

// ParticipantCount returns the number of participants, i.e. real leaves.
func (t *Tree) ParticipantCount() uint32 { return uint32(t.n) }

// SelfID returns the local participant ID given to [New].
func (t *Tree) SelfID() uint32 { return t.self }

// Capacity returns the power-of-two leaf count.
func (t *Tree) Capacity() uint { return t.capacity }

// NodeCount returns the total number of tree nodes,
// which is also the length of [*Tree.Serialize] output.
func (t *Tree) NodeCount() uint { return 2*t.capacity - 1 }

// Serialize returns one '0' or '1' per node, in index order.
func (t *Tree) Serialize() string {
	return contrib.Format(t.owned)
}

// Deserialize replaces the tree's ownership state
// with the output of [*Tree.Serialize].
//
// The input is rejected with [contrib.ErrInvalidArgument],
// leaving the tree unmodified, if:
// the length is not [*Tree.NodeCount];
// it contains characters other than '0' and '1';
// any padding leaf is unowned;
// or any owned internal node has an unowned child.
// Internal nodes that should be owned but are not
// are repaired before Deserialize returns.
func (t *Tree) Deserialize(s string) error {
	bs, err := contrib.ParseN(s, t.NodeCount())
	if err != nil {
		return err
	}

	for leaf := t.n; leaf < t.capacity; leaf++ {
		if !bs.Test(t.leafIndex(leaf)) {
			return fmt.Errorf(
				"%w: padding leaf %d must be owned", contrib.ErrInvalidArgument, leaf,
			)
		}
	}

	for u := uint(0); u < t.capacity-1; u++ {
		if bs.Test(u) && !(bs.Test(2*u+1) && bs.Test(2*u+2)) {
			return fmt.Errorf(
				"%w: node %d owned without both children owned", contrib.ErrInvalidArgument, u,
			)
		}
	}

	t.owned = bs
	t.normalize()
	return nil
}

// MergeFrom adds every contribution that other owns to t.
// Merging is a union, so it is idempotent and commutative
// in its final owned set.
//
// If other was created for a different participant count,
// MergeFrom returns [contrib.ErrSizeMismatch] and merges nothing.
func (t *Tree) MergeFrom(other *Tree) error {
	if other.n != t.n {
		return fmt.Errorf(
			"%w: merging tree of %d participants into tree of %d",
			contrib.ErrSizeMismatch, other.n, t.n,
		)
	}

	first := t.firstLeaf()
	end := t.leafIndex(t.n)
	for u, ok := other.owned.NextSet(first); ok && u < end; u, ok = other.owned.NextSet(u + 1) {
		t.addLeaf(u - first)
	}
	return nil
}

// ForwardingSetAgainst returns the deterministic forwarding set
// for the given neighbor tree, with one bit per participant.
//
// Once t has every contribution, every bit is set.
// Otherwise, exactly the contributions t owns and neighbor lacks are set.
func (t *Tree) ForwardingSetAgainst(neighbor *Tree) (*bitset.BitSet, error) {
	if neighbor.n != t.n {
		return nil, fmt.Errorf(
			"%w: neighbor tree has %d participants, local tree has %d",
			contrib.ErrSizeMismatch, neighbor.n, t.n,
		)
	}

	if t.HasCompleteKey() {
		return contrib.Full(t.n), nil
	}

	out := bitset.MustNew(t.n)
	first := t.firstLeaf()
	end := t.leafIndex(t.n)
	for u, ok := t.owned.NextSet(first); ok && u < end; u, ok = t.owned.NextSet(u + 1) {
		if !neighbor.owned.Test(u) {
			out.Set(u - first)
		}
	}
	return out, nil
}

// Clone returns an independent copy of t.
func (t *Tree) Clone() *Tree {
	c := *t
	c.owned = t.owned.Clone()
	return &c
}
