package aggtree_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/aggtree"
	"github.com/gordian-engine/regka/contrib"
	"github.com/stretchr/testify/require"
)

// requireInvariant asserts that every internal node is owned
// exactly when both of its children are owned.
func requireInvariant(t *testing.T, tr *aggtree.Tree) {
	t.Helper()

	s := tr.Serialize()
	nInternal := int(tr.Capacity()) - 1
	for i := range nInternal {
		want := s[2*i+1] == '1' && s[2*i+2] == '1'
		got := s[i] == '1'
		require.Equalf(t, want, got, "node %d in %s", i, s)
	}
}

func mustNew(t *testing.T, n, self uint32) *aggtree.Tree {
	t.Helper()

	tr, err := aggtree.New(n, self)
	require.NoError(t, err)
	return tr
}

func TestNew_invalid(t *testing.T) {
	t.Parallel()

	_, err := aggtree.New(0, 0)
	require.ErrorIs(t, err, contrib.ErrInvalidSize)

	_, err = aggtree.New(4, 4)
	require.ErrorIs(t, err, contrib.ErrOutOfRange)
}

func TestNew_layout(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		n        uint32
		capacity uint
	}{
		{n: 1, capacity: 1},
		{n: 2, capacity: 2},
		{n: 3, capacity: 4},
		{n: 4, capacity: 4},
		{n: 5, capacity: 8},
		{n: 17, capacity: 32},
	} {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			t.Parallel()

			tr := mustNew(t, tc.n, 0)
			require.Equal(t, tc.capacity, tr.Capacity())
			require.Equal(t, 2*tc.capacity-1, tr.NodeCount())
			require.Len(t, tr.Serialize(), int(tr.NodeCount()))
			require.Equal(t, tc.n, tr.ParticipantCount())

			require.Equal(t, uint(1), tr.ContributionCount())
			has, err := tr.HasContribution(0)
			require.NoError(t, err)
			require.True(t, has)

			requireInvariant(t, tr)
		})
	}
}

func TestNew_padding(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 5, 2)

	// Leaves 12, 13, 14 are padding, and node 6 aggregates 13 and 14.
	// Node 5 aggregates leaf 11 (contribution 4) and 12 (padding),
	// so it is not owned yet.
	require.Equal(t, "000000100100111", tr.Serialize())
	require.Equal(t, []uint{6, 9, 12, 13, 14}, tr.OwnedNodes())

	_, err := tr.AddContribution(4)
	require.NoError(t, err)
	// Leaf 11 completes node 5, which completes node 2.
	require.Equal(t, "001001100101111", tr.Serialize())
	requireInvariant(t, tr)
}

func TestNew_singleParticipantComplete(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 1, 0)
	require.True(t, tr.HasCompleteKey())
	require.Equal(t, "1", tr.Serialize())

	fwd, err := tr.ForwardingSetAgainst(mustNew(t, 1, 0))
	require.NoError(t, err)
	require.Equal(t, "1", contrib.Format(fwd))
}

func TestAddContribution(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 4, 0)

	added, err := tr.AddContribution(1)
	require.NoError(t, err)
	require.True(t, added)

	// 0 and 1 share parent node 1.
	require.Equal(t, "0101100", tr.Serialize())

	added, err = tr.AddContribution(1)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, "0101100", tr.Serialize())

	_, err = tr.AddContribution(4)
	require.ErrorIs(t, err, contrib.ErrOutOfRange)
	require.Equal(t, "0101100", tr.Serialize())

	_, err = tr.AddContribution(3)
	require.NoError(t, err)
	require.False(t, tr.HasCompleteKey())
	_, err = tr.AddContribution(2)
	require.NoError(t, err)
	require.True(t, tr.HasCompleteKey())
	require.Equal(t, "1111111", tr.Serialize())
}

func TestHasContribution_outOfRange(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 3, 0)
	_, err := tr.HasContribution(3)
	require.ErrorIs(t, err, contrib.ErrOutOfRange)
}

func TestAddContributions(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 5, 0)

	added, err := tr.AddContributionString("01011")
	require.NoError(t, err)
	require.Equal(t, uint(3), added)
	require.Equal(t, uint(4), tr.ContributionCount())
	requireInvariant(t, tr)
	require.False(t, tr.HasCompleteKey())

	// Already owned bits are not counted.
	added, err = tr.AddContributionString("11011")
	require.NoError(t, err)
	require.Zero(t, added)

	added, err = tr.AddContributionString("00100")
	require.NoError(t, err)
	require.Equal(t, uint(1), added)
	require.True(t, tr.HasCompleteKey())
	requireInvariant(t, tr)
}

func TestAddContributions_invalidLength(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 5, 0)
	before := tr.Serialize()

	_, err := tr.AddContributionString("0101")
	require.ErrorIs(t, err, contrib.ErrInvalidArgument)

	_, err = tr.AddContributions(bitset.MustNew(6))
	require.ErrorIs(t, err, contrib.ErrInvalidArgument)

	_, err = tr.AddContributions(nil)
	require.ErrorIs(t, err, contrib.ErrInvalidArgument)

	_, err = tr.AddContributionString("01a11")
	require.ErrorIs(t, err, contrib.ErrInvalidArgument)

	require.Equal(t, before, tr.Serialize())
}

// Adding a batch with one bubble-up pass must match
// adding the same contributions one at a time.
func TestAddContributions_matchesSequentialAdds(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	for range 200 {
		n := 1 + rng.Uint32N(40)
		self := rng.Uint32N(n)

		batch := mustNew(t, n, self)
		seq := mustNew(t, n, self)

		bs := bitset.MustNew(uint(n))
		for i := range n {
			if rng.IntN(3) == 0 {
				bs.Set(uint(i))
			}
		}

		_, err := batch.AddContributions(bs)
		require.NoError(t, err)

		for u, ok := bs.NextSet(0); ok; u, ok = bs.NextSet(u + 1) {
			_, err := seq.AddContribution(uint32(u))
			require.NoError(t, err)
		}

		require.Equal(t, seq.Serialize(), batch.Serialize())
		requireInvariant(t, batch)
	}
}

func TestMonotonicity(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 5))

	const n = 13
	tr := mustNew(t, n, 6)

	prev := tr.Contributions()
	wasComplete := tr.HasCompleteKey()
	for range 100 {
		switch rng.IntN(3) {
		case 0:
			_, err := tr.AddContribution(rng.Uint32N(n))
			require.NoError(t, err)
		case 1:
			bs := bitset.MustNew(n)
			bs.Set(uint(rng.UintN(n)))
			bs.Set(uint(rng.UintN(n)))
			_, err := tr.AddContributions(bs)
			require.NoError(t, err)
		case 2:
			other := mustNew(t, n, rng.Uint32N(n))
			require.NoError(t, tr.MergeFrom(other))
		}

		cur := tr.Contributions()
		require.True(t, cur.IsSuperSet(prev))
		if wasComplete {
			require.True(t, tr.HasCompleteKey())
		}
		wasComplete = tr.HasCompleteKey()
		prev = cur

		requireInvariant(t, tr)
	}

	_, err := tr.AddContributionString("1111111111111")
	require.NoError(t, err)
	require.True(t, tr.HasCompleteKey())
	require.Equal(t, uint(n), tr.ContributionCount())
	requireInvariant(t, tr)
}

func TestMergeFrom_scenario(t *testing.T) {
	t.Parallel()

	trees := make([]*aggtree.Tree, 4)
	for i := range trees {
		trees[i] = mustNew(t, 4, uint32(i))
	}

	_, err := trees[1].AddContribution(2)
	require.NoError(t, err)
	require.NoError(t, trees[1].MergeFrom(trees[0]))

	for id, want := range []bool{true, true, true, false} {
		has, err := trees[1].HasContribution(uint32(id))
		require.NoError(t, err)
		require.Equalf(t, want, has, "contribution %d", id)
	}
	require.False(t, trees[1].HasCompleteKey())

	require.NoError(t, trees[1].MergeFrom(trees[3]))
	require.True(t, trees[1].HasCompleteKey())
	requireInvariant(t, trees[1])
}

func TestMergeFrom_idempotentAndCommutative(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 6, 0)
	_, err := a.AddContributionString("100110")
	require.NoError(t, err)

	b := mustNew(t, 6, 5)
	_, err = b.AddContributionString("010001")
	require.NoError(t, err)

	ab := a.Clone()
	require.NoError(t, ab.MergeFrom(b))
	ba := b.Clone()
	require.NoError(t, ba.MergeFrom(a))
	require.Equal(t, ab.Serialize(), ba.Serialize())

	before := ab.Serialize()
	require.NoError(t, ab.MergeFrom(b))
	require.NoError(t, ab.MergeFrom(a))
	require.Equal(t, before, ab.Serialize())
}

func TestMergeFrom_sizeMismatch(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 4, 0)
	b := mustNew(t, 5, 1)

	before := a.Serialize()
	require.ErrorIs(t, a.MergeFrom(b), contrib.ErrSizeMismatch)
	require.Equal(t, before, a.Serialize())

	_, err := a.ForwardingSetAgainst(b)
	require.ErrorIs(t, err, contrib.ErrSizeMismatch)
}

func TestSerialize_roundTrip(t *testing.T) {
	t.Parallel()

	src := mustNew(t, 7, 3)
	_, err := src.AddContributionString("1000011")
	require.NoError(t, err)

	dst := mustNew(t, 7, 0)
	require.NoError(t, dst.Deserialize(src.Serialize()))
	require.Equal(t, src.Serialize(), dst.Serialize())

	for i := range uint32(7) {
		want, err := src.HasContribution(i)
		require.NoError(t, err)
		got, err := dst.HasContribution(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, src.ContributionCount(), dst.ContributionCount())
	require.Equal(t, src.HasCompleteKey(), dst.HasCompleteKey())
}

func TestDeserialize_rejects(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 3, 0)
	before := tr.Serialize()
	require.Equal(t, "0001001", before)

	for name, s := range map[string]string{
		"short":                  "000100",
		"long":                   "00010010",
		"bad character":          "000100x",
		"unowned padding":        "0001000",
		"owned without children": "0100001",
	} {
		err := tr.Deserialize(s)
		require.ErrorIsf(t, err, contrib.ErrInvalidArgument, "case %s", name)
		require.Equal(t, before, tr.Serialize())
	}
}

func TestDeserialize_repairsAggregates(t *testing.T) {
	t.Parallel()

	tr := mustNew(t, 4, 0)

	// All leaves owned but no aggregates.
	require.NoError(t, tr.Deserialize("0001111"))
	require.True(t, tr.HasCompleteKey())
	require.Equal(t, "1111111", tr.Serialize())
}

func TestForwardingSetAgainst(t *testing.T) {
	t.Parallel()

	local := mustNew(t, 5, 0)
	_, err := local.AddContributionString("10110")
	require.NoError(t, err)

	neighbor := mustNew(t, 5, 2)
	_, err = neighbor.AddContributionString("01100")
	require.NoError(t, err)

	fwd, err := local.ForwardingSetAgainst(neighbor)
	require.NoError(t, err)
	require.Equal(t, "10010", contrib.Format(fwd))

	for u, ok := fwd.NextSet(0); ok; u, ok = fwd.NextSet(u + 1) {
		has, err := local.HasContribution(uint32(u))
		require.NoError(t, err)
		require.True(t, has)
		has, err = neighbor.HasContribution(uint32(u))
		require.NoError(t, err)
		require.False(t, has)
	}

	// Once complete, everything is forwarded.
	_, err = local.AddContributionString("01001")
	require.NoError(t, err)
	require.True(t, local.HasCompleteKey())

	fwd, err = local.ForwardingSetAgainst(neighbor)
	require.NoError(t, err)
	require.Equal(t, "11111", contrib.Format(fwd))
}

func TestClone_independent(t *testing.T) {
	t.Parallel()

	a := mustNew(t, 4, 0)
	b := a.Clone()

	_, err := b.AddContribution(1)
	require.NoError(t, err)

	require.Equal(t, uint(1), a.ContributionCount())
	require.Equal(t, uint(2), b.ContributionCount())
}
