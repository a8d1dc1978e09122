// Package aggtree contains the aggregation tree
// that a participant uses to detect, in constant time,
// whether it has collected every key contribution.
//
// The tree is a perfect binary tree laid out in one contiguous bitmap,
// in the same array order as a binary heap:
// the root is index 0, and the children of node i are 2i+1 and 2i+2.
// The leaves are the last capacity nodes,
// where capacity is the smallest power of two
// not less than the participant count.
//
// A node is "owned" once every contribution in its subtree is known.
// Leaves past the participant count only exist to keep the tree perfect,
// so they are owned from construction and never block their ancestors.
//
// Tree layout for 5 participants (capacity 8):
//
//	                0
//	        1               2
//	    3       4       5       6
//	  7   8   9  10  11  12  13  14
//	  c0  c1  c2  c3  c4  p   p   p
//
// Nodes 12, 13, 14 (padding) and their aggregate 6 are owned at construction.
package aggtree
