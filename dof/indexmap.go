// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package dof implements the numbering of degrees of freedom of distributed meshes
package dof

import (
	"sort"

	"github.com/cpmech/gosl/chk"
)

// IndexMap holds the ownership of degrees of freedom (dofs) of one rank
//  Notes:
//   1) local indices of owned dofs come first; ghosts follow sorted by global index
//   2) each rank owns a contiguous range of global indices
type IndexMap struct {
	rank   int         // this rank
	size   int         // number of ranks
	bs     int         // block size
	ranges []int       // [size+1] owned range of every rank
	l2g    []int       // [nlocal] local => global
	g2l    map[int]int // global => local (owned and ghosts)
	gowner []int       // [nghosts] owner of ghosts
	shared [][]int     // [nowned] other ranks holding an owned dof as ghost
}

// NewIndexMap returns a new index map
//  ranges  -- [size+1] owned range of every rank
//  ghosts  -- global indices of ghosts (any order)
//  shared  -- [nowned] ranks holding each owned dof as ghost; may be nil
func NewIndexMap(rank, bs int, ranges, ghosts []int, shared [][]int) (o *IndexMap, err error) {
	size := len(ranges) - 1
	if size < 1 || rank < 0 || rank >= size {
		return nil, chk.Err("rank %d is incompatible with ranges %v", rank, ranges)
	}
	if bs < 1 {
		return nil, chk.Err("block size must be positive; %d is invalid", bs)
	}
	for r := 0; r < size; r++ {
		if ranges[r+1] < ranges[r] {
			return nil, chk.Err("ranges must be non-decreasing; %v is invalid", ranges)
		}
	}
	o = &IndexMap{rank: rank, size: size, bs: bs, ranges: ranges, g2l: make(map[int]int)}
	lo, hi := ranges[rank], ranges[rank+1]
	for g := lo; g < hi; g++ {
		o.g2l[g] = len(o.l2g)
		o.l2g = append(o.l2g, g)
	}
	gs := append([]int(nil), ghosts...)
	sort.Ints(gs)
	for i, g := range gs {
		if i > 0 && g == gs[i-1] {
			continue
		}
		if g >= lo && g < hi {
			return nil, chk.Err("ghost %d is owned by rank %d", g, rank)
		}
		owner := o.Owner(g)
		if owner < 0 {
			return nil, chk.Err("ghost %d is out of range", g)
		}
		o.g2l[g] = len(o.l2g)
		o.l2g = append(o.l2g, g)
		o.gowner = append(o.gowner, owner)
	}
	o.shared = shared
	if o.shared == nil {
		o.shared = make([][]int, hi-lo)
	}
	if len(o.shared) != hi-lo {
		return nil, chk.Err("shared ranks must be given for all %d owned dofs; %d is invalid", hi-lo, len(o.shared))
	}
	return
}

// Rank returns this rank
func (o *IndexMap) Rank() int { return o.rank }

// Size returns the number of ranks
func (o *IndexMap) Size() int { return o.size }

// BlockSize returns the block size
func (o *IndexMap) BlockSize() int { return o.bs }

// Ranges returns the owned range of every rank
func (o *IndexMap) Ranges() []int { return o.ranges }

// OwnedRange returns the global range [lo, hi) owned by this rank
func (o *IndexMap) OwnedRange() (lo, hi int) { return o.ranges[o.rank], o.ranges[o.rank+1] }

// NumOwned returns the number of owned dofs
func (o *IndexMap) NumOwned() int { return o.ranges[o.rank+1] - o.ranges[o.rank] }

// NumLocal returns the number of owned dofs plus ghosts
func (o *IndexMap) NumLocal() int { return len(o.l2g) }

// GlobalSize returns the total number of dofs
func (o *IndexMap) GlobalSize() int { return o.ranges[o.size] }

// Ghosts returns the global indices of ghosts
func (o *IndexMap) Ghosts() []int { return o.l2g[o.NumOwned():] }

// GhostOwners returns the owner of each ghost
func (o *IndexMap) GhostOwners() []int { return o.gowner }

// LocalToGlobal converts a local index into a global one
func (o *IndexMap) LocalToGlobal(l int) int { return o.l2g[l] }

// GlobalToLocal converts a global index into a local one; returns -1 if not present in this rank
func (o *IndexMap) GlobalToLocal(g int) int {
	if l, ok := o.g2l[g]; ok {
		return l
	}
	return -1
}

// IsOwned tells whether global index g is owned by this rank
func (o *IndexMap) IsOwned(g int) bool {
	return g >= o.ranges[o.rank] && g < o.ranges[o.rank+1]
}

// Owner returns the rank owning global index g; returns -1 if g is out of range
func (o *IndexMap) Owner(g int) int {
	if g < 0 || g >= o.ranges[o.size] {
		return -1
	}
	return sort.SearchInts(o.ranges, g+1) - 1
}

// SharedRanks returns the other ranks holding the owned local index l as ghost
func (o *IndexMap) SharedRanks(l int) []int {
	if l < 0 || l >= len(o.shared) {
		return nil
	}
	return o.shared[l]
}
