// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dof

import (
	"math"
	"sort"

	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
)

// Space holds the P1 function space of one rank: bs dofs per vertex
//  Notes:
//   1) every rank knows the whole mesh; cells are assigned to ranks by Cell.Part
//   2) a vertex is owned by the lowest partition among the cells sharing it
//   3) global vertex numbers are assigned rank by rank, following vertex ids
//   4) dof = bs * vertex + component, both for local and global numbers
type Space struct {
	Msh   *inp.Mesh // mesh
	Imap  *IndexMap // dof ownership
	Dofs  *DofMap   // cell => local dofs
	Bs    int       // block size; number of dofs per vertex
	Rank  int       // this rank
	Nproc int       // number of ranks

	vowner []int // [nverts] vertex id => owner rank
	vglob  []int // [nverts] vertex id => global vertex number
	gvert  []int // [nverts] global vertex number => vertex id
	vloc   []int // [nverts] vertex id => local vertex number; -1 if not present
}

// NewSpace builds the function space of rank
func NewSpace(msh *inp.Mesh, rank, nproc, bs int) (o *Space, err error) {

	// check
	if msh.Nparts > nproc {
		return nil, chk.Err("mesh has %d partitions but only %d ranks are available", msh.Nparts, nproc)
	}
	if rank < 0 || rank >= nproc {
		return nil, chk.Err("rank %d is out of range [0,%d)", rank, nproc)
	}

	// vertex owners
	o = &Space{Msh: msh, Bs: bs, Rank: rank, Nproc: nproc}
	nv := len(msh.Verts)
	o.vowner = make([]int, nv)
	for v := 0; v < nv; v++ {
		parts := msh.VertParts(v)
		if len(parts) == 0 {
			return nil, chk.Err("vertex %d does not belong to any cell", v)
		}
		o.vowner[v] = parts[0]
	}

	// global vertex numbers
	counts := make([]int, nproc+1)
	for v := 0; v < nv; v++ {
		counts[o.vowner[v]+1]++
	}
	for r := 0; r < nproc; r++ {
		counts[r+1] += counts[r]
	}
	o.vglob = make([]int, nv)
	o.gvert = make([]int, nv)
	next := append([]int(nil), counts[:nproc]...)
	for v := 0; v < nv; v++ {
		g := next[o.vowner[v]]
		next[o.vowner[v]]++
		o.vglob[v] = g
		o.gvert[g] = v
	}

	// ghosts: vertices of my cells owned by other ranks
	var ghosts []int
	mine := make(map[int]bool)
	for _, c := range msh.Part2cells[rank] {
		for _, v := range c.Verts {
			if o.vowner[v] != rank && !mine[v] {
				mine[v] = true
				for k := 0; k < bs; k++ {
					ghosts = append(ghosts, bs*o.vglob[v]+k)
				}
			}
		}
	}

	// ranks holding my vertices as ghosts
	lo, hi := counts[rank], counts[rank+1]
	shared := make([][]int, bs*(hi-lo))
	for g := lo; g < hi; g++ {
		var others []int
		for _, p := range msh.VertParts(o.gvert[g]) {
			if p != rank {
				others = append(others, p)
			}
		}
		for k := 0; k < bs; k++ {
			shared[bs*(g-lo)+k] = others
		}
	}

	// index map
	ranges := make([]int, nproc+1)
	for r := range ranges {
		ranges[r] = bs * counts[r]
	}
	o.Imap, err = NewIndexMap(rank, bs, ranges, ghosts, shared)
	if err != nil {
		return nil, err
	}

	// local vertex numbers
	o.vloc = make([]int, nv)
	for v := 0; v < nv; v++ {
		o.vloc[v] = -1
		if l := o.Imap.GlobalToLocal(bs * o.vglob[v]); l >= 0 {
			o.vloc[v] = l / bs
		}
	}

	// dofmap
	o.Dofs, err = newDofMap(o)
	return
}

// VertOwner returns the rank owning vertex vid
func (o *Space) VertOwner(vid int) int { return o.vowner[vid] }

// VertLocal returns the local number of vertex vid; -1 if not present in this rank
func (o *Space) VertLocal(vid int) int { return o.vloc[vid] }

// GlobalDof returns the global dof of component comp of vertex vid
func (o *Space) GlobalDof(vid, comp int) int { return o.Bs*o.vglob[vid] + comp }

// DofVert returns the vertex id and component of global dof g
func (o *Space) DofVert(g int) (vid, comp int) { return o.gvert[g/o.Bs], g % o.Bs }

// DofCoords returns the coordinates of global dof g
func (o *Space) DofCoords(g int) []float64 {
	vid, _ := o.DofVert(g)
	return o.Msh.Verts[vid].C
}

// DofCloseTo returns the global dof of component comp of the vertex closest to x
//  Note: returns -1 if no vertex is closer than tol
func (o *Space) DofCloseTo(x []float64, comp int, tol float64) int {
	best, dist := -1, math.Inf(1)
	for _, v := range o.Msh.Verts {
		d := math.Hypot(v.C[0]-x[0], v.C[1]-x[1])
		if d < tol && d < dist {
			best, dist = v.Id, d
		}
	}
	if best < 0 || comp < 0 || comp >= o.Bs {
		return -1
	}
	return o.GlobalDof(best, comp)
}

// TagDofs returns the sorted global dofs of components comps of vertices on edges with tag
func (o *Space) TagDofs(tag int, comps []int) (dofs []int) {
	for _, v := range o.Msh.FaceTag2verts[tag] {
		for _, k := range comps {
			dofs = append(dofs, o.GlobalDof(v, k))
		}
	}
	return sortUnique(dofs)
}

// DofMap maps the cells of one rank to local dofs
type DofMap struct {
	cells []int   // cells in this rank
	dofs  [][]int // [ncells] local dofs of each cell in this rank; nil if not in this rank
	ndofs int     // number of dofs per cell
	bs    int     // block size
}

// Cells returns the ids of cells in this rank
func (o *DofMap) Cells() []int { return o.cells }

// CellDofs returns the local dofs of cell cid
func (o *DofMap) CellDofs(cid int) []int { return o.dofs[cid] }

// NdofsPerElem returns the number of dofs per cell
func (o *DofMap) NdofsPerElem() int { return o.ndofs }

// BlockSize returns the block size
func (o *DofMap) BlockSize() int { return o.bs }

// newDofMap builds the dofmap; dofs are ordered vertex by vertex, component by component
func newDofMap(sp *Space) (o *DofMap, err error) {
	msh := sp.Msh
	o = &DofMap{bs: sp.Bs, ndofs: 3 * sp.Bs}
	o.dofs = make([][]int, len(msh.Cells))
	for _, c := range msh.Part2cells[sp.Rank] {
		ds := make([]int, 0, o.ndofs)
		for _, v := range c.Verts {
			lv := sp.vloc[v]
			if lv < 0 {
				return nil, chk.Err("vertex %d of cell %d is not available in rank %d", v, c.Id, sp.Rank)
			}
			for k := 0; k < sp.Bs; k++ {
				ds = append(ds, sp.Bs*lv+k)
			}
		}
		o.cells = append(o.cells, c.Id)
		o.dofs[c.Id] = ds
	}
	return
}

// sortUnique returns the sorted unique values in a
func sortUnique(a []int) []int {
	if len(a) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(a))
	res := make([]int, 0, len(a))
	for _, x := range a {
		if !seen[x] {
			seen[x] = true
			res = append(res, x)
		}
	}
	sort.Ints(res)
	return res
}
