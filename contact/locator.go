// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package contact finds the masters of slave dofs lying on an interface and distributes them among ranks
package contact

import (
	"math"

	"github.com/cpmech/gompc/dof"
	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
)

// Box is an axis-aligned bounding box; Min and Max are nil if the box is empty
type Box struct {
	Min []float64 // lower corner
	Max []float64 // upper corner
}

// Empty tells whether the box contains no point
func (o Box) Empty() bool { return len(o.Min) == 0 }

// Contains tells whether x is inside the box (boundaries included)
func (o Box) Contains(x []float64) bool {
	if o.Empty() || len(x) != len(o.Min) {
		return false
	}
	for i, xi := range x {
		if xi < o.Min[i] || xi > o.Max[i] {
			return false
		}
	}
	return true
}

// Query holds the position of a slave dof
type Query struct {
	Slave int       // global index of slave dof
	X     []float64 // coordinates
	N     []float64 // unit outward normal of the slave surface; may be nil
}

// Match holds the masters found for a query
type Match struct {
	Masters []int     // global indices of masters
	Coeffs  []float64 // coefficients
	Owners  []int     // owning rank of each master
	Dist    float64   // distance between slave and master surface
}

// Locator finds masters on the local candidate cells
type Locator interface {
	Box(cells []int) Box                        // bounding box of the master surface in cells
	Locate(q Query, cells []int) (Match, bool) // closest master surface point in cells
}

// FacetLocator finds masters on P1 edges of master cells
//  Notes:
//   1) master edges are the edges of cells with tag Tag
//   2) an edge is accepted only if its outward normal opposes the normal of the query
//   3) the slave is projected onto the edge; the masters are the edge vertices with
//      the linear interpolation weights of the projection
type FacetLocator struct {
	Sp  *dof.Space // function space
	Tag int        // edge tag of the master surface
	Tol float64    // maximum distance between slave and master edge
}

// NewFacetLocator returns a new locator
func NewFacetLocator(sp *dof.Space, tag int, tol float64) (o *FacetLocator, err error) {
	if tag >= 0 {
		return nil, chk.Err("edge tag of master surface must be negative; %d is invalid", tag)
	}
	if tol <= 0 {
		return nil, chk.Err("tolerance of contact search must be positive; %g is invalid", tol)
	}
	return &FacetLocator{Sp: sp, Tag: tag, Tol: tol}, nil
}

// Cells returns the cells of this rank with at least one master edge
func (o *FacetLocator) Cells() (cells []int) {
	for _, cid := range o.Sp.Dofs.Cells() {
		for _, ftag := range o.Sp.Msh.Cells[cid].FTags {
			if ftag == o.Tag {
				cells = append(cells, cid)
				break
			}
		}
	}
	return
}

// Box returns the bounding box of the master edges in cells, padded by Tol
func (o *FacetLocator) Box(cells []int) (box Box) {
	msh := o.Sp.Msh
	for _, cid := range cells {
		c := msh.Cells[cid]
		for fid, ftag := range c.FTags {
			if ftag != o.Tag {
				continue
			}
			for _, l := range inp.FaceLocalVerts(fid) {
				x := msh.Verts[c.Verts[l]].C
				if box.Empty() {
					box.Min = []float64{x[0], x[1]}
					box.Max = []float64{x[0], x[1]}
					continue
				}
				for i := 0; i < 2; i++ {
					box.Min[i] = math.Min(box.Min[i], x[i])
					box.Max[i] = math.Max(box.Max[i], x[i])
				}
			}
		}
	}
	if !box.Empty() {
		for i := 0; i < 2; i++ {
			box.Min[i] -= o.Tol
			box.Max[i] += o.Tol
		}
	}
	return
}

// Locate returns the masters on the closest accepted edge
//  Note: the component of the masters is the component of the slave
func (o *FacetLocator) Locate(q Query, cells []int) (res Match, found bool) {
	msh, bs := o.Sp.Msh, o.Sp.Bs
	comp := q.Slave % bs
	var va, vb int
	var t float64
	res.Dist = math.Inf(1)
	for _, cid := range cells {
		c := msh.Cells[cid]
		for fid, ftag := range c.FTags {
			if ftag != o.Tag {
				continue
			}
			n := msh.FaceNormal(c, fid)
			if len(q.N) == 2 && q.N[0]*n[0]+q.N[1]*n[1] >= 0 {
				continue
			}
			lv := inp.FaceLocalVerts(fid)
			a, b := msh.Verts[c.Verts[lv[0]]].C, msh.Verts[c.Verts[lv[1]]].C
			ta, d := project(q.X, a, b)
			if d <= o.Tol && d < res.Dist {
				va, vb, t = c.Verts[lv[0]], c.Verts[lv[1]], ta
				res.Dist, found = d, true
			}
		}
	}
	if !found {
		return Match{}, false
	}
	for _, p := range []struct {
		v int
		w float64
	}{{va, 1 - t}, {vb, t}} {
		if math.Abs(p.w) < 1e-14 {
			continue
		}
		res.Masters = append(res.Masters, o.Sp.GlobalDof(p.v, comp))
		res.Coeffs = append(res.Coeffs, p.w)
		res.Owners = append(res.Owners, o.Sp.VertOwner(p.v))
	}
	return
}

// project returns the parameter t in [0,1] of the point of segment ab closest to x and the distance
func project(x, a, b []float64) (t, dist float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 > 0 {
		t = ((x[0]-a[0])*dx + (x[1]-a[1])*dy) / l2
	}
	t = math.Max(0, math.Min(1, t))
	return t, math.Hypot(x[0]-a[0]-t*dx, x[1]-a[1]-t*dy)
}
