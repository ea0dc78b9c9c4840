// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inp

import (
	"github.com/cpmech/gosl/chk"
)

// edge tags of generated rectangles
const (
	TagBottom = -10 // y == ymin
	TagRight  = -11 // x == xmax
	TagTop    = -12 // y == ymax
	TagLeft   = -13 // x == xmin
)

// GenData holds the input data to generate structured meshes
type GenData struct {
	Type   string  `json:"type" yaml:"type"`     // "rect" or "tied"
	Nx     int     `json:"nx" yaml:"nx"`         // number of divisions along x
	Ny     int     `json:"ny" yaml:"ny"`         // number of divisions along y
	NxTop  int     `json:"nxtop" yaml:"nxtop"`   // "tied": number of divisions along x of the upper block
	Xmin   float64 `json:"xmin" yaml:"xmin"`     // min x-coordinate
	Xmax   float64 `json:"xmax" yaml:"xmax"`     // max x-coordinate
	Ymin   float64 `json:"ymin" yaml:"ymin"`     // min y-coordinate
	Ymax   float64 `json:"ymax" yaml:"ymax"`     // max y-coordinate
	Nparts int     `json:"nparts" yaml:"nparts"` // number of partitions
}

// Generate generates the mesh defined by GenData
func (o *GenData) Generate() (msh *Mesh, err error) {
	if o.Xmax <= o.Xmin || o.Ymax <= o.Ymin {
		return nil, chk.Err("invalid limits: x=[%g,%g] y=[%g,%g]", o.Xmin, o.Xmax, o.Ymin, o.Ymax)
	}
	nparts := o.Nparts
	if nparts < 1 {
		nparts = 1
	}
	switch o.Type {
	case "", "rect":
		return GenRect(o.Nx, o.Ny, o.Xmin, o.Xmax, o.Ymin, o.Ymax, nparts)
	case "tied":
		nxtop := o.NxTop
		if nxtop < 1 {
			nxtop = o.Nx
		}
		return GenTied(o.Nx, nxtop, o.Ny, o.Xmin, o.Xmax, o.Ymin, o.Ymax, nparts)
	}
	return nil, chk.Err("mesh generator %q is not available", o.Type)
}

// GenRect generates a structured mesh of tri3 cells over a rectangle
//  Notes:
//   1) each rectangle (i,j) is split along its diagonal into two cells
//   2) edges are tagged with TagBottom, TagRight, TagTop, TagLeft
//   3) cells are partitioned into vertical strips
func GenRect(nx, ny int, xmin, xmax, ymin, ymax float64, nparts int) (o *Mesh, err error) {
	o = new(Mesh)
	err = addBlock(o, nx, ny, xmin, xmax, ymin, ymax, -1, [4]int{TagBottom, TagRight, TagTop, TagLeft})
	if err != nil {
		return nil, err
	}
	partitionStrips(o, nparts)
	err = o.Init()
	return
}

// GenTied generates two non-matching blocks sharing the line y = (ymin+ymax)/2
//  Notes:
//   1) the lower block has cell tag -1 and its upper edge is tagged TagTop
//   2) the upper block has cell tag -2 and its lower edge is tagged TagBottom-10
//   3) vertices on the interface are duplicated; they are not connected
//   4) left edges are TagLeft, right edges are TagRight
func GenTied(nxbot, nxtop, ny int, xmin, xmax, ymin, ymax float64, nparts int) (o *Mesh, err error) {
	if ny < 2 {
		return nil, chk.Err("tied mesh requires ny >= 2; %d is invalid", ny)
	}
	o = new(Mesh)
	ymid := (ymin + ymax) / 2.0
	nyb := ny / 2
	err = addBlock(o, nxbot, nyb, xmin, xmax, ymin, ymid, -1, [4]int{TagBottom, TagRight, TagTop, TagLeft})
	if err != nil {
		return nil, err
	}
	err = addBlock(o, nxtop, ny-nyb, xmin, xmax, ymid, ymax, -2, [4]int{TagBottom - 10, TagRight, TagTop - 10, TagLeft})
	if err != nil {
		return nil, err
	}
	partitionStrips(o, nparts)
	err = o.Init()
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// addBlock appends a block of nx×ny rectangles (each split into two tri3) to the mesh
func addBlock(o *Mesh, nx, ny int, xmin, xmax, ymin, ymax float64, ctag int, etags [4]int) (err error) {
	if nx < 1 || ny < 1 {
		return chk.Err("number of divisions must be positive; nx=%d ny=%d", nx, ny)
	}
	v0 := len(o.Verts)
	dx := (xmax - xmin) / float64(nx)
	dy := (ymax - ymin) / float64(ny)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			x := xmin + float64(i)*dx
			y := ymin + float64(j)*dy
			if i == nx {
				x = xmax
			}
			if j == ny {
				y = ymax
			}
			o.Verts = append(o.Verts, &Vert{Id: len(o.Verts), C: []float64{x, y}})
		}
	}
	vid := func(i, j int) int { return v0 + j*(nx+1) + i }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a, b, c, d := vid(i, j), vid(i+1, j), vid(i+1, j+1), vid(i, j+1)
			lower := &Cell{Id: len(o.Cells), Tag: ctag, Type: "tri3", Verts: []int{a, b, c}, FTags: []int{0, 0, 0}}
			if j == 0 {
				lower.FTags[0] = etags[0]
			}
			if i == nx-1 {
				lower.FTags[1] = etags[1]
			}
			o.Cells = append(o.Cells, lower)
			upper := &Cell{Id: len(o.Cells), Tag: ctag, Type: "tri3", Verts: []int{a, c, d}, FTags: []int{0, 0, 0}}
			if j == ny-1 {
				upper.FTags[1] = etags[2]
			}
			if i == 0 {
				upper.FTags[2] = etags[3]
			}
			o.Cells = append(o.Cells, upper)
		}
	}
	return
}

// partitionStrips assigns cells to nparts vertical strips of equal width
func partitionStrips(o *Mesh, nparts int) {
	xmin, xmax := o.Verts[0].C[0], o.Verts[0].C[0]
	for _, v := range o.Verts {
		xmin = min(xmin, v.C[0])
		xmax = max(xmax, v.C[0])
	}
	w := (xmax - xmin) / float64(nparts)
	for _, c := range o.Cells {
		xc := 0.0
		for _, v := range c.Verts {
			xc += o.Verts[v].C[0] / 3.0
		}
		p := int((xc - xmin) / w)
		if p >= nparts {
			p = nparts - 1
		}
		c.Part = p
	}
}
