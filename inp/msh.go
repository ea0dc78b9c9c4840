// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inp

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/utl"
)

// constants
const Ztol = 1e-7

// Vert holds vertex data
type Vert struct {
	Id  int       `json:"id"`  // id
	Tag int       `json:"tag"` // tag
	C   []float64 `json:"c"`   // coordinates (size==2)
}

// Cell holds cell data
type Cell struct {
	Id    int    `json:"id"`    // id
	Tag   int    `json:"tag"`   // tag
	Type  string `json:"type"`  // geometry type; only "tri3" is available
	Part  int    `json:"part"`  // partition id
	Verts []int  `json:"verts"` // vertices
	FTags []int  `json:"ftags"` // edge tags
}

// CellFaceId structure
type CellFaceId struct {
	C   *Cell // cell
	Fid int   // face id
}

// Mesh holds a mesh for FE analyses
type Mesh struct {

	// from JSON
	Verts []*Vert `json:"verts"` // vertices
	Cells []*Cell `json:"cells"` // cells

	// derived
	FnamePath  string  // complete filename path
	Ndim       int     // space dimension
	Nparts     int     // number of partitions
	Xmin, Xmax float64 // min and max x-coordinate
	Ymin, Ymax float64 // min and max y-coordinate

	// derived: maps
	VertTag2verts map[int][]*Vert      // vertex tag => set of vertices
	CellTag2cells map[int][]*Cell      // cell tag => set of cells
	FaceTag2cells map[int][]CellFaceId // face tag => set of cells
	FaceTag2verts map[int][]int        // face tag => vertices on tagged face
	Part2cells    map[int][]*Cell      // partition number => set of cells
	Vert2cells    [][]*Cell            // vertex id => cells sharing vertex
}

// ReadMsh reads a mesh for FE analyses
func ReadMsh(dir, fn string) (o *Mesh, err error) {

	// read file
	o = new(Mesh)
	o.FnamePath = filepath.Join(dir, fn)
	b, err := os.ReadFile(o.FnamePath)
	if err != nil {
		return nil, chk.Err("cannot read mesh file %q:\n%v", o.FnamePath, err)
	}

	// decode
	err = json.Unmarshal(b, o)
	if err != nil {
		return nil, chk.Err("cannot unmarshal mesh file %q:\n%v", o.FnamePath, err)
	}

	// derived data
	err = o.Init()
	if err != nil {
		return nil, chk.Err("mesh file %q is invalid:\n%v", o.FnamePath, err)
	}
	return
}

// Init checks input data and computes derived structures
func (o *Mesh) Init() (err error) {

	// check
	if len(o.Verts) < 3 {
		return chk.Err("mesh must have at least 3 vertices; %d is invalid", len(o.Verts))
	}
	if len(o.Cells) < 1 {
		return chk.Err("mesh must have at least one cell")
	}

	// vertex related derived data
	o.Ndim = 2
	o.Xmin, o.Xmax = math.Inf(+1), math.Inf(-1)
	o.Ymin, o.Ymax = math.Inf(+1), math.Inf(-1)
	o.VertTag2verts = make(map[int][]*Vert)
	for i, v := range o.Verts {
		if v.Id != i {
			return chk.Err("vertex ids must be sequential: vertex %d has id %d", i, v.Id)
		}
		if len(v.C) < 2 || (len(v.C) == 3 && math.Abs(v.C[2]) > Ztol) || len(v.C) > 3 {
			return chk.Err("vertex %d: only 2D coordinates are supported; c=%v", i, v.C)
		}
		if v.Tag < 0 {
			o.VertTag2verts[v.Tag] = append(o.VertTag2verts[v.Tag], v)
		}
		o.Xmin = utl.Min(o.Xmin, v.C[0])
		o.Xmax = utl.Max(o.Xmax, v.C[0])
		o.Ymin = utl.Min(o.Ymin, v.C[1])
		o.Ymax = utl.Max(o.Ymax, v.C[1])
	}

	// cell related derived data
	o.CellTag2cells = make(map[int][]*Cell)
	o.FaceTag2cells = make(map[int][]CellFaceId)
	o.FaceTag2verts = make(map[int][]int)
	o.Part2cells = make(map[int][]*Cell)
	o.Vert2cells = make([][]*Cell, len(o.Verts))
	o.Nparts = 0
	for i, c := range o.Cells {
		if c.Id != i {
			return chk.Err("cell ids must be sequential: cell %d has id %d", i, c.Id)
		}
		if c.Tag >= 0 {
			return chk.Err("cell %d: tag must be negative; %d is invalid", i, c.Tag)
		}
		if c.Type != "tri3" {
			return chk.Err("cell %d: geometry type %q is not available", i, c.Type)
		}
		if len(c.Verts) != 3 {
			return chk.Err("cell %d: tri3 requires 3 vertices; %d is invalid", i, len(c.Verts))
		}
		if c.Part < 0 {
			return chk.Err("cell %d: partition must be non-negative; %d is invalid", i, c.Part)
		}
		for _, v := range c.Verts {
			if v < 0 || v >= len(o.Verts) {
				return chk.Err("cell %d: vertex %d is out of range", i, v)
			}
			o.Vert2cells[v] = append(o.Vert2cells[v], c)
		}
		o.CellTag2cells[c.Tag] = append(o.CellTag2cells[c.Tag], c)
		for fid, ftag := range c.FTags {
			if ftag < 0 {
				o.FaceTag2cells[ftag] = append(o.FaceTag2cells[ftag], CellFaceId{c, fid})
				for _, l := range FaceLocalVerts(fid) {
					o.FaceTag2verts[ftag] = append(o.FaceTag2verts[ftag], c.Verts[l])
				}
			}
		}
		o.Part2cells[c.Part] = append(o.Part2cells[c.Part], c)
		if c.Part+1 > o.Nparts {
			o.Nparts = c.Part + 1
		}
	}

	// remove duplicates
	for ftag, verts := range o.FaceTag2verts {
		o.FaceTag2verts[ftag] = uniqueInts(verts)
	}
	return
}

// FaceLocalVerts returns the local vertices of an edge of a tri3 cell
func FaceLocalVerts(fid int) []int {
	return []int{fid, (fid + 1) % 3}
}

// FaceNormal returns the outward unit normal of an edge of a tri3 cell
func (o *Mesh) FaceNormal(c *Cell, fid int) (n []float64) {
	lv := FaceLocalVerts(fid)
	a, b := o.Verts[c.Verts[lv[0]]].C, o.Verts[c.Verts[lv[1]]].C
	p := o.Verts[c.Verts[(fid+2)%3]].C
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Sqrt(dx*dx + dy*dy)
	n = []float64{dy / l, -dx / l}
	if (p[0]-a[0])*n[0]+(p[1]-a[1])*n[1] > 0 {
		n[0], n[1] = -n[0], -n[1]
	}
	return
}

// VertsNear returns the ids of vertices closer than tol to x
func (o *Mesh) VertsNear(x []float64, tol float64) (ids []int) {
	for _, v := range o.Verts {
		if math.Hypot(v.C[0]-x[0], v.C[1]-x[1]) < tol {
			ids = append(ids, v.Id)
		}
	}
	return
}

// VertParts returns the sorted partitions of cells sharing vertex vid
func (o *Mesh) VertParts(vid int) (parts []int) {
	for _, c := range o.Vert2cells[vid] {
		parts = append(parts, c.Part)
	}
	return uniqueInts(parts)
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// uniqueInts returns the sorted unique values in a
func uniqueInts(a []int) (res []int) {
	if len(a) == 0 {
		return
	}
	b := make([]int, len(a))
	copy(b, a)
	sort.Ints(b)
	res = b[:1]
	for i := 1; i < len(b); i++ {
		if b[i] != res[len(res)-1] {
			res = append(res, b[i])
		}
	}
	return
}

// String returns a JSON representation of *Vert
func (o *Vert) String() string {
	l := io.Sf("{\"id\":%4d, \"tag\":%6d, \"c\":[", o.Id, o.Tag)
	for i, x := range o.C {
		if i > 0 {
			l += ", "
		}
		l += io.Sf("%23.15e", x)
	}
	l += "] }"
	return l
}

// String returns a JSON representation of *Cell
func (o *Cell) String() string {
	l := io.Sf("{\"id\":%d, \"tag\":%d, \"type\":%q, \"part\":%d, \"verts\":[", o.Id, o.Tag, o.Type, o.Part)
	for i, x := range o.Verts {
		if i > 0 {
			l += ", "
		}
		l += io.Sf("%d", x)
	}
	l += "], \"ftags\":["
	for i, x := range o.FTags {
		if i > 0 {
			l += ", "
		}
		l += io.Sf("%d", x)
	}
	l += "] }"
	return l
}

// String returns a JSON representation of *Mesh
func (o Mesh) String() string {
	l := "{\n  \"verts\" : [\n"
	for i, x := range o.Verts {
		if i > 0 {
			l += ",\n"
		}
		l += io.Sf("    %v", x)
	}
	l += "\n  ],\n  \"cells\" : [\n"
	for i, x := range o.Cells {
		if i > 0 {
			l += ",\n"
		}
		l += io.Sf("    %v", x)
	}
	l += "\n  ]\n}"
	return l
}
