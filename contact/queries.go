// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contact

import (
	"math"

	"github.com/cpmech/gompc/dof"
)

// SlaveQueries returns the queries of the slave dofs owned by this rank and the slave dofs held as ghosts
//  tag  -- edge tag of the slave surface
//  skip -- tells whether a dof must not become a slave (e.g. prescribed); may be nil
func SlaveQueries(sp *dof.Space, tag int, skip func(g int) bool) (queries []Query, ghosts []int) {
	msh := sp.Msh

	// vertex normals
	normals := make(map[int][]float64)
	for _, cf := range msh.FaceTag2cells[tag] {
		n := msh.FaceNormal(cf.C, cf.Fid)
		for _, l := range []int{cf.Fid, (cf.Fid + 1) % 3} {
			v := cf.C.Verts[l]
			if normals[v] == nil {
				normals[v] = []float64{0, 0}
			}
			normals[v][0] += n[0]
			normals[v][1] += n[1]
		}
	}

	// queries and ghosts
	for _, v := range msh.FaceTag2verts[tag] {
		if sp.VertLocal(v) < 0 {
			continue
		}
		n := normals[v]
		if l := math.Hypot(n[0], n[1]); l > 0 {
			n = []float64{n[0] / l, n[1] / l}
		}
		for k := 0; k < sp.Bs; k++ {
			g := sp.GlobalDof(v, k)
			if skip != nil && skip(g) {
				continue
			}
			if sp.VertOwner(v) == sp.Rank {
				queries = append(queries, Query{Slave: g, X: msh.Verts[v].C, N: n})
			} else {
				ghosts = append(ghosts, g)
			}
		}
	}
	return
}
