// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import (
	"math"

	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/utl"
)

// BuildCoordsMatrix returns the coordinate matrix of a particular Cell
func BuildCoordsMatrix(cell *inp.Cell, msh *inp.Mesh) (x [][]float64) {
	x = utl.Alloc(msh.Ndim, len(cell.Verts))
	for i := 0; i < msh.Ndim; i++ {
		for j, v := range cell.Verts {
			x[i][j] = msh.Verts[v].C[i]
		}
	}
	return
}

// SignedArea returns the signed area of a triangle; positive if counter-clockwise
func SignedArea(x [][]float64) float64 {
	return ((x[0][1]-x[0][0])*(x[1][2]-x[1][0]) - (x[0][2]-x[0][0])*(x[1][1]-x[1][0])) / 2.0
}

// gradients returns the area and the (constant) gradients of the shape functions of a triangle
//  G[m] = {dN_m/dx, dN_m/dy}
func gradients(d *CellData) (area float64, G [][]float64, err error) {
	x := d.X
	if len(x) != 2 || len(x[0]) != Nverts || len(x[1]) != Nverts {
		return 0, nil, chk.Err("cell %d: coordinates matrix must be 2×%d", d.Cell, Nverts)
	}
	a := SignedArea(x)
	if math.Abs(a) < 1e-14 {
		return 0, nil, chk.Err("cell %d: degenerate triangle; area = %g", d.Cell, a)
	}
	G = utl.Alloc(Nverts, 2)
	for m := 0; m < Nverts; m++ {
		j, k := (m+1)%Nverts, (m+2)%Nverts
		G[m][0] = (x[1][j] - x[1][k]) / (2.0 * a)
		G[m][1] = (x[0][k] - x[0][j]) / (2.0 * a)
	}
	return math.Abs(a), G, nil
}

// edgeLength returns the length of a triangle edge
func edgeLength(x [][]float64, fid int) float64 {
	lv := inp.FaceLocalVerts(fid)
	dx := x[0][lv[1]] - x[0][lv[0]]
	dy := x[1][lv[1]] - x[1][lv[0]]
	return math.Sqrt(dx*dx + dy*dy)
}

// coeff returns a packed coefficient or the constant if the cell has no coefficients
func coeff(d *CellData, i int, dflt float64) float64 {
	if i < len(d.Coeffs) {
		return d.Coeffs[i]
	}
	return dflt
}
