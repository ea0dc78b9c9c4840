// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import (
	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
)

// EdgeLoad computes the equivalent nodal values of a constant load distributed over an edge
//  d.Vals holds one value per dof of a vertex; e.g. {tx, ty} or {qn}
func EdgeLoad(bs int) VectorKernel {
	return func(f []float64, d *CellData) error {
		if d.Facet < 0 || d.Facet >= Nverts {
			return chk.Err("cell %d: invalid facet %d", d.Cell, d.Facet)
		}
		if len(d.Vals) != bs {
			return chk.Err("cell %d: edge load needs %d values; %d given", d.Cell, bs, len(d.Vals))
		}
		if len(f) != Nverts*bs {
			return chk.Err("cell %d: vector must have %d entries", d.Cell, Nverts*bs)
		}
		hl := edgeLength(d.X, d.Facet) / 2.0
		for _, m := range inp.FaceLocalVerts(d.Facet) {
			for k := 0; k < bs; k++ {
				f[bs*m+k] += hl * d.Vals[k]
			}
		}
		return nil
	}
}
