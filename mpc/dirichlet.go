// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpc

import (
	"sort"

	"github.com/cpmech/gosl/chk"
)

// Dirichlet holds prescribed values u[Dofs[i]] = Vals[i] known by all ranks
type Dirichlet struct {
	Dofs []int     // sorted global dofs
	Vals []float64 // prescribed values
}

// NewDirichlet returns a new set of prescribed values sorted by dof
//  Note: repeated dofs are accepted if their values are equal
func NewDirichlet(dofs []int, vals []float64) (o *Dirichlet, err error) {
	if len(dofs) != len(vals) {
		return nil, chk.Err("there are %d dofs and %d values", len(dofs), len(vals))
	}
	idx := make([]int, len(dofs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dofs[idx[a]] < dofs[idx[b]] })
	o = new(Dirichlet)
	for _, i := range idx {
		n := len(o.Dofs)
		if n > 0 && o.Dofs[n-1] == dofs[i] {
			if o.Vals[n-1] != vals[i] {
				return nil, chk.Err("dof %d has two prescribed values: %g and %g", dofs[i], o.Vals[n-1], vals[i])
			}
			continue
		}
		o.Dofs = append(o.Dofs, dofs[i])
		o.Vals = append(o.Vals, vals[i])
	}
	return
}

// Len returns the number of prescribed dofs
func (o *Dirichlet) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Dofs)
}

// Index returns the position of dof g or -1 if g is not prescribed
func (o *Dirichlet) Index(g int) int {
	if o == nil {
		return -1
	}
	i := sort.SearchInts(o.Dofs, g)
	if i < len(o.Dofs) && o.Dofs[i] == g {
		return i
	}
	return -1
}

// Has tells whether dof g is prescribed
func (o *Dirichlet) Has(g int) bool { return o.Index(g) >= 0 }
