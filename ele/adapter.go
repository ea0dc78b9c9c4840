// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import (
	"errors"
	"fmt"

	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
)

// ErrShape is returned when a local matrix or vector does not have the shape required by the kernel
var ErrShape = errors.New("ele: local array has wrong shape")

// Adapter packs the geometry, coefficients, constants and orientation of cells and calls the kernels
//  Note: Adapter does not keep state between calls and can be used by many goroutines
type Adapter struct {
	Msh    *inp.Mesh         // mesh
	Kernel *Kernel           // kernels
	Consts []float64         // packed constants
	ByTag  map[int][]float64 // packed coefficients by cell tag
}

// NewAdapter returns a new adapter
func NewAdapter(msh *inp.Mesh, kernel *Kernel, consts []float64, bytag map[int][]float64) (o *Adapter, err error) {
	if len(consts) != len(kernel.Consts) {
		return nil, chk.Err("kernel %q needs %d constants %v; %d given", kernel.Name, len(kernel.Consts), kernel.Consts, len(consts))
	}
	if msh.Ndim != 2 {
		return nil, chk.Err("kernel %q needs a 2D mesh", kernel.Name)
	}
	for _, c := range msh.Cells {
		if len(c.Verts) != Nverts {
			return nil, chk.Err("cell %d has %d vertices; kernel %q needs %d", c.Id, len(c.Verts), kernel.Name, Nverts)
		}
	}
	return &Adapter{Msh: msh, Kernel: kernel, Consts: consts, ByTag: bytag}, nil
}

// AdapterFromSim returns the adapter of the kernel selected in the simulation data
func AdapterFromSim(sim *inp.Simulation) (o *Adapter, err error) {
	kernel, err := GetKernel(sim.Data.Kernel)
	if err != nil {
		return
	}
	consts := make([]float64, len(kernel.Consts))
	for i, name := range kernel.Consts {
		consts[i] = sim.KernelConst(name, kernel.Dflts[i])
		if name == "pstress" && sim.Kernel.Pstrss {
			consts[i] = 1
		}
	}
	bytag := make(map[int][]float64)
	for _, p := range sim.Kernel.ByTag {
		if _, ok := bytag[p.Tag]; ok {
			return nil, chk.Err("coefficients of cells with tag %d are given twice", p.Tag)
		}
		bytag[p.Tag] = p.Coeffs
	}
	return NewAdapter(sim.Msh, kernel, consts, bytag)
}

// Data returns the packed input of a kernel
//  facet -- local facet index or -1 for cell integrals
//  vals  -- values on facet; may be nil
func (o *Adapter) Data(cid, facet int, vals []float64) (d *CellData, err error) {
	if cid < 0 || cid >= len(o.Msh.Cells) {
		return nil, chk.Err("cell %d is out of range [0,%d)", cid, len(o.Msh.Cells))
	}
	cell := o.Msh.Cells[cid]
	d = &CellData{
		Cell:   cid,
		Tag:    cell.Tag,
		X:      BuildCoordsMatrix(cell, o.Msh),
		Coeffs: o.ByTag[cell.Tag],
		Consts: o.Consts,
		Perm:   1,
		Facet:  facet,
		Vals:   vals,
	}
	if SignedArea(d.X) < 0 {
		d.Perm = -1
	}
	return
}

// Matrix computes the local matrix of a cell
func (o *Adapter) Matrix(cid int, K [][]float64) (err error) {
	if o.Kernel.Matrix == nil {
		return chk.Err("kernel %q does not have a bilinear form", o.Kernel.Name)
	}
	n := o.Kernel.Ndofs()
	if len(K) != n {
		return fmt.Errorf("%w: cell %d: matrix has %d rows; %d required", ErrShape, cid, len(K), n)
	}
	for i := range K {
		if len(K[i]) != n {
			return fmt.Errorf("%w: cell %d: row %d has %d columns; %d required", ErrShape, cid, i, len(K[i]), n)
		}
		for j := range K[i] {
			K[i][j] = 0
		}
	}
	d, err := o.Data(cid, -1, nil)
	if err != nil {
		return
	}
	return o.Kernel.Matrix(K, d)
}

// Vector computes the local vector of a cell
func (o *Adapter) Vector(cid int, f []float64) (err error) {
	if o.Kernel.Vector == nil {
		return chk.Err("kernel %q does not have a linear form", o.Kernel.Name)
	}
	if err = o.zero(cid, f); err != nil {
		return
	}
	d, err := o.Data(cid, -1, nil)
	if err != nil {
		return
	}
	return o.Kernel.Vector(f, d)
}

// Facet computes the local vector of an exterior facet of a cell
func (o *Adapter) Facet(cid, fid int, vals, f []float64) (err error) {
	if o.Kernel.Facet == nil {
		return chk.Err("kernel %q does not have a facet form", o.Kernel.Name)
	}
	if err = o.zero(cid, f); err != nil {
		return
	}
	d, err := o.Data(cid, fid, vals)
	if err != nil {
		return
	}
	return o.Kernel.Facet(f, d)
}

func (o *Adapter) zero(cid int, f []float64) error {
	if n := o.Kernel.Ndofs(); len(f) != n {
		return fmt.Errorf("%w: cell %d: vector has %d entries; %d required", ErrShape, cid, len(f), n)
	}
	for i := range f {
		f[i] = 0
	}
	return nil
}
