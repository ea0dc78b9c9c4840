// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package ele implements local element kernels for P1 triangles and the adapter feeding them
package ele

// CellData holds the input of a local kernel
type CellData struct {
	Cell   int         // cell id
	Tag    int         // cell tag
	X      [][]float64 // [ndim][nverts] coordinates
	Coeffs []float64   // packed coefficients of this cell; may be empty
	Consts []float64   // packed constants; same for all cells
	Perm   int         // orientation: +1 if vertices are counter-clockwise, -1 otherwise
	Facet  int         // local facet (edge) index; -1 for cell integrals
	Vals   []float64   // values on facet; e.g. traction components or flux
}

// MatrixKernel computes the local matrix K[ndofs][ndofs] of a cell
//  Note: K is zeroed before the call
type MatrixKernel func(K [][]float64, d *CellData) error

// VectorKernel computes the local vector f[ndofs] of a cell or facet
//  Note: f is zeroed before the call
type VectorKernel func(f []float64, d *CellData) error

// Kernel holds the local kernels of a variational form
type Kernel struct {
	Name   string       // name; e.g. "poisson"
	Bs     int          // number of dofs per vertex
	Keys   []string     // [Bs] keys of dofs; e.g. "ux", "uy"
	Consts []string     // names of constants; e.g. "kappa", "source"
	Dflts  []float64    // default values of constants
	Matrix MatrixKernel // bilinear form
	Vector VectorKernel // linear form over cells
	Facet  VectorKernel // linear form over exterior facets
}

// Ndofs returns the number of dofs per element
func (o *Kernel) Ndofs() int { return Nverts * o.Bs }

// Comp returns the component of the dof with key; -1 if not found
func (o *Kernel) Comp(key string) int {
	for k, name := range o.Keys {
		if name == key {
			return k
		}
	}
	return -1
}

// Nverts is the number of vertices of P1 triangles
const Nverts = 3
