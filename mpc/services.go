// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpc

import "context"

// DofMap maps cells to local dofs
type DofMap interface {
	Cells() []int            // cells of this rank
	CellDofs(cell int) []int // local dofs of cell
	NdofsPerElem() int       // number of dofs of each cell
	BlockSize() int          // number of dofs per vertex
}

// IndexMap maps local dofs (owned followed by ghosts) to global dofs
type IndexMap interface {
	LocalToGlobal(l int) int  // global index of local dof
	GlobalToLocal(g int) int  // local index of global dof; -1 if not available
	OwnedRange() (lo, hi int) // owned global range
	NumOwned() int            // number of owned dofs
	Ghosts() []int            // global indices of ghosts
	GhostOwners() []int       // owning ranks of ghosts
	Owner(g int) int          // rank owning global dof
	SharedRanks(l int) []int  // ranks holding owned dof l as ghost
	GlobalSize() int          // total number of dofs
	BlockSize() int           // number of dofs per vertex
}

// Matrix is a distributed sparse matrix with additive and overwrite insertion
//  Note: vals are row-major blocks of len(rows)×len(cols) values
type Matrix interface {
	AddLocal(rows, cols []int, vals []float64) error // adds block at local indices
	Add(rows, cols []int, vals []float64) error      // adds block at global indices
	Set(rows, cols []int, vals []float64) error      // overwrites block at global indices
	Assemble(ctx context.Context) error              // collective; finalises insertions
}

// Vector is a distributed vector with additive and overwrite insertion
type Vector interface {
	AddLocal(idx []int, vals []float64) error // adds values at local indices
	Add(idx []int, vals []float64) error      // adds values at global indices
	Set(idx []int, vals []float64) error      // overwrites values at owned global indices
	Assemble(ctx context.Context) error       // collective; finalises insertions
}

// Emitter receives blocks of a matrix at global indices
type Emitter interface {
	Add(rows, cols []int, vals []float64) error
}

// VectorEmitter receives values of a vector at global indices
type VectorEmitter interface {
	Add(idx []int, vals []float64) error
}

// CellMatrixFunc computes the local matrix K[ndofs][ndofs] of a cell
type CellMatrixFunc func(cell int, K [][]float64) error

// CellVectorFunc computes the local vector f[ndofs] of a cell
type CellVectorFunc func(cell int, f []float64) error

// FacetVectorFunc computes the local vector f[ndofs] of the facet fid of a cell
type FacetVectorFunc func(cell, fid int, f []float64) error
