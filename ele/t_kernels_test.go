// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import (
	"errors"
	"testing"

	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/utl"
	"github.com/stretchr/testify/require"
)

func verbose() {
	io.Verbose = true
	chk.Verbose = true
}

func Test_poisson01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("poisson01. right triangle")

	d := &CellData{
		X:      [][]float64{{0, 1, 0}, {0, 0, 1}},
		Consts: []float64{1, 6},
		Facet:  -1,
	}
	K := utl.Alloc(3, 3)
	err := Poisson.Matrix(K, d)
	if err != nil {
		tst.Errorf("Matrix failed:\n%v", err)
		return
	}
	chk.Deep2(tst, "K", 1e-15, K, [][]float64{
		{1.0, -0.5, -0.5},
		{-0.5, 0.5, 0.0},
		{-0.5, 0.0, 0.5},
	})

	// coefficients have precedence over constants
	d.Coeffs = []float64{2}
	err = Poisson.Matrix(K, d)
	require.NoError(tst, err)
	chk.Float64(tst, "K00", 1e-15, K[0][0], 2)

	f := make([]float64, 3)
	err = Poisson.Vector(f, d)
	require.NoError(tst, err)
	chk.Array(tst, "f", 1e-15, f, []float64{1, 1, 1})

	// flux on edge 0
	d.Facet, d.Vals = 0, []float64{4}
	for i := range f {
		f[i] = 0
	}
	err = Poisson.Facet(f, d)
	require.NoError(tst, err)
	chk.Array(tst, "fb", 1e-15, f, []float64{2, 2, 0})

	// degenerate
	d.X = [][]float64{{0, 1, 2}, {0, 0, 0}}
	err = Poisson.Matrix(K, d)
	require.Error(tst, err)
}

func Test_elastic01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("elastic01. rigid body modes and symmetry")

	for _, pstress := range []float64{0, 1} {
		d := &CellData{
			X:      [][]float64{{0.2, 1.3, 0.1}, {0.1, 0.4, 1.1}},
			Consts: []float64{1000, 0.25, 0, -10, pstress},
			Facet:  -1,
		}
		K := utl.Alloc(6, 6)
		err := Elastic.Matrix(K, d)
		if err != nil {
			tst.Errorf("Matrix failed:\n%v", err)
			return
		}
		tx := []float64{1, 0, 1, 0, 1, 0}
		ty := []float64{0, 1, 0, 1, 0, 1}
		rz := []float64{-0.1, 0.2, -0.4, 1.3, -1.1, 0.1} // {-y, x}
		for i := 0; i < 6; i++ {
			sx, sy, sr := 0.0, 0.0, 0.0
			for j := 0; j < 6; j++ {
				sx += K[i][j] * tx[j]
				sy += K[i][j] * ty[j]
				sr += K[i][j] * rz[j]
				chk.Float64(tst, io.Sf("K%d%d-K%d%d", i, j, j, i), 1e-11, K[i][j], K[j][i])
			}
			chk.Float64(tst, io.Sf("Ktx[%d]", i), 1e-11, sx, 0)
			chk.Float64(tst, io.Sf("Kty[%d]", i), 1e-11, sy, 0)
			chk.Float64(tst, io.Sf("Krz[%d]", i), 1e-11, sr, 0)
		}

		// body force: total = by * area
		f := make([]float64, 6)
		err = Elastic.Vector(f, d)
		require.NoError(tst, err)
		area := SignedArea(d.X)
		chk.Float64(tst, "sum fy", 1e-13, f[1]+f[3]+f[5], -10*area)
		chk.Float64(tst, "sum fx", 1e-15, f[0]+f[2]+f[4], 0)
	}

	// invalid Poisson's coefficient
	d := &CellData{X: [][]float64{{0, 1, 0}, {0, 0, 1}}, Consts: []float64{1, 0.5, 0, 0, 0}, Facet: -1}
	err := Elastic.Matrix(utl.Alloc(6, 6), d)
	require.Error(tst, err)
}

func Test_adapter01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("adapter01. packing of cell data")

	msh, err := inp.GenRect(1, 1, 0, 1, 0, 1, 1)
	require.NoError(tst, err)
	_, err = NewAdapter(msh, Poisson, []float64{1}, nil)
	require.Error(tst, err)

	a, err := NewAdapter(msh, Poisson, []float64{1, 0}, map[int][]float64{-1: {3}})
	require.NoError(tst, err)

	// lower cell {(0,0), (1,0), (1,1)}
	d, err := a.Data(0, -1, nil)
	require.NoError(tst, err)
	chk.Deep2(tst, "X", 1e-17, d.X, [][]float64{{0, 1, 1}, {0, 0, 1}})
	chk.Array(tst, "coeffs", 1e-17, d.Coeffs, []float64{3})
	chk.Int(tst, "perm", d.Perm, 1)
	K := utl.Alloc(3, 3)
	err = a.Matrix(0, K)
	require.NoError(tst, err)
	chk.Deep2(tst, "K", 1e-15, K, [][]float64{
		{1.5, -1.5, 0.0},
		{-1.5, 3.0, -1.5},
		{0.0, -1.5, 1.5},
	})

	// wrong shapes
	err = a.Matrix(0, utl.Alloc(3, 2))
	require.True(tst, errors.Is(err, ErrShape))
	err = a.Vector(0, make([]float64, 6))
	require.True(tst, errors.Is(err, ErrShape))
	err = a.Matrix(7, K)
	require.Error(tst, err)

	// clockwise cell
	msh.Cells[1].Verts[1], msh.Cells[1].Verts[2] = msh.Cells[1].Verts[2], msh.Cells[1].Verts[1]
	d, err = a.Data(1, -1, nil)
	require.NoError(tst, err)
	chk.Int(tst, "perm", d.Perm, -1)

	// right edge of lower cell
	f := make([]float64, 3)
	err = a.Facet(0, 1, []float64{2}, f)
	require.NoError(tst, err)
	chk.Array(tst, "fb", 1e-15, f, []float64{0, 1, 1})
}

func Test_factory01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("factory01. kernels")

	k, err := GetKernel("elastic")
	require.NoError(tst, err)
	chk.Int(tst, "ndofs", k.Ndofs(), 6)
	chk.Int(tst, "comp of uy", k.Comp("uy"), 1)
	chk.Int(tst, "comp of u", k.Comp("u"), -1)
	chk.Int(tst, "comp of u (poisson)", Poisson.Comp("u"), 0)
	_, err = GetKernel("navier-stokes")
	require.Error(tst, err)
	require.Equal(tst, []string{"elastic", "poisson"}, KernelNames())
	require.Panics(tst, func() { SetKernel(&Kernel{Name: "poisson"}) })
}
