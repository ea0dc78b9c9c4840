// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import "github.com/cpmech/gosl/chk"

// Elastic implements the kernels of linear elasticity in plane-strain or plane-stress
//  constants:    E, nu, bx, by, pstress (1 => plane-stress)
//  coefficients: [E, nu] per cell tag (optional)
//  dofs:         ux, uy per vertex
var Elastic = &Kernel{
	Name:   "elastic",
	Bs:     2,
	Keys:   []string{"ux", "uy"},
	Consts: []string{"E", "nu", "bx", "by", "pstress"},
	Dflts:  []float64{1, 0.3, 0, 0, 0},
	Matrix: elasticK,
	Vector: elasticF,
	Facet:  EdgeLoad(2),
}

func init() {
	SetKernel(Elastic)
}

// ElasticModulus returns the 3×3 modulus matrix D such that {sx,sy,sxy} = D {ex,ey,gxy}
func ElasticModulus(E, nu float64, pstress bool) (D [][]float64) {
	if pstress {
		c := E / (1.0 - nu*nu)
		return [][]float64{
			{c, c * nu, 0},
			{c * nu, c, 0},
			{0, 0, c * (1.0 - nu) / 2.0},
		}
	}
	c := E / ((1.0 + nu) * (1.0 - 2.0*nu))
	return [][]float64{
		{c * (1.0 - nu), c * nu, 0},
		{c * nu, c * (1.0 - nu), 0},
		{0, 0, c * (1.0 - 2.0*nu) / 2.0},
	}
}

// elasticK computes K = ∫ Bᵀ D B dA with unit thickness
func elasticK(K [][]float64, d *CellData) error {
	n := 2 * Nverts
	if len(K) != n {
		return chk.Err("cell %d: elastic matrix must be %d×%d", d.Cell, n, n)
	}
	area, G, err := gradients(d)
	if err != nil {
		return err
	}
	E := coeff(d, 0, d.Consts[0])
	nu := coeff(d, 1, d.Consts[1])
	if nu <= -1 || nu >= 0.5 {
		return chk.Err("cell %d: Poisson's coefficient must be in (-1, 0.5); nu = %g", d.Cell, nu)
	}
	D := ElasticModulus(E, nu, d.Consts[4] > 0)

	// B[3][6]
	B := [3][2 * Nverts]float64{}
	for m := 0; m < Nverts; m++ {
		B[0][2*m] = G[m][0]
		B[1][2*m+1] = G[m][1]
		B[2][2*m] = G[m][1]
		B[2][2*m+1] = G[m][0]
	}

	// K = area * Bᵀ D B
	var DB [3][2 * Nverts]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < 3; k++ {
				DB[i][j] += D[i][k] * B[k][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s := 0.0
			for k := 0; k < 3; k++ {
				s += B[k][i] * DB[k][j]
			}
			K[i][j] = area * s
		}
	}
	return nil
}

// elasticF computes f = ∫ Nᵀ b dA
func elasticF(f []float64, d *CellData) error {
	if len(f) != 2*Nverts {
		return chk.Err("cell %d: elastic vector must have %d entries", d.Cell, 2*Nverts)
	}
	area, _, err := gradients(d)
	if err != nil {
		return err
	}
	for m := 0; m < Nverts; m++ {
		f[2*m] = d.Consts[2] * area / 3.0
		f[2*m+1] = d.Consts[3] * area / 3.0
	}
	return nil
}
