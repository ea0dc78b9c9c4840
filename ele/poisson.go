// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import "github.com/cpmech/gosl/chk"

// Poisson implements the kernels of -div(kappa grad u) = source
//  constants:    kappa, source
//  coefficients: [kappa] per cell tag (optional)
var Poisson = &Kernel{
	Name:   "poisson",
	Bs:     1,
	Keys:   []string{"u"},
	Consts: []string{"kappa", "source"},
	Dflts:  []float64{1, 0},
	Matrix: poissonK,
	Vector: poissonF,
	Facet:  EdgeLoad(1),
}

func init() {
	SetKernel(Poisson)
}

// poissonK computes K[m][n] = ∫ kappa ∇N_m·∇N_n dA
func poissonK(K [][]float64, d *CellData) error {
	if len(K) != Nverts {
		return chk.Err("cell %d: poisson matrix must be %d×%d", d.Cell, Nverts, Nverts)
	}
	area, G, err := gradients(d)
	if err != nil {
		return err
	}
	kap := coeff(d, 0, d.Consts[0])
	for m := 0; m < Nverts; m++ {
		for n := 0; n < Nverts; n++ {
			K[m][n] = kap * area * (G[m][0]*G[n][0] + G[m][1]*G[n][1])
		}
	}
	return nil
}

// poissonF computes f[m] = ∫ N_m source dA
func poissonF(f []float64, d *CellData) error {
	if len(f) != Nverts {
		return chk.Err("cell %d: poisson vector must have %d entries", d.Cell, Nverts)
	}
	area, _, err := gradients(d)
	if err != nil {
		return err
	}
	for m := 0; m < Nverts; m++ {
		f[m] = d.Consts[1] * area / 3.0
	}
	return nil
}
