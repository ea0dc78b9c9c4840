// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TransformationMatrix returns the n×n matrix T such that u = T ū
//  Notes:
//   1) rows of free dofs are rows of the identity
//   2) the row of a slave holds the coefficients of its masters; self-references are skipped
//   3) the column of a slave is zero
func TransformationMatrix(n int, tab *Table) (T *mat.Dense, err error) {
	if err = tab.Validate(n); err != nil {
		return
	}
	T = mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		if !tab.IsSlave(i) {
			T.Set(i, i, 1)
		}
	}
	for k, s := range tab.Slaves {
		masters, coeffs, _ := tab.Constraint(k)
		for p, m := range masters {
			if m != s {
				T.Set(s, m, T.At(s, m)+coeffs[p])
			}
		}
	}
	return
}

// Reference computes the reduced system with dense matrices
//  Output:
//   Ared = Tᵀ A T and bred = Tᵀ b with:
//     prescribed dofs: lifting of values (if lifting), zero rows and columns, unit diagonal, bred = value
//     slave dofs: unit diagonal and bred = 0
func Reference(A *mat.Dense, b *mat.VecDense, tab *Table, bcs *Dirichlet, lifting bool) (Ared *mat.Dense, bred *mat.VecDense, err error) {
	n, c := A.Dims()
	if n != c || b.Len() != n {
		return nil, nil, fmt.Errorf("%w: A is %d×%d and b has %d entries", ErrStructural, n, c, b.Len())
	}
	T, err := TransformationMatrix(n, tab)
	if err != nil {
		return
	}
	var AT mat.Dense
	AT.Mul(A, T)
	Ared = new(mat.Dense)
	Ared.Mul(T.T(), &AT)
	bred = new(mat.VecDense)
	bred.MulVec(T.T(), b)

	// prescribed values
	for k, j := range bcs.dofs() {
		if j < 0 || j >= n {
			return nil, nil, fmt.Errorf("%w: prescribed dof %d is out of range [0,%d)", ErrStructural, j, n)
		}
		g := bcs.Vals[k]
		if lifting {
			for i := 0; i < n; i++ {
				if !bcs.Has(i) {
					bred.SetVec(i, bred.AtVec(i)-Ared.At(i, j)*g)
				}
			}
		}
	}
	for k, j := range bcs.dofs() {
		for i := 0; i < n; i++ {
			Ared.Set(i, j, 0)
			Ared.Set(j, i, 0)
		}
		Ared.Set(j, j, 1)
		bred.SetVec(j, bcs.Vals[k])
	}

	// slaves
	for _, s := range tab.Slaves {
		Ared.Set(s, s, 1)
		bred.SetVec(s, 0)
	}
	return
}

// BackSubstituteDense sets u[s] = Σ c u[m] for all slaves
func BackSubstituteDense(u []float64, tab *Table) {
	for k, s := range tab.Slaves {
		masters, coeffs, _ := tab.Constraint(k)
		v := 0.0
		for p, m := range masters {
			if m != s {
				v += coeffs[p] * u[m]
			}
		}
		u[s] = v
	}
}

// dofs returns the prescribed dofs; nil if o is nil
func (o *Dirichlet) dofs() []int {
	if o == nil {
		return nil
	}
	return o.Dofs
}
