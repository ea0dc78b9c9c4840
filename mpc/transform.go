// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpc

import "fmt"

// Transform moves the contributions of slave dofs in local matrices and vectors to their masters
//  Notes:
//   1) a Transform holds scratch memory for cells with n dofs; use one per goroutine
//   2) all entries are sent to the emitter with additive semantics
type Transform struct {
	Tab *Table // constraints
	N   int    // number of dofs per cell

	acopy [][]float64 // [n][n] copy of local matrix
	bcopy []float64   // [n] copy of local vector
	row   []float64   // [n] column of slave moved to master (as a column)
	col   []float64   // [n] row of slave moved to master (as a row)
	gpos  []int       // [n] global dofs with slave replaced by master
	locs  []int       // [nslaves in cell] local positions of slaves
	one   [1]int      // single index
	two   [1]int      // another single index
	val   [1]float64  // single value
}

// NewTransform returns a new Transform for cells with n dofs
func NewTransform(tab *Table, n int) (o *Transform) {
	o = &Transform{Tab: tab, N: n}
	o.acopy = make([][]float64, n)
	for i := range o.acopy {
		o.acopy[i] = make([]float64, n)
	}
	o.bcopy = make([]float64, n)
	o.row = make([]float64, n)
	o.col = make([]float64, n)
	o.gpos = make([]int, n)
	return
}

// locate finds the local positions of the slaves of a cell
func (o *Transform) locate(gdofs, slaves []int) error {
	if len(gdofs) != o.N {
		return fmt.Errorf("%w: cell has %d dofs; %d expected", ErrStructural, len(gdofs), o.N)
	}
	o.locs = o.locs[:0]
	for _, k := range slaves {
		if k < 0 || k >= o.Tab.Nslaves() {
			return fmt.Errorf("%w: slave index %d is out of range [0,%d)", ErrStructural, k, o.Tab.Nslaves())
		}
		s, l := o.Tab.Slaves[k], -1
		for i, g := range gdofs {
			if g == s {
				l = i
				break
			}
		}
		if l < 0 {
			return fmt.Errorf("%w: slave %d does not have a local dof in cell with dofs %v", ErrStructural, s, gdofs)
		}
		o.locs = append(o.locs, l)
	}
	return nil
}

// Matrix moves the rows and columns of the slaves of a cell to their masters
//  Input:
//   A      -- [n][n] local matrix; modified: slave rows and columns are zeroed
//   gdofs  -- [n] global dofs of cell
//   slaves -- indices k of the slaves in the cell (see Table.CellSlaves)
//   out    -- receives the moved entries at global indices
//  Note: A must be inserted afterwards at its original addresses
func (o *Transform) Matrix(A [][]float64, gdofs, slaves []int, out Emitter) (err error) {

	// positions of slaves
	if err = o.locate(gdofs, slaves); err != nil {
		return
	}
	if len(A) != o.N {
		return fmt.Errorf("%w: local matrix has %d rows; %d expected", ErrStructural, len(A), o.N)
	}
	n := o.N
	for i := 0; i < n; i++ {
		if len(A[i]) != n {
			return fmt.Errorf("%w: row %d of local matrix has %d columns; %d expected", ErrStructural, i, len(A[i]), n)
		}
		copy(o.acopy[i], A[i])
	}
	Ac := o.acopy

	// zero slave rows and columns
	for _, l := range o.locs {
		for i := 0; i < n; i++ {
			A[l][i] = 0
			A[i][l] = 0
		}
	}

	// move
	for i, k := range slaves {
		l := o.locs[i]
		s := o.Tab.Slaves[k]
		masters, coeffs, _ := o.Tab.Constraint(k)
		for a, m := range masters {
			c := coeffs[a]
			if m == s || c == 0 {
				continue
			}

			// contributions to master column and master row
			for q := 0; q < n; q++ {
				o.row[q] = c * Ac[q][l]
				o.col[q] = c * Ac[l][q]
			}
			o.row[l], o.col[l] = 0, 0

			// other slaves of the same cell
			for j, k2 := range slaves {
				if j == i {
					continue
				}
				l2 := o.locs[j]
				o.row[l2], o.col[l2] = 0, 0
				if j < i {
					continue
				}
				s2 := o.Tab.Slaves[k2]
				masters2, coeffs2, _ := o.Tab.Constraint(k2)
				for b, m2 := range masters2 {
					c2 := coeffs2[b]
					if m2 == s2 || c2 == 0 {
						continue
					}
					if err = o.put(out, m, m2, c*c2*Ac[l][l2], c*c2*Ac[l2][l]); err != nil {
						return
					}
				}
			}

			// row and column
			copy(o.gpos, gdofs)
			o.gpos[l] = m
			o.one[0] = m
			if err = out.Add(o.gpos, o.one[:], o.row); err != nil {
				return
			}
			if err = out.Add(o.one[:], o.gpos, o.col); err != nil {
				return
			}

			// diagonal
			o.val[0] = c * c * Ac[l][l]
			if err = out.Add(o.one[:], o.one[:], o.val[:]); err != nil {
				return
			}

			// other masters of the same slave
			for b := a + 1; b < len(masters); b++ {
				m2, c2 := masters[b], coeffs[b]
				if m2 == s || c2 == 0 {
					continue
				}
				v := c * c2 * Ac[l][l]
				if err = o.put(out, m, m2, v, v); err != nil {
					return
				}
			}
		}
	}
	return
}

// Vector moves the entries of the slaves of a cell to their masters
//  Input:
//   b      -- [n] local vector; modified: slave entries are zeroed
//   gdofs  -- [n] global dofs of cell
//   slaves -- indices k of the slaves in the cell
//   out    -- receives the moved entries at global indices
func (o *Transform) Vector(b []float64, gdofs, slaves []int, out VectorEmitter) (err error) {
	if err = o.locate(gdofs, slaves); err != nil {
		return
	}
	if len(b) != o.N {
		return fmt.Errorf("%w: local vector has %d entries; %d expected", ErrStructural, len(b), o.N)
	}
	copy(o.bcopy, b)
	for _, l := range o.locs {
		b[l] = 0
	}
	for i, k := range slaves {
		l := o.locs[i]
		s := o.Tab.Slaves[k]
		masters, coeffs, _ := o.Tab.Constraint(k)
		for a, m := range masters {
			c := coeffs[a]
			if m == s || c == 0 {
				continue
			}
			o.one[0] = m
			o.val[0] = c * o.bcopy[l]
			if err = out.Add(o.one[:], o.val[:]); err != nil {
				return
			}
		}
	}
	return
}

// put adds vij at (i, j) and vji at (j, i)
func (o *Transform) put(out Emitter, i, j int, vij, vji float64) (err error) {
	o.one[0], o.two[0], o.val[0] = i, j, vij
	if err = out.Add(o.one[:], o.two[:], o.val[:]); err != nil {
		return
	}
	o.val[0] = vji
	return out.Add(o.two[:], o.one[:], o.val[:])
}
