// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package ana implements analytical solutions
package ana

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
)

// Uniaxial computes the solution to a linear elastic plate under uniform traction
//
//     △ o-----------o →
//     △ |           | →
//     △ |    E, ν   | →  q     uniform stress σx = q; σy = σxy = 0
//  h  △ |           | →        plane-strain or plane-stress
//     △ |           | →
//     △ o-----------o →
//       ○  ○  ○  ○  ○
//             w
//  Note: the displacement field is linear; thus it is exact with P1 elements
type Uniaxial struct {
	// input
	E       float64 // Young's modulus
	ν       float64 // Poisson's coefficient
	q       float64 // traction (positive means tension)
	pstress bool    // plane-stress instead of plane-strain

	// derived
	εx float64 // horizontal strain
	εy float64 // vertical strain
}

// Init initialises this structure
func (o *Uniaxial) Init(prms dbf.Params) {

	// default values
	o.E = 1000.0
	o.ν = 0.25
	o.q = 1.0

	// parameters
	for _, p := range prms {
		switch p.N {
		case "E":
			o.E = p.V
		case "nu":
			o.ν = p.V
		case "q":
			o.q = p.V
		case "pstress":
			o.pstress = p.V > 0
		}
	}

	// derived
	if o.pstress {
		o.εx = o.q / o.E
		o.εy = -o.ν * o.q / o.E
		return
	}
	o.εx = o.q * (1.0 - o.ν*o.ν) / o.E
	o.εy = -o.ν * (1.0 + o.ν) * o.q / o.E
}

// Stress computes stress components {σx, σy, σxy}
func (o Uniaxial) Stress(x []float64) (σ []float64) {
	return []float64{o.q, 0, 0}
}

// Displ computes displacement components
func (o Uniaxial) Displ(x []float64) (u []float64) {
	return []float64{o.εx * x[0], o.εy * x[1]}
}

// CheckDispl checks displacements
func (o Uniaxial) CheckDispl(tst *testing.T, u, x []float64, tol float64) {
	uana := o.Displ(x)
	chk.Array(tst, io.Sf("u @ %v", x), tol, u, uana)
}
