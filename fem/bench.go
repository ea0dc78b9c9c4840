// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fem

import (
	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
)

// BenchSim returns the simulation data of the elasticity benchmark
//  Notes:
//   1) unit square made of two non-matching blocks tied along y = 0.5
//   2) the left edges are clamped; the right edges have a horizontal traction
//   3) uy at the right corners is tied to uy of the vertex below (or above) with coefficient 0.5
//   4) the number of divisions along x of the lower block is 2^(level+1)
func BenchSim(level, nproc, workers int) (sim *inp.Simulation, err error) {
	if level < 0 || level > 10 {
		return nil, chk.Err("refinement level must be in [0,10]; %d is invalid", level)
	}
	if nproc < 1 {
		nproc = 1
	}
	nx := 1 << uint(level+1)
	ny := 2 * nx
	dy := 1.0 / float64(ny)
	sim = &inp.Simulation{
		Data: inp.Data{Desc: io.Sf("elasticity benchmark level %d", level), Key: io.Sf("bench%02d", level), Kernel: "elastic"},
		Gen:  &inp.GenData{Type: "tied", Nx: nx, NxTop: nx + 1, Ny: ny, Xmin: 0, Xmax: 1, Ymin: 0, Ymax: 1, Nparts: nproc},
		Kernel: inp.KernelData{Prms: dbf.Params{
			&dbf.P{N: "E", V: 1000},
			&dbf.P{N: "nu", V: 0.25},
		}, Pstrss: true},
		Constraints: []*inp.ConstraintData{
			{Slave: []float64{1, 1}, Comp: 1, Masters: [][]float64{{1, 1 - dy}}, Coeffs: []float64{0.5}},
			{Slave: []float64{1, 0}, Comp: 1, Masters: [][]float64{{1, dy}}, Coeffs: []float64{0.5}},
		},
		Contact:  &inp.ContactData{SlaveTag: inp.TagBottom - 10, MasterTag: inp.TagTop, Tol: dy / 10},
		EssenBcs: []*inp.EssenBcData{{Tag: inp.TagLeft, Keys: []string{"ux", "uy"}, Func: "zero"}},
		NatBcs:   []*inp.NatBcData{{Tag: inp.TagRight, Vals: []float64{1, 0}}},
		Solver:   inp.SolverData{Nproc: nproc, Workers: workers, Timeout: 60, Lifting: true},
	}
	err = sim.SetMesh()
	return
}
