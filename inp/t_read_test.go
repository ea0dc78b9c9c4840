// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package inp

import (
	"testing"
	"time"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"github.com/cpmech/gosl/io"
	"github.com/stretchr/testify/require"
)

func verbose() {
	io.Verbose = true
	chk.Verbose = true
}

func Test_msh01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("msh01. read mesh")

	msh, err := ReadMsh("data", "square.msh")
	require.NoError(tst, err)
	io.Pforan("%v\n", msh)
	chk.Float64(tst, "xmin", 1e-17, msh.Xmin, 0)
	chk.Float64(tst, "xmax", 1e-17, msh.Xmax, 1)
	chk.Float64(tst, "ymin", 1e-17, msh.Ymin, 0)
	chk.Float64(tst, "ymax", 1e-17, msh.Ymax, 1)
	chk.Int(tst, "ndim", msh.Ndim, 2)
	chk.Int(tst, "nparts", msh.Nparts, 2)
	chk.Int(tst, "verts with tag -1", len(msh.VertTag2verts[-1]), 2)
	chk.Int(tst, "cells with tag -1", len(msh.CellTag2cells[-1]), 2)
	chk.Ints(tst, "verts on bottom", msh.FaceTag2verts[-10], []int{0, 1})
	chk.Ints(tst, "verts on right", msh.FaceTag2verts[-11], []int{1, 2})
	chk.Ints(tst, "verts on top", msh.FaceTag2verts[-12], []int{2, 3})
	chk.Ints(tst, "verts on left", msh.FaceTag2verts[-13], []int{0, 3})
	chk.Int(tst, "cells of part 1", len(msh.Part2cells[1]), 1)
	chk.Int(tst, "cell with left edge", msh.FaceTag2cells[-13][0].C.Id, 1)
	chk.Int(tst, "fid of left edge", msh.FaceTag2cells[-13][0].Fid, 2)
	chk.Ints(tst, "parts of vertex 0", msh.VertParts(0), []int{0, 1})
	chk.Ints(tst, "parts of vertex 1", msh.VertParts(1), []int{0})
	chk.Ints(tst, "verts near (1,1)", msh.VertsNear([]float64{1, 1 + 1e-9}, Ztol), []int{2})

	// normals
	chk.Array(tst, "normal of bottom", 1e-15, msh.FaceNormal(msh.Cells[0], 0), []float64{0, -1})
	chk.Array(tst, "normal of right", 1e-15, msh.FaceNormal(msh.Cells[0], 1), []float64{1, 0})
	chk.Array(tst, "normal of top", 1e-15, msh.FaceNormal(msh.Cells[1], 1), []float64{0, 1})
	chk.Array(tst, "normal of left", 1e-15, msh.FaceNormal(msh.Cells[1], 2), []float64{-1, 0})
}

func Test_msh02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("msh02. invalid meshes")

	_, err := ReadMsh("data", "notfound.msh")
	require.Error(tst, err)

	_, err = ReadMsh("data", "badmesh.msh")
	require.Error(tst, err)
	io.Pforan("%v\n", err)

	for _, msh := range []*Mesh{
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 1, C: []float64{1, 0}}}},
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 1, C: []float64{1, 0}}, {Id: 2, C: []float64{0, 1}}}},
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 2, C: []float64{1, 0}}, {Id: 1, C: []float64{0, 1}}},
			Cells: []*Cell{{Id: 0, Tag: -1, Type: "tri3", Verts: []int{0, 1, 2}}}},
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 1, C: []float64{1, 0}}, {Id: 2, C: []float64{0, 1, 1}}},
			Cells: []*Cell{{Id: 0, Tag: -1, Type: "tri3", Verts: []int{0, 1, 2}}}},
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 1, C: []float64{1, 0}}, {Id: 2, C: []float64{0, 1}}},
			Cells: []*Cell{{Id: 0, Tag: 1, Type: "tri3", Verts: []int{0, 1, 2}}}},
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 1, C: []float64{1, 0}}, {Id: 2, C: []float64{0, 1}}},
			Cells: []*Cell{{Id: 0, Tag: -1, Type: "tri3", Verts: []int{0, 1, 3}}}},
		{Verts: []*Vert{{Id: 0, C: []float64{0, 0}}, {Id: 1, C: []float64{1, 0}}, {Id: 2, C: []float64{0, 1}}},
			Cells: []*Cell{{Id: 0, Tag: -1, Type: "tri3", Part: -1, Verts: []int{0, 1, 2}}}},
	} {
		err = msh.Init()
		require.Error(tst, err)
		io.Pf("%v\n", err)
	}
}

func Test_sim01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("sim01. read JSON simulation file")

	sim, err := ReadSim("data/square.sim")
	require.NoError(tst, err)
	require.NotNil(tst, sim.Msh)

	// data
	require.Equal(tst, "square", sim.Data.Key)
	require.Equal(tst, "poisson", sim.Data.Kernel)
	require.Equal(tst, "data", sim.Dir)
	chk.Int(tst, "nproc", sim.Solver.Nproc, 2)
	chk.Int(tst, "workers", sim.Solver.Workers, 4)
	require.Equal(tst, 2500*time.Millisecond, sim.Solver.TimeoutDuration())
	require.False(tst, sim.Solver.Lifting)

	// kernel
	chk.Float64(tst, "kappa", 1e-17, sim.KernelConst("kappa", 1), 3)
	chk.Float64(tst, "source", 1e-17, sim.KernelConst("source", 7), 7)
	require.Len(tst, sim.Kernel.ByTag, 1)
	chk.Array(tst, "coeffs of tag -1", 1e-17, sim.Kernel.ByTag[0].Coeffs, []float64{2})

	// constraints and conditions
	require.Len(tst, sim.Constraints, 1)
	chk.Deep2(tst, "masters", 1e-17, sim.Constraints[0].Masters, [][]float64{{1, 0}, {0, 1}})
	chk.Array(tst, "coeffs", 1e-17, sim.Constraints[0].Coeffs, []float64{0.5, 0.5})
	require.Nil(tst, sim.Contact)
	require.Len(tst, sim.EssenBcs, 1)
	chk.Int(tst, "natbc tag", sim.NatBcs[0].Tag, -11)

	// functions
	io.Pforan("%v\n", sim.Functions)
	fcn, err := sim.Functions.Get("left")
	require.NoError(tst, err)
	chk.Float64(tst, "left", 1e-17, fcn.F(0, []float64{0, 0.5}), 1.5)
	fcn, err = sim.Functions.Get("zero")
	require.NoError(tst, err)
	chk.Float64(tst, "zero", 1e-17, fcn.F(0, nil), 0)
	_, err = sim.Functions.Get("nope")
	require.Error(tst, err)

	// unknown function type is reported, not raised
	funcs := FuncsData{{Name: "wave", Type: "sin-cos-tan", Prms: dbf.Params{&dbf.P{N: "a", V: 1}}}}
	require.NotPanics(tst, func() { _, err = funcs.Get("wave") })
	require.Error(tst, err)
	io.Pf("%v\n", err)

	// too few ranks
	sim.Solver.Nproc = 1
	require.Error(tst, sim.SetMesh())
}

func Test_sim02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("sim02. read YAML simulation file with generated mesh")

	sim, err := ReadSim("data/tied.yaml")
	require.NoError(tst, err)
	require.Equal(tst, "blocks", sim.Data.Key)
	require.Equal(tst, "elastic", sim.Data.Kernel)
	require.True(tst, sim.Kernel.Pstrss)
	chk.Float64(tst, "E", 1e-17, sim.KernelConst("E", 1), 200)
	chk.Float64(tst, "nu", 1e-17, sim.KernelConst("nu", 0.3), 0.2)
	require.NotNil(tst, sim.Contact)
	chk.Int(tst, "slave tag", sim.Contact.SlaveTag, TagBottom-10)
	chk.Int(tst, "master tag", sim.Contact.MasterTag, TagTop)
	chk.Float64(tst, "tol", 1e-17, sim.Contact.Tol, 1e-3)
	require.Equal(tst, []string{"ux", "uy"}, sim.EssenBcs[0].Keys)
	chk.Int(tst, "nproc", sim.Solver.Nproc, 4)
	require.True(tst, sim.Solver.Lifting)

	// mesh
	chk.Int(tst, "nverts", len(sim.Msh.Verts), 14)
	chk.Int(tst, "ncells", len(sim.Msh.Cells), 10)
	chk.Int(tst, "nparts", sim.Msh.Nparts, 3)

	// functions
	fcn, err := sim.Functions.Get("down")
	require.NoError(tst, err)
	chk.Float64(tst, "down", 1e-17, fcn.F(0, nil), -0.1)
}

func Test_sim03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("sim03. invalid simulation files")

	for _, fn := range []string{"data/notfound.sim", "data/nomesh.sim", "data/badfunc.yaml", "data/square.msh.yaml"} {
		_, err := ReadSim(fn)
		require.Error(tst, err, fn)
		io.Pf("%s: %v\n", fn, err)
	}

	// invalid constraints
	sim, err := ReadSim("data/square.sim")
	require.NoError(tst, err)
	sim.Constraints[0].Coeffs = []float64{1}
	require.Error(tst, sim.SetMesh())
	sim.Constraints[0].Coeffs = []float64{0.5, 0.5}
	sim.Constraints[0].Slave = []float64{1}
	require.Error(tst, sim.SetMesh())
}
