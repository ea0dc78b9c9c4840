// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package out

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func verbose() {
	io.Verbose = true
	chk.Verbose = true
}

func Test_out01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("out01. write, read and get results")

	msh, err := inp.GenTied(1, 2, 2, 0, 2, 0, 2, 1)
	require.NoError(tst, err)
	sim := &inp.Simulation{Data: inp.Data{Key: "tied", Kernel: "elastic"}, Msh: msh}
	U := make([][]float64, len(msh.Verts))
	for i, v := range msh.Verts {
		U[i] = []float64{v.C[0], -v.C[1]}
	}
	U[4][1] = 123 // (0,1) on the upper block
	res, err := NewResults(sim, []string{"ux", "uy"}, 2, 1e-15, U)
	require.NoError(tst, err)

	// get
	vals, err := res.Get("uy", []float64{0, 1})
	require.NoError(tst, err)
	chk.Array(tst, "uy @ (0,1)", 1e-17, vals, []float64{-1, 123})
	vals, err = res.Get("ux", []float64{2, 2})
	require.NoError(tst, err)
	chk.Array(tst, "ux @ (2,2)", 1e-17, vals, []float64{2})
	_, err = res.Get("pl", []float64{0, 0})
	require.Error(tst, err)
	_, err = res.Get("ux", []float64{5, 5})
	require.Error(tst, err)

	// write and read
	fn, err := res.Write(tst.TempDir())
	require.NoError(tst, err)
	io.Pforan("file = %v\n", fn)
	back, err := Read(fn)
	require.NoError(tst, err)
	if diff := cmp.Diff(res, back); diff != "" {
		tst.Errorf("results differ:\n%s", diff)
	}

	// errors
	_, err = NewResults(sim, []string{"ux"}, 2, 0, U)
	require.Error(tst, err)
	_, err = NewResults(sim, []string{"ux", "uy"}, 2, 0, U[1:])
	require.Error(tst, err)
	_, err = Read("/tmp/gompc/notfound.json")
	require.Error(tst, err)
	bad := filepath.Join(tst.TempDir(), "bad.json")
	require.NoError(tst, os.WriteFile(bad, []byte(`{"x":[[0,0]],"u":[]}`), 0644))
	_, err = Read(bad)
	require.Error(tst, err)
}
