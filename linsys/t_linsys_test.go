// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsys

import (
	"context"
	"errors"
	"testing"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/dof"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/rnd"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func verbose() {
	io.Verbose = true
	chk.Verbose = true
}

// twoRanks returns the index maps of 4 dofs split among two ranks:
//  rank 0 owns {0,1} and holds 2 as ghost; rank 1 owns {2,3} and holds 1 as ghost
func twoRanks(tst *testing.T) []*dof.IndexMap {
	m0, err := dof.NewIndexMap(0, 1, []int{0, 2, 4}, []int{2}, [][]int{nil, {1}})
	require.NoError(tst, err)
	m1, err := dof.NewIndexMap(1, 1, []int{0, 2, 4}, []int{1}, [][]int{{0}, nil})
	require.NoError(tst, err)
	return []*dof.IndexMap{m0, m1}
}

func Test_triplets01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("triplets01. reduction does not depend on order")

	rnd.Init(1234)
	var a Triplets
	for k := 0; k < 200; k++ {
		a.Put(k%5, (3*k)%7, rnd.Float64(-1, 1))
	}
	b := new(Triplets)
	for k := a.Len() - 1; k >= 0; k-- {
		b.Put(a.I[k], a.J[k], a.X[k])
	}
	a.Reduce()
	b.Reduce()
	chk.Ints(tst, "I", a.I, b.I)
	chk.Ints(tst, "J", a.J, b.J)
	chk.Array(tst, "X", 0, a.X, b.X)
	chk.Int(tst, "len", a.Len(), 35)

	// overwrite
	var c Triplets
	c.Put(1, 1, 3)
	c.Put(0, 2, 5)
	c.Put(1, 1, 7)
	c.KeepLast()
	chk.Ints(tst, "I", c.I, []int{0, 1})
	chk.Array(tst, "X", 1e-17, c.X, []float64{5, 7})

	// exports
	t := a.ToGosl(5, 7)
	chk.Int(tst, "gosl len", t.Len(), 35)
	csr := a.ToCSR(5, 7, 0)
	chk.Int(tst, "csr nnz", csr.NNZ(), 35)
	chk.Float64(tst, "csr(2,6)", 1e-15, csr.At(2, 6), at(&a, 2, 6))
}

func Test_matrix01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("matrix01. off-rank entries and overwrite")

	imaps := twoRanks(tst)
	w := comm.NewWorld(2, nil)
	err := w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		A := NewMatrix(imaps[c.Rank()], c, nil, nil)
		ones := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}
		if err := A.AddLocal([]int{0, 1, 2}, []int{0, 1, 2}, ones); err != nil {
			return err
		}
		if err := A.Set([]int{0}, []int{0}, []float64{1}); err == nil {
			tst.Errorf("Set before Assemble should have failed")
		}
		if err := A.Assemble(ctx); err == nil {
			tst.Errorf("Assemble should have reported the failed Set")
		}

		// again, without errors
		A = NewMatrix(imaps[c.Rank()], c, nil, nil)
		if err := A.AddLocal([]int{0, 1, 2}, []int{0, 1, 2}, ones); err != nil {
			return err
		}
		if err := A.Assemble(ctx); err != nil {
			return err
		}
		if c.Rank() == 0 {
			chk.Float64(tst, "A(0,0)", 1e-17, A.At(0, 0), 1)
			chk.Float64(tst, "A(1,1)", 1e-17, A.At(1, 1), 2)
			chk.Float64(tst, "A(1,2)", 1e-17, A.At(1, 2), 2)
			chk.Float64(tst, "A(1,3)", 1e-17, A.At(1, 3), 1)
			chk.Float64(tst, "A(0,3)", 1e-17, A.At(0, 3), 0)
		} else {
			chk.Float64(tst, "A(2,0)", 1e-17, A.At(2, 0), 1)
			chk.Float64(tst, "A(2,1)", 1e-17, A.At(2, 1), 2)
			chk.Float64(tst, "A(2,2)", 1e-17, A.At(2, 2), 2)
			chk.Float64(tst, "A(3,3)", 1e-17, A.At(3, 3), 1)
		}

		// overwrite diagonal twice
		lo, hi := A.Imap.OwnedRange()
		for pass := 0; pass < 2; pass++ {
			for g := lo; g < hi; g++ {
				if err := A.Set([]int{g}, []int{g}, []float64{1}); err != nil {
					return err
				}
				if err := A.Add([]int{g}, []int{g}, []float64{1}); err == nil {
					tst.Errorf("mixing Add and Set should have failed")
				}
			}
			if err := A.Assemble(ctx); err == nil {
				tst.Errorf("Assemble should have reported mixing Add and Set")
			}
			for g := lo; g < hi; g++ {
				if err := A.Set([]int{g}, []int{g}, []float64{1}); err != nil {
					return err
				}
			}
			if err := A.Assemble(ctx); err != nil {
				return err
			}
			for g := lo; g < hi; g++ {
				chk.Float64(tst, io.Sf("A(%d,%d) pass %d", g, g, pass), 1e-17, A.At(g, g), 1)
			}
		}

		// gather
		all, err := A.Gather(ctx, 0)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			chk.Int(tst, "nnz", all.Len(), 14)
			chk.Float64(tst, "A(2,1)", 1e-17, at(all, 2, 1), 2)
			chk.Float64(tst, "A(3,3)", 1e-17, at(all, 3, 3), 1)
		}
		return nil
	})
	require.NoError(tst, err)
}

func Test_matrix02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("matrix02. entries outside pattern are fatal on all ranks")

	imaps := twoRanks(tst)
	w := comm.NewWorld(2, nil)
	errs := make([]error, 2)
	err := w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		p := NewPattern(imaps[c.Rank()], c)
		lo, hi := imaps[c.Rank()].OwnedRange()
		for g := lo; g < hi; g++ {
			p.Add([]int{g}, []int{g}, nil)
		}
		if c.Rank() == 1 {
			p.Add([]int{1}, []int{3}, nil)
			p.Add([]int{1, 1}, []int{3, 3}, nil)
		}
		if err := p.Assemble(ctx); err != nil {
			return err
		}
		chk.Int(tst, io.Sf("nnz @ %d", c.Rank()), p.Nnz(), 2+(1-c.Rank()))
		if c.Rank() == 0 {
			require.True(tst, p.Has(1, 3))
			require.False(tst, p.Has(0, 3))
			require.False(tst, p.Has(1, 99))
		}

		A := NewMatrix(imaps[c.Rank()], c, p, nil)
		if c.Rank() == 1 {
			A.Add([]int{1}, []int{3}, []float64{1})
			A.Add([]int{0}, []int{3}, []float64{1})
		}
		errs[c.Rank()] = A.Assemble(ctx)
		return nil
	})
	require.NoError(tst, err)
	require.Error(tst, errs[0])
	require.True(tst, errors.Is(errs[0], ErrPattern))
	require.Error(tst, errs[1])
}

func Test_vector01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("vector01. reverse and forward scatter")

	imaps := twoRanks(tst)
	w := comm.NewWorld(2, nil)
	err := w.Run(context.Background(), func(ctx context.Context, c comm.Communicator) error {
		b := NewVector(imaps[c.Rank()], c, nil)
		if err := b.AddLocal([]int{0, 1, 2}, []float64{1, 1, 1}); err != nil {
			return err
		}
		if err := b.Assemble(ctx); err != nil {
			return err
		}
		if c.Rank() == 0 {
			chk.Array(tst, "b @ 0", 1e-17, b.Local(), []float64{1, 2, 2})
		} else {
			chk.Array(tst, "b @ 1", 1e-17, b.Local(), []float64{2, 1, 2})
		}

		// fetch remote values
		var want []int
		if c.Rank() == 0 {
			want = []int{3, 0}
		}
		vals, err := b.Fetch(ctx, want)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			chk.Array(tst, "fetched", 1e-17, vals, []float64{1, 1})
		}

		// overwrite and gather
		lo, _ := b.Imap.OwnedRange()
		if err = b.Set([]int{lo}, []float64{-1}); err != nil {
			return err
		}
		if err = b.Assemble(ctx); err != nil {
			return err
		}
		all, err := b.Gather(ctx, 0)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			chk.Array(tst, "gathered", 1e-17, all, []float64{-1, 2, -1, 1})
		} else {
			chk.Array(tst, "ghost updated", 1e-17, b.Local(), []float64{-1, 1, 2})
		}
		return nil
	})
	require.NoError(tst, err)
}

// at returns the value at (i, j) of reduced triplets
func at(t *Triplets, i, j int) float64 {
	for k := range t.I {
		if t.I[k] == i && t.J[k] == j {
			return t.X[k]
		}
	}
	return 0
}
