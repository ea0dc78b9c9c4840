// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsys

import (
	"context"
	"fmt"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/dof"
	"github.com/james-bowman/sparse"
)

// Pattern records the sparsity pattern of the owned rows of a distributed matrix
//  Notes:
//   1) Pattern has the same insertion methods as Matrix; values are ignored
//   2) after Assemble, Has tells whether (i, j) belongs to the pattern
type Pattern struct {
	Imap *dof.IndexMap
	Comm comm.Communicator

	dok   *sparse.DOK // unit entries at (i, j) of owned rows
	stash Triplets    // entries of rows owned by other ranks
	err   error
}

// NewPattern returns a new empty pattern
func NewPattern(imap *dof.IndexMap, c comm.Communicator) *Pattern {
	n := imap.GlobalSize()
	return &Pattern{Imap: imap, Comm: c, dok: sparse.NewDOK(n, n)}
}

// AddLocal records a dense block at local indices
func (o *Pattern) AddLocal(rows, cols []int, vals []float64) error {
	g := func(idx []int) []int {
		res := make([]int, len(idx))
		for k, l := range idx {
			res[k] = o.Imap.LocalToGlobal(l)
		}
		return res
	}
	return o.Add(g(rows), g(cols), vals)
}

// Add records a dense block at global indices
func (o *Pattern) Add(rows, cols []int, vals []float64) error {
	n := o.Imap.GlobalSize()
	for _, i := range rows {
		for _, j := range cols {
			if i < 0 || i >= n || j < 0 || j >= n {
				err := fmt.Errorf("linsys: entry (%d,%d) is out of range [0,%d)", i, j, n)
				if o.err == nil {
					o.err = err
				}
				return err
			}
			if o.Imap.IsOwned(i) {
				o.dok.Set(i, j, 1)
			} else {
				o.stash.Put(i, j, 0)
			}
		}
	}
	return nil
}

// Set records a dense block at global indices
func (o *Pattern) Set(rows, cols []int, vals []float64) error {
	return o.Add(rows, cols, vals)
}

// Assemble sends stashed entries to owners
func (o *Pattern) Assemble(ctx context.Context) (err error) {
	size, me := o.Comm.Size(), o.Comm.Rank()
	msgs := make([]*comm.Message, size)
	for r := range msgs {
		msgs[r] = new(comm.Message)
	}
	for k := range o.stash.I {
		r := o.Imap.Owner(o.stash.I[k])
		msgs[r].Ints = append(msgs[r].Ints, o.stash.I[k], o.stash.J[k])
	}
	recv, err := comm.Exchange(ctx, o.Comm, TagPatStash, msgs)
	if err != nil {
		return
	}
	for r, m := range recv {
		if r == me {
			continue
		}
		for k := 0; k+1 < len(m.Ints); k += 2 {
			o.dok.Set(m.Ints[k], m.Ints[k+1], 1)
		}
	}
	o.stash.Reset()
	lerr := o.err
	o.err = nil
	return comm.Agree(ctx, o.Comm, TagPatAgree, lerr)
}

// Has tells whether (i, j) belongs to the pattern; i must be owned by this rank
func (o *Pattern) Has(i, j int) bool {
	n := o.Imap.GlobalSize()
	if i < 0 || i >= n || j < 0 || j >= n {
		return false
	}
	return o.dok.At(i, j) != 0
}

// Nnz returns the number of entries of owned rows
func (o *Pattern) Nnz() int {
	return o.dok.NNZ()
}
