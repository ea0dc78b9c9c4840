// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsys

import (
	"context"
	"errors"
	"fmt"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/dof"
	"github.com/james-bowman/sparse"
	"go.uber.org/zap"
)

// message tags
const (
	TagMatStash   = 100 // off-rank matrix entries
	TagMatAgree   = 101 // agreement on errors after matrix assembly
	TagMatGather  = 102 // gathering of matrix at root
	TagVecStash   = 110 // off-rank vector entries
	TagVecScatter = 111 // owner values sent to ghosts
	TagVecAgree   = 112 // agreement on errors after vector assembly
	TagVecGather  = 113 // gathering of vector at root
	TagVecFetch   = 114 // requests of remote values
	TagVecReply   = 115 // replies with remote values
	TagPatStash   = 120 // off-rank pattern entries
	TagPatAgree   = 121 // agreement on errors after pattern assembly
)

// ErrPattern is returned when an entry falls outside the sparsity pattern
var ErrPattern = errors.New("linsys: entry outside sparsity pattern")

// insertion modes
type mode int

const (
	modeNone mode = iota
	modeAdd
	modeSet
)

// Matrix implements a distributed sparse matrix whose rows are owned by ranks
//  Notes:
//   1) Add and AddLocal accumulate; Set overwrites and requires a previous Assemble
//   2) Add and Set cannot be mixed before calling Assemble
//   3) entries of rows owned by other ranks are stashed and sent during Assemble
//   4) accumulated values do not depend on the order of insertion
//   5) Assemble is collective; if any rank fails, all ranks return an error
type Matrix struct {
	Imap *dof.IndexMap
	Comm comm.Communicator
	Log  *zap.Logger

	pattern   *Pattern  // sparsity pattern; may be nil
	pending   Triplets  // entries of owned rows not yet assembled
	stash     Triplets  // entries of rows owned by other ranks
	vals      *Triplets // assembled entries of owned rows; reduced
	mode      mode      // insertion mode since last Assemble
	assembled bool      // Assemble has been called at least once
	err       error     // first insertion error
}

// NewMatrix returns a new distributed matrix
//  pattern -- sparsity pattern; nil means any entry is accepted
func NewMatrix(imap *dof.IndexMap, c comm.Communicator, pattern *Pattern, log *zap.Logger) *Matrix {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matrix{Imap: imap, Comm: c, Log: log.With(zap.Int("rank", c.Rank())), pattern: pattern, vals: new(Triplets)}
}

// AddLocal adds a dense block at local indices
func (o *Matrix) AddLocal(rows, cols []int, vals []float64) error {
	return o.insert(modeAdd, o.toGlobal(rows), o.toGlobal(cols), vals)
}

// Add adds a dense block at global indices
func (o *Matrix) Add(rows, cols []int, vals []float64) error {
	return o.insert(modeAdd, rows, cols, vals)
}

// Set overwrites a dense block at global indices
func (o *Matrix) Set(rows, cols []int, vals []float64) error {
	if !o.assembled {
		return o.fail(fmt.Errorf("linsys: Set requires an assembled matrix"))
	}
	return o.insert(modeSet, rows, cols, vals)
}

// Assemble exchanges stashed entries, checks the pattern and reduces the entries
func (o *Matrix) Assemble(ctx context.Context) (err error) {

	// send stashed entries to owners
	size, me := o.Comm.Size(), o.Comm.Rank()
	msgs := make([]*comm.Message, size)
	for r := range msgs {
		msgs[r] = &comm.Message{Ints: []int{int(o.mode)}}
	}
	for k := range o.stash.I {
		r := o.Imap.Owner(o.stash.I[k])
		msgs[r].Ints = append(msgs[r].Ints, o.stash.I[k], o.stash.J[k])
		msgs[r].Floats = append(msgs[r].Floats, o.stash.X[k])
	}
	o.Log.Debug("matrix assemble", zap.Int("pending", o.pending.Len()), zap.Int("stash", o.stash.Len()))
	recv, err := comm.Exchange(ctx, o.Comm, TagMatStash, msgs)
	if err != nil {
		return err
	}

	// receive entries of owned rows
	md := o.mode
	for r, m := range recv {
		if r == me {
			continue
		}
		if len(m.Ints) < 1 || len(m.Ints) != 1+2*len(m.Floats) {
			o.fail(fmt.Errorf("linsys: malformed stash message from rank %d", r))
			continue
		}
		if len(m.Floats) == 0 {
			continue
		}
		rmd := mode(m.Ints[0])
		if md == modeNone {
			md = rmd
		}
		if rmd != md {
			o.fail(fmt.Errorf("linsys: rank %d used a different insertion mode", r))
			continue
		}
		for k := range m.Floats {
			o.pending.Put(m.Ints[1+2*k], m.Ints[2+2*k], m.Floats[k])
		}
	}

	// check pattern
	if o.pattern != nil && o.err == nil {
		for k := range o.pending.I {
			if !o.pattern.Has(o.pending.I[k], o.pending.J[k]) {
				o.fail(fmt.Errorf("%w: (%d,%d)", ErrPattern, o.pending.I[k], o.pending.J[k]))
				break
			}
		}
	}

	// merge
	if o.err == nil {
		switch md {
		case modeSet:
			o.overwrite()
		default:
			o.vals.Append(&o.pending)
			o.vals.Reduce()
		}
	}

	// clear and agree
	lerr := o.err
	o.pending.Reset()
	o.stash.Reset()
	o.mode = modeNone
	o.err = nil
	o.assembled = true
	err = comm.Agree(ctx, o.Comm, TagMatAgree, lerr)
	if err != nil {
		o.Log.Warn("matrix assembly failed", zap.Error(err))
	}
	return
}

// Assembled tells whether Assemble has been called
func (o *Matrix) Assembled() bool { return o.assembled }

// Entries returns the assembled entries of owned rows sorted by (i, j)
func (o *Matrix) Entries() *Triplets { return o.vals }

// At returns the assembled value at (i, j); i must be owned by this rank
func (o *Matrix) At(i, j int) float64 {
	t := o.vals
	lo, hi := 0, t.Len()
	for lo < hi {
		m := (lo + hi) / 2
		if t.I[m] < i || (t.I[m] == i && t.J[m] < j) {
			lo = m + 1
		} else {
			hi = m
		}
	}
	if lo < t.Len() && t.I[lo] == i && t.J[lo] == j {
		return t.X[lo]
	}
	return 0
}

// ToCSR returns the owned rows as a compressed sparse row matrix
//  Note: row i of the result corresponds to global row lo+i
func (o *Matrix) ToCSR() *sparse.CSR {
	lo, hi := o.Imap.OwnedRange()
	return o.vals.ToCSR(max(hi-lo, 1), o.Imap.GlobalSize(), lo)
}

// Gather collects all assembled entries at root
//  Output: at root, all entries sorted by (i, j); nil elsewhere
func (o *Matrix) Gather(ctx context.Context, root int) (all *Triplets, err error) {
	msg := &comm.Message{Floats: o.vals.X}
	msg.Ints = make([]int, 0, 2*o.vals.Len())
	for k := range o.vals.I {
		msg.Ints = append(msg.Ints, o.vals.I[k], o.vals.J[k])
	}
	msgs, err := comm.Gather(ctx, o.Comm, root, TagMatGather, msg)
	if err != nil || o.Comm.Rank() != root {
		return
	}
	all = new(Triplets)
	for _, m := range msgs {
		for k := range m.Floats {
			all.Put(m.Ints[2*k], m.Ints[2*k+1], m.Floats[k])
		}
	}
	all.Reduce()
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

func (o *Matrix) toGlobal(idx []int) []int {
	g := make([]int, len(idx))
	for k, l := range idx {
		if l < 0 || l >= o.Imap.NumLocal() {
			g[k] = -1
			continue
		}
		g[k] = o.Imap.LocalToGlobal(l)
	}
	return g
}

func (o *Matrix) insert(md mode, rows, cols []int, vals []float64) error {
	if len(vals) != len(rows)*len(cols) {
		return o.fail(fmt.Errorf("linsys: block %d×%d has %d values", len(rows), len(cols), len(vals)))
	}
	if o.mode != modeNone && o.mode != md {
		return o.fail(fmt.Errorf("linsys: cannot mix Add and Set before Assemble"))
	}
	o.mode = md
	n := o.Imap.GlobalSize()
	for a, i := range rows {
		if i < 0 || i >= n {
			return o.fail(fmt.Errorf("linsys: row %d is out of range [0,%d)", i, n))
		}
		for b, j := range cols {
			if j < 0 || j >= n {
				return o.fail(fmt.Errorf("linsys: column %d is out of range [0,%d)", j, n))
			}
			if o.Imap.IsOwned(i) {
				o.pending.Put(i, j, vals[a*len(cols)+b])
			} else {
				o.stash.Put(i, j, vals[a*len(cols)+b])
			}
		}
	}
	return nil
}

func (o *Matrix) overwrite() {
	p, v := &o.pending, o.vals
	p.KeepLast()
	merged := new(Triplets)
	a, b := 0, 0
	for a < v.Len() || b < p.Len() {
		switch {
		case b == p.Len() || (a < v.Len() && (v.I[a] < p.I[b] || (v.I[a] == p.I[b] && v.J[a] < p.J[b]))):
			merged.Put(v.I[a], v.J[a], v.X[a])
			a++
		case a == v.Len() || p.I[b] < v.I[a] || (p.I[b] == v.I[a] && p.J[b] < v.J[a]):
			merged.Put(p.I[b], p.J[b], p.X[b])
			b++
		default:
			merged.Put(p.I[b], p.J[b], p.X[b])
			a++
			b++
		}
	}
	o.vals = merged
}

func (o *Matrix) fail(err error) error {
	if o.err == nil {
		o.err = err
	}
	return err
}
