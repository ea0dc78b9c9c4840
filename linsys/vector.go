// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsys

import (
	"context"
	"fmt"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/dof"
	"go.uber.org/zap"
)

// Vector implements a distributed vector with ghost entries
//  Notes:
//   1) Add and AddLocal accumulate; Set overwrites owned entries and requires a previous Assemble
//   2) Assemble sends contributions to ghosts and off-rank entries to owners (reverse scatter),
//      sums them in an order-independent way and updates the ghosts (forward scatter)
//   3) Assemble is collective
type Vector struct {
	Imap *dof.IndexMap
	Comm comm.Communicator
	Log  *zap.Logger

	vals      []float64 // [nlocal] owned values followed by ghost values
	pending   Pairs     // additions at global indices
	sets      Pairs     // overwrites at global indices
	assembled bool      // Assemble has been called at least once
	err       error     // first insertion error
}

// NewVector returns a new zeroed vector
func NewVector(imap *dof.IndexMap, c comm.Communicator, log *zap.Logger) *Vector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Vector{Imap: imap, Comm: c, Log: log.With(zap.Int("rank", c.Rank())), vals: make([]float64, imap.NumLocal())}
}

// AddLocal adds values at local indices
func (o *Vector) AddLocal(idx []int, vals []float64) error {
	if len(idx) != len(vals) {
		return o.fail(fmt.Errorf("linsys: %d indices and %d values", len(idx), len(vals)))
	}
	for k, l := range idx {
		if l < 0 || l >= len(o.vals) {
			return o.fail(fmt.Errorf("linsys: local index %d is out of range [0,%d)", l, len(o.vals)))
		}
		o.pending.Put(o.Imap.LocalToGlobal(l), vals[k])
	}
	return nil
}

// Add adds values at global indices
func (o *Vector) Add(idx []int, vals []float64) error {
	if len(idx) != len(vals) {
		return o.fail(fmt.Errorf("linsys: %d indices and %d values", len(idx), len(vals)))
	}
	for k, g := range idx {
		if g < 0 || g >= o.Imap.GlobalSize() {
			return o.fail(fmt.Errorf("linsys: index %d is out of range [0,%d)", g, o.Imap.GlobalSize()))
		}
		o.pending.Put(g, vals[k])
	}
	return nil
}

// Set overwrites values at owned global indices
func (o *Vector) Set(idx []int, vals []float64) error {
	if !o.assembled {
		return o.fail(fmt.Errorf("linsys: Set requires an assembled vector"))
	}
	if len(idx) != len(vals) {
		return o.fail(fmt.Errorf("linsys: %d indices and %d values", len(idx), len(vals)))
	}
	for k, g := range idx {
		if !o.Imap.IsOwned(g) {
			return o.fail(fmt.Errorf("linsys: cannot set index %d owned by rank %d", g, o.Imap.Owner(g)))
		}
		o.sets.Put(g, vals[k])
	}
	return nil
}

// Assemble sums all contributions at owners and updates ghosts
func (o *Vector) Assemble(ctx context.Context) (err error) {

	// reverse scatter
	size, me := o.Comm.Size(), o.Comm.Rank()
	msgs := make([]*comm.Message, size)
	for r := range msgs {
		msgs[r] = new(comm.Message)
	}
	owned := new(Pairs)
	for k, g := range o.pending.I {
		r := o.Imap.Owner(g)
		if r == me {
			owned.Put(g, o.pending.X[k])
			continue
		}
		msgs[r].Ints = append(msgs[r].Ints, g)
		msgs[r].Floats = append(msgs[r].Floats, o.pending.X[k])
	}
	recv, err := comm.Exchange(ctx, o.Comm, TagVecStash, msgs)
	if err != nil {
		return
	}
	for r, m := range recv {
		if r == me {
			continue
		}
		if len(m.Ints) != len(m.Floats) {
			o.fail(fmt.Errorf("linsys: malformed vector message from rank %d", r))
			continue
		}
		for k, g := range m.Ints {
			owned.Put(g, m.Floats[k])
		}
	}

	// sum and overwrite
	owned.Reduce()
	for k, g := range owned.I {
		o.vals[o.Imap.GlobalToLocal(g)] += owned.X[k]
	}
	for k, g := range o.sets.I {
		o.vals[o.Imap.GlobalToLocal(g)] = o.sets.X[k]
	}
	o.pending.Reset()
	o.sets.Reset()

	// forward scatter
	err = o.Scatter(ctx)
	if err != nil {
		return
	}

	// agree
	lerr := o.err
	o.err = nil
	o.assembled = true
	err = comm.Agree(ctx, o.Comm, TagVecAgree, lerr)
	if err != nil {
		o.Log.Warn("vector assembly failed", zap.Error(err))
	}
	return
}

// Scatter updates ghost values with the values of owners
func (o *Vector) Scatter(ctx context.Context) (err error) {
	size, me := o.Comm.Size(), o.Comm.Rank()
	msgs := make([]*comm.Message, size)
	for r := range msgs {
		msgs[r] = new(comm.Message)
	}
	lo, _ := o.Imap.OwnedRange()
	for l := 0; l < o.Imap.NumOwned(); l++ {
		for _, r := range o.Imap.SharedRanks(l) {
			msgs[r].Ints = append(msgs[r].Ints, lo+l)
			msgs[r].Floats = append(msgs[r].Floats, o.vals[l])
		}
	}
	recv, err := comm.Exchange(ctx, o.Comm, TagVecScatter, msgs)
	if err != nil {
		return
	}
	for r, m := range recv {
		if r == me {
			continue
		}
		for k, g := range m.Ints {
			if l := o.Imap.GlobalToLocal(g); l >= 0 && k < len(m.Floats) {
				o.vals[l] = m.Floats[k]
			}
		}
	}
	return
}

// Local returns the owned values followed by ghost values
func (o *Vector) Local() []float64 { return o.vals }

// Owned returns the owned values
func (o *Vector) Owned() []float64 { return o.vals[:o.Imap.NumOwned()] }

// Get returns the value at global index g; g must be owned or a ghost
func (o *Vector) Get(g int) (float64, error) {
	l := o.Imap.GlobalToLocal(g)
	if l < 0 {
		return 0, fmt.Errorf("linsys: index %d is not available in rank %d", g, o.Comm.Rank())
	}
	return o.vals[l], nil
}

// Fetch returns the values at any global indices, requesting remote ones from their owners
//  Note: Fetch is collective; ranks without requests must call it with idx == nil
func (o *Vector) Fetch(ctx context.Context, idx []int) (vals []float64, err error) {

	// requests
	size, me := o.Comm.Size(), o.Comm.Rank()
	reqs := make([]*comm.Message, size)
	for r := range reqs {
		reqs[r] = new(comm.Message)
	}
	var ferr error
	vals = make([]float64, len(idx))
	where := make([][]int, size)
	for k, g := range idx {
		if l := o.Imap.GlobalToLocal(g); l >= 0 {
			vals[k] = o.vals[l]
			continue
		}
		r := o.Imap.Owner(g)
		if r < 0 {
			ferr = fmt.Errorf("linsys: index %d is out of range", g)
			continue
		}
		reqs[r].Ints = append(reqs[r].Ints, g)
		where[r] = append(where[r], k)
	}
	recv, err := comm.Exchange(ctx, o.Comm, TagVecFetch, reqs)
	if err != nil {
		return nil, err
	}

	// replies
	reps := make([]*comm.Message, size)
	for r, m := range recv {
		if r == me {
			continue
		}
		reps[r] = new(comm.Message)
		for _, g := range m.Ints {
			if !o.Imap.IsOwned(g) {
				ferr = fmt.Errorf("linsys: rank %d requested index %d not owned by rank %d", r, g, me)
				reps[r].Floats = append(reps[r].Floats, 0)
				continue
			}
			reps[r].Floats = append(reps[r].Floats, o.vals[o.Imap.GlobalToLocal(g)])
		}
	}
	back, err := comm.Exchange(ctx, o.Comm, TagVecReply, reps)
	if err != nil {
		return nil, err
	}
	for r, m := range back {
		if r == me {
			continue
		}
		if len(m.Floats) != len(where[r]) {
			return nil, fmt.Errorf("linsys: rank %d replied %d values; %d expected", r, len(m.Floats), len(where[r]))
		}
		for k, pos := range where[r] {
			vals[pos] = m.Floats[k]
		}
	}
	if ferr != nil {
		return nil, ferr
	}
	return
}

// Gather collects the owned values of all ranks at root
//  Output: at root, the global vector; nil elsewhere
func (o *Vector) Gather(ctx context.Context, root int) (all []float64, err error) {
	msgs, err := comm.Gather(ctx, o.Comm, root, TagVecGather, &comm.Message{Floats: o.Owned()})
	if err != nil || o.Comm.Rank() != root {
		return
	}
	all = make([]float64, 0, o.Imap.GlobalSize())
	for _, m := range msgs {
		all = append(all, m.Floats...)
	}
	return
}

func (o *Vector) fail(err error) error {
	if o.err == nil {
		o.err = err
	}
	return err
}
