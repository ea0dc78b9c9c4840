// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contact

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/mpc"
	"go.uber.org/zap"
)

// message tags of the resolver
const (
	TagCollisions   = 0 // phase 0: queries sent to ranks whose box contains them
	TagMasters      = 1 // phase 1: matches sent back to the ranks owning the queries
	TagGhostMasters = 5 // phase 2: selected masters pushed to the ranks holding the slaves as ghosts
	TagBoxes        = 7 // bounding boxes of master surfaces
	TagAgree        = 9 // agreement on selection errors
)

// Resolver finds the masters of slave dofs distributed among ranks
//  Notes:
//   1) each rank searches its local candidate cells only
//   2) the owner of a slave selects the match with the smallest distance; ties go to the lowest rank
//   3) the owner pushes the selected masters to every rank holding the slave as a ghost
//   4) Resolve is collective
type Resolver struct {
	Comm    comm.Communicator // communicator
	Imap    mpc.IndexMap      // dof ownership
	Loc     Locator           // search on local cells
	Cells   []int             // local candidate master cells
	Timeout time.Duration     // maximum duration of each phase; 0 means no limit
	Log     *zap.Logger       // logger
}

// NewResolver returns a new resolver
func NewResolver(c comm.Communicator, imap mpc.IndexMap, loc Locator, cells []int, timeout time.Duration, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{Comm: c, Imap: imap, Loc: loc, Cells: cells, Timeout: timeout, Log: log.With(zap.Int("rank", c.Rank()))}
}

// Resolve returns the table with the owned slaves of queries and the ghost slaves
//  queries -- slaves owned by this rank
//  ghosts  -- slaves held by this rank as ghosts
//  Output: unbuilt table with owners of masters set
func (o *Resolver) Resolve(ctx context.Context, queries []Query, ghosts []int) (tab *mpc.Table, err error) {
	start := time.Now()
	for _, q := range queries {
		if !o.owned(q.Slave) {
			return nil, fmt.Errorf("%w: slave %d of query is not owned by rank %d", mpc.ErrStructural, q.Slave, o.Comm.Rank())
		}
	}

	// boxes
	boxes, err := o.boxes(ctx)
	if err != nil {
		return
	}

	// phase 0
	recv, err := o.collisions(ctx, queries, boxes)
	if err != nil {
		return
	}

	// phase 1
	remote, err := o.masters(ctx, queries, boxes, recv)
	if err != nil {
		return
	}

	// selection
	chosen, err := o.selection(queries, remote)
	if err = comm.Agree(ctx, o.Comm, TagAgree, err); err != nil {
		return nil, protocol("selection", err)
	}

	// phase 2
	gmasters, err := o.ghostMasters(ctx, queries, chosen, ghosts)
	if err != nil {
		return
	}

	// table
	bld := mpc.NewBuilder()
	for _, m := range []map[int]*Match{chosen, gmasters} {
		slaves := make([]int, 0, len(m))
		for s := range m {
			slaves = append(slaves, s)
		}
		sort.Ints(slaves)
		for _, s := range slaves {
			if err = bld.Add(s, m[s].Masters, m[s].Coeffs, m[s].Owners); err != nil {
				return
			}
		}
	}
	tab = bld.Table()
	o.Log.Debug("constraints resolved", zap.Int("owned", len(chosen)), zap.Int("ghosts", len(gmasters)), zap.Duration("elapsed", time.Since(start)))
	return
}

// boxes all-gathers the bounding boxes of the local master surfaces
func (o *Resolver) boxes(ctx context.Context) (boxes []Box, err error) {
	ctx, cancel := o.phase(ctx)
	defer cancel()
	me := o.Comm.Rank()
	mine := o.Loc.Box(o.Cells)
	msg := new(comm.Message)
	if !mine.Empty() {
		msg.Floats = append(append(msg.Floats, mine.Min...), mine.Max...)
	}
	msgs := make([]*comm.Message, o.Comm.Size())
	for r := range msgs {
		msgs[r] = msg
	}
	recv, err := comm.Exchange(ctx, o.Comm, TagBoxes, msgs)
	if err != nil {
		return nil, protocol("boxes", err)
	}
	boxes = make([]Box, o.Comm.Size())
	for r, m := range recv {
		if r == me {
			boxes[r] = mine
			continue
		}
		if err = check(m, TagBoxes, r); err != nil {
			return
		}
		nf := len(m.Floats)
		if nf%2 != 0 {
			return nil, fmt.Errorf("%w: box from rank %d has %d coordinates", mpc.ErrProtocol, r, nf)
		}
		if nf > 0 {
			boxes[r] = Box{Min: m.Floats[:nf/2], Max: m.Floats[nf/2:]}
		}
	}
	o.Log.Debug("boxes exchanged", zap.String("phase", "boxes"))
	return
}

// collisions sends each query to the ranks whose box contains it and receives the queries of other ranks
//  Message: Ints = [ndim, slaves...]; Floats = [x..., n...] per query
func (o *Resolver) collisions(ctx context.Context, queries []Query, boxes []Box) (recv [][]Query, err error) {
	ctx, cancel := o.phase(ctx)
	defer cancel()
	me, size := o.Comm.Rank(), o.Comm.Size()
	msgs := make([]*comm.Message, size)
	nsent := 0
	for r := 0; r < size; r++ {
		msgs[r] = new(comm.Message)
		if r == me {
			continue
		}
		for _, q := range queries {
			if !boxes[r].Contains(q.X) {
				continue
			}
			if len(msgs[r].Ints) == 0 {
				msgs[r].Ints = []int{len(q.X)}
			}
			msgs[r].Ints = append(msgs[r].Ints, q.Slave)
			msgs[r].Floats = append(msgs[r].Floats, q.X...)
			msgs[r].Floats = append(msgs[r].Floats, normal(q)...)
			nsent++
		}
	}
	in, err := comm.Exchange(ctx, o.Comm, TagCollisions, msgs)
	if err != nil {
		return nil, protocol("collisions", err)
	}
	recv = make([][]Query, size)
	for r, m := range in {
		if r == me {
			continue
		}
		if err = check(m, TagCollisions, r); err != nil {
			return
		}
		if len(m.Ints) == 0 {
			continue
		}
		ndim := m.Ints[0]
		slaves := m.Ints[1:]
		if ndim < 1 || len(m.Floats) != 2*ndim*len(slaves) {
			return nil, fmt.Errorf("%w: queries from rank %d are malformed", mpc.ErrProtocol, r)
		}
		for k, s := range slaves {
			f := m.Floats[2*ndim*k : 2*ndim*(k+1)]
			q := Query{Slave: s, X: f[:ndim], N: f[ndim:]}
			if isZero(q.N) {
				q.N = nil
			}
			recv[r] = append(recv[r], q)
		}
	}
	o.Log.Debug("queries exchanged", zap.String("phase", "collisions"), zap.Int("sent", nsent))
	return
}

// masters answers the queries of other ranks and receives the answers to the local queries
//  Message: Ints = [slave, found, n, masters..., owners...] per query; Floats = [dist, coeffs...] per found query
func (o *Resolver) masters(ctx context.Context, queries []Query, boxes []Box, recv [][]Query) (remote []map[int]*Match, err error) {
	ctx, cancel := o.phase(ctx)
	defer cancel()
	me, size := o.Comm.Rank(), o.Comm.Size()
	msgs := make([]*comm.Message, size)
	for r := 0; r < size; r++ {
		msgs[r] = new(comm.Message)
		for _, q := range recv[r] {
			res, found := o.Loc.Locate(q, o.Cells)
			if !found {
				msgs[r].Ints = append(msgs[r].Ints, q.Slave, 0, 0)
				continue
			}
			n := len(res.Masters)
			msgs[r].Ints = append(msgs[r].Ints, q.Slave, 1, n)
			msgs[r].Ints = append(msgs[r].Ints, res.Masters...)
			msgs[r].Ints = append(msgs[r].Ints, res.Owners...)
			msgs[r].Floats = append(msgs[r].Floats, res.Dist)
			msgs[r].Floats = append(msgs[r].Floats, res.Coeffs...)
		}
	}
	in, err := comm.Exchange(ctx, o.Comm, TagMasters, msgs)
	if err != nil {
		return nil, protocol("masters", err)
	}
	remote = make([]map[int]*Match, size)
	for r, m := range in {
		if r == me {
			continue
		}
		if err = check(m, TagMasters, r); err != nil {
			return
		}
		if remote[r], err = decodeMatches(m, r); err != nil {
			return
		}

		// every query sent to r must be answered
		for _, q := range queries {
			if boxes[r].Contains(q.X) {
				if _, ok := remote[r][q.Slave]; !ok {
					return nil, fmt.Errorf("%w: rank %d did not answer the query of slave %d", mpc.ErrProtocol, r, q.Slave)
				}
			}
		}
	}
	o.Log.Debug("matches exchanged", zap.String("phase", "masters"))
	return
}

// selection chooses the masters of each owned slave
func (o *Resolver) selection(queries []Query, remote []map[int]*Match) (chosen map[int]*Match, err error) {
	me, size := o.Comm.Rank(), o.Comm.Size()
	chosen = make(map[int]*Match, len(queries))
	for _, q := range queries {
		var best *Match
		for r := 0; r < size; r++ {
			var cand *Match
			if r == me {
				if res, found := o.Loc.Locate(q, o.Cells); found {
					cand = &res
				}
			} else if m := remote[r][q.Slave]; m != nil && m.Masters != nil {
				cand = m
			}
			if cand != nil && (best == nil || cand.Dist < best.Dist) {
				best = cand
			}
		}
		if best == nil {
			return nil, fmt.Errorf("%w: slave %d at %v has no master", mpc.ErrProtocol, q.Slave, q.X)
		}
		merged, err := merge(best)
		if err != nil {
			return nil, err
		}
		chosen[q.Slave] = merged
	}
	return
}

// ghostMasters pushes the masters of owned slaves to the ranks sharing them and receives the masters of ghost slaves
//  Message: Ints = [slave, n, masters..., owners...] per slave; Floats = [coeffs...] per slave
func (o *Resolver) ghostMasters(ctx context.Context, queries []Query, chosen map[int]*Match, ghosts []int) (gmasters map[int]*Match, err error) {
	ctx, cancel := o.phase(ctx)
	defer cancel()

	// push
	msgs := make([]*comm.Message, o.Comm.Size())
	npushed := 0
	for _, q := range queries {
		m := chosen[q.Slave]
		for _, r := range o.Imap.SharedRanks(o.Imap.GlobalToLocal(q.Slave)) {
			if msgs[r] == nil {
				msgs[r] = new(comm.Message)
				npushed++
			}
			msgs[r].Ints = append(msgs[r].Ints, q.Slave, len(m.Masters))
			msgs[r].Ints = append(msgs[r].Ints, m.Masters...)
			msgs[r].Ints = append(msgs[r].Ints, m.Owners...)
			msgs[r].Floats = append(msgs[r].Floats, m.Coeffs...)
		}
	}
	in, err := comm.Exchange(ctx, o.Comm, TagGhostMasters, msgs)
	if err != nil {
		return nil, protocol("ghost masters", err)
	}
	for _, g := range ghosts {
		if o.owned(g) {
			return nil, fmt.Errorf("%w: ghost slave %d is owned by rank %d", mpc.ErrStructural, g, o.Comm.Rank())
		}
	}

	// decode pushes; ranks without ghost slaves of the sender receive empty messages
	gmasters = make(map[int]*Match, len(ghosts))
	pushed := make(map[int]int)
	nrecv := 0
	for r, m := range in {
		if m == nil || (len(m.Ints) == 0 && len(m.Floats) == 0) {
			continue
		}
		if err = check(m, TagGhostMasters, r); err != nil {
			return nil, err
		}
		if err = decodePush(m, r, gmasters, pushed); err != nil {
			return nil, err
		}
		nrecv++
	}
	for _, g := range ghosts {
		if gmasters[g] == nil {
			return nil, fmt.Errorf("%w: masters of ghost slave %d were not pushed by rank %d", mpc.ErrProtocol, g, o.Imap.Owner(g))
		}
		if pushed[g] != o.Imap.Owner(g) {
			return nil, fmt.Errorf("%w: masters of ghost slave %d were pushed by rank %d instead of its owner %d", mpc.ErrProtocol, g, pushed[g], o.Imap.Owner(g))
		}
	}
	for g := range gmasters {
		if !contains(ghosts, g) {
			delete(gmasters, g)
		}
	}
	o.Log.Debug("ghost masters exchanged", zap.String("phase", "ghost masters"), zap.Int("pushed", npushed), zap.Int("received", nrecv))
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// phase returns the context of one phase
func (o *Resolver) phase(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return context.WithCancel(ctx)
}

// owned tells whether global dof g is owned by this rank
func (o *Resolver) owned(g int) bool {
	lo, hi := o.Imap.OwnedRange()
	return g >= lo && g < hi
}

// protocol wraps a transport error of a phase
func protocol(phase string, err error) error {
	return fmt.Errorf("%w: %s: %w", mpc.ErrProtocol, phase, err)
}

// check checks the tag of a received message
func check(m *comm.Message, tag, from int) error {
	if m == nil {
		return fmt.Errorf("%w: no message from rank %d with tag %d", mpc.ErrProtocol, from, tag)
	}
	if m.Tag != tag {
		return fmt.Errorf("%w: message from rank %d has tag %d; %d expected", mpc.ErrProtocol, from, m.Tag, tag)
	}
	return nil
}

// decodeMatches decodes the answers of rank r; not found queries have nil Masters
func decodeMatches(m *comm.Message, r int) (res map[int]*Match, err error) {
	res = make(map[int]*Match)
	bad := fmt.Errorf("%w: answers from rank %d are malformed", mpc.ErrProtocol, r)
	p, f := 0, 0
	for p < len(m.Ints) {
		if p+3 > len(m.Ints) {
			return nil, bad
		}
		s, found, n := m.Ints[p], m.Ints[p+1], m.Ints[p+2]
		p += 3
		if found == 0 {
			res[s] = &Match{}
			continue
		}
		if n < 1 || p+2*n > len(m.Ints) || f+1+n > len(m.Floats) {
			return nil, bad
		}
		res[s] = &Match{
			Masters: append([]int(nil), m.Ints[p:p+n]...),
			Owners:  append([]int(nil), m.Ints[p+n:p+2*n]...),
			Dist:    m.Floats[f],
			Coeffs:  append([]float64(nil), m.Floats[f+1:f+1+n]...),
		}
		p += 2 * n
		f += 1 + n
	}
	if f != len(m.Floats) {
		return nil, bad
	}
	return
}

// decodePush decodes the masters pushed by rank r
func decodePush(m *comm.Message, r int, res map[int]*Match, pushed map[int]int) error {
	bad := fmt.Errorf("%w: pushed masters from rank %d are malformed", mpc.ErrProtocol, r)
	p, f := 0, 0
	for p < len(m.Ints) {
		if p+2 > len(m.Ints) {
			return bad
		}
		s, n := m.Ints[p], m.Ints[p+1]
		p += 2
		if n < 1 || p+2*n > len(m.Ints) || f+n > len(m.Floats) {
			return bad
		}
		match := &Match{
			Masters: append([]int(nil), m.Ints[p:p+n]...),
			Owners:  append([]int(nil), m.Ints[p+n:p+2*n]...),
			Coeffs:  append([]float64(nil), m.Floats[f:f+n]...),
		}
		p += 2 * n
		f += n
		if old, ok := res[s]; ok && !same(old, match) {
			return fmt.Errorf("%w: conflicting masters of slave %d pushed by ranks %d and %d", mpc.ErrProtocol, s, pushed[s], r)
		}
		res[s] = match
		pushed[s] = r
	}
	if f != len(m.Floats) {
		return bad
	}
	return nil
}

// merge sorts the masters and sums the coefficients of repeated masters
func merge(m *Match) (res *Match, err error) {
	idx := make([]int, len(m.Masters))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return m.Masters[idx[a]] < m.Masters[idx[b]] })
	res = &Match{Dist: m.Dist}
	for _, i := range idx {
		n := len(res.Masters)
		if n > 0 && res.Masters[n-1] == m.Masters[i] {
			if res.Owners[n-1] != m.Owners[i] {
				return nil, fmt.Errorf("%w: master %d has owners %d and %d", mpc.ErrProtocol, m.Masters[i], res.Owners[n-1], m.Owners[i])
			}
			res.Coeffs[n-1] += m.Coeffs[i]
			continue
		}
		res.Masters = append(res.Masters, m.Masters[i])
		res.Coeffs = append(res.Coeffs, m.Coeffs[i])
		res.Owners = append(res.Owners, m.Owners[i])
	}
	return
}

// same tells whether two matches have the same masters, coefficients and owners
func same(a, b *Match) bool {
	if len(a.Masters) != len(b.Masters) {
		return false
	}
	for i := range a.Masters {
		if a.Masters[i] != b.Masters[i] || a.Coeffs[i] != b.Coeffs[i] || a.Owners[i] != b.Owners[i] {
			return false
		}
	}
	return true
}

// normal returns the normal of a query or zeros if it has no normal
func normal(q Query) []float64 {
	if len(q.N) == len(q.X) {
		return q.N
	}
	return make([]float64, len(q.X))
}

func isZero(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}

func contains(a []int, v int) bool {
	for _, x := range a {
		if x == v {
			return true
		}
	}
	return false
}
