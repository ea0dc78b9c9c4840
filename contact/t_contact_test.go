// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package contact

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/dof"
	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gompc/mpc"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/google/go-cmp/cmp"
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

// mockLocator returns fixed matches
type mockLocator struct {
	box     Box
	matches map[int]Match // slave => match
}

func (o *mockLocator) Box(cells []int) Box { return o.box }

func (o *mockLocator) Locate(q Query, cells []int) (Match, bool) {
	m, ok := o.matches[q.Slave]
	return m, ok
}

// threeRanks returns the index maps of 6 dofs split among three ranks:
//  dof 1 is owned by rank 0 and held as ghost by ranks 1 and 2
func threeRanks(tst *testing.T) []*dof.IndexMap {
	ranges := []int{0, 2, 4, 6}
	m0, err := dof.NewIndexMap(0, 1, ranges, nil, [][]int{nil, {1, 2}})
	require.NoError(tst, err)
	m1, err := dof.NewIndexMap(1, 1, ranges, []int{1}, [][]int{nil, nil})
	require.NoError(tst, err)
	m2, err := dof.NewIndexMap(2, 1, ranges, []int{1}, [][]int{nil, nil})
	require.NoError(tst, err)
	return []*dof.IndexMap{m0, m1, m2}
}

// slaveOf returns the masters, coefficients and owners of slave s
func slaveOf(tab *mpc.Table, s int) (masters []int, coeffs []float64, owners []int) {
	k := tab.SlaveIndex(s)
	if k < 0 {
		return
	}
	return tab.Constraint(k)
}

func Test_resolver01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("resolver01. ghosted slave receives the same masters on two ranks")

	everywhere := Box{Min: []float64{-10, -10}, Max: []float64{10, 10}}
	locs := []*mockLocator{
		{everywhere, map[int]Match{
			1: {Masters: []int{0}, Coeffs: []float64{1}, Owners: []int{0}, Dist: 0.5},
			5: {Masters: []int{0, 0}, Coeffs: []float64{0.25, 0.25}, Owners: []int{0, 0}, Dist: 0.2},
		}},
		{everywhere, map[int]Match{
			1: {Masters: []int{3, 2}, Coeffs: []float64{0.5, 0.5}, Owners: []int{1, 1}, Dist: 0.1},
		}},
		{everywhere, map[int]Match{
			1: {Masters: []int{4}, Coeffs: []float64{1}, Owners: []int{2}, Dist: 0.1},
		}},
	}
	queries := [][]Query{
		{{Slave: 1, X: []float64{0, 0}, N: []float64{0, 1}}},
		nil,
		{{Slave: 5, X: []float64{1, 1}}},
	}
	ghosts := [][]int{nil, {1}, {1}}

	imaps := threeRanks(tst)
	tabs := make([]*mpc.Table, 3)
	world := comm.NewWorld(3, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := world.Run(ctx, func(ctx context.Context, c comm.Communicator) (err error) {
		r := c.Rank()
		res := NewResolver(c, imaps[r], locs[r], nil, time.Second, nil)
		tabs[r], err = res.Resolve(ctx, queries[r], ghosts[r])
		return
	})
	require.NoError(tst, err)
	for r := 0; r < 3; r++ {
		chk.Int(tst, io.Sf("pending @ %d", r), world.Pending(r), 0)
	}

	// owner: tie between ranks 1 and 2 goes to rank 1
	masters, coeffs, owners := slaveOf(tabs[0], 1)
	chk.Ints(tst, "masters of 1", masters, []int{2, 3})
	chk.Array(tst, "coeffs of 1", 1e-17, coeffs, []float64{0.5, 0.5})
	chk.Ints(tst, "owners of 1", owners, []int{1, 1})
	chk.Ints(tst, "slaves @ 0", tabs[0].Slaves, []int{1})

	// ghosts
	for _, r := range []int{1, 2} {
		m, c, o := slaveOf(tabs[r], 1)
		if diff := cmp.Diff([]any{masters, coeffs, owners}, []any{m, c, o}); diff != "" {
			tst.Errorf("rank %d: masters of ghost slave differ:\n%s", r, diff)
		}
	}
	chk.Ints(tst, "slaves @ 1", tabs[1].Slaves, []int{1})
	chk.Ints(tst, "slaves @ 2", tabs[2].Slaves, []int{1, 5})

	// duplicates are merged
	masters, coeffs, owners = slaveOf(tabs[2], 5)
	chk.Ints(tst, "masters of 5", masters, []int{0})
	chk.Array(tst, "coeffs of 5", 1e-17, coeffs, []float64{0.5})
	chk.Ints(tst, "owners of 5", owners, []int{0})

	// tables can be built
	for r, tab := range tabs {
		require.NoError(tst, tab.Validate(6), "rank %d", r)
	}
}

func Test_resolver02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("resolver02. protocol errors")

	run := func(locs []*mockLocator, queries [][]Query, ghosts [][]int) (errs []error) {
		imaps := threeRanks(tst)
		errs = make([]error, 3)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var mu sync.Mutex
		err := comm.NewWorld(3, nil).Run(ctx, func(ctx context.Context, c comm.Communicator) error {
			r := c.Rank()
			_, e := NewResolver(c, imaps[r], locs[r], nil, 200*time.Millisecond, nil).Resolve(ctx, queries[r], ghosts[r])
			mu.Lock()
			errs[r] = e
			mu.Unlock()
			return nil
		})
		require.NoError(tst, err)
		return
	}
	everywhere := Box{Min: []float64{-10, -10}, Max: []float64{10, 10}}
	empty := func() []*mockLocator {
		return []*mockLocator{{everywhere, nil}, {everywhere, nil}, {everywhere, nil}}
	}

	// slave without master
	errs := run(empty(), [][]Query{{{Slave: 1, X: []float64{0, 0}}}, nil, nil}, [][]int{nil, nil, nil})
	for r, e := range errs {
		require.ErrorIs(tst, e, mpc.ErrProtocol, "rank %d", r)
	}
	io.Pforan("no master: %v\n", errs[0])

	// missing push: rank 0 expects ghost 4 from rank 2
	locs := empty()
	locs[2].matches = map[int]Match{5: {Masters: []int{0}, Coeffs: []float64{1}, Owners: []int{0}}}
	errs = run(locs, [][]Query{nil, nil, {{Slave: 5, X: []float64{0, 0}}}}, [][]int{{4}, nil, nil})
	require.ErrorIs(tst, errs[0], mpc.ErrProtocol)
	require.NoError(tst, errs[1])
	require.NoError(tst, errs[2])
	io.Pforan("missing push: %v\n", errs[0])

	// query of slave not owned
	errs = run(empty(), [][]Query{{{Slave: 3, X: []float64{0, 0}}}, nil, nil}, [][]int{nil, nil, nil})
	require.ErrorIs(tst, errs[0], mpc.ErrStructural)
}

func Test_resolver03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("resolver03. merge and decoding")

	m, err := merge(&Match{Masters: []int{7, 2, 7}, Coeffs: []float64{0.25, 0.5, 0.25}, Owners: []int{1, 0, 1}, Dist: 0.3})
	require.NoError(tst, err)
	chk.Ints(tst, "masters", m.Masters, []int{2, 7})
	chk.Array(tst, "coeffs", 1e-17, m.Coeffs, []float64{0.5, 0.5})
	chk.Ints(tst, "owners", m.Owners, []int{0, 1})
	chk.Float64(tst, "dist", 1e-17, m.Dist, 0.3)

	_, err = merge(&Match{Masters: []int{7, 7}, Coeffs: []float64{0.5, 0.5}, Owners: []int{1, 0}})
	require.ErrorIs(tst, err, mpc.ErrProtocol)

	res, err := decodeMatches(&comm.Message{Ints: []int{4, 0, 0, 9, 1, 2, 3, 5, 0, 1}, Floats: []float64{0.1, 0.6, 0.4}}, 1)
	require.NoError(tst, err)
	require.Nil(tst, res[4].Masters)
	chk.Ints(tst, "masters of 9", res[9].Masters, []int{3, 5})
	chk.Ints(tst, "owners of 9", res[9].Owners, []int{0, 1})
	chk.Array(tst, "coeffs of 9", 1e-17, res[9].Coeffs, []float64{0.6, 0.4})

	_, err = decodeMatches(&comm.Message{Ints: []int{9, 1, 2, 3}, Floats: []float64{0.1}}, 1)
	require.ErrorIs(tst, err, mpc.ErrProtocol)

	got := make(map[int]*Match)
	pushed := make(map[int]int)
	require.NoError(tst, decodePush(&comm.Message{Ints: []int{9, 1, 3, 0}, Floats: []float64{1}}, 0, got, pushed))
	err = decodePush(&comm.Message{Ints: []int{9, 1, 4, 0}, Floats: []float64{1}}, 2, got, pushed)
	require.ErrorIs(tst, err, mpc.ErrProtocol)
	io.Pforan("conflict: %v\n", err)
}

func Test_locator01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("locator01. projection onto master edges")

	/*       upper block: 3 divisions; bottom edge has tag -20
	 *  6------7------8------9      y = 0.5 (upper)
	 *  3-------------4-------------5  y = 0.5 (lower)
	 *       lower block: 2 divisions; top edge has tag -12
	 */
	msh, err := inp.GenTied(2, 3, 2, 0, 1, 0, 1, 1)
	require.NoError(tst, err)
	sp, err := dof.NewSpace(msh, 0, 1, 1)
	require.NoError(tst, err)
	loc, err := NewFacetLocator(sp, inp.TagTop, 1e-8)
	require.NoError(tst, err)
	cells := loc.Cells()
	chk.Int(tst, "number of cells with master edges", len(cells), 2)

	box := loc.Box(cells)
	chk.Array(tst, "box min", 1e-15, box.Min, []float64{-1e-8, 0.5 - 1e-8})
	chk.Array(tst, "box max", 1e-15, box.Max, []float64{1 + 1e-8, 0.5 + 1e-8})

	queries, ghosts := SlaveQueries(sp, inp.TagBottom-10, nil)
	chk.Int(tst, "number of ghosts", len(ghosts), 0)
	chk.Int(tst, "number of queries", len(queries), 4)
	for _, q := range queries {
		chk.Array(tst, io.Sf("normal of %d", q.Slave), 1e-15, q.N, []float64{0, -1})
	}

	// expected masters
	correct := map[int]struct {
		masters []int
		coeffs  []float64
	}{
		6: {[]int{3}, []float64{1}},
		7: {[]int{3, 4}, []float64{1.0 / 3.0, 2.0 / 3.0}},
		8: {[]int{4, 5}, []float64{2.0 / 3.0, 1.0 / 3.0}},
		9: {[]int{5}, []float64{1}},
	}
	for _, q := range queries {
		res, found := loc.Locate(q, cells)
		require.True(tst, found, "slave %d", q.Slave)
		m, err := merge(&res)
		require.NoError(tst, err)
		chk.Ints(tst, io.Sf("masters of %d", q.Slave), m.Masters, correct[q.Slave].masters)
		chk.Array(tst, io.Sf("coeffs of %d", q.Slave), 1e-15, m.Coeffs, correct[q.Slave].coeffs)
		chk.Float64(tst, io.Sf("dist of %d", q.Slave), 1e-15, m.Dist, 0)
	}

	// normals must oppose
	_, found := loc.Locate(Query{Slave: 7, X: []float64{1.0 / 3.0, 0.5}, N: []float64{0, 1}}, cells)
	require.False(tst, found)

	// too far
	_, found = loc.Locate(Query{Slave: 7, X: []float64{1.0 / 3.0, 0.6}}, cells)
	require.False(tst, found)

	// input errors
	_, err = NewFacetLocator(sp, 1, 1e-8)
	require.Error(tst, err)
	_, err = NewFacetLocator(sp, inp.TagTop, 0)
	require.Error(tst, err)
}

func Test_locator02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("locator02. distributed tie equals serial tie")

	// resolve tie with nproc ranks; returns slave vertex => master vertices and coefficients
	resolve := func(nproc int) (ties map[int]tie) {
		msh, err := inp.GenTied(3, 4, 2, 0, 4, 0, 2, nproc)
		require.NoError(tst, err)
		ties = make(map[int]tie)
		var mu sync.Mutex
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = comm.NewWorld(nproc, nil).Run(ctx, func(ctx context.Context, c comm.Communicator) (err error) {
			sp, err := dof.NewSpace(msh, c.Rank(), nproc, 2)
			if err != nil {
				return
			}
			loc, err := NewFacetLocator(sp, inp.TagTop, 1e-8)
			if err != nil {
				return
			}
			queries, ghosts := SlaveQueries(sp, inp.TagBottom-10, nil)
			tab, err := NewResolver(c, sp.Imap, loc, loc.Cells(), time.Second, nil).Resolve(ctx, queries, ghosts)
			if err != nil {
				return
			}
			if err = tab.Build(sp.Dofs, sp.Imap); err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for k, s := range tab.Slaves {
				masters, coeffs, _ := tab.Constraint(k)
				vs, comp := sp.DofVert(s)
				t := tie{Coeffs: append([]float64(nil), coeffs...)}
				for _, m := range masters {
					vm, cm := sp.DofVert(m)
					if cm != comp {
						return chk.Err("component of master %d differs from component of slave %d", m, s)
					}
					t.Masters = append(t.Masters, vm)
				}
				sort.Sort(byVert(t))
				key := 2*vs + comp
				if old, ok := ties[key]; ok {
					if diff := cmp.Diff(old, t); diff != "" {
						return chk.Err("ranks disagree on slave vertex %d:\n%s", vs, diff)
					}
				}
				ties[key] = t
			}
			return
		})
		require.NoError(tst, err)
		return
	}

	serial := resolve(1)
	chk.Int(tst, "number of slave dofs", len(serial), 10)
	keys := make([]int, 0, len(serial))
	for k := range serial {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		io.Pf("%3d (%d) => %v %v\n", k/2, k%2, serial[k].Masters, serial[k].Coeffs)
	}
	for _, nproc := range []int{2, 3} {
		if diff := cmp.Diff(serial, resolve(nproc), cmp.Comparer(func(a, b float64) bool { return a-b < 1e-14 && b-a < 1e-14 })); diff != "" {
			tst.Errorf("nproc=%d: ties differ:\n%s", nproc, diff)
		}
	}
}

// tie holds the master vertices and coefficients of a slave
type tie struct {
	Masters []int
	Coeffs  []float64
}

// byVert sorts a tie by master vertex
type byVert tie

func (o byVert) Len() int           { return len(o.Masters) }
func (o byVert) Less(a, b int) bool { return o.Masters[a] < o.Masters[b] }
func (o byVert) Swap(a, b int) {
	o.Masters[a], o.Masters[b] = o.Masters[b], o.Masters[a]
	o.Coeffs[a], o.Coeffs[b] = o.Coeffs[b], o.Coeffs[a]
}
