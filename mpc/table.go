// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package mpc implements multi-point constraints by elimination of slave dofs during assembly
package mpc

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cpmech/gosl/io"
)

// errors
var (
	ErrStructural = errors.New("mpc: structural error")           // inconsistent table, dofs or shapes
	ErrProtocol   = errors.New("mpc: distributed protocol error") // missing or conflicting messages
	ErrNotBuilt   = fmt.Errorf("%w: constraint table is not built", ErrStructural)
)

// State holds the state of a constraint table
type State int

// states
const (
	Unbuilt State = iota // arrays are set but the cell-to-slave map is not available
	Built                // ready for assembly
	Stale                // mesh, space or constraints changed; must be built again
)

// String returns the name of a state
func (o State) String() string {
	switch o {
	case Unbuilt:
		return "unbuilt"
	case Built:
		return "built"
	case Stale:
		return "stale"
	}
	return io.Sf("State(%d)", int(o))
}

// Table holds constraints u[Slaves[k]] = Σ Coeffs[p] u[Masters[p]], p in [Offsets[k], Offsets[k+1])
//  Notes:
//   1) slaves are global dofs sorted in increasing order; duplicates are not allowed
//   2) a master equal to its slave is a self-reference and moves nothing; if all masters of a slave
//      are self-references or have zero coefficients, the slave is fixed (u = 0)
//   3) masters cannot be slaves (chained constraints)
//   4) Owners[p] is the rank owning Masters[p]
type Table struct {

	// constraints
	Slaves  []int     // [nslaves] global slave dofs
	Masters []int     // [nmasters] global master dofs
	Coeffs  []float64 // [nmasters] coefficients
	Offsets []int     // [nslaves+1] offsets into Masters and Coeffs
	Owners  []int     // [nmasters] owning rank of masters; nil until built

	// cell-to-slave map
	SlaveCells  []int // cells with at least one slave
	CellOffsets []int // [len(SlaveCells)+1] offsets into CellToSlave
	CellToSlave []int // indices k of slaves, increasing for each cell

	// auxiliary
	state   State       // state
	cellpos map[int]int // cell => index in SlaveCells
}

// NewTable returns a new unbuilt table with the given arrays; the arrays are validated by Build
func NewTable(slaves, masters []int, coeffs []float64, offsets []int) *Table {
	return &Table{Slaves: slaves, Masters: masters, Coeffs: coeffs, Offsets: offsets}
}

// State returns the state of the table
func (o *Table) State() State { return o.state }

// MarkStale flags that the table must be built again
func (o *Table) MarkStale() {
	if o.state == Built {
		o.state = Stale
	}
}

// Nslaves returns the number of slaves
func (o *Table) Nslaves() int { return len(o.Slaves) }

// SlaveIndex returns the index k of a slave dof or -1 if g is not a slave
func (o *Table) SlaveIndex(g int) int {
	k := sort.SearchInts(o.Slaves, g)
	if k < len(o.Slaves) && o.Slaves[k] == g {
		return k
	}
	return -1
}

// IsSlave tells whether g is a slave dof
func (o *Table) IsSlave(g int) bool { return o.SlaveIndex(g) >= 0 }

// Constraint returns the masters, coefficients and owners of slave k; owners is nil if not built
func (o *Table) Constraint(k int) (masters []int, coeffs []float64, owners []int) {
	a, b := o.Offsets[k], o.Offsets[k+1]
	if o.Owners != nil {
		owners = o.Owners[a:b]
	}
	return o.Masters[a:b], o.Coeffs[a:b], owners
}

// Fixed tells whether slave k has no effective master
func (o *Table) Fixed(k int) bool {
	masters, coeffs, _ := o.Constraint(k)
	for p, m := range masters {
		if m != o.Slaves[k] && coeffs[p] != 0 {
			return false
		}
	}
	return true
}

// CellSlaves returns the indices k of the slaves in cell; nil if the cell has no slave
func (o *Table) CellSlaves(cell int) []int {
	p, ok := o.cellpos[cell]
	if !ok {
		return nil
	}
	return o.CellToSlave[o.CellOffsets[p]:o.CellOffsets[p+1]]
}

// Validate checks the constraint arrays against a global space with n dofs
func (o *Table) Validate(n int) error {
	ns := len(o.Slaves)
	if len(o.Offsets) != ns+1 {
		return fmt.Errorf("%w: offsets has %d entries; %d slaves need %d", ErrStructural, len(o.Offsets), ns, ns+1)
	}
	if o.Offsets[0] != 0 {
		return fmt.Errorf("%w: first offset must be zero; %d is invalid", ErrStructural, o.Offsets[0])
	}
	for k := 0; k < ns; k++ {
		if o.Offsets[k+1] <= o.Offsets[k] {
			return fmt.Errorf("%w: offsets must be strictly increasing; offsets[%d]=%d and offsets[%d]=%d", ErrStructural, k, o.Offsets[k], k+1, o.Offsets[k+1])
		}
	}
	nm := o.Offsets[ns]
	if len(o.Masters) != nm || len(o.Coeffs) != nm {
		return fmt.Errorf("%w: last offset is %d but there are %d masters and %d coefficients", ErrStructural, nm, len(o.Masters), len(o.Coeffs))
	}
	if o.Owners != nil && len(o.Owners) != nm {
		return fmt.Errorf("%w: there are %d owners and %d masters", ErrStructural, len(o.Owners), nm)
	}
	for k, s := range o.Slaves {
		if s < 0 || s >= n {
			return fmt.Errorf("%w: slave %d is out of range [0,%d)", ErrStructural, s, n)
		}
		if k > 0 && s <= o.Slaves[k-1] {
			if s == o.Slaves[k-1] {
				return fmt.Errorf("%w: slave %d is repeated", ErrStructural, s)
			}
			return fmt.Errorf("%w: slaves must be sorted; %d comes after %d", ErrStructural, s, o.Slaves[k-1])
		}
	}
	for k, s := range o.Slaves {
		masters, _, _ := o.Constraint(k)
		for _, m := range masters {
			if m < 0 || m >= n {
				return fmt.Errorf("%w: master %d of slave %d is out of range [0,%d)", ErrStructural, m, s, n)
			}
			if m != s && o.IsSlave(m) {
				return fmt.Errorf("%w: master %d of slave %d is also a slave", ErrStructural, m, s)
			}
		}
	}
	return nil
}

// Build validates the table, sets the owners of masters and builds the cell-to-slave map
//  Note: owners already set (e.g. by the ghost resolver) must agree with the index map
func (o *Table) Build(dofs DofMap, imap IndexMap) error {
	o.state = Unbuilt
	if err := o.Validate(imap.GlobalSize()); err != nil {
		return err
	}

	// owners
	if o.Owners == nil {
		o.Owners = make([]int, len(o.Masters))
		for p, m := range o.Masters {
			o.Owners[p] = imap.Owner(m)
		}
	} else {
		for p, m := range o.Masters {
			if r := imap.Owner(m); r != o.Owners[p] {
				return fmt.Errorf("%w: master %d is owned by rank %d; %d was given", ErrStructural, m, r, o.Owners[p])
			}
		}
	}

	// cell-to-slave map
	o.SlaveCells = o.SlaveCells[:0]
	o.CellToSlave = o.CellToSlave[:0]
	o.CellOffsets = append(o.CellOffsets[:0], 0)
	o.cellpos = make(map[int]int)
	if len(o.Slaves) > 0 {
		for _, cell := range dofs.Cells() {
			start := len(o.CellToSlave)
			for _, l := range dofs.CellDofs(cell) {
				if k := o.SlaveIndex(imap.LocalToGlobal(l)); k >= 0 {
					o.CellToSlave = append(o.CellToSlave, k)
				}
			}
			if len(o.CellToSlave) == start {
				continue
			}
			sort.Ints(o.CellToSlave[start:])
			o.cellpos[cell] = len(o.SlaveCells)
			o.SlaveCells = append(o.SlaveCells, cell)
			o.CellOffsets = append(o.CellOffsets, len(o.CellToSlave))
		}
	}
	o.state = Built
	return nil
}

// Builder collects constraints in any order and produces a table
type Builder struct {
	slaves  []int
	masters [][]int
	coeffs  [][]float64
	owners  [][]int
	seen    map[int]bool
}

// NewBuilder returns a new builder
func NewBuilder() *Builder {
	return &Builder{seen: make(map[int]bool)}
}

// Add adds the constraint of one slave
//  owners -- owning rank of each master; may be nil
func (o *Builder) Add(slave int, masters []int, coeffs []float64, owners []int) error {
	if o.seen[slave] {
		return fmt.Errorf("%w: slave %d is repeated", ErrStructural, slave)
	}
	if len(masters) == 0 || len(masters) != len(coeffs) {
		return fmt.Errorf("%w: slave %d has %d masters and %d coefficients", ErrStructural, slave, len(masters), len(coeffs))
	}
	if owners != nil && len(owners) != len(masters) {
		return fmt.Errorf("%w: slave %d has %d masters and %d owners", ErrStructural, slave, len(masters), len(owners))
	}
	o.seen[slave] = true
	o.slaves = append(o.slaves, slave)
	o.masters = append(o.masters, append([]int(nil), masters...))
	o.coeffs = append(o.coeffs, append([]float64(nil), coeffs...))
	o.owners = append(o.owners, append([]int(nil), owners...))
	return nil
}

// Len returns the number of constraints
func (o *Builder) Len() int { return len(o.slaves) }

// Table returns a new unbuilt table sorted by slave
//  Note: owners are kept only if they were given for all constraints
func (o *Builder) Table() *Table {
	idx := make([]int, len(o.slaves))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return o.slaves[idx[a]] < o.slaves[idx[b]] })
	withOwners := true
	for _, ow := range o.owners {
		if len(ow) == 0 {
			withOwners = false
		}
	}
	t := &Table{Offsets: []int{0}}
	for _, i := range idx {
		t.Slaves = append(t.Slaves, o.slaves[i])
		t.Masters = append(t.Masters, o.masters[i]...)
		t.Coeffs = append(t.Coeffs, o.coeffs[i]...)
		if withOwners {
			t.Owners = append(t.Owners, o.owners[i]...)
		}
		t.Offsets = append(t.Offsets, len(t.Masters))
	}
	return t
}

// String returns a representation of the constraints
func (o *Table) String() (l string) {
	l = io.Sf("table (%v) with %d slaves\n", o.state, len(o.Slaves))
	for k, s := range o.Slaves {
		masters, coeffs, _ := o.Constraint(k)
		l += io.Sf("  %d =", s)
		for p, m := range masters {
			if p > 0 {
				l += " +"
			}
			l += io.Sf(" %g·%d", coeffs[p], m)
		}
		l += "\n"
	}
	return
}
