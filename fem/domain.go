// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fem

import (
	"context"
	"math"
	"sort"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/contact"
	"github.com/cpmech/gompc/dof"
	"github.com/cpmech/gompc/ele"
	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gompc/linsys"
	"github.com/cpmech/gompc/mpc"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/la"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// message tags of the driver
const (
	TagSetupAgree  = 140 // agreement on errors while setting constraints
	TagTableGather = 141 // constraints of owned slaves sent to root
	TagSolveAgree  = 142 // agreement on errors of the solution at root
	TagSolution    = 143 // solution sent by root
	TagCheckAgree  = 144 // agreement on errors of the comparison with the reference
)

// Domain holds the data of one rank
type Domain struct {

	// init: essential
	Sim  *inp.Simulation  // simulation data
	Comm comm.Communicator // communicator
	Log  *zap.Logger       // logger

	// init: auxiliary
	Sp  *dof.Space     // function space (dofs of this rank)
	Ad  *ele.Adapter   // local kernels
	Bcs *mpc.Dirichlet // prescribed values
	Tab *mpc.Table     // constraints
	Asm *mpc.Assembler // assembler

	// stage: linear system
	Pat *linsys.Pattern // sparsity pattern
	Kb  *linsys.Matrix  // global matrix
	Fb  *linsys.Vector  // global right-hand side
	Sol *linsys.Vector  // solution; slaves are set by back-substitution

	// root only
	Kall *linsys.Triplets // gathered matrix
	Fall []float64        // gathered right-hand side
	U    []float64        // gathered solution
	Res  float64          // norm of residual of the reduced system
	Tol  float64          // tolerance of the last comparison against the reference

	// statistics
	Nexplicit int // number of explicit constraints
	Ncontact  int // number of constraints found by the contact search (owned and ghosts)
}

// NewDomain returns a new domain for the rank of c
func NewDomain(sim *inp.Simulation, c comm.Communicator, log *zap.Logger) (o *Domain, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	o = &Domain{Sim: sim, Comm: c, Log: log}
	o.Ad, err = ele.AdapterFromSim(sim)
	if err != nil {
		return nil, err
	}
	bs := o.Ad.Kernel.Bs
	for i, nbc := range sim.NatBcs {
		if len(nbc.Vals) != bs {
			return nil, chk.Err("natbc %d: kernel %q needs %d values; %d given", i, o.Ad.Kernel.Name, bs, len(nbc.Vals))
		}
		if len(sim.Msh.FaceTag2cells[nbc.Tag]) == 0 {
			return nil, chk.Err("natbc %d: cannot find edges with tag %d", i, nbc.Tag)
		}
	}
	o.Sp, err = dof.NewSpace(sim.Msh, c.Rank(), c.Size(), bs)
	if err != nil {
		return nil, err
	}
	err = o.SetBcs()
	return
}

// SetBcs sets the prescribed values of essential boundary conditions
//  Note: a dof on edges of many conditions takes the value of the first one
func (o *Domain) SetBcs() (err error) {
	var dofs []int
	var vals []float64
	seen := make(map[int]bool)
	for i, bc := range o.Sim.EssenBcs {
		if len(o.Sim.Msh.FaceTag2verts[bc.Tag]) == 0 {
			return chk.Err("essenbc %d: cannot find edges with tag %d", i, bc.Tag)
		}
		comps := make([]int, len(bc.Keys))
		for k, key := range bc.Keys {
			comps[k] = o.Ad.Kernel.Comp(key)
			if comps[k] < 0 {
				return chk.Err("essenbc %d: key %q is not available in kernel %q; keys are %v", i, key, o.Ad.Kernel.Name, o.Ad.Kernel.Keys)
			}
		}
		fcn, err := o.Sim.Functions.Get(bc.Func)
		if err != nil {
			return err
		}
		for _, g := range o.Sp.TagDofs(bc.Tag, comps) {
			if seen[g] {
				continue
			}
			seen[g] = true
			dofs = append(dofs, g)
			vals = append(vals, fcn.F(0, o.Sp.DofCoords(g)))
		}
	}
	o.Bcs, err = mpc.NewDirichlet(dofs, vals)
	return
}

// SetConstraints builds the table with the explicit constraints and the constraints of tied surfaces
//  Note: SetConstraints is collective
func (o *Domain) SetConstraints(ctx context.Context) (err error) {
	err = o.setConstraints(ctx)
	return comm.Agree(ctx, o.Comm, TagSetupAgree, err)
}

func (o *Domain) setConstraints(ctx context.Context) (err error) {
	imap := o.Sp.Imap
	bld := mpc.NewBuilder()
	add := func(slave int, masters []int, coeffs []float64) error {
		owners := make([]int, len(masters))
		for p, m := range masters {
			owners[p] = imap.Owner(m)
		}
		return bld.Add(slave, masters, coeffs, owners)
	}

	// explicit constraints
	explicit := make(map[int]bool)
	for i, c := range o.Sim.Constraints {
		s := o.Sp.DofCloseTo(c.Slave, c.Comp, inp.Ztol)
		if s < 0 {
			return chk.Err("constraint %d: cannot find slave vertex near %v with component %d", i, c.Slave, c.Comp)
		}
		if o.Bcs.Has(s) {
			return chk.Err("constraint %d: slave dof %d is prescribed", i, s)
		}
		masters := make([]int, len(c.Masters))
		for p, x := range c.Masters {
			masters[p] = o.Sp.DofCloseTo(x, c.Comp, inp.Ztol)
			if masters[p] < 0 {
				return chk.Err("constraint %d: cannot find master vertex near %v with component %d", i, x, c.Comp)
			}
		}
		if err = add(s, masters, c.Coeffs); err != nil {
			return
		}
		explicit[s] = true
	}
	o.Nexplicit = len(explicit)

	// tied surfaces
	if ct := o.Sim.Contact; ct != nil {
		loc, err := contact.NewFacetLocator(o.Sp, ct.MasterTag, ct.Tol)
		if err != nil {
			return err
		}
		queries, ghosts := contact.SlaveQueries(o.Sp, ct.SlaveTag, func(g int) bool {
			return explicit[g] || o.Bcs.Has(g)
		})
		res := contact.NewResolver(o.Comm, imap, loc, loc.Cells(), o.Sim.Solver.TimeoutDuration(), o.Log)
		tab, err := res.Resolve(ctx, queries, ghosts)
		if err != nil {
			return err
		}
		for k, s := range tab.Slaves {
			masters, coeffs, owners := tab.Constraint(k)
			if err = bld.Add(s, masters, coeffs, owners); err != nil {
				return err
			}
		}
		o.Ncontact = tab.Nslaves()
	}

	// table
	o.Tab = bld.Table()
	if err = o.Tab.Build(o.Sp.Dofs, imap); err != nil {
		return
	}
	o.Log.Debug("constraints set", zap.Int("rank", o.Comm.Rank()), zap.Int("explicit", o.Nexplicit), zap.Int("contact", o.Ncontact))
	return
}

// Assemble assembles the sparsity pattern, the matrix and the right-hand side
//  Note: Assemble is collective
func (o *Domain) Assemble(ctx context.Context) (err error) {
	imap := o.Sp.Imap
	o.Asm = mpc.NewAssembler(o.Tab, o.Sp.Dofs, imap, o.Bcs, o.Comm, o.Sim.Solver.Workers, o.Log)
	o.Pat = linsys.NewPattern(imap, o.Comm)
	if err = o.Asm.Pattern(ctx, o.Pat); err != nil {
		return
	}
	o.Kb = linsys.NewMatrix(imap, o.Comm, o.Pat, o.Log)
	if err = o.Asm.AssembleMatrix(ctx, o.Kb, o.Ad.Matrix); err != nil {
		return
	}
	o.Fb = linsys.NewVector(imap, o.Comm, o.Log)
	return o.Asm.AssembleVector(ctx, o.Fb, o.form(o.Sim.Solver.Lifting))
}

// Solve gathers the system at root, solves it, distributes the solution and back-substitutes the slaves
//  Note: Solve is collective
func (o *Domain) Solve(ctx context.Context) (err error) {
	imap := o.Sp.Imap
	root := o.Comm.Rank() == 0
	o.Kall, err = o.Kb.Gather(ctx, 0)
	if err != nil {
		return
	}
	o.Fall, err = o.Fb.Gather(ctx, 0)
	if err != nil {
		return
	}

	// solve at root
	var x []float64
	if root {
		x, err = o.solveSparse()
	}
	if err = comm.Agree(ctx, o.Comm, TagSolveAgree, err); err != nil {
		return
	}
	msg, err := comm.Bcast(ctx, o.Comm, 0, TagSolution, &comm.Message{Floats: x})
	if err != nil {
		return
	}
	if len(msg.Floats) != imap.GlobalSize() {
		return chk.Err("solution has %d values; %d expected", len(msg.Floats), imap.GlobalSize())
	}

	// distribute and back-substitute
	o.Sol = linsys.NewVector(imap, o.Comm, o.Log)
	lo, hi := imap.OwnedRange()
	idx := make([]int, hi-lo)
	for i := range idx {
		idx[i] = lo + i
	}
	if err = o.Sol.Add(idx, msg.Floats[lo:hi]); err != nil {
		return
	}
	if err = o.Sol.Assemble(ctx); err != nil {
		return
	}
	if err = mpc.BackSubstitute(ctx, o.Sol, o.Tab, imap); err != nil {
		return
	}
	o.U, err = o.Sol.Gather(ctx, 0)
	return
}

// Check compares the gathered system with the dense reduction of the system assembled without constraints
//  Output: at root, the larger of the infinity norms of the differences of matrices and right-hand sides
//  Note: Check is collective and must be called after Solve
func (o *Domain) Check(ctx context.Context, tol float64) (diff float64, err error) {
	imap := o.Sp.Imap

	// free system
	free := mpc.NewBuilder().Table()
	if err = free.Build(o.Sp.Dofs, imap); err != nil {
		return
	}
	asm := mpc.NewAssembler(free, o.Sp.Dofs, imap, nil, o.Comm, o.Sim.Solver.Workers, o.Log)
	A := linsys.NewMatrix(imap, o.Comm, nil, o.Log)
	if err = asm.AssembleMatrix(ctx, A, o.Ad.Matrix); err != nil {
		return
	}
	b := linsys.NewVector(imap, o.Comm, o.Log)
	if err = asm.AssembleVector(ctx, b, o.form(false)); err != nil {
		return
	}
	Aall, err := A.Gather(ctx, 0)
	if err != nil {
		return
	}
	ball, err := b.Gather(ctx, 0)
	if err != nil {
		return
	}
	tab, err := o.GatherTable(ctx)
	if err != nil {
		return
	}

	// compare at root
	if o.Comm.Rank() == 0 {
		diff, err = o.compare(Aall, ball, tab, tol)
	}
	err = comm.Agree(ctx, o.Comm, TagCheckAgree, err)
	return
}

// GatherTable collects the constraints of all ranks at root
//  Output: at root, the unbuilt table with all slaves; nil elsewhere
//  Note: GatherTable is collective
func (o *Domain) GatherTable(ctx context.Context) (tab *mpc.Table, err error) {
	msg := new(comm.Message)
	for k, s := range o.Tab.Slaves {
		if !o.Sp.Imap.IsOwned(s) {
			continue
		}
		masters, coeffs, _ := o.Tab.Constraint(k)
		msg.Ints = append(msg.Ints, s, len(masters))
		msg.Ints = append(msg.Ints, masters...)
		msg.Floats = append(msg.Floats, coeffs...)
	}
	msgs, err := comm.Gather(ctx, o.Comm, 0, TagTableGather, msg)
	if err != nil || o.Comm.Rank() != 0 {
		return
	}
	bld := mpc.NewBuilder()
	for r, m := range msgs {
		pos, fpos := 0, 0
		for pos < len(m.Ints) {
			if pos+2 > len(m.Ints) || pos+2+m.Ints[pos+1] > len(m.Ints) || fpos+m.Ints[pos+1] > len(m.Floats) {
				return nil, chk.Err("malformed constraints from rank %d", r)
			}
			s, n := m.Ints[pos], m.Ints[pos+1]
			if err = bld.Add(s, m.Ints[pos+2:pos+2+n], m.Floats[fpos:fpos+n], nil); err != nil {
				return nil, err
			}
			pos += 2 + n
			fpos += n
		}
	}
	return bld.Table(), nil
}

// VertValues returns the values of u at vertices: [nverts][bs]
func (o *Domain) VertValues(u []float64) (vals [][]float64) {
	vals = make([][]float64, len(o.Sim.Msh.Verts))
	for v := range vals {
		vals[v] = make([]float64, o.Sp.Bs)
		for k := 0; k < o.Sp.Bs; k++ {
			vals[v][k] = u[o.Sp.GlobalDof(v, k)]
		}
	}
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// form returns the linear form with the cell kernel and the natural boundary conditions
func (o *Domain) form(lifting bool) (form *mpc.VectorForm) {
	form = &mpc.VectorForm{Cell: o.Ad.Vector}
	for _, nbc := range o.Sim.NatBcs {
		var facets []mpc.Facet
		for _, cf := range o.Sim.Msh.FaceTag2cells[nbc.Tag] {
			facets = append(facets, mpc.Facet{Cell: cf.C.Id, Fid: cf.Fid})
		}
		sort.Slice(facets, func(a, b int) bool {
			if facets[a].Cell == facets[b].Cell {
				return facets[a].Fid < facets[b].Fid
			}
			return facets[a].Cell < facets[b].Cell
		})
		vals := nbc.Vals
		form.Facets = append(form.Facets, &mpc.FacetIntegral{Facets: facets, Fcn: func(cell, fid int, f []float64) error {
			return o.Ad.Facet(cell, fid, vals, f)
		}})
	}
	if lifting {
		form.Lift = o.Ad.Matrix
	}
	return
}

// solveSparse solves the gathered system with a sparse solver of gosl and computes the residual
func (o *Domain) solveSparse() (x []float64, err error) {
	n := o.Sp.Imap.GlobalSize()
	name := o.Sim.Solver.LinSol
	defer func() {
		if r := recover(); r != nil {
			x, err = nil, chk.Err("linear solver %q failed:\n%v", name, r)
		}
	}()
	Kb := o.Kall.ToGosl(n, n)
	sol := la.NewSparseSolver(name)
	defer sol.Free()
	sol.Init(Kb, &la.SpArgs{Symmetric: o.Sim.Solver.Symmetric})
	sol.Fact()
	x = make([]float64, n)
	sol.Solve(x, o.Fall, false)
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, chk.Err("linear solver %q failed: x[%d] = %g", name, i, v)
		}
	}

	// residual with the sparse matrix
	csr := o.Kall.ToCSR(n, n, 0)
	r := mat.NewVecDense(n, nil)
	r.MulVec(csr, mat.NewVecDense(n, x))
	r.SubVec(r, mat.NewVecDense(n, o.Fall))
	o.Res = mat.Norm(r, 2)
	o.Log.Debug("system solved", zap.String("solver", name), zap.Int("neq", n), zap.Int("nnz", Kb.Len()), zap.Float64("residual", o.Res))
	return
}

// compare compares the gathered system with the dense reference at root
func (o *Domain) compare(Aall *linsys.Triplets, ball []float64, tab *mpc.Table, tol float64) (diff float64, err error) {
	n := o.Sp.Imap.GlobalSize()
	A := mat.NewDense(n, n, nil)
	for k := range Aall.I {
		A.Set(Aall.I[k], Aall.J[k], A.At(Aall.I[k], Aall.J[k])+Aall.X[k])
	}
	Aref, bref, err := mpc.Reference(A, mat.NewVecDense(n, ball), tab, o.Bcs, o.Sim.Solver.Lifting)
	if err != nil {
		return
	}
	K := mat.NewDense(n, n, nil)
	for k := range o.Kall.I {
		K.Set(o.Kall.I[k], o.Kall.J[k], K.At(o.Kall.I[k], o.Kall.J[k])+o.Kall.X[k])
	}
	var D mat.Dense
	D.Sub(K, Aref)
	diff = mat.Norm(&D, math.Inf(1))
	for i := 0; i < n; i++ {
		diff = math.Max(diff, math.Abs(o.Fall[i]-bref.AtVec(i)))
	}
	o.Tol = tol * math.Max(1, mat.Norm(Aref, math.Inf(1)))
	if diff > o.Tol {
		return diff, chk.Err("assembled system differs from the reference by %g (tolerance = %g)", diff, o.Tol)
	}
	return
}
