// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/linsys"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TagAssembleAgree is the tag of the agreement on errors of the cell loop
const TagAssembleAgree = 130

// Facet identifies the local facet Fid of a cell
type Facet struct {
	Cell int // cell id
	Fid  int // local facet index
}

// FacetIntegral holds an integral over exterior facets
type FacetIntegral struct {
	Facets []Facet         // facets with the marker of this integral
	Fcn    FacetVectorFunc // kernel
}

// VectorForm holds the kernels of a linear form
type VectorForm struct {
	Cell   CellVectorFunc   // cell integral; may be nil
	Facets []*FacetIntegral // exterior facet integrals
	Lift   CellMatrixFunc   // bilinear form used to lift prescribed values; nil => no lifting
}

// Assembler assembles matrices and vectors with elimination of slave dofs
//  Notes:
//   1) cells with slaves go through the Transform; the others are inserted unchanged
//   2) rows and columns of prescribed dofs are zeroed; owners set a unit diagonal
//   3) owners set a unit diagonal at slave dofs
//   4) if Comm is given, errors of the cell loop are agreed before the collective Assemble
type Assembler struct {
	Tab     *Table            // constraints
	Dofs    DofMap            // cell => local dofs
	Imap    IndexMap          // local => global dofs
	Bcs     *Dirichlet        // prescribed values; may be nil
	Comm    comm.Communicator // communicator; may be nil for a single rank
	Workers int               // number of goroutines of the cell loop
	Log     *zap.Logger       // logger
}

// NewAssembler returns a new assembler
func NewAssembler(tab *Table, dofs DofMap, imap IndexMap, bcs *Dirichlet, c comm.Communicator, workers int, log *zap.Logger) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	if c != nil {
		log = log.With(zap.Int("rank", c.Rank()))
	}
	return &Assembler{Tab: tab, Dofs: dofs, Imap: imap, Bcs: bcs, Comm: c, Workers: workers, Log: log}
}

// AssembleMatrix assembles a bilinear form into A
//  Note: A.Assemble is called twice: after the cell loop and after the diagonal fix-up
func (o *Assembler) AssembleMatrix(ctx context.Context, A Matrix, fcn CellMatrixFunc) (err error) {
	start := time.Now()
	if err = o.check(); err != nil {
		return o.agree(ctx, err)
	}

	// cell loop
	cells := o.Dofs.Cells()
	ws := o.workers(len(cells), A, nil)
	err = o.forCells(ctx, cells, ws, func(w *worker, cell int) error {
		return w.matrix(cell, fcn)
	})
	if err == nil {
		for _, w := range ws {
			if err = w.mbuf.flush(A); err != nil {
				break
			}
		}
	}
	if err = o.agree(ctx, err); err != nil {
		return
	}
	if err = A.Assemble(ctx); err != nil {
		return classify(err)
	}

	// diagonal fix-up
	for _, g := range o.diagonal() {
		if err = A.Set([]int{g}, []int{g}, []float64{1}); err != nil {
			err = classify(err)
			break
		}
	}
	if err = o.agree(ctx, err); err != nil {
		return
	}
	if err = A.Assemble(ctx); err != nil {
		return classify(err)
	}
	o.Log.Debug("matrix assembled", zap.Int("cells", len(cells)), zap.Int("slavecells", len(o.Tab.SlaveCells)), zap.Duration("elapsed", time.Since(start)))
	return
}

// Pattern records the sparsity pattern of the matrices assembled by AssembleMatrix
func (o *Assembler) Pattern(ctx context.Context, P Matrix) error {
	return o.AssembleMatrix(ctx, P, func(cell int, K [][]float64) error {
		for i := range K {
			for j := range K[i] {
				K[i][j] = 1
			}
		}
		return nil
	})
}

// AssembleVector assembles a linear form into b
//  Note: b.Assemble is called twice: after the cell loop and after setting the prescribed values
func (o *Assembler) AssembleVector(ctx context.Context, b Vector, form *VectorForm) (err error) {
	start := time.Now()
	if err = o.check(); err != nil {
		return o.agree(ctx, err)
	}

	// cell and lifting loop
	cells := o.Dofs.Cells()
	ws := o.workers(len(cells), nil, b)
	err = o.forCells(ctx, cells, ws, func(w *worker, cell int) (err error) {
		if form.Cell != nil {
			if err = w.vector(cell, -1, form.Cell, nil); err != nil {
				return
			}
		}
		if form.Lift != nil && o.Bcs.Len() > 0 {
			err = w.lift(cell, form.Lift)
		}
		return
	})

	// facet loops
	mine := make(map[int]bool, len(cells))
	for _, c := range cells {
		mine[c] = true
	}
	for _, fi := range form.Facets {
		if err != nil {
			break
		}
		var fcells []int
		fids := make(map[int][]int)
		for _, f := range fi.Facets {
			if mine[f.Cell] {
				if _, ok := fids[f.Cell]; !ok {
					fcells = append(fcells, f.Cell)
				}
				fids[f.Cell] = append(fids[f.Cell], f.Fid)
			}
		}
		err = o.forCells(ctx, fcells, ws, func(w *worker, cell int) error {
			for _, fid := range fids[cell] {
				if e := w.vector(cell, fid, nil, fi.Fcn); e != nil {
					return e
				}
			}
			return nil
		})
	}

	// insert
	if err == nil {
		for _, w := range ws {
			if err = w.vbuf.flush(b); err != nil {
				break
			}
		}
	}
	if err = o.agree(ctx, err); err != nil {
		return
	}
	if err = b.Assemble(ctx); err != nil {
		return classify(err)
	}

	// prescribed values
	if o.Bcs.Len() > 0 {
		lo, hi := o.Imap.OwnedRange()
		for i, g := range o.Bcs.Dofs {
			if g >= lo && g < hi {
				if err = b.Set([]int{g}, []float64{o.Bcs.Vals[i]}); err != nil {
					err = classify(err)
					break
				}
			}
		}
	}
	if err = o.agree(ctx, err); err != nil {
		return
	}
	if err = b.Assemble(ctx); err != nil {
		return classify(err)
	}
	o.Log.Debug("vector assembled", zap.Int("cells", len(cells)), zap.Int("facetintegrals", len(form.Facets)), zap.Duration("elapsed", time.Since(start)))
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////////

// check checks the state of the table
func (o *Assembler) check() error {
	if o.Tab == nil || o.Tab.State() != Built {
		return ErrNotBuilt
	}
	if n := o.Dofs.NdofsPerElem(); n < 1 {
		return fmt.Errorf("%w: number of dofs per element is %d", ErrStructural, n)
	}
	return nil
}

// agree returns an error on all ranks if any rank failed
func (o *Assembler) agree(ctx context.Context, err error) error {
	if err != nil {
		o.Log.Warn("assembly failed", zap.Error(err))
	}
	if o.Comm == nil {
		return err
	}
	return comm.Agree(ctx, o.Comm, TagAssembleAgree, err)
}

// classify wraps errors of the collective assembly: timeouts are protocol errors; others are structural
func classify(err error) error {
	if errors.Is(err, comm.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return fmt.Errorf("%w: %w", ErrStructural, err)
}

// diagonal returns the owned slave and prescribed dofs
func (o *Assembler) diagonal() (dofs []int) {
	lo, hi := o.Imap.OwnedRange()
	for _, s := range o.Tab.Slaves {
		if s >= lo && s < hi {
			dofs = append(dofs, s)
		}
	}
	if o.Bcs != nil {
		for _, g := range o.Bcs.Dofs {
			if g >= lo && g < hi && !o.Tab.IsSlave(g) {
				dofs = append(dofs, g)
			}
		}
	}
	return
}

// workers allocates the scratch memory of each goroutine
func (o *Assembler) workers(ncells int, A Matrix, b Vector) (ws []*worker) {
	nw := max(1, min(o.Workers, ncells))
	n := o.Dofs.NdofsPerElem()
	ws = make([]*worker, nw)
	for i := range ws {
		w := &worker{asm: o, tr: NewTransform(o.Tab, n)}
		w.K = make([][]float64, n)
		for j := range w.K {
			w.K[j] = make([]float64, n)
		}
		w.f = make([]float64, n)
		w.flat = make([]float64, n*n)
		w.gdofs = make([]int, n)
		w.mbuf = new(matBuffer)
		w.vbuf = new(vecBuffer)
		if nw == 1 {
			w.mbuf.direct, w.vbuf.direct = A, b
		}
		ws[i] = w
	}
	return
}

// forCells runs work for all cells; cells are split into contiguous chunks, one per worker
func (o *Assembler) forCells(ctx context.Context, cells []int, ws []*worker, work func(w *worker, cell int) error) error {
	if len(ws) == 1 {
		for _, cell := range cells {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := work(ws[0], cell); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(cells) + len(ws) - 1) / len(ws)
	for i, w := range ws {
		lo, hi := min(i*chunk, len(cells)), min((i+1)*chunk, len(cells))
		g.Go(func() error {
			for _, cell := range cells[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := work(w, cell); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// worker holds the scratch memory of one goroutine
type worker struct {
	asm   *Assembler
	tr    *Transform
	K     [][]float64  // [n][n] local matrix
	f     []float64    // [n] local vector
	flat  []float64    // [n*n] row-major local matrix
	gdofs []int        // [n] global dofs of cell
	mbuf  *matBuffer   // matrix insertions
	vbuf  *vecBuffer   // vector insertions
	lifts linsys.Pairs // lifting of prescribed values
}

// setGlobal sets the global dofs of cell
func (o *worker) setGlobal(dofs []int) error {
	if len(dofs) != len(o.gdofs) {
		return fmt.Errorf("%w: cell has %d dofs; %d expected", ErrStructural, len(dofs), len(o.gdofs))
	}
	for i, l := range dofs {
		o.gdofs[i] = o.asm.Imap.LocalToGlobal(l)
	}
	return nil
}

// kernelMatrix computes the local matrix of cell
func (o *worker) kernelMatrix(cell int, fcn CellMatrixFunc) error {
	for i := range o.K {
		for j := range o.K[i] {
			o.K[i][j] = 0
		}
	}
	if err := fcn(cell, o.K); err != nil {
		return fmt.Errorf("%w: matrix kernel failed on cell %d: %w", ErrStructural, cell, err)
	}
	return nil
}

// flatten copies K into flat, row by row
func (o *worker) flatten() {
	n := len(o.K)
	for i := range o.K {
		copy(o.flat[i*n:(i+1)*n], o.K[i])
	}
}

// matrix computes, transforms and inserts the local matrix of cell
func (o *worker) matrix(cell int, fcn CellMatrixFunc) (err error) {
	dofs := o.asm.Dofs.CellDofs(cell)
	if err = o.setGlobal(dofs); err != nil {
		return
	}
	if err = o.kernelMatrix(cell, fcn); err != nil {
		return
	}

	// prescribed dofs
	bcs := o.asm.Bcs
	for i, g := range o.gdofs {
		if bcs.Has(g) {
			for j := range o.K {
				o.K[i][j] = 0
				o.K[j][i] = 0
			}
		}
	}

	// slaves
	if slaves := o.asm.Tab.CellSlaves(cell); len(slaves) > 0 {
		var out Emitter = globalMatrix{o.mbuf}
		if bcs.Len() > 0 {
			out = &bcFilter{out: out, bcs: bcs}
		}
		if err = o.tr.Matrix(o.K, o.gdofs, slaves, out); err != nil {
			return
		}
	}

	// local block
	o.flatten()
	return o.mbuf.AddLocal(dofs, dofs, o.flat)
}

// vector computes, transforms and inserts the local vector of cell or of facet fid of cell
func (o *worker) vector(cell, fid int, fcn CellVectorFunc, ffcn FacetVectorFunc) (err error) {
	dofs := o.asm.Dofs.CellDofs(cell)
	if err = o.setGlobal(dofs); err != nil {
		return
	}
	for i := range o.f {
		o.f[i] = 0
	}
	if fcn != nil {
		err = fcn(cell, o.f)
	} else {
		err = ffcn(cell, fid, o.f)
	}
	if err != nil {
		return fmt.Errorf("%w: vector kernel failed on cell %d (facet %d): %w", ErrStructural, cell, fid, err)
	}
	if slaves := o.asm.Tab.CellSlaves(cell); len(slaves) > 0 {
		if err = o.tr.Vector(o.f, o.gdofs, slaves, globalVector{o.vbuf}); err != nil {
			return
		}
	}
	return o.vbuf.AddLocal(dofs, o.f)
}

// lift adds -A[i][j]·g[j] at free dofs i for prescribed dofs j, with A the transformed local matrix
func (o *worker) lift(cell int, fcn CellMatrixFunc) (err error) {
	dofs := o.asm.Dofs.CellDofs(cell)
	if err = o.setGlobal(dofs); err != nil {
		return
	}
	bcs := o.asm.Bcs
	slaves := o.asm.Tab.CellSlaves(cell)
	touched := len(slaves) > 0
	for _, g := range o.gdofs {
		if bcs.Has(g) {
			touched = true
			break
		}
	}
	if !touched {
		return
	}
	if err = o.kernelMatrix(cell, fcn); err != nil {
		return
	}
	o.lifts.Reset()
	sink := &liftSink{bcs: bcs, lifts: &o.lifts}
	if len(slaves) > 0 {
		if err = o.tr.Matrix(o.K, o.gdofs, slaves, sink); err != nil {
			return
		}
	}
	o.flatten()
	if err = sink.Add(o.gdofs, o.gdofs, o.flat); err != nil || o.lifts.Len() == 0 {
		return
	}
	return o.vbuf.Add(o.lifts.I, o.lifts.X)
}

// emitters and buffers ///////////////////////////////////////////////////////////////////////////////

// block holds a copy of an inserted block
type block struct {
	local bool      // local indices
	rows  []int     // rows or vector indices
	cols  []int     // columns; nil for vectors
	vals  []float64 // values
}

// matBuffer inserts into a matrix directly or keeps copies of blocks until flush
type matBuffer struct {
	direct Matrix
	blocks []block
}

func (o *matBuffer) AddLocal(rows, cols []int, vals []float64) error {
	if o.direct != nil {
		return o.direct.AddLocal(rows, cols, vals)
	}
	o.blocks = append(o.blocks, block{true, append([]int(nil), rows...), append([]int(nil), cols...), append([]float64(nil), vals...)})
	return nil
}

func (o *matBuffer) Add(rows, cols []int, vals []float64) error {
	if o.direct != nil {
		return o.direct.Add(rows, cols, vals)
	}
	o.blocks = append(o.blocks, block{false, append([]int(nil), rows...), append([]int(nil), cols...), append([]float64(nil), vals...)})
	return nil
}

func (o *matBuffer) flush(A Matrix) (err error) {
	for _, b := range o.blocks {
		if b.local {
			err = A.AddLocal(b.rows, b.cols, b.vals)
		} else {
			err = A.Add(b.rows, b.cols, b.vals)
		}
		if err != nil {
			return
		}
	}
	o.blocks = nil
	return
}

// vecBuffer inserts into a vector directly or keeps copies of values until flush
type vecBuffer struct {
	direct Vector
	blocks []block
}

func (o *vecBuffer) AddLocal(idx []int, vals []float64) error {
	if o.direct != nil {
		return o.direct.AddLocal(idx, vals)
	}
	o.blocks = append(o.blocks, block{true, append([]int(nil), idx...), nil, append([]float64(nil), vals...)})
	return nil
}

func (o *vecBuffer) Add(idx []int, vals []float64) error {
	if o.direct != nil {
		return o.direct.Add(idx, vals)
	}
	o.blocks = append(o.blocks, block{false, append([]int(nil), idx...), nil, append([]float64(nil), vals...)})
	return nil
}

func (o *vecBuffer) flush(b Vector) (err error) {
	for _, blk := range o.blocks {
		if blk.local {
			err = b.AddLocal(blk.rows, blk.vals)
		} else {
			err = b.Add(blk.rows, blk.vals)
		}
		if err != nil {
			return
		}
	}
	o.blocks = nil
	return
}

// globalMatrix sends emitted blocks to the global insertion of a buffer
type globalMatrix struct{ buf *matBuffer }

func (o globalMatrix) Add(rows, cols []int, vals []float64) error { return o.buf.Add(rows, cols, vals) }

// globalVector sends emitted values to the global insertion of a buffer
type globalVector struct{ buf *vecBuffer }

func (o globalVector) Add(idx []int, vals []float64) error { return o.buf.Add(idx, vals) }

// bcFilter zeroes the values of emitted entries in rows or columns of prescribed dofs
//  Note: positions are kept so the sparsity pattern does not depend on values
type bcFilter struct {
	out  Emitter
	bcs  *Dirichlet
	vals []float64
}

func (o *bcFilter) Add(rows, cols []int, vals []float64) error {
	o.vals = append(o.vals[:0], vals...)
	nc := len(cols)
	for a, i := range rows {
		ibc := o.bcs.Has(i)
		for b, j := range cols {
			if ibc || o.bcs.Has(j) {
				o.vals[a*nc+b] = 0
			}
		}
	}
	return o.out.Add(rows, cols, o.vals)
}

// liftSink collects -v·g[j] at row i for entries (i, j, v) with prescribed j and free i
type liftSink struct {
	bcs   *Dirichlet
	lifts *linsys.Pairs
}

func (o *liftSink) Add(rows, cols []int, vals []float64) error {
	nc := len(cols)
	for b, j := range cols {
		k := o.bcs.Index(j)
		if k < 0 {
			continue
		}
		g := o.bcs.Vals[k]
		for a, i := range rows {
			if v := vals[a*nc+b]; v != 0 && !o.bcs.Has(i) {
				o.lifts.Put(i, -v*g)
			}
		}
	}
	return nil
}
