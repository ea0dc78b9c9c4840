// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package fem implements the driver that assembles and solves linear systems with multi-point constraints
package fem

import (
	"context"
	"math"
	"time"

	"github.com/cpmech/gompc/comm"
	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gompc/out"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"go.uber.org/zap"
)

// CheckTol is the relative tolerance of the comparison with the dense reduced system
var CheckTol = 1e-10

// Main holds all data for a simulation using the finite element method
type Main struct {
	Sim     *inp.Simulation // simulation data
	Domains []*Domain       // domains of the ranks of this process
	Nproc   int             // number of ranks
	Proc    int             // rank of this process; 0 for in-process runs
	ShowMsg bool            // show messages
	Log     *zap.Logger     // logger

	// results at root
	U       [][]float64 // [nverts][bs] solution at vertices
	Res     float64     // norm of residual of the reduced system
	Diff    float64 // difference with the dense reduced system (if Sim.Data.Check)
	DiffTol float64 // tolerance of Diff; scaled by the norm of the reference matrix
	Fnout   string  // path of results file (if Sim.Data.DirOut is given)

	mpi comm.Communicator // MPI communicator; nil for in-process runs
}

// NewMain returns a new Main structure
//  Input:
//   simfilepath -- simulation (.sim) filename including full path
//   useMpi      -- run one rank per MPI process; otherwise ranks run as goroutines
//   verbose     -- show messages
func NewMain(simfilepath string, useMpi, verbose bool, log *zap.Logger) (o *Main, err error) {
	sim, err := inp.ReadSim(simfilepath)
	if err != nil {
		return
	}
	return NewMainSim(sim, useMpi, verbose, log)
}

// NewMainSim returns a new Main structure from simulation data already read
func NewMainSim(sim *inp.Simulation, useMpi, verbose bool, log *zap.Logger) (o *Main, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	o = &Main{Sim: sim, Nproc: sim.Solver.Nproc, Log: log}
	if useMpi {
		o.mpi, err = comm.NewMPI(log)
		if err != nil {
			return nil, err
		}
		o.Proc, o.Nproc = o.mpi.Rank(), o.mpi.Size()
		if o.Nproc < sim.Msh.Nparts {
			return nil, chk.Err("number of MPI processes (%d) is smaller than the number of partitions (%d)", o.Nproc, sim.Msh.Nparts)
		}
	}
	o.ShowMsg = verbose && o.Proc == 0
	if o.ShowMsg {
		io.Pf("> Simulation (.sim) file read\n")
		io.Pf("> Kernel = %q; number of ranks = %d\n", sim.Data.Kernel, o.Nproc)
	}
	return
}

// Run assembles and solves the linear system
func (o *Main) Run(ctx context.Context) (err error) {

	// exit commands
	cputime := time.Now()
	defer func() { err = o.onexit(cputime, err) }()

	// run ranks
	if o.ShowMsg {
		io.Pf("> Running FE solver\n")
	}
	o.Domains = make([]*Domain, o.Nproc)
	if o.mpi != nil {
		o.Domains = o.Domains[o.Proc : o.Proc+1]
		return o.rank(ctx, o.mpi, 0)
	}
	return comm.NewWorld(o.Nproc, o.Log).Run(ctx, func(ctx context.Context, c comm.Communicator) error {
		return o.rank(ctx, c, c.Rank())
	})
}

// rank runs all steps in one rank
func (o *Main) rank(ctx context.Context, c comm.Communicator, idx int) (err error) {
	root := c.Rank() == 0
	msg := func(format string, args ...interface{}) {
		if o.ShowMsg && root {
			io.Pf(format, args...)
		}
	}

	// domain
	d, err := NewDomain(o.Sim, c, o.Log)
	if err != nil {
		return
	}
	o.Domains[idx] = d
	if err = d.SetConstraints(ctx); err != nil {
		return
	}
	msg("> Constraints set: %d explicit, %d found by contact search in root\n", d.Nexplicit, d.Ncontact)

	// assemble
	if err = d.Assemble(ctx); err != nil {
		return
	}
	msg("> Linear system assembled: %d equations, %d non-zeros in root\n", d.Sp.Imap.GlobalSize(), d.Pat.Nnz())

	// solve
	if err = d.Solve(ctx); err != nil {
		return
	}
	if root {
		o.U = d.VertValues(d.U)
		o.Res = d.Res
	}
	msg("> Solution found: residual = %g\n", d.Res)

	// check
	if o.Sim.Data.Check {
		diff, err := d.Check(ctx, CheckTol)
		if root {
			o.Diff, o.DiffTol = diff, d.Tol
		}
		if err != nil {
			return err
		}
		msg("> Reduced system checked: difference = %g\n", diff)
	}

	// output
	if root && o.Sim.Data.DirOut != "" {
		res, err := out.NewResults(o.Sim, d.Ad.Kernel.Keys, c.Size(), d.Res, o.U)
		if err != nil {
			return err
		}
		if o.Fnout, err = res.Write(o.Sim.Data.DirOut); err != nil {
			return err
		}
		msg("> Results written to %s\n", o.Fnout)
	}
	return
}

// MaxAbs returns the maximum absolute value of each component of the solution
func (o *Main) MaxAbs() (res []float64) {
	for _, u := range o.U {
		if res == nil {
			res = make([]float64, len(u))
		}
		for k, x := range u {
			res[k] = math.Max(res[k], math.Abs(x))
		}
	}
	return
}

// auxiliary //////////////////////////////////////////////////////////////////////////////////////

// onexit prints final message with cpu time
func (o *Main) onexit(cputime time.Time, prevErr error) (err error) {
	if o.ShowMsg {
		if prevErr == nil {
			io.PfGreen("> Success\n")
			io.Pf("> CPU time = %v\n", time.Since(cputime))
		} else {
			io.PfRed("> Failed\n")
		}
	}
	return prevErr
}
