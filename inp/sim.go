// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package inp implements the input data read from a (.sim) JSON or YAML file
package inp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/fun/dbf"
	"gopkg.in/yaml.v3"
)

// Data holds global data for simulations
type Data struct {
	Desc   string `json:"desc" yaml:"desc"`     // description of simulation
	Key    string `json:"key" yaml:"key"`       // simulation key; default is the filename without extension
	Kernel string `json:"kernel" yaml:"kernel"` // element kernel; e.g. "poisson", "elastic"
	Check  bool   `json:"check" yaml:"check"`   // compare solution with dense reduced system
	DirOut string `json:"dirout" yaml:"dirout"` // directory for output of results; empty => no output
}

// SolverData holds data for the assembly and the solution of the linear system
type SolverData struct {
	Nproc   int     `json:"nproc" yaml:"nproc"`     // number of ranks of in-process runs; 0 => number of partitions
	Workers int     `json:"workers" yaml:"workers"` // number of goroutines per rank during assembly
	Timeout float64 `json:"timeout" yaml:"timeout"` // timeout [s] of point-to-point receives; 0 => no timeout
	Lifting bool    `json:"lifting" yaml:"lifting"` // apply lifting of Dirichlet values to the right-hand side

	// linear solver at root
	LinSol    string `json:"linsol" yaml:"linsol"`       // name of gosl sparse solver; e.g. "umfpack", "mumps"
	Symmetric bool   `json:"symmetric" yaml:"symmetric"` // use the symmetric strategy of the solver
}

// TimeoutDuration returns the receive timeout
func (o *SolverData) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout * float64(time.Second))
}

// ConstraintData holds one explicit slave-master relation defined by coordinates
//  u(slave,comp) = Σ coeffs[i] * u(masters[i],comp)
type ConstraintData struct {
	Slave   []float64   `json:"slave" yaml:"slave"`     // coordinates of slave vertex
	Comp    int         `json:"comp" yaml:"comp"`       // component; e.g. 0 => ux, 1 => uy
	Masters [][]float64 `json:"masters" yaml:"masters"` // coordinates of master vertices
	Coeffs  []float64   `json:"coeffs" yaml:"coeffs"`   // coefficients
}

// ContactData holds data to tie two non-matching surfaces
type ContactData struct {
	SlaveTag  int     `json:"slavetag" yaml:"slavetag"`   // tag of edges on slave surface
	MasterTag int     `json:"mastertag" yaml:"mastertag"` // tag of edges on master surface
	Tol       float64 `json:"tol" yaml:"tol"`             // max gap between surfaces
}

// EssenBcData holds essential (Dirichlet) boundary conditions
type EssenBcData struct {
	Tag  int      `json:"tag" yaml:"tag"`   // edge tag
	Keys []string `json:"keys" yaml:"keys"` // dof keys; e.g. "ux", "uy", "u"
	Func string   `json:"func" yaml:"func"` // name of function f(t=0,x)
}

// NatBcData holds natural boundary conditions (tractions or fluxes) on edges
type NatBcData struct {
	Tag  int       `json:"tag" yaml:"tag"`   // edge tag
	Vals []float64 `json:"vals" yaml:"vals"` // traction components or flux
}

// KernelData holds the constants of the element kernel
type KernelData struct {
	Prms   dbf.Params  `json:"prms" yaml:"prms"`     // constants; e.g. E, nu, kappa, source, bx, by
	ByTag  []*CellPrms `json:"bytag" yaml:"bytag"`   // packed coefficients per cell tag
	Pstrss bool        `json:"pstress" yaml:"pstress"` // plane-stress instead of plane-strain
}

// CellPrms holds the packed coefficients of cells with a given tag
type CellPrms struct {
	Tag    int       `json:"tag" yaml:"tag"`       // cell tag
	Coeffs []float64 `json:"coeffs" yaml:"coeffs"` // coefficients; e.g. [kappa] or [E, nu]
}

// Simulation holds all simulation data
type Simulation struct {

	// input
	Data        Data              `json:"data" yaml:"data"`               // global data
	MeshFile    string            `json:"mesh" yaml:"mesh"`               // mesh filename; relative to the directory of the .sim file
	Gen         *GenData          `json:"gen" yaml:"gen"`                 // generate mesh instead of reading file
	Kernel      KernelData        `json:"kernelprms" yaml:"kernelprms"`   // kernel constants
	Constraints []*ConstraintData `json:"constraints" yaml:"constraints"` // explicit constraints
	Contact     *ContactData      `json:"contact" yaml:"contact"`         // tied surfaces
	EssenBcs    []*EssenBcData    `json:"essenbcs" yaml:"essenbcs"`       // essential boundary conditions
	NatBcs      []*NatBcData      `json:"natbcs" yaml:"natbcs"`           // natural boundary conditions
	Functions   FuncsData         `json:"functions" yaml:"functions"`     // functions
	Solver      SolverData        `json:"solver" yaml:"solver"`           // solver data

	// derived
	Dir string // directory of .sim file
	Msh *Mesh  // mesh
}

// ReadSim reads all simulation data from a .sim file
//  Notes:
//   1) files with extension .yaml or .yml are decoded as YAML; all others as JSON
//   2) the mesh is generated if "gen" is given; otherwise it is read from "mesh"
func ReadSim(simfilepath string) (o *Simulation, err error) {

	// read file
	b, err := os.ReadFile(simfilepath)
	if err != nil {
		return nil, chk.Err("cannot read simulation file %q:\n%v", simfilepath, err)
	}

	// decode
	o = new(Simulation)
	switch strings.ToLower(filepath.Ext(simfilepath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, o)
	default:
		err = json.Unmarshal(b, o)
	}
	if err != nil {
		return nil, chk.Err("cannot unmarshal simulation file %q:\n%v", simfilepath, err)
	}
	o.Dir = filepath.Dir(simfilepath)
	if o.Data.Key == "" {
		fn := filepath.Base(simfilepath)
		o.Data.Key = strings.TrimSuffix(fn, filepath.Ext(fn))
	}

	// mesh
	err = o.SetMesh()
	return
}

// SetMesh generates or reads the mesh and checks the input data
func (o *Simulation) SetMesh() (err error) {

	// mesh
	switch {
	case o.Gen != nil:
		o.Msh, err = o.Gen.Generate()
	case o.MeshFile != "":
		o.Msh, err = ReadMsh(o.Dir, o.MeshFile)
	default:
		err = chk.Err("either \"gen\" or \"mesh\" must be given")
	}
	if err != nil {
		return
	}

	// defaults
	if o.Data.Kernel == "" {
		o.Data.Kernel = "poisson"
	}
	if o.Solver.Nproc < 1 {
		o.Solver.Nproc = o.Msh.Nparts
	}
	if o.Solver.LinSol == "" {
		o.Solver.LinSol = "umfpack"
	}
	if o.Solver.Nproc < o.Msh.Nparts {
		return chk.Err("number of ranks (%d) is smaller than the number of partitions (%d)", o.Solver.Nproc, o.Msh.Nparts)
	}

	// check constraints
	for i, c := range o.Constraints {
		if len(c.Slave) != 2 {
			return chk.Err("constraint %d: slave must have 2 coordinates", i)
		}
		if len(c.Masters) != len(c.Coeffs) || len(c.Masters) == 0 {
			return chk.Err("constraint %d: number of masters (%d) and coefficients (%d) must be equal and positive", i, len(c.Masters), len(c.Coeffs))
		}
	}

	// check functions
	for _, bc := range o.EssenBcs {
		if _, err = o.Functions.Get(bc.Func); err != nil {
			return
		}
	}
	return
}

// KernelConst returns the value of a kernel constant or the default value if not given
func (o *Simulation) KernelConst(name string, dflt float64) float64 {
	for _, p := range o.Kernel.Prms {
		if p.N == name {
			return p.V
		}
	}
	return dflt
}
