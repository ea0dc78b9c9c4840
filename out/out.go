// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package out implements output of results at vertices and their retrieval for post-processing
package out

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/cpmech/gompc/inp"
	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
)

// TolC is the tolerance to compare x-y coordinates
var TolC = 1e-8

// Results holds the solution at vertices
type Results struct {
	Key      string      `json:"key"`      // simulation key
	Kernel   string      `json:"kernel"`   // element kernel
	Keys     []string    `json:"keys"`     // dof keys; e.g. "ux", "uy"
	Nproc    int         `json:"nproc"`    // number of ranks
	Residual float64     `json:"residual"` // norm of residual of the reduced system
	X        [][]float64 `json:"x"`        // [nverts][2] coordinates
	U        [][]float64 `json:"u"`        // [nverts][nkeys] values
}

// NewResults returns the results of a simulation
//  U -- [nverts][nkeys] values at vertices
func NewResults(sim *inp.Simulation, keys []string, nproc int, residual float64, U [][]float64) (o *Results, err error) {
	if len(U) != len(sim.Msh.Verts) {
		return nil, chk.Err("results must have %d vertices; %d given", len(sim.Msh.Verts), len(U))
	}
	o = &Results{Key: sim.Data.Key, Kernel: sim.Data.Kernel, Keys: keys, Nproc: nproc, Residual: residual, U: U}
	o.X = make([][]float64, len(U))
	for i, v := range sim.Msh.Verts {
		if len(U[i]) != len(keys) {
			return nil, chk.Err("vertex %d has %d values; %d keys are given", i, len(U[i]), len(keys))
		}
		o.X[i] = []float64{v.C[0], v.C[1]}
	}
	return
}

// Get returns the values of key at all vertices located at x
//  Note: vertices of tied surfaces are duplicated; thus many values may be returned
func (o *Results) Get(key string, x []float64) (vals []float64, err error) {
	k := -1
	for i, name := range o.Keys {
		if name == key {
			k = i
		}
	}
	if k < 0 {
		return nil, chk.Err("cannot find key %q in results; keys are %v", key, o.Keys)
	}
	for i, y := range o.X {
		if math.Hypot(y[0]-x[0], y[1]-x[1]) < TolC {
			vals = append(vals, o.U[i][k])
		}
	}
	if len(vals) == 0 {
		return nil, chk.Err("cannot find vertex at %v", x)
	}
	return
}

// Write writes the results to dirout/key.json and returns the filename path
func (o *Results) Write(dirout string) (fnpath string, err error) {
	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "", chk.Err("cannot marshal results:\n%v", err)
	}
	fn := o.Key + ".json"
	defer func() {
		if r := recover(); r != nil {
			fnpath, err = "", chk.Err("cannot write results file:\n%v", r)
		}
	}()
	io.WriteBytesToFileD(dirout, fn, b)
	return filepath.Join(dirout, fn), nil
}

// Read reads results written by Write
func Read(fnpath string) (o *Results, err error) {
	b, err := os.ReadFile(fnpath)
	if err != nil {
		return nil, chk.Err("cannot read results file %q:\n%v", fnpath, err)
	}
	o = new(Results)
	if err = json.Unmarshal(b, o); err != nil {
		return nil, chk.Err("cannot unmarshal results file %q:\n%v", fnpath, err)
	}
	if len(o.X) != len(o.U) {
		return nil, chk.Err("results file %q has %d coordinates and %d values", fnpath, len(o.X), len(o.U))
	}
	return
}
