// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package linsys implements distributed sparse matrices and ghosted vectors with additive insertion
package linsys

import (
	"sort"

	"github.com/cpmech/gosl/la"
	"github.com/james-bowman/sparse"
)

// Triplets holds a list of (i, j, x) entries that may contain repeated (i, j) pairs
type Triplets struct {
	I []int     // row indices
	J []int     // column indices
	X []float64 // values
}

// Len returns the number of entries
func (o *Triplets) Len() int { return len(o.I) }

// Put appends one entry
func (o *Triplets) Put(i, j int, x float64) {
	o.I = append(o.I, i)
	o.J = append(o.J, j)
	o.X = append(o.X, x)
}

// PutBlock appends a dense block with row-major values
func (o *Triplets) PutBlock(rows, cols []int, vals []float64) {
	n := len(cols)
	for a, i := range rows {
		for b, j := range cols {
			o.Put(i, j, vals[a*n+b])
		}
	}
}

// Append appends all entries of another list
func (o *Triplets) Append(other *Triplets) {
	o.I = append(o.I, other.I...)
	o.J = append(o.J, other.J...)
	o.X = append(o.X, other.X...)
}

// Reset removes all entries keeping the allocated memory
func (o *Triplets) Reset() {
	o.I, o.J, o.X = o.I[:0], o.J[:0], o.X[:0]
}

// Reduce sorts the entries by (i, j, x) and sums repeated (i, j) pairs
//  Note: the result only depends on the multiset of entries, not on their order
func (o *Triplets) Reduce() {
	if len(o.I) < 2 {
		return
	}
	sort.Sort(byEntry{o})
	k := 0
	for p := 1; p < len(o.I); p++ {
		if o.I[p] == o.I[k] && o.J[p] == o.J[k] {
			o.X[k] += o.X[p]
			continue
		}
		k++
		o.I[k], o.J[k], o.X[k] = o.I[p], o.J[p], o.X[p]
	}
	o.I, o.J, o.X = o.I[:k+1], o.J[:k+1], o.X[:k+1]
}

// KeepLast sorts the entries by (i, j) and keeps the last inserted value of repeated (i, j) pairs
func (o *Triplets) KeepLast() {
	if len(o.I) < 2 {
		return
	}
	sort.Stable(byIndex{byEntry{o}})
	k := 0
	for p := 1; p < len(o.I); p++ {
		if o.I[p] == o.I[k] && o.J[p] == o.J[k] {
			o.X[k] = o.X[p]
			continue
		}
		k++
		o.I[k], o.J[k], o.X[k] = o.I[p], o.J[p], o.X[p]
	}
	o.I, o.J, o.X = o.I[:k+1], o.J[:k+1], o.X[:k+1]
}

// ToGosl converts the (reduced) entries into a gosl triplet of size m×n
func (o *Triplets) ToGosl(m, n int) *la.Triplet {
	t := new(la.Triplet)
	t.Init(m, n, max(o.Len(), 1))
	for k := range o.I {
		t.Put(o.I[k], o.J[k], o.X[k])
	}
	return t
}

// ToCSR converts the entries into a compressed sparse row matrix of size m×n
//  Note: rows are shifted by -row0
func (o *Triplets) ToCSR(m, n, row0 int) *sparse.CSR {
	dok := sparse.NewDOK(m, n)
	for k := range o.I {
		i := o.I[k] - row0
		dok.Set(i, o.J[k], dok.At(i, o.J[k])+o.X[k])
	}
	return dok.ToCSR()
}

// byEntry sorts triplets by (i, j, x)
type byEntry struct{ t *Triplets }

func (o byEntry) Len() int { return len(o.t.I) }
func (o byEntry) Swap(a, b int) {
	t := o.t
	t.I[a], t.I[b] = t.I[b], t.I[a]
	t.J[a], t.J[b] = t.J[b], t.J[a]
	t.X[a], t.X[b] = t.X[b], t.X[a]
}
func (o byEntry) Less(a, b int) bool {
	t := o.t
	if t.I[a] != t.I[b] {
		return t.I[a] < t.I[b]
	}
	if t.J[a] != t.J[b] {
		return t.J[a] < t.J[b]
	}
	return t.X[a] < t.X[b]
}

// byIndex sorts triplets by (i, j)
type byIndex struct{ byEntry }

func (o byIndex) Less(a, b int) bool {
	t := o.t
	if t.I[a] != t.I[b] {
		return t.I[a] < t.I[b]
	}
	return t.J[a] < t.J[b]
}

// Pairs holds a list of (i, x) entries that may contain repeated indices
type Pairs struct {
	I []int     // indices
	X []float64 // values
}

// Len returns the number of entries
func (o *Pairs) Len() int { return len(o.I) }

// Put appends one entry
func (o *Pairs) Put(i int, x float64) {
	o.I = append(o.I, i)
	o.X = append(o.X, x)
}

// Append appends all entries of another list
func (o *Pairs) Append(other *Pairs) {
	o.I = append(o.I, other.I...)
	o.X = append(o.X, other.X...)
}

// Reset removes all entries keeping the allocated memory
func (o *Pairs) Reset() {
	o.I, o.X = o.I[:0], o.X[:0]
}

// Reduce sorts the entries by (i, x) and sums repeated indices
func (o *Pairs) Reduce() {
	if len(o.I) < 2 {
		return
	}
	sort.Sort(byPair{o})
	k := 0
	for p := 1; p < len(o.I); p++ {
		if o.I[p] == o.I[k] {
			o.X[k] += o.X[p]
			continue
		}
		k++
		o.I[k], o.X[k] = o.I[p], o.X[p]
	}
	o.I, o.X = o.I[:k+1], o.X[:k+1]
}

// byPair sorts pairs by (i, x)
type byPair struct{ p *Pairs }

func (o byPair) Len() int { return len(o.p.I) }
func (o byPair) Swap(a, b int) {
	o.p.I[a], o.p.I[b] = o.p.I[b], o.p.I[a]
	o.p.X[a], o.p.X[b] = o.p.X[b], o.p.X[a]
}
func (o byPair) Less(a, b int) bool {
	if o.p.I[a] != o.p.I[b] {
		return o.p.I[a] < o.p.I[b]
	}
	return o.p.X[a] < o.p.X[b]
}
