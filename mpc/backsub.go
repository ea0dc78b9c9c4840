// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mpc

import (
	"context"
	"fmt"
)

// Solution is a distributed vector whose remote values can be fetched
type Solution interface {
	Vector
	Fetch(ctx context.Context, idx []int) ([]float64, error) // collective; values at any global indices
}

// BackSubstitute sets u[s] = Σ c u[m] at the owned slaves; ghosts are updated by Assemble
//  Note: BackSubstitute is collective; masters owned by other ranks are fetched
func BackSubstitute(ctx context.Context, u Solution, tab *Table, imap IndexMap) (err error) {
	if tab.State() != Built {
		return ErrNotBuilt
	}

	// masters of owned slaves
	lo, hi := imap.OwnedRange()
	var owned []int
	var need []int
	for k, s := range tab.Slaves {
		if s < lo || s >= hi {
			continue
		}
		owned = append(owned, k)
		masters, coeffs, _ := tab.Constraint(k)
		for p, m := range masters {
			if m != s && coeffs[p] != 0 {
				need = append(need, m)
			}
		}
	}
	vals, err := u.Fetch(ctx, need)
	if err != nil {
		return fmt.Errorf("%w: cannot fetch masters: %w", ErrProtocol, err)
	}

	// slave values
	idx := make([]int, len(owned))
	us := make([]float64, len(owned))
	pos := 0
	for i, k := range owned {
		s := tab.Slaves[k]
		idx[i] = s
		masters, coeffs, _ := tab.Constraint(k)
		for p, m := range masters {
			if m != s && coeffs[p] != 0 {
				us[i] += coeffs[p] * vals[pos]
				pos++
			}
		}
	}
	if len(idx) > 0 {
		err = u.Set(idx, us)
	}
	if aerr := u.Assemble(ctx); aerr != nil {
		return classify(aerr)
	}
	return
}
