// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ele

import (
	"sort"

	"github.com/cpmech/gosl/chk"
)

// SetKernel sets a new kernel in the factory
func SetKernel(k *Kernel) {
	if _, ok := kernels[k.Name]; ok {
		chk.Panic("cannot set kernel %q because kernel name exists already", k.Name)
	}
	if len(k.Consts) != len(k.Dflts) {
		chk.Panic("kernel %q has %d constants but %d default values", k.Name, len(k.Consts), len(k.Dflts))
	}
	kernels[k.Name] = k
}

// GetKernel gets kernel from factory
func GetKernel(name string) (k *Kernel, err error) {
	k, ok := kernels[name]
	if !ok {
		return nil, chk.Err("cannot find kernel named %q. available kernels are %v", name, KernelNames())
	}
	return
}

// KernelNames returns the sorted names of all kernels
func KernelNames() (names []string) {
	for name := range kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// kernels holds all kernels
var kernels = make(map[string]*Kernel)
