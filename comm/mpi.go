// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"

	"github.com/cpmech/gosl/mpi"
	"go.uber.org/zap"
)

// MPI implements Communicator on top of MPI processes
//  Notes:
//   1) each message is sent as a header [tag, nints, nfloats] followed by the payloads
//   2) messages from one source arrive in order; messages with other tags are kept
//      until requested
//   3) receives cannot be interrupted once started; ctx is only checked before
//   4) sends wait for the matching receive once messages exceed the eager limit of MPI;
//      thus all-to-all exchanges are done pairwise
type MPI struct {
	comm    *mpi.Communicator
	log     *zap.Logger
	pending map[mailKey][]*Message
}

// NewMPI returns a communicator over all MPI processes
//  Note: mpi.Start must have been called
func NewMPI(log *zap.Logger) (o *MPI, err error) {
	if !mpi.IsOn() {
		return nil, fmt.Errorf("comm: MPI is not on")
	}
	if log == nil {
		log = zap.NewNop()
	}
	o = &MPI{comm: mpi.NewCommunicator(nil), pending: make(map[mailKey][]*Message)}
	o.log = log.With(zap.Int("rank", o.comm.Rank()))
	return
}

// Rank returns the rank of this process
func (o *MPI) Rank() int { return o.comm.Rank() }

// Size returns the number of processes
func (o *MPI) Size() int { return o.comm.Size() }

// Barrier waits for all processes
func (o *MPI) Barrier() { o.comm.Barrier() }

// Send sends msg to process 'to'
func (o *MPI) Send(ctx context.Context, to, tag int, msg *Message) error {
	if to < 0 || to >= o.Size() {
		return fmt.Errorf("comm: destination rank %d is out of range", to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.comm.SendI([]int{tag, len(msg.Ints), len(msg.Floats)}, to)
	if len(msg.Ints) > 0 {
		o.comm.SendI(msg.Ints, to)
	}
	if len(msg.Floats) > 0 {
		o.comm.Send(msg.Floats, to)
	}
	o.log.Debug("send", zap.Int("to", to), zap.Int("tag", tag))
	return nil
}

// Exchange exchanges msgs with all other processes using Pairwise
func (o *MPI) Exchange(ctx context.Context, tag int, msgs []*Message) ([]*Message, error) {
	return Pairwise(ctx, o, tag, msgs)
}

// Recv receives the next message from process 'from' with the given tag
func (o *MPI) Recv(ctx context.Context, from, tag int) (*Message, error) {
	if from < 0 || from >= o.Size() {
		return nil, fmt.Errorf("comm: source rank %d is out of range", from)
	}
	k := mailKey{from, tag}
	if q := o.pending[k]; len(q) > 0 {
		o.pending[k] = q[1:]
		return q[0], nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		head := make([]int, 3)
		o.comm.RecvI(head, from)
		m := &Message{Tag: head[0]}
		if head[1] > 0 {
			m.Ints = make([]int, head[1])
			o.comm.RecvI(m.Ints, from)
		}
		if head[2] > 0 {
			m.Floats = make([]float64, head[2])
			o.comm.Recv(m.Floats, from)
		}
		if m.Tag == tag {
			o.log.Debug("recv", zap.Int("from", from), zap.Int("tag", tag))
			return m, nil
		}
		kk := mailKey{from, m.Tag}
		o.pending[kk] = append(o.pending[kk], m)
	}
}
