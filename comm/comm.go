// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package comm implements tagged point-to-point messages between ranks
package comm

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when a receive does not complete before its deadline
var ErrTimeout = errors.New("comm: receive timed out")

// Message holds the payload of one point-to-point message
type Message struct {
	Tag    int       // protocol tag
	Ints   []int     // integer payload
	Floats []float64 // real payload
}

// Clone returns a deep copy of the message
func (o *Message) Clone() *Message {
	c := &Message{Tag: o.Tag}
	if len(o.Ints) > 0 {
		c.Ints = append([]int(nil), o.Ints...)
	}
	if len(o.Floats) > 0 {
		c.Floats = append([]float64(nil), o.Floats...)
	}
	return c
}

// Communicator exchanges tagged messages between ranks
//  Notes:
//   1) Send may wait for the matching Recv (MPI); all-to-all traffic must go through Exchange
//   2) messages with the same (from, tag) are received in the order they were sent
//   3) Recv blocks until a message with (from, tag) arrives or ctx is done
type Communicator interface {
	Rank() int
	Size() int
	Send(ctx context.Context, to, tag int, msg *Message) error
	Recv(ctx context.Context, from, tag int) (*Message, error)
}

// Exchanger is implemented by communicators with their own all-to-all exchange
type Exchanger interface {
	Exchange(ctx context.Context, tag int, msgs []*Message) ([]*Message, error)
}

// SendAll sends one message to each rank other than the caller
//  msgs -- [size] messages; nil entries are sent as empty messages
func SendAll(ctx context.Context, c Communicator, tag int, msgs []*Message) (err error) {
	for r := 0; r < c.Size(); r++ {
		if r == c.Rank() {
			continue
		}
		msg := msgs[r]
		if msg == nil {
			msg = &Message{}
		}
		err = c.Send(ctx, r, tag, msg)
		if err != nil {
			return
		}
	}
	return
}

// RecvAll receives one message from each rank other than the caller
//  Output: [size] messages; the entry of the caller is nil
func RecvAll(ctx context.Context, c Communicator, tag int) (msgs []*Message, err error) {
	msgs = make([]*Message, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r == c.Rank() {
			continue
		}
		msgs[r], err = c.Recv(ctx, r, tag)
		if err != nil {
			return
		}
	}
	return
}

// Exchange sends msgs to every other rank and receives one message from every other rank
//  Note: communicators implementing Exchanger do the exchange themselves; otherwise all messages
//        are sent before draining the receives
func Exchange(ctx context.Context, c Communicator, tag int, msgs []*Message) ([]*Message, error) {
	if ex, ok := c.(Exchanger); ok {
		return ex.Exchange(ctx, tag, msgs)
	}
	if err := SendAll(ctx, c, tag, msgs); err != nil {
		return nil, err
	}
	return RecvAll(ctx, c, tag)
}

// Pairwise exchanges msgs with every other rank, one pair of ranks at a time
//  Notes:
//   1) every rank visits its pairs in increasing order of (lower rank, higher rank) and the
//      lower rank of a pair sends first; thus it completes even if Send waits for the matching Recv
//   2) msgs -- [size] messages; nil entries are sent as empty messages
func Pairwise(ctx context.Context, c Communicator, tag int, msgs []*Message) (recv []*Message, err error) {
	me := c.Rank()
	recv = make([]*Message, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r == me {
			continue
		}
		msg := msgs[r]
		if msg == nil {
			msg = &Message{}
		}
		if me < r {
			if err = c.Send(ctx, r, tag, msg); err != nil {
				return nil, err
			}
			if recv[r], err = c.Recv(ctx, r, tag); err != nil {
				return nil, err
			}
			continue
		}
		if recv[r], err = c.Recv(ctx, r, tag); err != nil {
			return nil, err
		}
		if err = c.Send(ctx, r, tag, msg); err != nil {
			return nil, err
		}
	}
	return
}

// Agree makes all ranks agree on a failure
//  Notes:
//   1) every rank must call Agree with the same tag
//   2) if any rank has err != nil, all ranks return an error
//   3) the local error takes precedence over remote ones
func Agree(ctx context.Context, c Communicator, tag int, err error) error {
	flag := 0
	if err != nil {
		flag = 1
	}
	msgs := make([]*Message, c.Size())
	for r := range msgs {
		msgs[r] = &Message{Ints: []int{flag}}
	}
	recv, cerr := Exchange(ctx, c, tag, msgs)
	if err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}
	for r, m := range recv {
		if m != nil && len(m.Ints) == 1 && m.Ints[0] != 0 {
			return fmt.Errorf("comm: rank %d failed", r)
		}
	}
	return nil
}

// Bcast sends msg from root to all other ranks; non-root ranks return the received message
func Bcast(ctx context.Context, c Communicator, root, tag int, msg *Message) (*Message, error) {
	if c.Rank() == root {
		for r := 0; r < c.Size(); r++ {
			if r == root {
				continue
			}
			if err := c.Send(ctx, r, tag, msg); err != nil {
				return nil, err
			}
		}
		return msg, nil
	}
	return c.Recv(ctx, root, tag)
}

// Gather sends msg from every rank to root
//  Output: at root, [size] messages with msg at the position of root; nil elsewhere
func Gather(ctx context.Context, c Communicator, root, tag int, msg *Message) (msgs []*Message, err error) {
	if c.Rank() != root {
		return nil, c.Send(ctx, root, tag, msg)
	}
	msgs = make([]*Message, c.Size())
	for r := 0; r < c.Size(); r++ {
		if r == root {
			msgs[r] = msg
			continue
		}
		msgs[r], err = c.Recv(ctx, r, tag)
		if err != nil {
			return
		}
	}
	return
}
