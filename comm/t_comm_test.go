// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func verbose() {
	io.Verbose = true
	chk.Verbose = true
}

func Test_world01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("world01. ring of messages")

	w := NewWorld(4, nil)
	got := make([]*Message, w.Size())
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		next := (c.Rank() + 1) % c.Size()
		prev := (c.Rank() + c.Size() - 1) % c.Size()
		err := c.Send(ctx, next, 3, &Message{Ints: []int{c.Rank()}, Floats: []float64{float64(c.Rank()) / 2}})
		if err != nil {
			return err
		}
		got[c.Rank()], err = c.Recv(ctx, prev, 3)
		return err
	})
	require.NoError(tst, err)
	for r, m := range got {
		prev := (r + 3) % 4
		if diff := cmp.Diff(&Message{Tag: 3, Ints: []int{prev}, Floats: []float64{float64(prev) / 2}}, m); diff != "" {
			tst.Errorf("rank %d: message mismatch (-want +got):\n%s", r, diff)
		}
	}
	for r := 0; r < w.Size(); r++ {
		chk.Int(tst, io.Sf("pending @ %d", r), w.Pending(r), 0)
	}
}

func Test_world02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("world02. messages are matched by source and tag")

	w := NewWorld(2, nil)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		if c.Rank() == 0 {
			for _, tag := range []int{1, 2, 1} {
				if err := c.Send(ctx, 1, tag, &Message{Ints: []int{tag}}); err != nil {
					return err
				}
			}
			return nil
		}
		m2, err := c.Recv(ctx, 0, 2)
		if err != nil {
			return err
		}
		a, err := c.Recv(ctx, 0, 1)
		if err != nil {
			return err
		}
		b, err := c.Recv(ctx, 0, 1)
		if err != nil {
			return err
		}
		chk.Ints(tst, "tag 2", m2.Ints, []int{2})
		chk.Ints(tst, "tag 1 (first)", a.Ints, []int{1})
		chk.Ints(tst, "tag 1 (second)", b.Ints, []int{1})
		return nil
	})
	require.NoError(tst, err)
}

func Test_world03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("world03. timeout of receive")

	w := NewWorld(2, nil)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		if c.Rank() == 1 {
			return nil
		}
		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := c.Recv(tctx, 1, 7)
		return err
	})
	require.Error(tst, err)
	require.True(tst, errors.Is(err, ErrTimeout))
}

func Test_world04(tst *testing.T) {

	//verbose()
	chk.PrintTitle("world04. collectives")

	w := NewWorld(3, nil)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {

		// broadcast
		m, err := Bcast(ctx, c, 1, 10, &Message{Floats: []float64{3.5}})
		if err != nil {
			return err
		}
		chk.Array(tst, "bcast", 1e-17, m.Floats, []float64{3.5})

		// gather
		all, err := Gather(ctx, c, 0, 11, &Message{Ints: []int{10 * c.Rank()}})
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			for r, a := range all {
				chk.Ints(tst, io.Sf("gather %d", r), a.Ints, []int{10 * r})
			}
		}

		// agree
		var local error
		if c.Rank() == 2 {
			local = errors.New("failed")
		}
		err = Agree(ctx, c, 12, local)
		if err == nil {
			tst.Errorf("rank %d: Agree should have failed", c.Rank())
		}
		return Agree(ctx, c, 13, nil)
	})
	require.NoError(tst, err)
}

func Test_world05(tst *testing.T) {

	//verbose()
	chk.PrintTitle("world05. failing rank cancels the others")

	w := NewWorld(3, nil)
	err := w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		if c.Rank() == 0 {
			return errors.New("rank 0 failed")
		}
		_, err := c.Recv(ctx, 0, 1)
		return err
	})
	require.EqualError(tst, err, "rank 0 failed")
}

// rendezvous is a communicator whose Send waits for the matching Recv
type rendezvous struct {
	rank    int
	links   [][]chan *Message // [from][to]
	pending map[mailKey][]*Message
}

// exchanging is a rendezvous communicator with pairwise exchanges
type exchanging struct{ *rendezvous }

func (o exchanging) Exchange(ctx context.Context, tag int, msgs []*Message) ([]*Message, error) {
	return Pairwise(ctx, o, tag, msgs)
}

func newRendezvous(size int) (comms []*rendezvous) {
	links := make([][]chan *Message, size)
	for i := range links {
		links[i] = make([]chan *Message, size)
		for j := range links[i] {
			links[i][j] = make(chan *Message)
		}
	}
	comms = make([]*rendezvous, size)
	for r := range comms {
		comms[r] = &rendezvous{rank: r, links: links, pending: make(map[mailKey][]*Message)}
	}
	return
}

func (o *rendezvous) Rank() int { return o.rank }
func (o *rendezvous) Size() int { return len(o.links) }

func (o *rendezvous) Send(ctx context.Context, to, tag int, msg *Message) error {
	m := msg.Clone()
	m.Tag = tag
	select {
	case o.links[o.rank][to] <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *rendezvous) Recv(ctx context.Context, from, tag int) (*Message, error) {
	k := mailKey{from, tag}
	if q := o.pending[k]; len(q) > 0 {
		o.pending[k] = q[1:]
		return q[0], nil
	}
	for {
		select {
		case m := <-o.links[from][o.rank]:
			if m.Tag == tag {
				return m, nil
			}
			kk := mailKey{from, m.Tag}
			o.pending[kk] = append(o.pending[kk], m)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// runAll runs fcn on every communicator and returns the error of each rank
func runAll(comms []Communicator, fcn func(ctx context.Context, c Communicator) error) []error {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	errs := make([]error, len(comms))
	var wg sync.WaitGroup
	for r, c := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[r] = fcn(ctx, c)
		}()
	}
	wg.Wait()
	return errs
}

func Test_world06(tst *testing.T) {

	//verbose()
	chk.PrintTitle("world06. exchanges with sends waiting for receives")

	const size = 4
	exchange := func(ctx context.Context, c Communicator) error {
		msgs := make([]*Message, size)
		for r := range msgs {
			msgs[r] = &Message{Ints: []int{c.Rank(), r}, Floats: make([]float64, 1000)}
		}
		recv, err := Exchange(ctx, c, 21, msgs)
		if err != nil {
			return err
		}
		for r, m := range recv {
			if r == c.Rank() {
				continue
			}
			if len(m.Ints) != 2 || m.Ints[0] != r || m.Ints[1] != c.Rank() {
				return chk.Err("rank %d: wrong message from rank %d: %v", c.Rank(), r, m.Ints)
			}
		}
		return Agree(ctx, c, 22, nil)
	}

	// all sends before all receives never completes
	plain := make([]Communicator, size)
	for r, c := range newRendezvous(size) {
		plain[r] = c
	}
	for r, err := range runAll(plain, exchange) {
		require.ErrorIs(tst, err, context.DeadlineExceeded, "rank %d", r)
	}

	// pairwise exchange completes
	paired := make([]Communicator, size)
	for r, c := range newRendezvous(size) {
		paired[r] = exchanging{c}
	}
	for r, err := range runAll(paired, exchange) {
		require.NoError(tst, err, "rank %d", r)
	}
}
