// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// World runs a group of ranks as goroutines of the same process
//  Notes:
//   1) each rank owns one mailbox per (source, tag); mailboxes are unbounded
//   2) a rank failing in Run cancels the context of all other ranks
type World struct {
	size  int
	boxes []*postOffice
	log   *zap.Logger
}

// NewWorld returns a new in-process world with size ranks
func NewWorld(size int, log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	o := &World{size: size, log: log, boxes: make([]*postOffice, size)}
	for r := 0; r < size; r++ {
		o.boxes[r] = &postOffice{queues: make(map[mailKey][]*Message), waiting: make(map[mailKey]chan struct{})}
	}
	return o
}

// Size returns the number of ranks
func (o *World) Size() int { return o.size }

// Comm returns the communicator of a rank
func (o *World) Comm(rank int) Communicator {
	return &local{world: o, rank: rank, log: o.log.With(zap.Int("rank", rank))}
}

// Run calls fcn for every rank in its own goroutine and waits for all of them
func (o *World) Run(ctx context.Context, fcn func(ctx context.Context, c Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < o.size; r++ {
		c := o.Comm(r)
		g.Go(func() (err error) {
			defer func() {
				if e := recover(); e != nil {
					err = fmt.Errorf("rank %d panicked: %v", c.Rank(), e)
				}
			}()
			return fcn(gctx, c)
		})
	}
	return g.Wait()
}

// Pending returns the number of messages not yet received by rank
func (o *World) Pending(rank int) (n int) {
	p := o.boxes[rank]
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range p.queues {
		n += len(q)
	}
	return
}

// local implements Communicator for one rank of a World
type local struct {
	world *World
	rank  int
	log   *zap.Logger
}

func (o *local) Rank() int { return o.rank }
func (o *local) Size() int { return o.world.size }

// Send posts a copy of msg in the mailbox (rank, tag) of rank 'to'
func (o *local) Send(ctx context.Context, to, tag int, msg *Message) error {
	if to < 0 || to >= o.world.size {
		return fmt.Errorf("comm: destination rank %d is out of range", to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := msg.Clone()
	m.Tag = tag
	o.world.boxes[to].post(mailKey{o.rank, tag}, m)
	o.log.Debug("send", zap.Int("to", to), zap.Int("tag", tag), zap.Int("nints", len(m.Ints)), zap.Int("nfloats", len(m.Floats)))
	return nil
}

// Recv waits for the next message from rank 'from' with the given tag
func (o *local) Recv(ctx context.Context, from, tag int) (*Message, error) {
	if from < 0 || from >= o.world.size {
		return nil, fmt.Errorf("comm: source rank %d is out of range", from)
	}
	m, err := o.world.boxes[o.rank].take(ctx, mailKey{from, tag})
	if err != nil {
		o.log.Warn("receive failed", zap.Int("from", from), zap.Int("tag", tag), zap.Error(err))
		return nil, err
	}
	o.log.Debug("recv", zap.Int("from", from), zap.Int("tag", tag))
	return m, nil
}

// mailKey identifies a mailbox
type mailKey struct {
	from, tag int
}

// postOffice holds all mailboxes of one rank
type postOffice struct {
	mu      sync.Mutex
	queues  map[mailKey][]*Message
	waiting map[mailKey]chan struct{}
}

func (o *postOffice) post(k mailKey, m *Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queues[k] = append(o.queues[k], m)
	if ch, ok := o.waiting[k]; ok {
		close(ch)
		delete(o.waiting, k)
	}
}

func (o *postOffice) take(ctx context.Context, k mailKey) (*Message, error) {
	for {
		o.mu.Lock()
		if q := o.queues[k]; len(q) > 0 {
			m := q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(o.queues, k)
			} else {
				o.queues[k] = q[1:]
			}
			o.mu.Unlock()
			return m, nil
		}
		ch, ok := o.waiting[k]
		if !ok {
			ch = make(chan struct{})
			o.waiting[k] = ch
		}
		o.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: source=%d tag=%d", ErrTimeout, k.from, k.tag)
			}
			return nil, ctx.Err()
		}
	}
}
