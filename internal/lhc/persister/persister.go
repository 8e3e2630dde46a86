// Package persister implements the Layered Hybrid Cache's write-behind
// path: inserts are acknowledged to the caller as soon as the memory and
// disk tiers accept them, and the durable (Postgres) write happens on a
// background worker with retries, so a slow or momentarily unavailable
// database never adds latency to the cache's hot path (spec §4.C "write
// behind", §5 "graceful degradation").
package persister

import (
	"context"
	"log"
	"time"

	"eve.evalgo.org/internal/chash"
	"github.com/cenkalti/backoff/v4"
)

// Write is one pending durable-tier write.
type Write struct {
	DbName string
	Key    chash.Hash
	Value  []byte
}

// DurableWriter is the subset of durable.Tier the persister needs, kept as
// an interface so tests can substitute a fake without a real Postgres.
type DurableWriter interface {
	Put(dbName string, key chash.Hash, value []byte) error
}

// Persister drains a bounded queue of pending writes onto a DurableWriter,
// retrying each with exponential backoff before giving up and logging —
// a dropped durable write is not fatal (this instance's memory/disk tiers
// still hold the value), though the durable tier does not receive it.
type Persister struct {
	writer  DurableWriter
	queue   chan Write
	backoff func() backoff.BackOff
}

// New returns a Persister with a queue of the given depth. maxElapsed
// bounds how long a single write is retried before being dropped.
func New(writer DurableWriter, queueDepth int, maxElapsed time.Duration) *Persister {
	return &Persister{
		writer: writer,
		queue:  make(chan Write, queueDepth),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
}

// Enqueue submits w for background persistence. It returns false if the
// queue is full — the caller has already satisfied the request from the
// memory/disk tiers, so a full persister queue is backpressure, not
// failure (spec §7 "BusConsumerLag"-style degradation applies equally
// here).
func (p *Persister) Enqueue(w Write) bool {
	select {
	case p.queue <- w:
		return true
	default:
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-p.queue:
			p.persistWithRetry(ctx, w)
		}
	}
}

func (p *Persister) persistWithRetry(ctx context.Context, w Write) {
	operation := func() error {
		return p.writer.Put(w.DbName, w.Key, w.Value)
	}

	err := backoff.Retry(operation, backoff.WithContext(p.backoff(), ctx))
	if err != nil {
		log.Printf("persister: giving up durable write for %s/%s: %v", w.DbName, w.Key, err)
	}
}

// Len returns the number of writes currently queued.
func (p *Persister) Len() int { return len(p.queue) }
