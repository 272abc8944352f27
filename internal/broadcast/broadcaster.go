// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package broadcast fans committed fragment batches out to subscribers, for
// spectator feeds and other read-side consumers outside the tick core.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/holosim/internal/sim"
	"github.com/holomush/holosim/internal/store"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this misses batches.
const subscriberBuffer = 64

type subscription struct {
	pattern glob.Glob
	raw     string
	ch      chan store.Batch
}

// Broadcaster distributes committed batches to subscribers. Each subscriber
// filters by a glob pattern over fragment keys (for example
// "entity:01ABC*:location" or "entity:*"); a batch is delivered with only the
// fragments whose key matches, and not at all when none match.
type Broadcaster struct {
	mu   sync.RWMutex
	subs []*subscription
	log  *slog.Logger
}

// NewBroadcaster creates an empty broadcaster. A nil logger defaults to
// slog.Default().
func NewBroadcaster(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{log: log}
}

// Subscribe registers a fragment-key pattern and returns the delivery
// channel plus an unsubscribe function. Unsubscribing closes the channel.
func (b *Broadcaster) Subscribe(pattern string) (<-chan store.Batch, func(), error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, nil, oops.Code("BROADCAST_BAD_PATTERN").With("pattern", pattern).Wrap(err)
	}

	sub := &subscription{
		pattern: g,
		raw:     pattern,
		ch:      make(chan store.Batch, subscriberBuffer),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub.ch, func() { b.unsubscribe(sub) }, nil
}

func (b *Broadcaster) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers a batch to every subscriber whose pattern matches at
// least one fragment key. Delivery is non-blocking: a subscriber with a full
// buffer misses the batch, which is logged and not retried.
func (b *Broadcaster) Publish(batch store.Batch) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		filtered := filterFragments(batch.Fragments, sub.pattern)
		if len(filtered) == 0 {
			continue
		}
		out := store.Batch{ID: batch.ID, Tick: batch.Tick, Fragments: filtered}
		select {
		case sub.ch <- out:
		default:
			b.log.Warn("batch dropped: subscriber buffer full",
				"pattern", sub.raw,
				"tick", batch.Tick,
				"batch_id", batch.ID.String(),
			)
		}
	}
}

func filterFragments(frags []sim.Fragment, g glob.Glob) []sim.Fragment {
	var out []sim.Fragment
	for _, f := range frags {
		if f.Key != "" && g.Match(f.Key) {
			out = append(out, f)
		}
	}
	return out
}
