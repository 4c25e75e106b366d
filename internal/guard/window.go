package guard

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const DefaultShards = 32

type window struct {
	events []time.Time
	span   time.Duration
}

type shard struct {
	mu   sync.Mutex
	keys map[string]*window
}

// MemoryCounter is an in-process [Counter]. Keys are spread across shards by FNV-1a hash so
// unrelated clients do not contend on one lock.
type MemoryCounter struct {
	shards []*shard
	now    Clock
}

// NewMemoryCounter creates a counter with n shards. A nil clock uses [time.Now].
func NewMemoryCounter(n int, now Clock) *MemoryCounter {
	if n <= 0 {
		n = DefaultShards
	}
	if now == nil {
		now = time.Now
	}

	c := &MemoryCounter{shards: make([]*shard, n), now: now}
	for i := range c.shards {
		c.shards[i] = &shard{keys: make(map[string]*window)}
	}
	return c
}

func (c *MemoryCounter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// prune drops events at or before now-span. Events are kept in ascending order.
func (w *window) prune(now time.Time, span time.Duration) {
	if span > w.span {
		w.span = span
	}
	cutoff := now.Add(-span)
	i := sort.Search(len(w.events), func(i int) bool { return w.events[i].After(cutoff) })
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

// with runs fn on the window for key under the shard lock, creating it when create is set.
// The clock is read under the lock so events are appended in order.
func (c *MemoryCounter) with(key string, create bool, fn func(w *window, now time.Time)) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.keys[key]
	if w == nil {
		if !create {
			return
		}
		w = &window{}
		s.keys[key] = w
	}
	fn(w, c.now())
}

func (c *MemoryCounter) RecordAndCheck(ctx context.Context, key string, span time.Duration, max int) (bool, int, error) {
	if span <= 0 || max <= 0 {
		return false, 0, ErrInvalidLimit
	}

	var (
		allowed bool
		count   int
	)
	c.with(key, true, func(w *window, now time.Time) {
		w.prune(now, span)
		if len(w.events) < max {
			w.events = append(w.events, now)
			allowed = true
		}
		count = len(w.events)
	})
	return allowed, count, nil
}

func (c *MemoryCounter) Record(ctx context.Context, key string, span time.Duration) (int, error) {
	if span <= 0 {
		return 0, ErrInvalidLimit
	}

	var count int
	c.with(key, true, func(w *window, now time.Time) {
		w.prune(now, span)
		w.events = append(w.events, now)
		count = len(w.events)
	})
	return count, nil
}

func (c *MemoryCounter) Count(ctx context.Context, key string, span time.Duration) (int, error) {
	var count int
	c.with(key, false, func(w *window, now time.Time) {
		w.prune(now, span)
		count = len(w.events)
	})
	return count, nil
}

func (c *MemoryCounter) Oldest(ctx context.Context, key string, span time.Duration) (time.Time, bool, error) {
	var (
		oldest time.Time
		ok     bool
	)
	c.with(key, false, func(w *window, now time.Time) {
		w.prune(now, span)
		if len(w.events) > 0 {
			oldest, ok = w.events[0], true
		}
	})
	return oldest, ok, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Sweep removes keys with no events left inside the longest window they were checked against.
func (c *MemoryCounter) Sweep(ctx context.Context) (int64, error) {
	var removed int64
	now := c.now()
	for _, s := range c.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s.mu.Lock()
		for key, w := range s.keys {
			w.prune(now, w.span)
			if len(w.events) == 0 {
				delete(s.keys, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked keys.
func (c *MemoryCounter) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.keys)
		s.mu.Unlock()
	}
	return n
}
