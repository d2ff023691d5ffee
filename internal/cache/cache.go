// Package cache holds generated image descriptions, keyed by content
// fingerprint, with LRU eviction and single-flight generation.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Fingerprint derives the cache key for an image payload under a given
// description prompt. Identical bytes always produce identical keys. The
// prompt is folded in so that descriptions generated under different prompts
// are never conflated.
func Fingerprint(payload []byte, prompt string) string {
	body := sha256.Sum256(payload)
	p := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(body[:]) + ":" + hex.EncodeToString(p[:8])
}

// Entry is one cached description. Owned by the cache; returned by value.
type Entry struct {
	Fingerprint    string
	Text           string
	ProducingModel string
	CreatedAt      time.Time
	LastUsedAt     time.Time
}

// Cache is a bounded LRU of description entries. At most one in-flight
// generation exists per fingerprint at any time; concurrent callers for the
// same fingerprint share that generation's result.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	inflight map[string]*Flight

	now func() time.Time
}

// New creates a cache holding at most capacity entries. capacity must be
// positive (validated at config load).
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		inflight: make(map[string]*Flight),
		now:      time.Now,
	}
}

// Lookup returns the entry for fp and refreshes its recency. A miss is
// normal control flow, not an error.
func (c *Cache) Lookup(fp string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fp]
	if !ok {
		return Entry{}, false
	}
	entry := el.Value.(*Entry)
	entry.LastUsedAt = c.now()
	c.order.MoveToFront(el)
	return *entry, true
}

// Store inserts or overwrites the entry for fp. Inserting beyond capacity
// evicts exactly one entry, the least recently used.
func (c *Cache) Store(fp, text, producingModel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(fp, text, producingModel)
}

func (c *Cache) storeLocked(fp, text, producingModel string) {
	now := c.now()
	if el, ok := c.entries[fp]; ok {
		entry := el.Value.(*Entry)
		entry.Text = text
		entry.ProducingModel = producingModel
		entry.LastUsedAt = now
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*Entry).Fingerprint)
		}
	}
	c.entries[fp] = c.order.PushFront(&Entry{
		Fingerprint:    fp,
		Text:           text,
		ProducingModel: producingModel,
		CreatedAt:      now,
		LastUsedAt:     now,
	})
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// BeginGeneration claims the generation slot for fp. The first caller gets
// leader=true and must finish the flight with Complete or Abandon; later
// callers get leader=false and should Wait on the returned flight.
func (c *Cache) BeginGeneration(fp string) (f *Flight, leader bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.inflight[fp]; ok {
		return f, false
	}
	f = &Flight{c: c, fp: fp, done: make(chan struct{})}
	c.inflight[fp] = f
	return f, true
}

// Flight is one in-flight generation, shared by every caller that asked for
// the same fingerprint while it was running.
type Flight struct {
	c    *Cache
	fp   string
	done chan struct{}

	entry Entry
	err   error
}

// Complete stores the generated description and releases all waiters.
func (f *Flight) Complete(text, producingModel string) {
	f.c.mu.Lock()
	f.c.storeLocked(f.fp, text, producingModel)
	f.entry = *f.c.entries[f.fp].Value.(*Entry)
	delete(f.c.inflight, f.fp)
	f.c.mu.Unlock()
	close(f.done)
}

// Abandon releases all waiters with err and stores nothing. Used when
// generation failed or the leader's request was cancelled mid-flight.
func (f *Flight) Abandon(err error) {
	f.c.mu.Lock()
	f.err = err
	delete(f.c.inflight, f.fp)
	f.c.mu.Unlock()
	close(f.done)
}

// Wait blocks until the flight finishes or ctx is done.
func (f *Flight) Wait(ctx context.Context) (Entry, error) {
	select {
	case <-f.done:
		return f.entry, f.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}
