// Package dedup guards against processing the same document twice at the same
// time within one process. It is not durable; the ledger's unique document id is.
package dedup

import (
	gocache "github.com/patrickmn/go-cache"
)

// Deduplicator is a concurrency-safe set of in-flight document locators.
type Deduplicator struct {
	inflight *gocache.Cache
}

// New returns an empty Deduplicator. Entries never expire; they leave the set only on Release.
func New() *Deduplicator {
	return &Deduplicator{inflight: gocache.New(gocache.NoExpiration, 0)}
}

// TryAcquire marks id in-flight and returns true, or returns false if it already was.
func (d *Deduplicator) TryAcquire(id string) bool {
	// Add fails when the key is present; the check and insert happen under one lock.
	return d.inflight.Add(id, struct{}{}, gocache.NoExpiration) == nil
}

// Release removes id unconditionally.
func (d *Deduplicator) Release(id string) {
	d.inflight.Delete(id)
}

// Acquire is the scoped form of TryAcquire: when ok, the caller must defer release().
func (d *Deduplicator) Acquire(id string) (release func(), ok bool) {
	if !d.TryAcquire(id) {
		return func() {}, false
	}
	return func() { d.Release(id) }, true
}

// InFlight returns how many ids are currently held.
func (d *Deduplicator) InFlight() int {
	return d.inflight.ItemCount()
}
