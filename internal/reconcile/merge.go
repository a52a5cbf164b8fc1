// Package reconcile merges product lists arriving from the local cache, the
// realtime feed and one-shot fetches into the single list the storefront
// prices against.
package reconcile

import (
	"math"

	"tea-storefront/internal/entity"
)

// Merge runs one reconciliation pass and returns the new product list.
//
// Incoming entries whose id is suppressed (an active tombstone) are dropped.
// Products in cached that carry a local placeholder id survive the pass: each
// one is promoted to the incoming entry with the same name and price (or the
// only incoming entry with the same name) and otherwise kept as is. The result
// holds local entries first, in cached order, followed by the incoming
// entries, de-duplicated by id with incoming entries winning.
//
// Merge is pure: the same inputs always produce the same output.
func Merge(cached, incoming []entity.Product, suppressed func(id string) bool) []entity.Product {
	if suppressed == nil {
		suppressed = func(string) bool { return false }
	}

	filtered := make([]entity.Product, 0, len(incoming))
	for _, p := range incoming {
		if suppressed(p.ID) {
			continue
		}
		filtered = append(filtered, p)
	}

	var locals []entity.Product
	for _, p := range cached {
		if entity.IsLocalID(p.ID) && !suppressed(p.ID) {
			locals = append(locals, p)
		}
	}

	out := make([]entity.Product, 0, len(locals)+len(filtered))
	position := make(map[string]int, cap(out))
	put := func(p entity.Product, fromIncoming bool) {
		if i, ok := position[p.ID]; ok {
			if fromIncoming {
				out[i] = p
			}
			return
		}
		position[p.ID] = len(out)
		out = append(out, p)
	}

	claimed := make([]bool, len(filtered))
	for _, local := range locals {
		if j := matchIncoming(local, filtered, claimed); j >= 0 {
			claimed[j] = true
			put(filtered[j], true)
			continue
		}
		put(local, false)
	}
	for _, p := range filtered {
		put(p, true)
	}
	return out
}

// matchIncoming finds the server-confirmed counterpart of a locally created
// product: an exact (name, price) match, or else the single unclaimed incoming
// entry sharing its name.
func matchIncoming(local entity.Product, incoming []entity.Product, claimed []bool) int {
	byName := -1
	sameName := 0
	for j, p := range incoming {
		if claimed[j] || p.Name != local.Name {
			continue
		}
		if samePrice(p.Price, local.Price) {
			return j
		}
		byName = j
		sameName++
	}
	if sameName == 1 {
		return byName
	}
	return -1
}

func samePrice(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
