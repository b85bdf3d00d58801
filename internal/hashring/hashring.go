// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package hashring implements a consistent-hash ring over integer member
// indices. Keys map to members stably: adding or removing a member only
// remaps the keys that hashed to it.
package hashring

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DefaultVirtualNodes is the number of points each member gets on the
// ring when the caller does not choose.
const DefaultVirtualNodes = 160

type point struct {
	hash   uint64
	member int
}

// Ring is an immutable consistent-hash ring. Build one with New and share
// it freely; lookups are read-only.
type Ring struct {
	points []point
}

// New builds a ring of members 0..members-1, each with virtual points on
// the ring. A non-positive virtual count falls back to the default.
func New(members, virtual int) *Ring {
	if virtual <= 0 {
		virtual = DefaultVirtualNodes
	}
	r := &Ring{points: make([]point, 0, members*virtual)}
	for m := 0; m < members; m++ {
		prefix := strconv.Itoa(m) + "#"
		for v := 0; v < virtual; v++ {
			h := xxhash.Sum64String(prefix + strconv.Itoa(v))
			r.points = append(r.points, point{hash: h, member: m})
		}
	}
	sort.Slice(r.points, func(i, j int) bool { return r.points[i].hash < r.points[j].hash })
	return r
}

// Get returns the member owning the key, or -1 on an empty ring.
func (r *Ring) Get(key string) int {
	if len(r.points) == 0 {
		return -1
	}
	h := xxhash.Sum64String(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].member
}

// Members returns the member count the ring was built with.
func (r *Ring) Members() int {
	if len(r.points) == 0 {
		return 0
	}
	seen := make(map[int]struct{})
	for _, p := range r.points {
		seen[p.member] = struct{}{}
	}
	return len(seen)
}
