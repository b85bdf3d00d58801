// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// faultTracker keeps a circuit breaker per broker so that queue selection
// can route around brokers that keep failing, and probe them again after
// a cool-down window.
type faultTracker struct {
	cooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
	probes   map[string]func(bool)
}

func newFaultTracker(cooldown time.Duration) *faultTracker {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &faultTracker{
		cooldown: cooldown,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
		probes:   make(map[string]func(bool)),
	}
}

func (f *faultTracker) breaker(broker string) *gobreaker.TwoStepCircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[broker]
	if !ok {
		cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        broker,
			MaxRequests: 1,
			Timeout:     f.cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Debug("broker availability changed",
					"broker", name, "from", from.String(), "to", to.String())
			},
		})
		f.breakers[broker] = cb
	}
	return cb
}

// Available reports whether sends to the broker are currently admitted.
// An admission reserves a probe slot that the following Record settles.
func (f *faultTracker) Available(broker string) bool {
	done, err := f.breaker(broker).Allow()
	if err != nil {
		return false
	}
	f.mu.Lock()
	f.probes[broker] = done
	f.mu.Unlock()
	return true
}

// Record settles the outcome of the last admitted send to the broker.
func (f *faultTracker) Record(broker string, ok bool) {
	f.mu.Lock()
	done := f.probes[broker]
	delete(f.probes, broker)
	f.mu.Unlock()
	if done != nil {
		done(ok)
	}
}
