// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package producer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultTrackerOpensAfterFailures(t *testing.T) {
	f := newFaultTracker(time.Hour)

	for i := 0; i < 3; i++ {
		require.True(t, f.Available("broker-a"))
		f.Record("broker-a", false)
	}
	assert.False(t, f.Available("broker-a"), "three consecutive failures open the circuit")
}

func TestFaultTrackerSuccessKeepsClosed(t *testing.T) {
	f := newFaultTracker(time.Hour)

	for i := 0; i < 10; i++ {
		require.True(t, f.Available("broker-a"))
		f.Record("broker-a", i%2 == 0)
	}
	assert.True(t, f.Available("broker-a"), "interleaved successes reset the failure streak")
	f.Record("broker-a", true)
}

func TestFaultTrackerProbesAfterCooldown(t *testing.T) {
	f := newFaultTracker(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.True(t, f.Available("broker-a"))
		f.Record("broker-a", false)
	}
	require.False(t, f.Available("broker-a"))

	require.Eventually(t, func() bool {
		if !f.Available("broker-a") {
			return false
		}
		f.Record("broker-a", true)
		return true
	}, time.Second, 10*time.Millisecond, "cooldown must admit a probe")

	assert.True(t, f.Available("broker-a"), "successful probe closes the circuit")
	f.Record("broker-a", true)
}

func TestFaultTrackerIsolatesBrokers(t *testing.T) {
	f := newFaultTracker(time.Hour)

	for i := 0; i < 3; i++ {
		require.True(t, f.Available("broker-a"))
		f.Record("broker-a", false)
	}
	assert.False(t, f.Available("broker-a"))
	assert.True(t, f.Available("broker-b"), "brokers fail independently")
	f.Record("broker-b", true)
}
