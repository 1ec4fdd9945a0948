// Package timeouts centralizes the handful of duration knobs used outside
// the core protocol's blocking-forever default, grounded on
// storage/netstore.go's import of "github.com/holisticode/swarm/network/
// timeouts" (SearchTimeout, FetcherSlowChunkDeliveryThreshold) - a package
// referenced by the teacher but not present in this retrieval pack, so its
// shape is inferred from its call sites and reimplemented here against
// spec §5's actual requirements.
package timeouts

import (
	"time"

	"github.com/tilinna/clock"
)

// RequestTimeout is a per-request duration knob, zero by default. When it
// is positive the downloader only logs it (at trace level) with each chunk
// REQUEST; the wait for the ACK is not bounded by it, no peer is abandoned
// and nothing is reported stalled. Spec §5's reference design has no
// timeouts either.
var RequestTimeout = 0 * time.Second

// StaleFetcherThreshold names a "slow request" duration, mirroring
// storage/netstore.go's FetcherSlowChunkDeliveryThreshold. No code in this
// module reads it: nothing is counted or logged against it.
var StaleFetcherThreshold = 30 * time.Second

// Clock is an injectable time source (clock.NewMock in tests). No code in
// this module reads it; nothing here measures elapsed time.
var Clock clock.Clock = clock.Realtime()
