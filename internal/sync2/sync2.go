// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package sync2 provides the concurrency scaffolding the rest of the
// engine builds on: a pausable/triggerable ticker (Cycle) for every
// background worker that runs "every N, or sooner if asked" (the
// eviction worker), a closeable
// fan-out group (WorkGroup) for bounded worker pools, a semaphore with
// context cancellation (Limiter), and a one-shot broadcast gate
// (Fence) for "don't proceed until X has happened" handshakes.
package sync2
