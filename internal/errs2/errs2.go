// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package errs2 adds a couple of small conveniences on top of
// github.com/zeebo/errs for running several fallible operations
// concurrently and combining whatever they return.
package errs2
