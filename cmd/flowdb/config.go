package main

import "time"

// ServerConfig is the flag-bound configuration for the server
// subcommand, following the teacher's cfgstruct convention of a plain
// struct with `default`/`usage` tags rather than a flags-littered
// cobra.Command.Flags() block.
type ServerConfig struct {
	Listen  string `default:"127.0.0.1:7070" usage:"address the RPC server listens on"`
	DataDir string `default:"${CONFDIR}/data" usage:"directory for persisted base-table segments"`

	MailboxCapacity int `default:"1024" usage:"per-domain mailbox channel capacity"`

	PersistMode     string        `default:"persistent" usage:"persistent, delete-on-exit, or memory-only"`
	MaxSegmentBytes int64         `default:"67108864" usage:"base-table log segment rotation size in bytes"`
	FlushInterval   time.Duration `default:"1s" usage:"base-table log flush interval"`

	EvictionLimitBytes      int64         `default:"268435456" usage:"total partial-state bytes before eviction kicks in"`
	EvictionPerRequestBytes int64         `default:"4194304" usage:"max bytes evicted per Evict request"`
	EvictionInterval        time.Duration `default:"5s" usage:"eviction worker tick interval"`
}

// BenchConfig is the flag-bound configuration for the bench subcommand.
type BenchConfig struct {
	Addr        string `default:"127.0.0.1:7070" usage:"server address to connect to"`
	Rows        int    `default:"10000" usage:"number of rows to write"`
	Lookups     int    `default:"1000" usage:"number of lookups to issue after writing"`
	Concurrency int    `default:"8" usage:"concurrent bench workers"`
}
