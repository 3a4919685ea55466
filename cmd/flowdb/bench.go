package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/flowdb/internal/server"
	"storj.io/flowdb/pkg/value"
)

func newBenchCmd() *cobra.Command {
	config := &BenchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "write synthetic rows against a running server and measure lookups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, config)
		},
	}
	confDir, err := os.UserConfigDir()
	if err != nil {
		confDir = "."
	}
	if err := bindConfig(cmd, config, filepath.Join(confDir, "flowdb")); err != nil {
		logger.Fatal("bind config", zap.Error(err))
	}
	return cmd
}

// runBench drives the clicks/clicks_by_user graph runServer sets up:
// concurrent writers append synthetic (user_id, url) rows, then
// concurrent readers look up a random user_id, reporting hit/miss
// counts. The server's reader backlog is full (not partial), so a key
// with no rows yet reads as a hit with no rows rather than a hole.
func runBench(cmd *cobra.Command, config *BenchConfig) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	writeBar := pb.StartNew(config.Rows)
	writeBar.Prefix("write")

	var group errgroup.Group
	rowsPerWorker := config.Rows / config.Concurrency
	for w := 0; w < config.Concurrency; w++ {
		seed := rng.Int63()
		group.Go(func() error {
			c, err := server.Dial(config.Addr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			local := rand.New(rand.NewSource(seed))
			for i := 0; i < rowsPerWorker; i++ {
				row := value.Row{
					value.Int(local.Int63n(10000)),
					value.Text(fmt.Sprintf("/page/%d", local.Int63n(1000))),
				}
				if _, err := c.Write("clicks", []value.Row{row}, nil); err != nil {
					return err
				}
				writeBar.Increment()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	writeBar.FinishPrint("write done")

	lookupBar := pb.StartNew(config.Lookups)
	lookupBar.Prefix("lookup")

	var (
		mu          sync.Mutex
		hits, total int
	)
	var lgroup errgroup.Group
	lookupsPerWorker := config.Lookups / config.Concurrency
	for w := 0; w < config.Concurrency; w++ {
		seed := rng.Int63()
		lgroup.Go(func() error {
			c, err := server.Dial(config.Addr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			local := rand.New(rand.NewSource(seed))
			for i := 0; i < lookupsPerWorker; i++ {
				key := value.Row{value.Int(local.Int63n(10000))}
				res, err := c.Lookup("clicks_by_user", key)
				if err != nil {
					return err
				}
				mu.Lock()
				total++
				if res.Outcome == 0 { // flowdb.OutcomeHit
					hits++
				}
				mu.Unlock()
				lookupBar.Increment()
			}
			return nil
		})
	}
	if err := lgroup.Wait(); err != nil {
		return err
	}
	lookupBar.FinishPrint("lookup done")

	logger.Info("bench complete", zap.Int("lookups", total), zap.Int("hits", hits))
	return nil
}
