package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/flowdb/internal/channel"
	"storj.io/flowdb/internal/domain"
	"storj.io/flowdb/internal/eviction"
	"storj.io/flowdb/internal/persist"
	"storj.io/flowdb/internal/replay"
	"storj.io/flowdb/internal/server"
	"storj.io/flowdb/pkg/flowdb"
	"storj.io/flowdb/pkg/graph"
	"storj.io/flowdb/pkg/reader"
	"storj.io/flowdb/pkg/state"
)

func newServerCmd() *cobra.Command {
	config := &ServerConfig{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "run the dataflow engine as a standalone server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, config)
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

// runServer wires one minimal single-domain graph — a "clicks" base
// table feeding a "clicks_by_user" reader view keyed on its first
// column — through every piece SPEC_FULL.md names: persistence,
// eviction, the replay manager (present even though this graph never
// misses, since every deployment carries one), the RPC server, and the
// router a multi-domain deployment would register further domains
// against.
//
// The graph itself is a stand-in for what a migration controller (not
// built — see DESIGN.md) would otherwise construct from a client's
// declared recipe; wiring it here by hand exercises the same
// graph/domain/state/reader machinery a controller would drive.
func runServer(cmd *cobra.Command, config *ServerConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return err
	}

	g := graph.New()
	base := g.AddNode("clicks", graph.KindBase, graph.Schema{
		{Name: "user_id", Kind: uint8(valueKindInt)},
		{Name: "url", Kind: uint8(valueKindText)},
	})
	view := g.AddNode("clicks_by_user", graph.KindReader, graph.Schema{
		{Name: "user_id", Kind: uint8(valueKindInt)},
		{Name: "url", Kind: uint8(valueKindText)},
	})
	// A migration controller (not built — see DESIGN.md) would normally
	// assign each node's domain-local index as it places the graph; this
	// stands in for that single assignment step.
	base.Local, base.Domain = 0, 0
	view.Local, view.Domain = 1, 0
	g.AddEdge(base.Index, view.Index)
	g.Freeze()

	const domainID = 0
	d := domain.New(domainID, g, config.MailboxCapacity)

	st := state.New([][]int{{0}}, false)
	backlog := reader.New([]int{0}, false)

	d.AddNode(&domain.NodeDescriptor{Node: base, State: st})
	d.AddNode(&domain.NodeDescriptor{Node: view, Backlog: backlog})

	router := channel.NewRouter(logger)
	router.Register(domainID, d.Mailbox)
	d.Outbox = router

	rep := replay.NewManager(replay.NewRegistry(), replay.NewDirectory(), router, logger)
	d.Misses = rep
	d.Replay = rep

	mode := persistModeOf(config.PersistMode)
	log, err := persist.Open(config.DataDir, "clicks", "0", mode, config.MaxSegmentBytes, config.FlushInterval)
	if err != nil {
		return err
	}

	evictor := eviction.NewWorker(config.EvictionLimitBytes, config.EvictionPerRequestBytes, config.EvictionInterval, logger)
	evictor.Register(domainID, view.Local, st, d.Mailbox)

	engine := flowdb.New(router, rep, evictor)
	engine.BindBase("clicks", domainID, base.Local, d.Mailbox, log)
	engine.BindView("clicks_by_user", domainID, view.Local, d.Mailbox, backlog, []int{0})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		d.Run(ctx)
		return nil
	})
	evictor.Start(ctx, group)

	lis, err := net.Listen("tcp", config.Listen)
	if err != nil {
		return err
	}
	logger.Info("listening", zap.String("addr", config.Listen))

	srv := server.New(engine, logger)
	group.Go(func() error {
		return srv.Serve(ctx, lis)
	})

	runErr := group.Wait()
	for _, shutdownErr := range engine.Shutdown() {
		logger.Error("shutdown", zap.Error(shutdownErr))
	}
	return runErr
}

func persistModeOf(s string) persist.Mode {
	switch s {
	case "delete-on-exit":
		return persist.DeleteOnExit
	case "memory-only":
		return persist.MemoryOnly
	default:
		return persist.Persistent
	}
}

// valueKindInt/valueKindText mirror value.KindInt/value.KindText without
// importing package value just for two schema-description constants —
// graph.Column.Kind is deliberately a bare uint8 to avoid that import
// (see graph.Column's doc comment).
const (
	valueKindInt  = 1
	valueKindText = 5
)
