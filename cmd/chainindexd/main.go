// Command chainindexd bootstraps the chain-indexing engine: it resolves
// configuration, opens the Store, wires the Service Registry, and runs
// the Sync Driver until asked to stop. Process bootstrap, CLI parsing,
// and the upstream node's wire protocol are explicitly out of this
// core's scope (§1); this file is the thin embedding program that
// exercises the core the way any companion daemon would.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli"
	"github.com/zencash/chainindex/chainindex"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/config"
	"github.com/zencash/chainindex/internal/eventbus"
	"github.com/zencash/chainindex/internal/upstream"
	"github.com/zencash/chainindex/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "chainindexd"
	app.Usage = "chain-indexing engine for a Zen/Bitcoin companion daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "datadir", Usage: "data directory (required)"},
		cli.StringFlag{Name: "network", Value: "livenet", Usage: "livenet, testnet, or regtest"},
		cli.IntFlag{Name: "max-open-files", Value: store.DefaultMaxOpenFiles},
		cli.IntFlag{Name: "max-transaction-limit", Value: 5},
		cli.BoolFlag{Name: "reindex"},
		cli.BoolFlag{Name: "publish-mempool-tx", Usage: "bridge upstream mempool events onto the transaction topic"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Error("chainindexd exiting", "error", err)
		os.Exit(-1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Config{
		Datadir:                    c.String("datadir"),
		Network:                    config.Network(c.String("network")),
		MaxOpenFiles:               c.Int("max-open-files"),
		MaxTransactionLimit:        c.Int("max-transaction-limit"),
		Reindex:                    c.Bool("reindex"),
		PublishMempoolTransactions: c.Bool("publish-mempool-tx"),
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	dataPath, err := cfg.DataPath()
	if err != nil {
		return err
	}

	if cfg.Reindex {
		log.Warn("reindex requested; operator must remove the data path before restarting", "path", dataPath)
	}

	db, err := store.Open(dataPath, store.Options{MaxOpenFiles: cfg.MaxOpenFiles})
	if err != nil {
		return err
	}

	// The real upstream node RPC client is an external collaborator
	// (§1) supplied by the surrounding daemon; this standalone binary
	// wires a local single-block mock so the engine can bootstrap and
	// exercise the Lifecycle wiring end to end.
	node := upstream.NewMock(genesisBlockFor(cfg.Network))

	registry := chainindex.NewRegistry()
	bus := eventbus.New()
	lc := chainindex.New(db, node, registry, bus, cfg.PublishMempoolTransactions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := lc.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	tipEvents, err := node.SubscribeTip(ctx)
	if err != nil {
		return err
	}

	driverErr := make(chan error, 1)
	go func() {
		driverErr <- lc.Driver().Run(ctx, tipEvents, ticker.C)
	}()

	select {
	case <-sigCh:
		log.Info("received shutdown signal")
		cancel()
	case err := <-driverErr:
		if err != nil {
			log.Error("sync driver exited with error", "error", err)
			_ = lc.Stop()
			return fmt.Errorf("sync driver: %w", err)
		}
	}

	if err := lc.Stop(); err != nil {
		os.Exit(1)
	}
	return nil
}

func genesisBlockFor(network config.Network) *chaintypes.Block {
	return &chaintypes.Block{
		Hash:   chaintypes.BytesToHash([]byte(fmt.Sprintf("genesis-%s", network))),
		Height: 0,
	}
}
