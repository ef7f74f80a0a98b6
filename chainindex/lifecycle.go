package chainindex

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/eventbus"
	"github.com/zencash/chainindex/internal/heightset"
	"github.com/zencash/chainindex/internal/upstream"
	"github.com/zencash/chainindex/store"
)

// consistencyWindowSize is how many recently connected heights the
// startup consistency check inspects (SPEC_FULL.md).
const consistencyWindowSize = 128

// Lifecycle orchestrates start/stop ordering: version check, service
// registration, tip load (bootstrapping genesis on a fresh DB), and
// graceful shutdown of the Sync Driver, services, and Store in that
// order (§4.10, §6 exit semantics).
type Lifecycle struct {
	DB       store.Store
	Node     upstream.Node
	Registry *Registry
	Bus      *eventbus.Bus

	// PublishMempoolTransactions mirrors config.Config.PublishMempoolTransactions:
	// when true, the Sync Driver bridges the upstream node's accepted
	// mempool transactions onto the Event Bus's transaction topic.
	PublishMempoolTransactions bool

	tips    *TipKeeper
	applier *Applier
	reorg   *ReorgHandler
	driver  *Driver
	window  *heightset.Window
}

// New wires together every core component against db and node. Call
// Start to bring the engine up.
func New(db store.Store, node upstream.Node, registry *Registry, bus *eventbus.Bus, publishMempoolTx bool) *Lifecycle {
	tips := NewTipKeeper(db)
	window := heightset.NewWindow(consistencyWindowSize)
	return &Lifecycle{
		DB:                         db,
		Node:                       node,
		Registry:                   registry,
		Bus:                        bus,
		PublishMempoolTransactions: publishMempoolTx,
		tips:                       tips,
		window:                     window,
	}
}

// Start performs the Version Guard, starts services in dependency
// order, loads (or bootstraps) the tip, and leaves the Sync Driver
// ready to Run.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := CheckVersion(l.DB); err != nil {
		return err
	}

	if err := l.Registry.Resolve(); err != nil {
		return err
	}
	if err := l.Registry.Start(); err != nil {
		return err
	}

	l.applier = NewApplier(l.DB, l.Registry.Ordered(), l.tips, l.Bus)
	l.applier.Window = l.window
	l.reorg = NewReorgHandler(l.Node, l.applier, l.tips)
	l.driver = NewDriver(l.Node, l.applier, l.tips, l.reorg, l.Bus, l.PublishMempoolTransactions)

	if err := l.loadTip(ctx, SerialTip); err != nil {
		return err
	}
	if err := l.loadTip(ctx, ConcurrentTip); err != nil {
		return err
	}

	if err := l.checkConsistency(); err != nil {
		return err
	}

	return nil
}

// Driver exposes the Sync Driver once Start has completed, for the
// caller to Run in its own goroutine.
func (l *Lifecycle) Driver() *Driver { return l.driver }

// loadTip implements Tip Load (§4.9): on a fresh DB it connect-applies
// genesis; otherwise it confirms the upstream node still has the named
// block, retrying 3x spaced 60s apart before failing fatally.
func (l *Lifecycle) loadTip(ctx context.Context, cursor TipCursor) error {
	existing, ok, err := l.tips.Load(cursor)
	if err != nil {
		return err
	}
	if !ok {
		if cursor == ConcurrentTip {
			// The serial tip load already connect-applied genesis,
			// which advances both cursors in the same batch.
			return nil
		}
		genesis, err := l.Node.GenesisBlock(ctx)
		if err != nil {
			return fmt.Errorf("chainindex: fetch genesis: %w", err)
		}
		log.Info("bootstrapping from genesis", "hash", genesis.Hash)
		return l.applier.Apply(genesis, chaintypes.Connect)
	}

	const retries = 3
	const delay = 60 * time.Second
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if _, err := l.Node.BlockByHash(ctx, existing.Hash); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == retries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Error("upstream no longer has recorded tip, reindex required",
		"cursor", cursor, "hash", existing.Hash, "height", existing.Height, "error", lastErr)
	return fmt.Errorf("%w: tip %s at height %d no longer known to upstream: %v",
		ErrUpstreamLost, existing.Hash, existing.Height, lastErr)
}

// checkConsistency replays the persisted ring buffer of the last
// consistencyWindowSize connected blocks and asserts they form an
// unbroken, strictly height-monotonic chain (SPEC_FULL.md's startup
// consistency check). A broken chain is store-class corruption: it is
// logged as an error and reported to the caller, which is expected to
// instruct the operator to reindex rather than resume.
func (l *Lifecycle) checkConsistency() error {
	entries, err := loadConsistencyWindow(l.DB)
	if err != nil {
		return err
	}
	if err := checkConsistencyWindow(entries); err != nil {
		log.Error("startup consistency check failed, reindex required", "error", err)
		return err
	}
	for _, e := range entries {
		l.window.Add(e.Height)
	}
	return nil
}

// Stop performs a cooperative shutdown: stop the Sync Driver, stop
// services in reverse dependency order, then close the Store.
func (l *Lifecycle) Stop() error {
	if l.driver != nil {
		l.driver.Stop()
	}
	if err := l.Registry.Stop(); err != nil {
		log.Error("service shutdown reported errors", "error", err)
		_ = l.DB.Close()
		return err
	}
	return l.DB.Close()
}
