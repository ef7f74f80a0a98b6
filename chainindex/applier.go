package chainindex

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/eventbus"
	"github.com/zencash/chainindex/internal/heightset"
	"github.com/zencash/chainindex/internal/metrics"
	"github.com/zencash/chainindex/store"
	"golang.org/x/sync/errgroup"
)

// Applier is the Block Applier (§4.5): it fans block application out to
// every registered service, unions the resulting ops with a tip update,
// and commits the whole thing as one atomic batch.
type Applier struct {
	db       store.Store
	services []Service
	tips     *TipKeeper
	bus      *eventbus.Bus

	// Window records each connected height; the Lifecycle seeds it at
	// startup from the persisted consistency window (SPEC_FULL.md
	// "startup consistency check"). Nil is fine; it just disables
	// tracking.
	Window *heightset.Window
}

func NewApplier(db store.Store, services []Service, tips *TipKeeper, bus *eventbus.Bus) *Applier {
	return &Applier{db: db, services: services, tips: tips, bus: bus}
}

// Apply runs both handler phases for block, commits one atomic batch
// containing every handler op plus the serial and concurrent tip
// updates, and publishes the resulting event. No partial state is ever
// committed (I5): either every op and both tip updates land, or Apply
// returns an error and the Store is untouched.
//
// Apply enforces I3 (strict height monotonicity / correct unwind
// target) against the currently persisted serial tip before building
// the batch: a connect must extend the tip, a disconnect must retire
// exactly the tip.
func (a *Applier) Apply(block *chaintypes.Block, dir chaintypes.Direction) error {
	start := time.Now()

	current, haveTip, err := a.tips.Load(SerialTip)
	if err != nil {
		return err
	}

	newTip, err := nextTip(current, haveTip, block, dir)
	if err != nil {
		return err
	}

	concurrentOps, err := a.runConcurrent(block, dir)
	if err != nil {
		return err
	}

	serialOps, err := a.runSerial(block, dir)
	if err != nil {
		return err
	}

	ops := make([]store.Op, 0, len(concurrentOps)+len(serialOps)+3)
	ops = append(ops, concurrentOps...)
	ops = append(ops, serialOps...)
	ops = append(ops, a.tips.PutOp(SerialTip, newTip))
	ops = append(ops, a.tips.PutOp(ConcurrentTip, newTip))

	if dir == chaintypes.Connect {
		windowOp, err := appendConsistencyOp(a.db, consistencyWindowSize, block)
		if err != nil {
			return err
		}
		ops = append(ops, windowOp)
	} else {
		entries, err := loadConsistencyWindow(a.db)
		if err != nil {
			return err
		}
		if n := len(entries); n > 0 && entries[n-1].Hash == block.Hash {
			ops = append(ops, store.Put(keyConsistencyWindow, encodeConsistencyWindow(entries[:n-1])))
		}
	}

	if err := a.db.Batch(ops); err != nil {
		return fmt.Errorf("chainindex: commit block %s at height %d (%s): %w", block.Hash, block.Height, dir, err)
	}

	metrics.BlocksApplied.WithLabelValues(dir.String()).Inc()
	metrics.BatchCommitSeconds.Observe(time.Since(start).Seconds())
	log.Info("applied block", "hash", block.Hash, "height", block.Height, "direction", dir, "ops", len(ops))

	if a.Window != nil && dir == chaintypes.Connect {
		a.Window.Add(block.Height)
	}

	a.publish(block, dir)
	return nil
}

// nextTip computes where the tip must move to given the currently
// persisted tip and the block being applied, failing with
// ErrHandlerFailure-adjacent detail if the transition would violate I3.
func nextTip(current TipRecord, haveTip bool, block *chaintypes.Block, dir chaintypes.Direction) (TipRecord, error) {
	if dir == chaintypes.Connect {
		if haveTip && block.PrevHash != current.Hash {
			return TipRecord{}, fmt.Errorf("chainindex: block %s (height %d) does not extend tip %s (height %d)",
				block.Hash, block.Height, current.Hash, current.Height)
		}
		if haveTip && block.Height != current.Height+1 {
			return TipRecord{}, fmt.Errorf("chainindex: block height %d does not follow tip height %d",
				block.Height, current.Height)
		}
		return TipRecord{Hash: block.Hash, Height: block.Height}, nil
	}

	if !haveTip || block.Hash != current.Hash {
		return TipRecord{}, fmt.Errorf("chainindex: cannot disconnect %s: it is not the current tip", block.Hash)
	}
	height := uint32(0)
	if block.Height > 0 {
		height = block.Height - 1
	}
	return TipRecord{Hash: block.PrevHash, Height: height}, nil
}

// runConcurrent invokes every service's ConcurrentBlockHandler in
// parallel via an errgroup fan-out/fan-in join (§4.5 step 1, §5). A
// failure in any handler aborts the apply before anything is committed.
func (a *Applier) runConcurrent(block *chaintypes.Block, dir chaintypes.Direction) ([]store.Op, error) {
	var g errgroup.Group
	results := make([][]store.Op, len(a.services))

	for i, svc := range a.services {
		h, ok := svc.(ConcurrentBlockHandler)
		if !ok {
			continue
		}
		i, h, name := i, h, svc.Name()
		g.Go(func() error {
			ops, err := h.HandleBlockConcurrent(block, dir)
			if err != nil {
				return fmt.Errorf("%w: concurrent handler %q: %v", ErrHandlerFailure, name, err)
			}
			results[i] = ops
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ops []store.Op
	for _, r := range results {
		ops = append(ops, r...)
	}
	return ops, nil
}

// runSerial invokes every service's BlockHandler sequentially, in
// registry order, on the commit thread (§4.5 step 2). Serial handlers
// may rely on side effects of earlier serial handlers within the same
// block.
func (a *Applier) runSerial(block *chaintypes.Block, dir chaintypes.Direction) ([]store.Op, error) {
	var ops []store.Op
	for _, svc := range a.services {
		h, ok := svc.(BlockHandler)
		if !ok {
			continue
		}
		svcOps, err := h.HandleBlock(block, dir)
		if err != nil {
			return nil, fmt.Errorf("%w: serial handler %q: %v", ErrHandlerFailure, svc.Name(), err)
		}
		ops = append(ops, svcOps...)
	}
	return ops, nil
}

func (a *Applier) publish(block *chaintypes.Block, dir chaintypes.Direction) {
	if a.bus == nil {
		return
	}
	topic := eventbus.TopicBlock
	a.bus.Publish(topic, eventbus.BlockEvent{Block: block, Direction: dir})
	for _, tx := range block.Transactions {
		a.bus.Publish(eventbus.TopicTransaction, eventbus.TransactionEvent{Tx: tx, Direction: dir})
	}
}
