package chainindex

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/eventbus"
	"github.com/zencash/chainindex/internal/upstream"
)

// SyncState is one of the Sync Driver's states (§4.6).
type SyncState int

const (
	StateIdle SyncState = iota
	StateSyncing
	StateReorging
	StateStopping
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateReorging:
		return "reorging"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// fetchRetries and fetchRetryDelay implement the "3 retries spaced 60s
// apart" policy from §4.6/§4.9/§5 for upstream fetches the driver
// depends on to make forward progress.
const (
	fetchRetries    = 3
	fetchRetryDelay = 60 * time.Second
)

// Driver is the Sync Driver (§4.6): it walks the upstream chain forward
// from the local tip, applying blocks one at a time, and escalates to
// the Reorg Handler on divergence. Only one apply is ever in flight;
// the driver is single-threaded with respect to commits.
type Driver struct {
	node    upstream.Node
	applier *Applier
	tips    *TipKeeper
	reorg   *ReorgHandler

	// bus and publishMempoolTx implement the config.Config.PublishMempoolTransactions
	// bridge (SPEC_FULL.md): when publishMempoolTx is true, Run subscribes
	// to the upstream node's accepted-mempool-transaction feed and
	// republishes each one on the Event Bus's transaction topic, outside
	// of any block apply.
	bus              *eventbus.Bus
	publishMempoolTx bool

	state    SyncState
	stopCh   chan struct{}
	stopped  chan struct{}
	retryFor time.Duration // overridable in tests; defaults to fetchRetryDelay
}

func NewDriver(node upstream.Node, applier *Applier, tips *TipKeeper, reorg *ReorgHandler, bus *eventbus.Bus, publishMempoolTx bool) *Driver {
	return &Driver{
		node:             node,
		applier:          applier,
		tips:             tips,
		reorg:            reorg,
		bus:              bus,
		publishMempoolTx: publishMempoolTx,
		state:            StateIdle,
		stopCh:           make(chan struct{}),
		stopped:          make(chan struct{}),
		retryFor:         fetchRetryDelay,
	}
}

// State returns the driver's current state.
func (d *Driver) State() SyncState { return d.state }

// Stop requests a cooperative shutdown. It returns once the in-flight
// apply (if any) has settled; see Run.
func (d *Driver) Stop() {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	<-d.stopped
}

// Run drives the state machine until ctx is canceled or Stop is called.
// tipEvents carries upstream "new tip" notifications; ticker fires
// periodic re-checks even if an event is missed. When publishMempoolTx
// is set, Run also subscribes to the upstream node's accepted-mempool
// feed for the lifetime of the loop and bridges each txid onto the
// Event Bus.
func (d *Driver) Run(ctx context.Context, tipEvents <-chan upstream.TipEvent, ticker <-chan time.Time) error {
	defer close(d.stopped)

	var mempoolTx <-chan chaintypes.Hash
	if d.publishMempoolTx {
		ch, err := d.node.SubscribeTx(ctx)
		if err != nil {
			return fmt.Errorf("chainindex: subscribe mempool transactions: %w", err)
		}
		mempoolTx = ch
	}

	for {
		select {
		case <-d.stopCh:
			d.state = StateStopping
			log.Info("sync driver stopping")
			return nil
		case <-ctx.Done():
			d.state = StateStopping
			return ctx.Err()
		case txid := <-mempoolTx:
			d.publishMempoolTransaction(ctx, txid)
			continue
		case <-tipEvents:
		case <-ticker:
		}

		if err := d.tick(ctx); err != nil {
			return err
		}
	}
}

// publishMempoolTransaction fetches txid from the upstream mempool and
// republishes it on the Event Bus's transaction topic. A fetch failure
// (e.g. the transaction was already mined or evicted by the time it is
// looked up) is logged and otherwise ignored; it is not fatal to the
// sync loop.
func (d *Driver) publishMempoolTransaction(ctx context.Context, txid chaintypes.Hash) {
	raw, err := d.node.Transaction(ctx, txid, true)
	if err != nil {
		log.Warn("dropping mempool transaction event, fetch failed", "txid", txid, "error", err)
		return
	}
	d.bus.Publish(eventbus.TopicTransaction, eventbus.TransactionEvent{
		Tx:        &chaintypes.Transaction{ID: txid, Raw: raw},
		Direction: chaintypes.Connect,
	})
}

// tick performs one round of catch-up: if the local tip already matches
// the upstream tip it is a no-op; otherwise it applies blocks (and
// reorgs) until caught up or a fatal error occurs.
func (d *Driver) tick(ctx context.Context) error {
	for {
		select {
		case <-d.stopCh:
			return nil
		default:
		}

		local, ok, err := d.tips.Load(SerialTip)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("chainindex: sync driver ticked before tip load")
		}

		upstreamHash, _, err := d.node.Tip(ctx)
		if err != nil {
			return fmt.Errorf("chainindex: fetch upstream tip: %w", err)
		}
		if local.Hash == upstreamHash {
			d.state = StateIdle
			return nil
		}

		d.state = StateSyncing

		// The local tip itself may no longer be canonical (the upstream
		// chain reorged at or below our height, so there is nothing to
		// fetch forward from). Check that before trying to extend it.
		canonical, err := d.node.BlockByHeight(ctx, local.Height)
		if err != nil {
			return fmt.Errorf("chainindex: fetch canonical block at local height %d: %w", local.Height, err)
		}
		if canonical.Hash != local.Hash {
			d.state = StateReorging
			if err := d.reorg.HandleReorg(ctx, local); err != nil {
				return fmt.Errorf("%w: %v", ErrReorgFailed, err)
			}
			d.state = StateSyncing
			continue
		}

		child, err := d.fetchExpectedChild(ctx, local)
		if err != nil {
			return err
		}

		if child.PrevHash == local.Hash {
			if err := d.applier.Apply(child, chaintypes.Connect); err != nil {
				return err
			}
			continue
		}

		// Divergence: the upstream's block at local.Height+1 exists but
		// does not build on our tip, even though our tip is still
		// canonical at its own height. Escalate to the Reorg Handler.
		d.state = StateReorging
		if err := d.reorg.HandleReorg(ctx, local); err != nil {
			return fmt.Errorf("%w: %v", ErrReorgFailed, err)
		}
		d.state = StateSyncing
	}
}

// fetchExpectedChild fetches the block upstream considers canonical at
// local.Height+1, retrying fetchRetries times spaced retryFor apart
// before giving up with ErrUpstreamLost (§4.6).
func (d *Driver) fetchExpectedChild(ctx context.Context, local TipRecord) (*chaintypes.Block, error) {
	var lastErr error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		block, err := d.node.BlockByHeight(ctx, local.Height+1)
		if err == nil {
			return block, nil
		}
		lastErr = err
		if attempt == fetchRetries {
			break
		}
		log.Warn("upstream missing expected next block, retrying",
			"height", local.Height+1, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(d.retryFor):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	log.Error("upstream lost expected block, reindex required", "height", local.Height+1, "error", lastErr)
	return nil, fmt.Errorf("%w: height=%d: %v", ErrUpstreamLost, local.Height+1, lastErr)
}
