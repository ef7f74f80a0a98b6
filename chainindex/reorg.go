package chainindex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/heightset"
	"github.com/zencash/chainindex/internal/metrics"
	"github.com/zencash/chainindex/internal/upstream"
)

// ReorgHandler finds the greatest common ancestor between the local tip
// and the upstream chain, disconnects the local suffix, and returns
// control to the Sync Driver to replay the new suffix (§4.7).
type ReorgHandler struct {
	node    upstream.Node
	applier *Applier
	tips    *TipKeeper
}

func NewReorgHandler(node upstream.Node, applier *Applier, tips *TipKeeper) *ReorgHandler {
	return &ReorgHandler{node: node, applier: applier, tips: tips}
}

// HandleReorg walks backward from local, disconnecting each block until
// the upstream chain's block at that height matches what is locally
// recorded, then returns. The Sync Driver resumes forward application
// on the (now current) upstream branch.
func (r *ReorgHandler) HandleReorg(ctx context.Context, local TipRecord) error {
	suffix, err := r.findSuffix(ctx, local)
	if err != nil {
		return err
	}

	log.Warn("reorg detected", "depth", len(suffix), "from", local.Hash, "fromHeight", local.Height)
	metrics.ReorgDepth.Observe(float64(len(suffix)))

	for _, hash := range suffix {
		block, err := r.node.BlockByHash(ctx, hash)
		if err != nil {
			return fmt.Errorf("%w: fetch block %s to disconnect: %v", ErrReorgFailed, hash, err)
		}
		if err := r.applier.Apply(block, chaintypes.Disconnect); err != nil {
			// Each disconnect is its own atomic batch (§4.7); a failure
			// here leaves the tip naming a real, previously connected
			// block, so a restart resumes from wherever the tip stands.
			return fmt.Errorf("%w: disconnect %s at height %d: %v", ErrReorgFailed, hash, block.Height, err)
		}
	}
	return nil
}

// findSuffix walks backward from local via the upstream node's block
// index until it finds a height where the upstream's canonical block
// matches the locally recorded hash — the greatest common ancestor.
// It returns the local suffix, most-recent first.
func (r *ReorgHandler) findSuffix(ctx context.Context, local TipRecord) ([]chaintypes.Hash, error) {
	guard := heightset.NewVisitGuard()
	var suffix []chaintypes.Hash

	cur := local
	for {
		if err := guard.Visit(cur.Height); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReorgFailed, err)
		}

		canonical, err := r.node.BlockByHeight(ctx, cur.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch canonical block at height %d: %v", ErrReorgFailed, cur.Height, err)
		}
		if canonical.Hash == cur.Hash {
			// Common ancestor: this height already agrees with upstream.
			return suffix, nil
		}

		suffix = append(suffix, cur.Hash)

		if cur.Height == 0 {
			return nil, fmt.Errorf("%w: genesis itself diverges from upstream", ErrReorgFailed)
		}

		idx, err := r.node.BlockIndex(ctx, cur.Hash)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch block index for %s: %v", ErrReorgFailed, cur.Hash, err)
		}
		if idx == nil {
			return nil, fmt.Errorf("%w: upstream has no record of local block %s", ErrReorgFailed, cur.Hash)
		}
		cur = TipRecord{Hash: idx.PrevHash, Height: cur.Height - 1}
	}
}
