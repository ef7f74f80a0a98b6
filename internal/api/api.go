// Package api implements the public data-path APIs the core exposes to
// higher-level services (§6): getBlock, getTransaction, sendTransaction,
// estimateFee, getPrevHash. Each mostly delegates to the upstream node;
// getBlock/getTransaction front that delegation with a bounded LRU
// cache, the way a read-heavy API layer would in the teacher's own
// ecosystem (hashicorp/golang-lru is a direct teacher dependency).
package api

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/internal/upstream"
)

// DefaultCacheSize bounds the number of decoded blocks/transactions kept
// in memory.
const DefaultCacheSize = 1024

// ErrNotFound is upstream.ErrNotFound, re-exported for API callers that
// only import this package.
var ErrNotFound = upstream.ErrNotFound

// ErrBroadcast is returned when SendTransaction fails upstream.
var ErrBroadcast = fmt.Errorf("api: broadcast failed")

// API is the read/write surface higher-level services call into.
type API struct {
	node     upstream.Node
	blocks   *lru.Cache
	txs      *lru.Cache
	maxTxLim int
}

// New constructs an API in front of node. maxTransactionLimit (§6
// "maxTransactionLimit") is stored and reported by MaxTransactionLimit;
// no API method performs input lookups.
func New(node upstream.Node, maxTransactionLimit int) *API {
	blocks, _ := lru.New(DefaultCacheSize)
	txs, _ := lru.New(DefaultCacheSize)
	if maxTransactionLimit <= 0 {
		maxTransactionLimit = 5
	}
	return &API{node: node, blocks: blocks, txs: txs, maxTxLim: maxTransactionLimit}
}

// GetBlockByHash returns the block for hash, using the cache when
// possible.
func (a *API) GetBlockByHash(ctx context.Context, hash chaintypes.Hash) (*chaintypes.Block, error) {
	if v, ok := a.blocks.Get(hash); ok {
		return v.(*chaintypes.Block), nil
	}
	block, err := a.node.BlockByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	a.blocks.Add(hash, block)
	return block, nil
}

// GetBlockByHeight returns the block canonical at height.
func (a *API) GetBlockByHeight(ctx context.Context, height uint32) (*chaintypes.Block, error) {
	block, err := a.node.BlockByHeight(ctx, height)
	if err != nil {
		return nil, err
	}
	a.blocks.Add(block.Hash, block)
	return block, nil
}

// GetTransaction returns the raw bytes of txid as the upstream node
// supplies them, optionally considering the upstream mempool; results
// fetched without the mempool are cached. It does not decode the
// transaction or resolve its input values.
func (a *API) GetTransaction(ctx context.Context, txid chaintypes.Hash, includeMempool bool) ([]byte, error) {
	if !includeMempool {
		if v, ok := a.txs.Get(txid); ok {
			return v.([]byte), nil
		}
	}
	raw, err := a.node.Transaction(ctx, txid, includeMempool)
	if err != nil {
		return nil, err
	}
	if !includeMempool {
		a.txs.Add(txid, raw)
	}
	return raw, nil
}

// SendTransaction forwards a raw or hex-encoded transaction to the
// upstream node.
func (a *API) SendTransaction(ctx context.Context, raw []byte) (chaintypes.Hash, error) {
	id, err := a.node.SendTransaction(ctx, raw)
	if err != nil {
		return chaintypes.Hash{}, fmt.Errorf("%w: %v", ErrBroadcast, err)
	}
	return id, nil
}

// EstimateFee delegates to the upstream node's fee estimator.
func (a *API) EstimateFee(ctx context.Context, blocks int) (int64, error) {
	return a.node.EstimateFee(ctx, blocks)
}

// GetPrevHash returns the parent of hash via the upstream node's block
// index.
func (a *API) GetPrevHash(ctx context.Context, hash chaintypes.Hash) (chaintypes.Hash, error) {
	idx, err := a.node.BlockIndex(ctx, hash)
	if err != nil {
		return chaintypes.Hash{}, err
	}
	if idx == nil {
		return chaintypes.Hash{}, ErrNotFound
	}
	return idx.PrevHash, nil
}

// MaxTransactionLimit returns the configured bound on per-transaction
// input-value lookups.
func (a *API) MaxTransactionLimit() int { return a.maxTxLim }
