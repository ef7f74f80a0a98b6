// Package upstream declares the interface the chain-indexing core
// consumes from the trusted native node (§6). The node client itself —
// its RPC transport, mempool tracking, raw-tx streaming — is an
// external collaborator out of this core's scope; only the contract the
// Sync Driver, Reorg Handler, and public API depend on lives here.
package upstream

import (
	"context"
	"errors"

	"github.com/zencash/chainindex/chaintypes"
)

// ErrNotFound is returned by BlockByHash/BlockByHeight/Transaction when
// the upstream node does not have the requested item (e.g. pruned).
var ErrNotFound = errors.New("upstream: not found")

// BlockIndexEntry is the upstream node's view of one block's place in
// its index, used by the Reorg Handler to walk backwards (§4.7).
type BlockIndexEntry struct {
	PrevHash chaintypes.Hash
	Height   uint32
}

// Node is everything the core needs from the upstream full node.
type Node interface {
	// GenesisBlock returns the network's genesis block.
	GenesisBlock(ctx context.Context) (*chaintypes.Block, error)

	// BlockByHash returns the full block for hash, or ErrNotFound if
	// the upstream node no longer has it (e.g. pruned).
	BlockByHash(ctx context.Context, hash chaintypes.Hash) (*chaintypes.Block, error)

	// BlockByHeight returns the block currently canonical at height on
	// the upstream chain, or ErrNotFound if height exceeds the
	// upstream tip.
	BlockByHeight(ctx context.Context, height uint32) (*chaintypes.Block, error)

	// BlockIndex returns the prevHash/height pair the upstream node has
	// recorded for hash, or (nil, nil) if hash is unknown to it.
	BlockIndex(ctx context.Context, hash chaintypes.Hash) (*BlockIndexEntry, error)

	// Tip returns the upstream node's current chain tip.
	Tip(ctx context.Context) (chaintypes.Hash, uint32, error)

	// Mempool returns the txids currently in the upstream mempool.
	Mempool(ctx context.Context) ([]chaintypes.Hash, error)

	// Transaction returns the raw bytes of txid, optionally considering
	// the mempool.
	Transaction(ctx context.Context, txid chaintypes.Hash, includeMempool bool) ([]byte, error)

	// SendTransaction broadcasts a raw transaction and returns its id.
	SendTransaction(ctx context.Context, raw []byte) (chaintypes.Hash, error)

	// EstimateFee returns the estimated satoshis-per-kilobyte fee for
	// confirmation within the given number of blocks.
	EstimateFee(ctx context.Context, blocks int) (int64, error)

	// SubscribeTip returns a channel of TipEvent delivered whenever the
	// upstream node's tip changes.
	SubscribeTip(ctx context.Context) (<-chan TipEvent, error)

	// SubscribeTx returns a channel of accepted mempool transaction ids,
	// used only when config.PublishMempoolTransactions is enabled.
	SubscribeTx(ctx context.Context) (<-chan chaintypes.Hash, error)
}

// TipEvent signals that the upstream node's chain tip advanced or
// changed.
type TipEvent struct {
	Hash   chaintypes.Hash
	Height uint32
}
