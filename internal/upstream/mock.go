package upstream

import (
	"context"
	"sync"

	"github.com/zencash/chainindex/chaintypes"
)

// Mock is an in-memory Node used by tests, in the spirit of the
// teacher's chainReader fake in cmd/headers/download/downloader.go: a
// hand-written stand-in for the real network-backed implementation.
type Mock struct {
	mu         sync.Mutex
	genesis    *chaintypes.Block
	byHash     map[chaintypes.Hash]*chaintypes.Block
	byHeight   map[uint32]*chaintypes.Block // current canonical chain
	tipHash    chaintypes.Hash
	tipHeight  uint32
	tipSubs    []chan TipEvent
	mempool    []chaintypes.Hash
	mempoolRaw map[chaintypes.Hash][]byte
	txSubs     []chan chaintypes.Hash
}

func NewMock(genesis *chaintypes.Block) *Mock {
	m := &Mock{
		genesis:    genesis,
		byHash:     map[chaintypes.Hash]*chaintypes.Block{genesis.Hash: genesis},
		byHeight:   map[uint32]*chaintypes.Block{genesis.Height: genesis},
		mempoolRaw: make(map[chaintypes.Hash][]byte),
	}
	m.tipHash, m.tipHeight = genesis.Hash, genesis.Height
	return m
}

// AddMempoolTransaction simulates the upstream node accepting raw into
// its mempool: it is recorded for Mempool/Transaction lookups and
// pushed to every SubscribeTx subscriber.
func (m *Mock) AddMempoolTransaction(raw []byte) chaintypes.Hash {
	txid := chaintypes.BytesToHash(raw)

	m.mu.Lock()
	m.mempool = append(m.mempool, txid)
	m.mempoolRaw[txid] = raw
	subs := append([]chan chaintypes.Hash(nil), m.txSubs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- txid:
		default:
		}
	}
	return txid
}

// AddBlock appends block to the mock's canonical chain at block.Height,
// replacing whatever was previously canonical there (simulating a reorg
// when block.PrevHash differs from the current block at Height-1).
func (m *Mock) AddBlock(block *chaintypes.Block) {
	m.mu.Lock()
	m.byHash[block.Hash] = block
	m.byHeight[block.Height] = block
	if block.Height >= m.tipHeight {
		m.tipHash, m.tipHeight = block.Hash, block.Height
	}
	subs := append([]chan TipEvent(nil), m.tipSubs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- TipEvent{Hash: block.Hash, Height: block.Height}:
		default:
		}
	}
}

func (m *Mock) GenesisBlock(ctx context.Context) (*chaintypes.Block, error) {
	return m.genesis, nil
}

func (m *Mock) BlockByHash(ctx context.Context, hash chaintypes.Hash) (*chaintypes.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *Mock) BlockByHeight(ctx context.Context, height uint32) (*chaintypes.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byHeight[height]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *Mock) BlockIndex(ctx context.Context, hash chaintypes.Hash) (*BlockIndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byHash[hash]
	if !ok {
		return nil, nil
	}
	return &BlockIndexEntry{PrevHash: b.PrevHash, Height: b.Height}, nil
}

func (m *Mock) Tip(ctx context.Context) (chaintypes.Hash, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tipHash, m.tipHeight, nil
}

func (m *Mock) Mempool(ctx context.Context) ([]chaintypes.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chaintypes.Hash(nil), m.mempool...), nil
}

func (m *Mock) Transaction(ctx context.Context, txid chaintypes.Hash, includeMempool bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.byHash {
		for _, tx := range b.Transactions {
			if tx.ID == txid {
				return tx.Raw, nil
			}
		}
	}
	if includeMempool {
		if raw, ok := m.mempoolRaw[txid]; ok {
			return raw, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Mock) SendTransaction(ctx context.Context, raw []byte) (chaintypes.Hash, error) {
	return chaintypes.BytesToHash(raw), nil
}

func (m *Mock) EstimateFee(ctx context.Context, blocks int) (int64, error) {
	return 1000, nil
}

func (m *Mock) SubscribeTip(ctx context.Context) (<-chan TipEvent, error) {
	ch := make(chan TipEvent, 16)
	m.mu.Lock()
	m.tipSubs = append(m.tipSubs, ch)
	m.mu.Unlock()
	return ch, nil
}

func (m *Mock) SubscribeTx(ctx context.Context) (<-chan chaintypes.Hash, error) {
	ch := make(chan chaintypes.Hash, 16)
	m.mu.Lock()
	m.txSubs = append(m.txSubs, ch)
	m.mu.Unlock()
	return ch, nil
}
