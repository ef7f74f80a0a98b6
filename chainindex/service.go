package chainindex

import (
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/store"
)

// Service is the indexer plugin contract (§6). Every service must supply
// a name, its dependency list, and lifecycle hooks; BlockHandler and
// ConcurrentBlockHandler are implemented optionally via the interfaces
// below and discovered with a type assertion, mirroring how turbo-geth's
// stagedsync stages are plain structs probed for the capabilities they
// opt into.
type Service interface {
	Name() string
	Dependencies() []string
	Start() error
	Stop() error
}

// BlockHandler is implemented by services that contribute ops serially,
// in registry order, and may read other serial handlers' per-block
// decorations (§4.5 step 2).
type BlockHandler interface {
	HandleBlock(block *chaintypes.Block, dir chaintypes.Direction) ([]store.Op, error)
}

// ConcurrentBlockHandler is implemented by services whose per-block work
// is independent of every other service and can run in the fan-out pool
// (§4.5 step 1). Implementations must not read another service's
// in-memory per-block state.
type ConcurrentBlockHandler interface {
	HandleBlockConcurrent(block *chaintypes.Block, dir chaintypes.Direction) ([]store.Op, error)
}
