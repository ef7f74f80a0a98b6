package chainindex

import "errors"

// Fatal errors halt the node; the caller is expected to stop the Lifecycle
// and exit per §6's exit semantics. Local errors are surfaced to API
// callers without tearing anything down.
var (
	// ErrVersionMismatch is fatal: the on-disk schema version differs
	// from the compiled version.
	ErrVersionMismatch = errors.New("chainindex: schema version mismatch")

	// ErrPrefixExhausted is fatal: the 16-bit service prefix space is
	// full.
	ErrPrefixExhausted = errors.New("chainindex: service prefix space exhausted")

	// ErrServiceContract is fatal: a registered service does not
	// satisfy the plugin contract.
	ErrServiceContract = errors.New("chainindex: service violates contract")

	// ErrDependencyCycle is fatal: the service dependency graph is not
	// a DAG.
	ErrDependencyCycle = errors.New("chainindex: service dependency cycle")

	// ErrHandlerFailure aborts the current block apply; treated as
	// fatal by the Sync Driver since tip and indexer state could now
	// diverge.
	ErrHandlerFailure = errors.New("chainindex: service handler failed")

	// ErrUpstreamLost is fatal after retries are exhausted: the
	// upstream node can no longer supply the expected next block.
	ErrUpstreamLost = errors.New("chainindex: upstream node lost expected block")

	// ErrReorgFailed is fatal: a disconnect during reorg failed.
	ErrReorgFailed = errors.New("chainindex: reorg failed")

	// ErrNotFound is local and non-fatal.
	ErrNotFound = errors.New("chainindex: not found")

	// ErrBroadcast is local and non-fatal.
	ErrBroadcast = errors.New("chainindex: broadcast failed")
)
