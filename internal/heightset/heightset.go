// Package heightset provides a compact, fixed-capacity membership set
// over block heights, backed by a Roaring bitmap. It is grounded on
// turbo-geth's ethdb/bitmapdb package, which maintains sharded Roaring
// bitmaps of block numbers per indexed key; this package keeps the same
// "heights as set bits" representation but drops the sharding (the
// windows here are small and short-lived, not multi-gigabyte indexes).
package heightset

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Window is a rolling, capacity-bounded set of connected heights. The
// Lifecycle seeds it at startup from the persisted consistency window,
// once that window has passed its check, and the Block Applier adds each
// connected height. The Reorg Handler's revisit check uses VisitGuard,
// not Window.
type Window struct {
	mu       sync.Mutex
	bits     *roaring.Bitmap
	capacity int
	order    []uint32 // insertion order, oldest first, for eviction
}

func NewWindow(capacity int) *Window {
	return &Window{bits: roaring.New(), capacity: capacity}
}

// Add records height as seen, evicting the oldest recorded height once
// capacity is exceeded.
func (w *Window) Add(height uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bits.Contains(height) {
		return
	}
	w.bits.Add(height)
	w.order = append(w.order, height)
	if len(w.order) > w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		w.bits.Remove(oldest)
	}
}

// Contains reports whether height was recorded and not yet evicted.
func (w *Window) Contains(height uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bits.Contains(height)
}

// Len reports how many heights are currently tracked.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// VisitGuard tracks heights visited during a single bounded walk (e.g.
// one Reorg Handler ancestor search) and errors if a height repeats,
// which would otherwise spin forever on a corrupt block index.
type VisitGuard struct {
	seen *roaring.Bitmap
}

func NewVisitGuard() *VisitGuard {
	return &VisitGuard{seen: roaring.New()}
}

// Visit records height and returns an error if it was already visited
// in this walk.
func (g *VisitGuard) Visit(height uint32) error {
	if g.seen.Contains(height) {
		return fmt.Errorf("heightset: height %d revisited during walk", height)
	}
	g.seen.Add(height)
	return nil
}
