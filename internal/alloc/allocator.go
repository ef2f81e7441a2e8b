package alloc

import (
	"fmt"
	"sort"
	"sync"
)

type span struct {
	addr, size uint64
}

// Allocator tracks the end of file and every block handed out.
type Allocator struct {
	mu    sync.Mutex
	base  uint64
	eof   uint64
	spans []span
}

// New returns an Allocator whose first block starts at base, usually the
// end of the superblock and root group header.
func New(base uint64) *Allocator {
	return &Allocator{base: base, eof: base}
}

// Alloc reserves size bytes and returns their address. A zero size
// reserves nothing and returns the current end of file.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	addr := a.eof
	if size > 0 {
		a.spans = append(a.spans, span{addr, size})
		a.eof += size
	}
	return addr
}

// EOFAddr is the address the next block will get.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

// Validate reports blocks that overlap or fall outside [base, eof).
func (a *Allocator) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	spans := append([]span(nil), a.spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].addr < spans[j].addr })

	next := a.base
	for _, s := range spans {
		if s.addr < next {
			return fmt.Errorf("block at %#x (%d bytes) overlaps space below %#x", s.addr, s.size, next)
		}
		next = s.addr + s.size
	}
	if next > a.eof {
		return fmt.Errorf("block ends at %#x, past end of file %#x", next, a.eof)
	}
	return nil
}
