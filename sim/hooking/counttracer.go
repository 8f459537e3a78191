package hooking

import (
	"sort"
	"sync"
)

// CountTracer counts how many times each hook position is triggered.
type CountTracer struct {
	lock   sync.Mutex
	filter func(ctx HookCtx) bool
	counts map[string]uint64
}

// NewCountTracer creates a CountTracer. A nil filter counts every invocation.
func NewCountTracer(filter func(ctx HookCtx) bool) *CountTracer {
	return &CountTracer{
		filter: filter,
		counts: make(map[string]uint64),
	}
}

// Func counts the invocation.
func (t *CountTracer) Func(ctx HookCtx) {
	if t.filter != nil && !t.filter(ctx) {
		return
	}

	t.lock.Lock()
	t.counts[ctx.Pos.Name]++
	t.lock.Unlock()
}

// Count returns the number of invocations at the named position.
func (t *CountTracer) Count(pos *HookPos) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.counts[pos.Name]
}

// CountByName returns the number of invocations at the position with the
// given name.
func (t *CountTracer) CountByName(name string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.counts[name]
}

// PosNames returns the names of the positions seen so far, sorted.
func (t *CountTracer) PosNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	names := make([]string, 0, len(t.counts))
	for name := range t.counts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
