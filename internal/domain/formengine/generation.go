package formengine

import (
	"context"
	"sync"
)

// Generations hands out render tickets per target container. Beginning a
// render for a target cancels the render it supersedes, so only the newest
// result for a target is ever delivered.
type Generations struct {
	mu      sync.Mutex
	current map[string]*Ticket
	next    uint64
}

func NewGenerations() *Generations {
	return &Generations{current: make(map[string]*Ticket)}
}

// Ticket identifies one render of a target.
type Ticket struct {
	Target     string
	Generation uint64

	g      *Generations
	cancel context.CancelFunc
}

// Begin starts a render for target. The returned context is cancelled when a
// newer render of the same target begins or when the ticket is released.
func (g *Generations) Begin(ctx context.Context, target string) (context.Context, *Ticket) {
	ctx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	t := &Ticket{Target: target, Generation: g.next, g: g, cancel: cancel}
	if prev, ok := g.current[target]; ok {
		prev.cancel()
	}
	g.current[target] = t
	return ctx, t
}

// Current reports whether t is still the newest render of its target.
func (t *Ticket) Current() bool {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	return t.g.current[t.Target] == t
}

// Release ends the render. It must be called once the result has been
// delivered or discarded.
func (t *Ticket) Release() {
	t.cancel()
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.g.current[t.Target] == t {
		delete(t.g.current, t.Target)
	}
}

// Settle converts the outcome of a render into ErrSuperseded when a newer
// render of the same target has begun.
func (t *Ticket) Settle(err error) error {
	if !t.Current() {
		return ErrSuperseded
	}
	return err
}
