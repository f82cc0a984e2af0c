package valve

import (
	"sync"
	"time"
)

// Output is the GPIO line driving the solenoid. High opens the valve.
type Output interface {
	Set(high bool) error
}

// Edge is one level change seen on a MemoryPin.
type Edge struct {
	High bool
	At   time.Time
}

// MemoryPin is an Output that keeps its level in memory and records every
// transition. It stands in for the GPIO driver on hosts without one.
type MemoryPin struct {
	mu      sync.Mutex
	level   bool
	edges   []Edge
	failOn  map[bool]error
	onEdge  func(Edge)
	nowFunc func() time.Time
}

func NewMemoryPin() *MemoryPin {
	return &MemoryPin{failOn: map[bool]error{}, nowFunc: time.Now}
}

// OnEdge registers a hook called (outside the pin lock) after each transition.
func (p *MemoryPin) OnEdge(fn func(Edge)) {
	p.mu.Lock()
	p.onEdge = fn
	p.mu.Unlock()
}

// FailOn makes every Set(level) return err until cleared with nil.
func (p *MemoryPin) FailOn(level bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failOn, level)
		return
	}
	p.failOn[level] = err
}

func (p *MemoryPin) Set(high bool) error {
	p.mu.Lock()
	if err := p.failOn[high]; err != nil {
		p.mu.Unlock()
		return err
	}
	if p.level == high {
		p.mu.Unlock()
		return nil
	}
	p.level = high
	e := Edge{High: high, At: p.nowFunc()}
	p.edges = append(p.edges, e)
	hook := p.onEdge
	p.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return nil
}

// High reports the current level.
func (p *MemoryPin) High() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Edges returns a copy of the recorded transitions.
func (p *MemoryPin) Edges() []Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Edge(nil), p.edges...)
}
