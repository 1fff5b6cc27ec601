package raster

import (
	"fmt"
	"sync"
)

// Memory is an in-process Reader and Writer.
type Memory struct {
	mu      sync.Mutex
	stacks  map[string]*Stack
	written map[string]*Stack
	reads   map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		stacks:  make(map[string]*Stack),
		written: make(map[string]*Stack),
		reads:   make(map[string]int),
	}
}

// Put registers a single band dataset under name.
func (m *Memory) Put(name string, g *Grid) {
	s := NewStack(g.Width, g.Height)
	s.Bands = []*Grid{g.Clone()}
	m.PutStack(name, s)
}

func (m *Memory) PutStack(name string, s *Stack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stacks[name] = cloneStack(s)
}

// Reads reports how many times name has been opened.
func (m *Memory) Reads(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[name]
}

func (m *Memory) Read(name string) (*Grid, error) {
	s, err := m.ReadStack(name, 0, 1)
	if err != nil {
		return nil, err
	}
	return s.Bands[0], nil
}

func (m *Memory) ReadStack(name string, first, count int) (*Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[name]++

	s, ok := m.stacks[name]
	if !ok {
		s, ok = m.written[name]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, name)
	}
	if count <= 0 {
		count = len(s.Bands) - first
	}
	if first < 0 || count <= 0 || first+count > len(s.Bands) {
		return nil, fmt.Errorf("%w: bands [%d, %d) requested from %s with %d bands", ErrDimensionMismatch, first, first+count, name, len(s.Bands))
	}
	out := cloneStack(s)
	out.Bands = out.Bands[first : first+count]
	return out, nil
}

func (m *Memory) Write(path string, stack *Stack) error {
	if stack.Geo == nil {
		return fmt.Errorf("stack for %s has no geocoding", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[path] = cloneStack(stack)
	return nil
}

func (m *Memory) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.written[path]
	return ok, nil
}

// Written returns the stack stored at path by Write.
func (m *Memory) Written(path string) (*Stack, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.written[path]
	if !ok {
		return nil, false
	}
	return cloneStack(s), true
}

func cloneStack(s *Stack) *Stack {
	out := NewStack(s.Width, s.Height)
	for _, b := range s.Bands {
		out.Bands = append(out.Bands, b.Clone())
	}
	if s.Geo != nil {
		geo := *s.Geo
		out.Geo = &geo
	}
	return out
}
