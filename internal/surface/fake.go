package surface

import (
	"sync"
)

// Fake is an instrumented in-memory Surface for tests. It records every
// write in order, lets tests script the geometry reported per Size call,
// and exposes the completion callbacks of paced writes so tests can drive
// render-completion acknowledgments by hand.
type Fake struct {
	mu sync.Mutex

	// geometries is consumed one entry per Size() call; the last entry
	// repeats once exhausted.
	geometries []Geometry
	sizeCalls  int
	layouts    int

	writes  [][]byte
	banners []string
	pending []func() // completion callbacks of WriteAck calls, FIFO

	// AutoAck makes WriteAck call done immediately, mimicking a render
	// pipeline that keeps up with the producer.
	AutoAck bool

	inputFns  map[int]func([]byte)
	resizeFns map[int]func(Geometry)
	nextID    int
}

// NewFake creates a fake surface reporting the given geometry.
func NewFake(g Geometry) *Fake {
	return &Fake{
		geometries: []Geometry{g},
		inputFns:   make(map[int]func([]byte)),
		resizeFns:  make(map[int]func(Geometry)),
	}
}

// ScriptSizes replaces the geometry script: Size() returns entries in order,
// repeating the final entry once the script is exhausted.
func (f *Fake) ScriptSizes(gs ...Geometry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.geometries = gs
	f.sizeCalls = 0
}

func (f *Fake) Size() Geometry {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.sizeCalls
	f.sizeCalls++
	if i >= len(f.geometries) {
		i = len(f.geometries) - 1
	}
	if i < 0 {
		return Geometry{}
	}
	return f.geometries[i]
}

func (f *Fake) RequestLayout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layouts++
}

func (f *Fake) Write(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
}

func (f *Fake) WriteAck(p []byte, done func()) {
	f.mu.Lock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	auto := f.AutoAck
	if !auto {
		f.pending = append(f.pending, done)
	}
	f.mu.Unlock()
	if auto {
		done()
	}
}

func (f *Fake) Banner(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banners = append(f.banners, text)
}

func (f *Fake) OnInput(fn func(data []byte)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.inputFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.inputFns, id)
	}
}

func (f *Fake) OnResize(fn func(g Geometry)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.resizeFns[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.resizeFns, id)
	}
}

// CompleteNext fires the oldest outstanding WriteAck completion callback.
// Returns false if none are outstanding.
func (f *Fake) CompleteNext() bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	done := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()
	done()
	return true
}

// PendingAcks returns the number of outstanding paced-write completions.
func (f *Fake) PendingAcks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Writes returns all rendered chunks in order.
func (f *Fake) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// Rendered returns the concatenation of all rendered chunks.
func (f *Fake) Rendered() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, w := range f.writes {
		out = append(out, w...)
	}
	return string(out)
}

// Banners returns all banner lines in order.
func (f *Fake) Banners() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.banners))
	copy(out, f.banners)
	return out
}

// Layouts returns how many times RequestLayout was called.
func (f *Fake) Layouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.layouts
}

// SizeCalls returns how many times Size was called.
func (f *Fake) SizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sizeCalls
}

// EmitInput delivers keystroke bytes to all input subscribers.
func (f *Fake) EmitInput(data []byte) {
	f.mu.Lock()
	fns := make([]func([]byte), 0, len(f.inputFns))
	for _, fn := range f.inputFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

// EmitResize delivers a geometry change to all resize subscribers.
func (f *Fake) EmitResize(g Geometry) {
	f.mu.Lock()
	fns := make([]func(Geometry), 0, len(f.resizeFns))
	for _, fn := range f.resizeFns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(g)
	}
}

// InputSubscribers returns the number of live input subscriptions.
func (f *Fake) InputSubscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputFns)
}

// ResizeSubscribers returns the number of live resize subscriptions.
func (f *Fake) ResizeSubscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resizeFns)
}
