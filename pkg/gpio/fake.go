package gpio

import (
	"errors"
	"sync"
)

// Fake is an in-memory DigitalIO for tests and dry runs on a workstation.
type Fake struct {
	mu       sync.Mutex
	dirs     map[int]Direction
	levels   map[int]Level
	writes   map[int][]Level
	failRead map[int]error
	// failWrite fails writes of a given level on a pin; the pin keeps its previous level.
	failWrite map[int]map[Level]error
	onWrite   func(pin int, level Level)
	closed    bool
}

var _ DigitalIO = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		dirs:      make(map[int]Direction),
		levels:    make(map[int]Level),
		writes:    make(map[int][]Level),
		failRead:  make(map[int]error),
		failWrite: make(map[int]map[Level]error),
	}
}

// Set forces the level seen by reads on an input pin.
func (f *Fake) Set(pin int, level Level) {
	f.mu.Lock()
	f.levels[pin] = level
	f.mu.Unlock()
}

// Level returns the last level driven or set on a pin.
func (f *Fake) Level(pin int) Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Writes returns every level written to a pin, in order.
func (f *Fake) Writes(pin int) []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Level(nil), f.writes[pin]...)
}

// Direction returns the configured direction of a pin.
func (f *Fake) Direction(pin int) (Direction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dirs[pin]
	return d, ok
}

func (f *Fake) FailRead(pin int, err error) {
	f.mu.Lock()
	f.failRead[pin] = err
	f.mu.Unlock()
}

func (f *Fake) FailWrite(pin int, level Level, err error) {
	f.mu.Lock()
	if f.failWrite[pin] == nil {
		f.failWrite[pin] = make(map[Level]error)
	}
	f.failWrite[pin][level] = err
	f.mu.Unlock()
}

// OnWrite installs a hook run after every successful write, outside the lock.
func (f *Fake) OnWrite(fn func(pin int, level Level)) {
	f.mu.Lock()
	f.onWrite = fn
	f.mu.Unlock()
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Configure(pin int, dir Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.dirs[pin] = dir
	return nil
}

func (f *Fake) Read(pin int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(pin, In); err != nil {
		return Low, &PinError{Pin: pin, Op: "read", Err: err}
	}
	if err := f.failRead[pin]; err != nil {
		return Low, &PinError{Pin: pin, Op: "read", Err: err}
	}
	return f.levels[pin], nil
}

func (f *Fake) Write(pin int, level Level) error {
	f.mu.Lock()
	if err := f.check(pin, Out); err != nil {
		f.mu.Unlock()
		return &PinError{Pin: pin, Op: "write", Err: err}
	}
	if err := f.failWrite[pin][level]; err != nil {
		f.mu.Unlock()
		return &PinError{Pin: pin, Op: "write", Err: err}
	}
	f.levels[pin] = level
	f.writes[pin] = append(f.writes[pin], level)
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(pin, level)
	}
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) check(pin int, want Direction) error {
	if f.closed {
		return ErrClosed
	}
	dir, ok := f.dirs[pin]
	if !ok {
		return ErrNotConfigured
	}
	if dir != want {
		return ErrWrongMode
	}
	return nil
}

// ErrInjected is a convenience error for fault injection in tests.
var ErrInjected = errors.New("gpio: injected fault")
