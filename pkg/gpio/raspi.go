package gpio

import (
	"fmt"
	"strconv"
	"sync"

	"gobot.io/x/gobot/v2/platforms/raspi"
)

// bcmToHeader maps BCM GPIO numbers to physical pins of the 40-pin header, which is
// how the gobot raspi adaptor addresses digital pins.
var bcmToHeader = map[int]int{
	2: 3, 3: 5, 4: 7, 17: 11, 27: 13, 22: 15, 10: 19, 9: 21, 11: 23, 5: 29, 6: 31,
	13: 33, 19: 35, 26: 37, 14: 8, 15: 10, 18: 12, 23: 16, 24: 18, 25: 22, 8: 24,
	7: 26, 12: 32, 16: 36, 20: 38, 21: 40,
}

// HeaderPin returns the physical header pin for a BCM number.
func HeaderPin(bcm int) (string, error) {
	h, ok := bcmToHeader[bcm]
	if !ok {
		return "", fmt.Errorf("gpio: BCM %d is not on the 40-pin header", bcm)
	}
	return strconv.Itoa(h), nil
}

// Raspi drives the Raspberry Pi header through gobot.
type Raspi struct {
	mu      sync.Mutex
	adaptor *raspi.Adaptor
	dirs    map[int]Direction
	closed  bool
}

var _ DigitalIO = (*Raspi)(nil)

// OpenRaspi connects the raspi adaptor.
func OpenRaspi() (*Raspi, error) {
	a := raspi.NewAdaptor()
	if err := a.Connect(); err != nil {
		return nil, fmt.Errorf("raspi connect: %w", err)
	}
	return &Raspi{adaptor: a, dirs: make(map[int]Direction)}, nil
}

func (r *Raspi) Configure(pin int, dir Direction) error {
	if _, err := HeaderPin(pin); err != nil {
		return &PinError{Pin: pin, Op: "configure", Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	// gobot sets the line direction lazily on the first read or write
	r.dirs[pin] = dir
	return nil
}

func (r *Raspi) Read(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.check(pin, In)
	if err != nil {
		return Low, &PinError{Pin: pin, Op: "read", Err: err}
	}
	v, err := r.adaptor.DigitalRead(id)
	if err != nil {
		return Low, &PinError{Pin: pin, Op: "read", Err: err}
	}
	return Level(v != 0), nil
}

func (r *Raspi) Write(pin int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, err := r.check(pin, Out)
	if err != nil {
		return &PinError{Pin: pin, Op: "write", Err: err}
	}
	var v byte
	if level {
		v = 1
	}
	if err := r.adaptor.DigitalWrite(id, v); err != nil {
		return &PinError{Pin: pin, Op: "write", Err: err}
	}
	return nil
}

func (r *Raspi) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.adaptor.Finalize()
}

func (r *Raspi) check(pin int, want Direction) (string, error) {
	if r.closed {
		return "", ErrClosed
	}
	dir, ok := r.dirs[pin]
	if !ok {
		return "", ErrNotConfigured
	}
	if dir != want {
		return "", ErrWrongMode
	}
	return HeaderPin(pin)
}
