// Package gpio is the digital I/O abstraction the controller drives pins through.
// Pins are BCM numbers. Implementations own the underlying hardware for the process lifetime.
package gpio

import (
	"errors"
	"fmt"
)

// Level is the electrical level of a digital pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Direction is the configured mode of a pin.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "OUT"
	}
	return "IN"
}

var (
	ErrNotConfigured = errors.New("gpio: pin not configured")
	ErrWrongMode     = errors.New("gpio: pin configured in the other direction")
	ErrClosed        = errors.New("gpio: closed")
)

// DigitalIO is the capability set {configure, read, write} over logical pins.
type DigitalIO interface {
	Configure(pin int, dir Direction) error
	Read(pin int) (Level, error)
	Write(pin int, level Level) error
	Close() error
}

// PinError wraps a failure on a specific pin.
type PinError struct {
	Pin int
	Op  string
	Err error
}

func (e *PinError) Error() string { return fmt.Sprintf("gpio %s pin %d: %v", e.Op, e.Pin, e.Err) }
func (e *PinError) Unwrap() error { return e.Err }
