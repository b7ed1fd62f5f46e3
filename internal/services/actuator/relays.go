// Package actuator drives the fan and pump relays and sequences one cycle's commands.
package actuator

import (
	"errors"
	"fmt"

	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/smartplant/plantcare/pkg/gpio"
	"go.uber.org/zap"
)

var ErrWriteFailed = errors.New("actuator: relay write failed")

// offAttempts bounds the writes used to force a relay OFF after a fault.
const offAttempts = 3

type Pins struct {
	Fan  int
	Pump int
}

// Relays is the relay board. Both relays are active-low: LOW energizes the relay.
type Relays struct {
	io   gpio.DigitalIO
	pins Pins
	log  *zap.Logger
}

// Open configures both relay pins as outputs and drives them OFF.
func Open(io gpio.DigitalIO, pins Pins, log *zap.Logger) (*Relays, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if pins.Fan == pins.Pump {
		return nil, fmt.Errorf("actuator: fan and pump share pin %d", pins.Fan)
	}
	for _, pin := range []int{pins.Fan, pins.Pump} {
		if err := io.Configure(pin, gpio.Out); err != nil {
			return nil, fmt.Errorf("actuator: configure pin %d: %w", pin, err)
		}
	}
	r := &Relays{io: io, pins: pins, log: log.Named("actuator")}
	if err := r.Off(); err != nil {
		return nil, err
	}
	return r, nil
}

// Level maps a relay state to the pin level of an active-low relay.
func Level(state entities.RelayState) gpio.Level {
	if state == entities.RelayOn {
		return gpio.Low
	}
	return gpio.High
}

func (r *Relays) Fan(state entities.RelayState) error  { return r.set("fan", r.pins.Fan, state) }
func (r *Relays) Pump(state entities.RelayState) error { return r.set("pump", r.pins.Pump, state) }

func (r *Relays) set(name string, pin int, state entities.RelayState) error {
	if err := r.io.Write(pin, Level(state)); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrWriteFailed, name, state, err)
	}
	r.log.Debug("relay", zap.String("device", name), zap.String("state", string(state)))
	return nil
}

// Off forces both relays OFF. Every relay is attempted even when one fails.
func (r *Relays) Off() error {
	return errors.Join(
		r.forceOff("fan", r.pins.Fan),
		r.forceOff("pump", r.pins.Pump),
	)
}

// forceOff retries the OFF write a few times before escalating.
func (r *Relays) forceOff(name string, pin int) error {
	var err error
	for i := 0; i < offAttempts; i++ {
		if err = r.set(name, pin, entities.RelayOff); err == nil {
			return nil
		}
	}
	r.log.Error("relay could not be forced off", zap.String("device", name), zap.Int("pin", pin), zap.Error(err))
	return err
}
