package actuator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smartplant/plantcare/internal/model/entities"
	"go.uber.org/zap"
)

// NoActions is the summary of a cycle that changed nothing.
const NoActions = "None"

// Sequencer applies one ActuatorCommand to the relays.
type Sequencer struct {
	relays *Relays
	log    *zap.Logger
}

func NewSequencer(relays *Relays) *Sequencer {
	return &Sequencer{relays: relays, log: relays.log}
}

// Off forces both relays to the OFF baseline.
func (s *Sequencer) Off() error { return s.relays.Off() }

// Apply writes the fan state, then runs the pump pulse if any, and returns the action summary.
// The pump is written OFF before Apply returns on every path, cancellation included.
// On a write failure both relays are forced OFF and the error wraps ErrWriteFailed.
func (s *Sequencer) Apply(ctx context.Context, cmd entities.ActuatorCommand) (string, error) {
	var actions []string

	if err := s.relays.Fan(cmd.Fan); err != nil {
		return s.fail(err)
	}
	if cmd.Fan == entities.RelayOn {
		actions = append(actions, "Fan ON")
	}

	if cmd.Waters() {
		if err := s.pulse(ctx, cmd.PumpPulse); err != nil {
			if errors.Is(err, ErrWriteFailed) {
				return s.fail(err)
			}
			return summary(actions), err
		}
		actions = append(actions, fmt.Sprintf("Watered (%ss)", seconds(cmd.PumpPulse)))
	}

	return summary(actions), nil
}

// pulse energizes the pump for d. The OFF write is deferred so that it runs on
// every exit, including a cancelled hold or a panic.
func (s *Sequencer) pulse(ctx context.Context, d time.Duration) (err error) {
	defer func() {
		if offErr := s.relays.forceOff("pump", s.relays.pins.Pump); offErr != nil {
			err = errors.Join(err, offErr)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.relays.Pump(entities.RelayOn); err != nil {
		return err
	}
	s.log.Info("pump on", zap.Duration("duration", d))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		s.log.Warn("pump pulse interrupted", zap.Error(ctx.Err()))
		return ctx.Err()
	case <-t.C:
	}
	s.log.Info("pump off")
	return nil
}

func (s *Sequencer) fail(err error) (string, error) {
	if offErr := s.relays.Off(); offErr != nil {
		err = errors.Join(err, offErr)
	}
	s.log.Error("actuator write failed, relays forced off", zap.Error(err))
	return "", err
}

func summary(actions []string) string {
	if len(actions) == 0 {
		return NoActions
	}
	return strings.Join(actions, ", ")
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
