package entities

import "time"

// RelayState is the logical state of a relay-driven device.
type RelayState string

const (
	RelayOff RelayState = "OFF"
	RelayOn  RelayState = "ON"
)

// ActuatorCommand is produced by the decision engine and consumed once by the sequencer.
// PumpPulse is zero when the pump must stay off.
type ActuatorCommand struct {
	Fan       RelayState    `json:"fan"`
	PumpPulse time.Duration `json:"pump_pulse"`
}

// Waters reports whether the command carries a pump pulse.
func (c ActuatorCommand) Waters() bool { return c.PumpPulse > 0 }
