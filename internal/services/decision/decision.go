// Package decision merges the advisor's recommendation with the local safety rules.
package decision

import (
	"time"

	"github.com/smartplant/plantcare/internal/model/entities"
)

// FanOverrideTemperature starts the fan regardless of the recommendation.
const FanOverrideTemperature = 30.0

// Engine is pure; the same inputs always produce the same command.
type Engine struct {
	PumpPulse time.Duration
}

func New(pumpPulse time.Duration) Engine {
	return Engine{PumpPulse: pumpPulse}
}

// Decide turns the fan on when airflow is recommended or the temperature is above
// the override threshold. The pump pulses only when watering is recommended and the
// soil majority confirms DRY.
func (e Engine) Decide(rec entities.Recommendation, temperature float64, soil entities.SoilState) entities.ActuatorCommand {
	cmd := entities.ActuatorCommand{Fan: entities.RelayOff}
	if rec.Flags.IncreaseAirflow || temperature > FanOverrideTemperature {
		cmd.Fan = entities.RelayOn
	}
	if rec.Flags.WaterPlant && soil == entities.SoilDry {
		cmd.PumpPulse = e.PumpPulse
	}
	return cmd
}
