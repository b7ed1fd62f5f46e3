package entities

import "fmt"

// LightLevel is the digital reading of the LDR comparator.
type LightLevel string

const (
	LightDark   LightLevel = "DARK"
	LightBright LightLevel = "BRIGHT"
)

// SoilState is the binary classification of one soil-moisture probe.
type SoilState string

const (
	SoilDry SoilState = "DRY"
	SoilWet SoilState = "WET"
)

// SoilVote is the per-cycle majority vote over all soil probes.
type SoilVote struct {
	Dry      int       `json:"dry"`
	Wet      int       `json:"wet"`
	Majority SoilState `json:"majority"`
}

// Total is the number of probes that took part in the vote.
func (v SoilVote) Total() int { return v.Dry + v.Wet }

// Summary renders the vote as "k/n DRY" or "k/n WET".
func (v SoilVote) Summary() string {
	k := v.Wet
	if v.Majority == SoilDry {
		k = v.Dry
	}
	return fmt.Sprintf("%d/%d %s", k, v.Total(), v.Majority)
}

// SensorReading is everything the aggregator measured in one cycle.
// Temperature and Humidity are nil when the climate sensor gave up.
type SensorReading struct {
	Temperature  *float64   `json:"temperature,omitempty"`
	Humidity     *float64   `json:"humidity,omitempty"`
	Light        LightLevel `json:"light"`
	SoilSummary  string     `json:"soil_summary"`
	SoilMajority SoilState  `json:"soil_majority"`
}

// ClimateOK reports whether both climate values are present.
func (r SensorReading) ClimateOK() bool {
	return r.Temperature != nil && r.Humidity != nil
}
