package messages

import "time"

// CycleRecord is the append-only audit tuple emitted at the end of a completed cycle.
type CycleRecord struct {
	CycleID        string    `json:"cycle_id"`
	Timestamp      time.Time `json:"timestamp"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	Light          string    `json:"light"`
	SoilSummary    string    `json:"soil_summary"`
	ImageReference string    `json:"image_reference"`
	Disease        string    `json:"disease"`
	Confidence     float64   `json:"confidence"`
	ActionsTaken   string    `json:"actions_taken"`
	Plant          string    `json:"plant"`
	PromptTrace    string    `json:"prompt_trace,omitempty"`
	ResponseTrace  string    `json:"response_trace,omitempty"`
}

// TimestampLayout is the local wall-clock layout used in audit rows.
const TimestampLayout = "2006-01-02 15:04:05"

// Row returns the record as the ordered list of scalar fields appended by row-based sinks.
func (r CycleRecord) Row() []any {
	return []any{
		r.Timestamp.Format(TimestampLayout),
		r.Temperature,
		r.Humidity,
		r.Light,
		r.SoilSummary,
		r.ImageReference,
		r.Disease,
		r.Confidence,
		r.ActionsTaken,
		r.Plant,
		r.PromptTrace,
		r.ResponseTrace,
	}
}
