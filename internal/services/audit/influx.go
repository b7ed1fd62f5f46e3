package audit

import (
	"context"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/smartplant/plantcare/internal/model/messages"
)

const Measurement = "plant_cycle"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes one point per cycle with a blocking write.
type Influx struct {
	w      pointWriter
	device string
}

var _ Sink = (*Influx)(nil)

func NewInflux(client influxdb2.Client, org, bucket, device string) *Influx {
	return &Influx{w: client.WriteAPIBlocking(org, bucket), device: device}
}

func (i *Influx) Append(ctx context.Context, rec messages.CycleRecord) error {
	return i.w.WritePoint(ctx, RecordToPoint(rec, i.device))
}

// RecordToPoint maps a record to a point: categorical values are tags, measurements are fields.
func RecordToPoint(rec messages.CycleRecord, device string) *write.Point {
	tags := map[string]string{
		"light":         rec.Light,
		"soil_majority": soilMajority(rec.SoilSummary),
	}
	if device != "" {
		tags["device"] = device
	}

	fields := map[string]interface{}{
		"cycle_id":        rec.CycleID,
		"temperature":     rec.Temperature,
		"humidity":        rec.Humidity,
		"soil_summary":    rec.SoilSummary,
		"image_reference": rec.ImageReference,
		"disease":         rec.Disease,
		"plant":           rec.Plant,
		"confidence":      rec.Confidence,
		"actions_taken":   rec.ActionsTaken,
		"fan_on":          strings.Contains(rec.ActionsTaken, "Fan ON"),
		"watered":         strings.Contains(rec.ActionsTaken, "Watered"),
	}
	if rec.PromptTrace != "" {
		fields["prompt_trace"] = rec.PromptTrace
	}
	if rec.ResponseTrace != "" {
		fields["response_trace"] = rec.ResponseTrace
	}

	return influxdb2.NewPoint(Measurement, tags, fields, rec.Timestamp)
}

// soilMajority extracts DRY or WET from a "k/n DRY" summary.
func soilMajority(summary string) string {
	if i := strings.LastIndexByte(summary, ' '); i >= 0 {
		return summary[i+1:]
	}
	return "unknown"
}
