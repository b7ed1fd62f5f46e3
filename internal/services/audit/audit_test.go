package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/smartplant/plantcare/internal/model/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleRecord() messages.CycleRecord {
	return messages.CycleRecord{
		CycleID:        "c-1",
		Timestamp:      time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local),
		Temperature:    25.0,
		Humidity:       50.0,
		Light:          "BRIGHT",
		SoilSummary:    "4/6 WET",
		ImageReference: "https://example.org/plant_1.jpg",
		Disease:        "unknown",
		Confidence:     0,
		ActionsTaken:   "None",
		Plant:          "Unknown",
		PromptTrace:    "prompt",
		ResponseTrace:  "```\nError: boom\n```",
	}
}

type recordingSink struct {
	got []messages.CycleRecord
	err error
}

func (r *recordingSink) Append(_ context.Context, rec messages.CycleRecord) error {
	r.got = append(r.got, rec)
	return r.err
}

func TestMultiAppendsToAllAndJoinsErrors(t *testing.T) {
	errSheet := errors.New("quota exceeded")
	a := &recordingSink{}
	b := &recordingSink{err: errSheet}
	c := &recordingSink{}
	m := NewMulti(Named{"a", a}, Named{"b", b}, Named{"c", c})

	err := m.Append(context.Background(), sampleRecord())
	require.ErrorIs(t, err, errSheet)
	assert.ErrorContains(t, err, "b: quota exceeded")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1, "a failing sink does not stop the others")

	assert.NoError(t, NewMulti().Append(context.Background(), sampleRecord()))
}

func TestRowOrder(t *testing.T) {
	row := sampleRecord().Row()
	require.Len(t, row, len(Header))
	assert.Equal(t, "2024-05-01 12:30:00", row[0])
	assert.Equal(t, "4/6 WET", row[4])
	assert.Equal(t, "None", row[8])
	assert.Equal(t, "Unknown", row[9])
}

type fakePointWriter struct {
	points []*write.Point
	err    error
}

func (f *fakePointWriter) WritePoint(_ context.Context, p ...*write.Point) error {
	f.points = append(f.points, p...)
	return f.err
}

func TestInfluxAppend(t *testing.T) {
	w := &fakePointWriter{}
	sink := &Influx{w: w, device: "pi-1"}
	require.NoError(t, sink.Append(context.Background(), sampleRecord()))
	require.Len(t, w.points, 1)

	p := w.points[0]
	assert.Equal(t, Measurement, p.Name())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"device": "pi-1", "light": "BRIGHT", "soil_majority": "WET"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 25.0, fields["temperature"])
	assert.Equal(t, "None", fields["actions_taken"])
	assert.Equal(t, false, fields["watered"])
	assert.Equal(t, "prompt", fields["prompt_trace"])

	w.err = errors.New("unauthorized")
	assert.Error(t, sink.Append(context.Background(), sampleRecord()))
}

func TestSoilMajority(t *testing.T) {
	assert.Equal(t, "DRY", soilMajority("3/6 DRY"))
	assert.Equal(t, "unknown", soilMajority(""))
}

type fakePublisher struct {
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishMessage(payload []byte) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakePublisher) Close() {}

func TestMQTTAppend(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewMQTT(pub).Append(context.Background(), sampleRecord()))
	require.Len(t, pub.payloads, 1)

	var got messages.CycleRecord
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "c-1", got.CycleID)
	assert.Equal(t, "4/6 WET", got.SoilSummary)

	pub.err = errors.New("not connected")
	assert.Error(t, NewMQTT(pub).Append(context.Background(), sampleRecord()))
}

func TestCSVAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	sink := NewCSV(path)
	require.NoError(t, sink.Append(context.Background(), sampleRecord()))
	require.NoError(t, sink.Append(context.Background(), sampleRecord()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "25", rows[1][1])
	assert.Equal(t, "```\nError: boom\n```", rows[2][11])
}

func TestLogAppend(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLog(zap.New(core)).Append(context.Background(), sampleRecord()))
	entries := logs.FilterMessage("cycle record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "None", entries[0].ContextMap()["actions"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}
