package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/smartplant/plantcare/internal/model/messages"
	"github.com/smartplant/plantcare/internal/services/actuator"
	"github.com/smartplant/plantcare/internal/services/advisor"
	"github.com/smartplant/plantcare/internal/services/camera"
	"github.com/smartplant/plantcare/internal/services/decision"
	"github.com/smartplant/plantcare/internal/services/sensors"
	"github.com/smartplant/plantcare/pkg/gpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ldrPin  = 20
	fanPin  = 27
	pumpPin = 17
	pulse   = 10 * time.Millisecond
)

var soilPins = []int{5, 6, 13, 19, 26, 21}

type fakeCamera struct {
	err   error
	calls int
	panic bool
}

func (c *fakeCamera) Acquire(context.Context) (entities.CaptureResult, error) {
	c.calls++
	if c.panic {
		panic("driver crashed")
	}
	if c.err != nil {
		return entities.CaptureResult{}, c.err
	}
	return entities.CaptureResult{Success: true, Device: 0, Path: "plant.jpg", JPEG: []byte{0xff, 0xd8, 0xff}}, nil
}

type fakeClimate struct {
	value sensors.Climate
	fail  bool
	reads int
}

func (c *fakeClimate) Read(context.Context) (sensors.Climate, error) {
	c.reads++
	if c.fail {
		return sensors.Climate{}, errors.New("checksum did not validate")
	}
	return c.value, nil
}

func (c *fakeClimate) Reset() error { return nil }

type fakeModel struct {
	text  string
	err   error
	calls int
}

func (m *fakeModel) Generate(context.Context, string, []byte) (string, error) {
	m.calls++
	return m.text, m.err
}

type fakeStore struct {
	err   error
	names []string
}

func (s *fakeStore) Put(_ context.Context, name string, _ []byte) (string, error) {
	s.names = append(s.names, name)
	if s.err != nil {
		return "", s.err
	}
	return "https://images.example.org/" + name, nil
}

type recordingSink struct {
	records []messages.CycleRecord
	err     error
}

func (s *recordingSink) Append(_ context.Context, rec messages.CycleRecord) error {
	s.records = append(s.records, rec)
	return s.err
}

type rig struct {
	io      *gpio.Fake
	camera  *fakeCamera
	climate *fakeClimate
	model   *fakeModel
	store   *fakeStore
	sink    *recordingSink
	metrics *Metrics
	orch    *Orchestrator
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		io:      gpio.NewFake(),
		camera:  &fakeCamera{},
		climate: &fakeClimate{value: sensors.Climate{Temperature: 22, Humidity: 55}},
		model:   &fakeModel{err: errors.New("deadline exceeded")},
		store:   &fakeStore{},
		sink:    &recordingSink{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}

	agg, err := sensors.New(r.io, r.climate, sensors.Pins{Light: ldrPin, Soil: soilPins},
		sensors.RetryPolicy{Attempts: 5, Delay: time.Millisecond}, nil)
	require.NoError(t, err)
	relays, err := actuator.Open(r.io, actuator.Pins{Fan: fanPin, Pump: pumpPin}, nil)
	require.NoError(t, err)

	r.orch = NewOrchestrator(Deps{
		Camera:    r.camera,
		Sensors:   agg,
		Advisor:   advisor.New(r.model, time.Second, advisor.BreakerConfig{Failures: 100, Open: time.Minute}, nil),
		Engine:    decision.New(pulse),
		Actuators: actuator.NewSequencer(relays),
		Images:    r.store,
		Sink:      r.sink,
		Metrics:   r.metrics,
	}, Defaults{Temperature: 25.0, Humidity: 50.0}, nil)
	r.orch.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

// setSoil marks the first dry probes DRY (HIGH) and the rest WET.
func (r *rig) setSoil(dry int) {
	for i, pin := range soilPins {
		r.io.Set(pin, i < dry)
	}
}

func (r *rig) answer(rec string) {
	r.model.err = nil
	r.model.text = rec
}

func (r *rig) assertRelaysOff(t *testing.T) {
	t.Helper()
	assert.Equal(t, gpio.High, r.io.Level(fanPin), "fan off")
	assert.Equal(t, gpio.High, r.io.Level(pumpPin), "pump off")
}

func TestClimateAndAdvisorFailureFallBackToDefaults(t *testing.T) {
	r := newRig(t)
	r.climate.fail = true
	r.setSoil(2)
	r.io.Set(ldrPin, gpio.Low)

	res := r.orch.RunCycle(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, StageEnd, res.Stage)
	assert.Equal(t, 5, r.climate.reads)

	require.Len(t, r.sink.records, 1)
	rec := r.sink.records[0]
	assert.Equal(t, res.Record, &rec)
	assert.Equal(t, 25.0, rec.Temperature)
	assert.Equal(t, 50.0, rec.Humidity)
	assert.Equal(t, "BRIGHT", rec.Light)
	assert.Equal(t, "4/6 WET", rec.SoilSummary)
	assert.Equal(t, "None", rec.ActionsTaken)
	assert.Equal(t, "unknown", rec.Disease)
	assert.Equal(t, "Unknown", rec.Plant)
	assert.Zero(t, rec.Confidence)
	assert.Equal(t, "https://images.example.org/plant_1714564800.jpg", rec.ImageReference)
	assert.Contains(t, rec.PromptTrace, "Temperature: 25.0")
	assert.Contains(t, rec.ResponseTrace, "Error: ")
	assert.Equal(t, res.CycleID, rec.CycleID)

	r.assertRelaysOff(t)
	assert.NotContains(t, r.io.Writes(pumpPin), gpio.Low, "pump never energized")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.ClimateFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.AdvisorFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.Cycles.WithLabelValues("COMPLETED", "END")))
	assert.Equal(t, 25.0, testutil.ToFloat64(r.metrics.Temperature))
}

func TestRecommendationDrivesActuators(t *testing.T) {
	r := newRig(t)
	r.setSoil(3)
	r.answer("```json\n" + `{"disease":"Leaf spot","plant":"Tomato","confidence":0.9,
		"recommendation":{"reduce_temperature":false,"water_plant":true,"increase_airflow":true}}` + "\n```")

	res := r.orch.RunCycle(context.Background())
	require.Equal(t, StatusCompleted, res.Status, "%v", res.Err)

	rec := r.sink.records[0]
	assert.Equal(t, 22.0, rec.Temperature)
	assert.Equal(t, "3/6 DRY", rec.SoilSummary)
	assert.Equal(t, "Fan ON, Watered (0.01s)", rec.ActionsTaken)
	assert.Equal(t, "Leaf spot", rec.Disease)
	assert.Equal(t, 0.9, rec.Confidence)

	assert.Equal(t, gpio.Low, r.io.Level(fanPin), "fan left running")
	assert.Equal(t, []gpio.Level{gpio.High, gpio.High, gpio.Low, gpio.High}, r.io.Writes(pumpPin))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.PumpPulses))
}

func TestHeatStartsFanWithoutAdvisor(t *testing.T) {
	r := newRig(t)
	r.climate.value = sensors.Climate{Temperature: 31, Humidity: 40}
	r.setSoil(6)

	res := r.orch.RunCycle(context.Background())
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Fan ON", res.Record.ActionsTaken)
	assert.Equal(t, gpio.High, r.io.Level(pumpPin))
}

func TestStartForcesRelaysOff(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.io.Write(fanPin, gpio.Low))
	require.NoError(t, r.io.Write(pumpPin, gpio.Low))
	r.camera.err = camera.ErrNoDeviceFound

	r.orch.RunCycle(context.Background())
	assert.Equal(t, gpio.High, r.io.Writes(pumpPin)[2], "first write of the cycle turns the pump off")
	r.assertRelaysOff(t)
}

func TestCaptureFailureAborts(t *testing.T) {
	for _, err := range []error{camera.ErrNoDeviceFound, camera.ErrCaptureTimeout} {
		t.Run(err.Error(), func(t *testing.T) {
			r := newRig(t)
			r.camera.err = err
			res := r.orch.RunCycle(context.Background())

			assert.Equal(t, StatusAborted, res.Status)
			assert.Equal(t, StageCapture, res.Stage)
			assert.ErrorIs(t, res.Err, err)
			assert.Nil(t, res.Record)
			assert.Zero(t, r.climate.reads, "no sensor reads")
			assert.Zero(t, r.model.calls, "no advisor call")
			assert.Empty(t, r.store.names)
			assert.Empty(t, r.sink.records, "no record")
			r.assertRelaysOff(t)
			assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.Cycles.WithLabelValues("ABORTED", "CAPTURE")))
		})
	}
}

func TestActuatorFaultAbortsWithoutRecord(t *testing.T) {
	r := newRig(t)
	r.setSoil(6)
	r.answer(`{"disease":"none","plant":"Mint","confidence":0.7,"recommendation":{"reduce_temperature":false,"water_plant":true,"increase_airflow":false}}`)
	r.io.FailWrite(pumpPin, gpio.Low, gpio.ErrInjected)

	res := r.orch.RunCycle(context.Background())
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, StageAct, res.Stage)
	assert.ErrorIs(t, res.Err, actuator.ErrWriteFailed)
	assert.Nil(t, res.Record)
	assert.Empty(t, r.sink.records)
	r.assertRelaysOff(t)
}

func TestCancelledDuringPulseAborts(t *testing.T) {
	r := newRig(t)
	r.setSoil(6)
	r.answer(`{"disease":"none","plant":"Mint","confidence":0.7,"recommendation":{"reduce_temperature":false,"water_plant":true,"increase_airflow":false}}`)
	r.orch.Engine = decision.New(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.io.OnWrite(func(pin int, level gpio.Level) {
		if pin == pumpPin && level == gpio.Low {
			cancel()
		}
	})

	res := r.orch.RunCycle(ctx)
	assert.Equal(t, StatusAborted, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	r.assertRelaysOff(t)
}

func TestAuditFailureIsReportedOnly(t *testing.T) {
	r := newRig(t)
	r.climate.value = sensors.Climate{Temperature: 35, Humidity: 20}
	r.sink.err = errors.New("sheet quota exceeded")

	res := r.orch.RunCycle(context.Background())
	assert.Equal(t, StatusCompleted, res.Status)
	assert.NoError(t, res.Err)
	assert.ErrorContains(t, res.AuditErr, "quota")
	require.NotNil(t, res.Record)
	assert.Equal(t, gpio.Low, r.io.Level(fanPin), "actions are not rolled back")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.AuditFailures))
}

func TestUploadFailureLeavesReferenceEmpty(t *testing.T) {
	r := newRig(t)
	r.store.err = errors.New("access denied")

	res := r.orch.RunCycle(context.Background())
	require.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.Record.ImageReference)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.UploadFailures))
}

func TestDigitalReadFailureAbortsInSense(t *testing.T) {
	r := newRig(t)
	r.io.FailRead(ldrPin, gpio.ErrInjected)

	res := r.orch.RunCycle(context.Background())
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, StageSense, res.Stage)
	assert.ErrorIs(t, res.Err, gpio.ErrInjected)
	assert.Zero(t, r.model.calls)
	assert.Empty(t, r.sink.records)
}

func TestPanicDoesNotEscapeCycle(t *testing.T) {
	r := newRig(t)
	r.camera.panic = true

	var res Result
	assert.NotPanics(t, func() { res = r.orch.RunCycle(context.Background()) })
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, StageCapture, res.Stage)
	assert.ErrorContains(t, res.Err, "driver crashed")
	r.assertRelaysOff(t)
}

func TestBaselineFailureAborts(t *testing.T) {
	r := newRig(t)
	r.io.FailWrite(fanPin, gpio.High, gpio.ErrInjected)

	res := r.orch.RunCycle(context.Background())
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, StageStart, res.Stage)
	assert.ErrorIs(t, res.Err, actuator.ErrWriteFailed)
	assert.Zero(t, r.camera.calls)
	assert.Equal(t, gpio.High, r.io.Level(pumpPin), "the healthy relay is still forced off")
}
