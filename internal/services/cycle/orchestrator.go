// Package cycle sequences one control cycle (capture, sense, advise, decide, act, record)
// and runs cycles on a schedule or on request without overlap.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/smartplant/plantcare/internal/model/messages"
	"github.com/smartplant/plantcare/internal/services/advisor"
	"github.com/smartplant/plantcare/internal/services/audit"
	"github.com/smartplant/plantcare/internal/services/decision"
	"github.com/smartplant/plantcare/internal/services/imagestore"
	"go.uber.org/zap"
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusAborted   Status = "ABORTED"
)

type Stage string

const (
	StageStart   Stage = "START"
	StageCapture Stage = "CAPTURE"
	StageSense   Stage = "SENSE"
	StageAdvise  Stage = "ADVISE"
	StageDecide  Stage = "DECIDE"
	StageAct     Stage = "ACT"
	StageRecord  Stage = "RECORD"
	StageEnd     Stage = "END"
)

// Result is the outcome of one cycle. Record is nil when the cycle aborted.
// AuditErr reports a sink failure on a completed cycle.
type Result struct {
	CycleID  string
	Status   Status
	Stage    Stage
	Record   *messages.CycleRecord
	Err      error
	AuditErr error
}

type Camera interface {
	Acquire(ctx context.Context) (entities.CaptureResult, error)
}

type Sensors interface {
	Read(ctx context.Context) (entities.SensorReading, error)
}

type Advisor interface {
	Analyze(ctx context.Context, in advisor.Input) advisor.Result
}

type Actuators interface {
	Off() error
	Apply(ctx context.Context, cmd entities.ActuatorCommand) (string, error)
}

// Deps are the per-process handles the orchestrator drives. Images and Sink are optional.
type Deps struct {
	Camera    Camera
	Sensors   Sensors
	Advisor   Advisor
	Engine    decision.Engine
	Actuators Actuators
	Images    imagestore.Store
	Sink      audit.Sink
	Metrics   *Metrics
}

type Defaults struct {
	Temperature float64
	Humidity    float64
}

// auditTimeout bounds the record append, which runs even when the cycle context is done.
const auditTimeout = 15 * time.Second

type Orchestrator struct {
	Deps
	defaults Defaults
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewOrchestrator(d Deps, defaults Defaults, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Orchestrator{
		Deps:     d,
		defaults: defaults,
		log:      log.Named("cycle"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// RunCycle runs one cycle. It never panics; a cycle either completes with a record or
// aborts with none. The relays are left OFF on every abort.
func (o *Orchestrator) RunCycle(ctx context.Context) (res Result) {
	res.CycleID = o.newID()
	log := o.log.With(zap.String("cycle_id", res.CycleID))
	started := o.now()

	defer func() {
		if r := recover(); r != nil {
			res = o.abort(log, res, res.Stage, fmt.Errorf("panic: %v", r))
		}
		o.Metrics.Cycles.WithLabelValues(string(res.Status), string(res.Stage)).Inc()
		o.Metrics.Duration.Observe(o.now().Sub(started).Seconds())
	}()

	log.Info("cycle start")

	// START: known baseline before anything else.
	res.Stage = StageStart
	if err := o.Actuators.Off(); err != nil {
		return o.abort(log, res, StageStart, err)
	}

	res.Stage = StageCapture
	capture, err := o.Camera.Acquire(ctx)
	if err == nil && !capture.Success {
		err = errors.New("capture reported no frame")
	}
	if err != nil {
		return o.abort(log, res, StageCapture, err)
	}
	log.Info("image saved", zap.String("path", capture.Path), zap.Int("device", capture.Device))

	res.Stage = StageSense
	reading, err := o.Sensors.Read(ctx)
	if err != nil {
		return o.abort(log, res, StageSense, err)
	}
	temperature, humidity := o.defaults.Temperature, o.defaults.Humidity
	if reading.ClimateOK() {
		temperature, humidity = *reading.Temperature, *reading.Humidity
	} else {
		o.Metrics.ClimateFallbacks.Inc()
		log.Warn("climate read failed, using default values",
			zap.Float64("temperature", temperature), zap.Float64("humidity", humidity))
	}
	o.Metrics.Temperature.Set(temperature)
	o.Metrics.Humidity.Set(humidity)
	log.Info("sensors",
		zap.Float64("temperature", temperature), zap.Float64("humidity", humidity),
		zap.String("light", string(reading.Light)), zap.String("soil", reading.SoilSummary))

	imageRef := o.storeImage(ctx, log, capture)

	res.Stage = StageAdvise
	advice := o.Advisor.Analyze(ctx, advisor.Input{
		Temperature: temperature,
		Humidity:    humidity,
		Light:       string(reading.Light),
		SoilSummary: reading.SoilSummary,
		Image:       capture.JPEG,
	})
	if advice.Err != nil {
		o.Metrics.AdvisorFallbacks.Inc()
		log.Warn("advisor unavailable, using neutral recommendation", zap.Error(advice.Err))
	}
	rec := advice.Recommendation

	res.Stage = StageDecide
	cmd := o.Engine.Decide(rec, temperature, reading.SoilMajority)

	res.Stage = StageAct
	if err := ctx.Err(); err != nil {
		return o.abort(log, res, StageAct, err)
	}
	actions, err := o.Actuators.Apply(ctx, cmd)
	if err != nil {
		return o.abort(log, res, StageAct, err)
	}
	if cmd.Fan == entities.RelayOn {
		o.Metrics.FanOn.Inc()
	}
	if cmd.Waters() {
		o.Metrics.PumpPulses.Inc()
	}
	log.Info("actions applied", zap.String("actions", actions))

	res.Stage = StageRecord
	record := messages.CycleRecord{
		CycleID:        res.CycleID,
		Timestamp:      o.now(),
		Temperature:    temperature,
		Humidity:       humidity,
		Light:          string(reading.Light),
		SoilSummary:    reading.SoilSummary,
		ImageReference: imageRef,
		Disease:        rec.Disease,
		Confidence:     rec.Confidence,
		ActionsTaken:   actions,
		Plant:          rec.Plant,
		PromptTrace:    advice.Prompt,
		ResponseTrace:  advice.Response,
	}
	res.Record = &record
	if o.Sink != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		err := o.Sink.Append(actx, record)
		cancel()
		if err != nil {
			o.Metrics.AuditFailures.Inc()
			res.AuditErr = err
			log.Error("audit record not written", zap.Error(err))
		}
	}

	res.Stage = StageEnd
	res.Status = StatusCompleted
	o.Metrics.LastCompleted.Set(float64(record.Timestamp.Unix()))
	log.Info("cycle complete", zap.Duration("took", o.now().Sub(started)))
	return res
}

// storeImage uploads the frame. A failure leaves the reference empty.
func (o *Orchestrator) storeImage(ctx context.Context, log *zap.Logger, capture entities.CaptureResult) string {
	if o.Images == nil {
		return ""
	}
	ref, err := o.Images.Put(ctx, imagestore.ObjectName(o.now()), capture.JPEG)
	if err != nil {
		o.Metrics.UploadFailures.Inc()
		log.Warn("image upload failed", zap.Error(err))
		return ""
	}
	log.Info("image uploaded", zap.String("reference", ref))
	return ref
}

func (o *Orchestrator) abort(log *zap.Logger, res Result, stage Stage, err error) Result {
	if offErr := o.Actuators.Off(); offErr != nil {
		err = errors.Join(err, offErr)
	}
	res.Status = StatusAborted
	res.Stage = stage
	res.Record = nil
	res.Err = err
	log.Error("cycle aborted", zap.String("stage", string(stage)), zap.Error(err))
	return res
}
