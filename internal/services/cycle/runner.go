package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/robfig/cron/v3"
	"github.com/smartplant/plantcare/internal/model/messages"
	"github.com/smartplant/plantcare/pkg/dedup"
	"github.com/smartplant/plantcare/pkg/logger"
	"github.com/smartplant/plantcare/pkg/rabbitmq"
	"go.uber.org/zap"
)

// Cycler runs one cycle.
type Cycler interface {
	RunCycle(ctx context.Context) Result
}

// Runner serializes cycle requests from the schedule and from remote triggers.
// A request that arrives while a cycle is running is dropped, never queued.
type Runner struct {
	cycler  Cycler
	metrics *Metrics
	log     *zap.Logger
	seen    *dedup.Deduper

	running sync.Mutex
	wg      sync.WaitGroup

	mu       sync.RWMutex
	last     Result
	lastAt   time.Time
	ran      bool
	onResult func(Result)
}

func NewRunner(c Cycler, metrics *Metrics, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cycler:  c,
		metrics: metrics,
		log:     log.Named("runner"),
		seen:    dedup.New(time.Hour, 1024),
	}
}

// Run runs a cycle unless one is already in progress, in which case it returns false.
func (r *Runner) Run(ctx context.Context, source string) (Result, bool) {
	if !r.running.TryLock() {
		if r.metrics != nil {
			r.metrics.Skipped.WithLabelValues(source).Inc()
		}
		r.log.Warn("cycle already running, request dropped", zap.String("source", source))
		return Result{}, false
	}

	r.log.Info("cycle requested", zap.String("source", source))
	res := func() Result {
		defer r.running.Unlock()
		return r.cycler.RunCycle(ctx)
	}()

	r.mu.Lock()
	r.last, r.lastAt, r.ran = res, time.Now(), true
	hook := r.onResult
	r.mu.Unlock()
	if hook != nil {
		hook(res)
	}
	return res, true
}

// OnResult registers fn to be called after every cycle the runner executes.
func (r *Runner) OnResult(fn func(Result)) {
	r.mu.Lock()
	r.onResult = fn
	r.mu.Unlock()
}

// Last returns the most recent result and when it finished.
func (r *Runner) Last() (Result, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.lastAt, r.ran
}

// Schedule starts a cron scheduler running cycles on spec. Stop the returned cron to end it.
func (r *Runner) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	cl := logger.Cron(r.log)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { r.Run(ctx, "schedule") }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	r.log.Info("schedule started", zap.String("spec", spec))
	return c, nil
}

// TriggerHandler decodes remote CycleTrigger messages and starts a cycle in the background.
// Redelivered request IDs are ignored.
func (r *Runner) TriggerHandler(ctx context.Context) rabbitmq.Handler {
	return func(_ string, msg mqtt.Message) error {
		var t messages.CycleTrigger
		if len(msg.Payload()) > 0 {
			if err := json.Unmarshal(msg.Payload(), &t); err != nil {
				return fmt.Errorf("decode trigger: %w", err)
			}
		}
		if !r.seen.ShouldProcess(t.RequestID) {
			r.log.Debug("duplicate trigger ignored", zap.String("request_id", t.RequestID))
			return nil
		}
		source := "remote"
		if t.Reason != "" {
			source = "remote:" + t.Reason
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, ok := r.Run(ctx, source); !ok && t.RequestID != "" {
				// let the sender retry once the running cycle ends
				r.seen.Forget(t.RequestID)
			}
		}()
		return nil
	}
}

// Go runs a cycle in the background.
func (r *Runner) Go(ctx context.Context, source string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(ctx, source)
	}()
}

// Wait blocks until background cycles started by Go or TriggerHandler have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
