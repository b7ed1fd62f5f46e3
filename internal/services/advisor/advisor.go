// Package advisor asks the external AI service for a diagnosis and validates the answer.
// Every failure collapses to the neutral recommendation.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrInvalidRecommendation = errors.New("advisor: invalid recommendation")
	ErrUnavailable           = errors.New("advisor: service unavailable")
)

// Result carries the recommendation and the markdown traces of the exchange.
// Err is set when the neutral recommendation was substituted.
type Result struct {
	Recommendation entities.Recommendation
	Prompt         string
	Response       string
	Err            error
}

type BreakerConfig struct {
	Failures int
	Open     time.Duration
	Interval time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Failures: 3, Open: 5 * time.Minute, Interval: 0}
}

type Advisor struct {
	model   Model
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     *zap.Logger
}

func New(model Model, timeout time.Duration, cb BreakerConfig, log *zap.Logger) *Advisor {
	if log == nil {
		log = zap.NewNop()
	}
	if cb.Failures < 1 {
		cb.Failures = 1
	}
	log = log.Named("advisor")
	return &Advisor{
		model:   model,
		timeout: timeout,
		log:     log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "advisor",
			Interval: cb.Interval,
			Timeout:  cb.Open,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= uint32(cb.Failures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
	}
}

// Analyze never fails: on any call or validation error the neutral recommendation is returned
// and Result.Err records why.
func (a *Advisor) Analyze(ctx context.Context, in Input) Result {
	prompt := RenderPrompt(in)
	res := Result{Prompt: prompt}

	text, err := a.generate(ctx, prompt, in.Image)
	if err != nil {
		a.log.Error("advisor call failed", zap.Error(err))
		return neutral(res, err)
	}
	a.log.Debug("advisor answer", zap.String("text", text))

	rec, err := Parse(text)
	if err != nil {
		a.log.Error("advisor answer rejected", zap.Error(err))
		return neutral(res, err)
	}

	res.Recommendation = rec
	res.Response = responseTrace(text)
	a.log.Info("diagnosis",
		zap.String("plant", rec.Plant), zap.String("disease", rec.Disease), zap.Float64("confidence", rec.Confidence))
	return res
}

func (a *Advisor) generate(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	if a.model == nil {
		return "", fmt.Errorf("%w: no model configured", ErrUnavailable)
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.model.Generate(ctx, prompt, jpeg)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.(string), nil
}

// State reports the circuit breaker state for health reporting.
func (a *Advisor) State() gobreaker.State {
	return a.breaker.State()
}

func neutral(res Result, err error) Result {
	res.Recommendation = entities.NeutralRecommendation()
	res.Response = errorTrace(err)
	res.Err = err
	return res
}
