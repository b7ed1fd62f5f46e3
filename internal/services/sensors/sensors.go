// Package sensors reads the climate sensor, the light comparator and the soil probes
// and reduces them to one SensorReading per cycle.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartplant/plantcare/internal/model/entities"
	"github.com/smartplant/plantcare/pkg/gpio"
	"github.com/smartplant/plantcare/pkg/retry"
	"go.uber.org/zap"
)

var ErrClimateUnavailable = errors.New("sensors: climate sensor unavailable")

// Climate is one accepted temperature/humidity sample.
type Climate struct {
	Temperature float64
	Humidity    float64
}

// ClimateDriver reads the temperature/humidity sensor.
// Reset releases the transport so that the next Read starts clean.
type ClimateDriver interface {
	Read(ctx context.Context) (Climate, error)
	Reset() error
}

type Pins struct {
	Light int
	Soil  []int
}

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Delay: 2 * time.Second}
}

// Aggregator owns the input pins for the process lifetime.
type Aggregator struct {
	io      gpio.DigitalIO
	climate ClimateDriver
	pins    Pins
	retry   RetryPolicy
	log     *zap.Logger
}

// New configures the light and soil pins as inputs.
func New(io gpio.DigitalIO, climate ClimateDriver, pins Pins, policy RetryPolicy, log *zap.Logger) (*Aggregator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(pins.Soil) == 0 {
		return nil, errors.New("sensors: no soil pins configured")
	}
	for _, pin := range append([]int{pins.Light}, pins.Soil...) {
		if err := io.Configure(pin, gpio.In); err != nil {
			return nil, fmt.Errorf("sensors: configure pin %d: %w", pin, err)
		}
	}
	return &Aggregator{
		io:      io,
		climate: climate,
		pins:    pins,
		retry:   policy,
		log:     log.Named("sensors"),
	}, nil
}

// ReadClimate tries the climate sensor up to the configured number of attempts.
// The transport is reset after every failure.
func (a *Aggregator) ReadClimate(ctx context.Context) (Climate, error) {
	if a.climate == nil {
		return Climate{}, fmt.Errorf("%w: no driver", ErrClimateUnavailable)
	}
	var got Climate
	err := retry.Attempts(ctx, a.retry.Attempts, a.retry.Delay, func(attempt int) error {
		c, err := a.climate.Read(ctx)
		if err != nil {
			a.log.Warn("climate read failed",
				zap.Int("attempt", attempt), zap.Int("max", a.retry.Attempts), zap.Error(err))
			if rerr := a.climate.Reset(); rerr != nil {
				a.log.Debug("climate reset failed", zap.Error(rerr))
			}
			return err
		}
		got = c
		return nil
	}, func(attempt int, _ error, next time.Duration) {
		a.log.Debug("retrying climate read", zap.Int("attempt", attempt), zap.Duration("in", next))
	})
	if err != nil {
		if ctx.Err() != nil {
			return Climate{}, ctx.Err()
		}
		a.log.Error("all climate read attempts failed, check wiring and pin assignment",
			zap.Int("attempts", a.retry.Attempts))
		return Climate{}, fmt.Errorf("%w: %w", ErrClimateUnavailable, err)
	}
	a.log.Info("climate read", zap.Float64("temperature", got.Temperature), zap.Float64("humidity", got.Humidity))
	return got, nil
}

// ReadLight maps the comparator output: HIGH is DARK, LOW is BRIGHT.
func (a *Aggregator) ReadLight() (entities.LightLevel, error) {
	level, err := a.io.Read(a.pins.Light)
	if err != nil {
		return "", err
	}
	if level == gpio.High {
		return entities.LightDark, nil
	}
	return entities.LightBright, nil
}

// ReadSoil reads every probe (HIGH is DRY) and votes.
func (a *Aggregator) ReadSoil() (entities.SoilVote, error) {
	states := make([]entities.SoilState, 0, len(a.pins.Soil))
	for _, pin := range a.pins.Soil {
		level, err := a.io.Read(pin)
		if err != nil {
			return entities.SoilVote{}, err
		}
		if level == gpio.High {
			states = append(states, entities.SoilDry)
		} else {
			states = append(states, entities.SoilWet)
		}
	}
	return Vote(states), nil
}

// Vote counts the probes. A tie resolves to DRY.
func Vote(states []entities.SoilState) entities.SoilVote {
	var v entities.SoilVote
	for _, s := range states {
		if s == entities.SoilDry {
			v.Dry++
		} else {
			v.Wet++
		}
	}
	v.Majority = entities.SoilWet
	if v.Dry >= v.Wet {
		v.Majority = entities.SoilDry
	}
	return v
}

// Read samples everything once. A climate failure leaves Temperature and Humidity nil
// and is not an error; digital read failures are.
func (a *Aggregator) Read(ctx context.Context) (entities.SensorReading, error) {
	var r entities.SensorReading

	c, err := a.ReadClimate(ctx)
	switch {
	case err == nil:
		r.Temperature, r.Humidity = &c.Temperature, &c.Humidity
	case ctx.Err() != nil:
		return r, ctx.Err()
	}

	light, err := a.ReadLight()
	if err != nil {
		return r, fmt.Errorf("sensors: read light: %w", err)
	}
	vote, err := a.ReadSoil()
	if err != nil {
		return r, fmt.Errorf("sensors: read soil: %w", err)
	}

	r.Light = light
	r.SoilSummary = vote.Summary()
	r.SoilMajority = vote.Majority
	return r, nil
}
